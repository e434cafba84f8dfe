package decoder

import "encoding/hex"

// standardSelectorABIs maps a 4-byte selector to a minimal single-function
// ABI JSON fragment, used by resolveABIBySelector as a fallback when an
// address has no cached or fetched ABI at all.
var standardSelectorABIs = map[string]string{
	"a9059cbb": `[{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`,
	"23b872dd": `[{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`,
	"095ea7b3": `[{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`,
	"42966c68": `[{"type":"function","name":"burn","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}]`,
	"40c10f19": `[{"type":"function","name":"mint","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}]`,
	"f2fde38b": `[{"type":"function","name":"transferOwnership","inputs":[{"name":"newOwner","type":"address"}],"outputs":[]}]`,
	"8f283970": `[{"type":"function","name":"changeAdmin","inputs":[{"name":"newAdmin","type":"address"}],"outputs":[]}]`,
	"3659cfe6": `[{"type":"function","name":"upgradeTo","inputs":[{"name":"newImplementation","type":"address"}],"outputs":[]}]`,
	"4f1ef286": `[{"type":"function","name":"upgradeToAndCall","inputs":[{"name":"newImplementation","type":"address"},{"name":"data","type":"bytes"}],"outputs":[]}]`,
}

// resolveABIBySelector returns a minimal single-function ABI matching
// selectorHex, if it is a well-known standard-interface selector. Used by
// resolveABI only after the cache, explorer, and address-keyed localABI
// cascade all come up empty.
func resolveABIBySelector(selectorHex string) (string, bool) {
	abiJSON, ok := standardSelectorABIs[selectorHex]
	return abiJSON, ok
}

// hexSelector returns the lowercase hex of calldata's first 4 bytes,
// unprefixed, matching standardSelectorABIs' keys.
func hexSelector(calldata []byte) string {
	return hex.EncodeToString(calldata[:4])
}
