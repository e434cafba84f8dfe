package codec

import (
	"reflect"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsecurity/proposal-decoder/internal/models"
)

// CollectAddresses walks decoded.Args (including inside tuples and arrays,
// which Unpack leaves as native go-ethereum values — common.Address,
// anonymous structs, slices — rather than flattening) and returns every
// distinct address it finds, in first-seen order, for MetadataResolver's
// fan-out.
func CollectAddresses(decoded *models.DecodedFunction) []string {
	seen := make(map[string]bool)
	var order []string
	add := func(addr common.Address) {
		hex := addr.Hex()
		if !seen[hex] {
			seen[hex] = true
			order = append(order, hex)
		}
	}

	for _, arg := range decoded.Args {
		collectAddressesFromValue(reflect.ValueOf(arg), add)
	}
	return order
}

// CollectAddressesByArg is CollectAddresses grouped by top-level argument
// index, for callers that enrich different arguments against different
// chains. Deduplication is
// per-argument; the same address appearing under two arguments is reported
// under both.
func CollectAddressesByArg(decoded *models.DecodedFunction) [][]string {
	out := make([][]string, len(decoded.Args))
	for i, arg := range decoded.Args {
		seen := make(map[string]bool)
		add := func(addr common.Address) {
			hex := addr.Hex()
			if !seen[hex] {
				seen[hex] = true
				out[i] = append(out[i], hex)
			}
		}
		collectAddressesFromValue(reflect.ValueOf(arg), add)
	}
	return out
}

func collectAddressesFromValue(v reflect.Value, add func(common.Address)) {
	if !v.IsValid() {
		return
	}

	if v.Type() == reflect.TypeOf(common.Address{}) {
		add(v.Interface().(common.Address))
		return
	}
	if v.Kind() == reflect.String {
		if s := v.String(); common.IsHexAddress(s) {
			add(common.HexToAddress(s))
		}
		return
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		collectAddressesFromValue(v.Elem(), add)
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			collectAddressesFromValue(v.Index(i), add)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).PkgPath != "" {
				continue // unexported field, not reachable via go-ethereum's struct-of tuples
			}
			collectAddressesFromValue(v.Field(i), add)
		}
	}
}
