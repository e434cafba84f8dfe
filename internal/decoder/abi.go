package decoder

import (
	"context"
	"encoding/json"

	"github.com/chainsecurity/proposal-decoder/internal/codec"
	"github.com/chainsecurity/proposal-decoder/internal/explorer"
	"github.com/chainsecurity/proposal-decoder/internal/models"
	"github.com/chainsecurity/proposal-decoder/internal/store"
)

// abiResult is what resolveInterface returns: the built interface (nil if
// none was found), plus the diagnostic note to attach when it is nil and
// the DataSource to attach to the node's metadata when it is not.
type abiResult struct {
	Interface *codec.Interface
	Note      string
	Source    models.DataSource
}

// resolveABI resolves (chainID, address)'s ABI: artifact cache first, then
// the explorer, then the bundled local fallback
// (internal/decoder/localabi.go). Never returns an error for "no ABI
// found" — that is encoded as abiResult.Note.
func (d *Decoder) resolveABI(ctx context.Context, chainID int64, address string, calldata []byte) (abiResult, error) {
	key := models.ArtifactKey{ChainID: chainID, Address: address, Kind: models.KindABI}

	if d.store != nil {
		if entry, ok := d.store.Get(key); ok {
			if entry.IsNegative() {
				return abiResult{Note: "ABI not available (unverified or failed fetch); cannot decode selector"}, nil
			}
			var abiJSON string
			if err := json.Unmarshal(entry.Payload, &abiJSON); err == nil && abiJSON != "" {
				iface, err := codec.NewInterface(abiJSON)
				if err == nil {
					return abiResult{Interface: iface, Source: models.DataSource{Kind: models.SourceEtherscanABI, ChainID: chainID, Address: address, Verified: true}}, nil
				}
			}
		}
	}

	if d.explorer != nil {
		abiJSON, reason, err := d.explorer.FetchABI(ctx, chainID, address)
		var authErr *explorer.AuthError
		if err != nil {
			if asAuthError(err, &authErr) {
				return abiResult{}, authErr
			}
			d.log.Warn().Err(err).Int64("chainId", chainID).Str("address", address).Msg("decoder: explorer ABI fetch failed, treating as absent")
		} else if abiJSON != "" {
			if d.store != nil {
				_ = d.store.PutPayload(key, abiJSON)
			}
			iface, ifaceErr := codec.NewInterface(abiJSON)
			if ifaceErr == nil {
				return abiResult{Interface: iface, Source: models.DataSource{Kind: models.SourceEtherscanABI, ChainID: chainID, Address: address, Verified: true}}, nil
			}
		} else if reason != "" {
			if d.store != nil {
				_ = d.store.PutNegative(key, store.NegativeReason(reason))
			}
		}
	}

	if len(calldata) >= 4 {
		if abiJSON, ok := resolveABIBySelector(hexSelector(calldata)); ok {
			iface, err := codec.NewInterface(abiJSON)
			if err == nil {
				return abiResult{Interface: iface, Source: models.DataSource{Kind: models.SourceLocalABI, Path: "internal/decoder/localabi.go"}}, nil
			}
		}
	}

	return abiResult{Note: "ABI not available (unverified or failed fetch); cannot decode selector"}, nil
}

// asAuthError is a small errors.As wrapper kept local to avoid importing
// "errors" into every call site in this file.
func asAuthError(err error, target **explorer.AuthError) bool {
	e, ok := err.(*explorer.AuthError)
	if !ok {
		return false
	}
	*target = e
	return true
}
