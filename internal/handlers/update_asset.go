package handlers

import (
	"context"
	"fmt"
	"math/big"

	goabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsecurity/proposal-decoder/internal/codec"
	"github.com/chainsecurity/proposal-decoder/internal/metadata"
	"github.com/chainsecurity/proposal-decoder/internal/models"
	"github.com/chainsecurity/proposal-decoder/internal/rpcclient"
)

const updateAssetSignature = "updateAsset(address,(address,address,uint8,uint64,uint64,uint64,uint128))"

const getAssetInfoByAddressABI = `[{"type":"function","name":"getAssetInfoByAddress","stateMutability":"view","inputs":[{"name":"asset","type":"address"}],"outputs":[{"name":"","type":"tuple","components":[
  {"name":"offset","type":"uint8"},
  {"name":"asset","type":"address"},
  {"name":"priceFeed","type":"address"},
  {"name":"scale","type":"uint64"},
  {"name":"borrowCollateralFactor","type":"uint64"},
  {"name":"liquidateCollateralFactor","type":"uint64"},
  {"name":"liquidationFactor","type":"uint64"},
  {"name":"supplyCap","type":"uint128"}
]}]}]`

// newAssetConfig mirrors Configurator.AssetConfig's field order and the Go
// types go-ethereum's abi package maps each component to (uint8/uint64
// native, uint128 as *big.Int). Declared so the decoded tuple — which
// Unpack returns as an anonymous reflect-built struct — can be converted
// into a named type via abi.ConvertType, rather than guessed at by field
// index.
type newAssetConfig struct {
	Asset                     common.Address
	PriceFeed                 common.Address
	Decimals                  uint8
	BorrowCollateralFactor    uint64
	LiquidateCollateralFactor uint64
	LiquidationFactor         uint64
	SupplyCap                 *big.Int
}

// currentAssetInfo mirrors Comet.getAssetInfoByAddress's AssetInfo return
// tuple, used as the on-chain ground truth updateAsset is compared against.
type currentAssetInfo struct {
	Offset                    uint8
	Asset                     common.Address
	PriceFeed                 common.Address
	Scale                     uint64
	BorrowCollateralFactor    uint64
	LiquidateCollateralFactor uint64
	LiquidationFactor         uint64
	SupplyCap                 *big.Int
}

// UpdateAssetHandler emits the "Asset Config: <symbol>" insight: one row
// per field formatted as "old -> new" when changed, "new (unchanged)"
// otherwise, plus an explicit warning row when supplyCap is zero.
type UpdateAssetHandler struct {
	chainRPC map[int64]*rpcclient.Client
	meta     *metadata.Resolver
}

func NewUpdateAssetHandler(chainRPC map[int64]*rpcclient.Client, meta *metadata.Resolver) *UpdateAssetHandler {
	return &UpdateAssetHandler{chainRPC: chainRPC, meta: meta}
}

func (h *UpdateAssetHandler) Name() string { return "insight:update_asset" }

func (h *UpdateAssetHandler) Match(_ context.Context, hctx *models.HandlerContext) bool {
	return hctx.Parsed != nil && hctx.Parsed.Name == "updateAsset"
}

func (h *UpdateAssetHandler) Expand(ctx context.Context, hctx *models.HandlerContext) (Expansion, error) {
	iface, err := codec.NewInterface(fmt.Sprintf(`[{"type":"function","name":"updateAsset","inputs":[{"name":"cometProxy","type":"address"},{"name":"assetConfig","type":"tuple","components":[
		{"name":"asset","type":"address"},{"name":"priceFeed","type":"address"},{"name":"decimals","type":"uint8"},
		{"name":"borrowCollateralFactor","type":"uint64"},{"name":"liquidateCollateralFactor","type":"uint64"},
		{"name":"liquidationFactor","type":"uint64"},{"name":"supplyCap","type":"uint128"}]}]}]`))
	if err != nil {
		return Expansion{}, fmt.Errorf("insight:update_asset: building interface: %w", err)
	}
	decoded, ok := codec.DecodeCall(iface, hctx.RawCalldata, false)
	if !ok || len(decoded.Args) < 2 {
		return Expansion{}, fmt.Errorf("insight:update_asset: calldata did not match %s", updateAssetSignature)
	}
	cometProxy, ok := decoded.Args[0].(common.Address)
	if !ok {
		return Expansion{}, fmt.Errorf("insight:update_asset: cometProxy argument is not an address")
	}

	var newConfig newAssetConfig
	if converted := goabi.ConvertType(decoded.Args[1], new(newAssetConfig)); converted != nil {
		if ptr, ok := converted.(*newAssetConfig); ok {
			newConfig = *ptr
		}
	}
	if newConfig.SupplyCap == nil {
		return Expansion{}, fmt.Errorf("insight:update_asset: assetConfig did not decode as expected")
	}

	symbol := newConfig.Asset.Hex()
	symbolVerified := false
	if h.meta != nil {
		am := h.meta.Resolve(ctx, hctx.ChainID, newConfig.Asset.Hex())
		if am.TokenSymbol != "" {
			symbol = am.TokenSymbol
			if src, ok := am.Sources["tokenSymbol"]; ok {
				symbolVerified = src.Kind == models.SourceStaticMetadata || src.Kind == models.SourceExternalAPI
			}
		}
	}

	current := h.fetchCurrentConfig(ctx, hctx.ChainID, cometProxy, newConfig.Asset)

	rows := []struct {
		label string
		newV  any
		oldV  any
	}{
		{"asset", newConfig.Asset.Hex(), nil},
		{"priceFeed", newConfig.PriceFeed.Hex(), nil},
		{"decimals", newConfig.Decimals, nil},
		{"borrowCollateralFactor", newConfig.BorrowCollateralFactor, nil},
		{"liquidateCollateralFactor", newConfig.LiquidateCollateralFactor, nil},
		{"liquidationFactor", newConfig.LiquidationFactor, nil},
		{"supplyCap", newConfig.SupplyCap.String(), nil},
	}
	if current != nil {
		rows[0].oldV = current.Asset.Hex()
		rows[1].oldV = current.PriceFeed.Hex()
		// getAssetInfoByAddress reports scale (10^decimals), not the
		// exponent updateAsset carries; convert before comparing.
		if decimals, ok := decimalsFromScale(current.Scale); ok {
			rows[2].oldV = decimals
		}
		rows[3].oldV = current.BorrowCollateralFactor
		rows[4].oldV = current.LiquidateCollateralFactor
		rows[5].oldV = current.LiquidationFactor
		rows[6].oldV = current.SupplyCap.String()
	}

	entries := make([]models.InsightEntry, 0, len(rows)+2)
	for _, row := range rows {
		var value string
		if row.oldV != nil && fmt.Sprint(row.oldV) != fmt.Sprint(row.newV) {
			value = fmt.Sprintf("%v -> %v", row.oldV, row.newV)
		} else {
			value = fmt.Sprintf("%v (unchanged)", row.newV)
		}
		entries = append(entries, models.InsightEntry{Label: row.label, Value: value})
	}

	if newConfig.SupplyCap.Sign() == 0 {
		entries = append(entries, models.InsightEntry{
			Label:   "⚠️ WARNING",
			Value:   "supply cap set to zero — asset effectively cannot be supplied",
			Warning: true,
		})
	}
	if !symbolVerified {
		entries = append(entries, models.InsightEntry{
			Label:   "⚠️ WARNING",
			Value:   "asset symbol could only be obtained from an unverified source (on-chain symbol() or explorer contract name)",
			Warning: true,
		})
	}

	insight := models.CallInsight{
		Title:         fmt.Sprintf("Asset Config: %s", symbol),
		Entries:       entries,
		HandlerSource: h.Name(),
	}
	return Expansion{Insights: []models.CallInsight{insight}}, nil
}

// decimalsFromScale inverts Comet's scale = 10^decimals. Returns false for
// a scale that is not an exact power of ten, leaving the row without an
// old value rather than comparing incommensurable numbers.
func decimalsFromScale(scale uint64) (uint8, bool) {
	if scale == 0 {
		return 0, false
	}
	var decimals uint8
	for scale%10 == 0 {
		scale /= 10
		decimals++
	}
	if scale != 1 {
		return 0, false
	}
	return decimals, true
}

// fetchCurrentConfig calls Comet.getAssetInfoByAddress(asset) on cometProxy
// to get the on-chain ground truth, returning nil (not an error) if the
// call fails.
func (h *UpdateAssetHandler) fetchCurrentConfig(ctx context.Context, chainID int64, cometProxy, asset common.Address) *currentAssetInfo {
	client, ok := h.chainRPC[chainID]
	if !ok || !client.HasRPC() {
		return nil
	}

	iface, err := codec.NewInterface(getAssetInfoByAddressABI)
	if err != nil {
		return nil
	}
	data, err := codec.EncodeCall(iface, "getAssetInfoByAddress", asset)
	if err != nil {
		return nil
	}
	result, err := client.EthCall(ctx, cometProxy, data)
	if err != nil || len(result) == 0 {
		return nil
	}
	method, err := iface.ABI.MethodById(data[:4])
	if err != nil {
		return nil
	}
	values, err := method.Outputs.Unpack(result)
	if err != nil || len(values) == 0 {
		return nil
	}

	converted := goabi.ConvertType(values[0], new(currentAssetInfo))
	info, ok := converted.(*currentAssetInfo)
	if !ok {
		return nil
	}
	return info
}
