package handlers

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsecurity/proposal-decoder/internal/codec"
	"github.com/chainsecurity/proposal-decoder/internal/models"
)

func encodeUpdateAssetCalldata(t *testing.T, cometProxy common.Address, cfg newAssetConfig) []byte {
	t.Helper()
	iface, err := codec.NewInterface(`[{"type":"function","name":"updateAsset","inputs":[{"name":"cometProxy","type":"address"},{"name":"assetConfig","type":"tuple","components":[
		{"name":"asset","type":"address"},{"name":"priceFeed","type":"address"},{"name":"decimals","type":"uint8"},
		{"name":"borrowCollateralFactor","type":"uint64"},{"name":"liquidateCollateralFactor","type":"uint64"},
		{"name":"liquidationFactor","type":"uint64"},{"name":"supplyCap","type":"uint128"}]}]}]`)
	require.NoError(t, err)

	calldata, err := codec.EncodeCall(iface, "updateAsset", cometProxy, cfg)
	require.NoError(t, err)
	return calldata
}

func TestUpdateAssetHandlerWarnsOnZeroSupplyCap(t *testing.T) {
	h := NewUpdateAssetHandler(nil, nil)

	cometProxy := common.HexToAddress("0x3333333333333333333333333333333333333333")
	asset := common.HexToAddress("0x4444444444444444444444444444444444444444")
	calldata := encodeUpdateAssetCalldata(t, cometProxy, newAssetConfig{
		Asset:                     asset,
		PriceFeed:                 common.HexToAddress("0x5555555555555555555555555555555555555555"),
		Decimals:                  8,
		BorrowCollateralFactor:    700000000000000000,
		LiquidateCollateralFactor: 750000000000000000,
		LiquidationFactor:         850000000000000000,
		SupplyCap:                 big.NewInt(0),
	})

	hctx := &models.HandlerContext{
		ChainID:     1,
		Target:      cometProxy.Hex(),
		RawCalldata: calldata,
		Parsed:      &models.ParsedCall{Name: "updateAsset"},
	}
	require.True(t, h.Match(context.Background(), hctx))

	exp, err := h.Expand(context.Background(), hctx)
	require.NoError(t, err)
	require.Len(t, exp.Insights, 1)

	insight := exp.Insights[0]
	assert.Equal(t, "Asset Config: "+asset.Hex(), insight.Title)

	var sawSupplyCapWarning, sawSymbolWarning bool
	for _, e := range insight.Entries {
		if e.Warning && e.Label == "⚠️ WARNING" {
			if assert.NotEmpty(t, e.Value) {
				if e.Value[:10] == "supply cap" {
					sawSupplyCapWarning = true
				} else {
					sawSymbolWarning = true
				}
			}
		}
	}
	assert.True(t, sawSupplyCapWarning, "expected a zero supply cap warning row")
	assert.True(t, sawSymbolWarning, "expected an unverified-symbol warning row since meta is nil")
}

func TestUpdateAssetHandlerDoesNotMatchOtherSelectors(t *testing.T) {
	h := NewUpdateAssetHandler(nil, nil)
	hctx := &models.HandlerContext{Parsed: &models.ParsedCall{Name: "transfer"}}
	assert.False(t, h.Match(context.Background(), hctx))
}

func TestDecimalsFromScale(t *testing.T) {
	d, ok := decimalsFromScale(1)
	require.True(t, ok)
	assert.Equal(t, uint8(0), d)

	d, ok = decimalsFromScale(1000000)
	require.True(t, ok)
	assert.Equal(t, uint8(6), d)

	d, ok = decimalsFromScale(1000000000000000000)
	require.True(t, ok)
	assert.Equal(t, uint8(18), d)

	_, ok = decimalsFromScale(0)
	assert.False(t, ok)
	_, ok = decimalsFromScale(25)
	assert.False(t, ok)
}
