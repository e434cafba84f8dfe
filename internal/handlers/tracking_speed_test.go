package handlers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsecurity/proposal-decoder/internal/codec"
	"github.com/chainsecurity/proposal-decoder/internal/models"
	"github.com/chainsecurity/proposal-decoder/internal/rpcclient"
)

// newTrackingRPC serves eth_call by selector: trackingIndexScale() answers
// with a native-width uint64 word, the speed getters with a uint104 word.
func newTrackingRPC(t *testing.T, scale, currentSpeed uint64) *rpcclient.Client {
	t.Helper()

	scaleSel := codec.Selector("trackingIndexScale()")
	answers := map[string]uint64{
		hex.EncodeToString(scaleSel[:]): scale,
	}
	for _, getter := range []string{"baseTrackingSupplySpeed()", "baseTrackingBorrowSpeed()"} {
		sel := codec.Selector(getter)
		answers[hex.EncodeToString(sel[:])] = currentSpeed
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var call struct {
			Data string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(req.Params[0], &call))

		selector := strings.TrimPrefix(call.Data, "0x")[:8]
		value, ok := answers[selector]
		require.True(t, ok, "unexpected selector %s", selector)

		word := make([]byte, 32)
		new(big.Int).SetUint64(value).FillBytes(word)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  "0x" + hex.EncodeToString(word),
		})
	}))
	t.Cleanup(srv.Close)

	return rpcclient.New(models.Network{ID: 1, Name: "test", RPCUrl: srv.URL})
}

func TestTrackingSpeedHandlerEmitsPerDayFigures(t *testing.T) {
	// Comet's trackingIndexScale is 1e15; a speed of 11574074074074 per
	// second works out to 1,000.000000 per day at that scale.
	client := newTrackingRPC(t, 1_000_000_000_000_000, 5_787_037_037_037)
	h := NewTrackingSpeedHandler(map[int64]*rpcclient.Client{1: client}, "setBaseTrackingSupplySpeed")

	hctx := &models.HandlerContext{
		ChainID: 1,
		Parsed: &models.ParsedCall{
			Name: "setBaseTrackingSupplySpeed",
			Args: []any{
				common.HexToAddress("0xc3d688B66703497DAA19211EEdff47f25384cdc3"),
				big.NewInt(11_574_074_074_074),
			},
		},
	}
	require.True(t, h.Match(context.Background(), hctx))

	exp, err := h.Expand(context.Background(), hctx)
	require.NoError(t, err)
	require.Len(t, exp.Insights, 1)

	var labels []string
	for _, e := range exp.Insights[0].Entries {
		labels = append(labels, e.Label)
	}
	assert.Contains(t, labels, "New Speed (per day)")
	assert.Contains(t, labels, "Speed Change")
	assert.NotContains(t, labels, "New Speed (raw)")
}
