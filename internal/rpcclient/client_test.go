package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsecurity/proposal-decoder/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(models.Network{ID: 1, Name: "test", RPCUrl: srv.URL})
}

func jsonRPCResult(t *testing.T, w http.ResponseWriter, result string) {
	t.Helper()
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result":  result,
	})
}

func TestEthCallReturnsDecodedBytes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonRPCResult(t, w, "0x000000000000000000000000000000000000000000000000000000000000002a")
	})

	out, err := c.EthCall(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"), []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, byte(0x2a), out[len(out)-1])
}

func TestGetCodeEmptyResultReturnsEmptySlice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonRPCResult(t, w, "0x")
	})

	code, err := c.GetCode(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"))
	require.NoError(t, err)
	assert.Empty(t, code)
}

func TestGetStorageAtDecodesHashSlot(t *testing.T) {
	want := common.HexToHash("0x0000000000000000000000001234567890123456789012345678901234567890"[:66])
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonRPCResult(t, w, want.Hex())
	})

	got, err := c.GetStorageAt(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"), common.Hash{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBlockNumberParsesHex(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonRPCResult(t, w, "0x10")
	})

	n, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(16), n)
}

func TestCallPropagatesRPCError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": -32000, "message": "execution reverted"},
		})
	})

	_, err := c.EthCall(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution reverted")
}

func TestHasRPCReflectsNetworkConfig(t *testing.T) {
	withRPC := New(models.Network{ID: 1, RPCUrl: "http://localhost:8545"})
	assert.True(t, withRPC.HasRPC())

	withoutRPC := New(models.Network{ID: 1})
	assert.False(t, withoutRPC.HasRPC())
}
