package explorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsecurity/proposal-decoder/internal/models"
)

// newTestClient points chain 999 at an httptest server. apiBaseURL only
// rewrites an "https://" prefix to "https://api."; httptest serves plain
// "http://", so the rewrite is a no-op and the base URL is exactly
// "<server>/api" — no scheme trickery needed.
func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	networks := map[int64]models.Network{
		999: {ID: 999, Name: "test", Explorer: srv.URL},
	}
	return New(networks, "", zerolog.Nop())
}

func TestFetchABIReturnsParsedJSONOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "1", "message": "OK", "result": `[{"type":"function","name":"transfer"}]`})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	abiJSON, reason, err := c.FetchABI(context.Background(), 999, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Empty(t, reason)
	assert.Contains(t, abiJSON, "transfer")
}

func TestFetchABIUnverifiedReturnsNegativeReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "0", "message": "NOTOK", "result": "Contract source code not verified"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	abiJSON, reason, err := c.FetchABI(context.Background(), 999, "0x2222222222222222222222222222222222222222")
	require.NoError(t, err)
	assert.Empty(t, abiJSON)
	assert.Equal(t, ReasonUnverifiedOrMissing, reason)
}

func TestFetchABIUnsupportedChainReturnsImmediately(t *testing.T) {
	c := New(map[int64]models.Network{}, "", zerolog.Nop())
	abiJSON, reason, err := c.FetchABI(context.Background(), 42, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Empty(t, abiJSON)
	assert.Equal(t, ReasonUnsupportedChain, reason)
}

func TestFetchABIInvalidAPIKeyHalts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "0", "message": "NOTOK", "result": "Invalid API Key"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, _, err := c.FetchABI(context.Background(), 999, "0x1111111111111111111111111111111111111111")
	require.Error(t, err)
	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestFetchABIRetriesOnRateLimitThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "1", "message": "OK", "result": `[{"type":"function","name":"approve"}]`})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	abiJSON, reason, err := c.FetchABI(context.Background(), 999, "0x3333333333333333333333333333333333333333")
	require.NoError(t, err)
	assert.Empty(t, reason)
	assert.Contains(t, abiJSON, "approve")
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestFetchContractNameReturnsVerifiedName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "1",
			"message": "OK",
			"result":  []map[string]string{{"ContractName": "Comet"}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	name, err := c.FetchContractName(context.Background(), 999, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, "Comet", name)
}

func TestParseTokenTitleExtractsSymbolAndName(t *testing.T) {
	page := parseTokenTitle(`<html><head><title>USD Coin (USDC) Token Tracker | Etherscan</title></head></html>`)
	require.NotNil(t, page)
	assert.Equal(t, "USD Coin", page.Name)
	assert.Equal(t, "USDC", page.Symbol)
}

func TestParseTokenPageVariableExtractsSymbolAndDecimals(t *testing.T) {
	page := parseTokenPageVariable(`var tokenSymbol = "USDC"; var tokenDecimals = "6";`)
	require.NotNil(t, page)
	assert.Equal(t, "USDC", page.Symbol)
	require.NotNil(t, page.Decimals)
	assert.Equal(t, 6, *page.Decimals)
}
