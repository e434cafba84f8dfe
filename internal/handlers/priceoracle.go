package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// PriceOracle supplies a reference USD price for a token contract, used by
// the price-feed insight handler to flag on-chain oracle readings that
// diverge from an independent source.
type PriceOracle interface {
	ReferenceUSDPrice(ctx context.Context, chainID int64, contractAddress string) (float64, bool)
}

// networkSlugs is the chain-id to Coingecko platform slug fallback table,
// consulted when no per-chain env override is set.
var networkSlugs = map[int64]string{
	1:     "ethereum",
	137:   "polygon-pos",
	56:    "binance-smart-chain",
	43114: "avalanche",
	250:   "fantom",
	42161: "arbitrum-one",
	10:    "optimistic-ethereum",
	8453:  "base",
	25:    "cronos",
}

func networkSlug(chainID int64) (string, bool) {
	envKey := fmt.Sprintf("COINGECKO_NETWORK_SLUG_CHAIN_%d", chainID)
	if slug := os.Getenv(envKey); slug != "" {
		return slug, true
	}
	slug, ok := networkSlugs[chainID]
	return slug, ok
}

// CoingeckoOracle fetches simple token prices from Coingecko's
// /simple/token_price endpoint.
type CoingeckoOracle struct {
	httpClient *http.Client
	apiKey     string
}

func NewCoingeckoOracle() *CoingeckoOracle {
	return &CoingeckoOracle{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     os.Getenv("COINGECKO_API_KEY"),
	}
}

func (o *CoingeckoOracle) ReferenceUSDPrice(ctx context.Context, chainID int64, contractAddress string) (float64, bool) {
	slug, ok := networkSlug(chainID)
	if !ok {
		return 0, false
	}

	url := fmt.Sprintf("https://api.coingecko.com/api/v3/simple/token_price/%s?contract_addresses=%s&vs_currencies=usd",
		slug, strings.ToLower(contractAddress))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false
	}
	if o.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", o.apiKey)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, false
	}

	var parsed map[string]map[string]float64
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, false
	}
	entry, ok := parsed[strings.ToLower(contractAddress)]
	if !ok {
		return 0, false
	}
	price, ok := entry["usd"]
	return price, ok
}
