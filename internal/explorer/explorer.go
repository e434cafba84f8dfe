// Package explorer fetches ABIs, verified-contract names, address-tag
// info, and token pages from a per-chain verified-source service
// (Etherscan-family APIs), with rate-limit retry and capped backoff.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainsecurity/proposal-decoder/internal/models"
)

// Reason classifies why a fetch produced no data: two cacheable absences
// plus a transient one recovered internally.
type Reason string

const (
	ReasonUnsupportedChain    Reason = "unsupported_chain"
	ReasonUnverifiedOrMissing Reason = "unverified_or_missing"
	ReasonRateLimited         Reason = "rate_limited"
)

// AuthError is returned when the explorer rejects the configured API key
// outright. Halts the whole decode.
type AuthError struct {
	ChainID int64
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("explorer: invalid API key for chain %d", e.ChainID)
}

// AddressTagInfo is the tag service's curated data for one address.
type AddressTagInfo struct {
	NameTag          string   `json:"nameTag,omitempty"`
	Labels           []string `json:"labels,omitempty"`
	OtherAttributes  []string `json:"otherAttributes,omitempty"`
	URL              string   `json:"url,omitempty"`
	ShortDescription string   `json:"shortDescription,omitempty"`
	Notes            []string `json:"notes,omitempty"`
}

// TokenPage is scraped from the explorer's token page rather than a
// documented API (Etherscan's token metadata endpoint requires a paid
// tier; the HTML page does not).
type TokenPage struct {
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
	Decimals *int   `json:"decimals,omitempty"`
}

// Client fetches from per-chain verified-source services. Holds no mutable
// state beyond the API key.
type Client struct {
	httpClient *http.Client
	apiKey     string
	networks   map[int64]models.Network
	log        zerolog.Logger
}

// New builds an explorer Client. apiKey may be empty: calls still run, but
// Etherscan-family APIs rate-limit anonymous callers much more aggressively.
func New(networks map[int64]models.Network, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		networks:   networks,
		log:        log,
	}
}

// apiBaseURL derives the Etherscan-family API endpoint from a chain's
// explorer URL via the "api.<explorer-host>/api" convention rather than an
// exhaustive per-chain switch.
func (c *Client) apiBaseURL(chainID int64) (string, bool) {
	network, ok := c.networks[chainID]
	if !ok || network.Explorer == "" {
		return "", false
	}

	explorerURL := network.Explorer
	switch {
	case strings.Contains(explorerURL, "optimistic.etherscan.io"):
		return strings.Replace(explorerURL, "https://optimistic.", "https://api-optimistic.", 1) + "/api", true
	default:
		return strings.Replace(explorerURL, "https://", "https://api.", 1) + "/api", true
	}
}

// get performs one GET against the explorer API: up to three attempts,
// sleep 1s*attempt on a rate-limit signal, immediate return on
// unsupported-chain or unverified/missing.
func (c *Client) get(ctx context.Context, chainID int64, params url.Values) (json.RawMessage, Reason, error) {
	base, ok := c.apiBaseURL(chainID)
	if !ok {
		return nil, ReasonUnsupportedChain, nil
	}

	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		reqURL := base + "?" + params.Encode()
		c.log.Debug().Str("url", redactAPIKey(reqURL)).Int("attempt", attempt).Msg("explorer: fetching")

		raw, reason, err := c.doGet(ctx, reqURL, chainID)
		if err == nil && reason != ReasonRateLimited {
			return raw, reason, nil
		}
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				return nil, "", err
			}
			lastErr = err
		}
		if reason == ReasonRateLimited {
			c.log.Warn().Int64("chainId", chainID).Int("attempt", attempt).Msg("explorer: rate limited, backing off")
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
			continue
		}
		break
	}
	if lastErr != nil {
		return nil, "", fmt.Errorf("explorer: fetch failed after retries: %w", lastErr)
	}
	return nil, ReasonUnverifiedOrMissing, nil
}

func (c *Client) doGet(ctx context.Context, reqURL string, chainID int64) (json.RawMessage, Reason, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("explorer: building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("explorer: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ReasonRateLimited, nil
	}
	if resp.StatusCode >= 500 {
		return nil, ReasonRateLimited, fmt.Errorf("explorer: server error %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("explorer: reading response: %w", err)
	}

	var envelope struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "", fmt.Errorf("explorer: unmarshaling envelope: %w", err)
	}

	if isInvalidAPIKey(envelope.Result) {
		return nil, "", &AuthError{ChainID: chainID}
	}
	if isRateLimitMessage(envelope.Result) {
		return nil, ReasonRateLimited, nil
	}
	if envelope.Status != "1" {
		return envelope.Result, ReasonUnverifiedOrMissing, nil
	}
	return envelope.Result, "", nil
}

func isInvalidAPIKey(result json.RawMessage) bool {
	var s string
	_ = json.Unmarshal(result, &s)
	return strings.Contains(strings.ToLower(s), "invalid api key")
}

func isRateLimitMessage(result json.RawMessage) bool {
	var s string
	_ = json.Unmarshal(result, &s)
	lower := strings.ToLower(s)
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "max calls per sec")
}

func redactAPIKey(reqURL string) string {
	parsed, err := url.Parse(reqURL)
	if err != nil {
		return reqURL
	}
	q := parsed.Query()
	if q.Has("apikey") {
		q.Set("apikey", "REDACTED")
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

// FetchABI fetches a contract's ABI JSON. Returns ("", reason, nil) for a
// documented absence, or an error only for a genuine transport failure
// exhausted across retries.
func (c *Client) FetchABI(ctx context.Context, chainID int64, address string) (string, Reason, error) {
	params := url.Values{"module": {"contract"}, "action": {"getabi"}, "address": {address}}
	raw, reason, err := c.get(ctx, chainID, params)
	if err != nil || reason != "" {
		return "", reason, err
	}

	var abiJSON string
	if err := json.Unmarshal(raw, &abiJSON); err != nil || abiJSON == "" || abiJSON == "Contract source code not verified" {
		return "", ReasonUnverifiedOrMissing, nil
	}
	return abiJSON, "", nil
}

// FetchContractName fetches the verified contract's declared name, or ""
// with no reason set if the contract is unverified.
func (c *Client) FetchContractName(ctx context.Context, chainID int64, address string) (string, error) {
	params := url.Values{"module": {"contract"}, "action": {"getsourcecode"}, "address": {address}}
	raw, reason, err := c.get(ctx, chainID, params)
	if err != nil {
		return "", err
	}
	if reason != "" {
		return "", nil
	}

	var results []struct {
		ContractName string `json:"ContractName"`
	}
	if err := json.Unmarshal(raw, &results); err != nil || len(results) == 0 {
		return "", nil
	}
	return results[0].ContractName, nil
}

// FetchAddressTagInfo fetches the explorer's curated label/tag data for an
// address. Etherscan's address-tag data is not exposed by a documented
// public API; this uses the same "getsourcecode" verified-contract result
// as a stand-in tag source, with the contract name surfaced as a CN:
// attribute.
func (c *Client) FetchAddressTagInfo(ctx context.Context, chainID int64, address string) (*AddressTagInfo, error) {
	params := url.Values{"module": {"contract"}, "action": {"getsourcecode"}, "address": {address}}
	raw, reason, err := c.get(ctx, chainID, params)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return nil, nil
	}

	var results []struct {
		ContractName    string `json:"ContractName"`
		Proxy           string `json:"Proxy"`
		Implementation  string `json:"Implementation"`
		CompilerVersion string `json:"CompilerVersion"`
	}
	if err := json.Unmarshal(raw, &results); err != nil || len(results) == 0 {
		return nil, nil
	}
	r := results[0]
	info := &AddressTagInfo{}
	if r.ContractName != "" {
		info.OtherAttributes = append(info.OtherAttributes, "CN:"+r.ContractName)
	}
	return info, nil
}

// FetchTokenPage scrapes the explorer's token page for symbol/name/decimals.
// Tries several parse strategies in order: an embedded
// structured-data block, the HTML <title>, then an explicit page variable.
func (c *Client) FetchTokenPage(ctx context.Context, chainID int64, address string) (*TokenPage, error) {
	network, ok := c.networks[chainID]
	if !ok || network.Explorer == "" {
		return nil, nil
	}

	pageURL := fmt.Sprintf("%s/token/%s", network.Explorer, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("explorer: building token page request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer: fetching token page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("explorer: reading token page: %w", err)
	}
	html := string(body)

	if page := parseTokenStructuredData(html); page != nil {
		return page, nil
	}
	if page := parseTokenTitle(html); page != nil {
		return page, nil
	}
	if page := parseTokenPageVariable(html); page != nil {
		return page, nil
	}
	return nil, nil
}

func parseTokenStructuredData(html string) *TokenPage {
	start := strings.Index(html, `"@type":"FinancialProduct"`)
	if start < 0 {
		return nil
	}
	name := extractBetween(html[start:], `"name":"`, `"`)
	if name == "" {
		return nil
	}
	return &TokenPage{Name: name}
}

func parseTokenTitle(html string) *TokenPage {
	title := extractBetween(html, "<title>", "</title>")
	if title == "" {
		return nil
	}
	// Common explorer title form: "Name (SYMBOL) Token Tracker | Etherscan"
	openParen := strings.Index(title, "(")
	closeParen := strings.Index(title, ")")
	if openParen < 0 || closeParen < 0 || closeParen < openParen {
		return nil
	}
	name := strings.TrimSpace(title[:openParen])
	symbol := strings.TrimSpace(title[openParen+1 : closeParen])
	if name == "" || symbol == "" {
		return nil
	}
	return &TokenPage{Name: name, Symbol: symbol}
}

func parseTokenPageVariable(html string) *TokenPage {
	symbol := extractBetween(html, `tokenSymbol = "`, `"`)
	decimalsStr := extractBetween(html, `tokenDecimals = "`, `"`)
	if symbol == "" && decimalsStr == "" {
		return nil
	}
	page := &TokenPage{Symbol: symbol}
	if decimalsStr != "" {
		if d, err := strconv.Atoi(decimalsStr); err == nil {
			page.Decimals = &d
		}
	}
	return page
}

func extractBetween(s, start, end string) string {
	startIdx := strings.Index(s, start)
	if startIdx < 0 {
		return ""
	}
	startIdx += len(start)
	endIdx := strings.Index(s[startIdx:], end)
	if endIdx < 0 {
		return ""
	}
	return s[startIdx : startIdx+endIdx]
}
