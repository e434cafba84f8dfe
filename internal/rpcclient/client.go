// Package rpcclient is the raw per-chain JSON-RPC client the rest of the
// decoder probes on-chain state through: eth_call, eth_getCode,
// eth_getStorageAt, and ENS name resolution. Kept as a raw JSON-RPC client
// rather than go-ethereum's ethclient.Client because proxy resolution
// needs eth_getStorageAt alongside plain eth_call probes without
// the heavier client's connection-pool assumptions.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsecurity/proposal-decoder/internal/models"
)

// Client is a raw JSON-RPC client bound to one chain's RPC endpoint.
type Client struct {
	httpClient *http.Client
	network    models.Network
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonRPCError   `json:"error"`
	ID      int             `json:"id"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// New builds a Client for network. A network with an empty RPCUrl is still
// constructed — callers check HasRPC and treat the chain as having no
// on-chain probes available, rather than failing the decode.
func New(network models.Network) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		network:    network,
	}
}

// HasRPC reports whether this client can actually reach a node.
func (c *Client) HasRPC() bool {
	return c.network.RPCUrl != ""
}

// Network returns the chain this client is bound to.
func (c *Client) Network() models.Network {
	return c.network
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.network.RPCUrl == "" {
		return nil, fmt.Errorf("rpcclient: no RPC endpoint configured for chain %d", c.network.ID)
	}

	req := jsonRPCRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: marshaling %s request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.network.RPCUrl, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rpcclient: building %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: %s request to chain %d: %w", method, c.network.ID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: reading %s response: %w", method, err)
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, fmt.Errorf("rpcclient: unmarshaling %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpcclient: %s RPC error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// EthCall performs eth_call against to with calldata, at the latest block.
func (c *Client) EthCall(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	params := []any{
		map[string]any{
			"to":   to.Hex(),
			"data": "0x" + common.Bytes2Hex(data),
		},
		"latest",
	}
	result, err := c.call(ctx, "eth_call", params)
	if err != nil {
		return nil, err
	}
	return decodeHexResult(result)
}

// EthCallAt performs eth_call at a specific block number or tag.
func (c *Client) EthCallAt(ctx context.Context, to common.Address, data []byte, block string) ([]byte, error) {
	params := []any{
		map[string]any{
			"to":   to.Hex(),
			"data": "0x" + common.Bytes2Hex(data),
		},
		block,
	}
	result, err := c.call(ctx, "eth_call", params)
	if err != nil {
		return nil, err
	}
	return decodeHexResult(result)
}

// GetCode fetches the deployed bytecode at address, used by the EIP-1167
// minimal-proxy detection scheme.
func (c *Client) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	result, err := c.call(ctx, "eth_getCode", []string{address.Hex(), "latest"})
	if err != nil {
		return nil, err
	}
	return decodeHexResult(result)
}

// GetStorageAt reads one 32-byte storage slot, used by the EIP-1967
// direct/beacon, legacy OZ and EIP-1822 detection schemes.
func (c *Client) GetStorageAt(ctx context.Context, address common.Address, slot common.Hash) (common.Hash, error) {
	result, err := c.call(ctx, "eth_getStorageAt", []string{address.Hex(), slot.Hex(), "latest"})
	if err != nil {
		return common.Hash{}, err
	}
	raw, err := decodeHexResult(result)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(raw), nil
}

// BlockNumber returns the current block height, used to bound historical
// lookups for oracle ratio comparisons.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "eth_blockNumber", []any{})
	if err != nil {
		return 0, err
	}
	var hexStr string
	if err := json.Unmarshal(result, &hexStr); err != nil {
		return 0, fmt.Errorf("rpcclient: unmarshaling block number: %w", err)
	}
	n, ok := new(big.Int).SetString(trimHexPrefix(hexStr), 16)
	if !ok {
		return 0, fmt.Errorf("rpcclient: malformed block number %q", hexStr)
	}
	return n.Uint64(), nil
}

func decodeHexResult(result json.RawMessage) ([]byte, error) {
	var hexStr string
	if err := json.Unmarshal(result, &hexStr); err != nil {
		return nil, fmt.Errorf("rpcclient: unmarshaling hex result: %w", err)
	}
	if hexStr == "" || hexStr == "0x" {
		return []byte{}, nil
	}
	return common.FromHex(hexStr), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
