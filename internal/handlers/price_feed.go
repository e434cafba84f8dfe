package handlers

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsecurity/proposal-decoder/internal/codec"
	"github.com/chainsecurity/proposal-decoder/internal/models"
	"github.com/chainsecurity/proposal-decoder/internal/rpcclient"
)

// priceFeedDeviationThreshold is the divergence between an on-chain
// oracle reading and the reference USD price above which a warning row is
// emitted.
const priceFeedDeviationThreshold = 0.05

// priceFeedInterfaceJSON covers the three Chainlink-style aggregator views
// this handler reads: description(), latestRoundData(), decimals(), plus
// the optional historical-ratio trio some oracles additionally expose.
const priceFeedInterfaceJSON = `[
  {"type":"function","name":"description","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"latestRoundData","stateMutability":"view","inputs":[],"outputs":[
    {"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},{"name":"startedAt","type":"uint256"},
    {"name":"updatedAt","type":"uint256"},{"name":"answeredInRound","type":"uint80"}]},
  {"type":"function","name":"snapshotRatio","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"snapshotTimestamp","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"ratioProvider","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"getCurrentRatio","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// PriceFeedHandler is the updateAssetPriceFeed / setBaseTokenPriceFeed
// insight handler: it reads the replacement feed's
// description(), reads its current price via latestRoundData()/decimals(),
// and compares that price to an independent reference. The description is
// shown verbatim; its "X / Y" denominator is not parsed or used.
type PriceFeedHandler struct {
	chainRPC     map[int64]*rpcclient.Client
	oracle       PriceOracle
	functionName string
	feedArgIndex int
}

func NewPriceFeedHandler(chainRPC map[int64]*rpcclient.Client, oracle PriceOracle, functionName string, feedArgIndex int) *PriceFeedHandler {
	return &PriceFeedHandler{chainRPC: chainRPC, oracle: oracle, functionName: functionName, feedArgIndex: feedArgIndex}
}

func (h *PriceFeedHandler) Name() string { return "insight:" + h.functionName }

func (h *PriceFeedHandler) Match(_ context.Context, hctx *models.HandlerContext) bool {
	return hctx.Parsed != nil && hctx.Parsed.Name == h.functionName
}

func (h *PriceFeedHandler) Expand(ctx context.Context, hctx *models.HandlerContext) (Expansion, error) {
	if h.feedArgIndex >= len(hctx.Parsed.Args) {
		return Expansion{}, fmt.Errorf("insight:%s: too few arguments for feed index %d", h.functionName, h.feedArgIndex)
	}
	feedAddr, ok := hctx.Parsed.Args[h.feedArgIndex].(common.Address)
	if !ok {
		return Expansion{}, fmt.Errorf("insight:%s: argument %d is not an address", h.functionName, h.feedArgIndex)
	}

	client, hasRPC := h.chainRPC[hctx.ChainID]
	if !hasRPC || !client.HasRPC() {
		return Expansion{}, fmt.Errorf("insight:%s: no RPC client configured for chain %d", h.functionName, hctx.ChainID)
	}

	iface, err := codec.NewInterface(priceFeedInterfaceJSON)
	if err != nil {
		return Expansion{}, fmt.Errorf("insight:%s: building interface: %w", h.functionName, err)
	}

	entries := make([]models.InsightEntry, 0, 6)

	description, _ := h.callString(ctx, client, iface, feedAddr, "description")
	entries = append(entries, models.InsightEntry{Label: "Feed", Value: feedAddr.Hex()})
	if description != "" {
		entries = append(entries, models.InsightEntry{Label: "Description", Value: description})
	}

	decimals, decOK := h.callUint8(ctx, client, iface, feedAddr, "decimals")
	answer, answerOK := h.callLatestAnswer(ctx, client, iface, feedAddr)

	var price float64
	priceOK := false
	if decOK && answerOK {
		price = scaleToFloat(answer, decimals)
		priceOK = true
		entries = append(entries, models.InsightEntry{Label: "Oracle Price", Value: fmt.Sprintf("≈ %.2f", price)})
	}

	if priceOK && h.oracle != nil {
		tokenAddr := h.referenceTokenAddress(description, feedAddr)
		if ref, ok := h.oracle.ReferenceUSDPrice(ctx, hctx.ChainID, tokenAddr); ok && ref > 0 {
			deviation := (price - ref) / ref
			if deviation < 0 {
				deviation = -deviation
			}
			row := models.InsightEntry{
				Label: "Price Deviation",
				Value: fmt.Sprintf("oracle %.4f vs reference %.4f (%.2f%%)", price, ref, deviation*100),
			}
			if deviation > priceFeedDeviationThreshold {
				row.Warning = true
				row.Label = "⚠️ Price Deviation"
			}
			entries = append(entries, row)
		}
	}

	// Some historical-ratio oracles (e.g. LST/ETH feeds) additionally expose
	// snapshotRatio/snapshotTimestamp/ratioProvider; best-effort, never fatal.
	if ratio, ok := h.callUint256(ctx, client, iface, feedAddr, "snapshotRatio"); ok {
		entries = append(entries, models.InsightEntry{Label: "Snapshot Ratio", Value: ratio.String()})
		if providerAddr, ok := h.callAddress(ctx, client, iface, feedAddr, "ratioProvider"); ok {
			if current, ok := h.callUint256(ctx, client, iface, providerAddr, "getCurrentRatio"); ok {
				row := models.InsightEntry{
					Label: "Ratio Provider Match",
					Value: fmt.Sprintf("snapshot %s vs provider %s", ratio.String(), current.String()),
				}
				if ratio.Cmp(current) != 0 {
					row.Warning = true
					row.Label = "⚠️ Ratio Provider Mismatch"
				}
				entries = append(entries, row)
			}
		}
	}

	insight := models.CallInsight{
		Title:         fmt.Sprintf("Price Feed Update: %s", h.functionName),
		Entries:       entries,
		HandlerSource: h.Name(),
	}
	return Expansion{Insights: []models.CallInsight{insight}}, nil
}

// referenceTokenAddress has no reliable way to recover a token contract
// address from a feed's "X / Y" description alone; callers without a
// dedicated lookup fall back to the feed address itself, which works for
// oracles Coingecko indexes directly and degrades to a miss otherwise.
func (h *PriceFeedHandler) referenceTokenAddress(description string, feed common.Address) string {
	_ = strings.Split(description, "/")
	return feed.Hex()
}

func (h *PriceFeedHandler) callString(ctx context.Context, client *rpcclient.Client, iface *codec.Interface, target common.Address, method string) (string, bool) {
	out, ok := h.call(ctx, client, iface, target, method)
	if !ok || len(out) == 0 {
		return "", false
	}
	s, ok := out[0].(string)
	return s, ok
}

func (h *PriceFeedHandler) callUint8(ctx context.Context, client *rpcclient.Client, iface *codec.Interface, target common.Address, method string) (uint8, bool) {
	out, ok := h.call(ctx, client, iface, target, method)
	if !ok || len(out) == 0 {
		return 0, false
	}
	u, ok := out[0].(uint8)
	return u, ok
}

func (h *PriceFeedHandler) callUint256(ctx context.Context, client *rpcclient.Client, iface *codec.Interface, target common.Address, method string) (*big.Int, bool) {
	out, ok := h.call(ctx, client, iface, target, method)
	if !ok || len(out) == 0 {
		return nil, false
	}
	n, ok := out[0].(*big.Int)
	return n, ok
}

func (h *PriceFeedHandler) callAddress(ctx context.Context, client *rpcclient.Client, iface *codec.Interface, target common.Address, method string) (common.Address, bool) {
	out, ok := h.call(ctx, client, iface, target, method)
	if !ok || len(out) == 0 {
		return common.Address{}, false
	}
	a, ok := out[0].(common.Address)
	return a, ok
}

func (h *PriceFeedHandler) callLatestAnswer(ctx context.Context, client *rpcclient.Client, iface *codec.Interface, target common.Address) (*big.Int, bool) {
	out, ok := h.call(ctx, client, iface, target, "latestRoundData")
	if !ok || len(out) < 2 {
		return nil, false
	}
	answer, ok := out[1].(*big.Int)
	return answer, ok
}

func (h *PriceFeedHandler) call(ctx context.Context, client *rpcclient.Client, iface *codec.Interface, target common.Address, method string) ([]any, bool) {
	data, err := codec.EncodeCall(iface, method)
	if err != nil {
		return nil, false
	}
	result, err := client.EthCall(ctx, target, data)
	if err != nil || len(result) == 0 {
		return nil, false
	}
	m, err := iface.ABI.MethodById(data[:4])
	if err != nil {
		return nil, false
	}
	out, err := m.Outputs.Unpack(result)
	if err != nil {
		return nil, false
	}
	return out, true
}

// scaleToFloat divides answer by 10^decimals.
func scaleToFloat(answer *big.Int, decimals uint8) float64 {
	if answer == nil {
		return 0
	}
	f := new(big.Float).SetInt(answer)
	scale := new(big.Float).SetFloat64(pow10(decimals))
	f.Quo(f, scale)
	result, _ := f.Float64()
	return result
}

func pow10(n uint8) float64 {
	v := 1.0
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v
}
