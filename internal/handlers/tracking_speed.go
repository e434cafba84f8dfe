package handlers

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/dustin/go-humanize"

	"github.com/chainsecurity/proposal-decoder/internal/codec"
	"github.com/chainsecurity/proposal-decoder/internal/models"
	"github.com/chainsecurity/proposal-decoder/internal/rpcclient"
)

// trackingSpeedInterfaceJSON covers Comet's trackingIndexScale() and the
// two tracking-speed getters this handler reads before a proposal changes
// them.
const trackingSpeedInterfaceJSON = `[
  {"type":"function","name":"trackingIndexScale","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint64"}]},
  {"type":"function","name":"baseTrackingSupplySpeed","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint104"}]},
  {"type":"function","name":"baseTrackingBorrowSpeed","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint104"}]}
]`

// secondsPerDay scales a per-second tracking speed to a per-day figure.
const secondsPerDay = 86400

// TrackingSpeedHandler is the setBaseTrackingSupplySpeed /
// setBaseTrackingBorrowSpeed insight handler: it reads
// trackingIndexScale() and the current speed, then reports old vs new in
// human-readable per-day units.
type TrackingSpeedHandler struct {
	chainRPC     map[int64]*rpcclient.Client
	functionName string
}

func NewTrackingSpeedHandler(chainRPC map[int64]*rpcclient.Client, functionName string) *TrackingSpeedHandler {
	return &TrackingSpeedHandler{chainRPC: chainRPC, functionName: functionName}
}

func (h *TrackingSpeedHandler) Name() string { return "insight:" + h.functionName }

func (h *TrackingSpeedHandler) Match(_ context.Context, hctx *models.HandlerContext) bool {
	return hctx.Parsed != nil && hctx.Parsed.Name == h.functionName
}

func (h *TrackingSpeedHandler) getterName() string {
	if h.functionName == "setBaseTrackingBorrowSpeed" {
		return "baseTrackingBorrowSpeed"
	}
	return "baseTrackingSupplySpeed"
}

func (h *TrackingSpeedHandler) Expand(ctx context.Context, hctx *models.HandlerContext) (Expansion, error) {
	if len(hctx.Parsed.Args) < 2 {
		return Expansion{}, fmt.Errorf("insight:%s: expected (cometProxy, newSpeed) arguments", h.functionName)
	}
	cometProxy, ok := hctx.Parsed.Args[0].(common.Address)
	if !ok {
		return Expansion{}, fmt.Errorf("insight:%s: first argument is not an address", h.functionName)
	}
	newSpeed, ok := hctx.Parsed.Args[1].(*big.Int)
	if !ok {
		return Expansion{}, fmt.Errorf("insight:%s: second argument is not a uint", h.functionName)
	}

	entries := []models.InsightEntry{
		{Label: "Comet", Value: cometProxy.Hex()},
	}

	client, hasRPC := h.chainRPC[hctx.ChainID]
	if hasRPC && client.HasRPC() {
		iface, err := codec.NewInterface(trackingSpeedInterfaceJSON)
		if err == nil {
			scale, scaleOK := h.callUint(ctx, client, iface, cometProxy, "trackingIndexScale")
			current, currentOK := h.callUint(ctx, client, iface, cometProxy, h.getterName())

			if scaleOK && scale.Sign() > 0 {
				newPerDay := perDayScaled(newSpeed, scale)
				entries = append(entries, models.InsightEntry{
					Label: "New Speed (per day)",
					Value: humanize.CommafWithDigits(newPerDay, 6),
				})
				if currentOK {
					currentPerDay := perDayScaled(current, scale)
					entries = append(entries, models.InsightEntry{
						Label: "Speed Change",
						Value: fmt.Sprintf("%s -> %s per day", humanize.CommafWithDigits(currentPerDay, 6), humanize.CommafWithDigits(newPerDay, 6)),
					})
				}
			} else {
				entries = append(entries, models.InsightEntry{Label: "New Speed (raw)", Value: newSpeed.String()})
			}
		}
	} else {
		entries = append(entries, models.InsightEntry{Label: "New Speed (raw)", Value: newSpeed.String()})
	}

	insight := models.CallInsight{
		Title:         fmt.Sprintf("Tracking Speed Update: %s", h.functionName),
		Entries:       entries,
		HandlerSource: h.Name(),
	}
	return Expansion{Insights: []models.CallInsight{insight}}, nil
}

// callUint reads one unsigned getter. Unpack returns a native uint64 for
// 64-bit outputs (trackingIndexScale) and *big.Int only for wider ones
// (the uint104 speed getters), so both shapes are accepted here.
func (h *TrackingSpeedHandler) callUint(ctx context.Context, client *rpcclient.Client, iface *codec.Interface, target common.Address, method string) (*big.Int, bool) {
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
	if err != nil || len(out) == 0 {
		return nil, false
	}
	switch v := out[0].(type) {
	case *big.Int:
		return v, true
	case uint64:
		return new(big.Int).SetUint64(v), true
	}
	return nil, false
}

// perDayScaled converts a per-second tracking speed scaled by
// trackingIndexScale into a per-day float.
func perDayScaled(speed, scale *big.Int) float64 {
	if speed == nil || scale == nil || scale.Sign() == 0 {
		return 0
	}
	f := new(big.Float).SetInt(speed)
	f.Mul(f, big.NewFloat(secondsPerDay))
	f.Quo(f, new(big.Float).SetInt(scale))
	v, _ := f.Float64()
	return v
}
