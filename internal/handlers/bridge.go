package handlers

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsecurity/proposal-decoder/internal/codec"
	"github.com/chainsecurity/proposal-decoder/internal/models"
)

// BridgeGatewaySpec catalogues one outer bridge call: which
// gateway, which chain it lives on, which chain its messages land on, the
// outer function signature, and which layout the inner message uses.
type BridgeGatewaySpec struct {
	Name            string
	ChainID         int64
	DestinationChain int64
	Gateway         common.Address
	Signature       string // outer sendMessage-style signature, canonical form
	EdgeLabel       string
}

// QuadrupleBridgeHandler decodes the outer call's inner message as the
// explicit (address[], uint256[], string[], bytes[]) quadruple —
// target/value/signature/calldata — with each calldata prefixed by the
// selector derived from its signature before being routed as a child.
type QuadrupleBridgeHandler struct {
	Spec         BridgeGatewaySpec
	TargetsIndex int // argument index of the address[] targets array
}

func (h *QuadrupleBridgeHandler) Name() string { return "bridge:" + h.Spec.Name }

func (h *QuadrupleBridgeHandler) Match(_ context.Context, hctx *models.HandlerContext) bool {
	if hctx.ChainID != h.Spec.ChainID {
		return false
	}
	if !sameAddress(hctx.Target, h.Spec.Gateway.Hex()) {
		return false
	}
	return hctx.Parsed != nil && hctx.Parsed.Name == functionName(h.Spec.Signature)
}

func (h *QuadrupleBridgeHandler) Expand(_ context.Context, hctx *models.HandlerContext) (Expansion, error) {
	iface, err := codec.NewInterfaceFromSignatures(h.Spec.Signature)
	if err != nil {
		return Expansion{}, fmt.Errorf("bridge %s: building interface: %w", h.Spec.Name, err)
	}
	decoded, ok := codec.DecodeCall(iface, hctx.RawCalldata, false)
	if !ok {
		return Expansion{}, fmt.Errorf("bridge %s: inner calldata did not match %s", h.Spec.Name, h.Spec.Signature)
	}

	idx := h.TargetsIndex
	if idx+3 >= len(decoded.Args) {
		return Expansion{}, fmt.Errorf("bridge %s: signature %s has too few arguments for the quadruple layout", h.Spec.Name, h.Spec.Signature)
	}

	targets, ok := decoded.Args[idx].([]common.Address)
	if !ok {
		return Expansion{}, fmt.Errorf("bridge %s: targets argument is not address[]", h.Spec.Name)
	}
	values, ok := decoded.Args[idx+1].([]*big.Int)
	if !ok {
		return Expansion{}, fmt.Errorf("bridge %s: values argument is not uint256[]", h.Spec.Name)
	}
	signatures, ok := decoded.Args[idx+2].([]string)
	if !ok {
		return Expansion{}, fmt.Errorf("bridge %s: signatures argument is not string[]", h.Spec.Name)
	}
	calldatas, ok := decoded.Args[idx+3].([][]byte)
	if !ok {
		return Expansion{}, fmt.Errorf("bridge %s: calldatas argument is not bytes[]", h.Spec.Name)
	}

	n := len(targets)
	if len(values) < n {
		n = len(values)
	}
	if len(signatures) < n {
		n = len(signatures)
	}
	if len(calldatas) < n {
		n = len(calldatas)
	}

	var children []models.ChildRequest
	for i := 0; i < n; i++ {
		var raw []byte
		if signatures[i] != "" {
			sel := codec.Selector(signatures[i])
			raw = append(append([]byte{}, sel[:]...), calldatas[i]...)
		} else {
			raw = calldatas[i]
		}

		children = append(children, models.ChildRequest{
			Edge: models.CallEdge{
				Kind:  "bridge",
				Label: h.Spec.EdgeLabel,
				Index: i,
			},
			ChainID:     h.Spec.DestinationChain,
			Target:      targets[i].Hex(),
			ValueWei:    values[i],
			RawCalldata: raw,
		})
	}

	return Expansion{Children: children}, nil
}

// OpaqueReceiverBridgeHandler decodes the outer bridge call as a single
// opaque calldata destined for a named receiver on the destination chain,
// rather than the address/value/signature/calldata quadruple. Used by
// bridges (e.g. Arbitrum's retryable-ticket gateway) whose message is
// itself one ABI-encoded call meant for a fixed receiver contract.
type OpaqueReceiverBridgeHandler struct {
	Spec          BridgeGatewaySpec
	Receiver      common.Address
	CalldataIndex int // argument index of the inner opaque bytes
}

func (h *OpaqueReceiverBridgeHandler) Name() string { return "bridge:" + h.Spec.Name }

func (h *OpaqueReceiverBridgeHandler) Match(_ context.Context, hctx *models.HandlerContext) bool {
	if hctx.ChainID != h.Spec.ChainID {
		return false
	}
	if !sameAddress(hctx.Target, h.Spec.Gateway.Hex()) {
		return false
	}
	return hctx.Parsed != nil && hctx.Parsed.Name == functionName(h.Spec.Signature)
}

func (h *OpaqueReceiverBridgeHandler) Expand(_ context.Context, hctx *models.HandlerContext) (Expansion, error) {
	iface, err := codec.NewInterfaceFromSignatures(h.Spec.Signature)
	if err != nil {
		return Expansion{}, fmt.Errorf("bridge %s: building interface: %w", h.Spec.Name, err)
	}
	decoded, ok := codec.DecodeCall(iface, hctx.RawCalldata, false)
	if !ok {
		return Expansion{}, fmt.Errorf("bridge %s: outer calldata did not match %s", h.Spec.Name, h.Spec.Signature)
	}
	if h.CalldataIndex >= len(decoded.Args) {
		return Expansion{}, fmt.Errorf("bridge %s: signature %s too short for calldata index %d", h.Spec.Name, h.Spec.Signature, h.CalldataIndex)
	}
	inner, ok := decoded.Args[h.CalldataIndex].([]byte)
	if !ok {
		return Expansion{}, fmt.Errorf("bridge %s: inner argument is not bytes", h.Spec.Name)
	}

	child := models.ChildRequest{
		Edge: models.CallEdge{
			Kind:  "bridge",
			Label: h.Spec.EdgeLabel,
			Index: 0,
		},
		ChainID:     h.Spec.DestinationChain,
		Target:      h.Receiver.Hex(),
		ValueWei:    big.NewInt(0),
		RawCalldata: inner,
	}
	return Expansion{Children: []models.ChildRequest{child}}, nil
}

// ReceiverMulticallHandler mirrors the receiver side of a bridge: it
// recognizes the fixed receiver contract on the destination chain and
// re-expands a fallback multicall-style payload into per-action children,
// exactly as QuadrupleBridgeHandler does for the gateway side.
type ReceiverMulticallHandler struct {
	Name_        string
	ChainID      int64
	Receiver     common.Address
	Signature    string
	TargetsIndex int
	EdgeLabel    string
}

func (h *ReceiverMulticallHandler) Name() string { return "bridge-receiver:" + h.Name_ }

func (h *ReceiverMulticallHandler) Match(_ context.Context, hctx *models.HandlerContext) bool {
	if hctx.ChainID != h.ChainID {
		return false
	}
	return sameAddress(hctx.Target, h.Receiver.Hex())
}

func (h *ReceiverMulticallHandler) Expand(_ context.Context, hctx *models.HandlerContext) (Expansion, error) {
	inner := &QuadrupleBridgeHandler{
		Spec: BridgeGatewaySpec{
			Name:             h.Name_,
			ChainID:          h.ChainID,
			DestinationChain: h.ChainID,
			Gateway:          h.Receiver,
			Signature:        h.Signature,
			EdgeLabel:        h.EdgeLabel,
		},
		TargetsIndex: h.TargetsIndex,
	}
	return inner.Expand(context.Background(), hctx)
}

func sameAddress(a, b string) bool {
	return common.HexToAddress(a) == common.HexToAddress(b)
}

func functionName(signature string) string {
	for i, r := range signature {
		if r == '(' {
			return signature[:i]
		}
	}
	return signature
}
