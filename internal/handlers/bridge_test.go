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

const sendMessageSignature = "sendMessage(address[],uint256[],string[],bytes[])"

func TestQuadrupleBridgeHandlerExpandsEachSubAction(t *testing.T) {
	gateway := common.HexToAddress("0xd19d4B5d358258f05D7B411E21A1460D11B0876F")
	h := &QuadrupleBridgeHandler{
		Spec: BridgeGatewaySpec{
			Name:             "Linea Bridge",
			ChainID:          1,
			DestinationChain: 59144,
			Gateway:          gateway,
			Signature:        sendMessageSignature,
			EdgeLabel:        "Linea Bridge",
		},
		TargetsIndex: 0,
	}

	target := common.HexToAddress("0x1111111111111111111111111111111111111111")
	iface, err := codec.NewInterfaceFromSignatures(sendMessageSignature)
	require.NoError(t, err)

	calldata, err := codec.EncodeCall(iface, "sendMessage",
		[]common.Address{target},
		[]*big.Int{big.NewInt(0)},
		[]string{"updateSupplyCap(uint256)"},
		[][]byte{{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}},
	)
	require.NoError(t, err)

	hctx := &models.HandlerContext{
		ChainID:     1,
		Target:      gateway.Hex(),
		RawCalldata: calldata,
		Parsed:      &models.ParsedCall{Name: "sendMessage"},
	}

	require.True(t, h.Match(context.Background(), hctx))

	exp, err := h.Expand(context.Background(), hctx)
	require.NoError(t, err)
	require.Len(t, exp.Children, 1)

	child := exp.Children[0]
	assert.Equal(t, int64(59144), child.ChainID)
	assert.Equal(t, target.Hex(), child.Target)
	assert.Equal(t, "bridge", child.Edge.Kind)
	assert.Equal(t, "Linea Bridge", child.Edge.Label)

	wantSelector := codec.Selector("updateSupplyCap(uint256)")
	require.True(t, len(child.RawCalldata) >= 4)
	assert.Equal(t, wantSelector[:], child.RawCalldata[:4])
}

func TestQuadrupleBridgeHandlerDoesNotMatchOtherGateways(t *testing.T) {
	h := &QuadrupleBridgeHandler{
		Spec: BridgeGatewaySpec{
			Name:      "Linea Bridge",
			ChainID:   1,
			Gateway:   common.HexToAddress("0xd19d4B5d358258f05D7B411E21A1460D11B0876F"),
			Signature: sendMessageSignature,
		},
	}

	hctx := &models.HandlerContext{
		ChainID: 1,
		Target:  common.HexToAddress("0x2222222222222222222222222222222222222222").Hex(),
		Parsed:  &models.ParsedCall{Name: "sendMessage"},
	}

	assert.False(t, h.Match(context.Background(), hctx))
}
