package handlers

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsecurity/proposal-decoder/internal/metadata"
	"github.com/chainsecurity/proposal-decoder/internal/rpcclient"
)

// NewDefaultRegistry builds the standard registry: bridge handlers first
// (they produce children the engine must recurse into), then the
// insight-handler family. chainRPC supplies one RPC
// client per chain for handlers that need on-chain ground truth; meta is
// the shared MetadataResolver insight handlers call to resolve symbols;
// staticIndex backs AddressVerificationHandler's ground truth (typically
// the same *metadata.StaticProvider meta was built from).
func NewDefaultRegistry(chainRPC map[int64]*rpcclient.Client, meta *metadata.Resolver, priceOracle PriceOracle, staticIndex StaticIndex) *Registry {
	r := NewRegistry()

	// Arbitrum: Delayed Inbox's createRetryableTicket carries a single
	// opaque calldata destined for the governance receiver alias on
	// Arbitrum.
	r.Register(&OpaqueReceiverBridgeHandler{
		Spec: BridgeGatewaySpec{
			Name:             "Arbitrum Bridge",
			ChainID:          1,
			DestinationChain: 42161,
			Gateway:          common.HexToAddress("0x4Dbd4fc535Ac27206064B68FfCf827b0A60BAB33"),
			Signature:        "createRetryableTicket(address,uint256,uint256,address,address,uint256,uint256,bytes)",
			EdgeLabel:        "Arbitrum Bridge",
		},
		Receiver:      common.HexToAddress("0x8ff7Dd263cfC1cE2e7dE3264eaED8C7fc6D2EaE4"),
		CalldataIndex: 7,
	})

	// Linea: the canonical quadruple layout; each sub-action is labeled
	// "Linea Bridge" and routed to chain 59144.
	r.Register(&QuadrupleBridgeHandler{
		Spec: BridgeGatewaySpec{
			Name:             "Linea Bridge",
			ChainID:          1,
			DestinationChain: 59144,
			Gateway:          common.HexToAddress("0xd19d4B5d358258f05D7B411E21A1460D11B0876F"),
			Signature:        "sendMessage(address[],uint256[],string[],bytes[])",
			EdgeLabel:        "Linea Bridge",
		},
		TargetsIndex: 0,
	})

	// Mirror receiver: the Linea L2 message receiver re-expands a fallback
	// multicall identically to the gateway side.
	r.Register(&ReceiverMulticallHandler{
		Name_:        "Linea Bridge Receiver",
		ChainID:      59144,
		Receiver:     common.HexToAddress("0x508Ca82Df566dCD1B0DE8296e70a96332cD644ec"),
		Signature:    "executeMessage(address[],uint256[],string[],bytes[])",
		TargetsIndex: 0,
		EdgeLabel:    "Linea Bridge",
	})

	verification := NewAddressVerificationHandler()
	verification.SetIndex(staticIndex)
	r.Register(verification)
	r.Register(NewUpdateAssetHandler(chainRPC, meta))
	r.Register(NewPriceFeedHandler(chainRPC, priceOracle, "updateAssetPriceFeed", 2))
	r.Register(NewPriceFeedHandler(chainRPC, priceOracle, "setBaseTokenPriceFeed", 1))
	r.Register(NewTrackingSpeedHandler(chainRPC, "setBaseTrackingSupplySpeed"))
	r.Register(NewTrackingSpeedHandler(chainRPC, "setBaseTrackingBorrowSpeed"))

	return r
}

// gatewayEnrichmentOverride maps one (gateway, method) pair to its split
// of destination-chain arguments: argument indices listed here are
// enriched against the destination chain, everything else against the
// chain the call runs on.
type gatewayEnrichmentOverride struct {
	ChainID          int64
	Gateway          common.Address
	Method           string
	DestinationChain int64
	DestArgIndices   []int
}

var gatewayEnrichmentOverrides = []gatewayEnrichmentOverride{
	// Linea sendMessage: the targets array (arg 0) holds L2 addresses; the
	// values/signatures/calldatas arrays carry no addresses of their own.
	{ChainID: 1, Gateway: common.HexToAddress("0xd19d4B5d358258f05D7B411E21A1460D11B0876F"), Method: "sendMessage", DestinationChain: 59144, DestArgIndices: []int{0, 3}},
	// Arbitrum createRetryableTicket: `to` (arg 0) and the refund addresses
	// (args 3, 4) are L2 addresses; the inner calldata (arg 7) decodes
	// against the L2 receiver as well.
	{ChainID: 1, Gateway: common.HexToAddress("0x4Dbd4fc535Ac27206064B68FfCf827b0A60BAB33"), Method: "createRetryableTicket", DestinationChain: 42161, DestArgIndices: []int{0, 3, 4, 7}},
}

// GatewayEnrichment reports whether (chainID, target, method) is a
// catalogued bridge-gateway call, and if so, the destination chain and the
// argument indices whose addresses live there.
func GatewayEnrichment(chainID int64, target string, method string) (int64, []int, bool) {
	addr := common.HexToAddress(target)
	for _, o := range gatewayEnrichmentOverrides {
		if o.ChainID == chainID && o.Gateway == addr && o.Method == method {
			return o.DestinationChain, o.DestArgIndices, true
		}
	}
	return 0, nil, false
}
