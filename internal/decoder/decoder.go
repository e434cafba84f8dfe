package decoder

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chainsecurity/proposal-decoder/internal/codec"
	"github.com/chainsecurity/proposal-decoder/internal/explorer"
	"github.com/chainsecurity/proposal-decoder/internal/handlers"
	"github.com/chainsecurity/proposal-decoder/internal/metadata"
	"github.com/chainsecurity/proposal-decoder/internal/models"
	"github.com/chainsecurity/proposal-decoder/internal/proxy"
	"github.com/chainsecurity/proposal-decoder/internal/rpcclient"
	"github.com/chainsecurity/proposal-decoder/internal/store"
)

// Decoder ties the codec, artifact store, explorer client, proxy
// resolver, metadata resolver and handler registry into the recursive
// tree-building engine. One Decoder serves many DecodeProposal calls; it
// holds no per-decode state.
type Decoder struct {
	chainRPC  map[int64]*rpcclient.Client
	store     *store.ArtifactStore
	explorer  *explorer.Client
	proxy     map[int64]*proxy.Resolver
	meta      *metadata.Resolver
	registry  *handlers.Registry
	progress  *models.ProgressTracker
	log       zerolog.Logger
	tracer    trace.Tracer

	defaultChainID int64
}

// New builds a Decoder. proxyResolvers and chainRPC are keyed by chain ID;
// a chain with no RPC client simply never runs proxy detection or on-chain
// reads for its nodes.
func New(
	chainRPC map[int64]*rpcclient.Client,
	proxyResolvers map[int64]*proxy.Resolver,
	st *store.ArtifactStore,
	exp *explorer.Client,
	meta *metadata.Resolver,
	registry *handlers.Registry,
	progress *models.ProgressTracker,
	defaultChainID int64,
	log zerolog.Logger,
) *Decoder {
	return &Decoder{
		chainRPC:       chainRPC,
		store:          st,
		explorer:       exp,
		proxy:          proxyResolvers,
		meta:           meta,
		registry:       registry,
		progress:       progress,
		defaultChainID: defaultChainID,
		log:            log,
		tracer:         otel.Tracer("proposal-decoder"),
	}
}

// DecodeProposal wraps every action into a root CallNode, decodes each
// node depth-first, and returns the resulting tree. The only error this
// returns halts the whole decode (InputError, ChainRevertError, AuthError)
// — everything else becomes a note on the affected node.
func (d *Decoder) DecodeProposal(ctx context.Context, details *models.ProposalDetails, opts models.DecodeOptions) (*models.Proposal, error) {
	if len(details.Targets) != len(details.Values) || len(details.Targets) != len(details.Calldatas) {
		return nil, &InputError{Reason: "targets/values/calldatas length mismatch"}
	}

	ctx, span := d.tracer.Start(ctx, "decoder.DecodeProposal",
		trace.WithAttributes(attribute.Int("proposal.actions", len(details.Targets))))
	defer span.End()

	if d.registry != nil {
		d.registry.BeginProposal()
	}

	proposal := &models.Proposal{
		DescriptionHash: details.DescriptionHash,
		Calls:           make([]*models.CallNode, len(details.Targets)),
	}

	for i := range details.Targets {
		chainID := d.defaultChainID
		target := common.HexToAddress(details.Targets[i]).Hex()
		value := details.Values[i].Int
		if value == nil {
			value = big.NewInt(0)
		}
		calldata := details.Calldatas[i]

		node := models.NewCallNode(chainID, target, value, calldata)
		if opts.TrackSources {
			node.Sources = map[string]models.DataSource{
				"target":      {Kind: models.SourceProposalParameter, Array: "targets", Index: i, Raw: details.Targets[i]},
				"valueWei":    {Kind: models.SourceProposalParameter, Array: "values", Index: i, Raw: value.String()},
				"rawCalldata": {Kind: models.SourceProposalParameter, Array: "calldatas", Index: i, Raw: "0x" + common.Bytes2Hex(calldata)},
			}
		}
		d.progress.Update(fmt.Sprintf("call-%d", i), target, models.ComponentStatusRunning, "")

		if err := d.decodeCall(ctx, node, opts, 0); err != nil {
			d.progress.Update(fmt.Sprintf("call-%d", i), target, models.ComponentStatusError, err.Error())
			return nil, err
		}

		d.progress.Update(fmt.Sprintf("call-%d", i), target, models.ComponentStatusFinished, "")
		proposal.Calls[i] = node
	}

	d.refineSharedContractNames(proposal.Calls)
	return proposal, nil
}

// maxDepth caps pathological handler recursion (e.g. a bridge handler
// whose child somehow loops back to another bridge call), not a case the
// catalogued handlers ever trigger but cheap to guard.
const maxDepth = 12

// decodeCall resolves node's ABI (proxy-aware), decodes its calldata,
// fans out metadata enrichment over every address argument, and runs the
// handler registry, recursing into any children the registry returns.
// Returns an error only for the halting classes (InputError and
// ChainRevertError never originate here; AuthError does).
func (d *Decoder) decodeCall(ctx context.Context, node *models.CallNode, opts models.DecodeOptions, depth int) error {
	if depth > maxDepth {
		node.Notes = append(node.Notes, "call tree exceeded maximum recursion depth; truncated")
		return nil
	}

	ctx, span := d.tracer.Start(ctx, "decoder.decodeCall", trace.WithAttributes(
		attribute.Int64("chain.id", node.ChainID),
		attribute.String("call.target", node.Target),
		attribute.Int("call.depth", depth)))
	defer span.End()

	switch {
	case len(node.RawCalldata) == 0:
		node.Notes = append(node.Notes, "empty calldata (possible ETH transfer or fallback)")
	case len(node.RawCalldata) < 4:
		node.Notes = append(node.Notes, "calldata shorter than a selector; cannot decode")
	case isZeroSelector(node.RawCalldata):
		node.Notes = append(node.Notes, "zero selector; cannot decode")
	}

	proxyResult := d.detectProxy(ctx, node.ChainID, node.Target, opts)
	abiChainID, abiAddress := node.ChainID, node.Target
	if proxyResult != nil {
		node.Implementation = proxyResult.Target.Hex()
		abiAddress = proxyResult.Target.Hex()
	}

	if len(node.RawCalldata) >= 4 && !isZeroSelector(node.RawCalldata) {
		res, err := d.resolveABI(ctx, abiChainID, abiAddress, node.RawCalldata)
		if err != nil {
			var authErr *explorer.AuthError
			if errors.As(err, &authErr) {
				return authErr
			}
			return fmt.Errorf("decoder: resolving ABI for %s: %w", abiAddress, err)
		}

		if res.Interface == nil {
			if res.Note != "" {
				node.Notes = append(node.Notes, res.Note)
			}
		} else {
			decoded, ok := codec.DecodeCall(res.Interface, node.RawCalldata, opts.TrackSources)
			if !ok {
				node.Notes = append(node.Notes, "unknown selector; no matching function in the resolved ABI")
			} else {
				node.Decoded = decoded
				d.enrichAddressArguments(ctx, node, opts)
				d.runHandlers(ctx, node, opts, depth)
			}
		}
	}

	if proxyResult != nil {
		implMeta := d.resolveMetadata(ctx, node.ChainID, proxyResult.Target.Hex(), opts)
		if implMeta != nil && implMeta.ContractName != "" {
			node.ImplementationContractName = implMeta.ContractName
		}
	}

	targetMeta := d.resolveMetadata(ctx, node.ChainID, node.Target, opts)
	if targetMeta != nil && targetMeta.ContractName != "" {
		node.TargetContractName = targetMeta.ContractName
	}

	return nil
}

// isZeroSelector reports the conventional fallback-function marker: four
// all-zero selector bytes.
func isZeroSelector(calldata []byte) bool {
	return len(calldata) >= 4 && calldata[0] == 0 && calldata[1] == 0 && calldata[2] == 0 && calldata[3] == 0
}

// detectProxy runs ProxyResolver for node's chain, honoring the caller's
// per-decode timeout override by layering a deadline on the
// context above the Resolver's own constructor cap.
func (d *Decoder) detectProxy(ctx context.Context, chainID int64, target string, opts models.DecodeOptions) *proxy.Result {
	resolver, ok := d.proxy[chainID]
	if !ok || resolver == nil {
		return nil
	}
	if opts.ProxyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.ProxyTimeout)*time.Millisecond)
		defer cancel()
	}
	return resolver.Resolve(ctx, common.HexToAddress(target))
}

// enrichAddressArguments fans metadata resolution out over every
// address-typed argument leaf, attaching results to
// DecodedFunction.AddressMetadata keyed by checksummed address. For
// catalogued bridge-gateway calls, destination-chain arguments are
// enriched against the destination chain and merged with the source-chain
// set.
func (d *Decoder) enrichAddressArguments(ctx context.Context, node *models.CallNode, opts models.DecodeOptions) {
	if d.meta == nil || node.Decoded == nil {
		return
	}

	byArg := codec.CollectAddressesByArg(node.Decoded)
	if len(byArg) == 0 {
		return
	}

	srcChainAddrs, destChainAddrs := splitGatewayArgs(node, byArg)

	resolved := d.meta.ResolveMany(ctx, node.ChainID, srcChainAddrs)
	if destChain, _, ok := handlers.GatewayEnrichment(node.ChainID, node.Target, node.Decoded.Name); ok && len(destChainAddrs) > 0 {
		for addr, m := range d.meta.ResolveMany(ctx, destChain, destChainAddrs) {
			resolved[addr] = m
		}
	}
	if len(resolved) == 0 {
		return
	}
	if node.Decoded.AddressMetadata == nil {
		node.Decoded.AddressMetadata = make(map[string]*models.AddressMetadata, len(resolved))
	}
	for addr, m := range resolved {
		node.Decoded.AddressMetadata[addr] = m
	}
}

// splitGatewayArgs partitions a node's address arguments into source-chain
// and destination-chain sets per the bridge-gateway enrichment table. For a
// non-gateway call every address lands in the source-chain set.
func splitGatewayArgs(node *models.CallNode, byArg [][]string) (srcChain, destChain []string) {
	_, destIndices, isGateway := handlers.GatewayEnrichment(node.ChainID, node.Target, node.Decoded.Name)
	destSet := make(map[int]bool, len(destIndices))
	for _, i := range destIndices {
		destSet[i] = true
	}
	for argIdx, addrs := range byArg {
		if isGateway && destSet[argIdx] {
			destChain = append(destChain, addrs...)
		} else {
			srcChain = append(srcChain, addrs...)
		}
	}
	return srcChain, destChain
}

func (d *Decoder) resolveMetadata(ctx context.Context, chainID int64, address string, opts models.DecodeOptions) *models.AddressMetadata {
	if d.meta == nil {
		return nil
	}
	return d.meta.Resolve(ctx, chainID, address)
}

// runHandlers builds the HandlerContext for node, applies the registry,
// and recurses into any children it returns on their declared chain.
func (d *Decoder) runHandlers(ctx context.Context, node *models.CallNode, opts models.DecodeOptions, depth int) {
	if d.registry == nil || node.Decoded == nil {
		return
	}

	hctx := &models.HandlerContext{
		ChainID:     node.ChainID,
		Target:      node.Target,
		ValueWei:    node.ValueWei.Int,
		RawCalldata: node.RawCalldata,
		Parsed: &models.ParsedCall{
			Selector: node.Decoded.Selector,
			Name:     node.Decoded.Name,
			Args:     node.Decoded.Args,
			Decoded:  node.Decoded,
		},
		Options: opts,
	}

	expansion, notes := d.registry.Apply(ctx, hctx)
	node.Notes = append(node.Notes, notes...)
	node.Insights = append(node.Insights, expansion.Insights...)

	for _, child := range expansion.Children {
		childChain := child.ChainID
		if childChain == 0 {
			childChain = node.ChainID
		}
		childNode := models.NewCallNode(childChain, child.Target, child.ValueWei, child.RawCalldata)
		if opts.TrackSources {
			src := models.DataSource{Kind: models.SourceHandler, Name: child.Edge.Label, Description: child.Edge.Kind}
			childNode.Sources = map[string]models.DataSource{
				"target":      src,
				"valueWei":    src,
				"rawCalldata": src,
			}
		}
		if err := d.decodeCall(ctx, childNode, opts, depth+1); err != nil {
			// A child's halting error is demoted to a note: only the root
			// decode's own halting errors should abort the whole proposal —
			// a handler failure stays isolated to its node, and a handler's
			// synthesized child is no different.
			childNode.Notes = append(childNode.Notes, err.Error())
		}
		node.Children = append(node.Children, models.CallEdgeNode{Edge: child.Edge, Node: childNode})
	}
}

// refineSharedContractNames is the name-refinement pass: a Comet
// Configurator call is shared by every market on a chain, so its generic
// "Configurator" name is extended with the specific market's label once
// the decoded arguments identify which market (cometProxy) the call
// targets.
func (d *Decoder) refineSharedContractNames(roots []*models.CallNode) {
	for _, root := range roots {
		d.refineNode(root)
	}
}

func (d *Decoder) refineNode(node *models.CallNode) {
	if node.Decoded != nil {
		if marketLabel, ok := marketLabelFromArgs(node.Decoded); ok && marketLabel != node.TargetContractName {
			if node.TargetContractName == "" {
				node.TargetContractName = marketLabel
			} else {
				node.TargetContractName = fmt.Sprintf("%s (%s)", node.TargetContractName, marketLabel)
			}
		}
	}
	for _, child := range node.Children {
		if child.Node != nil {
			d.refineNode(child.Node)
		}
	}
}

// marketScopedFunctions are the catalogued Configurator/admin functions
// whose first address parameter identifies which market the call operates
// on, used when the parameter isn't literally named cometProxy.
var marketScopedFunctions = map[string]bool{
	"updateAsset":                true,
	"updateAssetPriceFeed":       true,
	"setBaseTokenPriceFeed":      true,
	"setBaseTrackingSupplySpeed": true,
	"setBaseTrackingBorrowSpeed": true,
	"deployAndUpgradeTo":         true,
	"setFactory":                 true,
}

// marketLabelFromArgs looks for a cometProxy-named argument, or failing
// that the first address argument of a catalogued market-scoped function,
// and reads its already-resolved metadata so a shared Configurator call
// can be disambiguated in the rendered tree.
func marketLabelFromArgs(decoded *models.DecodedFunction) (string, bool) {
	for i, pi := range decoded.ArgParamInfo {
		if strings.EqualFold(pi.Name, "cometProxy") && i < len(decoded.Args) {
			if label, ok := metadataLabelForArg(decoded, i); ok {
				return label, true
			}
		}
	}
	if marketScopedFunctions[decoded.Name] {
		for i, pi := range decoded.ArgParamInfo {
			if pi.BaseType == "address" {
				return metadataLabelForArg(decoded, i)
			}
		}
	}
	return "", false
}

func metadataLabelForArg(decoded *models.DecodedFunction, i int) (string, bool) {
	if i >= len(decoded.Args) {
		return "", false
	}
	addr, ok := decoded.Args[i].(common.Address)
	if !ok {
		return "", false
	}
	if m, ok := decoded.AddressMetadata[addr.Hex()]; ok && m != nil && m.ContractName != "" {
		return m.ContractName, true
	}
	return "", false
}
