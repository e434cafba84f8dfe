package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/chainsecurity/proposal-decoder/internal/codec"
	"github.com/chainsecurity/proposal-decoder/internal/explorer"
	"github.com/chainsecurity/proposal-decoder/internal/models"
	"github.com/chainsecurity/proposal-decoder/internal/rpcclient"
	"github.com/chainsecurity/proposal-decoder/internal/store"
)

// genericContractNames may be overridden by any later, more specific
// source during contract-name reconciliation.
var genericContractNames = map[string]bool{
	"TransparentUpgradeableProxy": true,
	"ERC1967Proxy":                true,
	"UUPSProxy":                   true,
	"Proxy":                       true,
	"ERC20":                       true,
	"Token":                       true,
}

// ExternalTokenList is the curated external token list source: a
// third-party symbol/name/decimals lookup, e.g. a CoinGecko-style token
// list.
type ExternalTokenList interface {
	Lookup(ctx context.Context, chainID int64, address string) (symbol, name string, decimals *int, ok bool)
}

// ProxyProber reports the implementation behind a proxy address, if any.
// Implemented by an adapter over proxy.Resolver; declared narrowly here so
// this package doesn't depend on the proxy package's scheme machinery.
type ProxyProber interface {
	ImplementationOf(ctx context.Context, chainID int64, address string) (string, bool)
}

// Resolver builds per-address enrichment by reconciling the bundled static
// sources, the external token list, the explorer, on-chain view calls, and
// ENS, in that trust order.
type Resolver struct {
	static     *StaticProvider
	tokenList  ExternalTokenList
	explorer   *explorer.Client
	store      *store.ArtifactStore
	rpcClients map[int64]*rpcclient.Client
	proxies    ProxyProber
	log        zerolog.Logger

	trackSources bool

	// marketProxies maps a known market (Comet) proxy address to the
	// catalogued "market proxy" designation used by rule 3 (base token
	// resolution). Populated from static deployment config at construction.
	marketProxies map[string]bool
}

// New builds a Resolver bound to one decode's RPC clients (per chain).
// Deployment-config entries that declare a market seed the market-proxy
// set, so rule 3 applies to them without further registration.
func New(static *StaticProvider, tokenList ExternalTokenList, exp *explorer.Client, st *store.ArtifactStore, rpcClients map[int64]*rpcclient.Client, trackSources bool, log zerolog.Logger) *Resolver {
	r := &Resolver{
		static:        static,
		tokenList:     tokenList,
		explorer:      exp,
		store:         st,
		rpcClients:    rpcClients,
		trackSources:  trackSources,
		log:           log,
		marketProxies: make(map[string]bool),
	}
	if static != nil {
		for k, e := range static.deployConfig {
			if e.Market != "" {
				r.marketProxies[k] = true
			}
		}
	}
	return r
}

// SetProxyProber wires in proxy detection after construction (the prober
// is built from the same per-chain RPC clients, which exist only once the
// decoder's wiring is complete). A nil prober disables implementation
// metadata.
func (r *Resolver) SetProxyProber(p ProxyProber) {
	r.proxies = p
}

// MarkMarketProxy registers address as a known Comet/market proxy on
// chainID so Resolve applies rule 3 (base-token resolution) to it.
func (r *Resolver) MarkMarketProxy(chainID int64, address string) {
	r.marketProxies[key(chainID, address)] = true
}

func (r *Resolver) isMarketProxy(chainID int64, address string) bool {
	return r.marketProxies[key(chainID, address)]
}

// Resolve builds AddressMetadata for one address on chainID. Never fails
// the decode: any per-source error degrades to "that source yielded
// nothing"; an ENS failure also adds a note.
func (r *Resolver) Resolve(ctx context.Context, chainID int64, address string) *models.AddressMetadata {
	return r.resolve(ctx, chainID, address, true)
}

func (r *Resolver) resolve(ctx context.Context, chainID int64, address string, probeProxy bool) *models.AddressMetadata {
	meta := &models.AddressMetadata{}
	if r.trackSources {
		meta.Sources = make(map[string]models.DataSource)
	}

	candidates := r.gatherContractNameCandidates(ctx, chainID, address)
	r.pickContractName(meta, candidates)

	r.resolveLabelsAndTags(ctx, chainID, address, meta)
	r.resolveTokenSymbol(ctx, chainID, address, meta)

	if ensName, err := r.resolveENS(ctx, chainID, address); err != nil {
		meta.Notes = append(meta.Notes, fmt.Sprintf("ens resolution failed: %v", err))
	} else if ensName != "" {
		meta.ENSName = ensName
		if r.trackSources {
			meta.Sources["ensName"] = models.DataSource{Kind: models.SourceOnChain, ChainID: chainID, Address: address, Method: "addr.reverse"}
		}
	}

	if r.isMarketProxy(chainID, address) {
		r.resolveBaseToken(ctx, chainID, address, meta)
	}

	if probeProxy && r.proxies != nil {
		if impl, ok := r.proxies.ImplementationOf(ctx, chainID, address); ok && !strings.EqualFold(impl, address) {
			// Implementation metadata is resolved one level deep only; an
			// implementation that is itself a proxy is left unexpanded.
			meta.Implementation = r.resolve(ctx, chainID, impl, false)
		}
	}

	return meta
}

// gatherContractNameCandidates collects, in trust order, every source's
// opinion on this address's contract name: static deployment config,
// curated hardcoded map, explorer verified name.
func (r *Resolver) gatherContractNameCandidates(ctx context.Context, chainID int64, address string) []models.Sourced[string] {
	var out []models.Sourced[string]

	if e, ok := r.static.Lookup(chainID, address); ok && e.ContractName != "" {
		out = append(out, models.NewSourced(e.ContractName, models.DataSource{Kind: models.SourceStaticMetadata, Path: "data/deployments.csv", Key: address}))
	}
	if e, ok := r.static.LookupCurated(chainID, address); ok && e.ContractName != "" {
		out = append(out, models.NewSourced(e.ContractName, models.DataSource{Kind: models.SourceHardcoded, Location: "curated_addresses.csv", Reason: "manually curated"}))
	}
	if name, ok := r.explorerContractName(ctx, chainID, address); ok {
		out = append(out, models.NewSourced(name, models.DataSource{Kind: models.SourceEtherscanSourcecode, ChainID: chainID, Address: address, Verified: true}))
	}
	return out
}

// cachedContractName is the contract-name-cache entry shape: the verified
// name plus which service supplied it. A nil Name records "asked, nothing
// there" so restarts don't refetch.
type cachedContractName struct {
	Name   *string `json:"name"`
	Source string  `json:"source"`
}

// explorerContractName consults the artifact cache before the explorer and
// writes back whatever the explorer said, including the negative case.
func (r *Resolver) explorerContractName(ctx context.Context, chainID int64, address string) (string, bool) {
	key := models.ArtifactKey{ChainID: chainID, Address: address, Kind: models.KindContractName}

	if r.store != nil {
		if entry, ok := r.store.Get(key); ok {
			if entry.IsNegative() {
				return "", false
			}
			var cached cachedContractName
			if err := json.Unmarshal(entry.Payload, &cached); err == nil {
				if cached.Name == nil || *cached.Name == "" {
					return "", false
				}
				return *cached.Name, true
			}
		}
	}

	if r.explorer == nil {
		return "", false
	}
	name, err := r.explorer.FetchContractName(ctx, chainID, address)
	if err != nil {
		r.log.Warn().Err(err).Str("address", address).Msg("metadata: explorer contract name fetch failed")
		return "", false
	}
	if r.store != nil {
		entry := cachedContractName{Source: "etherscan"}
		if name != "" {
			entry.Name = &name
		}
		if err := r.store.PutPayload(key, entry); err != nil {
			r.log.Warn().Err(err).Str("address", address).Msg("metadata: caching contract name failed")
		}
	}
	return name, name != ""
}

// pickContractName applies rule 1: first non-null source wins, but a
// "generic" name can be overridden by a later, non-generic source.
func (r *Resolver) pickContractName(meta *models.AddressMetadata, candidates []models.Sourced[string]) {
	for _, c := range candidates {
		if meta.ContractName == "" {
			meta.ContractName = c.Value
			if r.trackSources {
				meta.Sources["contractName"] = c.Source
			}
			continue
		}
		if genericContractNames[meta.ContractName] && !genericContractNames[c.Value] {
			meta.ContractName = c.Value
			if r.trackSources {
				meta.Sources["contractName"] = c.Source
			}
		}
	}
}

// resolveLabelsAndTags folds in the tag service: its labels are always
// included; etherscanLabel is the name tag or the first label;
// otherAttributes KEY:value prefixes (CN:, ENS:, TS:) are parsed.
func (r *Resolver) resolveLabelsAndTags(ctx context.Context, chainID int64, address string, meta *models.AddressMetadata) {
	if e, ok := r.static.Lookup(chainID, address); ok && len(e.Labels) > 0 {
		meta.Labels = append(meta.Labels, e.Labels...)
	}

	tag := r.explorerTagInfo(ctx, chainID, address)
	if tag == nil {
		return
	}

	if len(tag.Labels) > 0 {
		meta.Labels = append(meta.Labels, tag.Labels...)
	}
	switch {
	case tag.NameTag != "":
		meta.EtherscanLabel = tag.NameTag
	case len(tag.Labels) > 0:
		meta.EtherscanLabel = tag.Labels[0]
	}
	if tag.URL != "" {
		meta.URL = tag.URL
	}
	if tag.ShortDescription != "" {
		meta.Description = tag.ShortDescription
	}
	meta.Notes = append(meta.Notes, tag.Notes...)

	for _, attr := range tag.OtherAttributes {
		k, v, ok := strings.Cut(attr, ":")
		if !ok {
			continue
		}
		switch k {
		case "CN":
			if genericContractNames[meta.ContractName] || meta.ContractName == "" {
				meta.ContractName = v
				if r.trackSources {
					meta.Sources["contractName"] = models.DataSource{Kind: models.SourceEtherscanTag, ChainID: chainID, Address: address, TagKind: "otherAttributes"}
				}
			}
		case "ENS":
			if meta.ENSName == "" {
				meta.ENSName = v
			}
		case "TS":
			r.considerTokenSymbol(meta, v, models.DataSource{Kind: models.SourceEtherscanTag, ChainID: chainID, Address: address, TagKind: "otherAttributes"})
		}
	}
}

// explorerTagInfo consults the artifact cache before the tag service; a
// cached nil records "asked, no tags" so restarts don't refetch.
func (r *Resolver) explorerTagInfo(ctx context.Context, chainID int64, address string) *explorer.AddressTagInfo {
	key := models.ArtifactKey{ChainID: chainID, Address: address, Kind: models.KindAddressTag}

	if r.store != nil {
		if entry, ok := r.store.Get(key); ok {
			if entry.IsNegative() {
				return nil
			}
			var cached *explorer.AddressTagInfo
			if err := json.Unmarshal(entry.Payload, &cached); err == nil {
				return cached
			}
		}
	}

	if r.explorer == nil {
		return nil
	}
	tag, err := r.explorer.FetchAddressTagInfo(ctx, chainID, address)
	if err != nil {
		r.log.Warn().Err(err).Str("address", address).Msg("metadata: explorer tag fetch failed")
		return nil
	}
	if r.store != nil {
		if err := r.store.PutPayload(key, tag); err != nil {
			r.log.Warn().Err(err).Str("address", address).Msg("metadata: caching tag info failed")
		}
	}
	return tag
}

// considerTokenSymbol applies the "longest string wins" tie-break of rule 2.
func (r *Resolver) considerTokenSymbol(meta *models.AddressMetadata, candidate string, source models.DataSource) {
	if candidate == "" {
		return
	}
	if len(candidate) > len(meta.TokenSymbol) {
		meta.TokenSymbol = candidate
		if r.trackSources {
			meta.Sources["tokenSymbol"] = source
		}
	}
}

// resolveTokenSymbol applies rule 2: collect candidates from the explorer
// token page, on-chain symbol(), the curated token list, and static
// deployment config; choose the longest.
func (r *Resolver) resolveTokenSymbol(ctx context.Context, chainID int64, address string, meta *models.AddressMetadata) {
	if e, ok := r.static.Lookup(chainID, address); ok {
		if e.TokenSymbol != "" {
			r.considerTokenSymbol(meta, e.TokenSymbol, models.DataSource{Kind: models.SourceStaticMetadata, Path: "data/deployments.csv", Key: address})
		}
		if e.TokenName != "" && meta.TokenName == "" {
			meta.TokenName = e.TokenName
		}
		if e.Decimals != nil && meta.TokenDecimals == nil {
			meta.TokenDecimals = e.Decimals
		}
	}

	if r.tokenList != nil {
		if symbol, name, decimals, ok := r.tokenList.Lookup(ctx, chainID, address); ok {
			r.considerTokenSymbol(meta, symbol, models.DataSource{Kind: models.SourceExternalAPI, API: "token-list", Endpoint: address})
			if name != "" && meta.TokenName == "" {
				meta.TokenName = name
			}
			if decimals != nil && meta.TokenDecimals == nil {
				meta.TokenDecimals = decimals
			}
		}
	}

	if page := r.explorerTokenPage(ctx, chainID, address); page != nil {
		r.considerTokenSymbol(meta, page.Symbol, models.DataSource{Kind: models.SourceEtherscanTag, ChainID: chainID, Address: address, TagKind: "token-page"})
		if page.Name != "" && meta.TokenName == "" {
			meta.TokenName = page.Name
		}
		if page.Decimals != nil && meta.TokenDecimals == nil {
			meta.TokenDecimals = page.Decimals
		}
	}

	// On-chain symbol() is untrusted (anyone can deploy a fake token) but
	// still participates in the longest-string tie-break; the caller
	// distinguishes trust via meta.Sources[...].Kind.
	if client, ok := r.rpcClients[chainID]; ok && client.HasRPC() {
		if symbol, ok := onChainSymbol(ctx, client, address); ok {
			r.considerTokenSymbol(meta, symbol, models.DataSource{Kind: models.SourceOnChain, ChainID: chainID, Address: address, Method: "symbol()"})
		}
		if meta.TokenDecimals == nil {
			if decimals, ok := onChainDecimals(ctx, client, address); ok {
				meta.TokenDecimals = &decimals
			}
		}
	}
}

// cachedTokenInfo is the token-info-cache entry shape. Versioned so a
// future parser change can invalidate stale entries wholesale.
type cachedTokenInfo struct {
	Version int                 `json:"version"`
	Page    *explorer.TokenPage `json:"page"`
}

const tokenInfoCacheVersion = 1

// explorerTokenPage consults the artifact cache before scraping the
// explorer's token page, caching both hits and misses.
func (r *Resolver) explorerTokenPage(ctx context.Context, chainID int64, address string) *explorer.TokenPage {
	key := models.ArtifactKey{ChainID: chainID, Address: address, Kind: models.KindTokenInfo}

	if r.store != nil {
		if entry, ok := r.store.Get(key); ok {
			if entry.IsNegative() {
				return nil
			}
			var cached cachedTokenInfo
			if err := json.Unmarshal(entry.Payload, &cached); err == nil && cached.Version == tokenInfoCacheVersion {
				return cached.Page
			}
		}
	}

	if r.explorer == nil {
		return nil
	}
	page, err := r.explorer.FetchTokenPage(ctx, chainID, address)
	if err != nil {
		r.log.Warn().Err(err).Str("address", address).Msg("metadata: token page fetch failed")
		return nil
	}
	if r.store != nil {
		if err := r.store.PutPayload(key, cachedTokenInfo{Version: tokenInfoCacheVersion, Page: page}); err != nil {
			r.log.Warn().Err(err).Str("address", address).Msg("metadata: caching token info failed")
		}
	}
	return page
}

// resolveBaseToken applies rule 3 for known market proxies: call
// baseToken() on the proxy, then symbol()/decimals() on the result.
func (r *Resolver) resolveBaseToken(ctx context.Context, chainID int64, address string, meta *models.AddressMetadata) {
	client, ok := r.rpcClients[chainID]
	if !ok || !client.HasRPC() {
		return
	}

	iface, err := codec.NewInterfaceFromSignatures("baseToken()")
	if err != nil {
		return
	}
	data, err := codec.EncodeCall(iface, "baseToken")
	if err != nil {
		return
	}
	result, err := client.EthCall(ctx, common.HexToAddress(address), data)
	if err != nil || len(result) < 32 {
		return
	}
	baseToken := common.BytesToAddress(result[len(result)-20:])
	if baseToken == (common.Address{}) {
		return
	}

	if symbol, ok := onChainSymbol(ctx, client, baseToken.Hex()); ok {
		meta.BaseTokenSymbol = symbol
	}
	if decimals, ok := onChainDecimals(ctx, client, baseToken.Hex()); ok {
		meta.BaseTokenDecimals = &decimals
	}
}

func onChainSymbol(ctx context.Context, client *rpcclient.Client, address string) (string, bool) {
	iface, err := symbolInterface()
	if err != nil {
		return "", false
	}
	data, err := codec.EncodeCall(iface, "symbol")
	if err != nil {
		return "", false
	}
	result, err := client.EthCall(ctx, common.HexToAddress(address), data)
	if err != nil || len(result) == 0 {
		return "", false
	}
	method, err := iface.ABI.MethodById(data[:4])
	if err != nil {
		return "", false
	}
	values, err := method.Outputs.Unpack(result)
	if err != nil || len(values) == 0 {
		return "", false
	}
	s, ok := values[0].(string)
	return s, ok && s != ""
}

func onChainDecimals(ctx context.Context, client *rpcclient.Client, address string) (int, bool) {
	iface, err := decimalsInterface()
	if err != nil {
		return 0, false
	}
	data, err := codec.EncodeCall(iface, "decimals")
	if err != nil {
		return 0, false
	}
	result, err := client.EthCall(ctx, common.HexToAddress(address), data)
	if err != nil || len(result) == 0 {
		return 0, false
	}
	method, err := iface.ABI.MethodById(data[:4])
	if err != nil {
		return 0, false
	}
	values, err := method.Outputs.Unpack(result)
	if err != nil || len(values) == 0 {
		return 0, false
	}
	switch v := values[0].(type) {
	case uint8:
		return int(v), true
	}
	return 0, false
}

// symbolInterface and decimalsInterface build single-method ABIs with output
// types; NewInterfaceFromSignatures only models inputs (probe calls never
// need to decode a return value themselves), so on-chain getters that read
// their result go through a minimal hand-written ABI JSON instead.
func symbolInterface() (*codec.Interface, error) {
	return codec.NewInterface(`[{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}]`)
}

func decimalsInterface() (*codec.Interface, error) {
	return codec.NewInterface(`[{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}]`)
}

// resolveENS reverse-resolves address via the chain's RPC client. ENS only
// exists on mainnet; other chains return ("", nil).
func (r *Resolver) resolveENS(ctx context.Context, chainID int64, address string) (string, error) {
	client, ok := r.rpcClients[chainID]
	if !ok || !client.HasRPC() {
		return "", nil
	}
	return client.ResolveENSName(ctx, common.HexToAddress(address))
}

// ResolveMany runs Resolve concurrently over a deduplicated address set,
// returning a map keyed by checksummed address.
func (r *Resolver) ResolveMany(ctx context.Context, chainID int64, addresses []string) map[string]*models.AddressMetadata {
	deduped := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		deduped[common.HexToAddress(a).Hex()] = true
	}

	results := make(map[string]*models.AddressMetadata, len(deduped))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for addr := range deduped {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := r.Resolve(ctx, chainID, addr)
			mu.Lock()
			results[addr] = m
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}
