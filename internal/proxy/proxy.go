// Package proxy detects proxy contracts: given an address and an RPC
// client, it races a fixed set of detection schemes with a wall-clock cap
// and returns the first positive result.
package proxy

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/chainsecurity/proposal-decoder/internal/codec"
	"github.com/chainsecurity/proposal-decoder/internal/rpcclient"
)

// ProxyType enumerates the supported detection schemes.
type ProxyType string

const (
	TypeMinimalProxy      ProxyType = "eip1167_minimal"
	TypeEIP1967Direct     ProxyType = "eip1967_direct"
	TypeEIP1967Beacon     ProxyType = "eip1967_beacon"
	TypeOZLegacy          ProxyType = "openzeppelin_legacy"
	TypeEIP1822UUPS       ProxyType = "eip1822_uups"
	TypeEIP897            ProxyType = "eip897"
	TypeSafeProxy         ProxyType = "safe_proxy"
	TypeComptroller       ProxyType = "comptroller"
	TypeBalancerRelayer   ProxyType = "balancer_batch_relayer"
	TypeAddressManager    ProxyType = "address_manager"
	TypeDiamond           ProxyType = "eip2535_diamond"
)

// Result is one scheme's positive detection.
type Result struct {
	Target    common.Address
	ProxyType ProxyType
	Immutable bool
}

// DefaultTimeout is the wall-clock cap on the scheme race.
const DefaultTimeout = 10 * time.Second

// Resolver races the catalogued schemes against one RPC client.
type Resolver struct {
	client  *rpcclient.Client
	timeout time.Duration
	log     zerolog.Logger
}

// New builds a Resolver. A zero timeout uses DefaultTimeout.
func New(client *rpcclient.Client, timeout time.Duration, log zerolog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{client: client, timeout: timeout, log: log}
}

type scheme struct {
	name  ProxyType
	probe func(ctx context.Context, r *Resolver, target common.Address) (*Result, error)
}

var schemes = []scheme{
	{TypeEIP1967Direct, probeEIP1967Direct},
	{TypeEIP1967Beacon, probeEIP1967Beacon},
	{TypeOZLegacy, probeOZLegacy},
	{TypeEIP1822UUPS, probeEIP1822},
	{TypeMinimalProxy, probeMinimalProxy},
	{TypeEIP897, probeEIP897},
	{TypeSafeProxy, probeSafeProxy},
	{TypeComptroller, probeComptroller},
	{TypeBalancerRelayer, probeBalancerRelayer},
	{TypeAddressManager, probeAddressManager},
	{TypeDiamond, probeDiamond},
}

// Resolve runs every scheme concurrently against target and returns the
// first positive result via any-of semantics, or nil if every scheme
// returns null or the wall-clock cap (r.timeout) elapses first. Never
// returns an error: an all-schemes-failed outcome is a nil result.
func (r *Resolver) Resolve(ctx context.Context, target common.Address) *Result {
	if r.client == nil || !r.client.HasRPC() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resultCh := make(chan *Result, len(schemes))
	var wg sync.WaitGroup
	var pendingMu sync.Mutex
	pending := make(map[ProxyType]bool, len(schemes))

	for _, s := range schemes {
		s := s
		pending[s.name] = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			res, err := s.probe(ctx, r, target)
			pendingMu.Lock()
			delete(pending, s.name)
			pendingMu.Unlock()
			if err != nil {
				r.log.Debug().Err(err).Str("scheme", string(s.name)).Dur("elapsed", time.Since(start)).Msg("proxy: scheme probe failed")
				return
			}
			if res != nil {
				select {
				case resultCh <- res:
				default:
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for {
		select {
		case res, ok := <-resultCh:
			if !ok {
				return nil
			}
			if res != nil {
				return res
			}
		case <-ctx.Done():
			pendingMu.Lock()
			for name := range pending {
				r.log.Warn().Str("scheme", string(name)).Str("target", target.Hex()).Msg("proxy: scheme timed out")
			}
			pendingMu.Unlock()
			return nil
		}
	}
}

// --- storage-slot and probe-call implementations ---

var (
	slotEIP1967Impl   = common.HexToHash(sub1(crypto.Keccak256Hash([]byte("eip1967.proxy.implementation"))))
	slotEIP1967Beacon = common.HexToHash(sub1(crypto.Keccak256Hash([]byte("eip1967.proxy.beacon"))))
	slotOZLegacy      = crypto.Keccak256Hash([]byte("org.zeppelinos.proxy.implementation"))
	slotProxiable     = crypto.Keccak256Hash([]byte("PROXIABLE"))
)

// sub1 computes hash-1, matching the EIP-1967 slot derivation
// "bytes32(uint256(keccak256('eip1967.proxy.implementation')) - 1)".
func sub1(h common.Hash) string {
	n := h.Big()
	n.Sub(n, big.NewInt(1))
	return common.BigToHash(n).Hex()
}

func probeEIP1967Direct(ctx context.Context, r *Resolver, target common.Address) (*Result, error) {
	slot, err := r.client.GetStorageAt(ctx, target, slotEIP1967Impl)
	if err != nil {
		return nil, err
	}
	impl := common.BytesToAddress(slot.Bytes())
	if impl == (common.Address{}) {
		return nil, nil
	}
	return &Result{Target: impl, ProxyType: TypeEIP1967Direct}, nil
}

func probeEIP1967Beacon(ctx context.Context, r *Resolver, target common.Address) (*Result, error) {
	slot, err := r.client.GetStorageAt(ctx, target, slotEIP1967Beacon)
	if err != nil {
		return nil, err
	}
	beacon := common.BytesToAddress(slot.Bytes())
	if beacon == (common.Address{}) {
		return nil, nil
	}

	iface, err := codec.NewInterfaceFromSignatures("implementation()")
	if err != nil {
		return nil, err
	}
	data, err := codec.EncodeCall(iface, "implementation")
	if err != nil {
		return nil, err
	}
	result, err := r.client.EthCall(ctx, beacon, data)
	if err != nil || len(result) < 32 {
		return nil, err
	}
	impl := common.BytesToAddress(result[len(result)-20:])
	if impl == (common.Address{}) {
		return nil, nil
	}
	return &Result{Target: impl, ProxyType: TypeEIP1967Beacon}, nil
}

func probeOZLegacy(ctx context.Context, r *Resolver, target common.Address) (*Result, error) {
	slot, err := r.client.GetStorageAt(ctx, target, slotOZLegacy)
	if err != nil {
		return nil, err
	}
	impl := common.BytesToAddress(slot.Bytes())
	if impl == (common.Address{}) {
		return nil, nil
	}
	return &Result{Target: impl, ProxyType: TypeOZLegacy}, nil
}

func probeEIP1822(ctx context.Context, r *Resolver, target common.Address) (*Result, error) {
	slot, err := r.client.GetStorageAt(ctx, target, slotProxiable)
	if err != nil {
		return nil, err
	}
	impl := common.BytesToAddress(slot.Bytes())
	if impl == (common.Address{}) {
		return nil, nil
	}
	return &Result{Target: impl, ProxyType: TypeEIP1822UUPS}, nil
}

// minimalProxyPrefix/suffix are the fixed EIP-1167 bytecode template either
// side of the 20-byte target address.
var (
	minimalProxyPrefix = common.FromHex("0x363d3d373d3d3d363d73")
	minimalProxySuffix = common.FromHex("0x5af43d82803e903d91602b57fd5bf3")
)

func probeMinimalProxy(ctx context.Context, r *Resolver, target common.Address) (*Result, error) {
	code, err := r.client.GetCode(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(code) != len(minimalProxyPrefix)+20+len(minimalProxySuffix) {
		return nil, nil
	}
	if !hasPrefix(code, minimalProxyPrefix) || !hasSuffix(code, minimalProxySuffix) {
		return nil, nil
	}
	impl := common.BytesToAddress(code[len(minimalProxyPrefix) : len(minimalProxyPrefix)+20])
	return &Result{Target: impl, ProxyType: TypeMinimalProxy, Immutable: true}, nil
}

func probeEIP897(ctx context.Context, r *Resolver, target common.Address) (*Result, error) {
	return callForAddress(ctx, r, target, "implementation()", "implementation", TypeEIP897)
}

func probeSafeProxy(ctx context.Context, r *Resolver, target common.Address) (*Result, error) {
	return callForAddress(ctx, r, target, "masterCopy()", "masterCopy", TypeSafeProxy)
}

func probeComptroller(ctx context.Context, r *Resolver, target common.Address) (*Result, error) {
	return callForAddress(ctx, r, target, "comptrollerImplementation()", "comptrollerImplementation", TypeComptroller)
}

func probeBalancerRelayer(ctx context.Context, r *Resolver, target common.Address) (*Result, error) {
	return callForAddress(ctx, r, target, "getLibrary()", "getLibrary", TypeBalancerRelayer)
}

func probeAddressManager(ctx context.Context, r *Resolver, target common.Address) (*Result, error) {
	// Two-slot read keyed by the proxy address itself: the AddressManager
	// contract address lives in one slot, the registered name in a second,
	// then AddressManager.getAddress(name) resolves the implementation.
	// Without a catalogued name per proxy this scheme degrades to "no
	// detection" rather than guessing a name; callers that know the
	// AddressManager/name pair should resolve it via the static config
	// instead.
	return nil, nil
}

func probeDiamond(ctx context.Context, r *Resolver, target common.Address) (*Result, error) {
	// EIP-2535 Diamond is not a linear proxy: facets are resolved
	// per-selector, not as a single implementation address, so this scheme
	// always returns null to the caller even when a diamondCut-style
	// contract is present.
	return nil, nil
}

func callForAddress(ctx context.Context, r *Resolver, target common.Address, sig, name string, proxyType ProxyType) (*Result, error) {
	iface, err := codec.NewInterfaceFromSignatures(sig)
	if err != nil {
		return nil, err
	}
	data, err := codec.EncodeCall(iface, name)
	if err != nil {
		return nil, err
	}
	result, err := r.client.EthCall(ctx, target, data)
	if err != nil {
		return nil, err
	}
	if len(result) < 32 {
		return nil, nil
	}
	impl := common.BytesToAddress(result[len(result)-20:])
	if impl == (common.Address{}) {
		return nil, nil
	}
	return &Result{Target: impl, ProxyType: proxyType}, nil
}

func hasPrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && equalBytes(b[:len(prefix)], prefix)
}

func hasSuffix(b, suffix []byte) bool {
	return len(b) >= len(suffix) && equalBytes(b[len(b)-len(suffix):], suffix)
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MultiChainProber adapts a per-chain Resolver map to the narrow
// implementation-lookup interface the metadata resolver consumes, so
// enrichment can attach implementation metadata without depending on the
// scheme machinery above.
type MultiChainProber struct {
	resolvers map[int64]*Resolver
}

func NewMultiChainProber(resolvers map[int64]*Resolver) *MultiChainProber {
	return &MultiChainProber{resolvers: resolvers}
}

// ImplementationOf returns the checksummed implementation address behind a
// proxy, or ("", false) when the address is not a detectable proxy or the
// chain has no RPC-backed resolver.
func (p *MultiChainProber) ImplementationOf(ctx context.Context, chainID int64, address string) (string, bool) {
	resolver, ok := p.resolvers[chainID]
	if !ok || resolver == nil {
		return "", false
	}
	res := resolver.Resolve(ctx, common.HexToAddress(address))
	if res == nil {
		return "", false
	}
	return res.Target.Hex(), true
}
