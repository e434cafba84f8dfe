package metadata

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsecurity/proposal-decoder/internal/models"
	"github.com/chainsecurity/proposal-decoder/internal/store"
)

func newTestStaticProvider() *StaticProvider {
	return &StaticProvider{
		deployConfig: make(map[string]StaticEntry),
		curated:      make(map[string]StaticEntry),
		log:          zerolog.Nop(),
	}
}

func TestPickContractNameGenericNameIsOverridden(t *testing.T) {
	r := New(newTestStaticProvider(), nil, nil, nil, nil, false, zerolog.Nop())

	candidates := []models.Sourced[string]{
		{Value: "TransparentUpgradeableProxy"},
		{Value: "CometProxyAdmin"},
	}
	meta := &models.AddressMetadata{}
	r.pickContractName(meta, candidates)
	assert.Equal(t, "CometProxyAdmin", meta.ContractName)
}

func TestPickContractNameFirstNonGenericWinsOverLaterGeneric(t *testing.T) {
	r := New(newTestStaticProvider(), nil, nil, nil, nil, false, zerolog.Nop())

	candidates := []models.Sourced[string]{
		{Value: "Comet"},
		{Value: "Proxy"},
	}
	meta := &models.AddressMetadata{}
	r.pickContractName(meta, candidates)
	assert.Equal(t, "Comet", meta.ContractName)
}

func TestConsiderTokenSymbolLongestStringWins(t *testing.T) {
	r := New(newTestStaticProvider(), nil, nil, nil, nil, false, zerolog.Nop())

	meta := &models.AddressMetadata{}
	r.considerTokenSymbol(meta, "ETH", models.DataSource{Kind: models.SourceOnChain})
	r.considerTokenSymbol(meta, "WETH", models.DataSource{Kind: models.SourceStaticMetadata})
	r.considerTokenSymbol(meta, "E", models.DataSource{Kind: models.SourceOnChain})
	assert.Equal(t, "WETH", meta.TokenSymbol)
}

func TestResolveUsesStaticProviderWhenNoOtherSourcesConfigured(t *testing.T) {
	static := newTestStaticProvider()
	static.deployConfig[key(1, "0x1111111111111111111111111111111111111111")] = StaticEntry{
		ContractName: "Comet",
		TokenSymbol:  "USDC",
	}

	r := New(static, nil, nil, nil, nil, false, zerolog.Nop())
	meta := r.Resolve(context.Background(), 1, "0x1111111111111111111111111111111111111111")

	require.NotNil(t, meta)
	assert.Equal(t, "Comet", meta.ContractName)
	assert.Equal(t, "USDC", meta.TokenSymbol)
}

func TestExplorerContractNameUsesCacheBeforeNetwork(t *testing.T) {
	st, err := store.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	addr := "0x7777777777777777777777777777777777777777"
	name := "Configurator"
	key := models.ArtifactKey{ChainID: 1, Address: addr, Kind: models.KindContractName}
	require.NoError(t, st.PutPayload(key, cachedContractName{Name: &name, Source: "etherscan"}))

	// explorer is nil: a cache miss would return nothing, so a hit proves
	// the cache was consulted.
	r := New(newTestStaticProvider(), nil, nil, st, nil, false, zerolog.Nop())
	got, ok := r.explorerContractName(context.Background(), 1, addr)
	require.True(t, ok)
	assert.Equal(t, "Configurator", got)
}

func TestExplorerContractNameCachedNullIsAuthoritativeAbsence(t *testing.T) {
	st, err := store.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	addr := "0x8888888888888888888888888888888888888888"
	key := models.ArtifactKey{ChainID: 1, Address: addr, Kind: models.KindContractName}
	require.NoError(t, st.PutPayload(key, cachedContractName{Name: nil, Source: "etherscan"}))

	r := New(newTestStaticProvider(), nil, nil, st, nil, false, zerolog.Nop())
	_, ok := r.explorerContractName(context.Background(), 1, addr)
	assert.False(t, ok)
}
