package store

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsecurity/proposal-decoder/internal/models"
)

func TestStorePutThenGetRoundTripsPayload(t *testing.T) {
	s, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	key := models.ArtifactKey{ChainID: 1, Address: "0x1111111111111111111111111111111111111111", Kind: models.KindContractName}
	require.NoError(t, s.PutPayload(key, map[string]string{"name": "Comet", "source": "etherscan"}))

	entry, ok := s.Get(key)
	require.True(t, ok)
	assert.False(t, entry.IsNegative())

	var payload map[string]string
	require.NoError(t, json.Unmarshal(entry.Payload, &payload))
	assert.Equal(t, "Comet", payload["name"])
}

func TestStoreGetMissReturnsFalse(t *testing.T) {
	s, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	key := models.ArtifactKey{ChainID: 1, Address: "0x2222222222222222222222222222222222222222", Kind: models.KindABI}
	_, ok := s.Get(key)
	assert.False(t, ok)
}

func TestStorePutNegativeIsDistinguishableFromMiss(t *testing.T) {
	s, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	key := models.ArtifactKey{ChainID: 1, Address: "0x3333333333333333333333333333333333333333", Kind: models.KindABI}
	require.NoError(t, s.PutNegative(key, ReasonUnverifiedOrMissing))

	entry, ok := s.Get(key)
	require.True(t, ok)
	assert.True(t, entry.IsNegative())
	assert.Equal(t, ReasonUnverifiedOrMissing, entry.Negative)
}

func TestStorePersistsAcrossFreshInstances(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir, zerolog.Nop())
	require.NoError(t, err)

	key := models.ArtifactKey{ChainID: 1, Address: "0x4444444444444444444444444444444444444444", Kind: models.KindTokenInfo}
	require.NoError(t, s1.PutPayload(key, map[string]string{"symbol": "USDC"}))

	s2, err := New(dir, zerolog.Nop())
	require.NoError(t, err)
	entry, ok := s2.Get(key)
	require.True(t, ok)
	assert.False(t, entry.IsNegative())
}
