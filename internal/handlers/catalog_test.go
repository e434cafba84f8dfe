package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayEnrichmentKnownGateway(t *testing.T) {
	destChain, destArgs, ok := GatewayEnrichment(1, "0xd19d4B5d358258f05D7B411E21A1460D11B0876F", "sendMessage")
	require.True(t, ok)
	assert.Equal(t, int64(59144), destChain)
	assert.Contains(t, destArgs, 0)
}

func TestGatewayEnrichmentIsCaseInsensitiveOnAddress(t *testing.T) {
	_, _, ok := GatewayEnrichment(1, "0xd19d4b5d358258f05d7b411e21a1460d11b0876f", "sendMessage")
	assert.True(t, ok)
}

func TestGatewayEnrichmentUnknownMethodOrChain(t *testing.T) {
	_, _, ok := GatewayEnrichment(1, "0xd19d4B5d358258f05D7B411E21A1460D11B0876F", "otherMethod")
	assert.False(t, ok)

	_, _, ok = GatewayEnrichment(137, "0xd19d4B5d358258f05D7B411E21A1460D11B0876F", "sendMessage")
	assert.False(t, ok)
}
