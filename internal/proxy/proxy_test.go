package proxy

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
)

func TestSub1MatchesEIP1967SlotDerivation(t *testing.T) {
	h := crypto.Keccak256Hash([]byte("eip1967.proxy.implementation"))
	got := sub1(h)
	assert.Equal(t, "0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc", got)
}

func TestHasPrefixAndSuffix(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	assert.True(t, hasPrefix(data, []byte{0x01, 0x02}))
	assert.False(t, hasPrefix(data, []byte{0x02}))
	assert.False(t, hasPrefix(data, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}))

	assert.True(t, hasSuffix(data, []byte{0x04, 0x05}))
	assert.False(t, hasSuffix(data, []byte{0x04}))
}

func TestEqualBytes(t *testing.T) {
	assert.True(t, equalBytes([]byte{0x01, 0x02}, []byte{0x01, 0x02}))
	assert.False(t, equalBytes([]byte{0x01, 0x02}, []byte{0x01, 0x03}))
	assert.False(t, equalBytes([]byte{0x01}, []byte{0x01, 0x02}))
}

func TestMinimalProxyBytecodeShapeMatchesTemplate(t *testing.T) {
	impl := []byte{
		0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41,
		0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41,
	}
	code := append(append(append([]byte{}, minimalProxyPrefix...), impl...), minimalProxySuffix...)

	assert.Equal(t, len(minimalProxyPrefix)+20+len(minimalProxySuffix), len(code))
	assert.True(t, hasPrefix(code, minimalProxyPrefix))
	assert.True(t, hasSuffix(code, minimalProxySuffix))
	assert.Equal(t, impl, code[len(minimalProxyPrefix):len(minimalProxyPrefix)+20])
}
