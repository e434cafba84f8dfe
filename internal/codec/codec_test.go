package codec

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorDerivation(t *testing.T) {
	assert.Equal(t, "0xa9059cbb", SelectorHex("transfer(address,uint256)"))
	assert.Equal(t, "0xda95691a", SelectorHex("propose(address[],uint256[],bytes[],string)"))
}

const transferABI = `[{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`

func TestDecodeCallRoundTrip(t *testing.T) {
	iface, err := NewInterface(transferABI)
	require.NoError(t, err)

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	amount := big.NewInt(1000000)

	calldata, err := EncodeCall(iface, "transfer", to, amount)
	require.NoError(t, err)

	decoded, ok := DecodeCall(iface, calldata, false)
	require.True(t, ok)
	assert.Equal(t, "transfer", decoded.Name)
	assert.Equal(t, "0xa9059cbb", decoded.Selector)
	require.Len(t, decoded.Args, 2)
	amountOut, ok := decoded.Args[1].(interface{ String() string })
	require.True(t, ok)
	assert.Equal(t, "1000000", amountOut.String())
}

func TestDecodeCallUnknownSelector(t *testing.T) {
	iface, err := NewInterface(transferABI)
	require.NoError(t, err)

	_, ok := DecodeCall(iface, []byte{0xde, 0xad, 0xbe, 0xef}, false)
	assert.False(t, ok)
}

func TestDecodeCallTruncatedCalldata(t *testing.T) {
	iface, err := NewInterface(transferABI)
	require.NoError(t, err)

	sel := Selector("transfer(address,uint256)")
	_, ok := DecodeCall(iface, sel[:], false)
	assert.False(t, ok)
}

const fooABI = `[{"type":"function","name":"foo","stateMutability":"nonpayable","inputs":[{"name":"a","type":"uint256"},{"name":"b","type":"bytes"}],"outputs":[]}]`

func TestArgSourcesStaticThenDynamic(t *testing.T) {
	iface, err := NewInterface(fooABI)
	require.NoError(t, err)

	calldata, err := EncodeCall(iface, "foo", big.NewInt(42), []byte("hello world"))
	require.NoError(t, err)

	decoded, ok := DecodeCall(iface, calldata, true)
	require.True(t, ok)
	require.Len(t, decoded.ArgSources, 2)

	assert.Equal(t, 4, decoded.ArgSources[0].Offset)
	assert.Equal(t, 32, decoded.ArgSources[0].Length)

	// argSources[1] must point into the tail, at 4 + value_of_slot1 (the head
	// pointer for "b").
	body := calldata[4:]
	ptr := new(big.Int).SetBytes(body[32:64]).Int64()
	assert.Equal(t, int(4+ptr), decoded.ArgSources[1].Offset)
}

func TestIsStaticType(t *testing.T) {
	tupleType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "a", Type: "uint256"},
		{Name: "b", Type: "bool"},
	})
	require.NoError(t, err)
	assert.True(t, IsStaticType(tupleType))

	dynamicTupleType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "a", Type: "uint256"},
		{Name: "b", Type: "bytes"},
	})
	require.NoError(t, err)
	assert.False(t, IsStaticType(dynamicTupleType))
}

func TestCollectAddressesByArgGroupsPerArgument(t *testing.T) {
	iface, err := NewInterface(`[{"type":"function","name":"route","inputs":[
	  {"name":"from","type":"address"},
	  {"name":"to","type":"address[]"},
	  {"name":"amount","type":"uint256"}],"outputs":[]}]`)
	require.NoError(t, err)

	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	dest := common.HexToAddress("0x2222222222222222222222222222222222222222")

	calldata, err := EncodeCall(iface, "route", from, []common.Address{dest, from}, big.NewInt(1))
	require.NoError(t, err)

	decoded, ok := DecodeCall(iface, calldata, false)
	require.True(t, ok)

	byArg := CollectAddressesByArg(decoded)
	require.Len(t, byArg, 3)
	assert.Equal(t, []string{from.Hex()}, byArg[0])
	assert.Equal(t, []string{dest.Hex(), from.Hex()}, byArg[1])
	assert.Empty(t, byArg[2])
}
