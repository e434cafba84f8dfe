package models

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodedFunctionMarshalJSONChecksumsAddresses(t *testing.T) {
	addr := common.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")
	d := DecodedFunction{
		Name:      "transfer",
		Signature: "transfer(address,uint256)",
		Selector:  "0xa9059cbb",
		Args:      []any{addr, big.NewInt(1000000)},
		ArgTypes:  []string{"address", "uint256"},
	}

	out, err := json.Marshal(d)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))

	args, ok := decoded["args"].([]any)
	require.True(t, ok)
	require.Len(t, args, 2)
	assert.Equal(t, addr.Hex(), args[0])
	assert.Equal(t, "1000000", args[1])
}

func TestDecodedFunctionMarshalJSONLargeIntegerStaysDecimalString(t *testing.T) {
	huge, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	d := DecodedFunction{Args: []any{huge}}
	out, err := json.Marshal(d)
	require.NoError(t, err)

	var decoded struct {
		Args []json.RawMessage `json:"args"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded.Args, 1)
	assert.Equal(t, `"`+huge.String()+`"`, string(decoded.Args[0]))
}

func TestDecodedFunctionMarshalJSONNestedSliceOfAddresses(t *testing.T) {
	a := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := common.HexToAddress("0x2222222222222222222222222222222222222222")

	d := DecodedFunction{Args: []any{[]common.Address{a, b}}}
	out, err := json.Marshal(d)
	require.NoError(t, err)

	var decoded struct {
		Args [][]string `json:"args"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded.Args, 1)
	assert.Equal(t, []string{a.Hex(), b.Hex()}, decoded.Args[0])
}

func TestDecodedFunctionMarshalJSONFixedBytesAsHex(t *testing.T) {
	var hash [32]byte
	copy(hash[:], []byte("0123456789abcdef0123456789abcde"))

	d := DecodedFunction{Args: []any{hash}}
	out, err := json.Marshal(d)
	require.NoError(t, err)

	var decoded struct {
		Args []string `json:"args"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded.Args, 1)
	assert.Equal(t, "0x"+hex.EncodeToString(hash[:]), decoded.Args[0])
}

func TestDecodedFunctionMarshalJSONNilArg(t *testing.T) {
	d := DecodedFunction{Args: []any{nil}}
	out, err := json.Marshal(d)
	require.NoError(t, err)

	var decoded struct {
		Args []any `json:"args"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded.Args, 1)
	assert.Nil(t, decoded.Args[0])
}
