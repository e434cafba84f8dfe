// Package codec implements the pure ABI encode/decode layer for the EVM
// calling convention: selector derivation, static/dynamic layout, and
// calldata-byte-range source tracking, on top of go-ethereum's accounts/abi.
package codec

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsecurity/proposal-decoder/internal/models"
)

// Interface wraps a parsed contract ABI — the set of function signatures a
// decodeCall / encodeCall can match against.
type Interface struct {
	ABI abi.ABI
}

// NewInterface parses a contract ABI JSON document.
func NewInterface(abiJSON string) (*Interface, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("codec: parsing ABI: %w", err)
	}
	return &Interface{ABI: parsed}, nil
}

// NewInterfaceFromSignatures builds a minimal ad-hoc interface out of bare
// function signatures, e.g. for probe calls where no full ABI is available.
// Each signature is in canonical form "name(t1,t2,...)".
func NewInterfaceFromSignatures(signatures ...string) (*Interface, error) {
	var b strings.Builder
	b.WriteString("[")
	for i, sig := range signatures {
		name, inputs, err := splitSignature(sig)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf(`{"type":"function","name":%q,"stateMutability":"view","inputs":[`, name))
		for j, t := range inputs {
			if j > 0 {
				b.WriteString(",")
			}
			b.WriteString(fmt.Sprintf(`{"name":"","type":%q}`, t))
		}
		b.WriteString(`],"outputs":[]}`)
	}
	b.WriteString("]")
	return NewInterface(b.String())
}

func splitSignature(sig string) (name string, inputs []string, err error) {
	open := strings.IndexByte(sig, '(')
	close := strings.LastIndexByte(sig, ')')
	if open < 0 || close < 0 || close < open {
		return "", nil, fmt.Errorf("codec: malformed signature %q", sig)
	}
	name = sig[:open]
	body := sig[open+1 : close]
	if body == "" {
		return name, nil, nil
	}
	return name, splitTopLevelCommas(body), nil
}

// splitTopLevelCommas splits a type list on commas that are not nested
// inside parentheses, so tuple types ("(address,uint256)") are kept whole.
func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// Selector computes the 4-byte function selector: the first four bytes of
// keccak256(signature), with signature in canonical form "name(t1,t2,...)".
func Selector(signature string) [4]byte {
	hash := crypto.Keccak256([]byte(signature))
	var sel [4]byte
	copy(sel[:], hash[:4])
	return sel
}

// SelectorHex is Selector formatted as "0x"-prefixed hex, the form stored on
// DecodedFunction.Selector.
func SelectorHex(signature string) string {
	sel := Selector(signature)
	return "0x" + hex.EncodeToString(sel[:])
}

// DecodeCall matches calldata's 4-byte prefix against iface's function set
// and decodes the remainder. Returns (nil, false) — never an error — when
// the selector is unknown, or argument decoding would read past the end of
// calldata, or a tuple/array length exceeds remaining bytes.
func DecodeCall(iface *Interface, calldata []byte, trackSources bool) (*models.DecodedFunction, bool) {
	if len(calldata) < 4 {
		return nil, false
	}

	method, err := iface.ABI.MethodById(calldata[:4])
	if err != nil {
		return nil, false
	}

	body := calldata[4:]
	values, err := method.Inputs.Unpack(body)
	if err != nil {
		return nil, false
	}

	decoded := &models.DecodedFunction{
		Name:      method.Name,
		Signature: method.Sig,
		Selector:  "0x" + hex.EncodeToString(method.ID),
		Args:      make([]any, len(values)),
		ArgTypes:  make([]string, len(method.Inputs)),
	}

	copy(decoded.Args, values)
	for i, input := range method.Inputs {
		decoded.ArgTypes[i] = input.Type.String()
		decoded.ArgParamInfo = append(decoded.ArgParamInfo, ParamInfo(input.Name, input.Type))
	}

	if trackSources {
		decoded.ArgSources = argSources(method.Inputs, body)
	}

	return decoded, true
}

// EncodeCall packs args for method name per iface, prefixed with its
// selector — used for probe calls.
func EncodeCall(iface *Interface, name string, args ...any) ([]byte, error) {
	packed, err := iface.ABI.Pack(name, args...)
	if err != nil {
		return nil, fmt.Errorf("codec: encoding call %s: %w", name, err)
	}
	return packed, nil
}

// ParamInfo converts a go-ethereum abi.Type into the recursive, serializable
// descriptor carried as DecodedFunction.ArgParamInfo[i].
func ParamInfo(name string, t abi.Type) models.ParamInfo {
	info := models.ParamInfo{
		Name:     name,
		BaseType: baseTypeName(t),
		Type:     t.String(),
	}

	switch t.T {
	case abi.TupleTy:
		info.Components = make([]models.ParamInfo, len(t.TupleElems))
		for i, elem := range t.TupleElems {
			fieldName := ""
			if i < len(t.TupleRawNames) {
				fieldName = t.TupleRawNames[i]
			}
			info.Components[i] = ParamInfo(fieldName, *elem)
		}
	case abi.SliceTy, abi.ArrayTy:
		child := ParamInfo("", *t.Elem)
		info.ArrayChildren = &child
	}

	return info
}

func baseTypeName(t abi.Type) string {
	switch t.T {
	case abi.AddressTy:
		return "address"
	case abi.BoolTy:
		return "bool"
	case abi.UintTy:
		return "uint"
	case abi.IntTy:
		return "int"
	case abi.StringTy:
		return "string"
	case abi.BytesTy:
		return "bytes"
	case abi.FixedBytesTy:
		return "fixedBytes"
	case abi.SliceTy:
		return "slice"
	case abi.ArrayTy:
		return "array"
	case abi.TupleTy:
		return "tuple"
	case abi.FunctionTy:
		return "function"
	case abi.HashTy:
		return "hash"
	case abi.FixedPointTy:
		return "fixedPoint"
	default:
		return "unknown"
	}
}

// IsStaticType reports whether t has no dynamic component anywhere in its
// structure (address, uintN, intN, bool, bytesN for N<=32, and tuples/
// fixed-size arrays whose every component is static): (uint256,bool) is
// static, (uint256,bytes) is not.
func IsStaticType(t abi.Type) bool {
	return !isDynamicType(t)
}

func isDynamicType(t abi.Type) bool {
	switch t.T {
	case abi.StringTy, abi.BytesTy, abi.SliceTy, abi.FunctionTy:
		return true
	case abi.ArrayTy:
		return isDynamicType(*t.Elem)
	case abi.TupleTy:
		for _, elem := range t.TupleElems {
			if isDynamicType(*elem) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// staticSize returns the number of bytes a static type occupies inline in
// the ABI head. Only valid for types where IsStaticType is true.
func staticSize(t abi.Type) int {
	switch t.T {
	case abi.TupleTy:
		size := 0
		for _, elem := range t.TupleElems {
			size += staticSize(*elem)
		}
		return size
	case abi.ArrayTy:
		return t.Size * staticSize(*t.Elem)
	default:
		return 32
	}
}
