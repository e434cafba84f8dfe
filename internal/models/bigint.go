package models

import (
	"fmt"
	"math/big"
)

// BigInt serializes as a decimal string, so values beyond float precision
// survive JSON round-trips. Applied to every arbitrary-precision integer
// uniformly rather than branching on magnitude, which keeps the wire
// format stable regardless of value.
type BigInt struct {
	*big.Int
}

// NewBigInt wraps v (nil becomes a BigInt wrapping nil, which marshals as
// JSON null).
func NewBigInt(v *big.Int) BigInt {
	return BigInt{v}
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	if b.Int == nil {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", b.Int.String())), nil
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		b.Int = nil
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("models: invalid big integer %q", s)
	}
	b.Int = v
	return nil
}
