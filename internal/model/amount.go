package model

import (
	"fmt"
	"math/big"
	"strings"
)

// Amount is an unsigned integer token amount in base units. It marshals
// as a bare JSON number so that relayer payloads survive a round trip
// bit-for-bit even beyond float64 precision.
type Amount struct {
	v big.Int
}

func NewAmount(v int64) Amount {
	var a Amount
	a.v.SetInt64(v)
	return a
}

func NewAmountFromBig(v *big.Int) Amount {
	var a Amount
	if v != nil {
		a.v.Set(v)
	}
	return a
}

// BigInt returns a copy of the underlying integer.
func (a Amount) BigInt() *big.Int {
	return new(big.Int).Set(&a.v)
}

func (a Amount) String() string {
	return a.v.Text(10)
}

func (a Amount) Sign() int {
	return a.v.Sign()
}

func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) IsZero() bool {
	return a.v.Sign() == 0
}

// Add returns a + b without mutating either operand.
func (a Amount) Add(b Amount) Amount {
	var out Amount
	out.v.Add(&a.v, &b.v)
	return out
}

// Sub returns a - b without mutating either operand.
func (a Amount) Sub(b Amount) Amount {
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out
}

func (a Amount) Float64() float64 {
	f, _ := new(big.Float).SetInt(&a.v).Float64()
	return f
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.v.Text(10)), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		a.v.SetInt64(0)
		return nil
	}
	if _, ok := a.v.SetString(s, 10); !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	if a.v.Sign() < 0 {
		return fmt.Errorf("negative amount %q", s)
	}
	return nil
}
