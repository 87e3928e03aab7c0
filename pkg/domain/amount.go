package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	dErrors "remit/pkg/domain-errors"
)

// MaxAmountBits bounds every Amount. Intermediate products (amount * rate)
// are computed in 256 bits, so fee math can never wrap.
const MaxAmountBits = 128

var (
	ErrAmountOverflow  = dErrors.New(dErrors.CodeInvalidInput, "amount exceeds 128 bits")
	ErrAmountUnderflow = dErrors.New(dErrors.CodeInvariantViolation, "amount underflow")
	ErrAmountSyntax    = dErrors.New(dErrors.CodeInvalidInput, "amount must be a non-negative decimal integer")
)

// Amount is an unsigned value in the smallest unit. All arithmetic is checked;
// nothing wraps silently.
type Amount struct {
	v uint256.Int
}

// NewAmount builds an Amount from a uint64.
func NewAmount(u uint64) Amount {
	var a Amount
	a.v.SetUint64(u)
	return a
}

// ParseAmount parses a base-10 string.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Amount{}, ErrAmountSyntax
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		if errors.Is(err, uint256.ErrBig256Range) {
			return Amount{}, ErrAmountOverflow
		}
		return Amount{}, ErrAmountSyntax
	}
	if v.BitLen() > MaxAmountBits {
		return Amount{}, ErrAmountOverflow
	}
	return Amount{v: *v}, nil
}

// MustParseAmount panics on malformed input. Use for fixtures only.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// MaxAmount returns 2^128 - 1.
func MaxAmount() Amount {
	var a Amount
	a.v.Lsh(uint256.NewInt(1), MaxAmountBits)
	a.v.SubUint64(&a.v, 1)
	return a
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) Equal(b Amount) bool {
	return a.v.Eq(&b.v)
}

func (a Amount) LessThan(b Amount) bool {
	return a.v.Lt(&b.v)
}

// Add returns a+b or ErrAmountOverflow when the sum exceeds MaxAmountBits.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow || out.v.BitLen() > MaxAmountBits {
		return Amount{}, ErrAmountOverflow
	}
	return out, nil
}

// Sub returns a-b or ErrAmountUnderflow when b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrAmountUnderflow
	}
	return out, nil
}

// MulDiv returns floor(a * mul / div). a < 2^128 and mul < 2^64, so the
// product always fits in 256 bits and the quotient never exceeds a when
// mul <= div.
func (a Amount) MulDiv(mul, div uint64) Amount {
	if div == 0 {
		panic("domain: MulDiv by zero")
	}
	var out Amount
	out.v.Mul(&a.v, uint256.NewInt(mul))
	out.v.Div(&out.v, uint256.NewInt(div))
	return out
}

// Float64 is lossy; use only for metrics.
func (a Amount) Float64() float64 {
	return a.v.Float64()
}

func (a Amount) String() string {
	return a.v.Dec()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.v.Dec() + `"`), nil
}

// UnmarshalJSON accepts a quoted decimal string or a bare JSON integer.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.v.Dec()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value stores the amount as a decimal string (NUMERIC columns).
func (a Amount) Value() (driver.Value, error) {
	return a.v.Dec(), nil
}

// Scan reads NUMERIC values delivered as string or []byte.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		if v < 0 {
			return ErrAmountSyntax
		}
		*a = NewAmount(uint64(v))
		return nil
	case nil:
		*a = Amount{}
		return nil
	default:
		return fmt.Errorf("domain: cannot scan %T into Amount", src)
	}
}
