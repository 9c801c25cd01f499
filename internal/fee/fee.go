// Package fee computes the surcharge owed on a lock deposit.
package fee

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrInvalidRate = errors.New("invalid fee rate")
	ErrOverflow    = errors.New("fee arithmetic overflow")
	ErrUnknownKind = errors.New("unknown fee kind")
)

// Kind is the fee mode a depositor selects.
type Kind uint8

const (
	KindFlat Kind = iota
	KindProportional
)

func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindProportional:
		return "proportional"
	}
	return "unknown"
}

// ParseKind parses "flat" or "proportional".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flat", "native":
		return KindFlat, nil
	case "proportional", "token":
		return KindProportional, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Mode is either Flat or Proportional.
type Mode interface {
	Kind() Kind
}

// Flat is a fixed charge in native ledger units, independent of deposit size.
type Flat struct {
	Amount uint64
}

func (Flat) Kind() Kind { return KindFlat }

// Proportional charges floor(amount * Numerator / Denominator) in the
// deposited asset.
type Proportional struct {
	Numerator   uint64
	Denominator uint64
}

func (Proportional) Kind() Kind { return KindProportional }

// Schedule is the fee configuration a deposit is charged against.
type Schedule struct {
	Flat        uint64
	Numerator   uint64
	Denominator uint64
}

// Validate rejects schedules that could divide by zero or charge more than
// the deposit itself.
func (s Schedule) Validate() error {
	if s.Denominator == 0 {
		return fmt.Errorf("%w: zero denominator", ErrInvalidRate)
	}
	if s.Numerator > s.Denominator {
		return fmt.Errorf("%w: %d/%d exceeds 100%%", ErrInvalidRate, s.Numerator, s.Denominator)
	}
	return nil
}

// Mode resolves the caller's kind into a variant carrying the configured rates.
func (s Schedule) Mode(k Kind) (Mode, error) {
	switch k {
	case KindFlat:
		return Flat{Amount: s.Flat}, nil
	case KindProportional:
		return Proportional{Numerator: s.Numerator, Denominator: s.Denominator}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, k)
}

// Compute returns the fee owed on a deposit of amount.
func Compute(amount uint64, mode Mode) (uint64, error) {
	switch m := mode.(type) {
	case Flat:
		return m.Amount, nil
	case Proportional:
		if m.Denominator == 0 {
			return 0, fmt.Errorf("%w: zero denominator", ErrInvalidRate)
		}
		product := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(m.Numerator))
		product.Div(product, uint256.NewInt(m.Denominator))
		if !product.IsUint64() {
			return 0, ErrOverflow
		}
		return product.Uint64(), nil
	}
	return 0, fmt.Errorf("%w: %T", ErrUnknownKind, mode)
}

// Total returns amount + fee, failing instead of wrapping.
func Total(amount, fee uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(amount), uint256.NewInt(fee))
	if overflow || !sum.IsUint64() {
		return 0, ErrOverflow
	}
	return sum.Uint64(), nil
}
