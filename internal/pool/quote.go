package pool

import (
	"fmt"
	"math/bits"

	verrors "github.com/lugondev/go-vaultswap/internal/errors"
)

// Side is the direction of a swap.
type Side uint8

const (
	// SideBuy pays asset B in and receives asset A.
	SideBuy Side = iota
	// SideSell pays asset A in and receives asset B.
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// QuoteBuy returns amountInB * rate, failing on u64 overflow.
func QuoteBuy(amountInB, rate uint64) (uint64, error) {
	if rate == 0 {
		return 0, verrors.ErrInvalidAmount.WithMessage("rate is zero")
	}
	hi, lo := bits.Mul64(amountInB, rate)
	if hi != 0 {
		return 0, verrors.ErrCalculationOverflow.WithDetails(map[string]any{
			"amount_in": amountInB,
			"rate":      rate,
		})
	}
	return lo, nil
}

// QuoteSell returns floor(amountInA / rate).
func QuoteSell(amountInA, rate uint64) (uint64, error) {
	if rate == 0 {
		return 0, verrors.ErrInvalidAmount.WithMessage("rate is zero")
	}
	return amountInA / rate, nil
}

// Quote prices a swap against the pool, applying its dust policy.
func (s *PoolState) Quote(side Side, amountIn uint64) (uint64, error) {
	if amountIn == 0 {
		return 0, verrors.ErrInvalidAmount.WithMessage("swap amount is zero")
	}

	var (
		out uint64
		err error
	)
	switch side {
	case SideBuy:
		out, err = QuoteBuy(amountIn, s.Rate)
	case SideSell:
		out, err = QuoteSell(amountIn, s.Rate)
	default:
		return 0, verrors.ErrUnknownInstruction.WithMessage("unknown swap side %d", side)
	}
	if err != nil {
		return 0, err
	}

	if out == 0 && s.DustPolicy == DustReject {
		return 0, verrors.ErrDustAmount.WithDetails(map[string]any{
			"side":      side.String(),
			"amount_in": amountIn,
			"rate":      s.Rate,
		})
	}
	return out, nil
}
