package reputation

import (
	"fmt"
	"math/big"
)

// BonusFunc computes the score increase for an on-time repayment of
// principal by an agent currently at score.
type BonusFunc func(score uint64, principal *big.Int) uint64

// BonusCurve parameterises the default bonus function: every StepUnits whole
// tokens of principal add one point on top of Base, capped at Max, and the
// result shrinks linearly as the score approaches MaxScore.
type BonusCurve struct {
	Base      uint64
	Max       uint64
	StepUnits uint64
}

// DefaultBonusCurve returns the production bonus parameters.
func DefaultBonusCurve() BonusCurve {
	return BonusCurve{Base: 10, Max: 50, StepUnits: 100}
}

// Validate checks the curve parameters.
func (c BonusCurve) Validate() error {
	if c.Max == 0 {
		return fmt.Errorf("reputation: bonus max must be positive")
	}
	if c.Base > c.Max {
		return fmt.Errorf("reputation: bonus base %d exceeds max %d", c.Base, c.Max)
	}
	if c.StepUnits == 0 {
		return fmt.Errorf("reputation: bonus step must be positive")
	}
	return nil
}

var tokenUnit = big.NewInt(1_000_000)

// Func returns the curve as a BonusFunc.
func (c BonusCurve) Func() BonusFunc {
	return func(score uint64, principal *big.Int) uint64 {
		if score >= MaxScore {
			return 0
		}
		raw := c.Base
		if principal != nil && principal.Sign() > 0 && c.StepUnits > 0 {
			steps := new(big.Int).Quo(principal, tokenUnit)
			steps.Quo(steps, new(big.Int).SetUint64(c.StepUnits))
			if steps.IsUint64() {
				raw = saturatingAdd(raw, steps.Uint64(), c.Max)
			} else {
				raw = c.Max
			}
		}
		if raw > c.Max {
			raw = c.Max
		}
		bonus := raw * (MaxScore - score) / MaxScore
		if bonus == 0 {
			bonus = 1
		}
		return bonus
	}
}

func saturatingAdd(a, b, ceiling uint64) uint64 {
	if a >= ceiling || b >= ceiling-a {
		return ceiling
	}
	return a + b
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
