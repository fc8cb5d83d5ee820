package reputation

import (
	"fmt"
	"math/big"
)

// TierBand maps every score at or above MinScore (and below the next band) to
// a fixed set of credit terms.
type TierBand struct {
	Tier            Tier
	MinScore        uint64
	CreditLimit     *big.Int
	InterestRateBps uint64
	CollateralPct   uint64
}

// TierTable lists the bands in ascending MinScore order.
type TierTable []TierBand

func usdc(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), big.NewInt(1_000_000))
}

// DefaultTierTable returns the standard UNRATED/SUBPRIME/STANDARD/PRIME bands.
func DefaultTierTable() TierTable {
	return TierTable{
		{Tier: TierUnrated, MinScore: 0, CreditLimit: usdc(1_000), InterestRateBps: 1500, CollateralPct: 100},
		{Tier: TierSubprime, MinScore: 500, CreditLimit: usdc(5_000), InterestRateBps: 1200, CollateralPct: 50},
		{Tier: TierStandard, MinScore: 670, CreditLimit: usdc(20_000), InterestRateBps: 800, CollateralPct: 25},
		{Tier: TierPrime, MinScore: 800, CreditLimit: usdc(50_000), InterestRateBps: 500, CollateralPct: 0},
	}
}

// Validate enforces that the bands cover the whole score range and that
// terms never get worse as the tier improves.
func (t TierTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("reputation: tier table empty")
	}
	if t[0].MinScore != 0 {
		return fmt.Errorf("reputation: lowest tier must start at score 0")
	}
	for i, band := range t {
		if band.CreditLimit == nil || band.CreditLimit.Sign() < 0 {
			return fmt.Errorf("reputation: tier %s credit limit invalid", band.Tier)
		}
		if band.CollateralPct > 100 {
			return fmt.Errorf("reputation: tier %s collateral above 100%%", band.Tier)
		}
		if band.InterestRateBps > 10_000 {
			return fmt.Errorf("reputation: tier %s rate above 100%%", band.Tier)
		}
		if band.MinScore > MaxScore {
			return fmt.Errorf("reputation: tier %s min score above %d", band.Tier, MaxScore)
		}
		if i == 0 {
			continue
		}
		prev := t[i-1]
		if band.MinScore <= prev.MinScore {
			return fmt.Errorf("reputation: tier %s must start above tier %s", band.Tier, prev.Tier)
		}
		if band.CreditLimit.Cmp(prev.CreditLimit) < 0 {
			return fmt.Errorf("reputation: tier %s credit limit below tier %s", band.Tier, prev.Tier)
		}
		if band.InterestRateBps > prev.InterestRateBps {
			return fmt.Errorf("reputation: tier %s rate above tier %s", band.Tier, prev.Tier)
		}
		if band.CollateralPct > prev.CollateralPct {
			return fmt.Errorf("reputation: tier %s collateral above tier %s", band.Tier, prev.Tier)
		}
	}
	return nil
}

// TermsFor resolves the credit terms for score. The result is a fresh copy.
func (t TierTable) TermsFor(score uint64) Terms {
	if len(t) == 0 {
		return Terms{Tier: TierUnrated, CreditLimit: big.NewInt(0), CollateralPct: 100}
	}
	band := t[0]
	for _, candidate := range t[1:] {
		if score < candidate.MinScore {
			break
		}
		band = candidate
	}
	limit := big.NewInt(0)
	if band.CreditLimit != nil {
		limit.Set(band.CreditLimit)
	}
	return Terms{
		Tier:            band.Tier,
		CreditLimit:     limit,
		InterestRateBps: band.InterestRateBps,
		CollateralPct:   band.CollateralPct,
	}
}

// Clone returns a deep copy of the table.
func (t TierTable) Clone() TierTable {
	out := make(TierTable, len(t))
	for i, band := range t {
		out[i] = band
		if band.CreditLimit != nil {
			out[i].CreditLimit = new(big.Int).Set(band.CreditLimit)
		}
	}
	return out
}
