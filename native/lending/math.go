package lending

import "math/big"

const (
	secondsPerDay  = 86_400
	secondsPerYear = 31_536_000
)

var (
	basisPoints = big.NewInt(10_000)
	hundred     = big.NewInt(100)
	yearDenom   = new(big.Int).Mul(basisPoints, big.NewInt(secondsPerYear))
)

// CalculateInterest returns principal * rateBps * durationSeconds /
// (10000 * secondsPerYear) rounded down. Quotes and settlement both use it.
func CalculateInterest(principal *big.Int, rateBps, durationSeconds uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || rateBps == 0 || durationSeconds == 0 {
		return big.NewInt(0)
	}
	interest := new(big.Int).Mul(principal, new(big.Int).SetUint64(rateBps))
	interest.Mul(interest, new(big.Int).SetUint64(durationSeconds))
	return interest.Quo(interest, yearDenom)
}

// splitFee divides interest into the platform fee and the lender share.
func splitFee(interest *big.Int, feeBps uint64) (fee, lenderShare *big.Int) {
	if interest == nil || interest.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	fee = new(big.Int).Mul(interest, new(big.Int).SetUint64(feeBps))
	fee.Quo(fee, basisPoints)
	return fee, new(big.Int).Sub(interest, fee)
}

// collateralFor returns amount * pct / 100 rounded down.
func collateralFor(amount *big.Int, pct uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || pct == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(pct))
	return out.Quo(out, hundred)
}

// shareBps returns part * 10000 / whole rounded down.
func shareBps(part, whole *big.Int) uint64 {
	if part == nil || whole == nil || part.Sign() <= 0 || whole.Sign() <= 0 {
		return 0
	}
	share := new(big.Int).Mul(part, basisPoints)
	share.Quo(share, whole)
	if !share.IsUint64() {
		return 0
	}
	return share.Uint64()
}

// splitProRata divides total across weights in proportion, rounding each share
// down. The undistributed remainder goes to the largest weight, the earliest
// one on ties, so the shares always sum to total. It returns nil when every
// weight is zero.
func splitProRata(total *big.Int, weights []*big.Int) []*big.Int {
	sum := big.NewInt(0)
	largest := -1
	for i, w := range weights {
		if w == nil || w.Sign() <= 0 {
			continue
		}
		sum.Add(sum, w)
		if largest < 0 || w.Cmp(weights[largest]) > 0 {
			largest = i
		}
	}
	if sum.Sign() == 0 {
		return nil
	}
	shares := make([]*big.Int, len(weights))
	distributed := big.NewInt(0)
	for i, w := range weights {
		if w == nil || w.Sign() <= 0 || total == nil || total.Sign() <= 0 {
			shares[i] = big.NewInt(0)
			continue
		}
		share := new(big.Int).Mul(total, w)
		share.Quo(share, sum)
		shares[i] = share
		distributed.Add(distributed, share)
	}
	if total != nil && total.Sign() > 0 {
		shares[largest].Add(shares[largest], new(big.Int).Sub(total, distributed))
	}
	return shares
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
