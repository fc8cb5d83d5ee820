package lending

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateInterestExact(t *testing.T) {
	got := CalculateInterest(big.NewInt(1000), 500, 30*secondsPerDay)
	want := new(big.Int).Mul(big.NewInt(1000*500), big.NewInt(2_592_000))
	want.Quo(want, big.NewInt(10_000*31_536_000))
	requireAmount(t, want, got)
	requireAmount(t, big.NewInt(4), got)

	requireAmount(t, big.NewInt(0), CalculateInterest(big.NewInt(0), 500, 100))
	requireAmount(t, big.NewInt(0), CalculateInterest(big.NewInt(1000), 0, 100))
	requireAmount(t, big.NewInt(0), CalculateInterest(nil, 500, 100))

	// one full year at 15% on 1,000 tokens
	requireAmount(t, usdc(150), CalculateInterest(usdc(1000), 1500, secondsPerYear))
}

func TestSplitFee(t *testing.T) {
	fee, share := splitFee(big.NewInt(10_000), 100)
	requireAmount(t, big.NewInt(100), fee)
	requireAmount(t, big.NewInt(9_900), share)

	fee, share = splitFee(big.NewInt(99), 100)
	requireAmount(t, big.NewInt(0), fee)
	requireAmount(t, big.NewInt(99), share)
}

func TestSplitProRataAssignsDustToLargest(t *testing.T) {
	shares := splitProRata(big.NewInt(10), []*big.Int{big.NewInt(1), big.NewInt(1), big.NewInt(1)})
	require.Len(t, shares, 3)
	requireAmount(t, big.NewInt(4), shares[0])
	requireAmount(t, big.NewInt(3), shares[1])
	requireAmount(t, big.NewInt(3), shares[2])

	shares = splitProRata(big.NewInt(7), []*big.Int{big.NewInt(100), big.NewInt(0), big.NewInt(300)})
	requireAmount(t, big.NewInt(1), shares[0])
	requireAmount(t, big.NewInt(0), shares[1])
	requireAmount(t, big.NewInt(6), shares[2])

	require.Nil(t, splitProRata(big.NewInt(7), []*big.Int{big.NewInt(0), nil}))
}

func TestShareAndCollateral(t *testing.T) {
	require.Equal(t, uint64(2_500), shareBps(big.NewInt(100), big.NewInt(400)))
	require.Zero(t, shareBps(big.NewInt(100), big.NewInt(0)))
	requireAmount(t, big.NewInt(50), collateralFor(big.NewInt(100), 50))
	requireAmount(t, big.NewInt(0), collateralFor(big.NewInt(100), 0))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.PlatformFeeBps = MaxPlatformFeeBps + 1
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MinDurationDays = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxDurationDays = 3
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxActiveLoans = 0
	require.Error(t, cfg.Validate())
}
