package metrics

import (
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLendingRegistrySingleton(t *testing.T) {
	require.Same(t, Lending(), Lending())
}

func TestLendingOperationCounter(t *testing.T) {
	m := Lending()
	before := testutil.ToFloat64(m.operations.WithLabelValues("supply", "ok"))
	m.RecordOperation("supply", "ok")
	require.Equal(t, before+1, testutil.ToFloat64(m.operations.WithLabelValues("supply", "ok")))

	m.RecordRollback("borrow", "")
	require.GreaterOrEqual(t, testutil.ToFloat64(m.rollbacks.WithLabelValues("borrow", "unknown")), 1.0)
}

func TestPoolLiquidityInWholeTokens(t *testing.T) {
	m := Lending()
	m.SetPoolLiquidity(7, big.NewInt(2_500_000), big.NewInt(1_000_000), big.NewInt(1_500_000))
	require.Equal(t, 2.5, testutil.ToFloat64(m.liquidity.WithLabelValues("7", "total")))
	require.Equal(t, 1.5, testutil.ToFloat64(m.liquidity.WithLabelValues("7", "loaned")))

	m.SetReputationScore(7, 640)
	require.Equal(t, 640.0, testutil.ToFloat64(m.scores.WithLabelValues("7")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *LendingMetrics
	m.RecordOperation("supply", "ok")
	m.SetPoolLiquidity(1, nil, nil, nil)
	m.SetAccumulatedFees(big.NewInt(1))
}
