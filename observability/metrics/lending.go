package metrics

import (
	"math/big"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// tokenDecimals is the fixed-point precision of ledger amounts.
const tokenDecimals = 6

type LendingMetrics struct {
	operations *prometheus.CounterVec
	rollbacks  *prometheus.CounterVec
	liquidity  *prometheus.GaugeVec
	fees       prometheus.Gauge
	scores     *prometheus.GaugeVec
	events     *prometheus.CounterVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the lazily-initialised ledger metrics registry.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agentlend",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agentlend",
				Subsystem: "ledger",
				Name:      "rollbacks_total",
				Help:      "Staged transitions reverted after mutation began, by operation and reason.",
			}, []string{"operation", "reason"}),
			liquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "agentlend",
				Subsystem: "pool",
				Name:      "liquidity",
				Help:      "Pool liquidity in whole tokens by agent and bucket.",
			}, []string{"agent", "bucket"}),
			fees: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "agentlend",
				Subsystem: "ledger",
				Name:      "accumulated_fees",
				Help:      "Platform fees held for the ledger owner in whole tokens.",
			}),
			scores: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "agentlend",
				Subsystem: "reputation",
				Name:      "score",
				Help:      "Current reputation score by agent.",
			}, []string{"agent"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agentlend",
				Subsystem: "eventlog",
				Name:      "events_total",
				Help:      "Events archived by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.rollbacks,
			lendingRegistry.liquidity,
			lendingRegistry.fees,
			lendingRegistry.scores,
			lendingRegistry.events,
		)
	})
	return lendingRegistry
}

func (m *LendingMetrics) RecordOperation(operation, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *LendingMetrics) RecordRollback(operation, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rollbacks.WithLabelValues(operation, reason).Inc()
}

// SetPoolLiquidity publishes the three liquidity buckets of a pool.
func (m *LendingMetrics) SetPoolLiquidity(agentID uint64, total, available, loaned *big.Int) {
	if m == nil {
		return
	}
	agent := strconv.FormatUint(agentID, 10)
	m.liquidity.WithLabelValues(agent, "total").Set(tokens(total))
	m.liquidity.WithLabelValues(agent, "available").Set(tokens(available))
	m.liquidity.WithLabelValues(agent, "loaned").Set(tokens(loaned))
}

func (m *LendingMetrics) SetAccumulatedFees(amount *big.Int) {
	if m == nil {
		return
	}
	m.fees.Set(tokens(amount))
}

func (m *LendingMetrics) SetReputationScore(agentID, score uint64) {
	if m == nil {
		return
	}
	m.scores.WithLabelValues(strconv.FormatUint(agentID, 10)).Set(float64(score))
}

func (m *LendingMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}

func tokens(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	return decimal.NewFromBigInt(amount, -tokenDecimals).InexactFloat64()
}
