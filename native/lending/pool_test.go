package lending

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"agentlend/core/events"
	"agentlend/native/reputation"
)

func TestCreatePool(t *testing.T) {
	h := newHarness(t)

	require.True(t, errors.Is(h.engine.CreatePool(outsider, h.agentID), ErrNotAgentOwner))
	require.True(t, errors.Is(h.engine.CreatePool(borrowerAddr, 99), ErrNotRegisteredAgent))

	require.NoError(t, h.engine.CreatePool(borrowerAddr, h.agentID))
	require.True(t, errors.Is(h.engine.CreatePool(borrowerAddr, h.agentID), ErrPoolAlreadyExists))

	pool := h.pool()
	require.True(t, pool.IsActive)
	require.Equal(t, borrowerAddr, pool.Owner)
	require.Zero(t, pool.TotalLiquidity.Sign())
	require.Equal(t, uint64(1), h.engine.TotalPools())
	require.Equal(t, []uint64{h.agentID}, h.engine.Pools())

	rec, ok := h.rep.Record(h.agentID)
	require.True(t, ok)
	require.Equal(t, reputation.DefaultInitialScore, rec.Score)
	require.Equal(t, []string{events.TypePoolCreated, events.TypeReputationUpdated}, h.recorder.Types())
	initialized, ok := h.recorder.Events[1].(events.ReputationUpdated)
	require.True(t, ok)
	require.Equal(t, "initialized", initialized.Reason)
	require.Equal(t, reputation.DefaultInitialScore, initialized.Score)
}

func TestCreatePoolRejectsInactiveAgent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.registry.SetActive(borrowerAddr, h.agentID, false))
	require.True(t, errors.Is(h.engine.CreatePool(borrowerAddr, h.agentID), ErrNotRegisteredAgent))
	require.Zero(t, h.engine.TotalPools())
}

func TestSupplyLiquidity(t *testing.T) {
	h := newHarness(t)
	h.openPool(map[common.Address]int64{lenderA: 100, lenderB: 300})

	pool := h.pool()
	requireAmount(t, usdc(400), pool.TotalLiquidity)
	requireAmount(t, usdc(400), pool.AvailableLiquidity)
	require.Equal(t, uint64(2), pool.LenderCount)
	requireAmount(t, usdc(400), h.balance(moduleAddr))
	requireAmount(t, usdc(0), h.balance(lenderA))

	pos := h.position(lenderA)
	requireAmount(t, usdc(100), pos.Amount)
	require.Equal(t, uint64(2_500), pos.ShareOfPoolBps)
	require.Equal(t, uint64(startTime.Unix()), pos.DepositTimestamp)
	require.Equal(t, uint64(7_500), h.position(lenderB).ShareOfPoolBps)

	require.True(t, errors.Is(h.engine.SupplyLiquidity(lenderA, h.agentID, usdc(0)), ErrInvalidAmount))
	require.True(t, errors.Is(h.engine.SupplyLiquidity(lenderA, 42, usdc(1)), ErrPoolNotFound))
	h.requireConserved()
}

func TestSupplyWithoutAllowanceChangesNothing(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.CreatePool(borrowerAddr, h.agentID))
	require.NoError(t, h.token.Mint(ledgerOwner, lenderA, usdc(50)))

	err := h.engine.SupplyLiquidity(lenderA, h.agentID, usdc(50))
	require.Error(t, err)
	requireAmount(t, usdc(50), h.balance(lenderA))
	require.Zero(t, h.pool().TotalLiquidity.Sign())
	_, ok := h.engine.GetLenderPosition(h.agentID, lenderA)
	require.False(t, ok)
	require.Equal(t, []string{events.TypePoolCreated, events.TypeReputationUpdated}, h.recorder.Types())
}

func TestSupplyToInactivePool(t *testing.T) {
	h := newHarness(t)
	h.openPool(map[common.Address]int64{lenderA: 100})

	require.True(t, errors.Is(h.engine.SetPoolActive(outsider, h.agentID, false), ErrNotAgentOwner))
	require.NoError(t, h.engine.SetPoolActive(borrowerAddr, h.agentID, false))
	h.fund(lenderB, 10)
	require.True(t, errors.Is(h.engine.SupplyLiquidity(lenderB, h.agentID, usdc(10)), ErrPoolInactive))

	// lenders can still leave a deactivated pool
	require.NoError(t, h.engine.WithdrawLiquidity(lenderA, h.agentID, usdc(100)))

	require.NoError(t, h.engine.SetPoolActive(ledgerOwner, h.agentID, true))
	require.NoError(t, h.engine.SupplyLiquidity(lenderB, h.agentID, usdc(10)))
}

func TestWithdrawLiquidity(t *testing.T) {
	h := newHarness(t)
	h.openPool(map[common.Address]int64{lenderA: 100, lenderB: 300})

	require.NoError(t, h.engine.WithdrawLiquidity(lenderA, h.agentID, usdc(40)))
	requireAmount(t, usdc(40), h.balance(lenderA))
	requireAmount(t, usdc(60), h.position(lenderA).Amount)
	requireAmount(t, usdc(360), h.pool().TotalLiquidity)
	h.requireConserved()

	require.True(t, errors.Is(h.engine.WithdrawLiquidity(outsider, h.agentID, usdc(1)), ErrInsufficientBalance))
	require.True(t, errors.Is(h.engine.WithdrawLiquidity(lenderA, h.agentID, usdc(0)), ErrInvalidAmount))
}

func TestLenderCountTracksOpenPositions(t *testing.T) {
	h := newHarness(t)
	h.openPool(map[common.Address]int64{lenderA: 100, lenderB: 300})
	require.Equal(t, uint64(2), h.pool().LenderCount)

	require.NoError(t, h.engine.WithdrawLiquidity(lenderA, h.agentID, usdc(100)))
	require.Equal(t, uint64(1), h.pool().LenderCount)

	require.NoError(t, h.engine.SupplyLiquidity(lenderA, h.agentID, usdc(20)))
	require.Equal(t, uint64(2), h.pool().LenderCount)
	require.Equal(t, []common.Address{lenderA, lenderB}, h.engine.Lenders(h.agentID))
}

func TestWithdrawalBoundary(t *testing.T) {
	h := newHarness(t)
	h.openPool(map[common.Address]int64{lenderA: 100})
	h.fund(borrowerAddr, 1_000)

	_, err := h.engine.RequestLoan(borrowerAddr, h.agentID, usdc(80), 30)
	require.NoError(t, err)

	// position is larger than what remains available
	require.True(t, errors.Is(h.engine.WithdrawLiquidity(lenderA, h.agentID, usdc(50)), ErrInsufficientPoolLiquidity))

	h.fund(lenderB, 1_000)
	require.NoError(t, h.engine.SupplyLiquidity(lenderB, h.agentID, usdc(1_000)))
	// pool is ample but the position is not
	require.True(t, errors.Is(h.engine.WithdrawLiquidity(lenderA, h.agentID, usdc(150)), ErrInsufficientBalance))

	require.NoError(t, h.engine.WithdrawLiquidity(lenderA, h.agentID, usdc(100)))
	h.requireConserved()
}
