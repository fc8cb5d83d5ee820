package lending

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"agentlend/core/events"
	nativecommon "agentlend/native/common"
)

func TestPlatformFeeRate(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, uint64(100), h.engine.PlatformFeeBps())

	require.True(t, errors.Is(h.engine.SetPlatformFeeRate(outsider, 200), ErrNotOwner))
	require.True(t, errors.Is(h.engine.SetPlatformFeeRate(ledgerOwner, MaxPlatformFeeBps+1), ErrFeeTooHigh))
	require.NoError(t, h.engine.SetPlatformFeeRate(ledgerOwner, MaxPlatformFeeBps))
	require.Equal(t, uint64(MaxPlatformFeeBps), h.engine.PlatformFeeBps())

	evt, ok := h.recorder.Events[0].(events.PlatformFeeUpdated)
	require.True(t, ok)
	require.Equal(t, uint64(100), evt.PreviousBps)
}

func TestWithdrawPlatformFees(t *testing.T) {
	h := newHarness(t)
	h.openPool(map[common.Address]int64{lenderA: 1_000})
	h.fund(borrowerAddr, 2_000)
	id, err := h.engine.RequestLoan(borrowerAddr, h.agentID, usdc(1_000), 365)
	require.NoError(t, err)
	require.NoError(t, h.engine.RepayLoan(borrowerAddr, id))

	fees := h.engine.AccumulatedFees()
	// 15% of 1,000 for a year, 1% of which is retained
	requireAmount(t, big.NewInt(1_500_000), fees)

	require.True(t, errors.Is(h.engine.WithdrawPlatformFees(outsider, outsider, fees), ErrNotOwner))
	require.True(t, errors.Is(h.engine.WithdrawPlatformFees(ledgerOwner, outsider, new(big.Int).Add(fees, big.NewInt(1))), ErrInsufficientFees))
	require.True(t, errors.Is(h.engine.WithdrawPlatformFees(ledgerOwner, outsider, big.NewInt(0)), ErrInvalidAmount))

	require.NoError(t, h.engine.WithdrawPlatformFees(ledgerOwner, outsider, big.NewInt(500_000)))
	requireAmount(t, big.NewInt(500_000), h.balance(outsider))
	requireAmount(t, big.NewInt(1_000_000), h.engine.AccumulatedFees())

	require.NoError(t, h.engine.WithdrawPlatformFees(ledgerOwner, common.Address{}, big.NewInt(1_000_000)))
	requireAmount(t, big.NewInt(1_000_000), h.balance(ledgerOwner))
	require.Zero(t, h.engine.AccumulatedFees().Sign())
}

func TestPauseBlocksMutations(t *testing.T) {
	h := newHarness(t)
	h.openPool(map[common.Address]int64{lenderA: 1_000})
	h.fund(borrowerAddr, 1_000)
	id, err := h.engine.RequestLoan(borrowerAddr, h.agentID, usdc(100), 7)
	require.NoError(t, err)

	require.True(t, errors.Is(h.engine.Pause(outsider), ErrNotOwner))
	require.NoError(t, h.engine.Pause(ledgerOwner))
	require.True(t, h.engine.Paused())

	h.advance(8 * day)
	require.True(t, errors.Is(h.engine.CreatePool(borrowerAddr, h.agentID), ErrContractPaused))
	require.True(t, errors.Is(h.engine.SupplyLiquidity(lenderA, h.agentID, usdc(1)), ErrContractPaused))
	require.True(t, errors.Is(h.engine.WithdrawLiquidity(lenderA, h.agentID, usdc(1)), ErrContractPaused))
	_, err = h.engine.RequestLoan(borrowerAddr, h.agentID, usdc(1), 7)
	require.True(t, errors.Is(err, ErrContractPaused))
	require.True(t, errors.Is(h.engine.RepayLoan(borrowerAddr, id), ErrContractPaused))
	require.True(t, errors.Is(h.engine.LiquidateLoan(ledgerOwner, id), ErrContractPaused))
	_, err = h.engine.ClaimInterest(lenderA, h.agentID)
	require.True(t, errors.Is(err, nativecommon.ErrModulePaused))

	// admin controls stay available
	require.NoError(t, h.engine.SetPlatformFeeRate(ledgerOwner, 50))

	require.NoError(t, h.engine.Unpause(ledgerOwner))
	require.False(t, h.engine.Paused())
	require.NoError(t, h.engine.RepayLoan(borrowerAddr, id))

	types := h.recorder.Types()
	require.Contains(t, types, events.TypeLedgerPaused)
	require.Contains(t, types, events.TypeLedgerUnpaused)
}

func TestSharedPauseSet(t *testing.T) {
	h := newHarness(t)
	pauses := nativecommon.NewPauseSet()
	h.engine.SetPauses(pauses)
	pauses.Set("LENDING", true)
	require.True(t, h.engine.Paused())
	require.True(t, errors.Is(h.engine.CreatePool(borrowerAddr, h.agentID), ErrContractPaused))
}

func TestTransferOwnership(t *testing.T) {
	h := newHarness(t)
	require.True(t, errors.Is(h.engine.TransferOwnership(outsider, outsider), ErrNotOwner))
	require.True(t, errors.Is(h.engine.TransferOwnership(ledgerOwner, common.Address{}), ErrInvalidRecipient))

	require.NoError(t, h.engine.TransferOwnership(ledgerOwner, outsider))
	require.Equal(t, outsider, h.engine.Owner())
	require.True(t, errors.Is(h.engine.Pause(ledgerOwner), ErrNotOwner))
	require.NoError(t, h.engine.Pause(outsider))
}

func TestUnconfiguredEngine(t *testing.T) {
	engine := NewEngine(ledgerOwner, moduleAddr, DefaultConfig())
	require.True(t, errors.Is(engine.CreatePool(borrowerAddr, 1), errNotConfigured))
}
