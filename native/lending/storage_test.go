package lending

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"agentlend/core/state"
	"agentlend/storage"
)

func TestPersistenceRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.openPool(map[common.Address]int64{lenderA: 100, lenderB: 300})
	h.fund(borrowerAddr, 1_000)
	repaid, err := h.engine.RequestLoan(borrowerAddr, h.agentID, usdc(100), 30)
	require.NoError(t, err)
	require.NoError(t, h.engine.RepayLoan(borrowerAddr, repaid))
	open, err := h.engine.RequestLoan(borrowerAddr, h.agentID, usdc(50), 30)
	require.NoError(t, err)
	require.NoError(t, h.engine.SetPlatformFeeRate(ledgerOwner, 250))
	require.NoError(t, h.engine.Pause(ledgerOwner))

	db := storage.NewMemDB()
	manager := state.NewManager(db)
	require.NoError(t, h.engine.Save(manager))
	require.NoError(t, manager.Commit())

	restored := NewEngine(common.Address{}, moduleAddr, DefaultConfig())
	require.NoError(t, restored.Load(state.NewManager(db)))

	require.Equal(t, ledgerOwner, restored.Owner())
	require.Equal(t, uint64(250), restored.PlatformFeeBps())
	require.True(t, restored.Paused())
	require.Equal(t, h.engine.NextLoanID(), restored.NextLoanID())
	requireAmount(t, h.engine.AccumulatedFees(), restored.AccumulatedFees())
	require.Equal(t, 1, restored.ActiveLoanCount(h.agentID))
	require.Len(t, restored.LoansByAgent(h.agentID), 2)
	require.Equal(t, []common.Address{lenderA, lenderB}, restored.Lenders(h.agentID))

	want := h.pool()
	got, ok := restored.GetAgentPool(h.agentID)
	require.True(t, ok)
	requireAmount(t, want.TotalLiquidity, got.TotalLiquidity)
	requireAmount(t, want.TotalLoaned, got.TotalLoaned)
	requireAmount(t, want.TotalEarned, got.TotalEarned)
	require.Equal(t, want.LenderCount, got.LenderCount)

	pos, ok := restored.GetLenderPosition(h.agentID, lenderB)
	require.True(t, ok)
	requireAmount(t, h.position(lenderB).EarnedInterest, pos.EarnedInterest)

	loan, ok := restored.Loan(open)
	require.True(t, ok)
	require.Equal(t, LoanActive, loan.State)
	requireAmount(t, usdc(50), loan.Amount)

	// the restored ledger keeps operating against the same collaborators
	restored.SetIdentity(h.registry)
	restored.SetReputation(h.rep)
	restored.SetCustody(h.custody)
	restored.SetNowFunc(func() time.Time { return h.now })
	require.NoError(t, restored.Unpause(ledgerOwner))
	require.NoError(t, restored.RepayLoan(borrowerAddr, open))
	require.Zero(t, restored.ActiveLoanCount(h.agentID))
}

func TestLoadEmptyStoreKeepsDefaults(t *testing.T) {
	engine := NewEngine(ledgerOwner, moduleAddr, DefaultConfig())
	require.NoError(t, engine.Load(state.NewManager(storage.NewMemDB())))
	require.Equal(t, uint64(1), engine.NextLoanID())
	require.Equal(t, ledgerOwner, engine.Owner())
}
