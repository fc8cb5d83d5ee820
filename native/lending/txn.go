package lending

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"agentlend/core/events"
	nativecommon "agentlend/native/common"
	"agentlend/native/reputation"
)

// txn stages one ledger operation. Every mutation registers an undo action in
// the journal and every event is buffered until commit. Value moves through
// custody pull-first, push-last, and an operation makes at most one push, so
// a failed push is compensated by replaying the journal.
type txn struct {
	engine  *Engine
	op      string
	journal *nativecommon.Journal
	events  events.Buffer
	touched map[uint64]struct{}
	pushed  bool
}

func (e *Engine) begin(op string) *txn {
	return &txn{
		engine:  e,
		op:      op,
		journal: nativecommon.NewJournal(),
		touched: make(map[uint64]struct{}),
	}
}

func (tx *txn) emit(evt events.Event) { tx.events.Emit(evt) }

// touchPool snapshots the pool so it can be restored on revert.
func (tx *txn) touchPool(pool *Pool) {
	tx.touched[pool.AgentID] = struct{}{}
	prev := pool.Clone()
	tx.journal.Append(func() { *pool = *prev })
}

func (tx *txn) touchPosition(pos *LenderPosition) {
	prev := pos.Clone()
	tx.journal.Append(func() { *pos = *prev })
}

func (tx *txn) touchLoan(loan *Loan) {
	prev := loan.Clone()
	tx.journal.Append(func() { *loan = *prev })
}

func (tx *txn) setFees(value *big.Int) {
	e := tx.engine
	prev := e.accumulatedFees
	e.accumulatedFees = value
	tx.journal.Append(func() { e.accumulatedFees = prev })
}

// reserve reserves credit and registers the matching release.
func (tx *txn) reserve(agentID uint64, principal *big.Int) error {
	e := tx.engine
	if err := e.reputation.Reserve(e.moduleAddress, agentID, principal); err != nil {
		return err
	}
	amount := new(big.Int).Set(principal)
	tx.journal.Append(func() {
		if err := e.reputation.Release(e.moduleAddress, agentID, amount); err != nil {
			e.logger.Error("lending: release reservation during revert", "op", tx.op, "agentId", agentID, "error", err)
		}
	})
	return nil
}

// restoreRecord registers a reputation restore to the supplied snapshot.
func (tx *txn) restoreRecord(prev reputation.Record) {
	e := tx.engine
	tx.journal.Append(func() {
		if err := e.reputation.Restore(e.moduleAddress, prev); err != nil {
			e.logger.Error("lending: restore reputation during revert", "op", tx.op, "agentId", prev.AgentID, "error", err)
		}
	})
}

// pull moves amount from party into custody and registers a refund.
func (tx *txn) pull(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	e := tx.engine
	if err := e.custody.TransferIn(from, amount); err != nil {
		return fmt.Errorf("lending engine: transfer in: %w", err)
	}
	refund := new(big.Int).Set(amount)
	tx.journal.Append(func() {
		if err := e.custody.TransferOut(from, refund); err != nil {
			e.logger.Error("lending: refund during revert", "op", tx.op, "to", from.Hex(), "amount", refund.String(), "error", err)
		}
	})
	return nil
}

// push verifies the staged state and then pays amount out of custody. It must
// be the last effect of an operation.
func (tx *txn) push(to common.Address, amount *big.Int) error {
	if tx.pushed {
		return errors.New("lending engine: operation attempted a second transfer out")
	}
	if err := tx.verify(amount); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := tx.engine.custody.TransferOut(to, amount); err != nil {
		return fmt.Errorf("lending engine: transfer out: %w", err)
	}
	tx.pushed = true
	return nil
}

// verify checks conservation on every touched pool and custody solvency after
// the pending transfer out.
func (tx *txn) verify(pendingOut *big.Int) error {
	e := tx.engine
	for agentID := range tx.touched {
		pool := e.pools[agentID]
		if pool == nil {
			continue
		}
		sum := new(big.Int).Add(pool.AvailableLiquidity, pool.TotalLoaned)
		if sum.Cmp(pool.TotalLiquidity) != 0 {
			return fmt.Errorf("%w: pool %d total %s != available %s + loaned %s", ErrInvariantViolation,
				agentID, pool.TotalLiquidity, pool.AvailableLiquidity, pool.TotalLoaned)
		}
		if pool.AvailableLiquidity.Sign() < 0 || pool.TotalLoaned.Sign() < 0 {
			return fmt.Errorf("%w: pool %d negative liquidity", ErrInvariantViolation, agentID)
		}
		claims := big.NewInt(0)
		for _, lender := range e.lenders[agentID] {
			pos := e.positions[agentID][lender]
			claims.Add(claims, pos.Amount)
			claims.Add(claims, pos.EarnedInterest)
		}
		if claims.Cmp(pool.TotalLiquidity) != 0 {
			return fmt.Errorf("%w: pool %d lender claims %s != total %s", ErrInvariantViolation,
				agentID, claims, pool.TotalLiquidity)
		}
	}
	if e.custody == nil {
		return nil
	}
	required := e.requiredCustody()
	held := e.custody.BalanceOf(e.moduleAddress)
	if held == nil {
		held = big.NewInt(0)
	}
	available := new(big.Int).Set(held)
	if pendingOut != nil {
		available.Sub(available, pendingOut)
	}
	if available.Cmp(required) < 0 {
		return fmt.Errorf("%w: custody holds %s after transfer, ledger owes %s", ErrInvariantViolation, available, required)
	}
	return nil
}

// abort reverts every staged effect and returns err.
func (tx *txn) abort(err error) error {
	e := tx.engine
	staged := tx.journal.Len()
	tx.journal.Revert()
	tx.events.Reset()
	if staged == 0 {
		e.metrics.RecordOperation(tx.op, "rejected")
		return err
	}
	reason := "custody"
	if errors.Is(err, ErrInvariantViolation) {
		reason = "invariant"
		e.logger.Error("lending: invariant violated, operation reverted", "op", tx.op, "error", err)
	} else {
		e.logger.Warn("lending: operation reverted", "op", tx.op, "entries", staged, "error", err)
	}
	e.metrics.RecordRollback(tx.op, reason)
	e.metrics.RecordOperation(tx.op, "reverted")
	return err
}

// commit verifies the staged state when nothing was pushed, makes the
// transition permanent and flushes buffered events.
func (tx *txn) commit() error {
	e := tx.engine
	if !tx.pushed {
		if err := tx.verify(nil); err != nil {
			return tx.abort(err)
		}
	}
	tx.journal.Commit()
	count := tx.events.Len()
	tx.events.Flush(e.emitter)
	for agentID := range tx.touched {
		if pool := e.pools[agentID]; pool != nil {
			e.metrics.SetPoolLiquidity(agentID, pool.TotalLiquidity, pool.AvailableLiquidity, pool.TotalLoaned)
		}
	}
	e.metrics.SetAccumulatedFees(e.accumulatedFees)
	e.metrics.RecordOperation(tx.op, "ok")
	e.logger.Debug("lending: committed", "op", tx.op, "events", count)
	return nil
}
