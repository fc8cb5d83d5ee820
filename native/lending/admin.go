package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"agentlend/core/events"
)

func (e *Engine) onlyOwner(caller common.Address) error {
	if caller != e.owner {
		return ErrNotOwner
	}
	return nil
}

// SetPlatformFeeRate updates the share of interest retained by the platform.
func (e *Engine) SetPlatformFeeRate(caller common.Address, bps uint64) error {
	const op = "set_fee"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.onlyOwner(caller); err != nil {
		return e.reject(op, err)
	}
	if bps > MaxPlatformFeeBps {
		return e.reject(op, ErrFeeTooHigh)
	}
	tx := e.begin(op)
	prev := e.platformFeeBps
	e.platformFeeBps = bps
	tx.journal.Append(func() { e.platformFeeBps = prev })
	tx.emit(events.PlatformFeeUpdated{PreviousBps: prev, FeeBps: bps})
	return tx.commit()
}

// WithdrawPlatformFees pays amount of the accumulated fees to recipient. A
// zero recipient pays the owner.
func (e *Engine) WithdrawPlatformFees(caller, recipient common.Address, amount *big.Int) error {
	const op = "withdraw_fees"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configured(); err != nil {
		return e.reject(op, err)
	}
	if err := e.onlyOwner(caller); err != nil {
		return e.reject(op, err)
	}
	if !validAmount(amount) {
		return e.reject(op, ErrInvalidAmount)
	}
	if e.accumulatedFees.Cmp(amount) < 0 {
		return e.reject(op, ErrInsufficientFees)
	}
	if recipient == (common.Address{}) {
		recipient = caller
	}

	tx := e.begin(op)
	tx.setFees(new(big.Int).Sub(e.accumulatedFees, amount))
	tx.emit(events.PlatformFeesWithdrawn{Recipient: recipient, Amount: new(big.Int).Set(amount)})
	if err := tx.push(recipient, amount); err != nil {
		return tx.abort(err)
	}
	return tx.commit()
}

// Pause engages the circuit breaker.
func (e *Engine) Pause(caller common.Address) error {
	return e.setPaused(caller, true)
}

// Unpause releases the circuit breaker.
func (e *Engine) Unpause(caller common.Address) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller common.Address, paused bool) error {
	op := "unpause"
	if paused {
		op = "pause"
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.onlyOwner(caller); err != nil {
		return e.reject(op, err)
	}
	tx := e.begin(op)
	prev := e.pauses.Set(moduleName, paused)
	tx.journal.Append(func() { e.pauses.Set(moduleName, prev) })
	if prev != paused {
		if paused {
			tx.emit(events.LedgerPaused{By: caller})
		} else {
			tx.emit(events.LedgerUnpaused{By: caller})
		}
	}
	e.logger.Info("lending: pause state changed", "paused", paused, "by", caller.Hex())
	return tx.commit()
}

// TransferOwnership hands the admin role to newOwner.
func (e *Engine) TransferOwnership(caller, newOwner common.Address) error {
	const op = "transfer_ownership"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.onlyOwner(caller); err != nil {
		return e.reject(op, err)
	}
	if newOwner == (common.Address{}) {
		return e.reject(op, ErrInvalidRecipient)
	}
	tx := e.begin(op)
	prev := e.owner
	e.owner = newOwner
	tx.journal.Append(func() { e.owner = prev })
	tx.emit(events.OwnershipTransferred{Previous: prev, Owner: newOwner})
	return tx.commit()
}

// SetPoolActive activates or deactivates an agent's pool. The agent owner and
// the ledger owner may both toggle it. Deactivated pools keep serving
// withdrawals, repayments and claims.
func (e *Engine) SetPoolActive(caller common.Address, agentID uint64, active bool) error {
	const op = "set_pool_active"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configured(); err != nil {
		return e.reject(op, err)
	}
	pool, ok := e.pools[agentID]
	if !ok {
		return e.reject(op, ErrPoolNotFound)
	}
	if caller != e.owner {
		if err := e.checkAgentOwner(caller, agentID); err != nil {
			return e.reject(op, err)
		}
	}
	if pool.IsActive == active {
		return nil
	}
	tx := e.begin(op)
	tx.touchPool(pool)
	pool.IsActive = active
	tx.emit(events.PoolStatusChanged{AgentID: agentID, Active: active})
	return tx.commit()
}
