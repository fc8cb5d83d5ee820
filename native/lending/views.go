package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GetAgentPool returns a copy of the agent's pool.
func (e *Engine) GetAgentPool(agentID uint64) (*Pool, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pool, ok := e.pools[agentID]
	if !ok {
		return nil, false
	}
	return pool.Clone(), true
}

// GetLenderPosition returns a copy of the lender's position with its current
// share of the pool.
func (e *Engine) GetLenderPosition(agentID uint64, lender common.Address) (*LenderPosition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, ok := e.positions[agentID][lender]
	if !ok {
		return nil, false
	}
	out := pos.Clone()
	if pool := e.pools[agentID]; pool != nil {
		out.ShareOfPoolBps = shareBps(pos.Amount, pool.TotalLiquidity)
	}
	return out, true
}

// Lenders returns the pool's lenders in order of first deposit.
func (e *Engine) Lenders(agentID uint64) []common.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]common.Address(nil), e.lenders[agentID]...)
}

// Loan returns a copy of the loan.
func (e *Engine) Loan(loanID uint64) (*Loan, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	loan, ok := e.loans[loanID]
	if !ok {
		return nil, false
	}
	return loan.Clone(), true
}

// LoansByAgent returns every loan drawn from the agent's pool in issuance
// order.
func (e *Engine) LoansByAgent(agentID uint64) []*Loan {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.agentLoans[agentID]
	out := make([]*Loan, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.loans[id].Clone())
	}
	return out
}

// ActiveLoanCount returns the number of unsettled loans for the agent.
func (e *Engine) ActiveLoanCount(agentID uint64) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.activeLoans[agentID])
}

// Pools returns the ids of every pool in creation order.
func (e *Engine) Pools() []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]uint64(nil), e.poolOrder...)
}

func (e *Engine) TotalPools() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.pools))
}

// NextLoanID returns the id the next issued loan will receive.
func (e *Engine) NextLoanID() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nextLoanID
}

func (e *Engine) AccumulatedFees() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.accumulatedFees)
}

func (e *Engine) PlatformFeeBps() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.platformFeeBps
}

func (e *Engine) Owner() common.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.owner
}

func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pauses.IsPaused(moduleName)
}

// QuoteLoan prices a loan request against the agent's current terms without
// changing state. Interest uses the same formula as settlement.
func (e *Engine) QuoteLoan(agentID uint64, amount *big.Int, durationDays uint64) (*Quote, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.reputation == nil {
		return nil, errNotConfigured
	}
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	if err := e.checkDuration(durationDays); err != nil {
		return nil, err
	}
	terms := e.reputation.Terms(agentID)
	rec, _ := e.reputation.Record(agentID)
	headroom := new(big.Int).Sub(terms.CreditLimit, rec.TotalBorrowed)
	if headroom.Sign() < 0 {
		headroom.SetInt64(0)
	}
	interest := CalculateInterest(amount, terms.InterestRateBps, durationDays*secondsPerDay)
	return &Quote{
		AgentID:         agentID,
		Amount:          new(big.Int).Set(amount),
		DurationDays:    durationDays,
		Tier:            terms.Tier.String(),
		InterestRateBps: terms.InterestRateBps,
		CollateralPct:   terms.CollateralPct,
		Collateral:      collateralFor(amount, terms.CollateralPct),
		Interest:        interest,
		TotalDue:        new(big.Int).Add(amount, interest),
		CreditLimit:     terms.CreditLimit,
		CreditAvailable: headroom,
	}, nil
}
