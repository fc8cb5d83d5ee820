package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LoanState enumerates the lifecycle of a loan. A loan is issued Active and
// settles into exactly one terminal state.
type LoanState uint8

const (
	LoanActive LoanState = iota
	LoanRepaid
	LoanDefaulted
)

func (s LoanState) String() string {
	switch s {
	case LoanActive:
		return "ACTIVE"
	case LoanRepaid:
		return "REPAID"
	case LoanDefaulted:
		return "DEFAULTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the loan has settled.
func (s LoanState) Terminal() bool { return s == LoanRepaid || s == LoanDefaulted }

// Pool captures the liquidity accounting of one agent's borrowing pool.
type Pool struct {
	AgentID uint64
	// Owner is the agent owner at the time the pool was created.
	Owner common.Address
	// TotalLiquidity is lender principal plus credited interest not yet
	// claimed. It always equals AvailableLiquidity + TotalLoaned.
	TotalLiquidity     *big.Int
	AvailableLiquidity *big.Int
	TotalLoaned        *big.Int
	// TotalEarned is cumulative lender interest net of the platform fee.
	TotalEarned *big.Int
	IsActive    bool
	LenderCount uint64
	CreatedAt   uint64
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalLiquidity = copyInt(p.TotalLiquidity)
	clone.AvailableLiquidity = copyInt(p.AvailableLiquidity)
	clone.TotalLoaned = copyInt(p.TotalLoaned)
	clone.TotalEarned = copyInt(p.TotalEarned)
	return &clone
}

// LenderPosition tracks one lender's stake in one pool. Principal and
// claimable interest are tracked independently.
type LenderPosition struct {
	Lender           common.Address
	Amount           *big.Int
	EarnedInterest   *big.Int
	DepositTimestamp uint64
	// ShareOfPoolBps is derived on read from Amount and the pool's
	// TotalLiquidity. It is never stored.
	ShareOfPoolBps uint64 `rlp:"-"`
}

// Clone returns a deep copy of the position.
func (p *LenderPosition) Clone() *LenderPosition {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Amount = copyInt(p.Amount)
	clone.EarnedInterest = copyInt(p.EarnedInterest)
	return &clone
}

// Loan is a single draw against an agent's pool. Terms are frozen at issuance.
type Loan struct {
	ID               uint64
	Borrower         common.Address
	AgentID          uint64
	Amount           *big.Int
	CollateralAmount *big.Int
	InterestRateBps  uint64
	StartTime        uint64
	EndTime          uint64
	State            LoanState
	// Interest and SettledAt are populated once the loan is repaid or
	// liquidated.
	Interest  *big.Int
	SettledAt uint64
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Amount = copyInt(l.Amount)
	clone.CollateralAmount = copyInt(l.CollateralAmount)
	clone.Interest = copyInt(l.Interest)
	return &clone
}

// DurationSeconds returns the contracted loan duration.
func (l *Loan) DurationSeconds() uint64 {
	if l == nil || l.EndTime <= l.StartTime {
		return 0
	}
	return l.EndTime - l.StartTime
}

// Quote describes the terms a loan request would be issued at right now.
type Quote struct {
	AgentID         uint64
	Amount          *big.Int
	DurationDays    uint64
	Tier            string
	InterestRateBps uint64
	CollateralPct   uint64
	Collateral      *big.Int
	Interest        *big.Int
	TotalDue        *big.Int
	CreditLimit     *big.Int
	CreditAvailable *big.Int
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
