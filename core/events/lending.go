package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"agentlend/core/types"
)

const (
	// TypePoolCreated is emitted when an agent opens its liquidity pool.
	TypePoolCreated = "lending.poolCreated"
	// TypeLiquiditySupplied is emitted when a lender deposits into a pool.
	TypeLiquiditySupplied = "lending.liquiditySupplied"
	// TypeLiquidityWithdrawn is emitted when a lender withdraws principal.
	TypeLiquidityWithdrawn = "lending.liquidityWithdrawn"
	// TypeLoanRequested is emitted when a loan is issued and disbursed.
	TypeLoanRequested = "lending.loanRequested"
	// TypeLoanRepaid is emitted when a borrower settles an active loan.
	TypeLoanRepaid = "lending.loanRepaid"
	// TypeLoanDefaulted is emitted when an overdue loan is liquidated.
	TypeLoanDefaulted = "lending.loanDefaulted"
	// TypeInterestClaimed is emitted when a lender claims earned interest.
	TypeInterestClaimed = "lending.interestClaimed"
	// TypePlatformFeeUpdated is emitted when the owner changes the fee rate.
	TypePlatformFeeUpdated = "lending.platformFeeUpdated"
	// TypePlatformFeesWithdrawn is emitted when accumulated fees are paid out.
	TypePlatformFeesWithdrawn = "lending.platformFeesWithdrawn"
	// TypePoolStatusChanged is emitted when a pool is activated or deactivated.
	TypePoolStatusChanged = "lending.poolStatusChanged"
	// TypeLedgerPaused is emitted when the circuit breaker is engaged.
	TypeLedgerPaused = "lending.paused"
	// TypeLedgerUnpaused is emitted when the circuit breaker is released.
	TypeLedgerUnpaused = "lending.unpaused"
	// TypeOwnershipTransferred is emitted when ledger ownership changes hands.
	TypeOwnershipTransferred = "lending.ownershipTransferred"
	// TypeReputationUpdated is emitted whenever an agent's score record changes.
	TypeReputationUpdated = "reputation.updated"
)

// PoolCreated captures the opening of an agent pool.
type PoolCreated struct {
	AgentID uint64
	Owner   common.Address
}

// EventType satisfies the Event interface.
func (PoolCreated) EventType() string { return TypePoolCreated }

// Event converts the structured payload into a broadcastable event.
func (e PoolCreated) Event() *types.Event {
	return &types.Event{Type: TypePoolCreated, Attributes: map[string]string{
		"agentId": formatUint(e.AgentID),
		"owner":   formatAddress(e.Owner),
	}}
}

// LiquiditySupplied captures a lender deposit.
type LiquiditySupplied struct {
	AgentID uint64
	Lender  common.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (LiquiditySupplied) EventType() string { return TypeLiquiditySupplied }

// Event converts the structured payload into a broadcastable event.
func (e LiquiditySupplied) Event() *types.Event {
	return &types.Event{Type: TypeLiquiditySupplied, Attributes: map[string]string{
		"agentId": formatUint(e.AgentID),
		"lender":  formatAddress(e.Lender),
		"amount":  formatAmount(e.Amount),
	}}
}

// LiquidityWithdrawn captures a lender principal withdrawal.
type LiquidityWithdrawn struct {
	AgentID uint64
	Lender  common.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (LiquidityWithdrawn) EventType() string { return TypeLiquidityWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e LiquidityWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeLiquidityWithdrawn, Attributes: map[string]string{
		"agentId": formatUint(e.AgentID),
		"lender":  formatAddress(e.Lender),
		"amount":  formatAmount(e.Amount),
	}}
}

// LoanRequested captures the issuance of a loan.
type LoanRequested struct {
	AgentID      uint64
	LoanID       uint64
	Amount       *big.Int
	DurationDays uint64
	Collateral   *big.Int
	RateBps      uint64
}

// EventType satisfies the Event interface.
func (LoanRequested) EventType() string { return TypeLoanRequested }

// Event converts the structured payload into a broadcastable event.
func (e LoanRequested) Event() *types.Event {
	attrs := map[string]string{
		"agentId":      formatUint(e.AgentID),
		"loanId":       formatUint(e.LoanID),
		"amount":       formatAmount(e.Amount),
		"durationDays": formatUint(e.DurationDays),
	}
	if e.Collateral != nil && e.Collateral.Sign() > 0 {
		attrs["collateral"] = formatAmount(e.Collateral)
	}
	if e.RateBps > 0 {
		attrs["rateBps"] = formatUint(e.RateBps)
	}
	return &types.Event{Type: TypeLoanRequested, Attributes: attrs}
}

// LoanRepaid captures the settlement of a loan.
type LoanRepaid struct {
	LoanID      uint64
	Borrower    common.Address
	TotalAmount *big.Int
	OnTime      bool
}

// EventType satisfies the Event interface.
func (LoanRepaid) EventType() string { return TypeLoanRepaid }

// Event converts the structured payload into a broadcastable event.
func (e LoanRepaid) Event() *types.Event {
	return &types.Event{Type: TypeLoanRepaid, Attributes: map[string]string{
		"loanId":      formatUint(e.LoanID),
		"borrower":    formatAddress(e.Borrower),
		"totalAmount": formatAmount(e.TotalAmount),
		"onTime":      strconv.FormatBool(e.OnTime),
	}}
}

// LoanDefaulted captures the liquidation of an overdue loan.
type LoanDefaulted struct {
	LoanID    uint64
	Borrower  common.Address
	Recovered *big.Int
}

// EventType satisfies the Event interface.
func (LoanDefaulted) EventType() string { return TypeLoanDefaulted }

// Event converts the structured payload into a broadcastable event.
func (e LoanDefaulted) Event() *types.Event {
	attrs := map[string]string{
		"loanId":   formatUint(e.LoanID),
		"borrower": formatAddress(e.Borrower),
	}
	if e.Recovered != nil && e.Recovered.Sign() > 0 {
		attrs["recovered"] = formatAmount(e.Recovered)
	}
	return &types.Event{Type: TypeLoanDefaulted, Attributes: attrs}
}

// InterestClaimed captures a lender interest payout.
type InterestClaimed struct {
	AgentID uint64
	Lender  common.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (InterestClaimed) EventType() string { return TypeInterestClaimed }

// Event converts the structured payload into a broadcastable event.
func (e InterestClaimed) Event() *types.Event {
	return &types.Event{Type: TypeInterestClaimed, Attributes: map[string]string{
		"agentId": formatUint(e.AgentID),
		"lender":  formatAddress(e.Lender),
		"amount":  formatAmount(e.Amount),
	}}
}

// PlatformFeeUpdated captures a fee rate change.
type PlatformFeeUpdated struct {
	PreviousBps uint64
	FeeBps      uint64
}

// EventType satisfies the Event interface.
func (PlatformFeeUpdated) EventType() string { return TypePlatformFeeUpdated }

// Event converts the structured payload into a broadcastable event.
func (e PlatformFeeUpdated) Event() *types.Event {
	return &types.Event{Type: TypePlatformFeeUpdated, Attributes: map[string]string{
		"previousBps": formatUint(e.PreviousBps),
		"feeBps":      formatUint(e.FeeBps),
	}}
}

// PlatformFeesWithdrawn captures an owner fee payout.
type PlatformFeesWithdrawn struct {
	Recipient common.Address
	Amount    *big.Int
}

// EventType satisfies the Event interface.
func (PlatformFeesWithdrawn) EventType() string { return TypePlatformFeesWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e PlatformFeesWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypePlatformFeesWithdrawn, Attributes: map[string]string{
		"recipient": formatAddress(e.Recipient),
		"amount":    formatAmount(e.Amount),
	}}
}

// PoolStatusChanged captures pool activation toggles.
type PoolStatusChanged struct {
	AgentID uint64
	Active  bool
}

// EventType satisfies the Event interface.
func (PoolStatusChanged) EventType() string { return TypePoolStatusChanged }

// Event converts the structured payload into a broadcastable event.
func (e PoolStatusChanged) Event() *types.Event {
	return &types.Event{Type: TypePoolStatusChanged, Attributes: map[string]string{
		"agentId": formatUint(e.AgentID),
		"active":  strconv.FormatBool(e.Active),
	}}
}

// LedgerPaused captures the engagement of the circuit breaker.
type LedgerPaused struct {
	By common.Address
}

// EventType satisfies the Event interface.
func (LedgerPaused) EventType() string { return TypeLedgerPaused }

// Event converts the structured payload into a broadcastable event.
func (e LedgerPaused) Event() *types.Event {
	return &types.Event{Type: TypeLedgerPaused, Attributes: map[string]string{"by": formatAddress(e.By)}}
}

// LedgerUnpaused captures the release of the circuit breaker.
type LedgerUnpaused struct {
	By common.Address
}

// EventType satisfies the Event interface.
func (LedgerUnpaused) EventType() string { return TypeLedgerUnpaused }

// Event converts the structured payload into a broadcastable event.
func (e LedgerUnpaused) Event() *types.Event {
	return &types.Event{Type: TypeLedgerUnpaused, Attributes: map[string]string{"by": formatAddress(e.By)}}
}

// OwnershipTransferred captures a change of ledger owner.
type OwnershipTransferred struct {
	Previous common.Address
	Owner    common.Address
}

// EventType satisfies the Event interface.
func (OwnershipTransferred) EventType() string { return TypeOwnershipTransferred }

// Event converts the structured payload into a broadcastable event.
func (e OwnershipTransferred) Event() *types.Event {
	return &types.Event{Type: TypeOwnershipTransferred, Attributes: map[string]string{
		"previous": formatAddress(e.Previous),
		"owner":    formatAddress(e.Owner),
	}}
}

// ReputationUpdated captures a change to an agent's reputation record.
type ReputationUpdated struct {
	AgentID uint64
	Score   uint64
	Delta   int64
	Reason  string
}

// EventType satisfies the Event interface.
func (ReputationUpdated) EventType() string { return TypeReputationUpdated }

// Event converts the structured payload into a broadcastable event.
func (e ReputationUpdated) Event() *types.Event {
	attrs := map[string]string{
		"agentId": formatUint(e.AgentID),
		"score":   formatUint(e.Score),
		"delta":   strconv.FormatInt(e.Delta, 10),
	}
	if e.Reason != "" {
		attrs["reason"] = e.Reason
	}
	return &types.Event{Type: TypeReputationUpdated, Attributes: attrs}
}
