package main

import (
	"github.com/ethereum/go-ethereum/common"

	"agentlend/native/bank"
	"agentlend/native/lending"
)

type poolView struct {
	AgentID            uint64   `json:"agentId"`
	Owner              string   `json:"owner"`
	TotalLiquidity     string   `json:"totalLiquidity"`
	AvailableLiquidity string   `json:"availableLiquidity"`
	TotalLoaned        string   `json:"totalLoaned"`
	TotalEarned        string   `json:"totalEarned"`
	IsActive           bool     `json:"isActive"`
	LenderCount        uint64   `json:"lenderCount"`
	CreatedAt          uint64   `json:"createdAt"`
	ActiveLoans        int      `json:"activeLoans,omitempty"`
	Lenders            []string `json:"lenders,omitempty"`
	Loans              []uint64 `json:"loans,omitempty"`
}

func newPoolView(p *lending.Pool) poolView {
	if p == nil {
		return poolView{}
	}
	return poolView{
		AgentID:            p.AgentID,
		Owner:              p.Owner.Hex(),
		TotalLiquidity:     bank.FormatAmount(p.TotalLiquidity),
		AvailableLiquidity: bank.FormatAmount(p.AvailableLiquidity),
		TotalLoaned:        bank.FormatAmount(p.TotalLoaned),
		TotalEarned:        bank.FormatAmount(p.TotalEarned),
		IsActive:           p.IsActive,
		LenderCount:        p.LenderCount,
		CreatedAt:          p.CreatedAt,
	}
}

type positionView struct {
	AgentID          uint64 `json:"agentId"`
	Lender           string `json:"lender"`
	Amount           string `json:"amount"`
	EarnedInterest   string `json:"earnedInterest"`
	DepositTimestamp uint64 `json:"depositTimestamp"`
	ShareOfPoolBps   uint64 `json:"shareOfPoolBps"`
}

func newPositionView(agentID uint64, lender common.Address, pos *lending.LenderPosition) positionView {
	view := positionView{AgentID: agentID, Lender: lender.Hex(), Amount: bank.FormatAmount(nil), EarnedInterest: bank.FormatAmount(nil)}
	if pos == nil {
		return view
	}
	view.Amount = bank.FormatAmount(pos.Amount)
	view.EarnedInterest = bank.FormatAmount(pos.EarnedInterest)
	view.DepositTimestamp = pos.DepositTimestamp
	view.ShareOfPoolBps = pos.ShareOfPoolBps
	return view
}

type loanView struct {
	ID              uint64 `json:"id"`
	Borrower        string `json:"borrower"`
	AgentID         uint64 `json:"agentId"`
	Amount          string `json:"amount"`
	Collateral      string `json:"collateral"`
	Interest        string `json:"interest"`
	InterestRateBps uint64 `json:"interestRateBps"`
	StartTime       uint64 `json:"startTime"`
	EndTime         uint64 `json:"endTime"`
	State           string `json:"state"`
	SettledAt       uint64 `json:"settledAt,omitempty"`
}

func newLoanView(l *lending.Loan) loanView {
	if l == nil {
		return loanView{}
	}
	return loanView{
		ID:              l.ID,
		Borrower:        l.Borrower.Hex(),
		AgentID:         l.AgentID,
		Amount:          bank.FormatAmount(l.Amount),
		Collateral:      bank.FormatAmount(l.CollateralAmount),
		Interest:        bank.FormatAmount(l.Interest),
		InterestRateBps: l.InterestRateBps,
		StartTime:       l.StartTime,
		EndTime:         l.EndTime,
		State:           l.State.String(),
		SettledAt:       l.SettledAt,
	}
}

type quoteView struct {
	AgentID         uint64 `json:"agentId"`
	Amount          string `json:"amount"`
	DurationDays    uint64 `json:"durationDays"`
	Tier            string `json:"tier"`
	InterestRateBps uint64 `json:"interestRateBps"`
	CollateralPct   uint64 `json:"collateralPct"`
	Collateral      string `json:"collateral"`
	Interest        string `json:"interest"`
	TotalDue        string `json:"totalDue"`
	CreditLimit     string `json:"creditLimit"`
	CreditAvailable string `json:"creditAvailable"`
}

func newQuoteView(q *lending.Quote) quoteView {
	return quoteView{
		AgentID:         q.AgentID,
		Amount:          bank.FormatAmount(q.Amount),
		DurationDays:    q.DurationDays,
		Tier:            q.Tier,
		InterestRateBps: q.InterestRateBps,
		CollateralPct:   q.CollateralPct,
		Collateral:      bank.FormatAmount(q.Collateral),
		Interest:        bank.FormatAmount(q.Interest),
		TotalDue:        bank.FormatAmount(q.TotalDue),
		CreditLimit:     bank.FormatAmount(q.CreditLimit),
		CreditAvailable: bank.FormatAmount(q.CreditAvailable),
	}
}

type reputationView struct {
	AgentID         uint64 `json:"agentId"`
	Score           uint64 `json:"score"`
	Tier            string `json:"tier"`
	LoansCompleted  uint64 `json:"loansCompleted"`
	LoansDefaulted  uint64 `json:"loansDefaulted"`
	TotalBorrowed   string `json:"totalBorrowed"`
	CreditLimit     string `json:"creditLimit"`
	InterestRateBps uint64 `json:"interestRateBps"`
	CollateralPct   uint64 `json:"collateralPct"`
}

type balanceResult struct {
	Address         string `json:"address"`
	Symbol          string `json:"symbol"`
	Balance         string `json:"balance"`
	LedgerAllowance string `json:"ledgerAllowance"`
}

func balanceView(a *app, addr common.Address) balanceResult {
	return balanceResult{
		Address:         addr.Hex(),
		Symbol:          a.token.Symbol(),
		Balance:         bank.FormatAmount(a.token.BalanceOf(addr)),
		LedgerAllowance: bank.FormatAmount(a.token.Allowance(addr, a.ledger.ModuleAddress())),
	}
}

type eventView struct {
	ID         uint64            `json:"id"`
	Type       string            `json:"type"`
	RequestID  string            `json:"requestId"`
	CreatedAt  int64             `json:"createdAt"`
	Attributes map[string]string `json:"attributes"`
}
