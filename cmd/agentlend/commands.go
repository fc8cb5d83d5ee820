package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"agentlend/native/bank"
	"agentlend/native/lending"
	"agentlend/storage/eventlog"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stdout io.Writer) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(stdout)
			fs.PrintDefaults()
		}
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%s: unexpected positional arguments %v", fs.Name(), fs.Args())
	}
	return nil
}

func requireAgent(name string, id uint64) error {
	if id == 0 {
		return fmt.Errorf("%s: --agent is required", name)
	}
	return nil
}

func requireLoan(name string, id uint64) error {
	if id == 0 {
		return fmt.Errorf("%s: --loan is required", name)
	}
	return nil
}

func parseAddress(flagName, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", flagName, raw)
	}
	return common.HexToAddress(trimmed), nil
}

// addressOrCaller resolves an optional address flag, defaulting to --from.
func (a *app) addressOrCaller(flagName, raw string) (common.Address, error) {
	if strings.TrimSpace(raw) != "" {
		return parseAddress(flagName, raw)
	}
	if !a.hasFrom {
		return common.Address{}, fmt.Errorf("--%s or --from is required", flagName)
	}
	return a.from, nil
}

func parseAmountFlag(raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("--amount is required")
	}
	return bank.ParseAmount(raw)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runRegisterAgent(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("register-agent")
	owner := fs.String("owner", "", "agent owner (defaults to --from)")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	addr, err := a.addressOrCaller("owner", *owner)
	if err != nil {
		return err
	}
	id, err := a.registry.Register(addr)
	if err != nil {
		return err
	}
	return writeJSON(stdout, map[string]interface{}{"agentId": id, "owner": addr.Hex()})
}

func runSetAgentActive(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("set-agent-active")
	agent := fs.Uint64("agent", 0, "agent id")
	active := fs.Bool("active", true, "desired status")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	if err := requireAgent(fs.Name(), *agent); err != nil {
		return err
	}
	caller, err := a.caller()
	if err != nil {
		return err
	}
	if err := a.registry.SetActive(caller, *agent, *active); err != nil {
		return err
	}
	return writeJSON(stdout, map[string]interface{}{"agentId": *agent, "active": *active})
}

func runMint(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("mint")
	to := fs.String("to", "", "recipient (defaults to --from)")
	amount := fs.String("amount", "", "whole-token amount, up to six decimals")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	caller, err := a.caller()
	if err != nil {
		return err
	}
	recipient, err := a.addressOrCaller("to", *to)
	if err != nil {
		return err
	}
	value, err := parseAmountFlag(*amount)
	if err != nil {
		return err
	}
	if err := a.token.Mint(caller, recipient, value); err != nil {
		return err
	}
	return writeJSON(stdout, balanceView(a, recipient))
}

func runApprove(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("approve")
	amount := fs.String("amount", "", "allowance granted to the ledger")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	caller, err := a.caller()
	if err != nil {
		return err
	}
	value, err := parseAmountFlag(*amount)
	if err != nil {
		return err
	}
	if err := a.token.Approve(caller, a.ledger.ModuleAddress(), value); err != nil {
		return err
	}
	return writeJSON(stdout, balanceView(a, caller))
}

func runBalance(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("balance")
	addr := fs.String("addr", "", "address to inspect (defaults to --from)")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	target, err := a.addressOrCaller("addr", *addr)
	if err != nil {
		return err
	}
	return writeJSON(stdout, balanceView(a, target))
}

func runCreatePool(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("create-pool")
	agent := fs.Uint64("agent", 0, "agent id")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	if err := requireAgent(fs.Name(), *agent); err != nil {
		return err
	}
	caller, err := a.caller()
	if err != nil {
		return err
	}
	if err := a.ledger.CreatePool(caller, *agent); err != nil {
		return err
	}
	pool, _ := a.ledger.GetAgentPool(*agent)
	return writeJSON(stdout, newPoolView(pool))
}

func runSupply(a *app, args []string, stdout io.Writer) error {
	return runLiquidity(a, "supply", args, stdout, a.ledger.SupplyLiquidity)
}

func runWithdraw(a *app, args []string, stdout io.Writer) error {
	return runLiquidity(a, "withdraw", args, stdout, a.ledger.WithdrawLiquidity)
}

func runLiquidity(a *app, name string, args []string, stdout io.Writer, op func(common.Address, uint64, *big.Int) error) error {
	fs := newFlagSet(name)
	agent := fs.Uint64("agent", 0, "agent id")
	amount := fs.String("amount", "", "whole-token amount, up to six decimals")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	if err := requireAgent(name, *agent); err != nil {
		return err
	}
	caller, err := a.caller()
	if err != nil {
		return err
	}
	value, err := parseAmountFlag(*amount)
	if err != nil {
		return err
	}
	if err := op(caller, *agent, value); err != nil {
		return err
	}
	pos, _ := a.ledger.GetLenderPosition(*agent, caller)
	return writeJSON(stdout, newPositionView(*agent, caller, pos))
}

func runBorrow(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("borrow")
	agent := fs.Uint64("agent", 0, "agent id")
	amount := fs.String("amount", "", "principal, up to six decimals")
	days := fs.Uint64("days", 0, "loan duration in days")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	if err := requireAgent(fs.Name(), *agent); err != nil {
		return err
	}
	caller, err := a.caller()
	if err != nil {
		return err
	}
	value, err := parseAmountFlag(*amount)
	if err != nil {
		return err
	}
	id, err := a.ledger.RequestLoan(caller, *agent, value, *days)
	if err != nil {
		return err
	}
	loan, _ := a.ledger.Loan(id)
	return writeJSON(stdout, newLoanView(loan))
}

func runQuote(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("quote")
	agent := fs.Uint64("agent", 0, "agent id")
	amount := fs.String("amount", "", "principal, up to six decimals")
	days := fs.Uint64("days", 0, "loan duration in days")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	if err := requireAgent(fs.Name(), *agent); err != nil {
		return err
	}
	value, err := parseAmountFlag(*amount)
	if err != nil {
		return err
	}
	quote, err := a.ledger.QuoteLoan(*agent, value, *days)
	if err != nil {
		return err
	}
	return writeJSON(stdout, newQuoteView(quote))
}

func runRepay(a *app, args []string, stdout io.Writer) error {
	return runSettle(a, "repay", args, stdout, a.ledger.RepayLoan)
}

func runLiquidate(a *app, args []string, stdout io.Writer) error {
	return runSettle(a, "liquidate", args, stdout, a.ledger.LiquidateLoan)
}

func runSettle(a *app, name string, args []string, stdout io.Writer, op func(common.Address, uint64) error) error {
	fs := newFlagSet(name)
	loanID := fs.Uint64("loan", 0, "loan id")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	if err := requireLoan(name, *loanID); err != nil {
		return err
	}
	caller, err := a.caller()
	if err != nil {
		return err
	}
	if err := op(caller, *loanID); err != nil {
		return err
	}
	loan, _ := a.ledger.Loan(*loanID)
	return writeJSON(stdout, newLoanView(loan))
}

func runClaim(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("claim")
	agent := fs.Uint64("agent", 0, "agent id")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	if err := requireAgent(fs.Name(), *agent); err != nil {
		return err
	}
	caller, err := a.caller()
	if err != nil {
		return err
	}
	paid, err := a.ledger.ClaimInterest(caller, *agent)
	if err != nil {
		return err
	}
	return writeJSON(stdout, map[string]interface{}{
		"agentId": *agent,
		"lender":  caller.Hex(),
		"claimed": bank.FormatAmount(paid),
	})
}

func runPool(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("pool")
	agent := fs.Uint64("agent", 0, "agent id")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	if err := requireAgent(fs.Name(), *agent); err != nil {
		return err
	}
	pool, ok := a.ledger.GetAgentPool(*agent)
	if !ok {
		return lending.ErrPoolNotFound
	}
	view := newPoolView(pool)
	for _, lender := range a.ledger.Lenders(*agent) {
		view.Lenders = append(view.Lenders, lender.Hex())
	}
	for _, loan := range a.ledger.LoansByAgent(*agent) {
		view.Loans = append(view.Loans, loan.ID)
	}
	view.ActiveLoans = a.ledger.ActiveLoanCount(*agent)
	return writeJSON(stdout, view)
}

func runPosition(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("position")
	agent := fs.Uint64("agent", 0, "agent id")
	lender := fs.String("lender", "", "lender address (defaults to --from)")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	if err := requireAgent(fs.Name(), *agent); err != nil {
		return err
	}
	addr, err := a.addressOrCaller("lender", *lender)
	if err != nil {
		return err
	}
	pos, _ := a.ledger.GetLenderPosition(*agent, addr)
	return writeJSON(stdout, newPositionView(*agent, addr, pos))
}

func runLoan(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("loan")
	loanID := fs.Uint64("loan", 0, "loan id")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	if err := requireLoan(fs.Name(), *loanID); err != nil {
		return err
	}
	loan, ok := a.ledger.Loan(*loanID)
	if !ok {
		return lending.ErrLoanNotFound
	}
	return writeJSON(stdout, newLoanView(loan))
}

func runReputation(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("reputation")
	agent := fs.Uint64("agent", 0, "agent id")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	if err := requireAgent(fs.Name(), *agent); err != nil {
		return err
	}
	rec, ok := a.rep.Record(*agent)
	if !ok {
		return fmt.Errorf("reputation: agent %d not initialized", *agent)
	}
	terms := a.rep.Terms(*agent)
	return writeJSON(stdout, reputationView{
		AgentID:         rec.AgentID,
		Score:           rec.Score,
		Tier:            terms.Tier.String(),
		LoansCompleted:  rec.LoansCompleted,
		LoansDefaulted:  rec.LoansDefaulted,
		TotalBorrowed:   bank.FormatAmount(rec.TotalBorrowed),
		CreditLimit:     bank.FormatAmount(terms.CreditLimit),
		InterestRateBps: terms.InterestRateBps,
		CollateralPct:   terms.CollateralPct,
	})
}

func runFees(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("fees")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	return writeJSON(stdout, map[string]interface{}{
		"owner":           a.ledger.Owner().Hex(),
		"platformFeeBps":  a.ledger.PlatformFeeBps(),
		"accumulatedFees": bank.FormatAmount(a.ledger.AccumulatedFees()),
		"paused":          a.ledger.Paused(),
		"totalPools":      a.ledger.TotalPools(),
		"nextLoanId":      a.ledger.NextLoanID(),
	})
}

func runSetFee(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("set-fee")
	bps := fs.Uint64("bps", 0, "platform fee in basis points")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	caller, err := a.caller()
	if err != nil {
		return err
	}
	if err := a.ledger.SetPlatformFeeRate(caller, *bps); err != nil {
		return err
	}
	return runFees(a, nil, stdout)
}

func runWithdrawFees(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("withdraw-fees")
	to := fs.String("to", "", "recipient (defaults to --from)")
	amount := fs.String("amount", "", "amount to withdraw")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	caller, err := a.caller()
	if err != nil {
		return err
	}
	recipient, err := a.addressOrCaller("to", *to)
	if err != nil {
		return err
	}
	value, err := parseAmountFlag(*amount)
	if err != nil {
		return err
	}
	if err := a.ledger.WithdrawPlatformFees(caller, recipient, value); err != nil {
		return err
	}
	return runFees(a, nil, stdout)
}

func runSetPoolActive(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("set-pool-active")
	agent := fs.Uint64("agent", 0, "agent id")
	active := fs.Bool("active", true, "desired status")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	if err := requireAgent(fs.Name(), *agent); err != nil {
		return err
	}
	caller, err := a.caller()
	if err != nil {
		return err
	}
	if err := a.ledger.SetPoolActive(caller, *agent, *active); err != nil {
		return err
	}
	pool, _ := a.ledger.GetAgentPool(*agent)
	return writeJSON(stdout, newPoolView(pool))
}

func runTransferOwner(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("transfer-owner")
	to := fs.String("to", "", "new ledger owner")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	caller, err := a.caller()
	if err != nil {
		return err
	}
	next, err := parseAddress("to", *to)
	if err != nil {
		return err
	}
	if err := a.ledger.TransferOwnership(caller, next); err != nil {
		return err
	}
	return runFees(a, nil, stdout)
}

func runPause(a *app, args []string, stdout io.Writer) error {
	return runBreaker(a, "pause", args, stdout, a.ledger.Pause)
}

func runUnpause(a *app, args []string, stdout io.Writer) error {
	return runBreaker(a, "unpause", args, stdout, a.ledger.Unpause)
}

func runBreaker(a *app, name string, args []string, stdout io.Writer, op func(common.Address) error) error {
	fs := newFlagSet(name)
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	caller, err := a.caller()
	if err != nil {
		return err
	}
	if err := op(caller); err != nil {
		return err
	}
	return writeJSON(stdout, map[string]bool{"paused": a.ledger.Paused()})
}

func runEvents(a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("events")
	filter := eventlog.Filter{}
	fs.StringVar(&filter.Type, "type", "", "event type, e.g. lending.loanRepaid")
	fs.Uint64Var(&filter.AgentID, "agent", 0, "agent id")
	fs.Uint64Var(&filter.LoanID, "loan", 0, "loan id")
	fs.IntVar(&filter.Limit, "limit", 50, "maximum number of events")
	if err := parseFlags(fs, args, stdout); err != nil {
		return err
	}
	if a.archive == nil {
		return fmt.Errorf("events: event archive disabled in configuration")
	}
	records, err := a.archive.List(context.Background(), filter)
	if err != nil {
		return err
	}
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		attrs, err := rec.Attrs()
		if err != nil {
			return fmt.Errorf("events: decode record %d: %w", rec.ID, err)
		}
		out = append(out, eventView{
			ID:         rec.ID,
			Type:       rec.Type,
			RequestID:  rec.RequestID,
			CreatedAt:  rec.CreatedAt.Unix(),
			Attributes: attrs,
		})
	}
	return writeJSON(stdout, out)
}
