package lending

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"agentlend/core/events"
	"agentlend/core/identity"
	nativecommon "agentlend/native/common"
	"agentlend/native/reputation"
	"agentlend/observability/metrics"
)

var (
	ErrPoolAlreadyExists         = errors.New("lending engine: pool already exists")
	ErrPoolNotFound              = errors.New("lending engine: pool not found")
	ErrPoolInactive              = errors.New("lending engine: pool inactive")
	ErrNotRegisteredAgent        = errors.New("lending engine: not an active registered agent")
	ErrNotAgentOwner             = errors.New("lending engine: caller does not own agent")
	ErrInvalidAmount             = errors.New("lending engine: amount must be positive")
	ErrInvalidDuration           = errors.New("lending engine: duration out of range")
	ErrInsufficientBalance       = errors.New("lending engine: insufficient lender balance")
	ErrInsufficientPoolLiquidity = errors.New("lending engine: insufficient pool liquidity")
	ErrExceedsCreditLimit        = reputation.ErrExceedsCreditLimit
	ErrTooManyActiveLoans        = errors.New("lending engine: too many active loans")
	ErrLoanNotFound              = errors.New("lending engine: loan not found")
	ErrNotBorrower               = errors.New("lending engine: caller is not the borrower")
	ErrLoanNotActive             = errors.New("lending engine: loan not active")
	ErrLoanNotOverdue            = errors.New("lending engine: loan not overdue")
	ErrNoInterestToClaim         = errors.New("lending engine: no interest to claim")
	ErrNotOwner                  = errors.New("lending engine: caller is not the owner")
	ErrFeeTooHigh                = errors.New("lending engine: platform fee too high")
	ErrInsufficientFees          = errors.New("lending engine: insufficient accumulated fees")
	ErrInvalidRecipient          = errors.New("lending engine: recipient must not be zero")
	ErrContractPaused            = nativecommon.ErrModulePaused
	ErrInvariantViolation        = errors.New("lending engine: invariant violation")

	errNotConfigured = errors.New("lending engine: collaborators not configured")
)

const moduleName = "lending"

// Custody moves pooled value between parties and the ledger's module address.
type Custody interface {
	TransferIn(from common.Address, amount *big.Int) error
	TransferOut(to common.Address, amount *big.Int) error
	BalanceOf(addr common.Address) *big.Int
}

// creditEngine is the subset of the reputation engine the ledger drives.
type creditEngine interface {
	InitializeFor(caller common.Address, agentID uint64) (reputation.Record, error)
	Record(agentID uint64) (reputation.Record, bool)
	Terms(agentID uint64) reputation.Terms
	Reserve(caller common.Address, agentID uint64, principal *big.Int) error
	Release(caller common.Address, agentID uint64, principal *big.Int) error
	RecordLoanCompletion(caller common.Address, agentID uint64, principal *big.Int, onTime bool) (reputation.Record, error)
	RecordDefault(caller common.Address, agentID uint64, principal *big.Int) (reputation.Record, error)
	Restore(caller common.Address, rec reputation.Record) error
}

// Engine is the pool and loan ledger. Every exported mutation runs under the
// write lock and either commits all of its effects or none of them.
type Engine struct {
	mu sync.RWMutex

	owner          common.Address
	moduleAddress  common.Address
	cfg            Config
	platformFeeBps uint64

	identity   identity.Provider
	reputation creditEngine
	custody    Custody
	pauses     *nativecommon.PauseSet
	emitter    events.Emitter
	logger     *slog.Logger
	metrics    *metrics.LendingMetrics
	nowFn      func() time.Time

	pools           map[uint64]*Pool
	poolOrder       []uint64
	positions       map[uint64]map[common.Address]*LenderPosition
	lenders         map[uint64][]common.Address
	loans           map[uint64]*Loan
	agentLoans      map[uint64][]uint64
	activeLoans     map[uint64][]uint64
	nextLoanID      uint64
	accumulatedFees *big.Int
}

// NewEngine constructs a ledger owned by owner that holds pooled value at
// moduleAddr.
func NewEngine(owner, moduleAddr common.Address, cfg Config) *Engine {
	return &Engine{
		owner:           owner,
		moduleAddress:   moduleAddr,
		cfg:             cfg,
		platformFeeBps:  cfg.PlatformFeeBps,
		pauses:          nativecommon.NewPauseSet(),
		emitter:         events.NoopEmitter{},
		logger:          slog.Default(),
		metrics:         metrics.Lending(),
		nowFn:           time.Now,
		pools:           make(map[uint64]*Pool),
		positions:       make(map[uint64]map[common.Address]*LenderPosition),
		lenders:         make(map[uint64][]common.Address),
		loans:           make(map[uint64]*Loan),
		agentLoans:      make(map[uint64][]uint64),
		activeLoans:     make(map[uint64][]uint64),
		nextLoanID:      1,
		accumulatedFees: big.NewInt(0),
	}
}

// SetIdentity wires the agent registry.
func (e *Engine) SetIdentity(provider identity.Provider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.identity = provider
}

// SetReputation wires the credit scoring engine. The engine must authorise
// the ledger's module address as its writer.
func (e *Engine) SetReputation(engine creditEngine) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reputation = engine
}

// SetCustody wires the value transfer channel.
func (e *Engine) SetCustody(custody Custody) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.custody = custody
}

// SetPauses shares a pause set with other modules.
func (e *Engine) SetPauses(p *nativecommon.PauseSet) {
	if p == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauses = p
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

func (e *Engine) SetMetrics(m *metrics.LendingMetrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// SetNowFunc overrides the clock used for loan timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// ModuleAddress returns the custody address holding pooled value.
func (e *Engine) ModuleAddress() common.Address { return e.moduleAddress }

func (e *Engine) now() uint64 {
	ts := e.nowFn().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) configured() error {
	if e.identity == nil || e.reputation == nil || e.custody == nil {
		return errNotConfigured
	}
	return nil
}

// guard runs the checks shared by every non-admin mutation.
func (e *Engine) guard() error {
	if err := e.configured(); err != nil {
		return err
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) reject(op string, err error) error {
	e.metrics.RecordOperation(op, "rejected")
	return err
}

// checkAgentOwner confirms agentID is active and owned by caller.
func (e *Engine) checkAgentOwner(caller common.Address, agentID uint64) error {
	if !e.identity.IsActive(agentID) {
		return ErrNotRegisteredAgent
	}
	owner, ok := e.identity.OwnerOf(agentID)
	if !ok {
		return ErrNotRegisteredAgent
	}
	if owner != caller {
		return ErrNotAgentOwner
	}
	return nil
}

func validAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

// CreatePool opens the liquidity pool of an agent owned by caller and
// initialises the agent's reputation record when missing.
func (e *Engine) CreatePool(caller common.Address, agentID uint64) error {
	const op = "create_pool"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return e.reject(op, err)
	}
	if err := e.checkAgentOwner(caller, agentID); err != nil {
		return e.reject(op, err)
	}
	if _, exists := e.pools[agentID]; exists {
		return e.reject(op, ErrPoolAlreadyExists)
	}

	tx := e.begin(op)
	var initialized *reputation.Record
	if _, ok := e.reputation.Record(agentID); !ok {
		rec, err := e.reputation.InitializeFor(e.moduleAddress, agentID)
		if err != nil {
			return tx.abort(fmt.Errorf("lending engine: initialise reputation: %w", err))
		}
		tx.restoreRecord(reputation.Record{AgentID: agentID})
		initialized = &rec
	}

	pool := &Pool{
		AgentID:            agentID,
		Owner:              caller,
		TotalLiquidity:     big.NewInt(0),
		AvailableLiquidity: big.NewInt(0),
		TotalLoaned:        big.NewInt(0),
		TotalEarned:        big.NewInt(0),
		IsActive:           true,
		CreatedAt:          e.now(),
	}
	e.pools[agentID] = pool
	e.poolOrder = append(e.poolOrder, agentID)
	e.positions[agentID] = make(map[common.Address]*LenderPosition)
	tx.touched[agentID] = struct{}{}
	tx.journal.Append(func() {
		delete(e.pools, agentID)
		delete(e.positions, agentID)
		delete(e.lenders, agentID)
		e.poolOrder = e.poolOrder[:len(e.poolOrder)-1]
	})

	tx.emit(events.PoolCreated{AgentID: agentID, Owner: caller})
	if initialized != nil {
		tx.emit(events.ReputationUpdated{AgentID: agentID, Score: initialized.Score, Reason: "initialized"})
	}
	return tx.commit()
}

// SupplyLiquidity deposits amount from caller into the agent's pool.
func (e *Engine) SupplyLiquidity(caller common.Address, agentID uint64, amount *big.Int) error {
	const op = "supply"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return e.reject(op, err)
	}
	if !validAmount(amount) {
		return e.reject(op, ErrInvalidAmount)
	}
	pool, ok := e.pools[agentID]
	if !ok {
		return e.reject(op, ErrPoolNotFound)
	}
	if !pool.IsActive {
		return e.reject(op, ErrPoolInactive)
	}

	tx := e.begin(op)
	if err := tx.pull(caller, amount); err != nil {
		return tx.abort(err)
	}

	pos := e.position(tx, agentID, caller)
	tx.touchPool(pool)
	if pos.Amount.Sign() == 0 {
		pool.LenderCount++
		pos.DepositTimestamp = e.now()
	}
	pos.Amount = new(big.Int).Add(pos.Amount, amount)
	pool.TotalLiquidity = new(big.Int).Add(pool.TotalLiquidity, amount)
	pool.AvailableLiquidity = new(big.Int).Add(pool.AvailableLiquidity, amount)

	tx.emit(events.LiquiditySupplied{AgentID: agentID, Lender: caller, Amount: new(big.Int).Set(amount)})
	return tx.commit()
}

// position returns the lender's position in the pool, creating an empty one
// when missing. The returned position is already snapshotted in tx.
func (e *Engine) position(tx *txn, agentID uint64, lender common.Address) *LenderPosition {
	positions := e.positions[agentID]
	if pos, ok := positions[lender]; ok {
		tx.touchPosition(pos)
		return pos
	}
	pos := &LenderPosition{Lender: lender, Amount: big.NewInt(0), EarnedInterest: big.NewInt(0)}
	positions[lender] = pos
	e.lenders[agentID] = append(e.lenders[agentID], lender)
	tx.journal.Append(func() {
		delete(positions, lender)
		order := e.lenders[agentID]
		e.lenders[agentID] = order[:len(order)-1]
	})
	return pos
}

// WithdrawLiquidity returns up to the caller's principal, limited by what the
// pool has not lent out. Earned interest is untouched.
func (e *Engine) WithdrawLiquidity(caller common.Address, agentID uint64, amount *big.Int) error {
	const op = "withdraw"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return e.reject(op, err)
	}
	if !validAmount(amount) {
		return e.reject(op, ErrInvalidAmount)
	}
	pool, ok := e.pools[agentID]
	if !ok {
		return e.reject(op, ErrPoolNotFound)
	}
	pos, ok := e.positions[agentID][caller]
	if !ok || pos.Amount.Cmp(amount) < 0 {
		return e.reject(op, ErrInsufficientBalance)
	}
	if pool.AvailableLiquidity.Cmp(amount) < 0 {
		return e.reject(op, ErrInsufficientPoolLiquidity)
	}

	tx := e.begin(op)
	tx.touchPool(pool)
	tx.touchPosition(pos)
	pos.Amount = new(big.Int).Sub(pos.Amount, amount)
	if pos.Amount.Sign() == 0 && pool.LenderCount > 0 {
		pool.LenderCount--
	}
	pool.TotalLiquidity = new(big.Int).Sub(pool.TotalLiquidity, amount)
	pool.AvailableLiquidity = new(big.Int).Sub(pool.AvailableLiquidity, amount)

	tx.emit(events.LiquidityWithdrawn{AgentID: agentID, Lender: caller, Amount: new(big.Int).Set(amount)})
	if err := tx.push(caller, amount); err != nil {
		return tx.abort(err)
	}
	return tx.commit()
}

// RequestLoan issues and disburses a loan from the agent's pool to caller,
// pulling collateral first. It returns the new loan id.
func (e *Engine) RequestLoan(caller common.Address, agentID uint64, amount *big.Int, durationDays uint64) (uint64, error) {
	const op = "borrow"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return 0, e.reject(op, err)
	}
	if !validAmount(amount) {
		return 0, e.reject(op, ErrInvalidAmount)
	}
	if err := e.checkAgentOwner(caller, agentID); err != nil {
		return 0, e.reject(op, err)
	}
	pool, ok := e.pools[agentID]
	if !ok {
		return 0, e.reject(op, ErrPoolNotFound)
	}
	if !pool.IsActive {
		return 0, e.reject(op, ErrPoolInactive)
	}
	if err := e.checkDuration(durationDays); err != nil {
		return 0, e.reject(op, err)
	}
	if pool.AvailableLiquidity.Cmp(amount) < 0 {
		return 0, e.reject(op, ErrInsufficientPoolLiquidity)
	}
	rec, ok := e.reputation.Record(agentID)
	if !ok {
		return 0, e.reject(op, reputation.ErrNotInitialized)
	}
	terms := e.reputation.Terms(agentID)
	exposure := new(big.Int).Add(rec.TotalBorrowed, amount)
	if exposure.Cmp(terms.CreditLimit) > 0 {
		return 0, e.reject(op, ErrExceedsCreditLimit)
	}
	if uint64(len(e.activeLoans[agentID])) >= e.cfg.MaxActiveLoans {
		return 0, e.reject(op, ErrTooManyActiveLoans)
	}

	tx := e.begin(op)
	if err := tx.reserve(agentID, amount); err != nil {
		return 0, tx.abort(err)
	}
	collateral := collateralFor(amount, terms.CollateralPct)
	if err := tx.pull(caller, collateral); err != nil {
		return 0, tx.abort(err)
	}

	tx.touchPool(pool)
	pool.AvailableLiquidity = new(big.Int).Sub(pool.AvailableLiquidity, amount)
	pool.TotalLoaned = new(big.Int).Add(pool.TotalLoaned, amount)

	start := e.now()
	loan := &Loan{
		ID:               e.nextLoanID,
		Borrower:         caller,
		AgentID:          agentID,
		Amount:           new(big.Int).Set(amount),
		CollateralAmount: collateral,
		InterestRateBps:  terms.InterestRateBps,
		StartTime:        start,
		EndTime:          start + durationDays*secondsPerDay,
		State:            LoanActive,
		Interest:         big.NewInt(0),
	}
	e.addLoan(tx, loan)

	tx.emit(events.LoanRequested{
		AgentID:      agentID,
		LoanID:       loan.ID,
		Amount:       new(big.Int).Set(amount),
		DurationDays: durationDays,
		Collateral:   new(big.Int).Set(collateral),
		RateBps:      loan.InterestRateBps,
	})
	if err := tx.push(caller, amount); err != nil {
		return 0, tx.abort(err)
	}
	if err := tx.commit(); err != nil {
		return 0, err
	}
	return loan.ID, nil
}

func (e *Engine) checkDuration(durationDays uint64) error {
	if durationDays < e.cfg.MinDurationDays || durationDays > e.cfg.MaxDurationDays {
		return ErrInvalidDuration
	}
	return nil
}

func (e *Engine) addLoan(tx *txn, loan *Loan) {
	id, agentID := loan.ID, loan.AgentID
	e.loans[id] = loan
	e.nextLoanID++
	e.agentLoans[agentID] = append(e.agentLoans[agentID], id)
	e.activeLoans[agentID] = append(e.activeLoans[agentID], id)
	tx.journal.Append(func() {
		delete(e.loans, id)
		e.nextLoanID--
		all := e.agentLoans[agentID]
		e.agentLoans[agentID] = all[:len(all)-1]
		active := e.activeLoans[agentID]
		e.activeLoans[agentID] = active[:len(active)-1]
	})
}

// deactivateLoan removes the loan from the agent's active set.
func (e *Engine) deactivateLoan(tx *txn, loan *Loan) {
	agentID := loan.AgentID
	prev := append([]uint64(nil), e.activeLoans[agentID]...)
	next := make([]uint64, 0, len(prev))
	for _, id := range prev {
		if id != loan.ID {
			next = append(next, id)
		}
	}
	e.activeLoans[agentID] = next
	tx.journal.Append(func() { e.activeLoans[agentID] = prev })
}

// RepayLoan settles an active loan: the borrower pays principal plus interest
// for the contracted duration, lenders are credited pro rata, and collateral
// is released.
func (e *Engine) RepayLoan(caller common.Address, loanID uint64) error {
	const op = "repay"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return e.reject(op, err)
	}
	loan, ok := e.loans[loanID]
	if !ok {
		return e.reject(op, ErrLoanNotFound)
	}
	if loan.Borrower != caller {
		return e.reject(op, ErrNotBorrower)
	}
	if loan.State != LoanActive {
		return e.reject(op, ErrLoanNotActive)
	}
	pool, ok := e.pools[loan.AgentID]
	if !ok {
		return e.reject(op, ErrPoolNotFound)
	}
	prevRecord, ok := e.reputation.Record(loan.AgentID)
	if !ok {
		return e.reject(op, reputation.ErrNotInitialized)
	}

	now := e.now()
	interest := CalculateInterest(loan.Amount, loan.InterestRateBps, loan.DurationSeconds())
	total := new(big.Int).Add(loan.Amount, interest)

	tx := e.begin(op)
	if err := tx.pull(caller, total); err != nil {
		return tx.abort(err)
	}

	fee, lenderShare := splitFee(interest, e.platformFeeBps)
	tx.touchPool(pool)
	pool.TotalLoaned = new(big.Int).Sub(pool.TotalLoaned, loan.Amount)
	pool.AvailableLiquidity = new(big.Int).Add(pool.AvailableLiquidity, loan.Amount)
	if lenderShare.Sign() > 0 {
		if !e.creditLenders(tx, pool.AgentID, lenderShare) {
			// No lender holds a claim; the share falls to the platform.
			fee.Add(fee, lenderShare)
			lenderShare = big.NewInt(0)
		}
	}
	pool.TotalLiquidity = new(big.Int).Add(pool.TotalLiquidity, lenderShare)
	pool.AvailableLiquidity = new(big.Int).Add(pool.AvailableLiquidity, lenderShare)
	pool.TotalEarned = new(big.Int).Add(pool.TotalEarned, lenderShare)
	if fee.Sign() > 0 {
		tx.setFees(new(big.Int).Add(e.accumulatedFees, fee))
	}

	tx.touchLoan(loan)
	loan.State = LoanRepaid
	loan.Interest = interest
	loan.SettledAt = now
	e.deactivateLoan(tx, loan)

	onTime := now <= loan.EndTime
	tx.restoreRecord(prevRecord)
	updated, err := e.reputation.RecordLoanCompletion(e.moduleAddress, loan.AgentID, loan.Amount, onTime)
	if err != nil {
		return tx.abort(fmt.Errorf("lending engine: record completion: %w", err))
	}
	reason := "repaid"
	if !onTime {
		reason = "repaid_late"
	}

	tx.emit(events.LoanRepaid{LoanID: loan.ID, Borrower: caller, TotalAmount: total, OnTime: onTime})
	tx.emit(reputationEvent(prevRecord, updated, reason))
	if err := tx.push(caller, loan.CollateralAmount); err != nil {
		return tx.abort(err)
	}
	if err := tx.commit(); err != nil {
		return err
	}
	e.metrics.SetReputationScore(loan.AgentID, updated.Score)
	return nil
}

// creditLenders splits amount across the pool's lenders in proportion to
// their principal, falling back to claimable interest when no principal
// remains. It reports false when nobody holds a claim.
func (e *Engine) creditLenders(tx *txn, agentID uint64, amount *big.Int) bool {
	order := e.lenders[agentID]
	positions := e.positions[agentID]
	weights := make([]*big.Int, len(order))
	for i, lender := range order {
		weights[i] = positions[lender].Amount
	}
	shares := splitProRata(amount, weights)
	if shares == nil {
		for i, lender := range order {
			weights[i] = positions[lender].EarnedInterest
		}
		shares = splitProRata(amount, weights)
	}
	if shares == nil {
		return false
	}
	for i, lender := range order {
		if shares[i].Sign() == 0 {
			continue
		}
		pos := positions[lender]
		tx.touchPosition(pos)
		pos.EarnedInterest = new(big.Int).Add(pos.EarnedInterest, shares[i])
	}
	return true
}

// LiquidateLoan defaults an overdue loan. Collateral stays in the pool as
// partial recovery and the remaining loss is written off against lender
// principal pro rata.
func (e *Engine) LiquidateLoan(caller common.Address, loanID uint64) error {
	const op = "liquidate"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return e.reject(op, err)
	}
	if caller != e.owner {
		return e.reject(op, ErrNotOwner)
	}
	loan, ok := e.loans[loanID]
	if !ok {
		return e.reject(op, ErrLoanNotFound)
	}
	if loan.State != LoanActive {
		return e.reject(op, ErrLoanNotActive)
	}
	now := e.now()
	if now <= loan.EndTime {
		return e.reject(op, ErrLoanNotOverdue)
	}
	pool, ok := e.pools[loan.AgentID]
	if !ok {
		return e.reject(op, ErrPoolNotFound)
	}
	prevRecord, ok := e.reputation.Record(loan.AgentID)
	if !ok {
		return e.reject(op, reputation.ErrNotInitialized)
	}

	tx := e.begin(op)
	recovered := minInt(loan.CollateralAmount, loan.Amount)
	loss := new(big.Int).Sub(loan.Amount, recovered)

	tx.touchPool(pool)
	pool.TotalLoaned = new(big.Int).Sub(pool.TotalLoaned, loan.Amount)
	pool.AvailableLiquidity = new(big.Int).Add(pool.AvailableLiquidity, recovered)
	pool.TotalLiquidity = new(big.Int).Sub(pool.TotalLiquidity, loss)
	e.writeOff(tx, pool, loss)

	tx.touchLoan(loan)
	loan.State = LoanDefaulted
	loan.SettledAt = now
	e.deactivateLoan(tx, loan)

	tx.restoreRecord(prevRecord)
	updated, err := e.reputation.RecordDefault(e.moduleAddress, loan.AgentID, loan.Amount)
	if err != nil {
		return tx.abort(fmt.Errorf("lending engine: record default: %w", err))
	}

	tx.emit(events.LoanDefaulted{LoanID: loan.ID, Borrower: loan.Borrower, Recovered: recovered})
	tx.emit(reputationEvent(prevRecord, updated, "defaulted"))
	if err := tx.commit(); err != nil {
		return err
	}
	e.metrics.SetReputationScore(loan.AgentID, updated.Score)
	return nil
}

// writeOff reduces lender claims by loss, principal first and pro rata, then
// claimable interest for whatever principal cannot absorb.
func (e *Engine) writeOff(tx *txn, pool *Pool, loss *big.Int) {
	if loss.Sign() <= 0 {
		return
	}
	order := e.lenders[pool.AgentID]
	positions := e.positions[pool.AgentID]
	remaining := new(big.Int).Set(loss)
	for _, field := range []func(*LenderPosition) **big.Int{
		func(p *LenderPosition) **big.Int { return &p.Amount },
		func(p *LenderPosition) **big.Int { return &p.EarnedInterest },
	} {
		if remaining.Sign() == 0 {
			return
		}
		weights := make([]*big.Int, len(order))
		total := big.NewInt(0)
		for i, lender := range order {
			weights[i] = *field(positions[lender])
			total.Add(total, weights[i])
		}
		take := minInt(remaining, total)
		shares := splitProRata(take, weights)
		if shares == nil {
			continue
		}
		for i, lender := range order {
			if shares[i].Sign() == 0 {
				continue
			}
			pos := positions[lender]
			tx.touchPosition(pos)
			hadPrincipal := pos.Amount.Sign() > 0
			value := field(pos)
			*value = new(big.Int).Sub(*value, shares[i])
			if hadPrincipal && pos.Amount.Sign() == 0 && pool.LenderCount > 0 {
				pool.LenderCount--
			}
		}
		remaining.Sub(remaining, take)
	}
}

// ClaimInterest pays out the caller's earned interest from the pool.
func (e *Engine) ClaimInterest(caller common.Address, agentID uint64) (*big.Int, error) {
	const op = "claim"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return nil, e.reject(op, err)
	}
	pool, ok := e.pools[agentID]
	if !ok {
		return nil, e.reject(op, ErrPoolNotFound)
	}
	pos, ok := e.positions[agentID][caller]
	if !ok || pos.EarnedInterest.Sign() == 0 {
		return nil, e.reject(op, ErrNoInterestToClaim)
	}
	amount := new(big.Int).Set(pos.EarnedInterest)
	if pool.AvailableLiquidity.Cmp(amount) < 0 {
		return nil, e.reject(op, ErrInsufficientPoolLiquidity)
	}

	tx := e.begin(op)
	tx.touchPool(pool)
	tx.touchPosition(pos)
	pos.EarnedInterest = big.NewInt(0)
	pool.TotalLiquidity = new(big.Int).Sub(pool.TotalLiquidity, amount)
	pool.AvailableLiquidity = new(big.Int).Sub(pool.AvailableLiquidity, amount)

	tx.emit(events.InterestClaimed{AgentID: agentID, Lender: caller, Amount: new(big.Int).Set(amount)})
	if err := tx.push(caller, amount); err != nil {
		return nil, tx.abort(err)
	}
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return amount, nil
}

// requiredCustody is what the module address must hold: idle pool liquidity,
// collateral of active loans and accumulated fees.
func (e *Engine) requiredCustody() *big.Int {
	required := new(big.Int).Set(e.accumulatedFees)
	for _, pool := range e.pools {
		required.Add(required, pool.AvailableLiquidity)
	}
	for _, ids := range e.activeLoans {
		for _, id := range ids {
			if loan := e.loans[id]; loan != nil {
				required.Add(required, loan.CollateralAmount)
			}
		}
	}
	return required
}

func reputationEvent(prev, next reputation.Record, reason string) events.ReputationUpdated {
	return events.ReputationUpdated{
		AgentID: next.AgentID,
		Score:   next.Score,
		Delta:   int64(next.Score) - int64(prev.Score),
		Reason:  reason,
	}
}
