package reputation

import (
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"agentlend/core/events"
	"agentlend/core/identity"
)

// Engine owns each agent's score and derives credit terms from it. It is a
// pure data module: it never calls back into the ledger, and every write other
// than Initialize is restricted to the configured ledger address.
type Engine struct {
	mu       sync.RWMutex
	identity identity.Provider
	ledger   common.Address
	params   Params
	bonus    BonusFunc
	records  map[uint64]*Record
	emitter  events.Emitter
}

// NewEngine constructs an engine that checks registrations against provider.
func NewEngine(provider identity.Provider, params Params) *Engine {
	tiers := params.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTierTable()
	}
	params.Tiers = tiers.Clone()
	return &Engine{
		identity: provider,
		params:   params,
		bonus:    params.Bonus.Func(),
		records:  make(map[uint64]*Record),
		emitter:  events.NoopEmitter{},
	}
}

// SetLedger authorises addr as the only writer.
func (e *Engine) SetLedger(addr common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger = addr
}

// Ledger returns the authorised writer.
func (e *Engine) Ledger() common.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger
}

// SetBonusFunc replaces the on-time repayment bonus curve. Passing nil
// restores the curve from the engine parameters.
func (e *Engine) SetBonusFunc(fn BonusFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fn == nil {
		e.bonus = e.params.Bonus.Func()
		return
	}
	e.bonus = fn
}

// SetEmitter configures the event emitter used for initialisation events.
// Score updates driven by the ledger are emitted by the ledger after commit.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Params returns a copy of the scoring parameters.
func (e *Engine) Params() Params {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p := e.params
	p.Tiers = e.params.Tiers.Clone()
	return p
}

// Initialize creates the agent's record at the initial score.
func (e *Engine) Initialize(agentID uint64) error {
	rec, err := e.initialize(nil, agentID)
	if err != nil {
		return err
	}
	e.mu.RLock()
	emitter := e.emitter
	e.mu.RUnlock()
	emitter.Emit(events.ReputationUpdated{AgentID: agentID, Score: rec.Score, Reason: "initialized"})
	return nil
}

// InitializeFor creates the record on behalf of the ledger without emitting.
// The ledger announces it once its own transition commits.
func (e *Engine) InitializeFor(caller common.Address, agentID uint64) (Record, error) {
	return e.initialize(&caller, agentID)
}

func (e *Engine) initialize(caller *common.Address, agentID uint64) (Record, error) {
	if e.identity == nil || !e.identity.IsActive(agentID) {
		return Record{}, ErrAgentNotRegistered
	}
	if _, ok := e.identity.OwnerOf(agentID); !ok {
		return Record{}, ErrAgentNotRegistered
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != nil {
		if err := e.authorize(*caller); err != nil {
			return Record{}, err
		}
	}
	if rec, ok := e.records[agentID]; ok && rec.Initialized {
		return Record{}, ErrAlreadyInitialized
	}
	rec := &Record{
		AgentID:       agentID,
		Score:         e.params.InitialScore,
		TotalBorrowed: big.NewInt(0),
		Initialized:   true,
	}
	e.records[agentID] = rec
	return rec.Clone(), nil
}

func (e *Engine) authorize(caller common.Address) error {
	if e.ledger == (common.Address{}) || caller != e.ledger {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) writable(caller common.Address, agentID uint64) (*Record, error) {
	if err := e.authorize(caller); err != nil {
		return nil, err
	}
	rec, ok := e.records[agentID]
	if !ok || !rec.Initialized {
		return nil, ErrNotInitialized
	}
	if rec.TotalBorrowed == nil {
		rec.TotalBorrowed = big.NewInt(0)
	}
	return rec, nil
}

func validPrincipal(principal *big.Int) bool {
	return principal != nil && principal.Sign() >= 0
}

func release(rec *Record, principal *big.Int) {
	next := new(big.Int).Sub(rec.TotalBorrowed, principal)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	rec.TotalBorrowed = next
}

// Reserve adds principal to the agent's aggregate exposure, failing when the
// new total would exceed the credit limit implied by the current score.
func (e *Engine) Reserve(caller common.Address, agentID uint64, principal *big.Int) error {
	if !validPrincipal(principal) {
		return ErrInvalidPrincipal
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.writable(caller, agentID)
	if err != nil {
		return err
	}
	limit := e.params.Tiers.TermsFor(rec.Score).CreditLimit
	next := new(big.Int).Add(rec.TotalBorrowed, principal)
	if next.Cmp(limit) > 0 {
		return ErrExceedsCreditLimit
	}
	rec.TotalBorrowed = next
	return nil
}

// Release removes principal from the agent's aggregate exposure. The result
// saturates at zero.
func (e *Engine) Release(caller common.Address, agentID uint64, principal *big.Int) error {
	if !validPrincipal(principal) {
		return ErrInvalidPrincipal
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.writable(caller, agentID)
	if err != nil {
		return err
	}
	release(rec, principal)
	return nil
}

// RecordLoanCompletion applies the outcome of a repaid loan and returns the
// updated record.
func (e *Engine) RecordLoanCompletion(caller common.Address, agentID uint64, principal *big.Int, onTime bool) (Record, error) {
	if !validPrincipal(principal) {
		return Record{}, ErrInvalidPrincipal
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.writable(caller, agentID)
	if err != nil {
		return Record{}, err
	}
	if onTime {
		rec.Score = saturatingAdd(rec.Score, e.bonus(rec.Score, principal), MaxScore)
	} else {
		rec.Score = saturatingSub(rec.Score, e.params.LatePenalty)
	}
	rec.LoansCompleted++
	release(rec, principal)
	return rec.Clone(), nil
}

// RecordDefault applies the default penalty and returns the updated record.
func (e *Engine) RecordDefault(caller common.Address, agentID uint64, principal *big.Int) (Record, error) {
	if !validPrincipal(principal) {
		return Record{}, ErrInvalidPrincipal
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.writable(caller, agentID)
	if err != nil {
		return Record{}, err
	}
	rec.Score = saturatingSub(rec.Score, e.params.DefaultPenalty)
	rec.LoansDefaulted++
	release(rec, principal)
	return rec.Clone(), nil
}

// Restore overwrites an agent's record with a previously read copy. The ledger
// uses it to unwind a transition that failed after touching reputation.
func (e *Engine) Restore(caller common.Address, rec Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(caller); err != nil {
		return err
	}
	if !rec.Initialized {
		delete(e.records, rec.AgentID)
		return nil
	}
	restored := rec.Clone()
	if restored.Score > MaxScore {
		restored.Score = MaxScore
	}
	e.records[rec.AgentID] = &restored
	return nil
}

// Record returns a copy of the agent's record.
func (e *Engine) Record(agentID uint64) (Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[agentID]
	if !ok {
		return Record{AgentID: agentID, TotalBorrowed: big.NewInt(0)}, false
	}
	return rec.Clone(), true
}

// Score returns the agent's current score, or zero when uninitialised.
func (e *Engine) Score(agentID uint64) uint64 {
	rec, _ := e.Record(agentID)
	return rec.Score
}

// Terms returns the credit terms implied by the agent's current score.
func (e *Engine) Terms(agentID uint64) Terms {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var score uint64
	if rec, ok := e.records[agentID]; ok {
		score = rec.Score
	}
	return e.params.Tiers.TermsFor(score)
}

// Tier returns the agent's current tier.
func (e *Engine) Tier(agentID uint64) Tier { return e.Terms(agentID).Tier }

// CreditLimit returns the agent's current aggregate credit limit.
func (e *Engine) CreditLimit(agentID uint64) *big.Int { return e.Terms(agentID).CreditLimit }

// InterestRateBps returns the rate a new loan would be issued at.
func (e *Engine) InterestRateBps(agentID uint64) uint64 { return e.Terms(agentID).InterestRateBps }

// CollateralPct returns the collateral percentage a new loan would require.
func (e *Engine) CollateralPct(agentID uint64) uint64 { return e.Terms(agentID).CollateralPct }

// Agents returns the ids of every initialised agent in ascending order.
func (e *Engine) Agents() []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]uint64, 0, len(e.records))
	for id := range e.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
