package lending

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"agentlend/core/state"
)

// stateStore abstracts the subset of state manager functionality required by the
// ledger.
type stateStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	metaKey       = []byte("lending/meta")
	poolPrefix    = "lending/pool/"
	loanPrefix    = "lending/loan/"
	lendersPrefix = "lending/lenders/"
)

func poolKey(agentID uint64) []byte    { return []byte(fmt.Sprintf("%s%d", poolPrefix, agentID)) }
func loanKey(loanID uint64) []byte     { return []byte(fmt.Sprintf("%s%d", loanPrefix, loanID)) }
func lendersKey(agentID uint64) []byte { return []byte(fmt.Sprintf("%s%d", lendersPrefix, agentID)) }

type storedMeta struct {
	Owner           common.Address
	PlatformFeeBps  uint64
	NextLoanID      uint64
	AccumulatedFees *big.Int
	Paused          bool
	Pools           []uint64
}

type storedPositions struct {
	Positions []*LenderPosition
}

// Save stages the ledger state into store. Callers commit the store.
func (e *Engine) Save(store stateStore) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	meta := storedMeta{
		Owner:           e.owner,
		PlatformFeeBps:  e.platformFeeBps,
		NextLoanID:      e.nextLoanID,
		AccumulatedFees: e.accumulatedFees,
		Paused:          e.pauses.IsPaused(moduleName),
		Pools:           e.poolOrder,
	}
	for _, agentID := range e.poolOrder {
		if err := store.KVPut(poolKey(agentID), e.pools[agentID]); err != nil {
			return err
		}
		stored := storedPositions{}
		for _, lender := range e.lenders[agentID] {
			stored.Positions = append(stored.Positions, e.positions[agentID][lender])
		}
		if err := store.KVPut(lendersKey(agentID), &stored); err != nil {
			return err
		}
	}
	for id := uint64(1); id < e.nextLoanID; id++ {
		loan, ok := e.loans[id]
		if !ok {
			continue
		}
		if err := store.KVPut(loanKey(id), loan); err != nil {
			return err
		}
	}
	return store.KVPut(metaKey, &meta)
}

// Load replaces the ledger state with the persisted one. A store without
// ledger state leaves the engine untouched.
func (e *Engine) Load(store stateStore) error {
	var meta storedMeta
	ok, err := store.KVGet(metaKey, &meta)
	if err != nil || !ok {
		return err
	}
	pools := make(map[uint64]*Pool, len(meta.Pools))
	positions := make(map[uint64]map[common.Address]*LenderPosition, len(meta.Pools))
	lenders := make(map[uint64][]common.Address, len(meta.Pools))
	for _, agentID := range meta.Pools {
		pool := new(Pool)
		found, err := store.KVGet(poolKey(agentID), pool)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("lending: pool %d missing from index", agentID)
		}
		pools[agentID] = pool
		var stored storedPositions
		if _, err := store.KVGet(lendersKey(agentID), &stored); err != nil {
			return err
		}
		positions[agentID] = make(map[common.Address]*LenderPosition, len(stored.Positions))
		for _, pos := range stored.Positions {
			positions[agentID][pos.Lender] = pos
			lenders[agentID] = append(lenders[agentID], pos.Lender)
		}
	}
	loans := make(map[uint64]*Loan)
	agentLoans := make(map[uint64][]uint64)
	activeLoans := make(map[uint64][]uint64)
	for id := uint64(1); id < meta.NextLoanID; id++ {
		loan := new(Loan)
		found, err := store.KVGet(loanKey(id), loan)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		loans[id] = loan
		agentLoans[loan.AgentID] = append(agentLoans[loan.AgentID], id)
		if loan.State == LoanActive {
			activeLoans[loan.AgentID] = append(activeLoans[loan.AgentID], id)
		}
	}
	fees := meta.AccumulatedFees
	if fees == nil {
		fees = big.NewInt(0)
	}
	next := meta.NextLoanID
	if next == 0 {
		next = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.owner = meta.Owner
	e.platformFeeBps = meta.PlatformFeeBps
	e.nextLoanID = next
	e.accumulatedFees = fees
	e.pauses.Set(moduleName, meta.Paused)
	e.pools = pools
	e.poolOrder = append([]uint64(nil), meta.Pools...)
	e.positions = positions
	e.lenders = lenders
	e.loans = loans
	e.agentLoans = agentLoans
	e.activeLoans = activeLoans
	return nil
}

var _ stateStore = (*state.Manager)(nil)
