package reputation

import (
	"fmt"
	"math/big"

	"agentlend/core/state"
)

// stateStore abstracts the subset of state manager functionality required by the
// reputation engine.
type stateStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	recordIndexKey = []byte("reputation/index")
	recordPrefix   = "reputation/record/"
)

func recordKey(agentID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", recordPrefix, agentID))
}

type storedRecord struct {
	AgentID        uint64
	Score          uint64
	LoansCompleted uint64
	LoansDefaulted uint64
	TotalBorrowed  *big.Int
}

// Save stages every record into store.
func (e *Engine) Save(store stateStore) error {
	ids := e.Agents()
	for _, id := range ids {
		rec, _ := e.Record(id)
		stored := storedRecord{
			AgentID:        rec.AgentID,
			Score:          rec.Score,
			LoansCompleted: rec.LoansCompleted,
			LoansDefaulted: rec.LoansDefaulted,
			TotalBorrowed:  rec.TotalBorrowed,
		}
		if err := store.KVPut(recordKey(id), &stored); err != nil {
			return err
		}
	}
	return store.KVPut(recordIndexKey, ids)
}

// Load replaces the in-memory records with the persisted ones.
func (e *Engine) Load(store stateStore) error {
	var ids []uint64
	ok, err := store.KVGet(recordIndexKey, &ids)
	if err != nil || !ok {
		return err
	}
	records := make(map[uint64]*Record, len(ids))
	for _, id := range ids {
		var stored storedRecord
		found, err := store.KVGet(recordKey(id), &stored)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("reputation: record %d missing from index", id)
		}
		borrowed := stored.TotalBorrowed
		if borrowed == nil {
			borrowed = big.NewInt(0)
		}
		records[id] = &Record{
			AgentID:        stored.AgentID,
			Score:          stored.Score,
			LoansCompleted: stored.LoansCompleted,
			LoansDefaulted: stored.LoansDefaulted,
			TotalBorrowed:  borrowed,
			Initialized:    true,
		}
	}
	e.mu.Lock()
	e.records = records
	e.mu.Unlock()
	return nil
}

var _ stateStore = (*state.Manager)(nil)
