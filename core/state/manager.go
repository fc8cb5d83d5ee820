package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"agentlend/storage"
)

// Manager provides RLP encoded key/value access on top of a storage backend.
// Writes are staged in memory until Commit flushes them as a single batch, so a
// host persists a ledger transition either completely or not at all.
type Manager struct {
	db      storage.Database
	pending map[string]pendingWrite
	order   []string
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, pending: make(map[string]pendingWrite)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) stage(key []byte, write pendingWrite) {
	hashed := string(kvKey(key))
	if _, ok := m.pending[hashed]; !ok {
		m.order = append(m.order, hashed)
	}
	m.pending[hashed] = write
}

// KVPut encodes value with RLP and stages it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.stage(key, pendingWrite{value: encoded})
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	var data []byte
	if write, ok := m.pending[string(hashed)]; ok {
		if write.deleted {
			return false, nil
		}
		data = write.value
	} else {
		if m.db == nil {
			return false, fmt.Errorf("kv: database not configured")
		}
		stored, err := m.db.Get(hashed)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		data = stored
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete stages the removal of key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.stage(key, pendingWrite{deleted: true})
	return nil
}

// Dirty reports whether uncommitted writes are staged.
func (m *Manager) Dirty() bool {
	return len(m.pending) > 0
}

// Commit flushes every staged write to the database atomically.
func (m *Manager) Commit() error {
	if len(m.pending) == 0 {
		return nil
	}
	if m.db == nil {
		return fmt.Errorf("kv: database not configured")
	}
	batch := new(storage.Batch)
	for _, key := range m.order {
		write := m.pending[key]
		if write.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), write.value)
	}
	if err := m.db.Write(batch); err != nil {
		return err
	}
	m.Discard()
	return nil
}

// Discard drops every staged write.
func (m *Manager) Discard() {
	m.pending = make(map[string]pendingWrite)
	m.order = nil
}
