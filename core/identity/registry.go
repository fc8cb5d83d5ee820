package identity

import (
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"agentlend/core/state"
)

// Provider exposes the agent id to wallet mapping consumed by the ledger.
type Provider interface {
	IsActive(agentID uint64) bool
	OwnerOf(agentID uint64) (common.Address, bool)
}

var (
	// ErrAgentNotFound is returned when the agent id was never registered.
	ErrAgentNotFound = errors.New("identity: agent not found")
	// ErrInvalidOwner is returned when registering or transferring to the
	// zero address.
	ErrInvalidOwner = errors.New("identity: owner required")
	// ErrNotAgentOwner is returned when a mutation is attempted by an
	// address that does not own the agent.
	ErrNotAgentOwner = errors.New("identity: caller does not own agent")
)

// AgentRecord captures the registration metadata for an agent.
type AgentRecord struct {
	ID        uint64
	Owner     common.Address
	Active    bool
	CreatedAt uint64
}

// Registry is an in-memory Provider used by hosts and tests. Agent ids are
// assigned sequentially starting at 1.
type Registry struct {
	mu     sync.RWMutex
	agents map[uint64]*AgentRecord
	nextID uint64
	nowFn  func() uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[uint64]*AgentRecord), nextID: 1}
}

// SetNowFunc overrides the clock used for registration timestamps.
func (r *Registry) SetNowFunc(now func() uint64) { r.nowFn = now }

// Register mints a new active agent owned by owner and returns its id.
func (r *Registry) Register(owner common.Address) (uint64, error) {
	if owner == (common.Address{}) {
		return 0, ErrInvalidOwner
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	rec := &AgentRecord{ID: id, Owner: owner, Active: true}
	if r.nowFn != nil {
		rec.CreatedAt = r.nowFn()
	}
	r.agents[id] = rec
	return id, nil
}

// SetActive toggles the active flag. Only the agent owner may do so.
func (r *Registry) SetActive(caller common.Address, agentID uint64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[agentID]
	if !ok {
		return ErrAgentNotFound
	}
	if rec.Owner != caller {
		return ErrNotAgentOwner
	}
	rec.Active = active
	return nil
}

// Transfer moves agent ownership to a new wallet.
func (r *Registry) Transfer(caller common.Address, agentID uint64, to common.Address) error {
	if to == (common.Address{}) {
		return ErrInvalidOwner
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[agentID]
	if !ok {
		return ErrAgentNotFound
	}
	if rec.Owner != caller {
		return ErrNotAgentOwner
	}
	rec.Owner = to
	return nil
}

// IsActive implements Provider.
func (r *Registry) IsActive(agentID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[agentID]
	return ok && rec.Active
}

// OwnerOf implements Provider.
func (r *Registry) OwnerOf(agentID uint64) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[agentID]
	if !ok {
		return common.Address{}, false
	}
	return rec.Owner, true
}

// Agent returns a copy of the registration record.
func (r *Registry) Agent(agentID uint64) (AgentRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[agentID]
	if !ok {
		return AgentRecord{}, false
	}
	return *rec, true
}

var registryKey = []byte("identity/registry")

type storedRegistry struct {
	NextID uint64
	Agents []AgentRecord
}

// Save stages the registry contents into the state manager.
func (r *Registry) Save(m *state.Manager) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := storedRegistry{NextID: r.nextID, Agents: make([]AgentRecord, 0, len(r.agents))}
	for _, rec := range r.agents {
		stored.Agents = append(stored.Agents, *rec)
	}
	sort.Slice(stored.Agents, func(i, j int) bool { return stored.Agents[i].ID < stored.Agents[j].ID })
	return m.KVPut(registryKey, &stored)
}

// Load replaces the registry contents with the persisted snapshot, if any.
func (r *Registry) Load(m *state.Manager) error {
	var stored storedRegistry
	ok, err := m.KVGet(registryKey, &stored)
	if err != nil || !ok {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[uint64]*AgentRecord, len(stored.Agents))
	for i := range stored.Agents {
		rec := stored.Agents[i]
		r.agents[rec.ID] = &rec
	}
	r.nextID = stored.NextID
	if r.nextID == 0 {
		r.nextID = 1
	}
	return nil
}
