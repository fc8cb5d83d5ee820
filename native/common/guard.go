package common

import (
	"errors"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a mutable PauseView keyed by module name.
type PauseSet struct {
	mu      sync.RWMutex
	modules map[string]bool
}

// NewPauseSet returns an empty pause set with every module running.
func NewPauseSet() *PauseSet {
	return &PauseSet{modules: make(map[string]bool)}
}

// IsPaused implements PauseView.
func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modules[normalizeModule(module)]
}

// Set toggles the pause flag for module and returns the previous value.
func (p *PauseSet) Set(module string, paused bool) bool {
	if p == nil {
		return false
	}
	key := normalizeModule(module)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.modules == nil {
		p.modules = make(map[string]bool)
	}
	prev := p.modules[key]
	if paused {
		p.modules[key] = true
	} else {
		delete(p.modules, key)
	}
	return prev
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
