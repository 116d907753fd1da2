package common

import (
	"sort"
	"strings"
	"sync"
)

// PauseSet is an in-memory PauseView toggled by operators.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]struct{}
}

// NewPauseSet returns a set with the given modules paused.
func NewPauseSet(modules ...string) *PauseSet {
	p := &PauseSet{paused: make(map[string]struct{})}
	for _, module := range modules {
		p.Pause(module)
	}
	return p
}

// IsPaused implements PauseView.
func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.paused[normalizeModule(module)]
	return ok
}

// Pause marks module as paused.
func (p *PauseSet) Pause(module string) {
	module = normalizeModule(module)
	if module == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused[module] = struct{}{}
}

// Resume clears the pause flag for module.
func (p *PauseSet) Resume(module string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.paused, normalizeModule(module))
}

// Paused lists the paused modules in sorted order.
func (p *PauseSet) Paused() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.paused))
	for module := range p.paused {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
