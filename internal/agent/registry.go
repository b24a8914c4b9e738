// Package agent provides a static, config-backed implementation of the
// agent registry for single-process runs. Multi-service deployments replace
// it with a client for the shared registry.
package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/arbstack/arbengine/internal/domain"
)

// StaticRegistry holds agents loaded from configuration.
type StaticRegistry struct {
	mu     sync.RWMutex
	agents map[string]domain.Agent
}

// NewStaticRegistry creates a registry from the given agents.
func NewStaticRegistry(agents []domain.Agent) *StaticRegistry {
	m := make(map[string]domain.Agent, len(agents))
	for _, a := range agents {
		m[a.ID] = a
	}
	return &StaticRegistry{agents: m}
}

// Get returns the agent with the given ID.
func (r *StaticRegistry) Get(_ context.Context, id string) (domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return domain.Agent{}, fmt.Errorf("agent registry: %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

// List returns all registered agents in stable ID order.
func (r *StaticRegistry) List(context.Context) ([]domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put inserts or replaces an agent. Used by tests and dev tooling.
func (r *StaticRegistry) Put(a domain.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID] = a
}

// Compile-time interface check.
var _ domain.AgentRegistry = (*StaticRegistry)(nil)
