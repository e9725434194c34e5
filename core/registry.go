package core

import (
	"fmt"
	"strings"
	"sync"
)

// FlowStrategyRegistry keeps two tables: one keyed by provider id for
// bespoke branches, one keyed by protocol kind for the common case. Provider
// registrations take precedence on resolve.
type FlowStrategyRegistry struct {
	mu         sync.RWMutex
	byKind     map[FlowKind]FlowStrategy
	byProvider map[string]FlowStrategy
}

func NewFlowStrategyRegistry() *FlowStrategyRegistry {
	return &FlowStrategyRegistry{
		byKind:     map[FlowKind]FlowStrategy{},
		byProvider: map[string]FlowStrategy{},
	}
}

func (r *FlowStrategyRegistry) Register(strategy FlowStrategy) error {
	if r == nil {
		return fmt.Errorf("core: strategy registry is nil")
	}
	if strategy == nil {
		return fmt.Errorf("core: flow strategy is nil")
	}
	kind := strategy.Kind()
	if err := kind.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKind[kind]; exists {
		return fmt.Errorf("core: flow strategy already registered for kind %q", kind)
	}
	r.byKind[kind] = strategy
	return nil
}

func (r *FlowStrategyRegistry) RegisterForProvider(providerID string, strategy FlowStrategy) error {
	if r == nil {
		return fmt.Errorf("core: strategy registry is nil")
	}
	if strategy == nil {
		return fmt.Errorf("core: flow strategy is nil")
	}
	id := strings.TrimSpace(strings.ToLower(providerID))
	if id == "" {
		return fmt.Errorf("core: provider id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byProvider[id]; exists {
		return fmt.Errorf("core: flow strategy already registered for provider %q", id)
	}
	r.byProvider[id] = strategy
	return nil
}

func (r *FlowStrategyRegistry) Resolve(providerID string, kind FlowKind) (FlowStrategy, bool) {
	if r == nil {
		return nil, false
	}
	id := strings.TrimSpace(strings.ToLower(providerID))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id != "" {
		if strategy, ok := r.byProvider[id]; ok {
			return strategy, true
		}
	}
	strategy, ok := r.byKind[kind]
	return strategy, ok
}

var _ StrategyRegistry = (*FlowStrategyRegistry)(nil)
