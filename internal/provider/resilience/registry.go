package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ProviderHealth is a point-in-time view of an upstream's health.
type ProviderHealth struct {
	Name          string
	CircuitState  gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// IsHealthy reports whether the breaker is closed.
func (h *ProviderHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded reports whether the breaker is half-open.
func (h *ProviderHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy reports whether the breaker is open.
func (h *ProviderHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// HealthReporter is anything that can describe its own health.
type HealthReporter interface {
	Health() ProviderHealth
}

// Registry tracks upstream clients for the ops status endpoint.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]HealthReporter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]HealthReporter)}
}

// Register adds or replaces the reporter under name.
func (r *Registry) Register(name string, reporter HealthReporter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = reporter
}

// Unregister removes name from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
}

// GetHealth returns the health of name, or nil if it is not registered.
func (r *Registry) GetHealth(name string) *ProviderHealth {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	h := p.Health()
	h.Name = name
	return &h
}

// GetAllHealth returns the health of every upstream, sorted by name.
func (r *Registry) GetAllHealth() []ProviderHealth {
	r.mu.RLock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	out := make([]ProviderHealth, 0, len(names))
	for _, name := range names {
		if h := r.GetHealth(name); h != nil {
			out = append(out, *h)
		}
	}
	return out
}

// ProviderCount returns the number of registered upstreams.
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
