package biz

import (
	"sort"
	"sync"

	"TaskSync/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// BreakerRegistry maps dependency names to their shared CircuitBreaker so
// every call site protecting the same dependency shares fault state. It is
// constructed explicitly and injected (never a package-level singleton) so
// tests get a fresh registry per run.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	logger   log.Logger
	helper   *log.Helper
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry(logger log.Logger) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
		helper:   log.NewHelper(logger),
	}
}

// GetOrCreate returns the existing breaker for name, or constructs one with
// cfg if absent. The config of an existing breaker is left untouched.
func (r *BreakerRegistry) GetOrCreate(name string, cfg BreakerConfig) *CircuitBreaker {
	r.mu.RLock()
	breaker, exists := r.breakers[name]
	r.mu.RUnlock()

	if exists {
		return breaker
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists = r.breakers[name]; exists {
		return breaker
	}

	breaker = NewCircuitBreaker(name, cfg, r.logger)
	r.breakers[name] = breaker

	r.helper.Infow("msg", "circuit breaker registered", "breaker", name)

	return breaker
}

// Get returns the existing breaker for name without creating one.
func (r *BreakerRegistry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	breaker, exists := r.breakers[name]
	return breaker, exists
}

// ResetAll forces every registered breaker back to CLOSED. Intended for
// operator recovery actions; cumulative stats are preserved.
func (r *BreakerRegistry) ResetAll() {
	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.RUnlock()

	for _, b := range breakers {
		b.Reset()
	}

	r.helper.Infow("msg", "all circuit breakers reset", "count", len(breakers))
}

// Snapshot returns the status of every registered breaker, sorted by name
// for stable output.
func (r *BreakerRegistry) Snapshot() []model.BreakerStatus {
	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.RUnlock()

	statuses := make([]model.BreakerStatus, 0, len(breakers))
	for _, b := range breakers {
		statuses = append(statuses, b.Status())
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})

	return statuses
}
