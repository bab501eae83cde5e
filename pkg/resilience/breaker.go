package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when a named resource's breaker rejects the call
// without attempting it, so callers can tell "dependency down" apart from
// "this one call failed".
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerConfig controls when a named resource's circuit opens and recovers.
type BreakerConfig struct {
	FailureThreshold uint32        // failures within Interval before the circuit opens
	Interval         time.Duration // rolling monitoring window
	RecoveryTimeout  time.Duration // open duration before a half-open trial call
}

// BreakerManager keeps one circuit breaker per named resource.
type BreakerManager struct {
	breakers map[string]*gobreaker.CircuitBreaker
	mu       sync.RWMutex
}

func NewBreakerManager() *BreakerManager {
	return &BreakerManager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (m *BreakerManager) GetOrCreate(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if exists {
		return breaker
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, exists = m.breakers[name]; exists {
		return breaker
	}

	settings := gobreaker.Settings{
		Name: name,
		// single trial call while half-open
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			zap.L().Warn("circuit breaker state changed",
				zap.String("resource", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	breaker = gobreaker.NewCircuitBreaker(settings)
	m.breakers[name] = breaker

	return breaker
}

// Execute runs fn through the named breaker, normalising gobreaker's
// fast-fail errors into ErrCircuitOpen.
func (m *BreakerManager) Execute(name string, cfg BreakerConfig, fn func() (any, error)) (any, error) {
	breaker := m.GetOrCreate(name, cfg)

	result, err := breaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s unavailable: %w", name, ErrCircuitOpen)
		}
	}

	return result, err
}

// State reports the current state for a named resource, "unknown" when the
// breaker has not been created yet.
func (m *BreakerManager) State(name string) string {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return "unknown"
	}

	return breaker.State().String()
}
