package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
)

// MemoryLimiter is an in-process rate limiter with the same fixed-window
// semantics as [QuotaStore]. Used when no persistent store is configured and
// as a test double; quota resets on process restart.
type MemoryLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	counts map[string]*memoryWindow
	now    func() time.Time
}

type memoryWindow struct {
	start time.Time
	count int
}

// NewMemoryLimiter creates an in-memory rate limiter.
func NewMemoryLimiter(cfg shared.RateLimitConfig) *MemoryLimiter {
	max := cfg.MaxTransfers
	if max <= 0 {
		max = 3
	}
	window := cfg.Window()
	if window <= 0 {
		window = time.Hour
	}

	return &MemoryLimiter{
		max:    max,
		window: window,
		counts: make(map[string]*memoryWindow),
		now:    time.Now,
	}
}

// CheckAndConsume atomically checks and consumes one quota unit.
func (m *MemoryLimiter) CheckAndConsume(ctx context.Context, identity string) (models.QuotaDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	windowStart := m.now().Truncate(m.window)
	resetAt := windowStart.Add(m.window)

	w, ok := m.counts[identity]
	if !ok || w.start.Before(windowStart) {
		w = &memoryWindow{start: windowStart}
		m.counts[identity] = w
	}

	if w.count >= m.max {
		return models.QuotaDecision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	w.count++
	return models.QuotaDecision{Allowed: true, Remaining: m.max - w.count, ResetAt: resetAt}, nil
}

// Peek reports current quota without consuming.
func (m *MemoryLimiter) Peek(ctx context.Context, identity string) (models.QuotaDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	windowStart := m.now().Truncate(m.window)
	resetAt := windowStart.Add(m.window)

	count := 0
	if w, ok := m.counts[identity]; ok && !w.start.Before(windowStart) {
		count = w.count
	}

	remaining := m.max - count
	if remaining < 0 {
		remaining = 0
	}

	return models.QuotaDecision{Allowed: count < m.max, Remaining: remaining, ResetAt: resetAt}, nil
}
