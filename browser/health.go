package browser

import (
	"math"
	"sync"
	"time"
)

// Retirement thresholds for a renderer slot.
const (
	maxErrScore = 3.0
	maxUses     = 50
	maxAge      = 50 * time.Minute
)

// health scores a slot's page.
//
//   - Success: errScore -= 0.5 (min 0)
//   - Failure: errScore += 1.0
//
// The slot is retired once errScore >= 3, after 50 uses, or after 50 minutes.
type health struct {
	mu       sync.Mutex
	errScore float64
	useCount int
	created  time.Time
}

func newHealth() *health {
	return &health{created: time.Now()}
}

// RecordSuccess decreases the error score (min 0).
func (h *health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

// RecordFailure increases the error score.
func (h *health) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

// ShouldRetire reports whether the slot's page should be closed.
func (h *health) ShouldRetire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errScore >= maxErrScore ||
		h.useCount >= maxUses ||
		time.Since(h.created) >= maxAge
}
