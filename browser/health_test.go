package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthRetiresOnErrors(t *testing.T) {
	h := newHealth()
	h.RecordFailure()
	h.RecordFailure()
	assert.False(t, h.ShouldRetire())

	h.RecordSuccess()
	h.RecordFailure()
	assert.False(t, h.ShouldRetire(), "score 2.5")

	h.RecordFailure()
	assert.True(t, h.ShouldRetire())
}

func TestHealthScoreFloorsAtZero(t *testing.T) {
	h := newHealth()
	for i := 0; i < 5; i++ {
		h.RecordSuccess()
	}
	h.RecordFailure()
	h.RecordFailure()
	assert.False(t, h.ShouldRetire())
}

func TestHealthRetiresOnUseCount(t *testing.T) {
	h := newHealth()
	for i := 0; i < maxUses-1; i++ {
		h.RecordSuccess()
	}
	assert.False(t, h.ShouldRetire())
	h.RecordSuccess()
	assert.True(t, h.ShouldRetire())
}

func TestHealthRetiresOnAge(t *testing.T) {
	h := newHealth()
	h.created = time.Now().Add(-maxAge)
	assert.True(t, h.ShouldRetire())
}
