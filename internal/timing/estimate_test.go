package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stash/internal/platform"
)

func TestEstimate(t *testing.T) {
	note := Estimate(platform.Unknown, 0, 0, false)
	assert.Equal(t, 4*time.Second, note)

	article := Estimate(platform.Unknown, 0, 0, true)
	assert.Equal(t, 9*time.Second, article)

	carousel := Estimate(platform.Instagram, 2000, 5, true)
	single := Estimate(platform.Instagram, 2000, 1, true)
	assert.Greater(t, carousel, single)
	assert.Equal(t, 4*time.Second+9*time.Second+300*time.Millisecond+3*time.Second, carousel)
}

func TestEstimate_Clamped(t *testing.T) {
	assert.Equal(t, 60*time.Second, Estimate(platform.Instagram, 10_000_000, 100, true))
}
