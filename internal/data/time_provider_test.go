package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both forms must satisfy the interface: services hold the value,
// repositories default to the pointer.
var (
	_ TimeProvider = RealTimeProvider{}
	_ TimeProvider = &RealTimeProvider{}
	_ TimeProvider = &FixedTimeProvider{}
)

func TestRealTimeProviderNow(t *testing.T) {
	var tp TimeProvider = RealTimeProvider{}

	before := time.Now()
	got := tp.Now()
	after := time.Now()

	require.False(t, got.Before(before))
	require.False(t, got.After(after))
}

func TestFixedTimeProvider(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tp := NewFixedTimeProvider(base)

	assert.Equal(t, base, tp.Now())

	tp.AddTime(90 * time.Second)
	assert.Equal(t, base.Add(90*time.Second), tp.Now())

	later := base.Add(24 * time.Hour)
	tp.SetTime(later)
	assert.Equal(t, later, tp.Now())
}
