package weather

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRainSpellCountsDown(t *testing.T) {
	var r RainSpell
	assert.False(t, r.Active())
	assert.Equal(t, "dry", r.Description())

	r.Start()
	assert.True(t, r.Active())
	assert.Equal(t, DefaultRainDuration, r.Remaining())

	for i := 0; i < 9; i++ {
		r.Advance(1)
	}
	assert.True(t, r.Active())
	r.Advance(1)
	assert.False(t, r.Active())

	r.Advance(5)
	assert.Equal(t, 0.0, r.Remaining())
}

func TestRainSpellRestart(t *testing.T) {
	r := NewRainSpell(4)
	r.Start()
	r.Advance(3)
	r.Start()
	assert.Equal(t, 4.0, r.Remaining())
	assert.Equal(t, 2, r.Spells())

	r.Advance(-2)
	assert.Equal(t, 4.0, r.Remaining())

	r.Stop()
	assert.False(t, r.Active())
}
