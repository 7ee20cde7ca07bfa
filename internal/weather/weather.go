// Package weather tracks rain over the farm.
// Rain comes in spells: triggering one makes it rain for a fixed stretch of
// driver time, after which the sky clears on its own.
package weather

import (
	"fmt"
	"math"
)

// DefaultRainDuration is the length of a spell in seconds of driver time.
const DefaultRainDuration = 10.0

// RainSpell is the farm's rain state. How much water rain adds is a growth
// parameter; the spell only decides whether it is raining. The zero value is
// dry weather with the default duration.
type RainSpell struct {
	Duration  float64 `json:"duration"`
	remaining float64
	spells    int
}

// NewRainSpell creates dry weather with the given spell length. A
// non-positive length falls back to the default.
func NewRainSpell(duration float64) *RainSpell {
	return &RainSpell{Duration: duration}
}

func (r *RainSpell) duration() float64 {
	if r.Duration > 0 {
		return r.Duration
	}
	return DefaultRainDuration
}

// Start begins a new spell. A spell already under way restarts its full length.
func (r *RainSpell) Start() {
	r.remaining = r.duration()
	r.spells++
}

// Advance counts the spell down by dt seconds. Negative dt is ignored.
func (r *RainSpell) Advance(dt float64) {
	if dt <= 0 || math.IsNaN(dt) {
		return
	}
	r.remaining = math.Max(r.remaining-dt, 0)
}

// Active reports whether it is raining.
func (r *RainSpell) Active() bool {
	return r.remaining > 0
}

// Remaining returns the seconds left in the current spell.
func (r *RainSpell) Remaining() float64 {
	return r.remaining
}

// Spells returns how many spells have been started.
func (r *RainSpell) Spells() int {
	return r.spells
}

// Stop clears the sky immediately.
func (r *RainSpell) Stop() {
	r.remaining = 0
}

// Description is a short human-readable state for status output.
func (r *RainSpell) Description() string {
	if !r.Active() {
		return "dry"
	}
	return fmt.Sprintf("raining (%.1fs left)", r.remaining)
}
