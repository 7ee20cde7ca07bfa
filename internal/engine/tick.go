// Package engine provides the farm grid, the growth integrator and the
// tick-based loop that drives them.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Default loop cadence.
const (
	DefaultStep           = 0.1 // simulated seconds per tick
	DefaultTicksPerReport = 600 // one report per simulated minute at the default step
)

// Engine drives the simulation forward on a wall clock.
type Engine struct {
	Interval time.Duration // Base tick interval at speed 1
	Step     float64       // Simulated seconds advanced per tick

	TicksPerReport   uint64 // 0 disables OnReport
	TicksPerSnapshot uint64 // 0 disables OnSnapshot

	// Callbacks, populated during setup.
	OnTick     func(tick uint64, dt float64) // Every tick
	OnReport   func(tick uint64)             // Every TicksPerReport ticks
	OnSnapshot func(tick uint64)             // Every TicksPerSnapshot ticks

	mu      sync.Mutex
	speed   float64
	running atomic.Bool
	tick    atomic.Uint64 // monotonic, never resets
}

// NewEngine creates an engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Interval:       100 * time.Millisecond,
		Step:           DefaultStep,
		TicksPerReport: DefaultTicksPerReport,
		speed:          1.0,
	}
}

// Speed returns the wall-clock multiplier: 1.0 = real-time, 0 = paused.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the wall-clock multiplier. Negative values pause.
func (e *Engine) SetSpeed(v float64) {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	e.mu.Lock()
	e.speed = v
	e.mu.Unlock()
}

// Tick returns the number of ticks run so far.
func (e *Engine) Tick() uint64 {
	return e.tick.Load()
}

// Running reports whether Run is looping.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run starts the simulation loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed(), "step", e.Step)

	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		e.step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick())
}

// Stop halts the simulation loop.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// step advances the simulation by one tick.
func (e *Engine) step() {
	tick := e.tick.Add(1)

	if e.OnTick != nil {
		e.OnTick(tick, e.Step)
	}

	if e.TicksPerReport > 0 && tick%e.TicksPerReport == 0 && e.OnReport != nil {
		e.OnReport(tick)
	}

	if e.TicksPerSnapshot > 0 && tick%e.TicksPerSnapshot == 0 && e.OnSnapshot != nil {
		e.OnSnapshot(tick)
	}
}

// SimTime formats a simulation clock in seconds as "1h02m03.4s".
func SimTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	tenths := int64(math.Round(seconds * 10))
	h := tenths / 36000
	m := tenths / 600 % 60
	s := float64(tenths%600) / 10
	return fmt.Sprintf("%dh%02dm%04.1fs", h, m, s)
}
