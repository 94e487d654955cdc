package engine

import (
	"log/slog"

	"github.com/scrivener-audio/bartleby/internal/config"
	"github.com/scrivener-audio/bartleby/internal/hw"
)

// OctaveEngine turns encoder detents into a clamped octave offset. Held
// notes keep their pitch; the offset only affects subsequent note-ons, so
// a shift emits no MIDI of its own.
type OctaveEngine struct {
	cfg    *config.Config
	queue  *hw.DeltaQueue
	offset int
}

func NewOctaveEngine(cfg *config.Config, queue *hw.DeltaQueue) *OctaveEngine {
	return &OctaveEngine{cfg: cfg, queue: queue}
}

// Drain applies all pending detents, clamping after each one, and returns
// the resulting offset.
func (e *OctaveEngine) Drain() int {
	for _, d := range e.queue.Drain() {
		step := 1
		if d < 0 {
			step = -1
		}
		next := e.offset + step
		if next < -e.cfg.OctaveRange || next > e.cfg.OctaveRange {
			continue
		}
		e.offset = next
		slog.Debug("octave: shifted", "offset", e.offset)
	}
	return e.offset
}

// Offset returns the current octave offset.
func (e *OctaveEngine) Offset() int {
	return e.offset
}

// Reset recentres the offset.
func (e *OctaveEngine) Reset() {
	e.offset = 0
}
