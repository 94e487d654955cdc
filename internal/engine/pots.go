package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/scrivener-audio/bartleby/internal/config"
	"github.com/scrivener-audio/bartleby/internal/hw"
	"github.com/scrivener-audio/bartleby/internal/mpe"
)

type potState struct {
	smoothed float64
	primed   bool
	// candidate quantised value awaiting its confirming sample
	candidate int16
	agreed    bool
	// last emitted 7-bit value, -1 before the first emission
	emitted int16
	cc      uint8
}

// PotEngine runs the 14 pot state machines: low-pass, edge trim, 7-bit
// quantise, and dead-banded CC emission on the manager channel. A value
// must be seen on two consecutive scans before it is believed.
type PotEngine struct {
	cfg  *config.Config
	pots [hw.NumPots]potState
}

func NewPotEngine(cfg *config.Config) *PotEngine {
	e := &PotEngine{cfg: cfg}
	for i := range e.pots {
		e.pots[i].candidate = -1
		e.pots[i].emitted = -1
		e.pots[i].cc = cfg.PotCC[i]
	}
	return e
}

// Scan reads every pot once and returns the CC events due this cycle.
func (e *PotEngine) Scan(read func(pot int) uint16) []Event {
	var events []Event
	for i := range e.pots {
		p := &e.pots[i]
		raw := float64(read(i))

		if !p.primed {
			p.smoothed = raw
			p.primed = true
		} else {
			p.smoothed += e.cfg.PotAlpha * (raw - p.smoothed)
		}

		q := e.quantise(p.smoothed)
		if q != p.candidate {
			p.candidate = q
			p.agreed = false
			continue
		}
		if !p.agreed {
			p.agreed = true
		}

		if p.emitted >= 0 && absDiffI16(q, p.emitted) < int16(e.cfg.PotDeadband) {
			continue
		}
		events = append(events, Event{
			Kind:       EventControl,
			Channel:    mpe.ManagerChannel,
			Key:        i,
			Controller: p.cc,
			Value:      uint8(q),
		})
		p.emitted = q
	}
	return events
}

// quantise trims the mechanical dead zones at the track ends and maps the
// remainder onto 0..127.
func (e *PotEngine) quantise(smoothed float64) int16 {
	n := smoothed / float64(e.cfg.ADCMax)
	lo, hi := e.cfg.PotLowerTrim, e.cfg.PotUpperTrim
	switch {
	case n < lo:
		n = 0
	case n > 1-hi:
		n = 1
	default:
		n = (n - lo) / (1 - lo - hi)
	}
	v := math.Round(n * 127)
	if v < 0 {
		v = 0
	}
	if v > 127 {
		v = 127
	}
	return int16(v)
}

// SetCC remaps a pot to a new controller number.
func (e *PotEngine) SetCC(pot int, cc uint8) error {
	if pot < 0 || pot >= hw.NumPots {
		return fmt.Errorf("pot index %d out of range", pot)
	}
	if cc > 127 {
		return fmt.Errorf("controller %d out of range", cc)
	}
	e.pots[pot].cc = cc
	// The next agreed value is re-emitted on the new controller.
	e.pots[pot].emitted = -1
	slog.Info("pots: remapped", "pot", pot, "cc", cc)
	return nil
}

// CC returns the controller a pot is mapped to.
func (e *PotEngine) CC(pot int) uint8 {
	return e.pots[pot].cc
}

// ResetCC restores the factory pot->controller table.
func (e *PotEngine) ResetCC() {
	for i := range e.pots {
		e.pots[i].cc = config.DefaultPotCC[i]
		e.pots[i].emitted = -1
	}
}

func absDiffI16(a, b int16) int16 {
	if a > b {
		return a - b
	}
	return b - a
}
