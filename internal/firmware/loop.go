// Package firmware is the cooperative scheduler tying the engines to the
// transport: a 1 ms key scan, a 20 ms pot scan, encoder draining, a
// bounded transport pump and the ASCII control protocol.
package firmware

import (
	"context"
	"log/slog"
	"time"

	"github.com/scrivener-audio/bartleby/internal/config"
	"github.com/scrivener-audio/bartleby/internal/engine"
	"github.com/scrivener-audio/bartleby/internal/hw"
	"github.com/scrivener-audio/bartleby/internal/mpe"
	"github.com/scrivener-audio/bartleby/internal/transport"
	"github.com/scrivener-audio/bartleby/internal/wire"
)

const (
	TickInterval = time.Millisecond
	PotInterval  = 20 * time.Millisecond
	CommTimeout  = 2 * time.Second

	// pumpBudget caps write attempts per tick so a saturated link cannot
	// stall the key scan.
	pumpBudget = 8
)

// Clock abstracts monotonic time so tests can drive the loop
// deterministically.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock is the wall clock used on hardware.
var RealClock Clock = realClock{}

// Loop owns the engines and runs them to completion every tick. All
// hardware is passed in at construction; nothing here touches global
// state.
type Loop struct {
	cfg      *config.Config
	sampler  hw.Sampler
	presence hw.PresencePin
	clock    Clock

	alloc  *mpe.Allocator
	keys   *engine.KeyEngine
	pots   *engine.PotEngine
	octave *engine.OctaveEngine
	mux    *transport.Mux

	lastPotScan time.Time
	hostSeen    bool
	lastInbound time.Time
}

// New wires a loop from its hardware resources.
func New(cfg *config.Config, sampler hw.Sampler, encoder *hw.DeltaQueue, port hw.Port, presence hw.PresencePin, clock Clock) *Loop {
	alloc := mpe.NewAllocator()
	return &Loop{
		cfg:      cfg,
		sampler:  sampler,
		presence: presence,
		clock:    clock,
		alloc:    alloc,
		keys:     engine.NewKeyEngine(cfg, alloc),
		pots:     engine.NewPotEngine(cfg),
		octave:   engine.NewOctaveEngine(cfg, encoder),
		mux:      transport.New(port),
	}
}

// Keys exposes the key engine for monitoring.
func (l *Loop) Keys() *engine.KeyEngine { return l.keys }

// Octave exposes the octave engine for monitoring.
func (l *Loop) Octave() *engine.OctaveEngine { return l.octave }

// Boot asserts the presence pin and emits the zone announcement; with the
// greeting enabled it plays the chime before the engines take over.
func (l *Loop) Boot() {
	l.presence.Assert()
	for _, msg := range wire.MPESetup() {
		l.mux.EnqueueMIDI(msg)
	}
	l.flush()

	if l.cfg.Greeting {
		for _, step := range wire.Greeting() {
			for _, msg := range step.Messages {
				l.mux.EnqueueMIDI(msg)
			}
			l.flush()
			l.clock.Sleep(step.Hold)
		}
	}
	slog.Info("firmware: boot complete", "greeting", l.cfg.Greeting)
}

// flush pumps until the outbound queue drains or the port pushes back.
func (l *Loop) flush() {
	for l.mux.PendingOut() > 0 {
		before := l.mux.PendingOut()
		if err := l.mux.Pump(pumpBudget); err != nil {
			slog.Warn("firmware: flush write error", "err", err)
			return
		}
		if l.mux.PendingOut() == before {
			return
		}
	}
}

// Tick runs one scheduler iteration at the given instant.
func (l *Loop) Tick(now time.Time) {
	// 1. Keybed scan: note-offs first, then note-ons, then expression.
	octave := l.octave.Offset()
	for _, ev := range l.keys.Scan(now, l.readKey, octave) {
		l.mux.EnqueueMIDI(wire.FromEvent(ev))
	}

	// 2. Pot scan at its own cadence.
	if l.lastPotScan.IsZero() || now.Sub(l.lastPotScan) >= PotInterval {
		for _, ev := range l.pots.Scan(l.readPot) {
			l.mux.EnqueueMIDI(wire.FromEvent(ev))
		}
		l.lastPotScan = now
	}

	// 3. Encoder detents; the new offset applies to subsequent note-ons.
	l.octave.Drain()

	// 4. Transport pump, bounded per tick.
	if err := l.mux.Pump(pumpBudget); err != nil {
		slog.Warn("firmware: write error", "err", err)
	}

	// 5. Inbound ASCII.
	l.mux.Poll()
	for _, line := range l.mux.Lines() {
		l.lastInbound = now
		l.handleLine(line)
	}

	// A silent host after a handshake gets the announcement again.
	if l.hostSeen && now.Sub(l.lastInbound) >= CommTimeout {
		l.mux.EnqueueASCII(Announcement)
		l.lastInbound = now
		slog.Info("firmware: comm timeout, re-announcing")
	}
}

// Run drives ticks against monotonic deadlines until the context ends.
// An overrun tick starts the next one immediately; missed ticks are not
// replayed.
func (l *Loop) Run(ctx context.Context) {
	next := l.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := l.clock.Now()
		l.Tick(now)

		next = next.Add(TickInterval)
		if d := next.Sub(l.clock.Now()); d > 0 {
			l.clock.Sleep(d)
		} else {
			next = l.clock.Now()
		}
	}
}

func (l *Loop) readKey(key int, bank hw.Bank) uint16 {
	return l.sampler.Read(hw.KeyInput(key, bank))
}

func (l *Loop) readPot(pot int) uint16 {
	return l.sampler.Read(hw.PotInput(pot))
}

// reset releases everything, re-announces the zone and restores factory
// state. The presence pin drops for the duration of the reset.
func (l *Loop) reset() {
	l.presence.Release()

	for _, ev := range l.keys.ReleaseAll() {
		l.mux.EnqueueMIDI(wire.FromEvent(ev))
	}
	l.alloc.Reset()
	l.octave.Reset()
	l.pots.ResetCC()
	l.hostSeen = false

	for _, msg := range wire.MPESetup() {
		l.mux.EnqueueMIDI(msg)
	}
	l.presence.Assert()
	slog.Info("firmware: reset complete")
}
