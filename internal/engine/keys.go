package engine

import (
	"log/slog"
	"math"
	"time"

	"github.com/scrivener-audio/bartleby/internal/config"
	"github.com/scrivener-audio/bartleby/internal/hw"
	"github.com/scrivener-audio/bartleby/internal/mpe"
)

// KeyPhase is the detection state of one key.
type KeyPhase int

const (
	KeyIdle KeyPhase = iota
	KeyRising
	KeyHeld
	KeyReleasing
)

func (p KeyPhase) String() string {
	switch p {
	case KeyIdle:
		return "IDLE"
	case KeyRising:
		return "RISING"
	case KeyHeld:
		return "HELD"
	case KeyReleasing:
		return "RELEASING"
	}
	return "UNKNOWN"
}

// baseNote puts key 0 at middle C with no octave shift.
const baseNote = 60

const pressureHistorySize = 8

// releaseDecayThreshold is the slowest pressure decay (normalised units
// per second) that still produces a non-zero release velocity.
const releaseDecayThreshold = 0.5

type keyState struct {
	phase    KeyPhase
	sampleA  uint16
	sampleB  uint16
	glitchA  bool
	glitchB  bool
	velocity uint8
	note     uint8
	channel  uint8 // 0 while unassigned
	risingAt time.Time

	// last emitted continuous values
	pressure uint8
	bend     uint16

	// recent pressure trajectory for release velocity
	histVal [pressureHistorySize]float64
	histAt  [pressureHistorySize]time.Time
	histLen int
	histPos int
}

// KeyEngine runs the 25 key state machines. Apart from the allocator's
// Reset on a reset command, it is the only caller of the channel allocator.
type KeyEngine struct {
	cfg   *config.Config
	alloc *mpe.Allocator
	keys  [hw.NumKeys]keyState
}

func NewKeyEngine(cfg *config.Config, alloc *mpe.Allocator) *KeyEngine {
	e := &KeyEngine{cfg: cfg, alloc: alloc}
	for i := range e.keys {
		e.keys[i].bend = mpe.BendCenter
	}
	return e
}

// Phase returns a key's current detection phase.
func (e *KeyEngine) Phase(key int) KeyPhase {
	return e.keys[key].phase
}

// Channel returns a key's assigned member channel, or 0.
func (e *KeyEngine) Channel(key int) uint8 {
	return e.keys[key].channel
}

// HeldNote describes one sounding key.
type HeldNote struct {
	Key     int
	Note    uint8
	Channel uint8
}

// Held returns the currently sounding keys in index order.
func (e *KeyEngine) Held() []HeldNote {
	var out []HeldNote
	for i := range e.keys {
		if e.keys[i].phase == KeyHeld {
			out = append(out, HeldNote{Key: i, Note: e.keys[i].note, Channel: e.keys[i].channel})
		}
	}
	return out
}

// Scan drives every key once from two fresh samples each. Within one scan
// all note-offs are emitted before any note-on, and continuous updates
// come last; each key makes at most one phase transition.
func (e *KeyEngine) Scan(now time.Time, read func(key int, bank hw.Bank) uint16, octave int) []Event {
	var events []Event
	var moved [hw.NumKeys]bool

	for i := range e.keys {
		k := &e.keys[i]
		k.sampleA = acceptSample(k.sampleA, read(i, hw.BankA), &k.glitchA, e.cfg.ADCMax)
		k.sampleB = acceptSample(k.sampleB, read(i, hw.BankB), &k.glitchB, e.cfg.ADCMax)
	}

	// Releases first: the allocator sees freed channels before this
	// scan's attacks ask for one.
	for i := range e.keys {
		k := &e.keys[i]
		switch k.phase {
		case KeyHeld:
			if k.sampleB < e.cfg.ThresholdOff {
				rel := k.releaseVelocity()
				events = append(events,
					Event{Kind: EventPressure, Channel: k.channel, Key: i, Value: 0},
					Event{Kind: EventNoteOff, Channel: k.channel, Key: i, Note: k.note, Value: rel},
				)
				e.alloc.Release(k.channel)
				slog.Debug("keys: note off", "key", i, "note", k.note, "channel", k.channel, "release_velocity", rel)
				k.channel = 0
				k.phase = KeyReleasing
				k.histLen = 0
				k.histPos = 0
				moved[i] = true
			}
		case KeyReleasing:
			if k.sampleA < e.cfg.ThresholdOff {
				k.phase = KeyIdle
				moved[i] = true
			}
		case KeyRising:
			aborted := k.sampleA < e.cfg.ThresholdOff && k.sampleB < e.cfg.ThresholdOn
			// A press that never bottoms out inside the abort window is
			// discarded once A sags below the on threshold.
			expired := now.Sub(k.risingAt) > time.Duration(e.cfg.AbortWindowMs*float64(time.Millisecond)) &&
				k.sampleA < e.cfg.ThresholdOn && k.sampleB < e.cfg.ThresholdOn
			if aborted || expired {
				k.phase = KeyIdle
				moved[i] = true
			}
		}
	}

	// Attacks.
	for i := range e.keys {
		k := &e.keys[i]
		if moved[i] {
			continue
		}
		switch k.phase {
		case KeyIdle:
			if k.sampleA >= e.cfg.ThresholdOn {
				k.phase = KeyRising
				k.risingAt = now
				moved[i] = true
			}
		case KeyRising:
			if k.sampleB >= e.cfg.ThresholdOn {
				events = append(events, e.attack(now, i, octave, &moved)...)
				moved[i] = true
			}
		}
	}

	// Continuous per-note expression.
	for i := range e.keys {
		k := &e.keys[i]
		if moved[i] || k.phase != KeyHeld {
			continue
		}

		p := e.scale7(k.sampleB)
		if absDiff8(p, k.pressure) >= e.cfg.PressureDeadband {
			events = append(events, Event{Kind: EventPressure, Channel: k.channel, Key: i, Value: p})
			e.alloc.UpdatePressure(k.channel, p)
			e.alloc.Touch(k.channel)
			k.pressure = p
			k.pushPressure(float64(p)/127.0, now)
		}

		b := bendFrom(k.sampleA, k.sampleB)
		if absDiff16(b, k.bend) >= e.cfg.BendDeadband {
			events = append(events, Event{Kind: EventPitchBend, Channel: k.channel, Key: i, Bend: b})
			e.alloc.UpdateBend(k.channel, b)
			k.bend = b
		}
	}

	return events
}

// attack completes a Rising key: velocity from the A->B interval, channel
// allocation (possibly stealing), expression reset and Note-On.
func (e *KeyEngine) attack(now time.Time, key, octave int, moved *[hw.NumKeys]bool) []Event {
	k := &e.keys[key]
	vel := e.velocityFrom(now.Sub(k.risingAt))
	note := noteNumber(key, octave)

	ch, stolen := e.alloc.Allocate(key, note)

	var events []Event
	if stolen != nil {
		victim := &e.keys[stolen.Key]
		events = append(events,
			Event{Kind: EventPressure, Channel: stolen.Channel, Key: stolen.Key, Value: 0},
			Event{Kind: EventNoteOff, Channel: stolen.Channel, Key: stolen.Key, Note: stolen.Note},
		)
		victim.phase = KeyReleasing
		victim.channel = 0
		victim.histLen = 0
		victim.histPos = 0
		moved[stolen.Key] = true
	}

	// Expression reset before Note-On, in MPE order: timbre, pressure,
	// pitch bend, note.
	events = append(events,
		Event{Kind: EventTimbre, Channel: ch, Key: key, Value: mpe.TimbreCenter},
		Event{Kind: EventPressure, Channel: ch, Key: key, Value: 0},
		Event{Kind: EventPitchBend, Channel: ch, Key: key, Bend: mpe.BendCenter},
		Event{Kind: EventNoteOn, Channel: ch, Key: key, Note: note, Value: vel},
	)

	k.phase = KeyHeld
	k.channel = ch
	k.note = note
	k.velocity = vel
	k.pressure = 0
	k.bend = mpe.BendCenter
	k.histLen = 0
	k.histPos = 0

	slog.Debug("keys: note on", "key", key, "note", note, "channel", ch, "velocity", vel)
	return events
}

// ReleaseAll force-releases every key, emitting Note-Offs for the held
// ones. Used by the reset command.
func (e *KeyEngine) ReleaseAll() []Event {
	var events []Event
	for i := range e.keys {
		k := &e.keys[i]
		if k.phase == KeyHeld {
			events = append(events,
				Event{Kind: EventPressure, Channel: k.channel, Key: i, Value: 0},
				Event{Kind: EventNoteOff, Channel: k.channel, Key: i, Note: k.note},
			)
			e.alloc.Release(k.channel)
		}
		k.phase = KeyIdle
		k.channel = 0
		k.histLen = 0
		k.histPos = 0
	}
	return events
}

func (e *KeyEngine) velocityFrom(dt time.Duration) uint8 {
	ms := float64(dt) / float64(time.Millisecond)
	if ms <= 0 {
		return 127
	}
	if ms > e.cfg.VelocityCeilingMs {
		return e.cfg.DefaultVelocity
	}
	v := math.Round(e.cfg.VelocityScale / ms)
	if v < 1 {
		v = 1
	}
	if v > 127 {
		v = 127
	}
	return uint8(v)
}

func (e *KeyEngine) scale7(raw uint16) uint8 {
	v := int(raw) * 127 / int(e.cfg.ADCMax)
	if v > 127 {
		v = 127
	}
	return uint8(v)
}

// bendFrom derives the key's lateral position from the imbalance of its
// two sensors and maps it onto the full 14-bit bend range.
func bendFrom(a, b uint16) uint16 {
	total := int(a) + int(b)
	if total == 0 {
		return mpe.BendCenter
	}
	pos := float64(int(b)-int(a)) / float64(total) // -1..1
	v := math.Round((pos + 1) / 2 * 16383)
	if v < 0 {
		v = 0
	}
	if v > 16383 {
		v = 16383
	}
	return uint16(v)
}

func (k *keyState) pushPressure(v float64, at time.Time) {
	k.histVal[k.histPos] = v
	k.histAt[k.histPos] = at
	k.histPos = (k.histPos + 1) % pressureHistorySize
	if k.histLen < pressureHistorySize {
		k.histLen++
	}
}

// releaseVelocity derives a release velocity from the pressure decay rate
// over the recent history; slow releases report 0.
func (k *keyState) releaseVelocity() uint8 {
	if k.histLen < 2 {
		return 0
	}
	start := (k.histPos - k.histLen + pressureHistorySize) % pressureHistorySize
	var change, elapsed float64
	for i := 1; i < k.histLen; i++ {
		prev := (start + i - 1) % pressureHistorySize
		cur := (start + i) % pressureHistorySize
		dt := k.histAt[cur].Sub(k.histAt[prev]).Seconds()
		if dt > 0 {
			change += k.histVal[cur] - k.histVal[prev]
			elapsed += dt
		}
	}
	if elapsed <= 0 {
		return 0
	}
	rate := math.Abs(change / elapsed)
	if rate < releaseDecayThreshold {
		return 0
	}
	v := int(rate * 2 * 127)
	if v > 127 {
		v = 127
	}
	return uint8(v)
}

// acceptSample rejects a single wild jump: an extreme change must persist
// for two consecutive scans before it is believed.
func acceptSample(old, next uint16, pending *bool, fullScale uint16) uint16 {
	d := int(next) - int(old)
	if d < 0 {
		d = -d
	}
	if d > int(fullScale)/2 && !*pending {
		*pending = true
		return old
	}
	*pending = false
	return next
}

func noteNumber(key, octave int) uint8 {
	n := baseNote + octave*12 + key
	if n < 0 {
		n = 0
	}
	if n > 127 {
		n = 127
	}
	return uint8(n)
}

func absDiff8(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

func absDiff16(a, b uint16) uint16 {
	if a > b {
		return a - b
	}
	return b - a
}
