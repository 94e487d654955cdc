package engine

import (
	"testing"

	"github.com/scrivener-audio/bartleby/internal/config"
	"github.com/scrivener-audio/bartleby/internal/hw"
)

type potRig struct {
	engine *PotEngine
	raw    [hw.NumPots]uint16
}

func newPotRig() *potRig {
	return &potRig{engine: NewPotEngine(config.DefaultConfig())}
}

func (r *potRig) scan() []Event {
	return r.engine.Scan(func(pot int) uint16 { return r.raw[pot] })
}

// settle scans until the low-pass and agreement rule stop producing new
// events, returning everything emitted.
func (r *potRig) settle(maxScans int) []Event {
	var all []Event
	for i := 0; i < maxScans; i++ {
		all = append(all, r.scan()...)
	}
	return all
}

func TestPotEmitsOnlyAfterAgreement(t *testing.T) {
	r := newPotRig()
	r.raw[0] = 2048

	if evs := r.scan(); len(evs) != 0 {
		t.Errorf("first sample emitted %d events before agreement", len(evs))
	}
	// The second scan agrees: every pot reports its initial value once.
	var forPot []Event
	for _, ev := range r.scan() {
		if ev.Key == 0 {
			forPot = append(forPot, ev)
		}
	}
	if len(forPot) != 1 {
		t.Fatalf("agreed value emitted %d events for pot 0, want 1", len(forPot))
	}
	ev := forPot[0]
	if ev.Kind != EventControl || ev.Channel != 1 {
		t.Errorf("event %v on channel %d, want CONTROL on the manager channel", ev.Kind, ev.Channel)
	}
	if ev.Controller != config.DefaultPotCC[0] {
		t.Errorf("controller %d, want default %d", ev.Controller, config.DefaultPotCC[0])
	}
}

func TestPotDeadband(t *testing.T) {
	r := newPotRig()
	r.raw[3] = 2048
	r.settle(6)

	// A sub-LSB wiggle never re-emits.
	r.raw[3] = 2052
	for _, ev := range r.settle(6) {
		if ev.Key == 3 {
			t.Errorf("sub-dead-band wiggle emitted CC %d", ev.Value)
		}
	}
}

func TestPotSweepIsMonotoneWithMinimumStep(t *testing.T) {
	r := newPotRig()
	var values []uint8
	for raw := uint16(0); raw <= 4000; raw += 200 {
		r.raw[0] = raw
		for _, ev := range r.settle(8) {
			if ev.Key == 0 {
				values = append(values, ev.Value)
			}
		}
	}
	if len(values) < 5 {
		t.Fatalf("sweep produced only %d emissions", len(values))
	}
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			t.Errorf("sweep not monotone: %d after %d", values[i], values[i-1])
		}
		if values[i] == values[i-1] {
			t.Errorf("consecutive emissions carry the same value %d", values[i])
		}
	}
}

func TestPotTrimReachesEndpoints(t *testing.T) {
	r := newPotRig()
	r.raw[0] = 0
	r.settle(8)

	r.raw[0] = 4095
	evs := r.settle(20)
	if len(evs) == 0 {
		t.Fatal("full-scale sweep emitted nothing")
	}
	if last := evs[len(evs)-1].Value; last != 127 {
		t.Errorf("full-scale value %d, want 127", last)
	}
}

func TestPotRemap(t *testing.T) {
	r := newPotRig()
	if err := r.engine.SetCC(0, 30); err != nil {
		t.Fatalf("SetCC: %v", err)
	}
	if got := r.engine.CC(0); got != 30 {
		t.Errorf("CC(0) = %d, want 30", got)
	}

	r.raw[0] = 3000
	evs := r.settle(8)
	if len(evs) == 0 {
		t.Fatal("remapped pot emitted nothing")
	}
	if evs[0].Controller != 30 {
		t.Errorf("controller %d after remap, want 30", evs[0].Controller)
	}

	if err := r.engine.SetCC(99, 10); err == nil {
		t.Error("SetCC accepted an out-of-range pot index")
	}
	if err := r.engine.SetCC(0, 200); err == nil {
		t.Error("SetCC accepted an out-of-range controller")
	}
}

func TestPotResetCC(t *testing.T) {
	r := newPotRig()
	_ = r.engine.SetCC(2, 55)
	r.engine.ResetCC()
	if got := r.engine.CC(2); got != config.DefaultPotCC[2] {
		t.Errorf("CC(2) = %d after reset, want %d", got, config.DefaultPotCC[2])
	}
}
