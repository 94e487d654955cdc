package engine

import (
	"testing"

	"github.com/scrivener-audio/bartleby/internal/config"
	"github.com/scrivener-audio/bartleby/internal/hw"
)

func TestOctaveDrainAndClamp(t *testing.T) {
	q := hw.NewDeltaQueue(32)
	o := NewOctaveEngine(config.DefaultConfig(), q)

	q.Push(1)
	q.Push(1)
	if got := o.Drain(); got != 2 {
		t.Errorf("offset %d after two detents up, want 2", got)
	}

	// Detents past the clamp are absorbed.
	for i := 0; i < 10; i++ {
		q.Push(1)
	}
	if got := o.Drain(); got != 3 {
		t.Errorf("offset %d at the top of the range, want 3", got)
	}

	for i := 0; i < 20; i++ {
		q.Push(-1)
	}
	if got := o.Drain(); got != -3 {
		t.Errorf("offset %d at the bottom of the range, want -3", got)
	}

	o.Reset()
	if o.Offset() != 0 {
		t.Errorf("offset %d after reset, want 0", o.Offset())
	}
}

func TestDeltaQueueDropsWhenFull(t *testing.T) {
	q := hw.NewDeltaQueue(2)
	if !q.Push(1) || !q.Push(1) {
		t.Fatal("queue rejected deltas below capacity")
	}
	if q.Push(1) {
		t.Error("queue accepted a delta beyond capacity")
	}
	if got := len(q.Drain()); got != 2 {
		t.Errorf("drained %d deltas, want 2", got)
	}
}
