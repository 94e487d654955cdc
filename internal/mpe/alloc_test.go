package mpe

import "testing"

func TestAllocateRoundRobin(t *testing.T) {
	a := NewAllocator()
	for key := 0; key < MemberCount; key++ {
		ch, stolen := a.Allocate(key, uint8(60+key))
		if stolen != nil {
			t.Fatalf("unexpected steal for key %d", key)
		}
		want := uint8(MemberFirst + key)
		if ch != want {
			t.Errorf("key %d: got channel %d, want %d", key, ch, want)
		}
	}
	if a.FreeCount() != 0 {
		t.Errorf("expected no free channels, got %d", a.FreeCount())
	}
}

func TestChannelUniqueness(t *testing.T) {
	a := NewAllocator()
	seen := make(map[uint8]int)
	for key := 0; key < MemberCount; key++ {
		ch, _ := a.Allocate(key, 60)
		if prev, dup := seen[ch]; dup {
			t.Fatalf("channel %d assigned to both key %d and key %d", ch, prev, key)
		}
		seen[ch] = key
	}
}

func TestStealLRU(t *testing.T) {
	a := NewAllocator()
	for key := 0; key < MemberCount; key++ {
		a.Allocate(key, uint8(60+key))
	}

	ch, stolen := a.Allocate(15, 75)
	if stolen == nil {
		t.Fatal("expected a steal when all channels are occupied")
	}
	if stolen.Key != 0 || stolen.Channel != MemberFirst || stolen.Note != 60 {
		t.Errorf("stole key=%d ch=%d note=%d, want key=0 ch=%d note=60",
			stolen.Key, stolen.Channel, stolen.Note, MemberFirst)
	}
	if ch != MemberFirst {
		t.Errorf("reused channel %d, want %d", ch, MemberFirst)
	}
	if a.Occupant(MemberFirst) != 15 {
		t.Errorf("occupant of channel %d = %d, want 15", MemberFirst, a.Occupant(MemberFirst))
	}
}

func TestTouchRefreshesLRU(t *testing.T) {
	a := NewAllocator()
	for key := 0; key < MemberCount; key++ {
		a.Allocate(key, uint8(60+key))
	}
	// Key 0's channel sees fresh activity; key 1's becomes the LRU.
	a.Touch(MemberFirst)

	_, stolen := a.Allocate(20, 80)
	if stolen == nil || stolen.Key != 1 {
		t.Fatalf("expected to steal key 1's channel, got %+v", stolen)
	}
}

func TestReleaseRecycles(t *testing.T) {
	a := NewAllocator()
	for key := 0; key < MemberCount; key++ {
		a.Allocate(key, 60)
	}
	a.Release(7)
	if a.FreeCount() != 1 {
		t.Fatalf("expected one free channel, got %d", a.FreeCount())
	}
	if a.Occupant(7) != NoOccupant {
		t.Errorf("released channel still occupied by %d", a.Occupant(7))
	}
	if a.Pressure(7) != 0 {
		t.Errorf("released channel has pressure %d, want 0", a.Pressure(7))
	}

	ch, stolen := a.Allocate(20, 60)
	if stolen != nil || ch != 7 {
		t.Errorf("expected released channel 7 to be reused, got %d (steal %v)", ch, stolen)
	}
}

func TestReleaseUnoccupiedIsNoop(t *testing.T) {
	a := NewAllocator()
	a.Release(5)
	a.Release(5)
	if a.FreeCount() != MemberCount {
		t.Errorf("free count %d after redundant releases, want %d", a.FreeCount(), MemberCount)
	}
}

func TestResetRestoresAll(t *testing.T) {
	a := NewAllocator()
	for key := 0; key < 10; key++ {
		ch, _ := a.Allocate(key, 60)
		a.UpdatePressure(ch, 100)
	}
	a.Reset()
	if a.FreeCount() != MemberCount {
		t.Fatalf("free count %d after reset, want %d", a.FreeCount(), MemberCount)
	}
	for ch := uint8(MemberFirst); ch <= MemberLast; ch++ {
		if a.Occupant(ch) != NoOccupant {
			t.Errorf("channel %d still occupied after reset", ch)
		}
		if a.Pressure(ch) != 0 {
			t.Errorf("channel %d pressure %d after reset", ch, a.Pressure(ch))
		}
	}
}
