package wire

import (
	"bytes"
	"testing"

	"github.com/scrivener-audio/bartleby/internal/engine"
	"github.com/scrivener-audio/bartleby/internal/mpe"
)

func TestMessageBytes(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"note on ch2", NoteOn(2, 60, 100), []byte{0x91, 0x3C, 0x64}},
		{"note off ch2", NoteOff(2, 60, 0), []byte{0x81, 0x3C, 0x00}},
		{"pressure ch2", ChannelPressure(2, 93), []byte{0xD1, 0x5D}},
		{"bend centre ch2", PitchBend(2, 8192), []byte{0xE1, 0x00, 0x40}},
		{"cc manager", ControlChange(1, 74, 64), []byte{0xB0, 0x4A, 0x40}},
	}
	for _, tt := range tests {
		if !bytes.Equal(tt.got, tt.want) {
			t.Errorf("%s: got % X, want % X", tt.name, tt.got, tt.want)
		}
	}
}

func TestNoteOffCarriesReleaseVelocity(t *testing.T) {
	msg := NoteOff(3, 64, 40)
	var ch, note, vel uint8
	if !msg.GetNoteOff(&ch, &note, &vel) {
		t.Fatalf("not a note-off: % X", []byte(msg))
	}
	if ch != 2 || note != 64 || vel != 40 {
		t.Errorf("got ch=%d note=%d vel=%d, want 2/64/40", ch, note, vel)
	}
}

func TestFromEventDispatch(t *testing.T) {
	tests := []struct {
		ev   engine.Event
		want []byte
	}{
		{engine.Event{Kind: engine.EventNoteOn, Channel: 2, Note: 60, Value: 100}, []byte{0x91, 0x3C, 0x64}},
		{engine.Event{Kind: engine.EventNoteOff, Channel: 2, Note: 60}, []byte{0x81, 0x3C, 0x00}},
		{engine.Event{Kind: engine.EventPressure, Channel: 2, Value: 10}, []byte{0xD1, 0x0A}},
		{engine.Event{Kind: engine.EventPitchBend, Channel: 2, Bend: 8192}, []byte{0xE1, 0x00, 0x40}},
		{engine.Event{Kind: engine.EventTimbre, Channel: 2, Value: 64}, []byte{0xB1, 0x4A, 0x40}},
		{engine.Event{Kind: engine.EventControl, Channel: 1, Controller: 7, Value: 99}, []byte{0xB0, 0x07, 0x63}},
	}
	for _, tt := range tests {
		if got := []byte(FromEvent(tt.ev)); !bytes.Equal(got, tt.want) {
			t.Errorf("%v: got % X, want % X", tt.ev.Kind, got, tt.want)
		}
	}
}

// rpnTracker replays CC streams the way a receiver would, recording the
// last data entry written to each selected RPN per channel.
type rpnTracker struct {
	sel  [17]uint16 // selected RPN per 1-based channel, 0x3FFF = null
	bend [17]uint8  // last pitch-bend-range data entry
	mcm  uint8      // member count from the MPE configuration message
}

func newRPNTracker() *rpnTracker {
	t := &rpnTracker{}
	for i := range t.sel {
		t.sel[i] = 0x3FFF
	}
	return t
}

func (r *rpnTracker) feed(data []byte) {
	if len(data) != 3 || data[0]&0xF0 != 0xB0 {
		return
	}
	ch := int(data[0]&0x0F) + 1
	cc, val := data[1], data[2]
	switch cc {
	case 101:
		r.sel[ch] = r.sel[ch]&0x7F | uint16(val)<<7
	case 100:
		r.sel[ch] = r.sel[ch]&0x3F80 | uint16(val)
	case 6:
		switch r.sel[ch] {
		case 0: // pitch bend range
			r.bend[ch] = val
		case 6: // MPE configuration
			r.mcm = val
		}
	}
}

func TestMPESetupRoundTrip(t *testing.T) {
	tr := newRPNTracker()
	for _, msg := range MPESetup() {
		tr.feed([]byte(msg))
	}

	if tr.mcm != mpe.MemberCount {
		t.Errorf("MPE configuration declares %d member channels, want %d", tr.mcm, mpe.MemberCount)
	}
	for ch := mpe.MemberFirst; ch <= mpe.MemberLast; ch++ {
		if tr.bend[ch] != mpe.MemberBendRange {
			t.Errorf("channel %d bend range %d, want %d", ch, tr.bend[ch], mpe.MemberBendRange)
		}
	}
	if tr.bend[mpe.ManagerChannel] != mpe.MasterBendRange {
		t.Errorf("manager bend range %d, want %d", tr.bend[mpe.ManagerChannel], mpe.MasterBendRange)
	}

	// Every RPN write deselects afterwards.
	for ch := 1; ch <= 16; ch++ {
		if tr.sel[ch] != 0x3FFF {
			t.Errorf("channel %d left with RPN %04X selected", ch, tr.sel[ch])
		}
	}
}

func TestMPESetupClearsControllersFirst(t *testing.T) {
	msgs := MPESetup()
	if len(msgs) < 2 {
		t.Fatal("setup sequence too short")
	}
	if !bytes.Equal(msgs[0], ControlChange(1, 121, 0)) {
		t.Errorf("first message % X, want reset-all-controllers", []byte(msgs[0]))
	}
	if !bytes.Equal(msgs[1], ControlChange(1, 123, 0)) {
		t.Errorf("second message % X, want all-notes-off", []byte(msgs[1]))
	}
}

func TestGreetingBalancesNotes(t *testing.T) {
	on := map[uint8]int{}
	for _, step := range Greeting() {
		for _, msg := range step.Messages {
			var ch, note, vel uint8
			if msg.GetNoteStart(&ch, &note, &vel) {
				on[note]++
			} else if msg.GetNoteEnd(&ch, &note) {
				on[note]--
			}
		}
	}
	for note, n := range on {
		if n != 0 {
			t.Errorf("greeting leaves note %d unbalanced by %d", note, n)
		}
	}
}
