// Package transport interleaves outbound MIDI messages and ASCII lines
// over one serial link, and classifies the inbound byte stream back into
// ASCII lines. Frames are atomic on the wire: the bytes of two frames
// never interleave.
package transport

import (
	"log/slog"

	"gitlab.com/gomidi/midi/v2"

	"github.com/scrivener-audio/bartleby/internal/hw"
)

// maxLine bounds the inbound ASCII line buffer.
const maxLine = 256

type ccKey struct {
	channel    uint8
	controller uint8
}

type frame struct {
	data     []byte
	cc       ccKey
	coalesce bool
}

// Mux owns the shared serial link. MIDI frames take priority over ASCII
// frames; a frame the port cannot fully accept stays at the head and is
// finished on a later pump before any other frame starts.
type Mux struct {
	port hw.Port

	midiQ  []frame
	asciiQ []frame
	cur    *frame
	curOff int

	// inbound classifier state
	line     []byte
	overflow bool
	midiLeft int
	inSysEx  bool
	lines    []string
}

func New(port hw.Port) *Mux {
	return &Mux{port: port}
}

// EnqueueMIDI queues one complete MIDI message as a frame. Pending
// control changes for the same (channel, controller) are coalesced to the
// newest value; notes are never dropped.
func (m *Mux) EnqueueMIDI(msg midi.Message) {
	f := frame{data: []byte(msg)}
	var ch, cc, val uint8
	if msg.GetControlChange(&ch, &cc, &val) && coalescable(cc) {
		f.cc = ccKey{channel: ch, controller: cc}
		f.coalesce = true
		kept := m.midiQ[:0]
		for _, q := range m.midiQ {
			if q.coalesce && q.cc == f.cc {
				continue
			}
			kept = append(kept, q)
		}
		m.midiQ = kept
	}
	m.midiQ = append(m.midiQ, f)
}

// EnqueueASCII queues one line, appending the terminator if missing.
func (m *Mux) EnqueueASCII(line string) {
	data := []byte(line)
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	m.asciiQ = append(m.asciiQ, frame{data: data})
}

// Pump makes non-blocking write attempts for up to maxFrames complete
// frames. A partially written frame is resumed first; backpressure stops
// the pump without dropping anything.
func (m *Mux) Pump(maxFrames int) error {
	for sent := 0; sent < maxFrames; {
		if m.cur == nil {
			var next frame
			switch {
			case len(m.midiQ) > 0:
				next = m.midiQ[0]
				m.midiQ = m.midiQ[1:]
			case len(m.asciiQ) > 0:
				next = m.asciiQ[0]
				m.asciiQ = m.asciiQ[1:]
			default:
				return nil
			}
			m.cur = &next
			m.curOff = 0
		}

		n, err := m.port.Write(m.cur.data[m.curOff:])
		if err != nil {
			return err
		}
		m.curOff += n
		if m.curOff < len(m.cur.data) {
			// TX buffer full; finish this frame on a later pump.
			return nil
		}
		m.cur = nil
		m.curOff = 0
		sent++
	}
	return nil
}

// PendingOut returns the number of queued outbound frames, counting a
// partially written one.
func (m *Mux) PendingOut() int {
	n := len(m.midiQ) + len(m.asciiQ)
	if m.cur != nil {
		n++
	}
	return n
}

// Poll drains the port's receive side and classifies every byte. MIDI
// traffic (status plus its data bytes, SysEx to EOX) is discarded; the
// rest accumulates into lines.
func (m *Mux) Poll() {
	var buf [64]byte
	for {
		n, err := m.port.Read(buf[:])
		if err != nil {
			slog.Warn("transport: read error", "err", err)
			return
		}
		if n == 0 {
			return
		}
		for _, b := range buf[:n] {
			m.classify(b)
		}
	}
}

func (m *Mux) classify(b byte) {
	if b >= 0x80 {
		if b >= 0xF8 {
			// Realtime bytes carry no data and may appear anywhere.
			return
		}
		if b == 0xF0 {
			m.inSysEx = true
			m.midiLeft = 0
			return
		}
		if b == 0xF7 {
			m.inSysEx = false
			return
		}
		m.inSysEx = false
		m.midiLeft = midiDataLen(b)
		return
	}

	if m.inSysEx {
		return
	}
	if m.midiLeft > 0 {
		m.midiLeft--
		return
	}

	if b == '\n' {
		if !m.overflow {
			m.lines = append(m.lines, string(m.line))
		}
		m.line = m.line[:0]
		m.overflow = false
		return
	}
	if len(m.line) >= maxLine {
		if !m.overflow {
			slog.Warn("transport: ascii line overflow, discarding")
		}
		m.overflow = true
		return
	}
	m.line = append(m.line, b)
}

// Lines drains the completed inbound ASCII lines.
func (m *Mux) Lines() []string {
	out := m.lines
	m.lines = nil
	return out
}

// coalescable reports whether a controller carries a plain continuous
// value. Data entry, (N)RPN selects and channel-mode controllers are part
// of multi-message sequences and must reach the wire intact.
func coalescable(cc uint8) bool {
	if cc >= 120 { // channel mode
		return false
	}
	switch cc {
	case 6, 38, 98, 99, 100, 101:
		return false
	}
	return true
}

// midiDataLen returns the number of data bytes following a channel or
// system-common status byte.
func midiDataLen(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 1
	case 0x80, 0x90, 0xA0, 0xB0, 0xE0:
		return 2
	}
	switch status {
	case 0xF1, 0xF3:
		return 1
	case 0xF2:
		return 2
	}
	return 0
}
