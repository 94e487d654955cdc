// Package wire formats engine events and zone setup as MIDI messages.
// Every message is emitted in full; running status is never used, so the
// transport can interleave ASCII frames between messages safely.
package wire

import (
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/scrivener-audio/bartleby/internal/engine"
	"github.com/scrivener-audio/bartleby/internal/mpe"
)

// Controller numbers used by the zone setup.
const (
	ccBankTimbre    = 74
	ccDataEntryMSB  = 6
	ccDataEntryLSB  = 38
	ccRPNLSB        = 100
	ccRPNMSB        = 101
	ccResetAll      = 121
	ccAllNotesOff   = 123
	rpnPitchBendLSB = 0
	rpnMPEConfigLSB = 6
)

// ch0 converts the 1-based channel used throughout the engine to the
// 0-based channel gomidi expects.
func ch0(ch uint8) uint8 { return ch - 1 }

// NoteOn formats a note-on.
func NoteOn(ch, note, vel uint8) midi.Message {
	return midi.NoteOn(ch0(ch), note, vel)
}

// NoteOff formats a note-off, carrying a release velocity when non-zero.
func NoteOff(ch, note, vel uint8) midi.Message {
	if vel == 0 {
		return midi.NoteOff(ch0(ch), note)
	}
	return midi.NoteOffVelocity(ch0(ch), note, vel)
}

// ChannelPressure formats a channel pressure message.
func ChannelPressure(ch, pressure uint8) midi.Message {
	return midi.AfterTouch(ch0(ch), pressure)
}

// PitchBend formats an absolute 14-bit bend (centre 8192).
func PitchBend(ch uint8, abs uint16) midi.Message {
	return midi.Pitchbend(ch0(ch), int16(int(abs)-mpe.BendCenter))
}

// ControlChange formats a control change.
func ControlChange(ch, controller, value uint8) midi.Message {
	return midi.ControlChange(ch0(ch), controller, value)
}

// FromEvent is the single dispatch site turning a tagged engine event
// into its wire form.
func FromEvent(ev engine.Event) midi.Message {
	switch ev.Kind {
	case engine.EventNoteOn:
		return NoteOn(ev.Channel, ev.Note, ev.Value)
	case engine.EventNoteOff:
		return NoteOff(ev.Channel, ev.Note, ev.Value)
	case engine.EventPressure:
		return ChannelPressure(ev.Channel, ev.Value)
	case engine.EventPitchBend:
		return PitchBend(ev.Channel, ev.Bend)
	case engine.EventTimbre:
		return ControlChange(ev.Channel, ccBankTimbre, ev.Value)
	case engine.EventControl:
		return ControlChange(ev.Channel, ev.Controller, ev.Value)
	}
	return nil
}

// rpn emits a full registered-parameter write: select, data entry, and
// the null deselect that keeps later data entries from landing on it.
func rpn(ch, msb, lsb, data uint8) []midi.Message {
	return []midi.Message{
		ControlChange(ch, ccRPNMSB, msb),
		ControlChange(ch, ccRPNLSB, lsb),
		ControlChange(ch, ccDataEntryMSB, data),
		ControlChange(ch, ccDataEntryLSB, 0),
		ControlChange(ch, ccRPNMSB, 127),
		ControlChange(ch, ccRPNLSB, 127),
	}
}

// MPESetup is the full zone announcement sent at boot and after a reset:
// controllers and notes cleared, the MPE configuration message declaring
// the member channels, the member bend range on every member channel, and
// the master bend range on the manager.
func MPESetup() []midi.Message {
	msgs := []midi.Message{
		ControlChange(mpe.ManagerChannel, ccResetAll, 0),
		ControlChange(mpe.ManagerChannel, ccAllNotesOff, 0),
	}
	msgs = append(msgs, rpn(mpe.ManagerChannel, 0, rpnMPEConfigLSB, mpe.MemberCount)...)
	for ch := uint8(mpe.MemberFirst); ch <= mpe.MemberLast; ch++ {
		msgs = append(msgs, rpn(ch, 0, rpnPitchBendLSB, mpe.MemberBendRange)...)
	}
	msgs = append(msgs, rpn(mpe.ManagerChannel, 0, rpnPitchBendLSB, mpe.MasterBendRange)...)
	return msgs
}

// GreetingStep is one timed slice of the boot chime.
type GreetingStep struct {
	Messages []midi.Message
	Hold     time.Duration
}

// Greeting is a short rising MPE phrase played once at boot. It runs
// before the engines start, on the first member channels, and leaves no
// allocator state behind.
func Greeting() []GreetingStep {
	notes := []uint8{60, 64, 67, 72}
	vels := []uint8{76, 89, 102, 114}
	holds := []time.Duration{200 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

	var steps []GreetingStep
	for i, note := range notes {
		ch := uint8(mpe.MemberFirst + i)
		steps = append(steps,
			GreetingStep{
				Messages: []midi.Message{
					ControlChange(ch, ccBankTimbre, mpe.TimbreCenter),
					ChannelPressure(ch, 95),
					PitchBend(ch, mpe.BendCenter),
					NoteOn(ch, note, vels[i]),
				},
				Hold: holds[i],
			},
			GreetingStep{
				Messages: []midi.Message{
					ChannelPressure(ch, 0),
					NoteOff(ch, note, 0),
				},
				Hold: 50 * time.Millisecond,
			},
		)
	}
	return steps
}
