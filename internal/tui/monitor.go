// Package tui is the live monitor for the simulated rig: the computer
// keyboard strikes the virtual keybed while the decoded MIDI stream, the
// pots and the octave state are displayed.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gitlab.com/gomidi/midi/v2"

	"github.com/scrivener-audio/bartleby/internal/hw"
)

const maxMessageHistory = 12

// two rows of the computer keyboard cover the 25 keys
var keyMap = map[string]int{
	"z": 0, "s": 1, "x": 2, "d": 3, "c": 4, "v": 5, "g": 6, "b": 7,
	"h": 8, "n": 9, "j": 10, "m": 11, ",": 12,
	"q": 13, "2": 14, "w": 15, "3": 16, "e": 17, "r": 18, "5": 19,
	"t": 20, "6": 21, "y": 22, "7": 23, "u": 24,
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	activeKeyStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#00AA00")).
			Foreground(lipgloss.Color("#000000"))

	idleKeyStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#FFFFFF")).
			Foreground(lipgloss.Color("#000000"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

type tickMsg time.Time

// Forwarder receives the raw TX stream, typically a real serial port.
type Forwarder interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
}

// Model is the bubbletea model of the monitor.
type Model struct {
	rig     *hw.SimRig
	port    *hw.SimPort
	forward Forwarder

	selPot int
	octave int

	activeNotes    map[uint8]uint8 // note -> channel (1-based)
	messageHistory []string
	messageCount   int

	// TX stream decoder state
	pending []byte
	need    int
	inSysEx bool
	line    []byte

	width  int
	height int
}

func NewModel(rig *hw.SimRig, port *hw.SimPort, forward Forwarder) *Model {
	return &Model{
		rig:         rig,
		port:        port,
		forward:     forward,
		activeNotes: make(map[uint8]uint8),
	}
}

func (m *Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(30*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.pumpStreams()
		return m, tick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := msg.String()
	switch s {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "+", "=":
		m.rig.Turn(1)
		if m.octave < 3 {
			m.octave++
		}
		return m, nil
	case "-", "_":
		m.rig.Turn(-1)
		if m.octave > -3 {
			m.octave--
		}
		return m, nil
	case "[":
		if m.selPot > 0 {
			m.selPot--
		}
		return m, nil
	case "]":
		if m.selPot < hw.NumPots-1 {
			m.selPot++
		}
		return m, nil
	case "up":
		m.nudgePot(256)
		return m, nil
	case "down":
		m.nudgePot(-256)
		return m, nil
	}

	if key, ok := keyMap[s]; ok {
		go strike(m.rig, key)
	}
	return m, nil
}

func (m *Model) nudgePot(delta int) {
	v := int(m.rig.Pot(m.selPot)) + delta
	if v < 0 {
		v = 0
	}
	if v > 4095 {
		v = 4095
	}
	m.rig.SetPot(m.selPot, uint16(v))
}

// strike plays one key with a firm press profile and an automatic
// release; terminals report no key-up events.
func strike(rig *hw.SimRig, key int) {
	rig.SetKey(key, 1500, 0)
	time.Sleep(1 * time.Millisecond)
	rig.SetKey(key, 3000, 1600)
	time.Sleep(1 * time.Millisecond)
	rig.SetKey(key, 3200, 3200)
	time.Sleep(250 * time.Millisecond)
	rig.SetKey(key, 1500, 0)
	time.Sleep(4 * time.Millisecond)
	rig.SetKey(key, 0, 0)
}

// pumpStreams moves TX bytes into the decoder (and the forwarder, when
// present) and inbound host bytes into the rig's port.
func (m *Model) pumpStreams() {
	out := m.port.TakeTx()
	if len(out) > 0 {
		if m.forward != nil {
			_, _ = m.forward.Write(out)
		}
		for _, b := range out {
			m.consume(b)
		}
	}

	if m.forward != nil {
		var buf [64]byte
		for {
			n, err := m.forward.Read(buf[:])
			if n <= 0 || err != nil {
				break
			}
			m.port.Feed(buf[:n])
		}
	}
}

// consume classifies one TX byte, rebuilding MIDI messages and ASCII
// lines for the log.
func (m *Model) consume(b byte) {
	if b >= 0x80 {
		if b >= 0xF8 {
			return
		}
		if b == 0xF0 {
			m.inSysEx = true
			return
		}
		if b == 0xF7 {
			m.inSysEx = false
			return
		}
		m.pending = append(m.pending[:0], b)
		m.need = dataLen(b)
		if m.need == 0 {
			m.logMIDI(midi.Message(append([]byte(nil), m.pending...)))
			m.pending = m.pending[:0]
		}
		return
	}

	if m.inSysEx {
		return
	}
	if len(m.pending) > 0 {
		m.pending = append(m.pending, b)
		if len(m.pending) == m.need+1 {
			m.logMIDI(midi.Message(append([]byte(nil), m.pending...)))
			m.pending = m.pending[:0]
		}
		return
	}

	if b == '\n' {
		m.push(fmt.Sprintf("txt:      %q", string(m.line)))
		m.line = m.line[:0]
		return
	}
	m.line = append(m.line, b)
}

func dataLen(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 1
	case 0x80, 0x90, 0xA0, 0xB0, 0xE0:
		return 2
	}
	return 0
}

func (m *Model) logMIDI(msg midi.Message) {
	var ch, note, vel, cc, val, pressure uint8
	var rel int16
	var abs uint16
	switch {
	case msg.GetNoteStart(&ch, &note, &vel):
		m.activeNotes[note] = ch + 1
		m.push(fmt.Sprintf("NoteOn:   Ch%-2d %-4s vel:%d", ch+1, noteName(note), vel))
	case msg.GetNoteEnd(&ch, &note):
		delete(m.activeNotes, note)
		m.push(fmt.Sprintf("NoteOff:  Ch%-2d %-4s", ch+1, noteName(note)))
	case msg.GetControlChange(&ch, &cc, &val):
		m.push(fmt.Sprintf("CC:       Ch%-2d ctrl:%d val:%d", ch+1, cc, val))
	case msg.GetAfterTouch(&ch, &pressure):
		m.push(fmt.Sprintf("Pressure: Ch%-2d %d", ch+1, pressure))
	case msg.GetPitchBend(&ch, &rel, &abs):
		m.push(fmt.Sprintf("Bend:     Ch%-2d %d", ch+1, abs))
	}
	m.messageCount++
}

func (m *Model) push(entry string) {
	m.messageHistory = append([]string{entry}, m.messageHistory...)
	if len(m.messageHistory) > maxMessageHistory {
		m.messageHistory = m.messageHistory[:maxMessageHistory]
	}
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("BARTLEBY — simulated rig") + "\n\n")
	b.WriteString(subtitleStyle.Render("Octave: ") + fmt.Sprintf("%+d", m.octave) + "\n\n")

	// Keybed: 25 cells, lit while their note sounds.
	base := 60 + m.octave*12
	for i := 0; i < hw.NumKeys; i++ {
		note := base + i
		cell := " "
		if note >= 0 && note <= 127 {
			if _, on := m.activeNotes[uint8(note)]; on {
				b.WriteString(activeKeyStyle.Render("█"))
			} else {
				b.WriteString(idleKeyStyle.Render("█"))
			}
		} else {
			b.WriteString(cell)
		}
		b.WriteString(" ")
	}
	b.WriteString("\n\n")

	// Pots.
	b.WriteString(subtitleStyle.Render("Pots:") + "\n")
	for i := 0; i < hw.NumPots; i++ {
		marker := " "
		if i == m.selPot {
			marker = ">"
		}
		v := int(m.rig.Pot(i)) * 127 / 4095
		bar := strings.Repeat("▮", v/8)
		b.WriteString(fmt.Sprintf("%s pot %2d  %-16s %3d\n", marker, i, bar, v))
	}

	// Message log.
	b.WriteString("\n" + subtitleStyle.Render(fmt.Sprintf("MIDI out: [%d total]", m.messageCount)) + "\n")
	if len(m.messageHistory) == 0 {
		b.WriteString("  " + logStyle.Render("(nothing sent yet)") + "\n")
	} else {
		for i, entry := range m.messageHistory {
			if i == 0 {
				b.WriteString("  ▶ " + entry + "\n")
			} else {
				b.WriteString("  " + logStyle.Render("  "+entry) + "\n")
			}
		}
	}

	b.WriteString("\n" + helpStyle.Render("z..m / q..u: keys • +/-: octave • [ ]: select pot • ↑↓: turn pot • esc: quit"))
	return b.String()
}

func noteName(note uint8) string {
	names := []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	return fmt.Sprintf("%s%d", names[note%12], int(note/12)-1)
}
