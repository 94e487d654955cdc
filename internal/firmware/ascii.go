package firmware

import (
	"log/slog"
	"strconv"
	"strings"
)

// Announcement is the identity line sent in reply to a handshake and
// whenever the host goes quiet.
const Announcement = "bartleby v1"

// handleLine dispatches one inbound ASCII command. Unknown input is
// echoed back with an err prefix; the device never goes silent on a
// malformed line.
func (l *Loop) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "hello":
		l.hostSeen = true
		l.mux.EnqueueASCII(Announcement)
		slog.Info("ascii: handshake")

	case "cc":
		if len(fields) != 3 {
			l.replyErr(line)
			return
		}
		pot, err1 := strconv.Atoi(fields[1])
		cc, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || cc < 0 || cc > 127 {
			l.replyErr(line)
			return
		}
		if err := l.pots.SetCC(pot, uint8(cc)); err != nil {
			l.replyErr(line)
			return
		}

	case "reset":
		slog.Info("ascii: reset requested")
		l.reset()

	default:
		l.replyErr(line)
	}
}

func (l *Loop) replyErr(line string) {
	l.mux.EnqueueASCII("err " + line)
	slog.Warn("ascii: unrecognised line", "line", line)
}
