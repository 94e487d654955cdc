package hw

import (
	"fmt"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

// SerialPort wraps a go.bug.st/serial port behind the Port contract.
type SerialPort struct {
	port serial.Port
}

// OpenSerial opens the named serial device at the given baud rate, 8-N-1,
// with a short read timeout so Read never stalls the main loop.
func OpenSerial(name string, baud int) (*SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", name, err)
	}
	if err := p.SetReadTimeout(time.Millisecond); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial: read timeout on %s: %w", name, err)
	}
	slog.Info("serial: port opened", "device", name, "baud", baud)
	return &SerialPort{port: p}, nil
}

func (s *SerialPort) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialPort) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if n == 0 {
		// A timeout read is not an error for the caller.
		return 0, nil
	}
	return n, err
}

// Close closes the underlying serial port.
func (s *SerialPort) Close() {
	slog.Info("serial: closing port")
	_ = s.port.Close()
}
