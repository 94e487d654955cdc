// Package hw holds the hardware contracts the translation engine runs
// against: the analog sampler over the multiplexer tree, the encoder delta
// queue, the presence pin and the serial port. A fully simulated rig lives
// in sim.go so the engine can be driven without a board attached.
package hw

// Keybed geometry. The keybed has two pressure points per key: point A
// breaks first at the key's rest position, point B at bottom-out.
const (
	NumKeys = 25
	NumPots = 14
)

// Bank selects which of a key's two pressure points is sampled.
type Bank int

const (
	BankA Bank = iota // rest-break sensor
	BankB             // bottom-out sensor
)

// Mux identifies one multiplexer in the analog tree.
type Mux int

const (
	MuxKeysA    Mux = iota // key pressure point A, channels 0..24
	MuxKeysB               // key pressure point B, channels 0..24
	MuxControls            // panel pots, channels 0..13
)

// Input is a logical analog input descriptor: a multiplexer and a channel
// within it.
type Input struct {
	Mux     Mux
	Channel int
}

// KeyInput returns the descriptor for one pressure point of one key.
func KeyInput(key int, bank Bank) Input {
	m := MuxKeysA
	if bank == BankB {
		m = MuxKeysB
	}
	return Input{Mux: m, Channel: key}
}

// PotInput returns the descriptor for a panel pot.
func PotInput(pot int) Input {
	return Input{Mux: MuxControls, Channel: pot}
}

// Sampler returns the latest ADC reading for a logical input. Reads are
// synchronous; implementations own any select-line settling delay.
type Sampler interface {
	Read(in Input) uint16
}

// ADC is the converter driver contract: select a multiplexer channel and
// read it. The driver is responsible for the ~10us settle between select
// and read.
type ADC interface {
	ReadChannel(mux, channel int) uint16
}

// MuxSampler maps logical input descriptors onto the physical ADC/mux
// driver.
type MuxSampler struct {
	adc ADC
}

func NewMuxSampler(adc ADC) *MuxSampler {
	return &MuxSampler{adc: adc}
}

func (s *MuxSampler) Read(in Input) uint16 {
	return s.adc.ReadChannel(int(in.Mux), in.Channel)
}

// PresencePin signals to the host that the controller is powered and
// ready. Assert holds the line low; Release lets it float during reset.
type PresencePin interface {
	Assert()
	Release()
}

// Port is the non-blocking UART contract shared by MIDI and ASCII
// traffic. Write may accept fewer bytes than offered when the TX buffer
// is full; Read returns (0, nil) when nothing is pending.
type Port interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
}
