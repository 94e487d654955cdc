package hw

import (
	"bytes"
	"sync"
)

// SimRig is a fully simulated sensor rig: keybed, pots, encoder and
// presence pin. It backs the run and simulate commands and the firmware
// loop tests.
type SimRig struct {
	mu      sync.Mutex
	keys    [NumKeys][2]uint16
	pots    [NumPots]uint16
	ready   bool
	Encoder *DeltaQueue
}

func NewSimRig() *SimRig {
	return &SimRig{Encoder: NewDeltaQueue(32)}
}

// Read implements Sampler.
func (r *SimRig) Read(in Input) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch in.Mux {
	case MuxKeysA:
		return r.keys[in.Channel][0]
	case MuxKeysB:
		return r.keys[in.Channel][1]
	case MuxControls:
		return r.pots[in.Channel]
	}
	return 0
}

// SetKey sets both pressure points of a key.
func (r *SimRig) SetKey(key int, a, b uint16) {
	r.mu.Lock()
	r.keys[key][0] = a
	r.keys[key][1] = b
	r.mu.Unlock()
}

// SetPot sets a pot's raw reading.
func (r *SimRig) SetPot(pot int, raw uint16) {
	r.mu.Lock()
	r.pots[pot] = raw
	r.mu.Unlock()
}

// Pot returns a pot's current raw reading.
func (r *SimRig) Pot(pot int) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pots[pot]
}

// Turn deposits encoder detents.
func (r *SimRig) Turn(detents int) {
	step := 1
	if detents < 0 {
		step = -1
		detents = -detents
	}
	for i := 0; i < detents; i++ {
		r.Encoder.Push(step)
	}
}

// Assert implements PresencePin.
func (r *SimRig) Assert() {
	r.mu.Lock()
	r.ready = true
	r.mu.Unlock()
}

// Release implements PresencePin.
func (r *SimRig) Release() {
	r.mu.Lock()
	r.ready = false
	r.mu.Unlock()
}

// Ready reports the presence pin state.
func (r *SimRig) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// SimPort is an in-memory UART with a bounded TX window, used to exercise
// transport backpressure deterministically.
type SimPort struct {
	mu sync.Mutex
	tx bytes.Buffer
	rx bytes.Buffer

	// txBudget limits how many bytes Write accepts before SetTxBudget or
	// ResetTxBudget opens a new window; <0 means unlimited.
	txBudget int
	txUsed   int
}

func NewSimPort() *SimPort {
	return &SimPort{txBudget: -1}
}

// SetTxBudget bounds the bytes accepted per budget window; -1 removes the
// bound. ResetTxBudget opens the next window.
func (p *SimPort) SetTxBudget(n int) {
	p.mu.Lock()
	p.txBudget = n
	p.txUsed = 0
	p.mu.Unlock()
}

func (p *SimPort) ResetTxBudget() {
	p.mu.Lock()
	p.txUsed = 0
	p.mu.Unlock()
}

func (p *SimPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(b)
	if p.txBudget >= 0 {
		free := p.txBudget - p.txUsed
		if free <= 0 {
			return 0, nil
		}
		if n > free {
			n = free
		}
	}
	p.txUsed += n
	p.tx.Write(b[:n])
	return n, nil
}

func (p *SimPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rx.Len() == 0 {
		return 0, nil
	}
	return p.rx.Read(b)
}

// Feed queues inbound bytes as if the host had sent them.
func (p *SimPort) Feed(b []byte) {
	p.mu.Lock()
	p.rx.Write(b)
	p.mu.Unlock()
}

// TakeTx drains and returns everything written so far.
func (p *SimPort) TakeTx() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]byte(nil), p.tx.Bytes()...)
	p.tx.Reset()
	return out
}
