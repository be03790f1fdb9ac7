package zyncoder

import "sync"

// quadrature direction classification tables (spec §4.B). sum is
// (lastEncoded<<2)|encoded, a 4-bit word combining the previous and
// current 2-bit (A,B) pin pair.
var quadratureUp = map[uint8]bool{
	0b1101: true,
	0b0100: true,
	0b0010: true,
	0b1011: true,
}

var quadratureDown = map[uint8]bool{
	0b1110: true,
	0b0111: true,
	0b0001: true,
	0b1000: true,
}

// direction is the outcome of classifying one quadrature transition.
type direction int

const (
	dirNone direction = iota
	dirUp
	dirDown
)

// Encoder is one rotary encoder's full state (spec §3). All mutation goes
// through the mutex: transport callbacks and the inbound-MIDI rehydration
// path are concurrent writers, and get_value_encoder is a concurrent
// reader from any goroutine.
type Encoder struct {
	mu sync.Mutex

	enabled bool

	pinA, pinB int

	lastEncoded uint8

	value    uint32
	subvalue uint32
	maxValue uint32
	step     uint32

	dtus []uint64 // ring of length ticksPerRetent
	tsus uint64

	midiChan uint8
	midiCtrl uint8
	osc      OscBinding

	pinALastState, pinBLastState uint8
}

// EncoderSnapshot is a point-in-time, lock-free copy of an encoder's
// routing-relevant state, handed to the outbound sink after the mutex has
// been released so sink I/O never happens while holding the lock.
type EncoderSnapshot struct {
	Index    int
	Value    uint32
	MaxValue uint32
	Step     uint32
	MidiChan uint8
	MidiCtrl uint8
	Osc      OscBinding
}

// binaryStepThreshold is the step value (spec §3) at and above which an
// encoder is treated as a binary/toggle control rather than a counter.
const binaryStepThreshold = 8

// IsBinary reports whether this snapshot represents a binary/toggle
// encoder (step >= 8, spec §4.D).
func (s EncoderSnapshot) IsBinary() bool {
	return s.Step >= binaryStepThreshold
}

// velocityModeLocked reports whether this encoder advances by the sub-tick
// accumulator (step == 0) rather than a fixed step per tick.
func (e *Encoder) velocityModeLocked() bool {
	return e.step == 0
}

// configure applies setup_encoder (spec §6). Re-setup with identical pins
// preserves tsus/lastEncoded; changed pins reset them.
func (e *Encoder) configure(pinA, pinB int, midiChan, midiCtrl uint8, osc OscBinding, value, maxValue, step uint32, ticksPerRetent uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	samePins := e.enabled && e.pinA == pinA && e.pinB == pinB

	e.enabled = true
	e.pinA = pinA
	e.pinB = pinB
	e.midiChan = midiChan
	e.midiCtrl = midiCtrl
	e.osc = osc
	e.maxValue = maxValue
	e.step = step

	if cap(e.dtus) != int(ticksPerRetent) {
		e.dtus = make([]uint64, ticksPerRetent)
	}

	if !samePins {
		e.lastEncoded = 0
		e.tsus = 0
		for i := range e.dtus {
			e.dtus[i] = 0
		}
		e.pinALastState = 0
		e.pinBLastState = 0
	}

	if value > maxValue {
		value = maxValue
	}
	e.value = value
	e.subvalue = value * ticksPerRetent
}

func (e *Encoder) snapshotLocked(index int) EncoderSnapshot {
	return EncoderSnapshot{
		Index:    index,
		Value:    e.value,
		MaxValue: e.maxValue,
		Step:     e.step,
		MidiChan: e.midiChan,
		MidiCtrl: e.midiCtrl,
		Osc:      e.osc,
	}
}

func classify(lastEncoded, encoded uint8) direction {
	sum := (lastEncoded << 2) | encoded
	if quadratureUp[sum] {
		return dirUp
	}
	if quadratureDown[sum] {
		return dirDown
	}
	return dirNone
}

// applyPins handles one (A,B) pin-level observation from the native-GPIO
// or port-expander transports (spec §4.B). Returns whether value changed
// and a snapshot valid only when it did.
func (e *Encoder) applyPins(a, b uint8, nowUs uint64, ticksPerRetent uint32) (changed bool, snap EncoderSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return false, EncoderSnapshot{}
	}

	encoded := (a << 1) | b
	dir := classify(e.lastEncoded, encoded)
	e.lastEncoded = encoded

	if dir == dirNone {
		return false, EncoderSnapshot{}
	}

	return e.acceptTickLocked(dir, nowUs, ticksPerRetent)
}

// applyDirection handles a pre-decoded up/down tick from the UART
// transport, which delivers direction bits directly instead of raw pin
// levels (spec §4.B).
func (e *Encoder) applyDirection(up bool, nowUs uint64, ticksPerRetent uint32) (changed bool, snap EncoderSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return false, EncoderSnapshot{}
	}

	dir := dirDown
	if up {
		dir = dirUp
	}
	return e.acceptTickLocked(dir, nowUs, ticksPerRetent)
}

// acceptTickLocked performs debounce, then value advancement, under the
// caller's held lock.
func (e *Encoder) acceptTickLocked(dir direction, nowUs uint64, ticksPerRetent uint32) (bool, EncoderSnapshot) {
	dtus := nowUs - e.tsus
	if e.tsus != 0 && dtus < 1000 {
		// SpuriousEdge (spec §7): discard, do not touch tsus/lastEncoded timing.
		return false, EncoderSnapshot{}
	}

	before := e.value

	if e.velocityModeLocked() {
		e.advanceVelocityLocked(dir, dtus, ticksPerRetent)
	} else {
		e.advanceFixedStepLocked(dir)
	}

	e.tsus = nowUs

	if e.value == before {
		return false, EncoderSnapshot{}
	}
	return true, e.snapshotLocked(0)
}

// advanceVelocityLocked implements the step==0 sub-tick accumulator (spec
// §4.B), including the original_source correction that the cadence
// average spans TicksPerRetent+1 samples (current dtus plus the ring).
func (e *Encoder) advanceVelocityLocked(dir direction, dtus uint64, ticksPerRetent uint32) {
	sum := dtus
	for _, v := range e.dtus {
		sum += v
	}
	dtusAvg := sum / uint64(ticksPerRetent+1)
	if dtusAvg == 0 {
		dtusAvg = 1
	}

	dsval := 10000 * uint64(ticksPerRetent) / dtusAvg
	dsval = clampU64(dsval, 1, 2*uint64(ticksPerRetent))

	maxSub := e.maxValue * ticksPerRetent

	switch dir {
	case dirUp:
		e.subvalue = uint32(clampU64(uint64(e.subvalue)+dsval, 0, uint64(maxSub)))
		e.value = e.subvalue / ticksPerRetent
	case dirDown:
		if uint64(e.subvalue) >= dsval {
			e.subvalue -= uint32(dsval)
		} else {
			e.subvalue = 0
		}
		e.value = ceilDiv(e.subvalue, ticksPerRetent)
	}

	// shift ring: drop oldest, append current dtus
	copy(e.dtus, e.dtus[1:])
	e.dtus[len(e.dtus)-1] = dtus
}

// advanceFixedStepLocked implements step>0 mode: saturate first, then
// advance by step (spec §4.B).
func (e *Encoder) advanceFixedStepLocked(dir direction) {
	if e.value > e.maxValue {
		e.value = e.maxValue
	}
	switch dir {
	case dirUp:
		if e.maxValue-e.value >= e.step {
			e.value += e.step
		} else {
			e.value = e.maxValue
		}
	case dirDown:
		if e.value >= e.step {
			e.value -= e.step
		} else {
			e.value = 0
		}
	}
}

// setValue implements set_value_encoder (spec §6): programmatic set,
// scaling by ticksPerRetent in velocity mode. Returns a snapshot and
// whether the value changed, for the caller to decide whether to emit.
func (e *Encoder) setValue(v uint32, ticksPerRetent uint32) (changed bool, snap EncoderSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return false, EncoderSnapshot{}
	}

	before := e.value
	if e.velocityModeLocked() {
		sub := v * ticksPerRetent
		maxSub := e.maxValue * ticksPerRetent
		if sub > maxSub {
			sub = maxSub
		}
		e.subvalue = sub
		e.value = e.subvalue / ticksPerRetent
	} else {
		if v > e.maxValue {
			v = e.maxValue
		}
		e.value = v
	}

	if e.value == before {
		return false, e.snapshotLocked(0)
	}
	return true, e.snapshotLocked(0)
}

// rehydrateFromMidi implements the per-encoder half of midi_event_encoders
// (spec §4.D): sets value/subvalue from an inbound CC without ever
// reporting a change to the caller, so the outbound sink is never invoked
// and no feedback loop can form.
func (e *Encoder) rehydrateFromMidi(val uint8, ticksPerRetent uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return
	}
	v := uint32(val)
	if v > e.maxValue {
		v = e.maxValue
	}
	e.value = v
	e.subvalue = v * ticksPerRetent
}

func (e *Encoder) matchesMidi(midiChan, midiCtrl uint8) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled && e.midiChan == midiChan && e.midiCtrl == midiCtrl && e.midiCtrl > 0
}

func (e *Encoder) getValue() (uint32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.enabled
}

func (e *Encoder) snapshot() (EncoderSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(0), e.enabled
}

func clampU64(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
