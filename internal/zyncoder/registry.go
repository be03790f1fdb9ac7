// Package zyncoder implements the encoder/switch event core: quadrature
// decoding, velocity-sensitive accumulation, debouncing and the
// fixed-capacity device registry that the transport and router packages
// drive (spec §3, §4.B, §4.C).
package zyncoder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// Default capacities and cadence divisor (spec §6). These are the
// init-time constants a Registry is built with when Config leaves the
// corresponding field zero.
const (
	DefaultMaxNumEncoders  = 8
	DefaultMaxNumSwitches  = 8
	DefaultTicksPerRetent  = 4
)

// OutboundSink receives Registry-side state changes for emission
// (component D, spec §4.D). Implemented by internal/router.Router. The
// Registry never holds a per-record lock while calling into it.
type OutboundSink interface {
	EncoderChanged(snap EncoderSnapshot)
	SwitchEdgeEmitted(edge SwitchEdge)
}

// noopSink discards everything; used until a real sink is wired so
// transports can be started before the router exists.
type noopSink struct{}

func (noopSink) EncoderChanged(EncoderSnapshot) {}
func (noopSink) SwitchEdgeEmitted(SwitchEdge)   {}

// Config configures a new Registry. Zero values fall back to the spec's
// defaults (design notes §9: "model this as a single owning registry
// object with capacity N").
type Config struct {
	NumEncoders    int
	NumSwitches    int
	TicksPerRetent uint32
	Clock          Clock
	Logger         *log.Logger
}

// Registry owns the fixed-capacity encoder and switch arrays and is the
// sole object transports and the router share (spec §5, "shared state").
type Registry struct {
	log            *log.Logger
	clock          Clock
	ticksPerRetent uint32

	encoders []Encoder
	switches []Switch

	sink OutboundSink
}

// NewRegistry constructs a Registry with the given capacity. All entries
// start disabled; setup_* calls populate them in place (spec §3,
// "entries are never freed; re-setup overwrites in place").
func NewRegistry(cfg Config) *Registry {
	numEnc := cfg.NumEncoders
	if numEnc <= 0 {
		numEnc = DefaultMaxNumEncoders
	}
	numSw := cfg.NumSwitches
	if numSw <= 0 {
		numSw = DefaultMaxNumSwitches
	}
	ticks := cfg.TicksPerRetent
	if ticks == 0 {
		ticks = DefaultTicksPerRetent
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Registry{
		log:            logger,
		clock:          clock,
		ticksPerRetent: ticks,
		encoders:       make([]Encoder, numEnc),
		switches:       make([]Switch, numSw),
		sink:           noopSink{},
	}
}

// SetSink wires the outbound sink (router) after construction, breaking
// the Registry<->Router construction cycle.
func (r *Registry) SetSink(sink OutboundSink) {
	if sink == nil {
		sink = noopSink{}
	}
	r.sink = sink
}

// TicksPerRetent returns the configured cadence divisor.
func (r *Registry) TicksPerRetent() uint32 { return r.ticksPerRetent }

// NumEncoders returns the encoder array capacity.
func (r *Registry) NumEncoders() int { return len(r.encoders) }

// NumSwitches returns the switch array capacity.
func (r *Registry) NumSwitches() int { return len(r.switches) }

func (r *Registry) boundsCheckEncoder(i int) error {
	if i < 0 || i >= len(r.encoders) {
		r.log.Warn("encoder index out of bounds", "index", i, "capacity", len(r.encoders))
		return ErrOutOfBounds
	}
	return nil
}

func (r *Registry) boundsCheckSwitch(i int) error {
	if i < 0 || i >= len(r.switches) {
		r.log.Warn("switch index out of bounds", "index", i, "capacity", len(r.switches))
		return ErrOutOfBounds
	}
	return nil
}

// ParseOscBinding parses the "<port>:<slash-path>" syntax of spec §6. An
// empty string disables OSC binding.
func ParseOscBinding(spec string) (OscBinding, error) {
	if spec == "" {
		return OscBinding{}, nil
	}
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return OscBinding{}, fmt.Errorf("zyncoder: malformed osc binding %q, want <port>:<path>", spec)
	}
	port, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return OscBinding{}, fmt.Errorf("zyncoder: malformed osc port in %q: %w", spec, err)
	}
	return OscBinding{Port: uint16(port), Path: parts[1]}, nil
}

// SetupEncoder implements setup_encoder (spec §6). oscSpec follows
// ParseOscBinding's syntax.
func (r *Registry) SetupEncoder(i int, pinA, pinB int, midiChan, midiCtrl uint8, oscSpec string, value, maxValue, step uint32) error {
	if err := r.boundsCheckEncoder(i); err != nil {
		return err
	}
	osc, err := ParseOscBinding(oscSpec)
	if err != nil {
		r.log.Warn("setup_encoder rejected osc binding", "index", i, "err", err)
		return err
	}
	r.encoders[i].configure(pinA, pinB, midiChan, midiCtrl, osc, value, maxValue, step, r.ticksPerRetent)
	r.log.Debug("encoder configured", "index", i, "pin_a", pinA, "pin_b", pinB, "max_value", maxValue, "step", step)
	return nil
}

// SetupSwitch implements setup_switch (spec §6). pin==0 disables hardware
// binding (virtual switch) without preventing the switch from being
// driven directly via UpdateSwitchLevel, e.g. from a UI.
// pressLevel selects which observed level represents a press (spec §9).
func (r *Registry) SetupSwitch(i int, pin int, pressLevel uint8) error {
	if err := r.boundsCheckSwitch(i); err != nil {
		return err
	}
	r.switches[i].configure(pin, pressLevel)
	r.log.Debug("switch configured", "index", i, "pin", pin, "press_level", pressLevel)
	return nil
}

// SetupSwitchMidi implements setup_switch_midi (spec §6).
func (r *Registry) SetupSwitchMidi(i int, binding SwitchMidiBinding) error {
	if err := r.boundsCheckSwitch(i); err != nil {
		return err
	}
	r.switches[i].setMidi(binding)
	return nil
}

// GetValueEncoder implements get_value_encoder (spec §6). Safe to call
// from any goroutine.
func (r *Registry) GetValueEncoder(i int) (uint32, error) {
	if err := r.boundsCheckEncoder(i); err != nil {
		return 0, err
	}
	v, enabled := r.encoders[i].getValue()
	if !enabled {
		return 0, ErrDisabled
	}
	return v, nil
}

// SetValueEncoder implements set_value_encoder (spec §6): programmatic
// set, optionally emitting like a real tick would.
func (r *Registry) SetValueEncoder(i int, v uint32, send bool) error {
	if err := r.boundsCheckEncoder(i); err != nil {
		return err
	}
	changed, snap := r.encoders[i].setValue(v, r.ticksPerRetent)
	if send && changed {
		snap.Index = i
		r.sink.EncoderChanged(snap)
	}
	return nil
}

// GetSwitch implements get_switch/get_switch_dtus (spec §6).
func (r *Registry) GetSwitch(i int, longDtus uint64) (uint64, error) {
	if err := r.boundsCheckSwitch(i); err != nil {
		return 0, err
	}
	return r.switches[i].getDtus(longDtus, r.clock.NowMicros()), nil
}

// UpdateEncoderPins implements update_encoder for the native-GPIO and
// port-expander transports, which deliver raw (A,B) pin levels (spec
// §4.A.1, §4.A.2).
func (r *Registry) UpdateEncoderPins(i int, a, b uint8) error {
	if err := r.boundsCheckEncoder(i); err != nil {
		return err
	}
	changed, snap := r.encoders[i].applyPins(a, b, r.clock.NowMicros(), r.ticksPerRetent)
	if changed {
		snap.Index = i
		r.sink.EncoderChanged(snap)
	}
	return nil
}

// UpdateEncoderDirection implements update_encoder for the UART
// transport, which delivers pre-decoded direction bits (spec §4.A.3).
func (r *Registry) UpdateEncoderDirection(i int, up bool) error {
	if err := r.boundsCheckEncoder(i); err != nil {
		return err
	}
	changed, snap := r.encoders[i].applyDirection(up, r.clock.NowMicros(), r.ticksPerRetent)
	if changed {
		snap.Index = i
		r.sink.EncoderChanged(snap)
	}
	return nil
}

// UpdateSwitchLevel implements update_switch/update_switches (spec
// §4.C), shared by all three transports.
func (r *Registry) UpdateSwitchLevel(i int, level uint8) error {
	if err := r.boundsCheckSwitch(i); err != nil {
		return err
	}
	ok, edge := r.switches[i].applyLevel(level, r.clock.NowMicros())
	if ok {
		edge.Snap.Index = i
		r.sink.SwitchEdgeEmitted(edge)
	}
	return nil
}

// SetSwitchLastCvgateNote caches the note number a CVGATE_IN press
// emitted, so the matching release can target the same pitch (spec §3).
func (r *Registry) SetSwitchLastCvgateNote(i int, note uint8) error {
	if err := r.boundsCheckSwitch(i); err != nil {
		return err
	}
	r.switches[i].setLastCvgateNote(note)
	return nil
}

// GetSwitchLastCvgateNote returns the cached CVGATE_IN note number.
func (r *Registry) GetSwitchLastCvgateNote(i int) (uint8, error) {
	if err := r.boundsCheckSwitch(i); err != nil {
		return 0, err
	}
	return r.switches[i].getLastCvgateNote(), nil
}

// RehydrateEncoders implements midi_event_encoders (spec §4.D): scans
// every enabled encoder bound to (midiChan, midiCtrl) and sets its value
// without ever calling the outbound sink, so inbound MIDI can never
// trigger outbound MIDI (spec invariant, §8).
func (r *Registry) RehydrateEncoders(midiChan, midiCtrl, val uint8) {
	for i := range r.encoders {
		if r.encoders[i].matchesMidi(midiChan, midiCtrl) {
			r.encoders[i].rehydrateFromMidi(val, r.ticksPerRetent)
		}
	}
}

// EncoderPinInfo describes one encoder's transport-facing binding, used
// by transports to route raw pin observations to the right index.
type EncoderPinInfo struct {
	Index         int
	PinA, PinB    int
	Enabled       bool
	LastPinA      uint8
	LastPinB      uint8
}

// EncoderPins returns a snapshot of every encoder's pin binding, for the
// port-expander transport to find which encoders live in a given bank
// (spec §4.A.2).
func (r *Registry) EncoderPins() []EncoderPinInfo {
	out := make([]EncoderPinInfo, 0, len(r.encoders))
	for i := range r.encoders {
		e := &r.encoders[i]
		e.mu.Lock()
		out = append(out, EncoderPinInfo{
			Index: i, PinA: e.pinA, PinB: e.pinB, Enabled: e.enabled,
			LastPinA: e.pinALastState, LastPinB: e.pinBLastState,
		})
		e.mu.Unlock()
	}
	return out
}

// SetEncoderLastPinState records the port-expander transport's last
// observed individual pin levels (spec §3, pin_a_last_state/pin_b_last_state).
func (r *Registry) SetEncoderLastPinState(i int, a, b uint8) error {
	if err := r.boundsCheckEncoder(i); err != nil {
		return err
	}
	e := &r.encoders[i]
	e.mu.Lock()
	e.pinALastState = a
	e.pinBLastState = b
	e.mu.Unlock()
	return nil
}

// SwitchPinInfo describes one switch's transport-facing binding.
type SwitchPinInfo struct {
	Index   int
	Pin     int
	Enabled bool
	Status  uint8
}

// SwitchPins returns a snapshot of every switch's pin binding, for
// transports to find which switches live in a given bank/byte.
func (r *Registry) SwitchPins() []SwitchPinInfo {
	out := make([]SwitchPinInfo, 0, len(r.switches))
	for i := range r.switches {
		s := &r.switches[i]
		s.mu.Lock()
		out = append(out, SwitchPinInfo{Index: i, Pin: s.pin, Enabled: s.enabled, Status: s.status})
		s.mu.Unlock()
	}
	return out
}
