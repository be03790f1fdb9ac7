// Package router implements the Event Router (spec §4.D): outbound
// dispatch from encoder/switch state changes to MIDI or OSC sinks, and
// the inbound path that lets MIDI CC rehydrate encoder state.
package router

// MidiSink is the external MIDI router's interface to the core (spec §6:
// internal_send_ccontrol_change, internal_send_note_on/off,
// internal_send_program_change, and their mirrored write_zynmidi_* UI
// counterparts — both shapes satisfy this same interface). It is
// explicitly out of scope for this module: the core only ever calls
// through it.
type MidiSink interface {
	ControlChange(chanNum, ctrl, val uint8) error
	NoteOn(chanNum, note, vel uint8) error
	NoteOff(chanNum, note, vel uint8) error
	ProgramChange(chanNum, program uint8) error
}

// OscSink is the external OSC transport's interface to the core (spec
// §1: "the OSC transport library" is out of scope). Port is carried per
// call since each encoder may bind a different UDP port.
type OscSink interface {
	SendBool(path string, port uint16, v bool) error
	SendInt(path string, port uint16, v int32) error
}

// AnalogSampler is the external CV/gate analog extension's interface to
// the core (spec §1, "the optional CV/gate analog extension" is out of
// scope). It returns a raw ADC reading for a CVGATE_IN switch's press.
type AnalogSampler interface {
	SampleRaw(channel int) (int32, error)
}

// logSinkErr logs a sink error, which is never propagated (spec §7, SinkEmission: "errors
// from sinks are not propagated (telemetry at most)").
func (r *Router) logSinkErr(op string, err error) {
	if err != nil {
		r.log.Warn("sink emission failed", "op", op, "err", err)
	}
}
