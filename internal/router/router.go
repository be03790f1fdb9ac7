package router

import (
	"github.com/charmbracelet/log"

	"github.com/alexzirnea/zyncoder/internal/zyncoder"
)

// CVGateConfig parameterizes the CVGATE_IN affine note conversion (spec
// §9, "CV/gate affine constant"): the source hardcoded
// k_cvin*6.144/(5*256); here all three are configuration.
type CVGateConfig struct {
	KCvIn     float64
	RefHighV  float64 // e.g. 6.144
	RefLowV   float64 // e.g. 5.0
}

// DefaultCVGateConfig mirrors the original_source constants.
func DefaultCVGateConfig() CVGateConfig {
	return CVGateConfig{KCvIn: 1.0, RefHighV: 6.144, RefLowV: 5.0}
}

// noteFromRaw converts a raw ADC sample to a MIDI note number via the
// configured affine transform, clamped to the valid MIDI range.
func (c CVGateConfig) noteFromRaw(raw int32) uint8 {
	note := float64(raw) * c.KCvIn * c.RefHighV / (c.RefLowV * 256)
	if note < 0 {
		return 0
	}
	if note > 127 {
		return 127
	}
	return uint8(note)
}

// Router is the spec §4.D Event Router. It implements
// zyncoder.OutboundSink and holds the reverse reference to the Registry
// needed for inbound rehydration (midi_event_encoders).
type Router struct {
	log      *log.Logger
	registry *zyncoder.Registry

	engine MidiSink
	ui     MidiSink
	osc    OscSink
	analog AnalogSampler
	cvCfg  CVGateConfig
}

// New builds a Router bound to registry. engine and ui may be the same
// sink; ui may be nil to skip the mirrored UI emission.
func New(registry *zyncoder.Registry, engine, ui MidiSink, osc OscSink, analog AnalogSampler, cvCfg CVGateConfig, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{
		log:      logger,
		registry: registry,
		engine:   engine,
		ui:       ui,
		osc:      osc,
		analog:   analog,
		cvCfg:    cvCfg,
	}
}

// emitMidi fans a single MIDI event out to both the engine sink and the
// mirrored UI sink (spec §6), logging but not propagating any sink error.
func (r *Router) emitMidi(fn func(MidiSink) error) {
	if r.engine != nil {
		r.logSinkErr("engine", fn(r.engine))
	}
	if r.ui != nil {
		r.logSinkErr("ui", fn(r.ui))
	}
}

// EncoderChanged implements zyncoder.OutboundSink (spec §4.D, "Outbound
// from encoder"). MIDI takes precedence over OSC when both are bound
// (spec §3 invariant).
func (r *Router) EncoderChanged(snap zyncoder.EncoderSnapshot) {
	if snap.MidiCtrl > 0 {
		val := snap.Value
		if val > 127 {
			val = 127
		}
		r.emitMidi(func(s MidiSink) error {
			return s.ControlChange(snap.MidiChan, snap.MidiCtrl, uint8(val))
		})
		return
	}

	if snap.Osc.Path == "" {
		return
	}
	if r.osc == nil {
		r.log.Warn("encoder has osc binding but no osc sink configured", "index", snap.Index)
		return
	}

	if snap.IsBinary() {
		r.logSinkErr("osc bool", r.osc.SendBool(snap.Osc.Path, snap.Osc.Port, snap.Value >= 64))
		return
	}
	r.logSinkErr("osc int", r.osc.SendInt(snap.Osc.Path, snap.Osc.Port, int32(snap.Value)))
}

// SwitchEdgeEmitted implements zyncoder.OutboundSink (spec §4.D,
// "Outbound from switch").
func (r *Router) SwitchEdgeEmitted(edge zyncoder.SwitchEdge) {
	binding := edge.Snap.Midi
	idx := edge.Snap.Index

	switch binding.Type {
	case zyncoder.MidiCtrlChange:
		val := binding.Val
		if !edge.IsPress {
			val = 0
		}
		r.emitMidi(func(s MidiSink) error {
			return s.ControlChange(binding.Chan, binding.Num, val)
		})
		// Any encoder bound to the same (chan, num) must rehydrate so
		// its displayed value tracks the switch-driven CC, without
		// looping back out through the sink (spec invariant, §8).
		r.registry.RehydrateEncoders(binding.Chan, binding.Num, val)

	case zyncoder.MidiNoteOn:
		if edge.IsPress {
			r.emitMidi(func(s MidiSink) error {
				return s.NoteOn(binding.Chan, binding.Num, binding.Val)
			})
		} else {
			r.emitMidi(func(s MidiSink) error {
				return s.NoteOff(binding.Chan, binding.Num, 0)
			})
		}

	case zyncoder.MidiProgChange:
		if edge.IsPress {
			r.emitMidi(func(s MidiSink) error {
				return s.ProgramChange(binding.Chan, binding.Num)
			})
		}

	case zyncoder.MidiCVGateIn:
		r.handleCVGate(idx, binding, edge.IsPress)

	case zyncoder.MidiNone:
		// no binding, nothing to emit.
	}
}

func (r *Router) handleCVGate(idx int, binding zyncoder.SwitchMidiBinding, isPress bool) {
	if isPress {
		if r.analog == nil {
			r.log.Warn("cvgate switch pressed but no analog sampler configured", "index", idx)
			return
		}
		raw, err := r.analog.SampleRaw(int(binding.Num))
		if err != nil {
			r.logSinkErr("analog sample", err)
			return
		}
		note := r.cvCfg.noteFromRaw(raw)
		if err := r.registry.SetSwitchLastCvgateNote(idx, note); err != nil {
			r.logSinkErr("cache cvgate note", err)
			return
		}
		r.emitMidi(func(s MidiSink) error {
			return s.NoteOn(binding.Chan, note, binding.Val)
		})
		return
	}

	note, err := r.registry.GetSwitchLastCvgateNote(idx)
	if err != nil {
		r.logSinkErr("fetch cvgate note", err)
		return
	}
	r.emitMidi(func(s MidiSink) error {
		return s.NoteOff(binding.Chan, note, 0)
	})
}

// RehydrateFromMidi implements the inbound half of midi_event_encoders
// (spec §4.D): an external MIDI CC updates any matching encoder's value
// without any outbound emission. Exposed so the MIDI router's reverse
// path can drive it directly (spec §5, "concurrent inbound path").
func (r *Router) RehydrateFromMidi(chanNum, ctrl, val uint8) {
	r.registry.RehydrateEncoders(chanNum, ctrl, val)
}
