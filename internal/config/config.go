// Package config loads a declarative YAML description of the encoder and
// switch bank and applies it to a zyncoder.Registry, replacing hand-
// chained setup_* calls for the common fixed-hardware-layout case
// (SPEC_FULL.md, "Configuration").
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alexzirnea/zyncoder/internal/zyncoder"
)

// EncoderSpec is one YAML entry under `encoders:`.
type EncoderSpec struct {
	Index    int    `yaml:"index"`
	PinA     int    `yaml:"pin_a"`
	PinB     int    `yaml:"pin_b"`
	MidiChan uint8  `yaml:"midi_chan"`
	MidiCtrl uint8  `yaml:"midi_ctrl"`
	Osc      string `yaml:"osc"`
	Value    uint32 `yaml:"value"`
	MaxValue uint32 `yaml:"max_value"`
	Step     uint32 `yaml:"step"`
}

// SwitchMidiSpec is the `midi:` block of a switch entry.
type SwitchMidiSpec struct {
	Type string `yaml:"type"` // none|ctrl_change|note_on|prog_change|cvgate_in
	Chan uint8  `yaml:"chan"`
	Num  uint8  `yaml:"num"`
	Val  uint8  `yaml:"val"`
}

// SwitchSpec is one YAML entry under `switches:`.
type SwitchSpec struct {
	Index      int             `yaml:"index"`
	Pin        int             `yaml:"pin"`
	PressLevel uint8           `yaml:"press_level"`
	Midi       *SwitchMidiSpec `yaml:"midi"`
}

// File is the top-level YAML document shape.
type File struct {
	TicksPerRetent uint32        `yaml:"ticks_per_retent"`
	Encoders       []EncoderSpec `yaml:"encoders"`
	Switches       []SwitchSpec  `yaml:"switches"`
}

// Load parses a YAML config file from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("zyncoder: reading config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("zyncoder: parsing config %s: %w", path, err)
	}
	return &f, nil
}

var midiEventNames = map[string]zyncoder.MidiEventType{
	"none":        zyncoder.MidiNone,
	"ctrl_change": zyncoder.MidiCtrlChange,
	"note_on":     zyncoder.MidiNoteOn,
	"prog_change": zyncoder.MidiProgChange,
	"cvgate_in":   zyncoder.MidiCVGateIn,
}

// ParseMidiEventType maps a YAML midi.type string to MidiEventType.
func ParseMidiEventType(name string) (zyncoder.MidiEventType, error) {
	t, ok := midiEventNames[name]
	if !ok {
		return zyncoder.MidiNone, fmt.Errorf("zyncoder: unknown midi event type %q", name)
	}
	return t, nil
}

// Apply configures registry from the file's encoders and switches. The
// first error encountered is returned after applying as many entries as
// possible, so a single bad index doesn't block the rest of the layout.
func (f *File) Apply(registry *zyncoder.Registry) error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, e := range f.Encoders {
		note(registry.SetupEncoder(e.Index, e.PinA, e.PinB, e.MidiChan, e.MidiCtrl, e.Osc, e.Value, e.MaxValue, e.Step))
	}

	for _, s := range f.Switches {
		note(registry.SetupSwitch(s.Index, s.Pin, s.PressLevel))
		if s.Midi != nil {
			t, err := ParseMidiEventType(s.Midi.Type)
			if err != nil {
				note(err)
				continue
			}
			note(registry.SetupSwitchMidi(s.Index, zyncoder.SwitchMidiBinding{
				Type: t, Chan: s.Midi.Chan, Num: s.Midi.Num, Val: s.Midi.Val,
			}))
		}
	}

	return firstErr
}
