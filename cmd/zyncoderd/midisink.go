package main

// logMidiSink is a stand-in for the external MIDI router (spec §1:
// internal_send_* and write_zynmidi_* are out of scope, "referenced only
// by their interface to the core"). It logs every call instead of
// driving real hardware, so this binary demonstrates the full dispatch
// path without depending on an actual MIDI backend.

import "github.com/charmbracelet/log"

type logMidiSink struct {
	log  *log.Logger
	name string
}

func newLogMidiSink(logger *log.Logger, name string) *logMidiSink {
	return &logMidiSink{log: logger, name: name}
}

func (s *logMidiSink) ControlChange(chanNum, ctrl, val uint8) error {
	s.log.Info("midi cc", "sink", s.name, "chan", chanNum, "ctrl", ctrl, "val", val)
	return nil
}

func (s *logMidiSink) NoteOn(chanNum, note, vel uint8) error {
	s.log.Info("midi note_on", "sink", s.name, "chan", chanNum, "note", note, "vel", vel)
	return nil
}

func (s *logMidiSink) NoteOff(chanNum, note, vel uint8) error {
	s.log.Info("midi note_off", "sink", s.name, "chan", chanNum, "note", note, "vel", vel)
	return nil
}

func (s *logMidiSink) ProgramChange(chanNum, program uint8) error {
	s.log.Info("midi program_change", "sink", s.name, "chan", chanNum, "program", program)
	return nil
}
