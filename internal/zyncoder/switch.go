package zyncoder

import "sync"

// Switch is one pushbutton's full state (spec §3). Press/release polarity
// is per-switch configuration (spec §9, "UART switch polarity" open
// question) rather than hardcoded, since native GPIO with a pull-up and
// the inverted UART wire format disagree on which level means "pressed".
type Switch struct {
	mu sync.Mutex

	enabled bool
	pin     int

	// pressLevel is the level observed on a press edge. 0 for GPIO/pull-up
	// wiring, 1 for the UART transport's inverted convention.
	pressLevel uint8

	status uint8
	tsus   uint64
	dtus   uint64

	midi           SwitchMidiBinding
	lastCvgateNote uint8
}

// SwitchSnapshot is a point-in-time, lock-free copy of a switch's
// routing-relevant state, handed to the outbound sink after the mutex has
// been released.
type SwitchSnapshot struct {
	Index  int
	Status uint8
	Midi   SwitchMidiBinding
}

// SwitchEdge describes one observed level transition, handed to the
// router so it can decide which MIDI message (if any) to emit.
type SwitchEdge struct {
	Snap    SwitchSnapshot
	IsPress bool
}

func (s *Switch) configure(pin int, pressLevel uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = true
	s.pin = pin
	s.pressLevel = pressLevel
	s.status = 1 - pressLevel // idle level by convention
	s.tsus = 0
	s.dtus = 0
}

func (s *Switch) setMidi(binding SwitchMidiBinding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.midi = binding
}

func (s *Switch) snapshotLocked(index int) SwitchSnapshot {
	return SwitchSnapshot{Index: index, Status: s.status, Midi: s.midi}
}

// applyLevel implements update_switch (spec §4.C). It returns the edge
// description whenever the router must act (non-idempotent transition),
// and whether to act at all.
func (s *Switch) applyLevel(level uint8, nowUs uint64) (ok bool, edge SwitchEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return false, SwitchEdge{}
	}
	if level == s.status {
		// idempotence: identical observation is dropped (spec §4.C.1)
		return false, SwitchEdge{}
	}

	s.status = level
	isPress := level == s.pressLevel

	if isPress {
		s.tsus = nowUs
	} else if s.tsus > 0 {
		dtus := nowUs - s.tsus
		if dtus < 1000 {
			// SpuriousEdge: release too soon after press; drop the
			// duration report but the level transition itself still
			// happened and still emits (spec §4.C step 2 happens
			// unconditionally on every observed transition).
			s.tsus = 0
		} else {
			s.dtus = dtus
			s.tsus = 0
		}
	}

	return true, SwitchEdge{Snap: s.snapshotLocked(0), IsPress: isPress}
}

// getDtus implements get_switch_dtus (spec §4.C). It returns 0 when there
// is no completed or long-running press to report.
func (s *Switch) getDtus(longDtus uint64, nowUs uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dtus > 0 {
		d := s.dtus
		s.dtus = 0
		return d
	}
	if s.tsus > 0 {
		elapsed := nowUs - s.tsus
		if elapsed > longDtus {
			s.tsus = 0
			return elapsed
		}
	}
	return 0
}

func (s *Switch) setLastCvgateNote(note uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCvgateNote = note
}

func (s *Switch) getLastCvgateNote() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCvgateNote
}

func (s *Switch) snapshot() (SwitchSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(0), s.enabled
}
