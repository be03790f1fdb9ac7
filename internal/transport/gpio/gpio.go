// Package gpio implements the native-GPIO transport variant (spec
// §4.A.1): per-pin edge interrupts for encoder A/B pins and
// natively-wired switch pins, via github.com/warthog618/go-gpiocdev.
//
// Design notes §9 warns against the source's eight hand-declared
// trampoline functions needed to satisfy a nullary-callback GPIO API.
// go-gpiocdev's WithEventHandler takes a closure, so a single handler
// keyed by an offset->owner map replaces all eight trampolines per kind.
package gpio

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/warthog618/go-gpiocdev"

	"github.com/alexzirnea/zyncoder/internal/transport"
)

// LevelReader is a secondary pin source for switches whose pin lives on
// hardware that cannot raise a native per-pin interrupt (spec §4.A.1:
// "switches whose pins live on the port-expander rather than native
// GPIO"). It is polled at PollInterval instead.
type LevelReader interface {
	ReadLevel(pin int) (uint8, error)
}

type ownerKind int

const (
	ownerEncoderA ownerKind = iota
	ownerEncoderB
	ownerSwitch
)

type owner struct {
	kind  ownerKind
	index int
}

// EncoderPin binds both phases of one encoder to native GPIO offsets.
type EncoderPin struct {
	Index int
	PinA  int
	PinB  int
}

// SwitchPin binds one switch to either a native GPIO offset (Native
// true) or a pin polled through an external LevelReader (Native false).
type SwitchPin struct {
	Index  int
	Pin    int
	Native bool
}

// Config configures the native-GPIO transport.
type Config struct {
	ChipName     string
	Encoders     []EncoderPin
	Switches     []SwitchPin
	PollInterval time.Duration // default 10ms, spec §4.A.1
	PullUp       bool
	ExpanderRead LevelReader // required iff any SwitchPin has Native==false
	Logger       *log.Logger
}

// Transport is the native-GPIO variant.
type Transport struct {
	cfg        Config
	log        *log.Logger
	dispatcher transport.Dispatcher

	lines    *gpiocdev.Lines
	offsetOf map[int]owner
	states   map[int]*encoderPinState

	pollPins []SwitchPin
	stopPoll context.CancelFunc
	pollDone chan struct{}
}

// New builds the native-GPIO transport. Call Start to request lines and
// begin dispatching.
func New(cfg Config, dispatcher transport.Dispatcher) *Transport {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Transport{cfg: cfg, log: logger, dispatcher: dispatcher}
}

// Start requests every configured line with both-edges interrupts and
// begins the 10ms poller for any expander-backed switch pins (spec
// §4.A.1).
func (t *Transport) Start(ctx context.Context) error {
	offsets := make([]int, 0, len(t.cfg.Encoders)*2+len(t.cfg.Switches))
	t.offsetOf = make(map[int]owner)

	for _, e := range t.cfg.Encoders {
		offsets = append(offsets, e.PinA, e.PinB)
		t.offsetOf[e.PinA] = owner{kind: ownerEncoderA, index: e.Index}
		t.offsetOf[e.PinB] = owner{kind: ownerEncoderB, index: e.Index}
	}
	for _, s := range t.cfg.Switches {
		if s.Native {
			offsets = append(offsets, s.Pin)
			t.offsetOf[s.Pin] = owner{kind: ownerSwitch, index: s.Index}
		} else {
			t.pollPins = append(t.pollPins, s)
		}
	}

	if len(t.pollPins) > 0 && t.cfg.ExpanderRead == nil {
		return fmt.Errorf("zyncoder: gpio transport has expander-backed switch pins but no ExpanderRead configured")
	}

	opts := []gpiocdev.ReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(t.handleEvent),
	}
	if t.cfg.PullUp {
		opts = append(opts, gpiocdev.WithPullUp)
	}

	if len(offsets) > 0 {
		lines, err := gpiocdev.RequestLines(t.cfg.ChipName, offsets, opts...)
		if err != nil {
			return fmt.Errorf("zyncoder: requesting gpio lines on %s: %w", t.cfg.ChipName, err)
		}
		t.lines = lines

		// An edge handler only fires on change; read the initial level of
		// each requested line once so state starts consistent.
		vals := make([]int, len(offsets))
		if err := lines.Values(vals); err == nil {
			for i, off := range offsets {
				t.dispatchLevel(off, uint8(vals[i]))
			}
		}
	}

	if len(t.pollPins) > 0 {
		pollCtx, cancel := context.WithCancel(ctx)
		t.stopPoll = cancel
		t.pollDone = make(chan struct{})
		go t.pollLoop(pollCtx)
	}

	return nil
}

// handleEvent is the single closure replacing the source's per-index
// trampolines; it looks the firing offset up in offsetOf to find which
// encoder phase or switch it belongs to.
func (t *Transport) handleEvent(evt gpiocdev.LineEvent) {
	level := uint8(0)
	if evt.Type == gpiocdev.LineEventRisingEdge {
		level = 1
	}
	t.dispatchLevel(evt.Offset, level)
}

func (t *Transport) dispatchLevel(offset int, level uint8) {
	own, ok := t.offsetOf[offset]
	if !ok {
		return
	}
	switch own.kind {
	case ownerEncoderA:
		t.dispatchEncoderPin(own.index, true, level)
	case ownerEncoderB:
		t.dispatchEncoderPin(own.index, false, level)
	case ownerSwitch:
		t.dispatcher.SwitchLevel(own.index, level)
	}
}

// encoderPinState tracks the last level seen per phase so a single-pin
// event can be combined into a full (A,B) pair before dispatch (spec
// §4.B classifies on the pair, not a lone phase change).
type encoderPinState struct {
	a, b uint8
}

func (t *Transport) dispatchEncoderPin(index int, isA bool, level uint8) {
	st := t.encoderState(index)
	if isA {
		st.a = level
	} else {
		st.b = level
	}
	t.dispatcher.EncoderPins(index, st.a, st.b)
}

// encoderState returns (creating if needed) the native-GPIO transport's
// own per-phase bookkeeping, distinct from the Registry's
// pin_a_last_state/pin_b_last_state which is reserved for the
// port-expander variant (spec §3).
func (t *Transport) encoderState(index int) *encoderPinState {
	if t.states == nil {
		t.states = make(map[int]*encoderPinState)
	}
	st, ok := t.states[index]
	if !ok {
		st = &encoderPinState{}
		t.states[index] = st
	}
	return st
}

func (t *Transport) pollLoop(ctx context.Context) {
	defer close(t.pollDone)
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	last := make(map[int]uint8, len(t.pollPins))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range t.pollPins {
				lvl, err := t.cfg.ExpanderRead.ReadLevel(s.Pin)
				if err != nil {
					t.log.Debug("poll switch read failed", "index", s.Index, "pin", s.Pin, "err", err)
					continue
				}
				if last[s.Index] != lvl || !contains(last, s.Index) {
					last[s.Index] = lvl
					t.dispatcher.SwitchLevel(s.Index, lvl)
				}
			}
		}
	}
}

func contains(m map[int]uint8, k int) bool {
	_, ok := m[k]
	return ok
}

// Stop releases all requested lines and joins the poller goroutine if
// running (spec §5, "a reimplementation should expose a shutdown signal
// that joins worker threads cleanly").
func (t *Transport) Stop() error {
	if t.stopPoll != nil {
		t.stopPoll()
		<-t.pollDone
	}
	if t.lines != nil {
		return t.lines.Close()
	}
	return nil
}
