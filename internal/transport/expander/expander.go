// Package expander implements the I²C port-expander transport variant
// (spec §4.A.2): an MCP23017 generating one interrupt per 8-pin bank,
// diffed against a register snapshot.
package expander

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/i2c"

	"github.com/alexzirnea/zyncoder/internal/transport"
	"github.com/alexzirnea/zyncoder/internal/zyncoder"
)

// MCP23017 register addresses (BANK=0 addressing, spec §6).
const (
	regIODIRA   = 0x00
	regIODIRB   = 0x01
	regIPOLA    = 0x02
	regIPOLB    = 0x03
	regGPINTENA = 0x04
	regGPINTENB = 0x05
	regINTCONA  = 0x08
	regINTCONB  = 0x09
	regIOCON    = 0x0A
	regGPPUA    = 0x0C
	regGPPUB    = 0x0D
	regGPIOA    = 0x12
	regGPIOB    = 0x13
)

// iocon bits: mirror=0 (banks not mirrored), odr=0 (push-pull), intpol=1
// (active-high), spec §6.
const ioconValue = 0x02 // bit1 = INTPOL

// Config configures the port-expander transport.
type Config struct {
	Bus      i2c.Bus
	Addr     uint16
	ChipName string // native GPIO chip for the two interrupt lines
	IntAPin  int    // GPIO offset wired to the expander's INTA
	IntBPin  int    // GPIO offset wired to the expander's INTB
	Logger   *log.Logger
}

// Transport is the port-expander variant. It needs direct Registry
// access (not just the Dispatcher interface) because spec §4.A.2 ties
// its diff logic to each encoder's pin_a_last_state/pin_b_last_state,
// which only the Registry tracks.
type Transport struct {
	cfg        Config
	log        *log.Logger
	registry   *zyncoder.Registry
	dispatcher transport.Dispatcher

	intLines *gpiocdev.Lines
}

// New builds the port-expander transport.
func New(cfg Config, registry *zyncoder.Registry, dispatcher transport.Dispatcher) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Transport{cfg: cfg, log: logger, registry: registry, dispatcher: dispatcher}
}

func (t *Transport) writeReg(reg byte, val byte) error {
	return t.cfg.Bus.Tx(t.cfg.Addr, []byte{reg, val}, nil)
}

func (t *Transport) readReg(reg byte) (byte, error) {
	out := make([]byte, 1)
	if err := t.cfg.Bus.Tx(t.cfg.Addr, []byte{reg}, out); err != nil {
		return 0, err
	}
	return out[0], nil
}

// configureExpander performs the setup sequence from spec §6: all pins
// input, pull-ups enabled, non-inverted polarity, interrupt-on-change
// (not DEFVAL-compare), banks not mirrored, push-pull active-high
// interrupt pins, then a clearing read of both GPIO registers.
func (t *Transport) configureExpander() error {
	writes := []struct {
		reg byte
		val byte
	}{
		{regIODIRA, 0xFF}, {regIODIRB, 0xFF},
		{regGPPUA, 0xFF}, {regGPPUB, 0xFF},
		{regIPOLA, 0x00}, {regIPOLB, 0x00},
		{regINTCONA, 0x00}, {regINTCONB, 0x00},
		{regIOCON, ioconValue},
		{regGPINTENA, 0xFF}, {regGPINTENB, 0xFF},
	}
	for _, w := range writes {
		if err := t.writeReg(w.reg, w.val); err != nil {
			return fmt.Errorf("zyncoder: mcp23017 setup write reg 0x%02x: %w", w.reg, err)
		}
	}
	if _, err := t.readReg(regGPIOA); err != nil {
		return fmt.Errorf("zyncoder: mcp23017 clearing read of GPIOA: %w", err)
	}
	if _, err := t.readReg(regGPIOB); err != nil {
		return fmt.Errorf("zyncoder: mcp23017 clearing read of GPIOB: %w", err)
	}
	return nil
}

// Start configures the expander and requests the two interrupt lines
// (spec §4.A.2).
func (t *Transport) Start(ctx context.Context) error {
	if err := t.configureExpander(); err != nil {
		return err
	}

	lines, err := gpiocdev.RequestLines(t.cfg.ChipName, []int{t.cfg.IntAPin, t.cfg.IntBPin},
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(t.handleInterrupt),
	)
	if err != nil {
		return fmt.Errorf("zyncoder: requesting mcp23017 interrupt lines: %w", err)
	}
	t.intLines = lines
	return nil
}

// handleInterrupt is invoked for both INTA and INTB; bank is derived from
// which offset fired.
func (t *Transport) handleInterrupt(evt gpiocdev.LineEvent) {
	bank := 0
	if evt.Offset == t.cfg.IntBPin {
		bank = 1
	}
	if err := t.processBank(bank); err != nil {
		t.log.Warn("mcp23017 bank read failed", "bank", bank, "err", err)
	}
}

// processBank implements one ISR invocation (spec §4.A.2): read the
// bank's GPIO register, update encoders whose pins fall in this bank
// (in encoder-index order, both phases of one encoder taken from the same
// register read), then update switches. Encoders are processed before
// switches within one bank read (spec §5, "Ordering").
func (t *Transport) processBank(bank int) error {
	reg := byte(regGPIOA)
	if bank == 1 {
		reg = regGPIOB
	}
	bits, err := t.readReg(reg)
	if err != nil {
		return err
	}

	lo, hi := bank*8, bank*8+7

	for _, e := range t.registry.EncoderPins() {
		if !e.Enabled {
			continue
		}
		aInBank := e.PinA >= lo && e.PinA <= hi
		bInBank := e.PinB >= lo && e.PinB <= hi
		if !aInBank && !bInBank {
			continue
		}

		a, b := e.LastPinA, e.LastPinB
		if aInBank {
			a = bitAt(bits, e.PinA%8)
		}
		if bInBank {
			b = bitAt(bits, e.PinB%8)
		}

		if a != e.LastPinA || b != e.LastPinB {
			t.dispatcher.EncoderPins(e.Index, a, b)
			if err := t.registry.SetEncoderLastPinState(e.Index, a, b); err != nil {
				t.log.Debug("storing encoder pin state failed", "index", e.Index, "err", err)
			}
		}
	}

	for _, s := range t.registry.SwitchPins() {
		if !s.Enabled || s.Pin < lo || s.Pin > hi {
			continue
		}
		level := bitAt(bits, s.Pin%8)
		if level != s.Status {
			t.dispatcher.SwitchLevel(s.Index, level)
		}
	}

	return nil
}

func bitAt(b byte, n int) uint8 {
	return (b >> uint(n)) & 0x1
}

// Stop releases the interrupt lines.
func (t *Transport) Stop() error {
	if t.intLines != nil {
		return t.intLines.Close()
	}
	return nil
}
