// Package uart implements the serial/UART transport variant (spec
// §4.A.3): a framed 4-byte packet carrying a packed bitmap of encoder
// ticks and switch levels.
package uart

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/term"

	"github.com/alexzirnea/zyncoder/internal/transport"
	"github.com/alexzirnea/zyncoder/internal/zyncoder"
)

const (
	startByte = 0xEA
	endByte   = 0xFB
	// reservedByte may only appear as a delimiter; its presence inside the
	// payload marks the frame corrupt (spec §4.A.3, §6).
	reservedByte = 0xFF

	payloadSize = 2
	frameSize   = payloadSize + 2
)

// EncoderBinding maps one encoder to the two payload bit positions that
// carry its down/up ticks. The original_source (zyncoder.c) computes
// `down` from pin_a and `up` from pin_b — reversed from the naive
// CW==pin_a assumption — and this binding preserves that mapping.
type EncoderBinding struct {
	Index   int
	DownPin int // reinterpreted as a bit index: byte=pin/8, bit=pin%8
	UpPin   int
}

// SwitchBinding maps one switch to the payload bit carrying its level.
type SwitchBinding struct {
	Index int
	Pin   int
}

// Config configures the serial/UART transport.
type Config struct {
	Device   string
	Baud     int
	Encoders []EncoderBinding
	Switches []SwitchBinding
	Logger   *log.Logger
}

// Transport is the serial/UART variant.
type Transport struct {
	cfg        Config
	log        *log.Logger
	dispatcher transport.Dispatcher

	fd *term.Term

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// New builds the UART transport. Call Start to open the device and begin
// reading frames.
func New(cfg Config, dispatcher transport.Dispatcher) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Transport{cfg: cfg, log: logger, dispatcher: dispatcher}
}

func bitAt(payload []byte, pin int) uint8 {
	byteIdx := pin / 8
	bit := uint(pin % 8)
	if byteIdx < 0 || byteIdx >= len(payload) {
		return 0
	}
	return (payload[byteIdx] >> bit) & 0x1
}

// Start opens the serial device in raw mode at the configured baud and
// begins the frame-reading loop in the background (spec §4.A.3, §6:
// "Baud 115200 8N1").
func (t *Transport) Start(ctx context.Context) error {
	fd, err := term.Open(t.cfg.Device, term.RawMode)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", zyncoder.ErrTransportInit, t.cfg.Device, err)
	}
	if t.cfg.Baud > 0 {
		if err := fd.SetSpeed(t.cfg.Baud); err != nil {
			fd.Close()
			return fmt.Errorf("%w: setting speed on %s: %v", zyncoder.ErrTransportInit, t.cfg.Device, err)
		}
	}
	t.fd = fd
	t.done = make(chan struct{})

	go t.readLoop(ctx)
	return nil
}

func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.done)

	var window []byte
	one := make([]byte, 1)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := t.fd.Read(one)
		if n != 1 || err != nil {
			if t.isClosed() {
				return
			}
			if err == io.EOF {
				return
			}
			t.log.Debug("uart read error", "err", err)
			continue
		}

		window = append(window, one[0])
		if len(window) > frameSize {
			window = window[len(window)-frameSize:]
		}
		if len(window) < frameSize {
			continue
		}

		if window[0] != startByte || window[frameSize-1] != endByte {
			continue
		}

		payload := append([]byte(nil), window[1:frameSize-1]...)
		if frameCorrupt(payload) {
			t.log.Warn("corrupt uart frame, flushing", "payload", payload)
			window = nil
			t.flushDevice()
			continue
		}

		t.dispatchFrame(payload)
		window = nil
	}
}

func frameCorrupt(payload []byte) bool {
	for _, b := range payload {
		if b == startByte || b == endByte || b == reservedByte {
			return true
		}
	}
	return false
}

func (t *Transport) dispatchFrame(payload []byte) {
	for _, e := range t.cfg.Encoders {
		up := bitAt(payload, e.UpPin) == 1
		down := bitAt(payload, e.DownPin) == 1
		if up {
			t.dispatcher.EncoderDirection(e.Index, true)
		} else if down {
			t.dispatcher.EncoderDirection(e.Index, false)
		}
	}
	for _, s := range t.cfg.Switches {
		t.dispatcher.SwitchLevel(s.Index, bitAt(payload, s.Pin))
	}
}

// flushDevice discards any bytes already buffered by the OS so the next
// read starts clean (spec §4.A.3, "flush ... the serial device").
func (t *Transport) flushDevice() {
	if f, ok := any(t.fd).(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			t.log.Debug("uart device flush failed", "err", err)
		}
	}
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Stop closes the serial device, unblocking the read loop, and waits for
// it to exit (spec §5, clean worker-thread teardown).
func (t *Transport) Stop() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	if t.fd == nil {
		return nil
	}
	err := t.fd.Close()
	if t.done != nil {
		<-t.done
	}
	return err
}
