// Package sim implements a software transport variant: it takes
// synthetic (index, pin-levels) observations instead of real hardware,
// the same way the original zyncoder.c had a wiringPiEmu dev-mode build
// (SPEC_FULL.md, "Emulator/dev mode"). It drives the same Dispatcher
// contract as the hardware variants, so it exercises the full pipeline
// end to end under test or a future TUI.
package sim

import (
	"context"
	"sync"

	"github.com/alexzirnea/zyncoder/internal/transport"
)

// Transport is the software/emulator variant.
type Transport struct {
	mu         sync.Mutex
	dispatcher transport.Dispatcher
	running    bool
}

// New builds a sim transport over dispatcher.
func New(dispatcher transport.Dispatcher) *Transport {
	return &Transport{dispatcher: dispatcher}
}

// Start sets the transport's running flag. There is no background
// goroutine: events arrive via the Feed* methods, called directly by a
// test or a driving UI. The Feed* methods do not check the running flag;
// they forward events whether or not Start has been called.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()
	return nil
}

// Stop clears the running flag. Feed* calls made after Stop are still
// forwarded to the dispatcher.
func (t *Transport) Stop() error {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
	return nil
}

// FeedEncoderPins injects a synthetic (A,B) pin-level observation for
// the given encoder index, as the native-GPIO or port-expander
// transports would.
func (t *Transport) FeedEncoderPins(index int, a, b uint8) {
	t.dispatcher.EncoderPins(index, a, b)
}

// FeedEncoderDirection injects a synthetic pre-decoded tick, as the UART
// transport would.
func (t *Transport) FeedEncoderDirection(index int, up bool) {
	t.dispatcher.EncoderDirection(index, up)
}

// FeedSwitchLevel injects a synthetic switch level observation.
func (t *Transport) FeedSwitchLevel(index int, level uint8) {
	t.dispatcher.SwitchLevel(index, level)
}
