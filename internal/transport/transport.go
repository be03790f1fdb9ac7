// Package transport defines the upward contract every hardware variant
// (native GPIO, I²C port-expander, serial/UART) presents to the encoder
// and switch state machines (spec §4.A, design notes §9: "Transport
// polymorphism").
package transport

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/alexzirnea/zyncoder/internal/zyncoder"
)

// Dispatcher is what a Transport calls into for each physical event: "it
// identifies the affected device ... and supplies fresh pin levels"
// (spec §4.A). The state machines behind it are transport-agnostic.
type Dispatcher interface {
	EncoderPins(index int, a, b uint8)
	EncoderDirection(index int, up bool)
	SwitchLevel(index int, level uint8)
}

// Transport is the capability set every variant implements (design notes
// §9): start observing, stop cleanly. There is no separate
// "acknowledge-observation" method because every variant's observation
// is synchronous with the Dispatcher call that reports it.
type Transport interface {
	Start(ctx context.Context) error
	Stop() error
}

// RegistryDispatcher adapts a *zyncoder.Registry to Dispatcher, logging
// (never propagating) the OutOfBounds errors a malformed pin mapping
// could produce — the hot path never returns an error to its transport
// caller (spec §7).
type RegistryDispatcher struct {
	Registry *zyncoder.Registry
	Log      *log.Logger
}

// NewRegistryDispatcher builds a Dispatcher backed by registry.
func NewRegistryDispatcher(registry *zyncoder.Registry, logger *log.Logger) *RegistryDispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &RegistryDispatcher{Registry: registry, Log: logger}
}

func (d *RegistryDispatcher) EncoderPins(index int, a, b uint8) {
	if err := d.Registry.UpdateEncoderPins(index, a, b); err != nil {
		d.Log.Debug("encoder pin update dropped", "index", index, "err", err)
	}
}

func (d *RegistryDispatcher) EncoderDirection(index int, up bool) {
	if err := d.Registry.UpdateEncoderDirection(index, up); err != nil {
		d.Log.Debug("encoder direction update dropped", "index", index, "err", err)
	}
}

func (d *RegistryDispatcher) SwitchLevel(index int, level uint8) {
	if err := d.Registry.UpdateSwitchLevel(index, level); err != nil {
		d.Log.Debug("switch level update dropped", "index", index, "err", err)
	}
}
