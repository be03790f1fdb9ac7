package zyncoder

import "errors"

// Error kinds from spec §7. SpuriousEdge and FrameCorruption never leave
// the hot path as errors: spurious edges are dropped silently and corrupt
// UART frames are logged and dropped. SpuriousEdge has no sentinel.
var (
	// ErrOutOfBounds is returned by setup/query operations when the given
	// index is outside the registry's configured capacity.
	ErrOutOfBounds = errors.New("zyncoder: index out of bounds")

	// ErrTransportInit is returned when a transport fails to acquire its
	// underlying resource (GPIO chip, I²C bus, serial device).
	ErrTransportInit = errors.New("zyncoder: transport initialization failed")

	// ErrFrameCorruption names the FrameCorruption kind. The UART
	// transport does not return or wrap it; it logs corrupt frames with
	// its own message.
	ErrFrameCorruption = errors.New("zyncoder: corrupt UART frame")

	// ErrDisabled is returned when an operation targets a valid index
	// whose record has not been enabled by setup.
	ErrDisabled = errors.New("zyncoder: device not enabled")
)
