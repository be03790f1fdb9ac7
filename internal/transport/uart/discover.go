package uart

import (
	"fmt"

	"github.com/jochenvg/go-udev"
)

// DiscoverDevice does a one-shot udev enumeration for a tty device
// matching the given USB vendor/product ID, so the caller doesn't need
// to hardcode a device path for the expander/UART board (supplemented
// feature, SPEC_FULL.md: discovery, not hot-plug, so spec's hot-plug
// Non-goal is unaffected).
func DiscoverDevice(vendorID, productID string) (string, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()

	if err := e.AddMatchSubsystem("tty"); err != nil {
		return "", fmt.Errorf("zyncoder: udev match subsystem: %w", err)
	}
	if vendorID != "" {
		if err := e.AddMatchProperty("ID_VENDOR_ID", vendorID); err != nil {
			return "", fmt.Errorf("zyncoder: udev match vendor: %w", err)
		}
	}
	if productID != "" {
		if err := e.AddMatchProperty("ID_MODEL_ID", productID); err != nil {
			return "", fmt.Errorf("zyncoder: udev match product: %w", err)
		}
	}

	devices, err := e.Devices()
	if err != nil {
		return "", fmt.Errorf("zyncoder: udev enumerate: %w", err)
	}
	for _, d := range devices {
		if node := d.Devnode(); node != "" {
			return node, nil
		}
	}
	return "", fmt.Errorf("zyncoder: no tty device found for vendor=%q product=%q", vendorID, productID)
}
