// Command zyncoderd wires the zyncoder core to one real transport and
// runs it until interrupted, the way the teacher's cmd/direwolf/main.go
// wires its DSP/KISS/AX.25 core to real audio and serial devices.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/alexzirnea/zyncoder/internal/config"
	"github.com/alexzirnea/zyncoder/internal/router"
	"github.com/alexzirnea/zyncoder/internal/transport"
	"github.com/alexzirnea/zyncoder/internal/transport/expander"
	"github.com/alexzirnea/zyncoder/internal/transport/gpio"
	"github.com/alexzirnea/zyncoder/internal/transport/sim"
	"github.com/alexzirnea/zyncoder/internal/transport/uart"
	"github.com/alexzirnea/zyncoder/internal/zyncoder"
)

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "", "Path to the YAML encoder/switch layout file.")
		kind        = pflag.StringP("transport", "t", "sim", "Transport: gpio | expander | uart | sim.")
		gpioChip    = pflag.String("gpio-chip", "gpiochip0", "GPIO chip name for the gpio/expander transports.")
		i2cBus      = pflag.String("i2c-bus", "", "I2C bus name for the expander transport (periph i2creg name, empty = first available).")
		i2cAddr     = pflag.Uint16("i2c-addr", 0x20, "MCP23017 I2C address.")
		intAPin     = pflag.Int("int-a-pin", 27, "GPIO offset wired to the expander's INTA.")
		intBPin     = pflag.Int("int-b-pin", 25, "GPIO offset wired to the expander's INTB.")
		serialDev   = pflag.StringP("serial-device", "s", "/dev/ttyS1", "Serial device for the uart transport.")
		serialBaud  = pflag.Int("serial-baud", 115200, "Serial baud rate for the uart transport.")
		usbVendor   = pflag.String("usb-vendor-id", "", "If set with --transport=uart, resolve the device path via udev instead of --serial-device.")
		usbProduct  = pflag.String("usb-product-id", "", "USB product ID to match alongside --usb-vendor-id.")
		verbose     = pflag.BoolP("verbose", "v", false, "Debug-level logging.")
		help        = pflag.Bool("help", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: zyncoderd [flags]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		return
	}

	level := log.InfoLevel
	if *verbose {
		level = log.DebugLevel
	}
	logger := zyncoder.NewLogger(level, nil)

	registry := zyncoder.NewRegistry(zyncoder.Config{Logger: logger})

	if *configPath != "" {
		f, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal("loading config", "err", err)
		}
		if f.TicksPerRetent != 0 {
			registry = zyncoder.NewRegistry(zyncoder.Config{Logger: logger, TicksPerRetent: f.TicksPerRetent})
		}
		if err := f.Apply(registry); err != nil {
			logger.Error("applying config", "err", err)
		}
	}

	rtr := router.New(registry, newLogMidiSink(logger, "engine"), newLogMidiSink(logger, "ui"), newUDPOscSink(), nil, router.DefaultCVGateConfig(), logger)
	registry.SetSink(rtr)

	dispatcher := transport.NewRegistryDispatcher(registry, logger)

	resolvedSerialDev := *serialDev
	if *kind == "uart" && *usbVendor != "" {
		dev, err := uart.DiscoverDevice(*usbVendor, *usbProduct)
		if err != nil {
			logger.Fatal("discovering uart device", "err", err)
		}
		resolvedSerialDev = dev
		logger.Info("resolved uart device via udev", "device", dev)
	}

	tp, err := buildTransport(*kind, registry, dispatcher, logger, transportFlags{
		gpioChip:   *gpioChip,
		i2cBus:     *i2cBus,
		i2cAddr:    *i2cAddr,
		intAPin:    *intAPin,
		intBPin:    *intBPin,
		serialDev:  resolvedSerialDev,
		serialBaud: *serialBaud,
	})
	if err != nil {
		logger.Fatal("building transport", "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := tp.Start(ctx); err != nil {
		logger.Fatal("starting transport", "err", err)
	}
	logger.Info("zyncoderd running", "transport", *kind)

	<-ctx.Done()
	logger.Info("shutting down")
	if err := tp.Stop(); err != nil {
		logger.Error("stopping transport", "err", err)
	}
}

type transportFlags struct {
	gpioChip   string
	i2cBus     string
	i2cAddr    uint16
	intAPin    int
	intBPin    int
	serialDev  string
	serialBaud int
}

// buildTransport wires exactly one of the three mutually exclusive
// hardware variants (or the sim variant), per spec §4.A.
func buildTransport(kind string, registry *zyncoder.Registry, dispatcher transport.Dispatcher, logger *log.Logger, flags transportFlags) (transport.Transport, error) {
	switch kind {
	case "gpio":
		return gpio.New(gpio.Config{
			ChipName: flags.gpioChip,
			Encoders: encoderPinsFromRegistry(registry),
			Switches: switchPinsFromRegistry(registry),
			PullUp:   true,
			Logger:   logger,
		}, dispatcher), nil

	case "expander":
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("periph host init: %w", err)
		}
		bus, err := i2creg.Open(flags.i2cBus)
		if err != nil {
			return nil, fmt.Errorf("opening i2c bus %q: %w", flags.i2cBus, err)
		}
		return expander.New(expander.Config{
			Bus:      bus,
			Addr:     flags.i2cAddr,
			ChipName: flags.gpioChip,
			IntAPin:  flags.intAPin,
			IntBPin:  flags.intBPin,
			Logger:   logger,
		}, registry, dispatcher), nil

	case "uart":
		return uart.New(uart.Config{
			Device:   flags.serialDev,
			Baud:     flags.serialBaud,
			Encoders: uartEncoderBindings(registry),
			Switches: uartSwitchBindings(registry),
			Logger:   logger,
		}, dispatcher), nil

	case "sim", "":
		return sim.New(dispatcher), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

func encoderPinsFromRegistry(registry *zyncoder.Registry) []gpio.EncoderPin {
	var out []gpio.EncoderPin
	for _, e := range registry.EncoderPins() {
		if e.Enabled {
			out = append(out, gpio.EncoderPin{Index: e.Index, PinA: e.PinA, PinB: e.PinB})
		}
	}
	return out
}

func switchPinsFromRegistry(registry *zyncoder.Registry) []gpio.SwitchPin {
	var out []gpio.SwitchPin
	for _, s := range registry.SwitchPins() {
		if s.Enabled && s.Pin != 0 {
			out = append(out, gpio.SwitchPin{Index: s.Index, Pin: s.Pin, Native: true})
		}
	}
	return out
}

func uartEncoderBindings(registry *zyncoder.Registry) []uart.EncoderBinding {
	var out []uart.EncoderBinding
	for _, e := range registry.EncoderPins() {
		if e.Enabled {
			out = append(out, uart.EncoderBinding{Index: e.Index, DownPin: e.PinA, UpPin: e.PinB})
		}
	}
	return out
}

func uartSwitchBindings(registry *zyncoder.Registry) []uart.SwitchBinding {
	var out []uart.SwitchBinding
	for _, s := range registry.SwitchPins() {
		if s.Enabled && s.Pin != 0 {
			out = append(out, uart.SwitchBinding{Index: s.Index, Pin: s.Pin})
		}
	}
	return out
}
