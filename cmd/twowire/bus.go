package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/twowire"
	"github.com/mklimuk/twowire/adapter"
	"github.com/mklimuk/twowire/environment"
	"github.com/mklimuk/twowire/i2c"
	"github.com/mklimuk/twowire/pkg/config"
	"github.com/mklimuk/twowire/sim"
	"github.com/mklimuk/twowire/wirectx"
)

// nanopiBus is the I2C bus number exposed on the NanoPi NEO header.
const nanopiBus = 2

var busFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Value:   "mcp2221",
		Usage:   "bus adapter: mcp2221, generic, nanopi or sim",
	},
	&cli.StringFlag{
		Name:  "device",
		Usage: "bus name for the generic adapter or bus number for nanopi",
	},
	&cli.IntFlag{
		Name:  "index",
		Value: -1,
		Usage: "index of the MCP2221 adapter when several are attached",
	},
	&cli.PathFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "bus configuration file",
	},
	&cli.StringFlag{
		Name:  "clock",
		Value: "100kHz",
		Usage: "bus clock, 100kHz or 400kHz",
	},
	&cli.UintFlag{
		Name:  "sda",
		Value: 4,
		Usage: "SDA pin on adapters with pin assignment",
	},
	&cli.UintFlag{
		Name:  "scl",
		Value: 5,
		Usage: "SCL pin on adapters with pin assignment",
	},
	&cli.BoolFlag{
		Name:  "repeated-start",
		Usage: "keep the bus between transactions",
	},
	&cli.BoolFlag{
		Name:  "verbose",
		Usage: "enable verbose logging",
	},
}

// busConfig merges the configuration file with flags set on the command
// line; flags win.
func busConfig(c *cli.Context) (config.Bus, error) {
	conf := config.Default()
	if path := c.Path("config"); path != "" {
		var err error
		conf, err = config.Load(path)
		if err != nil {
			return conf, err
		}
	}
	if c.IsSet("adapter") || c.Path("config") == "" {
		conf.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		conf.Device = c.String("device")
	}
	if c.IsSet("index") {
		conf.Index = c.Int("index")
	}
	if c.IsSet("clock") {
		conf.Clock = c.String("clock")
	}
	if c.IsSet("sda") {
		conf.PinSDA = uint8(c.Uint("sda"))
	}
	if c.IsSet("scl") {
		conf.PinSCL = uint8(c.Uint("scl"))
	}
	if c.IsSet("repeated-start") {
		conf.RepeatedStart = c.Bool("repeated-start")
	}
	if _, err := conf.Frequency(); err != nil {
		return conf, err
	}
	return conf, nil
}

func busContext(c *cli.Context, conf config.Bus) context.Context {
	ctx := wirectx.SetVerbose(c.Context, c.Bool("verbose"))
	if conf.Index >= 0 {
		ctx = wirectx.SetDevice(ctx, conf.Index)
	}
	return ctx
}

// openSession builds the driver selected by the configuration and returns
// a session over it with a function releasing everything it opened.
func openSession(c *cli.Context) (*twowire.Session, func(), error) {
	conf, err := busConfig(c)
	if err != nil {
		return nil, nil, err
	}
	ctx := busContext(c, conf)
	driver, closer, err := openDriver(ctx, conf)
	if err != nil {
		return nil, nil, err
	}
	opts, err := conf.SessionOptions()
	if err != nil {
		closer()
		return nil, nil, err
	}
	s := twowire.New(driver, opts...)
	if err := s.Open(); err != nil {
		closer()
		return nil, nil, fmt.Errorf("could not open bus: %w", err)
	}
	return s, func() {
		s.Close()
		closer()
	}, nil
}

func openDriver(ctx context.Context, conf config.Bus) (twowire.Driver, func(), error) {
	bridgeOpts := []i2c.BridgeOpt{i2c.WithBufferSize(conf.BufferSize)}
	switch conf.Adapter {
	case "mcp2221":
		a := adapter.NewMCP2221()
		if conf.BufferSize == 0 {
			bridgeOpts = []i2c.BridgeOpt{i2c.WithBufferSize(adapter.BufferSize)}
		}
		return i2c.NewBridge(ctx, a, bridgeOpts...), func() {}, nil
	case "generic":
		bus, err := i2c.NewGenericBus(conf.Device)
		if err != nil {
			return nil, nil, err
		}
		sda, scl := bus.Pins()
		slog.Debug("host bus opened", "bus", bus.String(), "sda", sda, "scl", scl)
		return i2c.NewBridge(ctx, bus, bridgeOpts...), func() {
			if err := bus.Close(); err != nil {
				slog.Warn("could not close bus", "error", err)
			}
		}, nil
	case "nanopi":
		nr := nanopiBus
		if conf.Device != "" {
			var err error
			nr, err = strconv.Atoi(conf.Device)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid nanopi bus number %q: %w", conf.Device, err)
			}
		}
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := i2c.NewGobotBus(npi, nr)
		return i2c.NewBridge(ctx, bus, bridgeOpts...), func() {
			if err := bus.Close(); err != nil {
				slog.Warn("could not halt drivers", "error", err)
			}
			if err := npi.I2cBusAdaptor.Finalize(); err != nil {
				slog.Warn("could not finalize adaptor", "error", err)
			}
		}, nil
	case "sim":
		return simulated(conf), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown adapter %q", conf.Adapter)
}

// simulated returns a dry run bus with light sensors on both BH1750
// addresses.
func simulated(conf config.Bus) twowire.Driver {
	var opts []sim.Opt
	if conf.BufferSize > 0 {
		opts = append(opts, sim.WithBufferSize(conf.BufferSize))
	}
	bus := sim.NewPinned(opts...)
	reading := make([]byte, 0, 64)
	for range 32 {
		reading = append(reading, 0x01, 0x2C)
	}
	bus.AddDevice(environment.BH1750AddrLow, reading...)
	bus.AddDevice(environment.BH1750AddrHigh, reading...)
	return bus
}

func parseAddress(arg string) (byte, error) {
	v, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", arg, err)
	}
	if !twowire.ValidAddress(byte(v)) {
		return 0, fmt.Errorf("address %#02x out of range %#02x..%#02x", v, twowire.AddressMin, twowire.AddressMax)
	}
	return byte(v), nil
}
