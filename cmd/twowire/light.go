package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/twowire/cmd/twowire/console"
	"github.com/mklimuk/twowire/environment"
)

var lightModes = map[string]environment.Mode{
	"low":   environment.ModeOneTimeLow,
	"high":  environment.ModeOneTimeHigh,
	"high2": environment.ModeOneTimeHigh2,
}

var lightCmd = cli.Command{
	Name:  "light",
	Usage: "read a BH1750 light sensor",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Value: "l",
			Usage: "sensor address pin level, l or h",
		},
		&cli.StringFlag{
			Name:  "mode",
			Value: "low",
			Usage: "resolution: low, high or high2",
		},
	},
	Action: func(c *cli.Context) error {
		mode, ok := lightModes[c.String("mode")]
		if !ok {
			return console.Exit(1, "unknown mode %q", c.String("mode"))
		}
		var addr byte
		switch c.String("addr") {
		case "h":
			addr = environment.BH1750AddrHigh
		default:
			addr = environment.BH1750AddrLow
		}
		s, closer, err := openSession(c)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer closer()
		sensor := environment.NewBH1750(s, addr, environment.WithMode(mode))
		lux, err := sensor.GetLux(c.Context)
		if err != nil {
			return console.Exit(2, "error getting light sensor read: %s", console.Red(err))
		}
		console.PInfof(console.PictoBulb, "%s lux", console.White(lux))
		return nil
	},
}
