package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/twowire/cmd/twowire/console"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "print the effective bus configuration",
	Action: func(c *cli.Context) error {
		conf, err := busConfig(c)
		if err != nil {
			return console.Exit(1, "config error: %s", console.Red(err))
		}
		out, err := conf.Encode()
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		console.Printf("%s", out)
		return nil
	},
}
