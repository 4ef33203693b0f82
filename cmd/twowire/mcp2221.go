package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/twowire/adapter"
	"github.com/mklimuk/twowire/cmd/twowire/console"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 adapter housekeeping",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
	},
}

var mcp2221StatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		return printAdapterStatus(c, func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
			return a.Status(ctx)
		})
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the transfer held by the adapter and free the bus",
	Action: func(c *cli.Context) error {
		return printAdapterStatus(c, func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
			return a.ReleaseBus(ctx)
		})
	},
}

func printAdapterStatus(c *cli.Context, query func(context.Context, *adapter.MCP2221) (*adapter.MCP2221Status, error)) error {
	conf, err := busConfig(c)
	if err != nil {
		return console.Exit(1, "config error: %s", console.Red(err))
	}
	status, err := query(busContext(c, conf), adapter.NewMCP2221())
	if err != nil {
		return console.Exit(1, "adapter communication error: %s", console.Red(err))
	}
	enc := yaml.NewEncoder(os.Stdout)
	err = enc.Encode(status)
	if err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}
