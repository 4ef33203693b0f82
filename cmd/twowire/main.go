package main

import (
	"errors"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/twowire/cmd/twowire/console"
	"github.com/mklimuk/twowire/pkg/config"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	app := cli.NewApp()
	app.Name = "twowire"
	app.EnableBashCompletion = true
	app.Version = config.BuildInfo()
	app.Usage = "talk to I2C peripherals through host buses and USB adapters"
	app.Flags = busFlags
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	// exit codes are resolved below
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Commands = cli.Commands{
		&probeCmd,
		&scanCmd,
		&writeCmd,
		&readCmd,
		&resetCmd,
		&lightCmd,
		&configCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	err := app.Run(args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			console.Errorf("%s", err)
			return exerr.ExitCode()
		}
		slog.Error("unexpected error", "error", err)
		return 1
	}
	return 0
}
