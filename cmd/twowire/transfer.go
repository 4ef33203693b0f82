package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/twowire"
	"github.com/mklimuk/twowire/cmd/twowire/console"
)

var probeCmd = cli.Command{
	Name:      "probe",
	Usage:     "select a peer and print the bus status",
	ArgsUsage: "<addr>",
	Action: func(c *cli.Context) error {
		addr, err := parseAddress(c.Args().First())
		if err != nil {
			return console.Exit(1, "%s", err)
		}
		s, closer, err := openSession(c)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer closer()
		probeErr := s.SetAddress(addr)
		enc := yaml.NewEncoder(os.Stdout)
		if err := enc.Encode(s.Status()); err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		if probeErr != nil {
			return console.Exit(2, "%s", s.LastErrorText("probe"))
		}
		return nil
	},
}

var scanCmd = cli.Command{
	Name:  "scan",
	Usage: "probe every usual address and print the responders",
	Action: func(c *cli.Context) error {
		s, closer, err := openSession(c)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer closer()
		console.Print("     0  1  2  3  4  5  6  7  8  9  a  b  c  d  e  f")
		found := 0
		for row := 0; row <= int(twowire.AddressMax); row += 16 {
			var line strings.Builder
			fmt.Fprintf(&line, "%02x: ", row)
			for col := 0; col < 16; col++ {
				addr := byte(row + col)
				if addr < twowire.AddressMinUsual || addr > twowire.AddressMaxUsual {
					line.WriteString("   ")
					continue
				}
				if err := s.SetAddress(addr); err != nil {
					line.WriteString(console.Faint("-- "))
					continue
				}
				found++
				line.WriteString(console.Green(fmt.Sprintf("%02x ", addr)))
			}
			console.Print(strings.TrimRight(line.String(), " "))
		}
		console.PInfof(console.PictoPin, "%s peers found", console.White(found))
		return nil
	},
}

var writeCmd = cli.Command{
	Name:      "write",
	Aliases:   []string{"wr"},
	Usage:     "send bytes to a peer in bus buffer sized pages",
	ArgsUsage: "<addr> <hex>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "reverse", Usage: "send data from the last byte"},
		&cli.StringFlag{Name: "prefix", Usage: "hex bytes written ahead of the data"},
		&cli.BoolFlag{Name: "prefix-reverse", Usage: "send the prefix from its last byte"},
		&cli.BoolFlag{Name: "prefix-once", Usage: "write the prefix ahead of the first page only"},
		&cli.DurationFlag{Name: "delay", Usage: "settle time after every page"},
		&cli.BoolFlag{Name: "no-probe", Usage: "do not probe the peer before sending"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 {
			return console.Exit(1, "usage: twowire write <addr> <hex>")
		}
		addr, err := parseAddress(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%s", err)
		}
		data, err := parseHex(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "invalid data: %s", err)
		}
		prefix, err := parseHex(c.String("prefix"))
		if err != nil {
			return console.Exit(1, "invalid prefix: %s", err)
		}
		s, closer, err := openSession(c)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer closer()
		if c.IsSet("delay") {
			s.SetDelaySend(c.Duration("delay"))
		}
		if err := selectPeer(c, s, addr); err != nil {
			return console.Exit(2, "%s", s.LastErrorText("write"))
		}
		err = s.SendPrefixed(data, c.Bool("reverse"), twowire.Prefix{
			Bytes:   prefix,
			Reverse: c.Bool("prefix-reverse"),
			Once:    c.Bool("prefix-once"),
		})
		if err != nil {
			return console.Exit(2, "%s", s.LastErrorText("write"))
		}
		pages := (len(data) + len(prefix) + s.BufferSize() - 1) / s.BufferSize()
		console.Infof("%s bytes sent to %s in %s pages", console.White(len(data)), console.White(fmt.Sprintf("%#02x", addr)), console.White(pages))
		return nil
	},
}

var readCmd = cli.Command{
	Name:      "read",
	Aliases:   []string{"rd"},
	Usage:     "read bytes from a peer, optionally after a command",
	ArgsUsage: "<addr> <n>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "command", Usage: "command word sent with repeated start before reading"},
		&cli.BoolFlag{Name: "reverse", Usage: "store the received stream from the last byte"},
		&cli.DurationFlag{Name: "delay", Usage: "settle time after every page"},
		&cli.BoolFlag{Name: "no-probe", Usage: "do not probe the peer before reading"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 {
			return console.Exit(1, "usage: twowire read <addr> <n>")
		}
		addr, err := parseAddress(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%s", err)
		}
		n, err := strconv.Atoi(c.Args().Get(1))
		if err != nil || n <= 0 {
			return console.Exit(1, "invalid byte count %q", c.Args().Get(1))
		}
		s, closer, err := openSession(c)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer closer()
		if c.IsSet("delay") {
			s.SetDelayReceive(c.Duration("delay"))
		}
		if err := selectPeer(c, s, addr); err != nil {
			return console.Exit(2, "%s", s.LastErrorText("read"))
		}
		buf := make([]byte, n)
		if c.IsSet("command") {
			command, perr := strconv.ParseUint(c.String("command"), 0, 16)
			if perr != nil {
				return console.Exit(1, "invalid command: %s", perr)
			}
			err = s.ReceiveCommand(uint16(command), buf, c.Bool("reverse"))
		} else {
			err = s.Receive(buf, c.Bool("reverse"))
		}
		if err != nil {
			return console.Exit(2, "%s", s.LastErrorText("read"))
		}
		console.Printf("%s", hex.Dump(buf))
		return nil
	},
}

var resetCmd = cli.Command{
	Name:  "reset",
	Usage: "send the general call reset to every peer",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			answer, err := console.YesOrNo("reset every peer on the bus?")
			if err != nil {
				return console.Exit(1, "prompt error: %s", err)
			}
			if answer != console.Yes {
				console.PInfof(console.PictoStop, "reset cancelled")
				return nil
			}
		}
		s, closer, err := openSession(c)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer closer()
		if err := s.BusGeneralReset(); err != nil {
			return console.Exit(2, "%s", s.LastErrorText("reset"))
		}
		console.Infof("general call reset sent")
		return nil
	},
}

func selectPeer(c *cli.Context, s *twowire.Session, addr byte) error {
	if c.Bool("no-probe") {
		return s.RegisterAddress(addr)
	}
	return s.SetAddress(addr)
}

// parseHex accepts bytes as one hex string, optionally with 0x prefix and
// separated by spaces, colons or commas.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	s = strings.NewReplacer(" ", "", ":", "", ",", "").Replace(s)
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even length")
	}
	return hex.DecodeString(s)
}
