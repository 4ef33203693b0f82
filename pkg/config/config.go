// Package config holds build information and the bus configuration file
// format.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/twowire"
)

// set at build time
var (
	Version = "latest"
	Commit  = "none"
	Date    = "unknown"
)

func BuildInfo() string {
	return fmt.Sprintf("%s-%s-%s", Version, Date, Commit)
}

// Bus describes the adapter and session settings of one bus.
type Bus struct {
	Adapter        string        `yaml:"adapter"`
	Device         string        `yaml:"device"`
	Index          int           `yaml:"index"`
	BufferSize     int           `yaml:"buffer_size"`
	Clock          string        `yaml:"clock"`
	PinSDA         uint8         `yaml:"pin_sda"`
	PinSCL         uint8         `yaml:"pin_scl"`
	RepeatedStart  bool          `yaml:"repeated_start"`
	DelaySend      time.Duration `yaml:"delay_send"`
	DelayReceive   time.Duration `yaml:"delay_receive"`
	StreamLSB      bool          `yaml:"stream_lsb"`
	StreamBytesAll bool          `yaml:"stream_bytes_all"`
}

func Default() Bus {
	return Bus{
		Adapter: "mcp2221",
		Index:   -1,
		Clock:   "100kHz",
		PinSDA:  4,
		PinSCL:  5,
	}
}

// Load reads a bus configuration file. Settings missing from the file keep
// their defaults.
func Load(path string) (Bus, error) {
	f, err := os.Open(path)
	if err != nil {
		return Bus{}, fmt.Errorf("could not open config file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (Bus, error) {
	conf := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&conf)
	if err != nil && !errors.Is(err, io.EOF) {
		return Bus{}, fmt.Errorf("could not decode config: %w", err)
	}
	if _, err := conf.Frequency(); err != nil {
		return Bus{}, err
	}
	return conf, nil
}

func (b Bus) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(b); err != nil {
		return nil, fmt.Errorf("could not encode config: %w", err)
	}
	return buf.Bytes(), nil
}

func (b Bus) Frequency() (physic.Frequency, error) {
	var f physic.Frequency
	if err := f.Set(b.Clock); err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", b.Clock, err)
	}
	return f, nil
}

// SessionOptions translates the configuration into session options.
func (b Bus) SessionOptions() ([]twowire.SessionOpt, error) {
	f, err := b.Frequency()
	if err != nil {
		return nil, err
	}
	opts := []twowire.SessionOpt{
		twowire.WithClock(f),
		twowire.WithPins(b.PinSDA, b.PinSCL),
		twowire.WithStop(!b.RepeatedStart),
		twowire.WithDelaySend(b.DelaySend),
		twowire.WithDelayReceive(b.DelayReceive),
	}
	if b.StreamLSB {
		opts = append(opts, twowire.WithStreamLSB())
	}
	if b.StreamBytesAll {
		opts = append(opts, twowire.WithStreamBytesAll())
	}
	return opts, nil
}
