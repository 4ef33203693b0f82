package twowire

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/physic"
)

// TimeSource provides the clock used for settle delays.
type TimeSource interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemTime struct{}

func (systemTime) Now() time.Time        { return time.Now() }
func (systemTime) Sleep(d time.Duration) { time.Sleep(d) }

type SessionOpts struct {
	Clock          physic.Frequency
	PinSDA         uint8
	PinSCL         uint8
	Stop           bool
	DelaySend      time.Duration
	DelayReceive   time.Duration
	StreamLSB      bool
	StreamBytesAll bool
	Logger         *slog.Logger
	Time           TimeSource
}

type SessionOpt func(*SessionOpts)

func WithClock(f physic.Frequency) SessionOpt {
	return func(o *SessionOpts) {
		o.Clock = f
	}
}

func WithPins(sda, scl uint8) SessionOpt {
	return func(o *SessionOpts) {
		o.PinSDA = sda
		o.PinSCL = scl
	}
}

// WithStop sets the initial end of transaction policy; false keeps the bus
// with repeated start.
func WithStop(stop bool) SessionOpt {
	return func(o *SessionOpts) {
		o.Stop = stop
	}
}

func WithDelaySend(d time.Duration) SessionOpt {
	return func(o *SessionOpts) {
		o.DelaySend = d
	}
}

func WithDelayReceive(d time.Duration) SessionOpt {
	return func(o *SessionOpts) {
		o.DelayReceive = d
	}
}

// WithStreamLSB makes command words go least significant byte first.
func WithStreamLSB() SessionOpt {
	return func(o *SessionOpts) {
		o.StreamLSB = true
	}
}

// WithStreamBytesAll makes command words always take two bytes, even when
// the leading one is zero.
func WithStreamBytesAll() SessionOpt {
	return func(o *SessionOpts) {
		o.StreamBytesAll = true
	}
}

func WithLogger(l *slog.Logger) SessionOpt {
	return func(o *SessionOpts) {
		o.Logger = l
	}
}

func WithTimeSource(t TimeSource) SessionOpt {
	return func(o *SessionOpts) {
		o.Time = t
	}
}

// Session holds the bus status of one peer conversation over a Driver.
// Several sessions may share a driver. A session is not safe for
// concurrent use.
type Session struct {
	driver Driver
	log    *slog.Logger
	time   TimeSource

	address     byte
	clock       physic.Frequency
	stop        bool
	pinSDA      uint8
	pinSCL      uint8
	lastResult  ResultCode
	lastCommand uint16
	busEnabled  bool

	delaySend    time.Duration
	delayReceive time.Duration
	lastSend     time.Time
	lastReceive  time.Time

	streamLSB bool
	streamAll bool
}

// BusStatus is a snapshot of the session state.
type BusStatus struct {
	Address      string        `yaml:"address"`
	Clock        string        `yaml:"clock"`
	Stop         bool          `yaml:"stop"`
	PinSDA       uint8         `yaml:"pin_sda"`
	PinSCL       uint8         `yaml:"pin_scl"`
	LastResult   string        `yaml:"last_result"`
	LastCommand  string        `yaml:"last_command"`
	DelaySend    time.Duration `yaml:"delay_send"`
	DelayReceive time.Duration `yaml:"delay_receive"`
	BusEnabled   bool          `yaml:"bus_enabled"`
	Family       string        `yaml:"family"`
	BufferSize   int           `yaml:"buffer_size"`
}

func New(driver Driver, opts ...SessionOpt) *Session {
	config := SessionOpts{
		Clock:  ClockStandard,
		PinSDA: 4,
		PinSCL: 5,
		Stop:   true,
		Logger: slog.Default(),
		Time:   systemTime{},
	}
	for _, opt := range opts {
		opt(&config)
	}
	s := &Session{
		driver:       driver,
		log:          config.Logger,
		time:         config.Time,
		address:      AddressNone,
		clock:        NormalizeClock(config.Clock),
		stop:         config.Stop,
		delaySend:    config.DelaySend,
		delayReceive: config.DelayReceive,
		streamLSB:    config.StreamLSB,
		streamAll:    config.StreamBytesAll,
	}
	_ = s.SetPins(config.PinSDA, config.PinSCL)
	return s
}

// Open starts the peripheral if it is not running yet and applies the
// configured clock.
func (s *Session) Open() error {
	return s.initBus()
}

// Close releases the peripheral; its pins return to general purpose use.
func (s *Session) Close() {
	s.driver.End()
	s.busEnabled = false
}

func (s *Session) initBus() error {
	s.resetResult()
	if !s.busEnabled {
		if pm, ok := s.driver.(PinMapper); ok {
			if s.pinSDA == s.pinSCL {
				return s.setLastResult(ErrorPins)
			}
			if err := pm.SetPins(s.pinSDA, s.pinSCL); err != nil {
				s.log.Debug("could not assign bus pins", "sda", s.pinSDA, "scl", s.pinSCL, "error", err)
				return s.setLastResult(ErrorPins)
			}
		}
		if err := s.driver.Begin(); err != nil {
			code := ResultOf(err)
			s.setLastResult(code)
			if errors.Is(err, code) {
				return fmt.Errorf("could not start bus: %w", err)
			}
			return fmt.Errorf("could not start bus: %w: %w", code, err)
		}
		s.busEnabled = true
	}
	if err := s.driver.SetClock(s.clock); err != nil {
		s.log.Warn("could not set bus clock", "clock", s.clock, "error", err)
	}
	return nil
}

// SetAddress selects the peer and probes it with an empty transmission
// unless addr is already selected.
func (s *Session) SetAddress(addr byte) error {
	s.resetResult()
	if !ValidAddress(addr) {
		return s.setLastResult(ErrorAddress)
	}
	if addr == s.address {
		return nil
	}
	s.address = addr
	// a held bus has to be released before talking to another peer
	if !s.stop && s.busEnabled {
		s.Close()
	}
	if err := s.initBus(); err != nil {
		return err
	}
	s.driver.BeginTransmission(s.address)
	code := ResultCode(s.driver.EndTransmission(s.stop))
	s.log.Debug("address probed", "address", fmt.Sprintf("%#02x", addr), "result", code)
	return s.setLastResult(code)
}

// RegisterAddress validates and stores addr without touching the bus.
func (s *Session) RegisterAddress(addr byte) error {
	s.resetResult()
	if !ValidAddress(addr) {
		return s.setLastResult(ErrorAddress)
	}
	s.address = addr
	return nil
}

// SetClock stores the bus speed for the next Open; unsupported values
// fall back to ClockStandard.
func (s *Session) SetClock(f physic.Frequency) {
	s.clock = NormalizeClock(f)
}

func (s *Session) SetPins(sda, scl uint8) error {
	s.pinSDA = sda
	s.pinSCL = scl
	s.resetResult()
	if sda == scl {
		return s.setLastResult(ErrorPins)
	}
	return nil
}

func (s *Session) SetStop(stop bool) {
	s.stop = stop
}

func (s *Session) SetDelaySend(d time.Duration) {
	s.delaySend = d
}

func (s *Session) SetDelayReceive(d time.Duration) {
	s.delayReceive = d
}

func (s *Session) SetStreamLSB(lsb bool) {
	s.streamLSB = lsb
}

func (s *Session) SetStreamBytesAll(all bool) {
	s.streamAll = all
}

// LastResult returns the outcome of the recent operation. Reading an error
// switches the session to releasing the bus.
func (s *Session) LastResult() ResultCode {
	if s.lastResult != Success {
		s.stop = true
	}
	return s.lastResult
}

func (s *Session) IsSuccess() bool { return s.lastResult == Success }
func (s *Session) IsError() bool   { return !s.IsSuccess() }

func (s *Session) Address() byte               { return s.address }
func (s *Session) Clock() physic.Frequency     { return s.clock }
func (s *Session) Stop() bool                  { return s.stop }
func (s *Session) PinSDA() uint8               { return s.pinSDA }
func (s *Session) PinSCL() uint8               { return s.pinSCL }
func (s *Session) LastCommand() uint16         { return s.lastCommand }
func (s *Session) DelaySend() time.Duration    { return s.delaySend }
func (s *Session) DelayReceive() time.Duration { return s.delayReceive }
func (s *Session) BusEnabled() bool            { return s.busEnabled }
func (s *Session) Family() Family              { return s.driver.Family() }
func (s *Session) BufferSize() int             { return s.driver.BufferSize() }
func (s *Session) StreamLSB() bool             { return s.streamLSB }
func (s *Session) StreamBytesAll() bool        { return s.streamAll }

// LastErrorText renders the recent result for diagnostics, prefixed with
// location.
func (s *Session) LastErrorText(location string) string {
	code := s.LastResult()
	if code == Success {
		return location + "::SUCCESS"
	}
	return fmt.Sprintf("%s::Error: %s (%d), Command: 0x%X", location, s.codeName(code), uint8(code), s.lastCommand)
}

func (s *Session) Status() BusStatus {
	return BusStatus{
		Address:      fmt.Sprintf("%#02x", s.address),
		Clock:        s.clock.String(),
		Stop:         s.stop,
		PinSDA:       s.pinSDA,
		PinSCL:       s.pinSCL,
		LastResult:   s.codeName(s.lastResult),
		LastCommand:  fmt.Sprintf("%#04x", s.lastCommand),
		DelaySend:    s.delaySend,
		DelayReceive: s.delayReceive,
		BusEnabled:   s.busEnabled,
		Family:       s.driver.Family().String(),
		BufferSize:   s.driver.BufferSize(),
	}
}

func (s *Session) codeName(code ResultCode) string {
	return s.driver.Family().CodeName(code)
}

// resetResult clears the recent result. A pending error leaves the session
// releasing the bus.
func (s *Session) resetResult() {
	if s.lastResult != Success {
		s.stop = true
	}
	s.lastResult = Success
}

func (s *Session) setLastResult(code ResultCode) error {
	if code != Success {
		s.stop = true
	}
	s.lastResult = code
	return code.Err()
}

// settle blocks until delay has passed since last.
func (s *Session) settle(last time.Time, delay time.Duration) {
	if delay <= 0 || last.IsZero() {
		return
	}
	if wait := delay - s.time.Now().Sub(last); wait > 0 {
		s.time.Sleep(wait)
	}
}
