package twowire

import "fmt"

// Prefix is written ahead of the data of every page, or of the first page
// only when Once is set.
type Prefix struct {
	Bytes   []byte
	Reverse bool
	Once    bool
}

// cursor walks a buffer forwards or backwards.
type cursor struct {
	buf     []byte
	reverse bool
	pos     int
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) next() byte {
	i := c.pos
	if c.reverse {
		i = len(c.buf) - 1 - c.pos
	}
	c.pos++
	return c.buf[i]
}

// beginTransfer prepares the bus for a transaction with the selected peer.
func (s *Session) beginTransfer() error {
	if err := s.initBus(); err != nil {
		return err
	}
	if !ValidAddress(s.address) {
		return s.setLastResult(ErrorAddress)
	}
	return nil
}

// Send writes data to the peer as one logical transmission split into pages
// of the driver buffer size. All pages but the last end with repeated start;
// the last one follows the session policy. With reverse the buffer goes out
// from its last byte to its first.
func (s *Session) Send(data []byte, reverse bool) error {
	return s.SendPrefixed(data, reverse, Prefix{})
}

// SendPrefixed works as Send with prefix written ahead of every page, or
// ahead of the first page only for a one time prefix. Prefix bytes count
// against the page size.
func (s *Session) SendPrefixed(data []byte, reverse bool, prefix Prefix) error {
	s.resetResult()
	stop := s.stop
	defer func() {
		s.stop = stop
	}()
	if err := s.beginTransfer(); err != nil {
		return err
	}
	page := s.driver.BufferSize()
	// a repeated prefix is only written whole, so it has to leave room for data
	once := prefix.Once || len(data) == 0
	if !once && len(prefix.Bytes) >= page {
		return s.setLastResult(ErrorPosition)
	}
	if len(data)+len(prefix.Bytes) == 0 {
		return nil
	}
	d := cursor{buf: data, reverse: reverse}
	p := cursor{buf: prefix.Bytes, reverse: prefix.Reverse}
	for n := 1; ; n++ {
		s.settle(s.lastSend, s.delaySend)
		if !once {
			p.pos = 0
		}
		s.driver.BeginTransmission(s.address)
		room := page
		for ; room > 0 && p.remaining() > 0; room-- {
			s.driver.PutByte(p.next())
		}
		for ; room > 0 && d.remaining() > 0; room-- {
			s.driver.PutByte(d.next())
		}
		last := d.remaining() == 0 && p.remaining() == 0
		s.stop = last && stop
		code := ResultCode(s.driver.EndTransmission(s.stop))
		s.lastSend = s.time.Now()
		s.log.Debug("page sent", "address", fmt.Sprintf("%#02x", s.address), "page", n, "bytes", page-room, "stop", s.stop, "result", code)
		if code != Success {
			return s.setLastResult(code)
		}
		if last {
			return nil
		}
	}
}

// Receive fills buf from the peer in pages of the driver buffer size. A page
// delivering fewer bytes than requested fails the whole transfer with
// ErrorReceiveData; bytes of earlier pages stay in buf. With reverse the
// received stream is stored from the last byte of buf to the first.
func (s *Session) Receive(buf []byte, reverse bool) error {
	s.resetResult()
	stop := s.stop
	defer func() {
		s.stop = stop
	}()
	if err := s.beginTransfer(); err != nil {
		return err
	}
	page := s.driver.BufferSize()
	for pos, n := 0, 1; pos < len(buf); n++ {
		s.settle(s.lastReceive, s.delayReceive)
		size := min(page, len(buf)-pos)
		s.stop = pos+size == len(buf) && stop
		got := s.driver.RequestFrom(s.address, size, s.stop)
		s.lastReceive = s.time.Now()
		s.log.Debug("page requested", "address", fmt.Sprintf("%#02x", s.address), "page", n, "requested", size, "received", got, "stop", s.stop)
		if got < size || s.driver.Available() < size {
			return s.setLastResult(ErrorReceiveData)
		}
		for i := 0; i < size; i++ {
			idx := pos + i
			if reverse {
				idx = len(buf) - 1 - idx
			}
			buf[idx] = s.driver.GetByte()
		}
		pos += size
	}
	return nil
}

// ReceiveCommand sends command with repeated start and then reads buf in
// the same logical transaction. The read is skipped when the command fails.
func (s *Session) ReceiveCommand(command uint16, buf []byte, reverse bool) error {
	s.resetResult()
	stop := s.stop
	s.stop = false
	err := s.SendCommand(command)
	s.stop = stop
	if err != nil {
		return err
	}
	return s.Receive(buf, reverse)
}

// BusGeneralReset sends the reset command to the general call address so
// every compliant peer on the bus resets.
func (s *Session) BusGeneralReset() error {
	if err := s.initBus(); err != nil {
		return err
	}
	s.driver.BeginTransmission(AddressGeneralCall)
	s.driver.PutByte(GeneralCallReset)
	code := ResultCode(s.driver.EndTransmission(s.stop))
	s.lastSend = s.time.Now()
	s.log.Debug("general call reset", "result", code)
	return s.setLastResult(code)
}
