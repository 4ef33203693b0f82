package twowire

// appendWord puts word into buf according to the session stream mode. In
// value mode the leading byte is dropped when it is zero, so byte sized
// commands take a single byte on the wire.
func (s *Session) appendWord(buf []byte, word uint16) []byte {
	lsb := byte(word)
	msb := byte(word >> 8)
	if s.streamLSB {
		if s.streamAll || lsb != 0 {
			buf = append(buf, lsb)
		}
		return append(buf, msb)
	}
	if s.streamAll || msb != 0 {
		buf = append(buf, msb)
	}
	return append(buf, lsb)
}

// SendCommand sends a one or two byte command word in one transmission.
func (s *Session) SendCommand(command uint16) error {
	var buf [2]byte
	s.lastCommand = command
	return s.Send(s.appendWord(buf[:0], command), false)
}

// SendCommandData sends a command word followed by a data word in one
// transmission.
func (s *Session) SendCommandData(command, data uint16) error {
	var buf [4]byte
	s.lastCommand = command
	out := s.appendWord(buf[:0], command)
	return s.Send(s.appendWord(out, data), false)
}
