package twowire

import (
	"errors"
	"fmt"
)

// ResultCode is the normalized outcome of a bus operation. Values 1..5 are
// forwarded verbatim from the driver and read through its Family.
type ResultCode uint8

const (
	Success ResultCode = 0

	// FamilyWire driver codes
	ErrorBuffer    ResultCode = 1
	ErrorNackAddr  ResultCode = 2
	ErrorNackData  ResultCode = 3
	ErrorNackOther ResultCode = 4

	// FamilyParticle driver codes
	ErrorBusy     ResultCode = 1
	ErrorStart    ResultCode = 2
	ErrorEnd      ResultCode = 3
	ErrorTransfer ResultCode = 4
	ErrorTimeout  ResultCode = 5

	ErrorAddress     ResultCode = 246
	ErrorRegister    ResultCode = 247
	ErrorMeasure     ResultCode = 248
	ErrorSN          ResultCode = 249
	ErrorFirmware    ResultCode = 250
	ErrorReset       ResultCode = 251
	ErrorDevice      ResultCode = 252
	ErrorPosition    ResultCode = 253
	ErrorReceiveData ResultCode = 254
	ErrorPins        ResultCode = 255
)

var resultNames = map[ResultCode]string{
	Success:          "SUCCESS",
	ErrorAddress:     "ERROR_ADDRESS",
	ErrorRegister:    "ERROR_REGISTER",
	ErrorMeasure:     "ERROR_MEASURE",
	ErrorSN:          "ERROR_SN",
	ErrorFirmware:    "ERROR_FIRMWARE",
	ErrorReset:       "ERROR_RESET",
	ErrorDevice:      "ERROR_DEVICE",
	ErrorPosition:    "ERROR_POSITION",
	ErrorReceiveData: "ERROR_RCV_DATA",
	ErrorPins:        "ERROR_PINS",
}

// Family identifies the status code table of a driver.
type Family uint8

const (
	// FamilyWire covers AVR, ESP8266 and ESP32 Wire peripherals and the
	// transaction bus bridges.
	FamilyWire Family = iota
	FamilyParticle
)

var familyCodes = map[Family]map[ResultCode]string{
	FamilyWire: {
		ErrorBuffer:    "ERROR_BUFFER",
		ErrorNackAddr:  "ERROR_NACK_ADDR",
		ErrorNackData:  "ERROR_NACK_DATA",
		ErrorNackOther: "ERROR_NACK_OTHER",
	},
	FamilyParticle: {
		ErrorBusy:     "ERROR_BUSY",
		ErrorStart:    "ERROR_START",
		ErrorEnd:      "ERROR_END",
		ErrorTransfer: "ERROR_TRANSFER",
		ErrorTimeout:  "ERROR_TIMEOUT",
	},
}

func (f Family) String() string {
	switch f {
	case FamilyWire:
		return "wire"
	case FamilyParticle:
		return "particle"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

// CodeName renders code with the names of the family's driver subrange.
func (f Family) CodeName(code ResultCode) string {
	if name, ok := resultNames[code]; ok {
		return name
	}
	if name, ok := familyCodes[f][code]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_UNKNOWN_%d", uint8(code))
}

// NackAddress is the native status a driver of this family reports when
// nobody answers its address.
func (f Family) NackAddress() uint8 {
	if f == FamilyParticle {
		return uint8(ErrorStart)
	}
	return uint8(ErrorNackAddr)
}

// String uses the FamilyWire table for driver codes.
func (c ResultCode) String() string {
	return FamilyWire.CodeName(c)
}

func (c ResultCode) Error() string {
	return fmt.Sprintf("twowire: %s (%d)", c.String(), uint8(c))
}

// Err returns nil for Success and the code itself otherwise.
func (c ResultCode) Err() error {
	if c == Success {
		return nil
	}
	return c
}

// IsConfiguration tells whether the code was raised before any bus access.
func (c ResultCode) IsConfiguration() bool {
	return c == ErrorAddress || c == ErrorPins || c == ErrorPosition
}

// ResultOf maps an error returned by this package back to its code. Errors
// of other origin map to ErrorNackOther.
func ResultOf(err error) ResultCode {
	if err == nil {
		return Success
	}
	var code ResultCode
	if errors.As(err, &code) {
		return code
	}
	return ErrorNackOther
}
