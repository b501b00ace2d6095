package hdlc

import (
	"fmt"
)

type Err string

func (e Err) Error() string {
	return string(e)
}

const (
	ErrInvalidStartCharacter = Err("invalid start character")
	ErrInvalidFormat         = Err("invalid frame format")
	ErrInvalidChecksum       = Err("invalid checksum")
	ErrInvalidAddress        = Err("invalid address")
	ErrInvalidLLCHeader      = Err("invalid llc header")

	// Each frame starts and ends with 0x7E
	frameTag uint8 = 0x7e

	// Upper half of the byte after frameTag is the frame format (type 3)
	frameFormatMask uint8 = 0xF0
	frameFormat     uint8 = 0xA0

	// Segmentation bit, set on all but the last frame of a segmented APDU
	frameSegmented uint8 = 0x08

	// The last three bits of same byte contains the upper bits
	// of the frame length
	frameLengthMask uint8 = 0b111

	// format(2) + destination(1) + source(1) + control(1) + FCS(2)
	minFrameLength = 7

	maxAddressLength = 4
)

// IncompleteError is returned when the buffer does not yet hold a full frame.
// Needed is the number of additional bytes required, or 0 if unknown.
type IncompleteError struct {
	Needed int
}

func (e *IncompleteError) Error() string {
	if e.Needed > 0 {
		return fmt.Sprintf("incomplete frame: need %d more bytes", e.Needed)
	}
	return "incomplete frame"
}

// ReadError wraps a failure of the underlying byte stream, including read timeouts.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading frame: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

type Frame struct {
	Format uint8
	// Segmented is set when the information field continues in the next frame
	Segmented   bool
	Destination []byte
	Source      []byte
	Control     uint8
	// Information aliases the reader buffer until Release is called
	Information []byte
}
