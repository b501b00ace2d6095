package hdlc

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
)

// CRC-16/X-25, used for both the header and the frame check sequence
var crcTable = crc16.MakeTable(crc16.Params{
	Poly:   0x1021,
	Init:   0xFFFF,
	RefIn:  true,
	RefOut: true,
	XorOut: 0xFFFF,
})

var llcHeaders = [][]byte{
	{0xe6, 0xe7, 0x00},
	{0xe6, 0xe6, 0x00},
}

func checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Parse tries to parse one frame from the start of buf. On success it returns
// the frame and the number of bytes it occupies in buf.
//
// If llc is set the information field must start with an LLC header, which is
// stripped from Frame.Information.
func Parse(buf []byte, llc bool) (*Frame, int, error) {
	if len(buf) < 1 {
		return nil, 0, &IncompleteError{Needed: 1}
	}
	if buf[0] != frameTag {
		return nil, 0, ErrInvalidStartCharacter
	}
	if len(buf) < 3 {
		return nil, 0, &IncompleteError{Needed: 3 - len(buf)}
	}
	if buf[1]&frameFormatMask != frameFormat {
		return nil, 0, ErrInvalidFormat
	}
	length := int(buf[1]&frameLengthMask)<<8 | int(buf[2])
	if length < minFrameLength {
		return nil, 0, ErrInvalidFormat
	}

	// length covers everything between the two flags
	total := length + 2
	if len(buf) < total {
		return nil, 0, &IncompleteError{Needed: total - len(buf)}
	}
	if buf[total-1] != frameTag {
		return nil, 0, ErrInvalidFormat
	}

	fcsStart := total - 3
	if checksum(buf[1:fcsStart]) != binary.LittleEndian.Uint16(buf[fcsStart:fcsStart+2]) {
		return nil, 0, ErrInvalidChecksum
	}

	fr := &Frame{
		Format:    buf[1] & frameFormatMask,
		Segmented: buf[1]&frameSegmented > 0,
	}

	off := 3
	var err error
	if fr.Destination, off, err = readAddress(buf, off, fcsStart); err != nil {
		return nil, 0, err
	}
	if fr.Source, off, err = readAddress(buf, off, fcsStart); err != nil {
		return nil, 0, err
	}
	if off >= fcsStart {
		return nil, 0, ErrInvalidFormat
	}
	fr.Control = buf[off]
	off++

	if off == fcsStart {
		// No information field, and therefore no header checksum
		return fr, total, nil
	}
	if off+2 > fcsStart {
		return nil, 0, ErrInvalidFormat
	}
	if checksum(buf[1:off]) != binary.LittleEndian.Uint16(buf[off:off+2]) {
		return nil, 0, ErrInvalidChecksum
	}
	off += 2

	info := buf[off:fcsStart]
	if llc {
		if info, err = stripLLC(info); err != nil {
			return nil, 0, err
		}
	}
	fr.Information = info
	return fr, total, nil
}

// readAddress reads an address field. The last byte of an address has its
// least significant bit set; valid lengths are 1, 2 and 4 bytes.
func readAddress(buf []byte, off, end int) ([]byte, int, error) {
	for i := off; i < end && i-off < maxAddressLength; i++ {
		if buf[i]&0x01 == 0 {
			continue
		}
		n := i - off + 1
		if n == 3 {
			return nil, off, ErrInvalidAddress
		}
		return buf[off : i+1], i + 1, nil
	}
	return nil, off, ErrInvalidAddress
}

func stripLLC(info []byte) ([]byte, error) {
	if len(info) < 3 {
		return nil, ErrInvalidLLCHeader
	}
	for _, h := range llcHeaders {
		if info[0] == h[0] && info[1] == h[1] && info[2] == h[2] {
			return info[3:], nil
		}
	}
	return nil, ErrInvalidLLCHeader
}

// Encode builds a frame around info. It is the inverse of Parse and is used by
// tests and tooling to produce well-formed input.
func Encode(dst, src []byte, control uint8, info []byte, segmented bool) []byte {
	length := 2 + len(dst) + len(src) + 1 + 2
	if len(info) > 0 {
		length += 2 + len(info)
	}

	out := make([]byte, 0, length+2)
	format := uint16(frameFormat)<<8 | uint16(length&0x7FF)
	if segmented {
		format |= uint16(frameSegmented) << 8
	}
	out = append(out, frameTag, byte(format>>8), byte(format))
	out = append(out, dst...)
	out = append(out, src...)
	out = append(out, control)
	if len(info) > 0 {
		out = binary.LittleEndian.AppendUint16(out, checksum(out[1:]))
		out = append(out, info...)
	}
	out = binary.LittleEndian.AppendUint16(out, checksum(out[1:]))
	return append(out, frameTag)
}
