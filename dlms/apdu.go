package dlms

import (
	"fmt"
)

// APDU is a decoded application protocol data unit.
type APDU interface {
	apduTag() uint8
}

// DataNotification is pushed by the meter without a request.
type DataNotification struct {
	InvokeID uint32
	// DateTime is nil if the meter sent none
	DateTime *DateTime
	Body     Data
}

// GeneralGloCiphering wraps another APDU encrypted with the global unicast key.
type GeneralGloCiphering struct {
	SystemTitle       []byte
	SecurityControl   uint8
	InvocationCounter uint32
	// Ciphertext includes the authentication tag, if any
	Ciphertext []byte
}

// Unsupported holds APDU kinds that are not decoded any further.
type Unsupported struct {
	Tag uint8
	Raw []byte
}

func (*DataNotification) apduTag() uint8    { return tagDataNotification }
func (*GeneralGloCiphering) apduTag() uint8 { return tagGeneralGloCiphering }
func (u *Unsupported) apduTag() uint8       { return u.Tag }

// ParseAPDU decodes a plaintext APDU. Ciphered APDUs are returned as their
// envelope, see Cipher.Decrypt.
func ParseAPDU(data []byte) (APDU, error) {
	buf := NewBuffer(data)

	var tag uint8
	if err := buf.ReadRaw(&tag); err != nil {
		return nil, err
	}

	var (
		a   APDU
		err error
	)
	switch tag {
	case tagDataNotification:
		a, err = parseDataNotification(buf)
	case tagGeneralGloCiphering:
		a, err = parseGeneralGloCiphering(buf)
	default:
		return &Unsupported{Tag: tag, Raw: data}, nil
	}
	if err != nil {
		return nil, err
	}

	if buf.Len() > 0 {
		return nil, fmt.Errorf("%d bytes after apdu: %w", buf.Len(), ErrTrailingData)
	}
	return a, nil
}

func parseDataNotification(buf *Buffer) (*DataNotification, error) {
	n := &DataNotification{}
	if err := buf.ReadRaw(&n.InvokeID); err != nil {
		return nil, err
	}

	// The optional date-time is usually just length prefixed, but some
	// meters send it as a tagged octet-string
	var marker uint8
	if err := buf.ReadRaw(&marker); err != nil {
		return nil, err
	}
	var ts []byte
	switch marker {
	case 0x00:
	case dateTimeLength:
		var err error
		if ts, err = buf.ReadBytes(dateTimeLength); err != nil {
			return nil, err
		}
	case uint8(TagOctetString):
		var err error
		if ts, err = buf.ReadOctetString(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("date-time marker 0x%02x: %w", marker, ErrInvalidFormat)
	}
	if ts != nil {
		dt, err := parseDateTime(ts)
		if err != nil {
			return nil, err
		}
		n.DateTime = &dt
	}

	body, err := buf.ReadData()
	if err != nil {
		return nil, err
	}
	n.Body = body
	return n, nil
}

func parseGeneralGloCiphering(buf *Buffer) (*GeneralGloCiphering, error) {
	g := &GeneralGloCiphering{}

	title, err := buf.ReadOctetString()
	if err != nil {
		return nil, err
	}
	g.SystemTitle = title

	length, err := buf.ReadLength()
	if err != nil {
		return nil, err
	}
	// security control + invocation counter
	if length < 5 {
		return nil, fmt.Errorf("ciphered length %d: %w", length, ErrInvalidFormat)
	}
	content, err := buf.ReadBytes(length)
	if err != nil {
		return nil, err
	}

	c := NewBuffer(content)
	if err := c.ReadRaw(&g.SecurityControl, &g.InvocationCounter); err != nil {
		return nil, err
	}
	g.Ciphertext = []byte(*c)
	return g, nil
}

// Encode serializes the envelope. It is the inverse of ParseAPDU.
func (g *GeneralGloCiphering) Encode() []byte {
	out := []byte{tagGeneralGloCiphering}
	out = appendLength(out, len(g.SystemTitle))
	out = append(out, g.SystemTitle...)
	out = appendLength(out, 5+len(g.Ciphertext))
	out = append(out, g.SecurityControl)
	out = order.AppendUint32(out, g.InvocationCounter)
	return append(out, g.Ciphertext...)
}

func appendLength(out []byte, n int) []byte {
	switch {
	case n < 0x80:
		return append(out, byte(n))
	case n <= 0xff:
		return append(out, 0x81, byte(n))
	default:
		return append(out, 0x82, byte(n>>8), byte(n))
	}
}
