package dlms

import (
	"encoding/binary"
	"math"
)

type Buffer []byte

func NewBuffer(data []byte) *Buffer {
	buf := Buffer(data)
	return &buf
}

var (
	order = binary.BigEndian
)

func (b *Buffer) Len() int {
	return len(*b)
}

func (b *Buffer) need(n int) error {
	if n < 0 {
		return ErrInvalidFormat
	}
	if len(*b) < n {
		return &IncompleteError{Needed: n - len(*b)}
	}
	return nil
}

// ReadRaw reads fixed size big-endian values without type tags.
func (b *Buffer) ReadRaw(tv ...interface{}) error {
	for _, t := range tv {
		switch v := t.(type) {
		case *uint8:
			if err := b.need(1); err != nil {
				return err
			}
			*v = (*b)[0]
			*b = (*b)[1:]
		case *int8:
			if err := b.need(1); err != nil {
				return err
			}
			*v = int8((*b)[0])
			*b = (*b)[1:]
		case *uint16:
			if err := b.need(2); err != nil {
				return err
			}
			*v = order.Uint16((*b)[0:2])
			*b = (*b)[2:]
		case *int16:
			if err := b.need(2); err != nil {
				return err
			}
			*v = int16(order.Uint16((*b)[0:2]))
			*b = (*b)[2:]
		case *uint32:
			if err := b.need(4); err != nil {
				return err
			}
			*v = order.Uint32((*b)[0:4])
			*b = (*b)[4:]
		case *int32:
			if err := b.need(4); err != nil {
				return err
			}
			*v = int32(order.Uint32((*b)[0:4]))
			*b = (*b)[4:]
		case *uint64:
			if err := b.need(8); err != nil {
				return err
			}
			*v = order.Uint64((*b)[0:8])
			*b = (*b)[8:]
		case *int64:
			if err := b.need(8); err != nil {
				return err
			}
			*v = int64(order.Uint64((*b)[0:8]))
			*b = (*b)[8:]
		case *float32:
			if err := b.need(4); err != nil {
				return err
			}
			*v = math.Float32frombits(order.Uint32((*b)[0:4]))
			*b = (*b)[4:]
		case *float64:
			if err := b.need(8); err != nil {
				return err
			}
			*v = math.Float64frombits(order.Uint64((*b)[0:8]))
			*b = (*b)[8:]
		case []byte:
			if err := b.need(len(v)); err != nil {
				return err
			}
			copy(v, *b)
			*b = (*b)[len(v):]
		default:
			return ErrUnsupportedType
		}
	}
	return nil
}

// ReadLength reads an A-XDR length: a single byte below 0x80, otherwise
// 0x80 | n followed by n big-endian length bytes.
func (b *Buffer) ReadLength() (int, error) {
	var first uint8
	if err := b.ReadRaw(&first); err != nil {
		return 0, err
	}
	if first < 0x80 {
		return int(first), nil
	}
	n := int(first & 0x7f)
	if n == 0 || n > 4 {
		return 0, ErrInvalidFormat
	}
	if err := b.need(n); err != nil {
		return 0, err
	}
	length := 0
	for _, c := range (*b)[:n] {
		length = length<<8 | int(c)
	}
	*b = (*b)[n:]
	if length < 0 {
		return 0, ErrInvalidFormat
	}
	return length, nil
}

// ReadBytes returns the next n bytes. The result aliases the buffer.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if err := b.need(n); err != nil {
		return nil, err
	}
	out := (*b)[:n:n]
	*b = (*b)[n:]
	return out, nil
}

// ReadOctetString reads a length prefixed byte string.
func (b *Buffer) ReadOctetString() ([]byte, error) {
	n, err := b.ReadLength()
	if err != nil {
		return nil, err
	}
	return b.ReadBytes(n)
}
