package dlms

import (
	"fmt"
	"time"
)

type Tag uint8

const (
	TagNull               Tag = 0x00
	TagArray              Tag = 0x01
	TagStructure          Tag = 0x02
	TagBoolean            Tag = 0x03
	TagBitString          Tag = 0x04
	TagDoubleLong         Tag = 0x05
	TagDoubleLongUnsigned Tag = 0x06
	TagOctetString        Tag = 0x09
	TagVisibleString      Tag = 0x0a
	TagUTF8String         Tag = 0x0c
	TagBCD                Tag = 0x0d
	TagInteger            Tag = 0x0f
	TagLong               Tag = 0x10
	TagUnsigned           Tag = 0x11
	TagLongUnsigned       Tag = 0x12
	TagLong64             Tag = 0x14
	TagLong64Unsigned     Tag = 0x15
	TagEnum               Tag = 0x16
	TagFloat32            Tag = 0x17
	TagFloat64            Tag = 0x18
	TagDateTime           Tag = 0x19
	TagDate               Tag = 0x1a
	TagTime               Tag = 0x1b
)

// Data is a typed A-XDR value. The concrete type identifies the kind.
type Data interface {
	Tag() Tag
}

type (
	Null               struct{}
	Array              []Data
	Structure          []Data
	Boolean            bool
	DoubleLong         int32
	DoubleLongUnsigned uint32
	OctetString        []byte
	VisibleString      string
	UTF8String         string
	BCD                int8
	Integer            int8
	Long               int16
	Unsigned           uint8
	LongUnsigned       uint16
	Long64             int64
	Long64Unsigned     uint64
	Enum               uint8
	Float32            float32
	Float64            float64
	Date               [5]byte
	Time               [4]byte
)

func (Null) Tag() Tag               { return TagNull }
func (Array) Tag() Tag              { return TagArray }
func (Structure) Tag() Tag          { return TagStructure }
func (Boolean) Tag() Tag            { return TagBoolean }
func (BitString) Tag() Tag          { return TagBitString }
func (DoubleLong) Tag() Tag         { return TagDoubleLong }
func (DoubleLongUnsigned) Tag() Tag { return TagDoubleLongUnsigned }
func (OctetString) Tag() Tag        { return TagOctetString }
func (VisibleString) Tag() Tag      { return TagVisibleString }
func (UTF8String) Tag() Tag         { return TagUTF8String }
func (BCD) Tag() Tag                { return TagBCD }
func (Integer) Tag() Tag            { return TagInteger }
func (Long) Tag() Tag               { return TagLong }
func (Unsigned) Tag() Tag           { return TagUnsigned }
func (LongUnsigned) Tag() Tag       { return TagLongUnsigned }
func (Long64) Tag() Tag             { return TagLong64 }
func (Long64Unsigned) Tag() Tag     { return TagLong64Unsigned }
func (Enum) Tag() Tag               { return TagEnum }
func (Float32) Tag() Tag            { return TagFloat32 }
func (Float64) Tag() Tag            { return TagFloat64 }
func (DateTime) Tag() Tag           { return TagDateTime }
func (Date) Tag() Tag               { return TagDate }
func (Time) Tag() Tag               { return TagTime }

type BitString struct {
	Bits  int
	Bytes []byte
}

const dateTimeLength = 12

// DateTime is the 12 byte COSEM date-time.
type DateTime struct {
	Year       uint16
	Month      uint8
	Day        uint8
	Weekday    uint8
	Hour       uint8
	Minute     uint8
	Second     uint8
	Hundredths uint8
	// Deviation is UTC minus local time in minutes, -0x8000 if not specified
	Deviation int16
	Status    uint8
}

const deviationUnspecified = -0x8000

func parseDateTime(data []byte) (DateTime, error) {
	if len(data) != dateTimeLength {
		return DateTime{}, fmt.Errorf("date-time of %d bytes: %w", len(data), ErrInvalidFormat)
	}
	var dt DateTime
	err := NewBuffer(data).ReadRaw(
		&dt.Year,
		&dt.Month,
		&dt.Day,
		&dt.Weekday,
		&dt.Hour,
		&dt.Minute,
		&dt.Second,
		&dt.Hundredths,
		&dt.Deviation,
		&dt.Status,
	)
	return dt, err
}

// Time converts to a time.Time. Without a deviation the time is interpreted in loc.
func (dt DateTime) Time(loc *time.Location) time.Time {
	nsec := 0
	if dt.Hundredths != 0xff {
		nsec = int(dt.Hundredths) * int(10*time.Millisecond)
	}
	if dt.Deviation != deviationUnspecified {
		loc = time.FixedZone("", -int(dt.Deviation)*60)
	}
	return time.Date(
		int(dt.Year),
		time.Month(dt.Month),
		int(dt.Day),
		int(dt.Hour),
		int(dt.Minute),
		int(dt.Second),
		nsec,
		loc,
	)
}

// ReadData reads one tagged value.
func (b *Buffer) ReadData() (Data, error) {
	return b.readData(0)
}

func (b *Buffer) readData(depth int) (Data, error) {
	if depth > maxNesting {
		return nil, ErrNestingTooDeep
	}
	var tag uint8
	if err := b.ReadRaw(&tag); err != nil {
		return nil, err
	}

	switch Tag(tag) {
	case TagNull:
		return Null{}, nil
	case TagArray, TagStructure:
		n, err := b.ReadLength()
		if err != nil {
			return nil, err
		}
		// Every element takes at least one byte
		if err := b.need(n); err != nil {
			return nil, err
		}
		items := make([]Data, 0, n)
		for i := 0; i < n; i++ {
			d, err := b.readData(depth + 1)
			if err != nil {
				return nil, err
			}
			items = append(items, d)
		}
		if Tag(tag) == TagArray {
			return Array(items), nil
		}
		return Structure(items), nil
	case TagBoolean:
		var v uint8
		err := b.ReadRaw(&v)
		return Boolean(v != 0), err
	case TagBitString:
		bits, err := b.ReadLength()
		if err != nil {
			return nil, err
		}
		n := bits / 8
		if bits%8 != 0 {
			n++
		}
		data, err := b.ReadBytes(n)
		return BitString{Bits: bits, Bytes: data}, err
	case TagDoubleLong:
		var v int32
		err := b.ReadRaw(&v)
		return DoubleLong(v), err
	case TagDoubleLongUnsigned:
		var v uint32
		err := b.ReadRaw(&v)
		return DoubleLongUnsigned(v), err
	case TagOctetString:
		data, err := b.ReadOctetString()
		return OctetString(data), err
	case TagVisibleString:
		data, err := b.ReadOctetString()
		return VisibleString(data), err
	case TagUTF8String:
		data, err := b.ReadOctetString()
		return UTF8String(data), err
	case TagBCD:
		var v int8
		err := b.ReadRaw(&v)
		return BCD(v), err
	case TagInteger:
		var v int8
		err := b.ReadRaw(&v)
		return Integer(v), err
	case TagLong:
		var v int16
		err := b.ReadRaw(&v)
		return Long(v), err
	case TagUnsigned:
		var v uint8
		err := b.ReadRaw(&v)
		return Unsigned(v), err
	case TagLongUnsigned:
		var v uint16
		err := b.ReadRaw(&v)
		return LongUnsigned(v), err
	case TagLong64:
		var v int64
		err := b.ReadRaw(&v)
		return Long64(v), err
	case TagLong64Unsigned:
		var v uint64
		err := b.ReadRaw(&v)
		return Long64Unsigned(v), err
	case TagEnum:
		var v uint8
		err := b.ReadRaw(&v)
		return Enum(v), err
	case TagFloat32:
		var v float32
		err := b.ReadRaw(&v)
		return Float32(v), err
	case TagFloat64:
		var v float64
		err := b.ReadRaw(&v)
		return Float64(v), err
	case TagDateTime:
		data, err := b.ReadBytes(dateTimeLength)
		if err != nil {
			return nil, err
		}
		return parseDateTime(data)
	case TagDate:
		var v Date
		err := b.ReadRaw(v[:])
		return v, err
	case TagTime:
		var v Time
		err := b.ReadRaw(v[:])
		return v, err
	default:
		return nil, fmt.Errorf("data tag 0x%02x: %w", tag, ErrUnsupportedType)
	}
}
