package dlms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNotification = []byte{
	0x0f,                   // data-notification
	0x40, 0x00, 0x00, 0x00, // invoke id
	0x09, 0x0c, // date-time as octet-string
	0x07, 0xe4, 0x08, 0x14, 0x04, 0x0b, 0x1b, 0x0f, 0xff, 0x80, 0x00, 0x00,
	0x02, 0x0b, // structure of 11
	0x09, 0x07, 'K', 'F', 'M', '_', '0', '0', '1',
	0x09, 0x08, 'M', 'A', '3', '0', '4', 'H', '4', 'D',
	0x06, 0x01, 0xe7, 0xbc, 0xb1, // A+
	0x06, 0x00, 0x86, 0x97, 0xef, // A-
	0x06, 0x00, 0x01, 0x3e, 0x98, // R+
	0x06, 0x00, 0x49, 0x14, 0x1b, // R-
	0x06, 0x00, 0x00, 0x00, 0x00, // P+
	0x06, 0x00, 0x00, 0x0a, 0xa9, // P-
	0x12, 0x09, 0x16, // voltage
	0x10, 0xff, 0x38, // signed power factor
	0x16, 0x02, // enum
}

func TestParseDataNotification(t *testing.T) {
	a, err := ParseAPDU(testNotification)
	require.NoError(t, err)

	n, ok := a.(*DataNotification)
	require.True(t, ok, "got %T", a)
	assert.Equal(t, uint32(0x40000000), n.InvokeID)

	require.NotNil(t, n.DateTime)
	assert.Equal(t, uint16(2020), n.DateTime.Year)
	assert.Equal(t, uint8(4), n.DateTime.Weekday)
	assert.Equal(t, int16(deviationUnspecified), n.DateTime.Deviation)

	cest := time.FixedZone("CEST", 2*60*60)
	want, _ := time.Parse(time.RFC3339, "2020-08-20T11:27:15+02:00")
	assert.True(t, want.Equal(n.DateTime.Time(cest)))

	body, ok := n.Body.(Structure)
	require.True(t, ok, "got %T", n.Body)
	require.Len(t, body, 11)
	assert.Equal(t, OctetString("KFM_001"), body[0])
	assert.Equal(t, DoubleLongUnsigned(0x01e7bcb1), body[2])
	assert.Equal(t, DoubleLongUnsigned(2729), body[7])
	assert.Equal(t, LongUnsigned(2326), body[8])
	assert.Equal(t, Long(-200), body[9])
	assert.Equal(t, Enum(2), body[10])
}

func TestParseDataNotificationDateTime(t *testing.T) {
	ts := []byte{0x07, 0xe8, 0x06, 0x01, 0x06, 0x0c, 0x00, 0x00, 0x00, 0xff, 0xc4, 0x80}

	t.Run("absent", func(t *testing.T) {
		a, err := ParseAPDU([]byte{0x0f, 0, 0, 0, 1, 0x00, 0x06, 0, 0, 0, 5})
		require.NoError(t, err)
		n := a.(*DataNotification)
		assert.Nil(t, n.DateTime)
		assert.Equal(t, DoubleLongUnsigned(5), n.Body)
	})

	t.Run("length prefixed", func(t *testing.T) {
		in := append([]byte{0x0f, 0, 0, 0, 1, 0x0c}, ts...)
		in = append(in, 0x00)
		a, err := ParseAPDU(in)
		require.NoError(t, err)
		n := a.(*DataNotification)
		require.NotNil(t, n.DateTime)
		assert.Equal(t, int16(-60), n.DateTime.Deviation)
		assert.Equal(t, uint8(0x80), n.DateTime.Status)
		assert.Equal(t, Null{}, n.Body)

		// Deviation -60 is one hour ahead of UTC
		assert.Equal(t, "2024-06-01T12:00:00+01:00", n.DateTime.Time(time.UTC).Format(time.RFC3339))
	})

	t.Run("bad marker", func(t *testing.T) {
		_, err := ParseAPDU([]byte{0x0f, 0, 0, 0, 1, 0x05, 0x00})
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := ParseAPDU([]byte{0x0f, 0, 0, 0, 1, 0x09, 0x02, 0x07, 0xe8, 0x00})
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})
}

func TestParseAPDUIncomplete(t *testing.T) {
	for i := 1; i < len(testNotification); i++ {
		_, err := ParseAPDU(testNotification[:i])
		var ierr *IncompleteError
		assert.ErrorAs(t, err, &ierr, "prefix of %d bytes", i)
	}

	_, err := ParseAPDU(nil)
	var ierr *IncompleteError
	assert.ErrorAs(t, err, &ierr)
}

func TestParseAPDUTrailingData(t *testing.T) {
	_, err := ParseAPDU(append(append([]byte(nil), testNotification...), 0x00))
	assert.ErrorIs(t, err, ErrTrailingData)
}

func TestParseAPDUUnsupported(t *testing.T) {
	a, err := ParseAPDU([]byte{0xc4, 0x01, 0x81, 0x00})
	require.NoError(t, err)
	u, ok := a.(*Unsupported)
	require.True(t, ok)
	assert.Equal(t, uint8(0xc4), u.Tag)
	assert.Len(t, u.Raw, 4)
}

func TestGeneralGloCipheringEncode(t *testing.T) {
	g := &GeneralGloCiphering{
		SystemTitle:       []byte("KFM10200"),
		SecurityControl:   0x20,
		InvocationCounter: 0x01020304,
		Ciphertext:        make([]byte, 300),
	}
	enc := g.Encode()
	assert.Equal(t, []byte{0xdb, 0x08}, enc[:2])
	// Long content lengths use the 0x82 form
	assert.Equal(t, []byte{0x82, 0x01, 0x31, 0x20, 0x01, 0x02, 0x03, 0x04}, enc[10:18])

	a, err := ParseAPDU(enc)
	require.NoError(t, err)
	assert.Equal(t, g, a)
}

func TestParseGeneralGloCipheringShort(t *testing.T) {
	_, err := ParseAPDU([]byte{0xdb, 0x08, 'K', 'F', 'M', '1', '0', '2', '0', '0', 0x03, 0x20, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ParseAPDU([]byte{0xdb, 0x08, 'K', 'F', 'M', '1', '0', '2', '0', '0', 0x20, 0x20, 0x00})
	var ierr *IncompleteError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, 30, ierr.Needed)
}

func TestParseDataNotificationHugeBitString(t *testing.T) {
	in := []byte{0x0f, 0x00, 0x00, 0x00, 0x01, 0x00, 0x04, 0x84, 0x7f, 0xff, 0xff, 0xff}
	var err error
	assert.NotPanics(t, func() { _, err = ParseAPDU(in) })
	assert.Error(t, err)
}
