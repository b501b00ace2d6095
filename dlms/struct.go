package dlms

import (
	"fmt"
)

type Err string

func (e Err) Error() string {
	return string(e)
}

const (
	ErrUnsupportedType     = Err("unsupported type")
	ErrInvalidFormat       = Err("invalid format")
	ErrTrailingData        = Err("trailing data")
	ErrNestingTooDeep      = Err("data nested too deep")
	ErrNotCiphered         = Err("apdu is not ciphered")
	ErrUnsupportedSecurity = Err("unsupported security control")
	ErrAuthKeyRequired     = Err("authenticated apdu needs an authentication key")
	ErrAuthentication      = Err("apdu authentication failed")
	ErrInvalidKey          = Err("invalid key")

	tagDataNotification    uint8 = 0x0f
	tagGeneralGloCiphering uint8 = 0xdb

	securityAuthenticated uint8 = 0x10
	securityEncrypted     uint8 = 0x20
	securityCompressed    uint8 = 0x80

	// Security suite 0 uses a truncated GCM tag
	authTagSize = 12

	systemTitleLength = 8

	maxNesting = 16
)

// IncompleteError is returned when the input ends before a value is complete.
// Needed is a lower bound of the missing bytes, or 0 if unknown.
type IncompleteError struct {
	Needed int
}

func (e *IncompleteError) Error() string {
	if e.Needed > 0 {
		return fmt.Sprintf("incomplete apdu: need %d more bytes", e.Needed)
	}
	return "incomplete apdu"
}

// PayloadError is returned by Decrypt when the envelope was complete but its
// content could not be opened or parsed. More input does not help.
type PayloadError struct {
	Err error
}

func (e *PayloadError) Error() string {
	return "ciphered payload: " + e.Err.Error()
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}
