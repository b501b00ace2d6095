package meter

import (
	"fmt"
	"time"

	"hemtjan.st/meter2car/dlms"
)

type Err string

func (e Err) Error() string {
	return string(e)
}

const (
	ErrInvalidAPDUFormat = Err("invalid apdu format")
	ErrTooManyFrames     = Err("too many frames without a complete apdu")
	ErrClosed            = Err("meter is closed")
)

// InsufficientFieldsError is returned when a notification carries fewer
// magnitudes than a reading needs.
type InsufficientFieldsError struct {
	Have int
}

func (e *InsufficientFieldsError) Error() string {
	return fmt.Sprintf("need %d magnitude fields, have %d", minMagnitudes, e.Have)
}

const (
	idxEnergyImport = iota
	idxEnergyExport
	idxReactiveImport
	idxReactiveExport
	idxPowerImport
	idxPowerExport

	minMagnitudes
)

// Reading holds the unsigned 32-bit values of one data notification in the
// order they were sent. Energies are in Wh or varh, power in W.
type Reading struct {
	Timestamp  time.Time
	Magnitudes []uint32
}

func (r *Reading) EnergyImport() uint32   { return r.Magnitudes[idxEnergyImport] }
func (r *Reading) EnergyExport() uint32   { return r.Magnitudes[idxEnergyExport] }
func (r *Reading) ReactiveImport() uint32 { return r.Magnitudes[idxReactiveImport] }
func (r *Reading) ReactiveExport() uint32 { return r.Magnitudes[idxReactiveExport] }
func (r *Reading) PowerImport() uint32    { return r.Magnitudes[idxPowerImport] }
func (r *Reading) PowerExport() uint32    { return r.Magnitudes[idxPowerExport] }

// AvailablePower is the exported minus the imported power. It is negative
// while power is drawn from the grid.
func (r *Reading) AvailablePower() int32 {
	return int32(int64(r.PowerExport()) - int64(r.PowerImport()))
}

// ParseReading extracts a reading from a data notification whose body is a
// structure. Fields other than double-long-unsigned are skipped.
func ParseReading(apdu dlms.APDU) (*Reading, error) {
	n, ok := apdu.(*dlms.DataNotification)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidAPDUFormat, apdu)
	}
	body, ok := n.Body.(dlms.Structure)
	if !ok {
		return nil, fmt.Errorf("%w: body is %T", ErrInvalidAPDUFormat, n.Body)
	}

	r := &Reading{}
	if n.DateTime != nil {
		r.Timestamp = n.DateTime.Time(time.Local)
	}
	for _, d := range body {
		if v, ok := d.(dlms.DoubleLongUnsigned); ok {
			r.Magnitudes = append(r.Magnitudes, uint32(v))
		}
	}
	if len(r.Magnitudes) < minMagnitudes {
		return nil, &InsufficientFieldsError{Have: len(r.Magnitudes)}
	}
	return r, nil
}

// AvailablePower is ParseReading followed by Reading.AvailablePower.
func AvailablePower(apdu dlms.APDU) (int32, error) {
	r, err := ParseReading(apdu)
	if err != nil {
		return 0, err
	}
	return r.AvailablePower(), nil
}
