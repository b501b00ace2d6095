package goe

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

type ChargingStatus uint8

const (
	Ready ChargingStatus = iota + 1
	Charging
	Waiting
	Finished
)

func (s ChargingStatus) String() string {
	switch s {
	case Ready:
		return "ready"
	case Charging:
		return "charging"
	case Waiting:
		return "waiting"
	case Finished:
		return "finished"
	}
	return "ChargingStatus(" + strconv.Itoa(int(s)) + ")"
}

// Status is a snapshot of the charger state.
type Status struct {
	ChargingStatus ChargingStatus
	// Ampere is the charging current the charger is set to
	Ampere uint8
	// TotalPower is the power drawn by the car in W
	TotalPower      uint32
	ChargingAllowed bool
	// Phases is 3 if all three phases are available before and after the contactor
	Phases uint8
}

const (
	phaseMask     = 0xf8
	threePhases   = 0x38
	nrgTotalPower = 11
)

// flexUint accepts both JSON numbers and numeric strings, as firmware
// versions differ in which they send.
type flexUint uint64

func (f *flexUint) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q is not an unsigned integer", ErrInvalidStatus, b)
	}
	*f = flexUint(v)
	return nil
}

type rawStatus struct {
	Car *flexUint         `json:"car"`
	Amp *flexUint         `json:"amp"`
	Pha *flexUint         `json:"pha"`
	Alw *flexUint         `json:"alw"`
	Nrg []json.RawMessage `json:"nrg"`
}

// ParseStatus decodes the body of the status endpoint.
func ParseStatus(data []byte) (*Status, error) {
	var raw rawStatus
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}
	if raw.Car == nil || raw.Amp == nil || raw.Pha == nil || raw.Alw == nil {
		return nil, fmt.Errorf("%w: missing field", ErrInvalidStatus)
	}
	if len(raw.Nrg) <= nrgTotalPower {
		return nil, fmt.Errorf("%w: nrg has %d entries", ErrInvalidStatus, len(raw.Nrg))
	}
	var total flexUint
	if err := json.Unmarshal(raw.Nrg[nrgTotalPower], &total); err != nil {
		return nil, fmt.Errorf("nrg: %w", err)
	}

	if total > math.MaxUint32/10 {
		return nil, fmt.Errorf("%w: total power %d", ErrInvalidStatus, uint64(total))
	}

	if *raw.Car < flexUint(Ready) || *raw.Car > flexUint(Finished) {
		return nil, fmt.Errorf("%w: unknown car state %d", ErrInvalidStatus, uint64(*raw.Car))
	}

	s := &Status{
		ChargingStatus:  ChargingStatus(*raw.Car),
		Ampere:          uint8(*raw.Amp),
		TotalPower:      uint32(total) * 10,
		ChargingAllowed: *raw.Alw > 0,
		Phases:          1,
	}
	if uint8(*raw.Pha)&phaseMask == threePhases {
		s.Phases = 3
	}
	return s, nil
}
