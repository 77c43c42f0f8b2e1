package pitchcontrol

import "errors"

var (
	// ErrInvalidRoster is returned when a side has no eligible player in a frame.
	ErrInvalidRoster = errors.New("invalid roster")

	// ErrConservationViolation is returned when the grid checksum
	// mean(attack + defense) is not within tolerance of 1.
	ErrConservationViolation = errors.New("checksum failed")

	// ErrNegativeIncrement signals a negative (or NaN) probability increment
	// during integration. Unreachable with valid parameters.
	ErrNegativeIncrement = errors.New("invalid player probability increment")

	ErrInvalidParams = errors.New("invalid model parameters")
	ErrInvalidGrid   = errors.New("invalid grid")
)

// IsFatal reports whether err must reject the whole frame.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidRoster) ||
		errors.Is(err, ErrConservationViolation) ||
		errors.Is(err, ErrNegativeIncrement)
}
