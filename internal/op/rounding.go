package op

import (
	"fmt"
	"strings"
)

// Rounding is a floating point rounding mode. The values match the
// x86 MXCSR RC field; other targets translate them when encoding.
type Rounding uint8

const (
	RoundNearest Rounding = iota // to nearest, ties to even
	RoundDown                    // toward -inf
	RoundUp                      // toward +inf
	RoundZero                    // toward zero
)

// Roundings lists every rounding mode
var Roundings = []Rounding{RoundNearest, RoundDown, RoundUp, RoundZero}

// DefaultRounding is the mode generated code is entered with on every
// supported ABI
const DefaultRounding = RoundNearest

func (r Rounding) String() string {
	switch r {
	case RoundNearest:
		return "nearest"
	case RoundDown:
		return "down"
	case RoundUp:
		return "up"
	case RoundZero:
		return "zero"
	default:
		return fmt.Sprintf("rounding(%d)", uint8(r))
	}
}

// Valid reports whether r is a known mode
func (r Rounding) Valid() bool {
	return r <= RoundZero
}

// ParseRounding parses a rounding mode name
func ParseRounding(s string) (Rounding, error) {
	switch strings.ToLower(s) {
	case "nearest", "rn", "n":
		return RoundNearest, nil
	case "down", "rd", "m", "floor":
		return RoundDown, nil
	case "up", "ru", "p", "ceil":
		return RoundUp, nil
	case "zero", "rz", "z", "trunc":
		return RoundZero, nil
	}
	return 0, fmt.Errorf("unknown rounding mode: %s (supported: nearest, down, up, zero)", s)
}

// RoundingOf returns the fixed mode of a rounding or converting
// operation, or false if o uses the active mode or is not one of them
func RoundingOf(o Op) (Rounding, bool) {
	switch o {
	case Rnn, CvnF2I, CvnI2F:
		return RoundNearest, true
	case Rnm, CvmF2I:
		return RoundDown, true
	case Rnp, CvpF2I:
		return RoundUp, true
	case Rnz, CvzF2I:
		return RoundZero, true
	}
	return 0, false
}
