package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/ironsheep/image-pipeline/pkg/imgerr"
)

// MaxDimension is the largest width or height accepted by geometry operations.
const MaxDimension = 0x3FFF

func intInRange(param string, v, lo, hi int) error {
	if v < lo || v > hi {
		return imgerr.Invalid(param, fmt.Sprintf("integer between %d and %d", lo, hi), v)
	}
	return nil
}

func floatInRange(param string, v, lo, hi float64) error {
	if !finite(v) || v < lo || v > hi {
		return imgerr.Invalid(param, fmt.Sprintf("number between %g and %g", lo, hi), v)
	}
	return nil
}

func nonNegative(param string, v int) error {
	if v < 0 {
		return imgerr.Invalid(param, "integer greater than or equal to 0", v)
	}
	return nil
}

func positive(param string, v int) error {
	if v < 1 {
		return imgerr.Invalid(param, "integer greater than 0", v)
	}
	return nil
}

func finiteNumber(param string, v float64) error {
	if !finite(v) {
		return imgerr.Invalid(param, "finite number", v)
	}
	return nil
}

func oneOf(param, v string, allowed []string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return imgerr.Invalid(param, "one of: "+strings.Join(allowed, ", "), v)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
