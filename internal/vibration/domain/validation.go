package vibration

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxDecimalPlaces bounds the precision operators may enter.
const MaxDecimalPlaces = 2

// IsAcceptable reports whether raw is a valid reading for parameterID.
func (c Catalog) IsAcceptable(raw, parameterID string) bool {
	_, err := c.ValidateValue(raw, parameterID)
	return err == nil
}

// ValidateValue parses raw and checks it against the parameter's rules. The
// returned error wraps ErrValidationRejected (or ErrUnknownParameter).
func (c Catalog) ValidateValue(raw, parameterID string) (float64, error) {
	parameter, ok := c.Parameter(parameterID)
	if !ok {
		return 0, fmt.Errorf("%w: %w: %q", ErrValidationRejected, ErrUnknownParameter, parameterID)
	}
	raw = strings.TrimSpace(raw)
	if hasHexPrefix(raw) {
		return 0, fmt.Errorf("%w: not a decimal number", ErrValidationRejected)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: not a number", ErrValidationRejected)
	}
	if err := checkValue(value, parameter); err != nil {
		return 0, err
	}
	return value, nil
}

// hasHexPrefix reports a 0x/0X literal after an optional sign, which
// strconv.ParseFloat would otherwise accept.
func hasHexPrefix(raw string) bool {
	raw = strings.TrimLeft(raw, "+-")
	return len(raw) >= 2 && raw[0] == '0' && (raw[1] == 'x' || raw[1] == 'X')
}

// CheckValue applies the numeric rules to an already parsed value.
func (c Catalog) CheckValue(value float64, parameterID string) error {
	parameter, ok := c.Parameter(parameterID)
	if !ok {
		return fmt.Errorf("%w: %w: %q", ErrValidationRejected, ErrUnknownParameter, parameterID)
	}
	return checkValue(value, parameter)
}

func checkValue(value float64, parameter ParameterDef) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: not a finite number", ErrValidationRejected)
	}
	if value < 0 {
		return fmt.Errorf("%w: negative value", ErrValidationRejected)
	}
	if decimalPlaces(value) > MaxDecimalPlaces {
		return fmt.Errorf("%w: more than %d decimal places", ErrValidationRejected, MaxDecimalPlaces)
	}
	if ceiling := parameter.MaxValue(); value > ceiling {
		return fmt.Errorf("%w: above %s ceiling %g", ErrValidationRejected, parameter.Type, ceiling)
	}
	return nil
}

// decimalPlaces counts fraction digits of the shortest decimal form of v, so
// "1.50" counts as one place.
func decimalPlaces(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	_, frac, found := strings.Cut(s, ".")
	if !found {
		return 0
	}
	return len(frac)
}
