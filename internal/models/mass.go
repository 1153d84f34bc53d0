package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidMass = errors.New("mass must be a positive finite number of GeV")

// Mass is the H_R++ mass in GeV.
type Mass float64

// ParseMass parses a command-line mass value.
func ParseMass(s string) (Mass, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid mass %q: %w", s, err)
	}
	m := Mass(v)
	if err := ValidateMass(m); err != nil {
		return 0, err
	}
	return m, nil
}

func ValidateMass(m Mass) error {
	v := float64(m)
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidMass, v)
	}
	return nil
}

// String renders the mass the way every run name, log file and directive
// expects it: shortest decimal form, with ".0" kept on integral values.
func (m Mass) String() string {
	s := strconv.FormatFloat(float64(m), 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
