// Package core provides money parsing and handling utilities.
//
// This file contains the Money type, overflow-checked arithmetic and the
// parser used by the input layer for amounts typed as "Rp 150.000".
package core

import (
	"fmt"
	"math"
	"strings"
)

// Money is an amount in the minor currency unit. Rupiah has no subunit in
// practice, so one unit is one rupiah.
type Money int64

var ErrAmountOverflow = fmt.Errorf("%w: amount overflow", ErrInvalidArgument)

// Validate reports amounts a record may not carry.
func (m Money) Validate() error {
	if m < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns m+o, failing instead of wrapping around.
func (m Money) Add(o Money) (Money, error) {
	if (o > 0 && m > math.MaxInt64-o) || (o < 0 && m < math.MinInt64-o) {
		return 0, ErrAmountOverflow
	}
	return m + o, nil
}

// Sub returns m-o, failing instead of wrapping around.
func (m Money) Sub(o Money) (Money, error) {
	if (o < 0 && m > math.MaxInt64+o) || (o > 0 && m < math.MinInt64+o) {
		return 0, ErrAmountOverflow
	}
	return m - o, nil
}

// Times multiplies a non-negative amount by a non-negative factor.
func (m Money) Times(n int64) (Money, error) {
	if m < 0 || n < 0 {
		return 0, ErrInvalidAmount
	}
	if n != 0 && int64(m) > math.MaxInt64/n {
		return 0, ErrAmountOverflow
	}
	return Money(int64(m) * n), nil
}

// ParseAmount converts a typed amount into Money.
//
// It accepts an optional "Rp" prefix, spaces and "." thousand separators, the
// way the id-ID locale formats rupiah. Signs, fractional parts and anything
// else are rejected. Zero is allowed.
//
// Examples:
//
//	ParseAmount("150000")      -> 150000, nil
//	ParseAmount("Rp 150.000")  -> 150000, nil
//	ParseAmount("-5")          -> error
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.EqualFold(s[:2], "rp") {
		s = strings.TrimSpace(s[2:])
	}
	if s == "" {
		return 0, ErrInvalidAmount
	}
	var v int64
	digits := 0
	for _, r := range s {
		switch {
		case r == '.' || r == ' ' || r == '\u00a0':
			continue
		case r >= '0' && r <= '9':
			d := int64(r - '0')
			if v > (math.MaxInt64-d)/10 {
				return 0, ErrAmountOverflow
			}
			v = v*10 + d
			digits++
		default:
			return 0, fmt.Errorf("%w: unexpected %q in amount", ErrInvalidAmount, r)
		}
	}
	if digits == 0 {
		return 0, ErrInvalidAmount
	}
	return Money(v), nil
}
