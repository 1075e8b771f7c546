// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package variation

import (
	"fmt"
	"math"
)

// Unbounded is the limit value of an axis without a bound.
var Unbounded = math.Inf(1)

// Size is a width/height pair. Limits use +Inf for unbounded axes.
type Size struct {
	Width  float64
	Height float64
}

func (s Size) String() string {
	f := func(v float64) string {
		if math.IsInf(v, 1) {
			return "∞"
		}
		return fmt.Sprintf("%.0f", v)
	}
	return f(s.Width) + "x" + f(s.Height)
}

// ValidationError is returned when an upload's dimensions are out of range.
type ValidationError struct {
	Code    string // "too_large" or "too_small"
	Message string
	Actual  Size
	Limit   Size
}

func (e *ValidationError) Error() string { return e.Message }

// Validator checks an image's dimensions against a configured limit.
type Validator interface {
	Validate(actual Size) error
}

// SizeValidator is the shared shape of the max and min size validators.
// Compare reports true when actual violates limit.
type SizeValidator struct {
	Limit   Size
	lower   bool
	code    string
	message string
	compare func(actual, limit Size) bool
}

// Compare reports whether actual is a violation of limit.
func (v *SizeValidator) Compare(actual, limit Size) bool {
	return v.compare(actual, limit)
}

// Validate returns a *ValidationError if actual violates the limit.
// Unbounded axes never cause a violation here, for either polarity.
func (v *SizeValidator) Validate(actual Size) error {
	effective := v.Limit
	if v.lower {
		if math.IsInf(effective.Width, 1) {
			effective.Width = 0
		}
		if math.IsInf(effective.Height, 1) {
			effective.Height = 0
		}
	}
	if !v.compare(actual, effective) {
		return nil
	}
	return &ValidationError{
		Code:    v.code,
		Message: fmt.Sprintf(v.message, actual, v.Limit),
		Actual:  actual,
		Limit:   v.Limit,
	}
}

// NewMaxSize rejects images wider or taller than the limit. A nil bound
// leaves that axis unbounded.
func NewMaxSize(width, height *uint) *SizeValidator {
	return &SizeValidator{
		Limit:   limit(width, height),
		code:    "too_large",
		message: "image too large: %s exceeds the maximum of %s",
		compare: func(actual, limit Size) bool {
			return actual.Width > limit.Width || actual.Height > limit.Height
		},
	}
}

// NewMinSize rejects images narrower or shorter than the limit. A nil
// bound is recorded as +Inf like NewMaxSize; Compare applies it literally
// while Validate treats it as no lower bound.
func NewMinSize(width, height *uint) *SizeValidator {
	return &SizeValidator{
		Limit:   limit(width, height),
		lower:   true,
		code:    "too_small",
		message: "image too small: %s is below the minimum of %s",
		compare: func(actual, limit Size) bool {
			return actual.Width < limit.Width || actual.Height < limit.Height
		},
	}
}

func limit(width, height *uint) Size {
	l := Size{Width: Unbounded, Height: Unbounded}
	if width != nil {
		l.Width = float64(*width)
	}
	if height != nil {
		l.Height = float64(*height)
	}
	return l
}

// SizeOf converts integer pixel dimensions to a Size.
func SizeOf(width, height int) Size {
	return Size{Width: float64(width), Height: float64(height)}
}
