// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package variation defines the canonical description of a derived image
// ("variation"), the normalizer that builds it from user declarations, the
// deterministic naming scheme for variation files, and the dimension
// validators applied to uploads before they are stored.
package variation

import (
	"fmt"
	"strings"
)

// Filter selects the resampling kernel used when a variation is resized.
type Filter int

const (
	Lanczos Filter = iota
	CatmullRom
	MitchellNetravali
	Linear
	Box
	NearestNeighbor
)

// DefaultFilter is the high-quality filter used when a declaration omits one.
const DefaultFilter = Lanczos

var filterNames = map[Filter]string{
	Lanczos:           "lanczos",
	CatmullRom:        "catmullrom",
	MitchellNetravali: "mitchell",
	Linear:            "linear",
	Box:               "box",
	NearestNeighbor:   "nearest",
}

// filterAliases accepts the historical PIL-style names as well.
var filterAliases = map[string]Filter{
	"antialias": Lanczos,
	"bicubic":   CatmullRom,
	"bilinear":  Linear,
}

func (f Filter) String() string {
	if name, ok := filterNames[f]; ok {
		return name
	}
	return fmt.Sprintf("filter(%d)", int(f))
}

// ParseFilter resolves a filter by name, case-insensitively.
func ParseFilter(name string) (Filter, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for f, n := range filterNames {
		if n == key {
			return f, nil
		}
	}
	if f, ok := filterAliases[key]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("unknown resample filter %q", name)
}

// Spec is the canonical, normalized description of one variation.
//
// Width and Height are nil when the axis is unconstrained. A Spec with
// neither dimension is only valid when PassThrough is set, meaning the
// variation is a format conversion of the source without resizing.
type Spec struct {
	Name        string
	Width       *uint
	Height      *uint
	Crop        bool
	Filter      Filter
	PassThrough bool
}

// HasWidth reports whether the width axis is constrained.
func (s Spec) HasWidth() bool { return s.Width != nil }

// HasHeight reports whether the height axis is constrained.
func (s Spec) HasHeight() bool { return s.Height != nil }

func (s Spec) String() string {
	dim := func(v *uint) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprint(*v)
	}
	mode := "fit"
	switch {
	case s.PassThrough:
		mode = "passthrough"
	case s.Crop:
		mode = "crop"
	}
	return fmt.Sprintf("%s(%sx%s %s %s)", s.Name, dim(s.Width), dim(s.Height), mode, s.Filter)
}

// Set is an ordered collection of variations belonging to one field.
// Order follows the configuration declaration order.
type Set []Spec

// Lookup returns the variation with the given name.
func (s Set) Lookup(name string) (Spec, bool) {
	for _, v := range s {
		if v.Name == name {
			return v, true
		}
	}
	return Spec{}, false
}

// Names returns the variation names in declaration order.
func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, v := range s {
		names[i] = v.Name
	}
	return names
}

// Uint returns a pointer to v, for building Specs in code.
func Uint(v uint) *uint { return &v }

// Dims declares a fit-inside-a-box variation for use with Normalize.
func Dims(w, h uint) Spec {
	return Spec{Width: Uint(w), Height: Uint(h), Filter: DefaultFilter}
}

// Crop declares an exact-size variation for use with Normalize.
func Crop(w, h uint) Spec {
	return Spec{Width: Uint(w), Height: Uint(h), Crop: true, Filter: DefaultFilter}
}
