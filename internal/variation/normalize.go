// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package variation

import (
	"fmt"
	"math"
	"regexp"
)

// ConfigurationError reports an invalid variation declaration. It is raised
// when a field is defined, never while rendering.
type ConfigurationError struct {
	Variation string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	if e.Variation == "" {
		return "variation config: " + e.Reason
	}
	return fmt.Sprintf("variation %q: %s", e.Variation, e.Reason)
}

func configErrorf(name, format string, args ...any) error {
	return &ConfigurationError{Variation: name, Reason: fmt.Sprintf(format, args...)}
}

// Declaration is one named, not yet normalized variation as it appears in
// configuration. Value holds one of the accepted declaration shapes.
type Declaration struct {
	Name  string
	Value any
}

// safeName matches tokens that can be embedded in a file name.
var safeName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Normalize turns a heterogeneous declaration into a Spec. Accepted shapes:
//
//	[width, height]                 fit inside a box
//	[width, height, crop]           crop=true gives exact output size
//	{width, height, crop, resample, passthrough}
//	Spec                            already canonical, name is overwritten
//
// Either dimension may be null. A declaration with both dimensions null is
// a pass-through (format conversion only) when written as an explicit pair
// or marked with passthrough: true; a map that simply omits both is an
// error. The name always comes from the configuration key.
func Normalize(name string, decl any) (Spec, error) {
	if err := checkName(name); err != nil {
		return Spec{}, err
	}

	spec := Spec{Name: name, Filter: DefaultFilter}
	var explicitNulls bool

	switch v := decl.(type) {
	case Spec:
		v.Name = name
		spec = v
	case *Spec:
		if v == nil {
			return Spec{}, configErrorf(name, "nil declaration")
		}
		spec = *v
		spec.Name = name
	case []any:
		if err := fromTuple(&spec, v); err != nil {
			return Spec{}, err
		}
		explicitNulls = true
	case []int:
		tuple := make([]any, len(v))
		for i, n := range v {
			tuple[i] = n
		}
		if err := fromTuple(&spec, tuple); err != nil {
			return Spec{}, err
		}
	case map[string]any:
		if err := fromMap(&spec, v); err != nil {
			return Spec{}, err
		}
	case nil:
		return Spec{}, configErrorf(name, "empty declaration")
	default:
		return Spec{}, configErrorf(name, "unsupported declaration type %T", decl)
	}

	if (spec.HasWidth() && *spec.Width == 0) || (spec.HasHeight() && *spec.Height == 0) {
		return Spec{}, configErrorf(name, "dimensions must be positive")
	}

	if !spec.HasWidth() && !spec.HasHeight() {
		if !spec.PassThrough && !explicitNulls {
			return Spec{}, configErrorf(name, "width or height is required")
		}
		spec.PassThrough = true
	} else if spec.PassThrough {
		return Spec{}, configErrorf(name, "pass-through variations cannot set dimensions")
	}

	if spec.Crop && (!spec.HasWidth() || !spec.HasHeight()) {
		return Spec{}, configErrorf(name, "crop requires both width and height")
	}

	return spec, nil
}

// NormalizeSet normalizes every declaration, keeping declaration order. It
// rejects duplicate names and any name listed in reserved (typically the
// source file's own base name, which a variation must never shadow).
func NormalizeSet(decls []Declaration, reserved ...string) (Set, error) {
	seen := make(map[string]bool, len(decls))
	for _, r := range reserved {
		if r != "" {
			seen[r] = true
		}
	}

	set := make(Set, 0, len(decls))
	for _, d := range decls {
		if seen[d.Name] {
			return nil, configErrorf(d.Name, "name collides with a reserved name or another variation")
		}
		spec, err := Normalize(d.Name, d.Value)
		if err != nil {
			return nil, err
		}
		seen[d.Name] = true
		set = append(set, spec)
	}
	return set, nil
}

func checkName(name string) error {
	if name == "" {
		return configErrorf(name, "name must not be empty")
	}
	if !safeName.MatchString(name) {
		return configErrorf(name, "name must only contain letters, digits, '-' and '_'")
	}
	return nil
}

func fromTuple(spec *Spec, tuple []any) error {
	if len(tuple) != 2 && len(tuple) != 3 {
		return configErrorf(spec.Name, "expected (width, height) or (width, height, crop), got %d values", len(tuple))
	}
	var err error
	if spec.Width, err = dimension(spec.Name, "width", tuple[0]); err != nil {
		return err
	}
	if spec.Height, err = dimension(spec.Name, "height", tuple[1]); err != nil {
		return err
	}
	if len(tuple) == 3 {
		crop, ok := tuple[2].(bool)
		if !ok && tuple[2] != nil {
			return configErrorf(spec.Name, "crop flag must be a boolean, got %T", tuple[2])
		}
		spec.Crop = crop
	}
	return nil
}

func fromMap(spec *Spec, m map[string]any) error {
	var err error
	for key, val := range m {
		switch key {
		case "width":
			spec.Width, err = dimension(spec.Name, key, val)
		case "height":
			spec.Height, err = dimension(spec.Name, key, val)
		case "crop":
			spec.Crop, err = boolean(spec.Name, key, val)
		case "passthrough":
			spec.PassThrough, err = boolean(spec.Name, key, val)
		case "resample":
			if val == nil {
				continue
			}
			s, ok := val.(string)
			if !ok {
				return configErrorf(spec.Name, "resample must be a filter name, got %T", val)
			}
			if spec.Filter, err = ParseFilter(s); err != nil {
				return configErrorf(spec.Name, "%v", err)
			}
		case "name":
			// The key the variation was declared under is authoritative.
		default:
			return configErrorf(spec.Name, "unknown option %q", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func boolean(name, key string, v any) (bool, error) {
	if v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, configErrorf(name, "%s must be a boolean, got %T", key, v)
	}
	return b, nil
}

// dimension converts a declared size to a positive pixel count. nil means
// the axis is unconstrained.
func dimension(name, axis string, v any) (*uint, error) {
	var n float64
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case uint:
		n = float64(x)
	case uint64:
		n = float64(x)
	case float64:
		if x != math.Trunc(x) {
			return nil, configErrorf(name, "%s must be a whole number of pixels, got %v", axis, x)
		}
		n = x
	default:
		return nil, configErrorf(name, "%s must be a number, got %T", axis, v)
	}
	if n <= 0 {
		return nil, configErrorf(name, "%s must be positive, got %v", axis, n)
	}
	if n > math.MaxUint32 {
		return nil, configErrorf(name, "%s is too large: %v", axis, n)
	}
	return Uint(uint(n)), nil
}
