// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package field

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"imagefield/internal/variation"
)

// RenderMode controls when variations are rendered after a save.
type RenderMode string

const (
	// ModeAuto renders synchronously when a save completes.
	ModeAuto RenderMode = "auto"
	// ModeManual never renders on save; variations come from the batch
	// command or an explicit Field.Render call.
	ModeManual RenderMode = "manual"
	// ModeQueue hands the render to a background worker.
	ModeQueue RenderMode = "queue"
)

// UnmarshalYAML accepts a boolean (true = auto, false = manual) or one of
// the mode names.
func (m *RenderMode) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!bool" {
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*m = ModeManual
		if b {
			*m = ModeAuto
		}
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	mode, err := ParseRenderMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseRenderMode validates a mode name. Empty means auto.
func ParseRenderMode(s string) (RenderMode, error) {
	switch RenderMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeManual:
		return ModeManual, nil
	case ModeQueue:
		return ModeQueue, nil
	default:
		return "", fmt.Errorf("unknown render mode %q (want auto, manual or queue)", s)
	}
}

// Definition is a field as declared in the fields file, before
// normalization.
type Definition struct {
	UploadTo      string     `yaml:"upload_to"`
	DeleteOrphans bool       `yaml:"delete_orphans"`
	ForceMinSize  bool       `yaml:"force_min_size"`
	Render        RenderMode `yaml:"render_variations"`
	// Renderer names a custom renderer supplied through Deps.Renderers.
	Renderer    string         `yaml:"renderer"`
	Format      string         `yaml:"format"`
	JPEGQuality int            `yaml:"jpeg_quality"`
	Validators  ValidatorDefs  `yaml:"validators"`
	Variations  VariationDecls `yaml:"variations"`
}

// ValidatorDefs declares dimension limits as [width, height] pairs; either
// element may be null.
type ValidatorDefs struct {
	MaxSize []*uint `yaml:"max_size"`
	MinSize []*uint `yaml:"min_size"`
}

func (v ValidatorDefs) build() ([]variation.Validator, error) {
	var out []variation.Validator
	if v.MaxSize != nil {
		if len(v.MaxSize) != 2 {
			return nil, fmt.Errorf("max_size: expected [width, height], got %d values", len(v.MaxSize))
		}
		out = append(out, variation.NewMaxSize(v.MaxSize[0], v.MaxSize[1]))
	}
	if v.MinSize != nil {
		if len(v.MinSize) != 2 {
			return nil, fmt.Errorf("min_size: expected [width, height], got %d values", len(v.MinSize))
		}
		out = append(out, variation.NewMinSize(v.MinSize[0], v.MinSize[1]))
	}
	return out, nil
}

// VariationDecls keeps variation declarations in the order they appear in
// the file. The values are left in their raw decoded shape for
// variation.Normalize.
type VariationDecls []variation.Declaration

func (d *VariationDecls) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: variations must be a mapping of name to spec", node.Line)
	}
	decls := make(VariationDecls, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var raw any
		if err := val.Decode(&raw); err != nil {
			return fmt.Errorf("line %d: variation %q: %w", val.Line, key.Value, err)
		}
		decls = append(decls, variation.Declaration{Name: key.Value, Value: raw})
	}
	*d = decls
	return nil
}

// File is the top-level layout of a fields file, keyed by app.model.field.
type File struct {
	Fields map[string]Definition `yaml:"fields"`
}

// ParseFile decodes a fields file.
func ParseFile(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse fields file: %w", err)
	}
	return f, nil
}
