// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package field binds a variation set to a storage backend and a renderer,
// and exposes the hooks a record layer calls around saves and deletes.
package field

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"imagefield/internal/imaging"
	"imagefield/internal/render"
	"imagefield/internal/slug"
	"imagefield/internal/storage"
	"imagefield/internal/variation"
)

// ErrUnknownVariation is returned by Variation for an undeclared name.
var ErrUnknownVariation = errors.New("unknown variation")

// Ref identifies a field as app.model.field.
type Ref struct {
	App   string
	Model string
	Field string
}

func (r Ref) String() string {
	return r.App + "." + r.Model + "." + r.Field
}

// ParseRef splits an app.model.field token. It reports false unless the
// token has exactly three non-empty components.
func ParseRef(s string) (Ref, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Ref{}, false
	}
	for _, p := range parts {
		if p == "" || strings.TrimSpace(p) != p {
			return Ref{}, false
		}
	}
	return Ref{App: parts[0], Model: parts[1], Field: parts[2]}, true
}

// Deps are the collaborators shared by every field.
type Deps struct {
	Storage storage.Storage
	// Queue receives jobs from fields in queue mode.
	Queue render.Queue
	// Dims memoizes variation dimensions. Optional.
	Dims render.DimensionCache
	// Renderers holds custom render hooks addressable by name from a
	// definition's renderer key.
	Renderers map[string]render.Renderer
}

// Field is a normalized, ready-to-use image field.
type Field struct {
	Ref           Ref
	UploadTo      string
	Variations    variation.Set
	ForceMinSize  bool
	DeleteOrphans bool
	Mode          RenderMode
	Format        imaging.Format
	Options       imaging.Options
	Validators    []variation.Validator
	Storage       storage.Storage

	direct   render.Renderer // override hook or default, never queued
	renderer render.Renderer // what saves use
	dims     render.DimensionCache
}

// New normalizes def into a Field. All configuration errors surface here;
// a returned field never fails on configuration at render time.
func New(ref Ref, def Definition, deps Deps) (*Field, error) {
	if deps.Storage == nil {
		return nil, fmt.Errorf("field %s: storage is required", ref)
	}

	set, err := variation.NormalizeSet(def.Variations, variation.Original)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", ref, err)
	}

	var format imaging.Format
	if def.Format != "" {
		if format, err = imaging.ParseFormat(def.Format); err != nil {
			return nil, fmt.Errorf("field %s: %w", ref, err)
		}
		if format == imaging.WebP {
			return nil, fmt.Errorf("field %s: webp output is not supported", ref)
		}
	}

	validators, err := def.Validators.build()
	if err != nil {
		return nil, fmt.Errorf("field %s: validators: %w", ref, err)
	}

	mode := def.Render
	if mode == "" {
		mode = ModeAuto
	}

	f := &Field{
		Ref:           ref,
		UploadTo:      strings.Trim(def.UploadTo, "/"),
		Variations:    set,
		ForceMinSize:  def.ForceMinSize,
		DeleteOrphans: def.DeleteOrphans,
		Mode:          mode,
		Format:        format,
		Options: imaging.Options{
			AllowUpscale: def.ForceMinSize,
			JPEGQuality:  def.JPEGQuality,
		},
		Validators: validators,
		Storage:    deps.Storage,
		dims:       deps.Dims,
	}

	// The renderer is chosen once: custom hook, then queue, then default.
	f.direct = render.Default{Dims: deps.Dims}
	if def.Renderer != "" {
		r, ok := deps.Renderers[def.Renderer]
		if !ok {
			return nil, fmt.Errorf("field %s: unknown renderer %q", ref, def.Renderer)
		}
		f.direct = r
	}
	f.renderer = f.direct
	if mode == ModeQueue {
		if deps.Queue == nil {
			return nil, fmt.Errorf("field %s: render mode queue requires a queue", ref)
		}
		f.renderer = render.Queued{Queue: deps.Queue, Field: ref.String()}
	}

	return f, nil
}

// Renderer returns the renderer used on save.
func (f *Field) Renderer() render.Renderer { return f.renderer }

// DirectRenderer returns the renderer that actually produces files: the
// custom hook when one is configured, the default engine otherwise.
func (f *Field) DirectRenderer() render.Renderer { return f.direct }

// Request builds the render request for a source path.
func (f *Field) Request(sourcePath string, replace, ignoreMissing bool) render.Request {
	return render.Request{
		SourcePath:    sourcePath,
		Variations:    f.Variations,
		Storage:       f.Storage,
		Replace:       replace,
		IgnoreMissing: ignoreMissing,
		Format:        f.Format,
		Options:       f.Options,
	}
}

// VariationPath returns where the named variation of sourcePath is stored.
func (f *Field) VariationPath(sourcePath, name string) string {
	return render.VariationPath(sourcePath, name, f.Format)
}

// Variation returns a lazy handle on one variation of sourcePath.
func (f *Field) Variation(sourcePath, name string) (*render.Handle, error) {
	if _, ok := f.Variations.Lookup(name); !ok {
		return nil, fmt.Errorf("field %s: %w %q", f.Ref, ErrUnknownVariation, name)
	}
	return render.NewHandle(f.Storage, name, f.VariationPath(sourcePath, name), f.dims), nil
}

// Validate rejects data that is not a decodable image, then checks it
// against the field's dimension validators. Sizes are measured after EXIF
// orientation, as the renderer sees them.
func (f *Field) Validate(_ context.Context, data []byte) error {
	img, _, err := imaging.Decode(data)
	if err != nil {
		return err
	}
	b := img.Bounds()
	actual := variation.SizeOf(b.Dx(), b.Dy())
	for _, v := range f.Validators {
		if err := v.Validate(actual); err != nil {
			return err
		}
	}
	return nil
}

// Upload validates data and stores it as a new source file, returning the
// committed path. Nothing is written when data is not an image or fails
// validation.
func (f *Field) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if err := f.Validate(ctx, data); err != nil {
		return "", err
	}
	p := slug.FileName(name, "image")
	if f.UploadTo != "" {
		p = path.Join(f.UploadTo, p)
	}
	committed, err := f.Storage.Save(ctx, p, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("field %s: upload: %w", f.Ref, err)
	}
	slog.Info("source uploaded", "field", f.Ref.String(), "path", committed, "size", len(data))
	return committed, nil
}

// Render runs the field's direct renderer for sourcePath.
func (f *Field) Render(ctx context.Context, sourcePath string, replace, ignoreMissing bool) (render.Report, error) {
	return f.direct.Render(ctx, f.Request(sourcePath, replace, ignoreMissing))
}

// OnSaveComplete renders the variations of a freshly committed file.
// Existing variations are always replaced. Manual fields do nothing.
func (f *Field) OnSaveComplete(ctx context.Context, sourcePath string) (render.Report, error) {
	if sourcePath == "" || f.Mode == ModeManual {
		return render.Report{}, nil
	}
	report, err := f.renderer.Render(ctx, f.Request(sourcePath, true, false))
	if err != nil {
		return report, fmt.Errorf("field %s: render %s: %w", f.Ref, sourcePath, err)
	}
	return report, nil
}

// OnFileAssigned removes the previous file and its variations once a
// record's file value changed. Call it after the new value is committed.
func (f *Field) OnFileAssigned(ctx context.Context, oldPath, newPath string) error {
	if !f.DeleteOrphans || oldPath == "" || oldPath == newPath {
		return nil
	}
	return f.cleanup(ctx, oldPath)
}

// OnRecordDeleted removes the file of a deleted record and its variations.
func (f *Field) OnRecordDeleted(ctx context.Context, sourcePath string) error {
	if !f.DeleteOrphans || sourcePath == "" {
		return nil
	}
	return f.cleanup(ctx, sourcePath)
}

func (f *Field) cleanup(ctx context.Context, sourcePath string) error {
	err := render.Cleanup(ctx, f.Storage, sourcePath, f.Variations, f.Format)
	if f.dims != nil {
		paths := make([]string, 0, len(f.Variations))
		for _, spec := range f.Variations {
			paths = append(paths, f.VariationPath(sourcePath, spec.Name))
		}
		f.dims.Invalidate(ctx, paths...)
	}
	if err != nil {
		return fmt.Errorf("field %s: %w", f.Ref, err)
	}
	slog.Debug("orphans removed", "field", f.Ref.String(), "source", sourcePath)
	return nil
}
