// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package render is the variation rendering engine. Given a stored source
// image and a set of variation specs it decides which variation files need
// (re)generation, transforms the source once per variation and writes the
// results through the storage abstraction, reporting a per-variation
// outcome. Failures local to one variation never abort the others.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"imagefield/internal/imaging"
	"imagefield/internal/storage"
	"imagefield/internal/variation"
)

// Status is the result of rendering one variation.
type Status int

const (
	Skipped Status = iota
	Rendered
	Failed
)

func (s Status) String() string {
	switch s {
	case Skipped:
		return "skipped"
	case Rendered:
		return "rendered"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the per-variation result of a render call.
type Outcome struct {
	Status Status
	Path   string
	Reason error // set when Status is Failed
}

// ErrSourceMissing marks a render request whose source file is absent.
var ErrSourceMissing = errors.New("source file missing")

// SourceMissingError names the missing source path.
type SourceMissingError struct {
	Path string
}

func (e *SourceMissingError) Error() string {
	return fmt.Sprintf("source file missing: %s", e.Path)
}

func (e *SourceMissingError) Unwrap() error { return ErrSourceMissing }

// Request describes one render call for a single source file.
type Request struct {
	SourcePath string
	Variations variation.Set
	Storage    storage.Storage
	// Replace regenerates variations that already exist.
	Replace bool
	// IgnoreMissing reports a missing source as a per-variation failure
	// instead of returning an error.
	IgnoreMissing bool
	// Format forces the output format; empty keeps the source format.
	Format  imaging.Format
	Options imaging.Options
}

// VariationPath returns the storage path of the named variation.
func (r Request) VariationPath(name string) string {
	return VariationPath(r.SourcePath, name, r.Format)
}

// VariationPath computes a variation path, switching the extension when
// the output format is forced.
func VariationPath(source, name string, format imaging.Format) string {
	ext := ""
	if format != "" {
		ext = format.Ext()
	}
	return variation.Path(source, name, ext)
}

// Report collects the outcome of every requested variation. A Deferred
// report means the work was handed off and will complete asynchronously;
// Outcomes is empty in that case and callers must not expect the
// variation files to exist yet.
type Report struct {
	Outcomes map[string]Outcome
	Deferred bool
}

// Deferred is returned by renderers that queue the work instead of doing it.
func Deferred() Report {
	return Report{Deferred: true}
}

// Counts tallies the outcomes by status.
func (r Report) Counts() (rendered, skipped, failed int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case Rendered:
			rendered++
		case Skipped:
			skipped++
		case Failed:
			failed++
		}
	}
	return rendered, skipped, failed
}

// MissingSource reports whether the request failed because its source
// file was absent (only possible with IgnoreMissing).
func (r Report) MissingSource() bool {
	for _, o := range r.Outcomes {
		if o.Status == Failed && errors.Is(o.Reason, ErrSourceMissing) {
			return true
		}
	}
	return false
}

// Renderer performs (or defers) the rendering of a request. A field picks
// its renderer once, when it is configured.
type Renderer interface {
	Render(ctx context.Context, req Request) (Report, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, req Request) (Report, error)

func (f RendererFunc) Render(ctx context.Context, req Request) (Report, error) {
	return f(ctx, req)
}

// Default is the built-in renderer.
type Default struct {
	// Dims, when set, is invalidated for every variation written.
	Dims DimensionCache
}

// Render implements the default algorithm: verify the source exists, read
// and decode it once, then for each variation either skip it (it exists
// and Replace is false) or delete any stale file, transform and save.
func (d Default) Render(ctx context.Context, req Request) (Report, error) {
	if req.Storage == nil {
		return Report{}, fmt.Errorf("render %s: no storage configured", req.SourcePath)
	}

	exists, err := req.Storage.Exists(ctx, req.SourcePath)
	if err != nil {
		return Report{}, fmt.Errorf("render %s: %w", req.SourcePath, err)
	}
	if !exists {
		missing := &SourceMissingError{Path: req.SourcePath}
		if !req.IgnoreMissing {
			return Report{}, missing
		}
		report := Report{Outcomes: make(map[string]Outcome, len(req.Variations))}
		for _, spec := range req.Variations {
			report.Outcomes[spec.Name] = Outcome{Status: Failed, Path: req.VariationPath(spec.Name), Reason: missing}
		}
		slog.Warn("render source missing", "path", req.SourcePath)
		return report, nil
	}

	src, err := readAll(ctx, req.Storage, req.SourcePath)
	if err != nil {
		return Report{}, fmt.Errorf("render %s: %w", req.SourcePath, err)
	}

	report := Report{Outcomes: make(map[string]Outcome, len(req.Variations))}
	lazy := &source{data: src}

	for _, spec := range req.Variations {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		vpath := req.VariationPath(spec.Name)
		outcome, err := d.renderOne(ctx, req, lazy, spec, vpath)
		if err != nil {
			outcome = Outcome{Status: Failed, Path: vpath, Reason: err}
			slog.Warn("variation render failed", "source", req.SourcePath, "variation", spec.Name, "error", err)
		}
		report.Outcomes[spec.Name] = outcome
	}

	rendered, skipped, failed := report.Counts()
	slog.Debug("variations rendered", "source", req.SourcePath,
		"rendered", rendered, "skipped", skipped, "failed", failed)
	return report, nil
}

func (d Default) renderOne(ctx context.Context, req Request, src *source, spec variation.Spec, vpath string) (Outcome, error) {
	exists, err := req.Storage.Exists(ctx, vpath)
	if err != nil {
		return Outcome{}, err
	}
	if exists && !req.Replace {
		return Outcome{Status: Skipped, Path: vpath}, nil
	}
	img, detected, err := src.decode()
	if err != nil {
		return Outcome{}, err
	}
	format, err := outputFormat(req, detected)
	if err != nil {
		return Outcome{}, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Apply(img, spec, req.Options), format, req.Options); err != nil {
		return Outcome{}, err
	}

	// Re-render is a clean overwrite: remove the stale file so Save does
	// not disambiguate the name.
	if exists {
		if err := req.Storage.Delete(ctx, vpath); err != nil {
			return Outcome{}, err
		}
	}
	committed, err := req.Storage.Save(ctx, vpath, &buf)
	if err != nil {
		return Outcome{}, err
	}
	if committed != vpath {
		slog.Warn("variation saved under a different name", "want", vpath, "got", committed)
	}
	if d.Dims != nil {
		d.Dims.Invalidate(ctx, committed)
	}
	return Outcome{Status: Rendered, Path: committed}, nil
}

// outputFormat picks the encoding of a variation: the forced format, else
// the format the source content was detected as, else the format named by
// the source extension when the detected one cannot be written.
func outputFormat(req Request, detected imaging.Format) (imaging.Format, error) {
	if req.Format != "" {
		return req.Format, nil
	}
	if detected.Encodable() {
		return detected, nil
	}
	format, err := imaging.FormatFromPath(req.SourcePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s content cannot be written and %v", imaging.ErrEncode, detected, err)
	}
	return format, nil
}

// source decodes the image lazily and at most once.
type source struct {
	data    []byte
	img     image.Image
	format  imaging.Format
	err     error
	decoded bool
}

func (s *source) decode() (image.Image, imaging.Format, error) {
	if !s.decoded {
		s.img, s.format, s.err = imaging.Decode(s.data)
		s.decoded = true
	}
	return s.img, s.format, s.err
}

func readAll(ctx context.Context, st storage.Storage, p string) ([]byte, error) {
	rc, err := st.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}
