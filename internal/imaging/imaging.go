// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package imaging turns a decoded source image and a variation spec into
// the bytes of a derived image. Three geometric modes are supported: fit
// (preserve aspect ratio inside a box), crop (cover the box, then center
// crop to the exact size) and pass-through (re-encode only).
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"path"
	"strings"

	dimaging "github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register WebP decoder

	"imagefield/internal/variation"
)

const (
	// maxImagePixels caps the number of pixels to prevent memory bombs.
	// 10000x10000 = 100 million pixels, ~400 MB decoded in RGBA.
	maxImagePixels = 100_000_000

	// DefaultJPEGQuality is used when Options.JPEGQuality is zero.
	DefaultJPEGQuality = 85
)

var (
	// ErrDecode marks input bytes that are not a readable image.
	ErrDecode = errors.New("decode image")
	// ErrEncode marks an output format that cannot be written.
	ErrEncode = errors.New("encode image")
)

// Format is an output image format.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	GIF  Format = "gif"
	TIFF Format = "tiff"
	BMP  Format = "bmp"
	WebP Format = "webp"
)

var extFormats = map[string]Format{
	".jpg":  JPEG,
	".jpeg": JPEG,
	".png":  PNG,
	".gif":  GIF,
	".tif":  TIFF,
	".tiff": TIFF,
	".bmp":  BMP,
	".webp": WebP,
}

// encoders lists the formats that can be written. WebP is decode-only.
var encoders = map[Format]dimaging.Format{
	JPEG: dimaging.JPEG,
	PNG:  dimaging.PNG,
	GIF:  dimaging.GIF,
	TIFF: dimaging.TIFF,
	BMP:  dimaging.BMP,
}

// ParseFormat resolves a configured format name such as "jpeg" or "JPG".
func ParseFormat(name string) (Format, error) {
	f, ok := extFormats["."+strings.ToLower(strings.TrimPrefix(name, "."))]
	if !ok {
		return "", fmt.Errorf("unknown image format %q", name)
	}
	return f, nil
}

// FormatFromPath infers the format of a file from its extension.
func FormatFromPath(p string) (Format, error) {
	f, ok := extFormats[strings.ToLower(path.Ext(p))]
	if !ok {
		return "", fmt.Errorf("%w: unsupported file extension %q", ErrEncode, path.Ext(p))
	}
	return f, nil
}

// Ext returns the canonical file extension written for the format.
func (f Format) Ext() string {
	return "." + string(f)
}

// Encodable reports whether images can be written in f.
func (f Format) Encodable() bool {
	_, ok := encoders[f]
	return ok
}

// Options tune a transform for a field.
type Options struct {
	// AllowUpscale lets fit mode enlarge images smaller than the box.
	AllowUpscale bool
	// JPEGQuality is the JPEG encoder quality, 1-100.
	JPEGQuality int
}

// Decode reads an image in any registered format, applying EXIF
// orientation, and returns the format the content was detected as. Images
// above maxImagePixels are rejected before the full decode.
func Decode(data []byte) (image.Image, Format, error) {
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return nil, "", fmt.Errorf("%w: image too large: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, maxImagePixels)
	}

	img, err := dimaging.Decode(bytes.NewReader(data), dimaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, Format(name), nil
}

// Dimensions reads only the image header and returns width and height as
// stored, before any EXIF orientation is applied.
func Dimensions(r io.Reader) (int, int, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return cfg.Width, cfg.Height, nil
}

// FitSize computes the output size of a fit-mode resize. The scale factor
// is the smaller ratio over the constrained axes; results are floored and
// never below one pixel. Without upscale an image already inside the box
// keeps its size.
func FitSize(srcW, srcH int, spec variation.Spec, upscale bool) (int, int) {
	if srcW <= 0 || srcH <= 0 || (!spec.HasWidth() && !spec.HasHeight()) {
		return srcW, srcH
	}

	sw, sh := int64(srcW), int64(srcH)
	var w, h int64
	widthBinds := spec.HasWidth()
	if spec.HasWidth() && spec.HasHeight() {
		bw, bh := int64(*spec.Width), int64(*spec.Height)
		// bw/sw <= bh/sh, cross-multiplied to stay exact.
		widthBinds = bw*sh <= bh*sw
	}
	if widthBinds {
		w = int64(*spec.Width)
		h = sh * w / sw
	} else {
		h = int64(*spec.Height)
		w = sw * h / sh
	}

	if !upscale && (w >= sw || h >= sh) {
		return srcW, srcH
	}
	return int(max(w, 1)), int(max(h, 1))
}

// Apply runs the geometric part of a variation.
func Apply(img image.Image, spec variation.Spec, opts Options) image.Image {
	if spec.PassThrough || (!spec.HasWidth() && !spec.HasHeight()) {
		return img
	}

	filter := resampleFilter(spec.Filter)
	if spec.Crop {
		return dimaging.Fill(img, int(*spec.Width), int(*spec.Height), dimaging.Center, filter)
	}

	b := img.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), spec, opts.AllowUpscale)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return dimaging.Resize(img, w, h, filter)
}

// Encode writes img in the given format. Targets without an alpha channel
// get the image flattened onto white first.
func Encode(w io.Writer, img image.Image, format Format, opts Options) error {
	target, ok := encoders[format]
	if !ok {
		return fmt.Errorf("%w: writing %q is not supported", ErrEncode, format)
	}

	var encOpts []dimaging.EncodeOption
	if format == JPEG {
		img = flatten(img)
		q := opts.JPEGQuality
		if q <= 0 || q > 100 {
			q = DefaultJPEGQuality
		}
		encOpts = append(encOpts, dimaging.JPEGQuality(q))
	}

	if err := dimaging.Encode(w, img, target, encOpts...); err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return nil
}

// Transform decodes src, applies spec and encodes the result.
func Transform(src []byte, spec variation.Spec, format Format, opts Options) ([]byte, error) {
	img, _, err := Decode(src)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, Apply(img, spec, opts), format, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// flatten composites img over an opaque white background.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := dimaging.New(b.Dx(), b.Dy(), color.White)
	return dimaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func resampleFilter(f variation.Filter) dimaging.ResampleFilter {
	switch f {
	case variation.CatmullRom:
		return dimaging.CatmullRom
	case variation.MitchellNetravali:
		return dimaging.MitchellNetravali
	case variation.Linear:
		return dimaging.Linear
	case variation.Box:
		return dimaging.Box
	case variation.NearestNeighbor:
		return dimaging.NearestNeighbor
	default:
		return dimaging.Lanczos
	}
}
