// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imagefield/internal/imaging"
	"imagefield/internal/storage"
	"imagefield/internal/variation"
)

func encodeImage(t *testing.T, w, h int, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 55, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// put stores data at exactly p, failing the test if the name was taken.
func put(t *testing.T, st storage.Storage, p string, data []byte) {
	t.Helper()
	got, err := st.Save(context.Background(), p, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Save %s: %v", p, err)
	}
	if got != p {
		t.Fatalf("Save %s committed as %s", p, got)
	}
}

func sizeOf(t *testing.T, st storage.Storage, p string) (int, int) {
	t.Helper()
	w, h, err := NewHandle(st, "", p, nil).Size(context.Background())
	if err != nil {
		t.Fatalf("size of %s: %v", p, err)
	}
	return w, h
}

func testVariations() variation.Set {
	u := variation.Uint
	return variation.Set{
		{Name: "thumbnail", Width: u(100), Height: u(75)},
		{Name: "medium", Width: u(400), Height: u(400)},
		{Name: "square", Width: u(150), Height: u(150), Crop: true},
	}
}

// --------------------------------------------------------------------------
// Default renderer
// --------------------------------------------------------------------------

func TestDefault_RendersAllVariations(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	put(t, st, "img/600x400.jpg", encodeImage(t, 600, 400, "jpeg"))

	report, err := Default{}.Render(ctx, Request{
		SourcePath: "img/600x400.jpg",
		Variations: testVariations(),
		Storage:    st,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if report.Deferred {
		t.Error("default renderer must not defer")
	}

	want := map[string][3]any{
		"thumbnail": {"img/600x400.thumbnail.jpg", 100, 66},
		"medium":    {"img/600x400.medium.jpg", 400, 266},
		"square":    {"img/600x400.square.jpg", 150, 150},
	}
	for name, w := range want {
		o := report.Outcomes[name]
		if o.Status != Rendered {
			t.Errorf("%s: status %v (%v), want rendered", name, o.Status, o.Reason)
			continue
		}
		if o.Path != w[0] {
			t.Errorf("%s: path %q, want %q", name, o.Path, w[0])
		}
		gw, gh := sizeOf(t, st, o.Path)
		if gw != w[1] || gh != w[2] {
			t.Errorf("%s: size %dx%d, want %dx%d", name, gw, gh, w[1], w[2])
		}
	}

	rendered, skipped, failed := report.Counts()
	if rendered != 3 || skipped != 0 || failed != 0 {
		t.Errorf("Counts = %d/%d/%d, want 3/0/0", rendered, skipped, failed)
	}
}

func TestDefault_SkipsExisting(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	put(t, st, "img/a.jpg", encodeImage(t, 600, 400, "jpeg"))
	put(t, st, "img/a.thumbnail.jpg", []byte("stale"))

	report, err := Default{}.Render(ctx, Request{
		SourcePath: "img/a.jpg",
		Variations: testVariations()[:1],
		Storage:    st,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := report.Outcomes["thumbnail"].Status; got != Skipped {
		t.Fatalf("status = %v, want skipped", got)
	}

	rc, _ := st.Open(ctx, "img/a.thumbnail.jpg")
	body := new(bytes.Buffer)
	body.ReadFrom(rc)
	rc.Close()
	if body.String() != "stale" {
		t.Error("existing variation was modified without replace")
	}
}

func TestDefault_ReplaceOverwritesInPlace(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	put(t, st, "img/image.jpg", encodeImage(t, 600, 400, "jpeg"))
	put(t, st, "img/image.thumbnail.jpg", []byte("stale"))

	report, err := Default{}.Render(ctx, Request{
		SourcePath: "img/image.jpg",
		Variations: testVariations()[:1],
		Storage:    st,
		Replace:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	o := report.Outcomes["thumbnail"]
	if o.Status != Rendered || o.Path != "img/image.thumbnail.jpg" {
		t.Fatalf("outcome = %+v", o)
	}
	if ok, _ := st.Exists(ctx, "img/image.thumbnail_1.jpg"); ok {
		t.Error("replace created a disambiguated copy")
	}
	if w, h := sizeOf(t, st, o.Path); w != 100 || h != 66 {
		t.Errorf("size = %dx%d, want 100x66", w, h)
	}
}

func TestDefault_ReplaceUpdatesModTime(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	st, err := storage.NewLocal(root, "")
	if err != nil {
		t.Fatal(err)
	}
	put(t, st, "img/a.jpg", encodeImage(t, 600, 400, "jpeg"))

	req := Request{SourcePath: "img/a.jpg", Variations: testVariations()[:1], Storage: st}
	if _, err := (Default{}).Render(ctx, req); err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(root, "img", "a.thumbnail.jpg"), past, past); err != nil {
		t.Fatal(err)
	}

	// Without replace the file is left alone.
	if _, err := (Default{}).Render(ctx, req); err != nil {
		t.Fatal(err)
	}
	mt, _ := st.ModTime(ctx, "img/a.thumbnail.jpg")
	if mt.After(past.Add(time.Second)) {
		t.Errorf("mtime changed without replace: %v", mt)
	}

	req.Replace = true
	if _, err := (Default{}).Render(ctx, req); err != nil {
		t.Fatal(err)
	}
	mt, _ = st.ModTime(ctx, "img/a.thumbnail.jpg")
	if !mt.After(past.Add(time.Second)) {
		t.Errorf("mtime not updated by replace: %v", mt)
	}
}

func TestDefault_MissingSource(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	req := Request{SourcePath: "img/gone.jpg", Variations: testVariations(), Storage: st}

	_, err := Default{}.Render(ctx, req)
	var missing *SourceMissingError
	if !errors.As(err, &missing) || missing.Path != "img/gone.jpg" {
		t.Fatalf("expected SourceMissingError, got %v", err)
	}
	if !errors.Is(err, ErrSourceMissing) {
		t.Error("SourceMissingError does not match ErrSourceMissing")
	}

	req.IgnoreMissing = true
	report, err := Default{}.Render(ctx, req)
	if err != nil {
		t.Fatalf("ignore missing: %v", err)
	}
	if !report.MissingSource() {
		t.Error("MissingSource() = false")
	}
	if _, _, failed := report.Counts(); failed != len(req.Variations) {
		t.Errorf("failed = %d, want %d", failed, len(req.Variations))
	}
}

func TestDefault_ForcedFormat(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	put(t, st, "img/100.png", encodeImage(t, 100, 100, "png"))

	report, err := Default{}.Render(ctx, Request{
		SourcePath: "img/100.png",
		Variations: variation.Set{{Name: "thumbnail", Width: variation.Uint(50), Height: variation.Uint(50)}},
		Storage:    st,
		Format:     imaging.JPEG,
	})
	if err != nil {
		t.Fatal(err)
	}
	o := report.Outcomes["thumbnail"]
	if o.Path != "img/100.thumbnail.jpeg" {
		t.Fatalf("path = %q, want img/100.thumbnail.jpeg", o.Path)
	}
	rc, err := st.Open(ctx, o.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	if _, format, err := image.DecodeConfig(rc); err != nil || format != "jpeg" {
		t.Errorf("encoded as %q (%v), want jpeg", format, err)
	}
}

func TestDefault_PassThrough(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	put(t, st, "img/100.jpg", encodeImage(t, 100, 100, "jpeg"))

	report, err := Default{}.Render(ctx, Request{
		SourcePath: "img/100.jpg",
		Variations: variation.Set{{Name: "full", PassThrough: true}},
		Storage:    st,
	})
	if err != nil {
		t.Fatal(err)
	}
	if w, h := sizeOf(t, st, report.Outcomes["full"].Path); w != 100 || h != 100 {
		t.Errorf("size = %dx%d, want 100x100", w, h)
	}
}

func TestDefault_CorruptSourceFailsPerVariation(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	put(t, st, "img/broken.jpg", []byte("not an image"))

	report, err := Default{}.Render(ctx, Request{SourcePath: "img/broken.jpg", Variations: testVariations(), Storage: st})
	if err != nil {
		t.Fatalf("decode failures must not abort the call: %v", err)
	}
	for name, o := range report.Outcomes {
		if o.Status != Failed || !errors.Is(o.Reason, imaging.ErrDecode) {
			t.Errorf("%s: outcome %+v, want failed with ErrDecode", name, o)
		}
	}
}

func TestDefault_FormatFollowsContent(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		content  string
		wantPath string
		want     string
	}{
		{"no extension", "img/photo", "jpeg", "img/photo.thumbnail", "jpeg"},
		{"extension without encoder", "img/photo.heic", "jpeg", "img/photo.thumbnail.heic", "jpeg"},
		{"unknown extension", "img/data.bin", "png", "img/data.thumbnail.bin", "png"},
		{"extension disagrees with content", "img/photo.jpg", "png", "img/photo.thumbnail.jpg", "png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := storage.NewMemory()
			put(t, st, tt.source, encodeImage(t, 600, 400, tt.content))

			report, err := Default{}.Render(ctx, Request{SourcePath: tt.source, Variations: testVariations()[:1], Storage: st})
			if err != nil {
				t.Fatal(err)
			}
			o := report.Outcomes["thumbnail"]
			if o.Status != Rendered {
				t.Fatalf("outcome = %+v, want rendered", o)
			}
			if o.Path != tt.wantPath {
				t.Errorf("path = %q, want %q", o.Path, tt.wantPath)
			}
			rc, err := st.Open(ctx, o.Path)
			if err != nil {
				t.Fatal(err)
			}
			defer rc.Close()
			cfg, format, err := image.DecodeConfig(rc)
			if err != nil || format != tt.want {
				t.Errorf("encoded as %q (%v), want %s", format, err, tt.want)
			}
			if cfg.Width != 100 || cfg.Height != 66 {
				t.Errorf("size = %dx%d, want 100x66", cfg.Width, cfg.Height)
			}
		})
	}
}

func TestDefault_CancelledContext(t *testing.T) {
	st := storage.NewMemory()
	put(t, st, "img/a.jpg", encodeImage(t, 60, 40, "jpeg"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Default{}).Render(ctx, Request{SourcePath: "img/a.jpg", Variations: testVariations(), Storage: st}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDefault_NoStorage(t *testing.T) {
	if _, err := (Default{}).Render(context.Background(), Request{SourcePath: "a.jpg"}); err == nil {
		t.Error("expected error without storage")
	}
}

func TestDefault_InvalidatesDimensionCache(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	put(t, st, "img/a.jpg", encodeImage(t, 600, 400, "jpeg"))

	dims := newMemDims()
	dims.Set(ctx, "img/a.thumbnail.jpg", 1, 1)
	if _, err := (Default{Dims: dims}).Render(ctx, Request{SourcePath: "img/a.jpg", Variations: testVariations()[:1], Storage: st}); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := dims.Get(ctx, "img/a.thumbnail.jpg"); ok {
		t.Error("stale dimensions survived a render")
	}
}

func TestRendererFunc(t *testing.T) {
	var called bool
	r := RendererFunc(func(_ context.Context, req Request) (Report, error) {
		called = true
		return Report{Outcomes: map[string]Outcome{"custom": {Status: Rendered, Path: req.SourcePath}}}, nil
	})
	report, err := r.Render(context.Background(), Request{SourcePath: "x.jpg"})
	if err != nil || !called {
		t.Fatalf("RendererFunc not invoked: %v", err)
	}
	if report.Outcomes["custom"].Path != "x.jpg" {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestStatus_String(t *testing.T) {
	for s, want := range map[Status]string{Skipped: "skipped", Rendered: "rendered", Failed: "failed", Status(9): "status(9)"} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}

// --------------------------------------------------------------------------
// Cleanup
// --------------------------------------------------------------------------

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	put(t, st, "img/a.jpg", encodeImage(t, 600, 400, "jpeg"))
	set := testVariations()
	if _, err := (Default{}).Render(ctx, Request{SourcePath: "img/a.jpg", Variations: set, Storage: st}); err != nil {
		t.Fatal(err)
	}

	if err := Cleanup(ctx, st, "img/a.jpg", set, ""); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	for _, p := range append([]string{"img/a.jpg"}, "img/a.thumbnail.jpg", "img/a.medium.jpg", "img/a.square.jpg") {
		if ok, _ := st.Exists(ctx, p); ok {
			t.Errorf("%s survived cleanup", p)
		}
	}

	// Idempotent on already-removed files.
	if err := Cleanup(ctx, st, "img/a.jpg", set, ""); err != nil {
		t.Errorf("second Cleanup: %v", err)
	}
	if err := Cleanup(ctx, st, "", set, ""); err != nil {
		t.Errorf("empty source: %v", err)
	}
}

func TestDeleteVariations_ReportsErrors(t *testing.T) {
	err := DeleteVariations(context.Background(), storage.NewMemory(), "/abs.jpg", testVariations(), "")
	if !errors.Is(err, storage.ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
}

// --------------------------------------------------------------------------
// Handle
// --------------------------------------------------------------------------

type memDims struct {
	m    map[string][2]int
	gets int
}

func newMemDims() *memDims { return &memDims{m: map[string][2]int{}} }

func (d *memDims) Get(_ context.Context, p string) (int, int, bool) {
	d.gets++
	v, ok := d.m[p]
	return v[0], v[1], ok
}

func (d *memDims) Set(_ context.Context, p string, w, h int) { d.m[p] = [2]int{w, h} }

func (d *memDims) Invalidate(_ context.Context, paths ...string) {
	for _, p := range paths {
		delete(d.m, p)
	}
}

func TestHandle(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	put(t, st, "img/a.thumbnail.jpg", encodeImage(t, 100, 66, "jpeg"))

	dims := newMemDims()
	h := NewHandle(st, "thumbnail", "img/a.thumbnail.jpg", dims)

	if ok, err := h.Exists(ctx); err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if w, err := h.Width(ctx); err != nil || w != 100 {
		t.Errorf("Width = %d, %v", w, err)
	}
	if _, ok := dims.m["img/a.thumbnail.jpg"]; !ok {
		t.Error("dimensions not cached")
	}

	// Served from cache once populated.
	dims.m["img/a.thumbnail.jpg"] = [2]int{7, 8}
	if ht, err := h.Height(ctx); err != nil || ht != 8 {
		t.Errorf("Height = %d, %v; want cached 8", ht, err)
	}

	if h.URL() != "img/a.thumbnail.jpg" {
		t.Errorf("URL = %q", h.URL())
	}

	missing := NewHandle(st, "medium", "img/a.medium.jpg", nil)
	if ok, _ := missing.Exists(ctx); ok {
		t.Error("missing variation reported as existing")
	}
	if _, _, err := missing.Size(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Size of missing: %v", err)
	}
}

func TestHandle_URLFromBackend(t *testing.T) {
	st, err := storage.NewLocal(t.TempDir(), "https://cdn.example.com/media")
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandle(st, "thumbnail", "img/a.thumbnail.jpg", nil)
	if got := h.URL(); !strings.HasPrefix(got, "https://cdn.example.com/media/") {
		t.Errorf("URL = %q", got)
	}
}
