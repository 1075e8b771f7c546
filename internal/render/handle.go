// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package render

import (
	"context"
	"fmt"

	"imagefield/internal/imaging"
	"imagefield/internal/storage"
)

// DimensionCache memoizes the pixel size of stored files so handles do not
// re-read images on every access.
type DimensionCache interface {
	Get(ctx context.Context, path string) (width, height int, ok bool)
	Set(ctx context.Context, path string, width, height int)
	Invalidate(ctx context.Context, paths ...string)
}

// Handle is a lazy reference to one stored variation. Nothing is read from
// storage until a method asks for it.
type Handle struct {
	Name string
	Path string

	storage storage.Storage
	dims    DimensionCache
}

// NewHandle returns a handle for the variation stored at path. dims may be nil.
func NewHandle(st storage.Storage, name, path string, dims DimensionCache) *Handle {
	return &Handle{Name: name, Path: path, storage: st, dims: dims}
}

// Exists reports whether the variation file has been rendered.
func (h *Handle) Exists(ctx context.Context) (bool, error) {
	return h.storage.Exists(ctx, h.Path)
}

// URL returns the public URL, or the storage path when the backend has no
// URL scheme.
func (h *Handle) URL() string {
	if u, ok := h.storage.(storage.URLer); ok {
		return u.URL(h.Path)
	}
	return h.Path
}

// Size returns the pixel dimensions of the variation file.
func (h *Handle) Size(ctx context.Context) (int, int, error) {
	if h.dims != nil {
		if w, ht, ok := h.dims.Get(ctx, h.Path); ok {
			return w, ht, nil
		}
	}

	rc, err := h.storage.Open(ctx, h.Path)
	if err != nil {
		return 0, 0, fmt.Errorf("variation %s: %w", h.Name, err)
	}
	defer rc.Close()

	w, ht, err := imaging.Dimensions(rc)
	if err != nil {
		return 0, 0, fmt.Errorf("variation %s: %w", h.Name, err)
	}
	if h.dims != nil {
		h.dims.Set(ctx, h.Path, w, ht)
	}
	return w, ht, nil
}

func (h *Handle) Width(ctx context.Context) (int, error) {
	w, _, err := h.Size(ctx)
	return w, err
}

func (h *Handle) Height(ctx context.Context) (int, error) {
	_, ht, err := h.Size(ctx)
	return ht, err
}
