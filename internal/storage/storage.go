// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package storage provides the narrow file storage abstraction consumed by
// the render engine, with a local filesystem backend (afero) and an
// S3-compatible object storage backend (AWS SDK v2).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Open for a path that does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidPath is returned for absolute paths or paths escaping the root.
	ErrInvalidPath = errors.New("invalid storage path")
)

// Storage is the set of operations the render engine relies on. Paths are
// slash-separated and relative to the backend root. Save followed by
// Exists must observe the write.
type Storage interface {
	Exists(ctx context.Context, p string) (bool, error)
	Open(ctx context.Context, p string) (io.ReadCloser, error)
	// Save writes r under p, or under a disambiguated name when p is
	// already taken, and returns the committed path.
	Save(ctx context.Context, p string, r io.Reader) (string, error)
	// Delete removes p. Deleting a missing file is not an error.
	Delete(ctx context.Context, p string) error
}

// Stater is implemented by backends that expose modification times.
type Stater interface {
	ModTime(ctx context.Context, p string) (time.Time, error)
}

// URLer is implemented by backends that can serve files over HTTP.
type URLer interface {
	URL(p string) string
}

// Backend names accepted by New.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Root    string // local: base directory
	BaseURL string // local: public URL prefix

	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3PublicURL string
}

// New builds the backend described by opts.
func New(opts Options) (Storage, error) {
	switch opts.Backend {
	case "", BackendLocal:
		return NewLocal(opts.Root, opts.BaseURL)
	case BackendS3:
		c, err := NewS3(opts.S3Endpoint, opts.S3Region, opts.S3AccessKey, opts.S3SecretKey, opts.S3Bucket, opts.S3PublicURL)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("storage: s3 backend requires endpoint and credentials")
		}
		return c, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}

// cleanPath normalizes a storage path and rejects escapes from the root.
func cleanPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidPath, p)
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q escapes the storage root", ErrInvalidPath, p)
	}
	return c, nil
}
