// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"imagefield/internal/variation"
)

// Local stores files on an afero filesystem: the OS filesystem rooted at a
// directory in production, an in-memory filesystem in tests.
type Local struct {
	fs      afero.Fs
	baseURL string
	policy  variation.NamePolicy
}

// NewLocal creates a Local backend rooted at dir, creating it if needed.
func NewLocal(dir, baseURL string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("local storage: root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: create root %s: %w", dir, err)
	}
	slog.Debug("local storage ready", "root", dir)
	return NewLocalFs(afero.NewBasePathFs(afero.NewOsFs(), dir), baseURL), nil
}

// NewMemory returns a Local backend on an in-memory filesystem.
func NewMemory() *Local {
	return NewLocalFs(afero.NewMemMapFs(), "")
}

// NewLocalFs wraps an existing afero filesystem.
func NewLocalFs(fsys afero.Fs, baseURL string) *Local {
	return &Local{
		fs:      fsys,
		baseURL: strings.TrimRight(baseURL, "/"),
		policy:  variation.NumericSuffix{},
	}
}

// WithNamePolicy replaces the name disambiguation policy.
func (l *Local) WithNamePolicy(p variation.NamePolicy) *Local {
	l.policy = p
	return l
}

// Fs exposes the underlying filesystem.
func (l *Local) Fs() afero.Fs { return l.fs }

func (l *Local) Exists(_ context.Context, p string) (bool, error) {
	name, err := cleanPath(p)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(l.fs, filepath.FromSlash(name))
	if err != nil {
		return false, fmt.Errorf("local exists %s: %w", name, err)
	}
	return ok, nil
}

func (l *Local) Open(_ context.Context, p string) (io.ReadCloser, error) {
	name, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	f, err := l.fs.Open(filepath.FromSlash(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("local open %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("local open %s: %w", name, err)
	}
	return f, nil
}

func (l *Local) Save(ctx context.Context, p string, r io.Reader) (string, error) {
	name, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	name, err = variation.Available(name, l.policy, func(c string) (bool, error) {
		return l.Exists(ctx, c)
	})
	if err != nil {
		return "", fmt.Errorf("local save: %w", err)
	}
	if err := afero.WriteReader(l.fs, filepath.FromSlash(name), r); err != nil {
		return "", fmt.Errorf("local save %s: %w", name, err)
	}
	return name, nil
}

func (l *Local) Delete(_ context.Context, p string) error {
	name, err := cleanPath(p)
	if err != nil {
		return err
	}
	err = l.fs.Remove(filepath.FromSlash(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local delete %s: %w", name, err)
	}
	return nil
}

// ModTime returns the modification time of p.
func (l *Local) ModTime(_ context.Context, p string) (time.Time, error) {
	name, err := cleanPath(p)
	if err != nil {
		return time.Time{}, err
	}
	info, err := l.fs.Stat(filepath.FromSlash(name))
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, fmt.Errorf("local stat %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("local stat %s: %w", name, err)
	}
	return info.ModTime(), nil
}

// URL returns the public URL of p, or p itself when no base URL is set.
func (l *Local) URL(p string) string {
	if l.baseURL == "" {
		return p
	}
	return l.baseURL + "/" + strings.TrimPrefix(p, "/")
}
