// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package field

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/spf13/afero"

	"imagefield/internal/render"
)

// ErrNotRegistered is returned when no field matches a reference.
var ErrNotRegistered = errors.New("field not registered")

// Registry holds the configured fields, keyed by reference.
type Registry struct {
	mu     sync.RWMutex
	fields map[Ref]*Field
}

func NewRegistry() *Registry {
	return &Registry{fields: make(map[Ref]*Field)}
}

// Register adds a field. Registering the same reference twice is an error.
func (r *Registry) Register(f *Field) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fields[f.Ref]; ok {
		return fmt.Errorf("field %s already registered", f.Ref)
	}
	r.fields[f.Ref] = f
	return nil
}

// Lookup returns the field registered under ref.
func (r *Registry) Lookup(ref Ref) (*Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fields[ref]
	return f, ok
}

// Refs lists the registered references in lexical order.
func (r *Registry) Refs() []Ref {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]Ref, 0, len(r.fields))
	for ref := range r.fields {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
	return refs
}

// ResolveJob rebuilds a queued render job against the registered field.
// It returns the field's direct renderer so a worker never re-queues.
func (r *Registry) ResolveJob(_ context.Context, job render.Job) (render.Request, render.Renderer, error) {
	ref, ok := ParseRef(job.Field)
	if !ok {
		return render.Request{}, nil, fmt.Errorf("job %s: malformed field %q", job.ID, job.Field)
	}
	f, ok := r.Lookup(ref)
	if !ok {
		return render.Request{}, nil, fmt.Errorf("job %s: %w: %s", job.ID, ErrNotRegistered, ref)
	}
	return f.Request(job.SourcePath, job.Replace, job.IgnoreMissing), f.DirectRenderer(), nil
}

// Load builds a registry from a parsed fields file.
func Load(file File, deps Deps) (*Registry, error) {
	reg := NewRegistry()
	for key, def := range file.Fields {
		ref, ok := ParseRef(key)
		if !ok {
			return nil, fmt.Errorf("fields file: %q is not of the form app.model.field", key)
		}
		f, err := New(ref, def, deps)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(f); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// LoadFile reads and builds the fields file at name.
func LoadFile(fsys afero.Fs, name string, deps Deps) (*Registry, error) {
	data, err := afero.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read fields file %s: %w", name, err)
	}
	file, err := ParseFile(data)
	if err != nil {
		return nil, err
	}
	reg, err := Load(file, deps)
	if err != nil {
		return nil, err
	}
	slog.Info("fields loaded", "file", name, "count", len(file.Fields))
	return reg, nil
}
