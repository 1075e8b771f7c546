// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"imagefield/internal/imaging"
	"imagefield/internal/storage"
	"imagefield/internal/variation"
)

// DeleteVariations removes every variation file derived from source.
// Missing files are ignored. All deletions are attempted; failures are
// joined into the returned error.
func DeleteVariations(ctx context.Context, st storage.Storage, source string, set variation.Set, format imaging.Format) error {
	var errs []error
	for _, spec := range set {
		p := VariationPath(source, spec.Name, format)
		if err := st.Delete(ctx, p); err != nil {
			slog.Warn("failed to delete variation", "path", p, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Cleanup removes the source file and all of its variations.
func Cleanup(ctx context.Context, st storage.Storage, source string, set variation.Set, format imaging.Format) error {
	if source == "" {
		return nil
	}
	err := DeleteVariations(ctx, st, source, set, format)
	if delErr := st.Delete(ctx, source); delErr != nil {
		slog.Warn("failed to delete source", "path", source, "error", delErr)
		err = errors.Join(err, delErr)
	}
	if err != nil {
		return fmt.Errorf("cleanup %s: %w", source, err)
	}
	return nil
}
