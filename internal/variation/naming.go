// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package variation

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Original is the reserved token that refers to the source file itself.
// No variation may be declared under this name.
const Original = "original"

// maxNameAttempts bounds the search for a free storage name.
const maxNameAttempts = 1000

// ErrNoAvailableName is returned when every candidate name is taken.
var ErrNoAvailableName = errors.New("no available file name")

// Path computes the storage path of a variation from its source path. The
// variation name is inserted before the final extension:
//
//	img/photo.jpg + thumbnail => img/photo.thumbnail.jpg
//
// ext, when non-empty, replaces the source extension (format conversion).
// A source without a directory produces a co-located variation.
func Path(sourcePath, name, ext string) string {
	srcExt := path.Ext(sourcePath)
	stem := strings.TrimSuffix(sourcePath, srcExt)
	if ext == "" {
		ext = srcExt
	} else if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return stem + "." + name + ext
}

// NamePolicy produces alternative names for a path that is already taken.
// Attempt 0 must return p unchanged.
type NamePolicy interface {
	Candidate(p string, attempt int) string
}

// NumericSuffix disambiguates by appending _1, _2, ... before the extension:
// photo.jpg, photo_1.jpg, photo_2.jpg.
type NumericSuffix struct{}

func (NumericSuffix) Candidate(p string, attempt int) string {
	if attempt == 0 {
		return p
	}
	ext := path.Ext(p)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(p, ext), attempt, ext)
}

// Available returns the first candidate of policy for which taken reports
// false. The check is advisory: a concurrent writer may claim the name
// between this call and the write, in which case the loser produces one
// more disambiguated file.
func Available(p string, policy NamePolicy, taken func(string) (bool, error)) (string, error) {
	if policy == nil {
		policy = NumericSuffix{}
	}
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		candidate := policy.Candidate(p, attempt)
		used, err := taken(candidate)
		if err != nil {
			return "", fmt.Errorf("check name %s: %w", candidate, err)
		}
		if !used {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w for %s", ErrNoAvailableName, p)
}
