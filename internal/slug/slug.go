// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug turns arbitrary uploaded file names into storage-safe ones.
package slug

import (
	"path"
	"regexp"
	"strings"
)

var (
	// unsafe matches anything that isn't a letter, digit, space, '_' or '-'.
	unsafe = regexp.MustCompile(`[^a-z0-9\s_-]`)
	// multipleHyphens collapses consecutive hyphens into one.
	multipleHyphens = regexp.MustCompile(`-{2,}`)
	// safeExt matches a usable extension (without the dot).
	safeExt = regexp.MustCompile(`^[a-z0-9]{1,8}$`)
)

// Generate creates a lowercase hyphenated slug from the given string.
// Example: "Hello, World! 2026" → "hello-world-2026"
func Generate(s string) string {
	result := strings.ToLower(strings.TrimSpace(s))
	result = unsafe.ReplaceAllString(result, "")
	result = strings.Join(strings.Fields(result), "-")
	result = multipleHyphens.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")
	return result
}

// FileName sanitizes the base name of an uploaded file. Directory parts are
// dropped and dots inside the stem are removed, so the only dot left is the
// one before the extension; variation names are inserted there. An empty
// stem becomes fallback.
//
//	"../My Holiday.Photo.JPG" → "my-holidayphoto.jpg"
func FileName(name, fallback string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(path.Ext(base))
	stem := strings.TrimSuffix(base, path.Ext(base))
	if !safeExt.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}

	stem = Generate(strings.ReplaceAll(stem, ".", ""))
	if stem == "" {
		stem = fallback
	}
	return stem + ext
}
