// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package slug

import "testing"

func TestGenerate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple two words", "Hello World", "hello-world"},
		{"punctuation marks", "Hello, World! How's it going?", "hello-world-hows-it-going"},
		{"underscores kept", "summer_2026 trip", "summer_2026-trip"},
		{"tabs and newlines", "hello\tworld\nagain", "hello-world-again"},
		{"multiple spaces collapsed", "hello    world", "hello-world"},
		{"hyphens trimmed", "  --hello -- world--  ", "hello-world"},
		{"slashes stripped", "Frontend/Backend", "frontendbackend"},
		{"date-like string", "2026-02-25", "2026-02-25"},
		{"empty string", "", ""},
		{"only special characters", "!@#$%^&*()", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Generate(tt.input); got != tt.want {
				t.Errorf("Generate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "photo.jpg", "photo.jpg"},
		{"uppercase extension", "IMG_0042.JPG", "img_0042.jpg"},
		{"spaces", "My Holiday.png", "my-holiday.png"},
		{"inner dots removed", "600x400.thumbnail.jpg", "600x400thumbnail.jpg"},
		{"directory dropped", "../../etc/passwd.gif", "passwd.gif"},
		{"windows path", `C:\Users\me\cat.webp`, "cat.webp"},
		{"no extension", "README", "readme"},
		{"unusable extension", "photo.j p g", "photo"},
		{"empty stem", "!!!.jpg", "image.jpg"},
		{"empty input", "", "image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileName(tt.input, "image"); got != tt.want {
				t.Errorf("FileName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
