// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"path"
	"time"

	"github.com/google/uuid"
)

// ImageRecord is a persisted record owning one image field value. The file
// itself lives in storage; only its path is stored here.
type ImageRecord struct {
	ID        uuid.UUID `json:"id"`
	App       string    `json:"app"`
	Model     string    `json:"model"`
	Field     string    `json:"field"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasFile reports whether the record's field value is set.
func (r *ImageRecord) HasFile() bool {
	return r.FilePath != ""
}

// FieldPath returns the app.model.field token the record belongs to.
func (r *ImageRecord) FieldPath() string {
	return r.App + "." + r.Model + "." + r.Field
}

// FileName returns the base name of the stored file.
func (r *ImageRecord) FileName() string {
	if r.FilePath == "" {
		return ""
	}
	return path.Base(r.FilePath)
}
