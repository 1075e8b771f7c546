// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"imagefield/internal/batch"
	"imagefield/internal/field"
	"imagefield/internal/models"
)

// RecordStore persists the records that own image field values.
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore creates a new RecordStore with the given database connection.
func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

// recordColumns lists the columns selected in record queries.
const recordColumns = `id, app, model, field, file_path, created_at, updated_at`

// scanRecord scans a record row from the result set.
func scanRecord(scanner interface{ Scan(...any) error }) (*models.ImageRecord, error) {
	var r models.ImageRecord
	err := scanner.Scan(&r.ID, &r.App, &r.Model, &r.Field, &r.FilePath, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserts a new record and returns it with the generated ID.
func (s *RecordStore) Create(ctx context.Context, r *models.ImageRecord) (*models.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO image_records (app, model, field, file_path)
		VALUES ($1, $2, $3, $4)
		RETURNING `+recordColumns,
		r.App, r.Model, r.Field, r.FilePath,
	)
	created, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	return created, nil
}

// FindByID retrieves a single record by its UUID. Returns nil, nil when
// no record matches.
func (s *RecordStore) FindByID(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM image_records WHERE id = $1`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find record by id: %w", err)
	}
	return r, nil
}

// UpdatePath sets a record's file path and returns the previous one, which
// the caller hands to the field's OnFileAssigned hook.
func (s *RecordStore) UpdatePath(ctx context.Context, id uuid.UUID, filePath string) (string, error) {
	var old string
	err := s.db.QueryRowContext(ctx, `
		WITH prev AS (
			SELECT id, file_path FROM image_records WHERE id = $1 FOR UPDATE
		)
		UPDATE image_records r
		SET file_path = $2, updated_at = NOW()
		FROM prev
		WHERE r.id = prev.id
		RETURNING prev.file_path
	`, id, filePath).Scan(&old)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("update record path: %s: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return "", fmt.Errorf("update record path: %w", err)
	}
	return old, nil
}

// Delete removes a record and returns it so the caller can clean up the
// stored files. Returns nil, nil when no record matches.
func (s *RecordStore) Delete(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM image_records WHERE id = $1
		RETURNING `+recordColumns, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete record: %w", err)
	}
	return r, nil
}

// DeleteByField removes every record of a field in one statement and
// returns them for file cleanup.
func (s *RecordStore) DeleteByField(ctx context.Context, ref field.Ref) ([]models.ImageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM image_records
		WHERE app = $1 AND model = $2 AND field = $3
		RETURNING `+recordColumns,
		ref.App, ref.Model, ref.Field,
	)
	if err != nil {
		return nil, fmt.Errorf("delete records of %s: %w", ref, err)
	}
	defer rows.Close()

	var deleted []models.ImageRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deleted record: %w", err)
		}
		deleted = append(deleted, *r)
	}
	return deleted, rows.Err()
}

// ListFiles returns the ID and file path of every record of a field whose
// file is set. It implements batch.RecordLister.
func (s *RecordStore) ListFiles(ctx context.Context, ref field.Ref) ([]batch.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path FROM image_records
		WHERE app = $1 AND model = $2 AND field = $3 AND file_path <> ''
		ORDER BY created_at
	`, ref.App, ref.Model, ref.Field)
	if err != nil {
		return nil, fmt.Errorf("list files of %s: %w", ref, err)
	}
	defer rows.Close()

	var records []batch.Record
	for rows.Next() {
		var id uuid.UUID
		var p string
		if err := rows.Scan(&id, &p); err != nil {
			return nil, fmt.Errorf("scan record file: %w", err)
		}
		records = append(records, batch.Record{ID: id.String(), Path: p})
	}
	return records, rows.Err()
}

// CountByField returns the number of records of a field.
func (s *RecordStore) CountByField(ctx context.Context, ref field.Ref) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM image_records WHERE app = $1 AND model = $2 AND field = $3
	`, ref.App, ref.Model, ref.Field).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records of %s: %w", ref, err)
	}
	return count, nil
}
