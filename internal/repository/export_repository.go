package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lewtec/pagetagger/internal/domain"
)

// timeFormat sorts lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ExportRepository implements domain.ExportRepository on SQLite
type ExportRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewExportRepository creates a new ExportRepository
func NewExportRepository(db *sql.DB) *ExportRepository {
	return &ExportRepository{db: db, now: time.Now}
}

var _ domain.ExportRepository = (*ExportRepository)(nil)

const exportColumns = `id, document, archive, annotations, pages, sha256, size, exported_at`

// Create stores a new export record
func (r *ExportRepository) Create(ctx context.Context, rec domain.ExportRecord) (*domain.ExportRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ExportedAt.IsZero() {
		rec.ExportedAt = r.now()
	}
	rec.ExportedAt = rec.ExportedAt.UTC()

	_, err := r.db.ExecContext(ctx, `
INSERT INTO exports (`+exportColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Document, rec.Archive, rec.Annotations, rec.Pages, rec.SHA256, rec.Size,
		rec.ExportedAt.Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("insert export %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// Get retrieves an export by its ID
func (r *ExportRepository) Get(ctx context.Context, id string) (*domain.ExportRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+exportColumns+` FROM exports WHERE id = ?`, id)
	rec, err := scanExport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// List retrieves exports newest first
func (r *ExportRepository) List(ctx context.Context, limit, offset int) ([]*domain.ExportRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.query(ctx, `SELECT `+exportColumns+` FROM exports
ORDER BY exported_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset)
}

// ListByDocument retrieves every export of one document
func (r *ExportRepository) ListByDocument(ctx context.Context, document string) ([]*domain.ExportRecord, error) {
	return r.query(ctx, `SELECT `+exportColumns+` FROM exports
WHERE document = ? ORDER BY exported_at DESC, rowid DESC`, document)
}

// Count returns the total number of exports
func (r *ExportRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exports`).Scan(&n)
	return n, err
}

// Stats returns ledger totals
func (r *ExportRepository) Stats(ctx context.Context) (*domain.ExportStats, error) {
	var s domain.ExportStats
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(annotations), 0), COUNT(DISTINCT document) FROM exports`,
	).Scan(&s.TotalExports, &s.TotalAnnotations, &s.Documents)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete removes an export by ID
func (r *ExportRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM exports WHERE id = ?`, id)
	return err
}

func (r *ExportRepository) query(ctx context.Context, q string, args ...any) ([]*domain.ExportRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.ExportRecord
	for rows.Next() {
		rec, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanExport converts a row into a domain.ExportRecord
func scanExport(s scanner) (*domain.ExportRecord, error) {
	var (
		rec        domain.ExportRecord
		exportedAt string
	)
	err := s.Scan(&rec.ID, &rec.Document, &rec.Archive, &rec.Annotations, &rec.Pages, &rec.SHA256, &rec.Size, &exportedAt)
	if err != nil {
		return nil, err
	}
	rec.ExportedAt, err = time.Parse(timeFormat, exportedAt)
	if err != nil {
		return nil, fmt.Errorf("export %s: bad timestamp %q: %w", rec.ID, exportedAt, err)
	}
	return &rec, nil
}
