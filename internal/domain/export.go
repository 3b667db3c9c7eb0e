package domain

import (
	"context"
	"time"
)

// ExportRecord describes one archive produced by the export pipeline.
type ExportRecord struct {
	ID          string
	Document    string
	Archive     string
	Annotations int
	Pages       int
	SHA256      string
	Size        int64
	ExportedAt  time.Time
}

// ExportStats summarizes the export ledger.
type ExportStats struct {
	TotalExports     int64
	TotalAnnotations int64
	Documents        int64
}

// ExportRepository defines the interface for export ledger storage operations
type ExportRepository interface {
	// Create stores a new record; ID and ExportedAt are filled in when empty.
	Create(ctx context.Context, rec ExportRecord) (*ExportRecord, error)

	// Get retrieves a record by id, nil when it does not exist
	Get(ctx context.Context, id string) (*ExportRecord, error)

	// List retrieves records newest first (paginated)
	List(ctx context.Context, limit, offset int) ([]*ExportRecord, error)

	// ListByDocument retrieves every export of one document, newest first
	ListByDocument(ctx context.Context, document string) ([]*ExportRecord, error)

	// Count returns the number of records
	Count(ctx context.Context) (int64, error)

	// Stats returns ledger totals
	Stats(ctx context.Context) (*ExportStats, error)

	// Delete removes a record by id
	Delete(ctx context.Context, id string) error
}
