package annotation

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lewtec/pagetagger/internal/repository"
)

// GetDatabase opens the export ledger, creating its directory and schema when
// missing.
func GetDatabase(filename string) (*sql.DB, error) {
	if filename != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
			return nil, fmt.Errorf("while creating ledger directory: %w", err)
		}
	}
	return repository.Open(filename)
}
