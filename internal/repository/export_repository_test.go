package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lewtec/pagetagger/internal/domain"
)

func setupTestRepository(t *testing.T) (*ExportRepository, context.Context) {
	t.Helper()
	db := SetupTestDB(t)
	t.Cleanup(func() { CleanupTestDB(t, db) })
	return NewExportRepository(db), context.Background()
}

func record(document string, annotations int, at time.Time) domain.ExportRecord {
	return domain.ExportRecord{
		Document:    document,
		Archive:     document + "_annotations.zip",
		Annotations: annotations,
		Pages:       1,
		SHA256:      "deadbeef",
		Size:        1234,
		ExportedAt:  at,
	}
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestExportRepository_Create(t *testing.T) {
	repo, ctx := setupTestRepository(t)

	t.Run("fills id and time", func(t *testing.T) {
		repo.now = func() time.Time { return base }
		rec, err := repo.Create(ctx, record("a.pdf", 3, time.Time{}))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if rec.ID == "" {
			t.Error("Expected generated ID")
		}
		if !rec.ExportedAt.Equal(base) {
			t.Errorf("ExportedAt = %v, want %v", rec.ExportedAt, base)
		}

		got, err := repo.Get(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if diff := cmp.Diff(rec, got); diff != "" {
			t.Errorf("Get() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("keeps given id", func(t *testing.T) {
		in := record("b.pdf", 1, base)
		in.ID = "fixed"
		rec, err := repo.Create(ctx, in)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if rec.ID != "fixed" {
			t.Errorf("ID = %v, want fixed", rec.ID)
		}
	})

	t.Run("fails on duplicate id", func(t *testing.T) {
		in := record("c.pdf", 1, base)
		in.ID = "fixed"
		if _, err := repo.Create(ctx, in); err == nil {
			t.Error("Expected error for duplicate id")
		}
	})

	t.Run("normalizes time zone", func(t *testing.T) {
		loc := time.FixedZone("BRT", -3*60*60)
		rec, err := repo.Create(ctx, record("d.pdf", 1, base.In(loc)))
		if err != nil {
			t.Fatal(err)
		}
		got, _ := repo.Get(ctx, rec.ID)
		if !got.ExportedAt.Equal(base) || got.ExportedAt.Location() != time.UTC {
			t.Errorf("ExportedAt = %v, want %v in UTC", got.ExportedAt, base)
		}
	})
}

func TestExportRepository_Get(t *testing.T) {
	repo, ctx := setupTestRepository(t)
	got, err := repo.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %v, want nil", got)
	}
}

func TestExportRepository_List(t *testing.T) {
	repo, ctx := setupTestRepository(t)
	var ids []string
	for i, doc := range []string{"a.pdf", "b.pdf", "a.pdf", "c.pdf"} {
		rec, err := repo.Create(ctx, record(doc, i+1, base.Add(time.Duration(i)*time.Millisecond)))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rec.ID)
	}

	idsOf := func(recs []*domain.ExportRecord) []string {
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.ID
		}
		return out
	}

	t.Run("newest first", func(t *testing.T) {
		got, err := repo.List(ctx, 0, 0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		want := []string{ids[3], ids[2], ids[1], ids[0]}
		if diff := cmp.Diff(want, idsOf(got)); diff != "" {
			t.Errorf("List() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("paginates", func(t *testing.T) {
		got, err := repo.List(ctx, 2, 1)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if diff := cmp.Diff([]string{ids[2], ids[1]}, idsOf(got)); diff != "" {
			t.Errorf("List(2, 1) mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("by document", func(t *testing.T) {
		got, err := repo.ListByDocument(ctx, "a.pdf")
		if err != nil {
			t.Fatalf("ListByDocument() error = %v", err)
		}
		if diff := cmp.Diff([]string{ids[2], ids[0]}, idsOf(got)); diff != "" {
			t.Errorf("ListByDocument() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("counts and stats", func(t *testing.T) {
		n, err := repo.Count(ctx)
		if err != nil || n != 4 {
			t.Errorf("Count() = %d, %v, want 4", n, err)
		}
		stats, err := repo.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		want := &domain.ExportStats{TotalExports: 4, TotalAnnotations: 10, Documents: 3}
		if diff := cmp.Diff(want, stats); diff != "" {
			t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("deletes", func(t *testing.T) {
		if err := repo.Delete(ctx, ids[0]); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := repo.Delete(ctx, "missing"); err != nil {
			t.Errorf("Delete(missing) error = %v", err)
		}
		if n, _ := repo.Count(ctx); n != 3 {
			t.Errorf("Count() = %d, want 3", n)
		}
	})
}

func TestExportRepository_EmptyStats(t *testing.T) {
	repo, ctx := setupTestRepository(t)
	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if *stats != (domain.ExportStats{}) {
		t.Errorf("Stats() = %+v, want zero", stats)
	}
}

func TestMigrate(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	version, dirty, err := SchemaVersion(db)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("SchemaVersion() = %d, dirty=%v, want 1, clean", version, dirty)
	}
	MustExec(t, db, `INSERT INTO exports (id, document, archive, annotations, pages, sha256, size, exported_at)
VALUES ('x', 'd', 'a', 0, 0, '', 0, '2024-01-01T00:00:00.000000000Z')`)
}
