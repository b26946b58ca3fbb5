package store

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"scan-viewer/api/internal/vlm/types"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil || len(files) == 0 {
		t.Fatalf("no embedded migrations: %v", err)
	}
	b, err := fs.ReadFile(migrations, files[0])
	if err != nil {
		t.Fatal(err)
	}
	sql := string(b)
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "primary key (media_hash, engine, model, sensitivity)"} {
		if !strings.Contains(sql, want) {
			t.Errorf("migration missing %q", want)
		}
	}
}

func TestUpsertRejectsEmptyHash(t *testing.T) {
	r := NewAnalysisRepo(nil)
	err := r.Upsert(context.Background(), CacheKey{Engine: "gemini", Sensitivity: types.SensitivityStandard}, types.AnalysisResult{})
	if err == nil {
		t.Error("expected error for empty media hash")
	}
}
