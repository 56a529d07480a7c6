package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/prodscrape/internal/database"
	"github.com/nao1215/prodscrape/internal/model"
)

// seedHistory stores two runs and returns the database directory.
func seedHistory(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "db")
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	for i, price := range []string{"100", "100"} {
		run := runWith(0, newRecord("https://x/a", model.KeyModel, "A", model.KeyPrice, price))
		run.StartedAt = base.Add(time.Duration(i) * time.Hour)
		run.FinishedAt = run.StartedAt.Add(time.Second)
		run.Links = []string{"https://x/a"}
		if i == 1 {
			run.Interrupted = true
		}
		if _, err := db.SaveRun(context.Background(), run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}
	return dir
}

// TestHistoryCommand tests listing, exporting and deleting runs.
func TestHistoryCommand(t *testing.T) {
	t.Parallel()

	t.Run("lists runs newest first", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := execute(t, "history", "--db-dir", seedHistory(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "Saved runs (2)") {
			t.Errorf("unexpected output:\n%s", stdout)
		}
		if strings.Index(stdout, "interrupted") > strings.Index(stdout, "complete") {
			t.Errorf("expected the interrupted (newest) run first:\n%s", stdout)
		}
	})

	t.Run("exports a run as markdown", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := execute(t, "history", "--db-dir", seedHistory(t), "--run", "1", "-f", "markdown")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "# Product Data") || !strings.Contains(stdout, "https://x/a") {
			t.Errorf("unexpected export:\n%s", stdout)
		}
	})

	t.Run("deletes a run", func(t *testing.T) {
		t.Parallel()

		dir := seedHistory(t)
		stdout, _, err := execute(t, "history", "--db-dir", dir, "--delete", "1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "Deleted run #1") {
			t.Errorf("unexpected output %q", stdout)
		}

		if _, _, err := execute(t, "history", "--db-dir", dir, "--run", "1"); err == nil {
			t.Error("expected error for deleted run")
		}
	})

	t.Run("compare needs two runs of the listing", func(t *testing.T) {
		t.Parallel()

		dir := seedHistory(t)
		stdout, _, err := execute(t, "compare", "--db-dir", dir, "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, `"unchanged": 1`) {
			t.Errorf("unexpected comparison:\n%s", stdout)
		}

		if _, _, err := execute(t, "history", "--db-dir", dir, "--delete", "1"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, _, err := execute(t, "compare", "--db-dir", dir); err == nil {
			t.Error("expected error with a single run")
		}
	})

	t.Run("missing database", func(t *testing.T) {
		t.Parallel()

		_, _, err := execute(t, "history", "--db-dir", filepath.Join(t.TempDir(), "none"))
		if err == nil || !strings.Contains(err.Error(), "no saved runs yet") {
			t.Errorf("expected missing database error, got %v", err)
		}
	})

	t.Run("rejects unknown export format before opening", func(t *testing.T) {
		t.Parallel()

		_, _, err := execute(t, "history", "--db-dir", filepath.Join(t.TempDir(), "none"), "--run", "1", "-f", "xml")
		if err == nil || strings.Contains(err.Error(), "no saved runs yet") {
			t.Errorf("expected format error, got %v", err)
		}
	})
}
