package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/OFFIS-RIT/graphvec/pkg/common"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_report.txt", "Revenue grew by 5%.")
	writeFile(t, dir, "a_prices.csv", "ticker,price\nAAPL,190\n,\nMSFT,410\n")
	writeFile(t, dir, "c_meta.json", `{ "company": "Apple", "year": 2024 }`)
	writeFile(t, dir, "nested/d_notes.TXT", "Fed held rates.")
	writeFile(t, dir, "image.png", "not text")
	writeFile(t, dir, "broken.json", `{"company":`)
	writeFile(t, dir, "broken.pdf", "not a pdf")

	records, err := LoadDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var names []string
	for _, r := range records {
		names = append(names, r.Metadata["filename"].(string))
	}
	want := []string{"a_prices.csv", "b_report.txt", "c_meta.json", "d_notes.TXT"}
	if !slices.Equal(names, want) {
		t.Fatalf("expected %v, got %v", want, names)
	}

	csvRec := records[0]
	if csvRec.Metadata["rows"] != 2 {
		t.Fatalf("expected 2 rows, got %v", csvRec.Metadata["rows"])
	}
	if cols := csvRec.Metadata["columns"].([]string); !slices.Equal(cols, []string{"ticker", "price"}) {
		t.Fatalf("expected columns [ticker price], got %v", cols)
	}
	if csvRec.Metadata["type"] != "csv" {
		t.Fatalf("expected type csv, got %v", csvRec.Metadata["type"])
	}

	txtRec := records[1]
	if txtRec.Text != "Revenue grew by 5%." {
		t.Fatalf("expected file content, got %q", txtRec.Text)
	}
	if txtRec.Metadata["size"] != int64(len("Revenue grew by 5%.")) {
		t.Fatalf("expected size %d, got %v", len("Revenue grew by 5%."), txtRec.Metadata["size"])
	}
	if txtRec.Metadata["path"] != filepath.Join(dir, "b_report.txt") {
		t.Fatalf("expected path to be recorded, got %v", txtRec.Metadata["path"])
	}
	if _, ok := txtRec.Metadata["modified"].(string); !ok {
		t.Fatalf("expected modified timestamp, got %v", txtRec.Metadata["modified"])
	}

	jsonRec := records[2]
	if jsonRec.Text != `{"company":"Apple","year":2024}` {
		t.Fatalf("expected compact JSON, got %s", jsonRec.Text)
	}
	if keys := jsonRec.Metadata["keys"].([]string); !slices.Equal(keys, []string{"company", "year"}) {
		t.Fatalf("expected keys in document order, got %v", keys)
	}

	if records[3].Metadata["type"] != "txt" {
		t.Fatalf("expected lower-cased type, got %v", records[3].Metadata["type"])
	}
}

func TestLoadDirectoryJSONArray(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "list.json", `[1, 2, 3]`)

	records, err := LoadDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if keys := records[0].Metadata["keys"].([]string); len(keys) != 0 {
		t.Fatalf("expected no keys for array, got %v", keys)
	}
}

func TestLoadDirectoryMissing(t *testing.T) {
	_, err := LoadDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLoadDirectoryCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "text")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := LoadDirectory(ctx, dir); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRegisterParser(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.md", "# Title")

	l := NewLoader()
	l.Register("md", FileParserFunc(func(ctx context.Context, path string, meta common.Metadata) (string, error) {
		meta["format"] = "markdown"
		return "Title", nil
	}))

	records, err := l.LoadDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].Text != "Title" || records[0].Metadata["format"] != "markdown" {
		t.Fatalf("expected custom parser to be used, got %+v", records)
	}
}
