package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	errs "icafetch/pkg/errors"
)

// writeZip materializes a zip on disk with a single named member
func writeZip(t *testing.T, path, member, content string) {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(member)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("write member: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write zip file: %v", err)
	}
}

func classOf(t *testing.T, err error) errs.ErrorType {
	t.Helper()
	var typed *errs.Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected typed error, got %v", err)
	}
	return typed.Type
}

func TestExtractTable(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "012345678.zip")
	writeZip(t, zipPath, "012345678.csv", "time,kw\n00:00,1.5\n00:15,1.7\n")

	table, err := ExtractTable(zipPath, "012345678.csv")
	if err != nil {
		t.Fatalf("ExtractTable: %v", err)
	}
	if len(table.Header) != 2 || table.Header[0] != "time" {
		t.Errorf("unexpected header %v", table.Header)
	}
	if len(table.Rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(table.Rows))
	}
	if table.Rows[1][1] != "1.7" {
		t.Errorf("unexpected cell %q", table.Rows[1][1])
	}
}

func TestExtractTableRaggedRows(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "f.zip")
	writeZip(t, zipPath, "f.csv", "a,b,c\n1,2,3\ntrailer\n")

	table, err := ExtractTable(zipPath, "f.csv")
	if err != nil {
		t.Fatalf("ragged rows should parse: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(table.Rows))
	}
}

func TestExtractTableMissingFile(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "absent.zip")

	_, err := ExtractTable(zipPath, "absent.csv")
	if got := classOf(t, err); got != errs.ErrorTypeDownloadPending {
		t.Errorf("expected download_pending, got %s", got)
	}
}

func TestExtractTableCorruptZip(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "bad.zip")
	if err := os.WriteFile(zipPath, []byte("this is not a zip archive"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := ExtractTable(zipPath, "bad.csv")
	if got := classOf(t, err); got != errs.ErrorTypeBadArchive {
		t.Errorf("expected bad_archive, got %s", got)
	}
}

func TestExtractTableMissingMember(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "f.zip")
	writeZip(t, zipPath, "other.csv", "a\n1\n")

	_, err := ExtractTable(zipPath, "f.csv")
	if got := classOf(t, err); got != errs.ErrorTypeBadArchive {
		t.Errorf("expected bad_archive, got %s", got)
	}
}

func TestExtractTableHeaderOnly(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "f.zip")
	writeZip(t, zipPath, "f.csv", "time,kw\n")

	_, err := ExtractTable(zipPath, "f.csv")
	if got := classOf(t, err); got != errs.ErrorTypeBadArchive {
		t.Errorf("expected bad_archive for header-only member, got %s", got)
	}
}

func TestWriteCSV(t *testing.T) {
	table := &Table{
		Header: []string{"time", "kw"},
		Rows:   [][]string{{"00:00", "1.5"}},
	}

	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := "time,kw\n00:00,1.5\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
