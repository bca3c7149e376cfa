// Package archive opens the per-feeder zip exports produced by the portal
// and extracts the single contained CSV into an in-memory table.
package archive

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	errs "icafetch/pkg/errors"
)

// Table holds the tabular contents of one feeder's timeseries export
type Table struct {
	Header []string
	Rows   [][]string
}

// Empty reports whether the table has no data rows
func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

// ExtractTable opens the zip at zipPath and reads the member named
// memberName into a Table.
//
// A missing zip maps to the retryable download-pending class (the browser
// download may still be in flight); a zip that exists but cannot be parsed,
// or that lacks the expected member, maps to the terminal bad-archive class.
func ExtractTable(zipPath, memberName string) (*Table, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.ErrorTypeDownloadPending, "archive not yet on disk", err)
		}
		if errors.Is(err, zip.ErrFormat) {
			return nil, errs.Wrap(errs.ErrorTypeBadArchive, "corrupt archive "+zipPath, err)
		}
		return nil, fmt.Errorf("failed to open archive %s: %w", zipPath, err)
	}
	defer zr.Close()

	var member *zip.File
	for _, f := range zr.File {
		if f.Name == memberName {
			member = f
			break
		}
	}
	if member == nil {
		return nil, errs.New(errs.ErrorTypeBadArchive, fmt.Sprintf("archive %s has no member %s", zipPath, memberName))
	}

	rc, err := member.Open()
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeBadArchive, "failed to open member "+memberName, err)
	}
	defer rc.Close()

	table, err := readTable(rc)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeBadArchive, "failed to parse member "+memberName, err)
	}
	if table.Empty() {
		return nil, errs.New(errs.ErrorTypeBadArchive, "member "+memberName+" has no data rows")
	}

	return table, nil
}

// readTable parses CSV content into a Table. The portal's exports carry a
// ragged trailer row on occasion, so field counts are not enforced.
func readTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Table{}, nil
	}

	return &Table{
		Header: records[0],
		Rows:   records[1:],
	}, nil
}

// WriteCSV serializes the table to w, header first
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
