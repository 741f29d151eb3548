package monitor

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// A RowWriter appends CSV records to a file, gzip-compressing when the path
// ends in .gz. Appending to an existing gzip file starts a new gzip member.
type RowWriter struct {
	f     *os.File
	gz    *gzip.Writer
	csv   *csv.Writer
	fresh bool
}

func NewRowWriter(path string) (*RowWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat output file: %w", err)
	}

	w := &RowWriter{f: f, fresh: info.Size() == 0}
	var out io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		w.gz = gzip.NewWriter(f)
		out = w.gz
	}
	w.csv = csv.NewWriter(out)
	return w, nil
}

// Fresh reports whether the file was empty when opened, meaning it still
// needs a header row.
func (w *RowWriter) Fresh() bool {
	return w.fresh
}

func (w *RowWriter) Write(record []string) error {
	return w.csv.Write(record)
}

// Flush pushes buffered records through to the file so that a crash loses at
// most the current interval.
func (w *RowWriter) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	if w.gz != nil {
		return w.gz.Flush()
	}
	return nil
}

func (w *RowWriter) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.f.Close()
		return err
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			w.f.Close()
			return err
		}
	}
	return w.f.Close()
}
