package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"imobot/models"
)

var reportHeader = []string{
	"cycle_id", "finished_at", "url", "status", "found", "new", "attempts", "error",
}

// CSVWriter appends one row per target outcome to a cycle report file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter opens (or creates) the report at path, writing the header
// row only when the file is new. Intermediate directories are created
// automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open file %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: stat %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(reportHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
		w.Flush()
	}

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteCycle appends every result of summary.
func (c *CSVWriter) WriteCycle(summary *models.CycleSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	finished := summary.FinishedAt.Format(time.RFC3339)
	for _, r := range summary.Results {
		row := []string{
			summary.ID,
			finished,
			r.URL,
			string(r.Status),
			strconv.Itoa(r.FoundCount),
			strconv.Itoa(r.NewCount),
			strconv.Itoa(r.Attempts),
			r.Error,
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
