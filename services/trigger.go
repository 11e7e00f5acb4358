package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Trigger is the manual "run now" signal polled between cycles.
type Trigger interface {
	Pending() bool
	Clear() error
	Fire() error
}

// FileTrigger signals through the presence of a marker file, so it can be
// set from outside the process with a plain touch.
type FileTrigger struct {
	path string
}

// NewFileTrigger creates a trigger backed by path.
func NewFileTrigger(path string) *FileTrigger {
	return &FileTrigger{path: path}
}

// Pending reports whether the marker file exists.
func (t *FileTrigger) Pending() bool {
	_, err := os.Stat(t.path)
	return err == nil
}

// Clear removes the marker. A missing marker is not an error.
func (t *FileTrigger) Clear() error {
	if err := os.Remove(t.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("trigger: clear %q: %w", t.path, err)
	}
	return nil
}

// Fire creates the marker.
func (t *FileTrigger) Fire() error {
	if err := os.WriteFile(t.path, []byte(time.Now().Format(time.RFC3339)), 0644); err != nil {
		return fmt.Errorf("trigger: fire %q: %w", t.path, err)
	}
	return nil
}
