// Package failure defines the error taxonomy shared by the pipeline stages.
//
// A ConfigError aborts the whole run. A DataError aborts only the tile it was
// raised for; the run driver records it and moves on. Skipped is not an error
// at all, it only carries the reason an acquisition was left out upstream.
package failure

import (
	"errors"
	"fmt"
)

// ConfigError reports a problem with the run configuration or the acquisition
// table. It is always fatal.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config wraps err as a ConfigError.
func Config(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Op: op, Err: err}
}

// Configf builds a ConfigError from a format string.
func Configf(op, format string, args ...any) error {
	return &ConfigError{Op: op, Err: fmt.Errorf(format, args...)}
}

// DataError reports a missing or corrupt input for a single acquisition.
// Tile may be empty when the error is raised below the assembler.
type DataError struct {
	Tile string
	ID   string
	Band string
	Err  error
}

func (e *DataError) Error() string {
	msg := "acquisition data error"
	if e.Tile != "" {
		msg += " in tile " + e.Tile
	}
	if e.ID != "" {
		msg += " for " + e.ID
	}
	if e.Band != "" {
		msg += " band " + e.Band
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// Data wraps err as a DataError for the given acquisition and band. An err that
// already is a DataError keeps its fields and only gains the missing ones.
func Data(id, band string, err error) error {
	if err == nil {
		return nil
	}
	var de *DataError
	if errors.As(err, &de) {
		out := *de
		if out.ID == "" {
			out.ID = id
		}
		if out.Band == "" {
			out.Band = band
		}
		return &out
	}
	return &DataError{ID: id, Band: band, Err: err}
}

// InTile tags a DataError with the tile it aborted. Other errors are wrapped
// into a DataError so the run driver can report them uniformly.
func InTile(tile string, err error) error {
	if err == nil {
		return nil
	}
	var de *DataError
	if errors.As(err, &de) {
		out := *de
		out.Tile = tile
		return &out
	}
	return &DataError{Tile: tile, Err: err}
}

// IsConfig reports whether err is a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsData reports whether err is a DataError.
func IsData(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

// Skipped records an acquisition excluded before assembly, e.g. because it
// belongs to another processing baseline.
type Skipped struct {
	ID     string
	Reason string
}

func (s Skipped) String() string {
	return s.ID + ": " + s.Reason
}
