// Package output formats discovery results.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/PentesterFlow/AuthScope/internal/probe"
	"github.com/PentesterFlow/AuthScope/pkg/pipeline"
)

// Writer defines the interface for result writers.
type Writer interface {
	// WriteResult writes the complete discovery result
	WriteResult(result *pipeline.Result) error

	// WriteEndpoint writes a single endpoint (for streaming)
	WriteEndpoint(endpoint *probe.Endpoint) error

	// Flush flushes any buffered output
	Flush() error

	// Close closes the writer
	Close() error
}

// Config holds output configuration.
type Config struct {
	Format   string
	Pretty   bool
	Stream   bool
	FilePath string
}

// NewWriter creates a writer for the configured format. Only JSON is
// supported today; unknown formats fall back to JSON.
func NewWriter(w io.Writer, config Config) Writer {
	switch config.Format {
	case "json":
		return NewJSONWriter(w, config.Pretty, config.Stream)
	default:
		return NewJSONWriter(w, config.Pretty, config.Stream)
	}
}

// Open resolves the output destination: the configured file, or stdout
// when no path is set. The caller owns the returned writer.
func Open(config Config) (Writer, error) {
	if config.FilePath == "" {
		return NewWriter(os.Stdout, config), nil
	}
	f, err := os.Create(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return NewWriter(f, config), nil
}
