package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ReportSync/internal/narrative"
	"ReportSync/internal/ports"
)

// ErrUnsupportedFormat marks narrative files whose extension has no reader.
var ErrUnsupportedFormat = errors.New("unsupported narrative format")

// FormatSource implements NarrativeSource via registered reader strategies,
// routed by file extension.
type FormatSource struct {
	registry *narrative.Registry
	logger   *slog.Logger
}

var _ ports.NarrativeSource = (*FormatSource)(nil)

// NewFormatSource wires the reader registry.
func NewFormatSource(reg *narrative.Registry, log *slog.Logger) *FormatSource {
	return &FormatSource{registry: reg, logger: log}
}

// Load reads the file and parses it with the reader matching its extension.
func (s *FormatSource) Load(ctx context.Context, path string) (narrative.Document, error) {
	var doc narrative.Document

	if s.registry == nil {
		return doc, fmt.Errorf("reader registry is not configured")
	}
	if err := ctx.Err(); err != nil {
		return doc, err
	}

	name, err := readerNameFor(path)
	if err != nil {
		return doc, err
	}

	reader, err := s.registry.Resolve(name)
	if err != nil {
		return doc, fmt.Errorf("narrative %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read narrative: %w", err)
	}

	s.debug("parse narrative", "path", path, "reader", name, "bytes", len(data))

	doc, err = reader.Parse(data)
	if err != nil {
		return doc, fmt.Errorf("narrative %s: %w", path, err)
	}

	s.debug("narrative parsed", "paragraphs", len(doc.Paragraphs), "tables", len(doc.Tables))
	return doc, nil
}

func readerNameFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return "docx", nil
	case ".html", ".htm":
		return "html", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

func (s *FormatSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
