package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ReportSync/internal/narrative"
)

func testSource() *FormatSource {
	reg := narrative.NewRegistry()
	reg.Register(NewDocxReader())
	reg.Register(NewHTMLReader())
	return NewFormatSource(reg, nil)
}

func writeFixture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestFormatSourceRoutesByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := testSource()
	ctx := context.Background()

	docxPath := writeFixture(t, dir, "report.docx",
		docxArchive(t, `<w:p><w:r><w:t>Initiated during the month 5 cases.</w:t></w:r></w:p>`))
	htmlPath := writeFixture(t, dir, "report.HTML",
		[]byte(`<html><body><p>Initiated during the month 5 cases.</p></body></html>`))

	for _, path := range []string{docxPath, htmlPath} {
		doc, err := src.Load(ctx, path)
		if err != nil {
			t.Fatalf("Load(%s) error: %v", path, err)
		}
		if len(doc.Paragraphs) != 1 || doc.Paragraphs[0].Text != "Initiated during the month 5 cases." {
			t.Fatalf("Load(%s) = %+v", path, doc)
		}
	}
}

func TestFormatSourceRejectsUnknownExtension(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, t.TempDir(), "report.txt", []byte("plain text"))
	if _, err := testSource().Load(context.Background(), path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestFormatSourceMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := testSource().Load(context.Background(), filepath.Join(t.TempDir(), "absent.docx")); err == nil {
		t.Fatalf("expected read error for a missing narrative")
	}
}

func TestFormatSourceHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := testSource().Load(ctx, "whatever.docx"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
