package narrative

import "fmt"

// Paragraph is one block of body text with its 1-based position among the
// document's non-empty paragraphs.
type Paragraph struct {
	Index int
	Text  string
}

// Row is one table row with normalized cell texts.
type Row struct {
	Index int
	Cells []string
}

// Table is one table with its 1-based position in the document.
type Table struct {
	Index int
	Rows  []Row
}

// Document is a format-independent view of a narrative report: ordered
// paragraphs plus ordered tables. Readers normalize all text on parse.
type Document struct {
	Paragraphs []Paragraph
	Tables     []Table
}

// Reader captures a single format strategy (docx, html, etc.).
type Reader interface {
	Name() string
	Parse(data []byte) (Document, error)
}

// Registry keeps a mapping from format names to their readers.
type Registry struct {
	readers map[string]Reader
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{readers: map[string]Reader{}}
}

// Register adds or replaces a reader implementation.
func (r *Registry) Register(reader Reader) {
	if r.readers == nil {
		r.readers = map[string]Reader{}
	}
	r.readers[reader.Name()] = reader
}

// Resolve returns a reader by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Reader, error) {
	if reader, ok := r.readers[name]; ok {
		return reader, nil
	}
	return nil, fmt.Errorf("reader %s is not registered", name)
}
