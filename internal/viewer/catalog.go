package viewer

import (
	"errors"
	"fmt"
)

// ErrUnknownDocument is returned for a catalog index out of range.
var ErrUnknownDocument = errors.New("viewer: unknown document")

// DefaultIndex is the document selected when the viewer starts.
const DefaultIndex = 0

// Document is a PDF the viewer offers for loading.
type Document struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Pages int    `json:"pages"`
}

// Label is the text shown for d in the document picker.
func (d Document) Label() string {
	return fmt.Sprintf("%s (%d pages)", d.Name, d.Pages)
}

// DefaultDocuments returns the bundled sample documents. Their URLs are
// relative to the server that hosts them.
func DefaultDocuments() []Document {
	return []Document{
		{Name: "Example 1", URL: "/pdfs/example-1.pdf", Pages: 7},
		{Name: "Example 2", URL: "/pdfs/example-2.pdf", Pages: 230},
		{Name: "Example 3", URL: "/pdfs/example-3.pdf", Pages: 21},
		{Name: "Example 4", URL: "/pdfs/example-4.pdf", Pages: 21},
	}
}

// Catalog is an ordered, read-only list of documents.
type Catalog struct {
	docs []Document
}

// NewCatalog returns a catalog of docs, or of DefaultDocuments if docs is empty.
func NewCatalog(docs []Document) *Catalog {
	if len(docs) == 0 {
		docs = DefaultDocuments()
	}
	return &Catalog{docs: append([]Document(nil), docs...)}
}

// Documents returns a copy of the catalog entries in order.
func (c *Catalog) Documents() []Document {
	return append([]Document(nil), c.docs...)
}

// Len returns the number of documents.
func (c *Catalog) Len() int {
	return len(c.docs)
}

// Get returns the document at index i.
func (c *Catalog) Get(i int) (Document, error) {
	if i < 0 || i >= len(c.docs) {
		return Document{}, fmt.Errorf("%w: index %d", ErrUnknownDocument, i)
	}
	return c.docs[i], nil
}

// Default returns the document at DefaultIndex.
func (c *Catalog) Default() Document {
	return c.docs[DefaultIndex]
}
