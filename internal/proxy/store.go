package proxy

import (
	"errors"
	"strings"
	"sync"

	"github.com/dshills/blockbridge/internal/bridge"
	"github.com/dshills/blockbridge/internal/lsp"
	"github.com/dshills/blockbridge/internal/region"
)

// Standard errors returned by the store.
var (
	ErrDocumentNotOpen     = errors.New("document not open")
	ErrDocumentAlreadyOpen = errors.New("document already open")
)

// hostDocument is the editor's view of one open document.
type hostDocument struct {
	uri        lsp.DocumentURI
	languageID string
	version    int
	content    string
}

// Store tracks the documents the editor currently has open, applying
// incremental changes so the bridge always sees full current text.
type Store struct {
	mu   sync.RWMutex
	docs map[lsp.DocumentURI]*hostDocument
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{docs: make(map[lsp.DocumentURI]*hostDocument)}
}

// Open records a newly opened document.
func (s *Store) Open(uri lsp.DocumentURI, languageID string, version int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[uri]; exists {
		return ErrDocumentAlreadyOpen
	}
	s.docs[uri] = &hostDocument{
		uri:        uri,
		languageID: languageID,
		version:    version,
		content:    text,
	}
	return nil
}

// Change applies the editor's content changes and advances the version.
// A change without a range replaces the whole document.
func (s *Store) Change(uri lsp.DocumentURI, version int, changes []lsp.TextDocumentContentChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[uri]
	if !exists {
		return ErrDocumentNotOpen
	}

	for _, change := range changes {
		if change.Range == nil {
			doc.content = change.Text
		} else {
			doc.content = applyTextChange(doc.content, *change.Range, change.Text)
		}
	}
	doc.version = version
	return nil
}

// Close forgets a document.
func (s *Store) Close(uri lsp.DocumentURI) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[uri]; !exists {
		return ErrDocumentNotOpen
	}
	delete(s.docs, uri)
	return nil
}

// Snapshot returns the document as a bridge.Document. The text supplier
// captures the content at snapshot time, so a later change or close cannot
// mutate what a handler is working with.
func (s *Store) Snapshot(uri lsp.DocumentURI) (bridge.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.docs[uri]
	if !exists {
		return bridge.Document{}, false
	}

	content := doc.content
	return bridge.Document{
		URI:        doc.uri,
		LanguageID: doc.languageID,
		Version:    doc.version,
		Text:       func() string { return content },
	}, true
}

// Len returns the number of open documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// applyTextChange splices newText over rng within content. Range positions
// are clamped to the document like editors themselves do, so a slightly
// out-of-date range cannot panic the proxy.
func applyTextChange(content string, rng lsp.Range, newText string) string {
	lines := region.SplitLines(content)

	startLine, startChar := rng.Start.Line, rng.Start.Character
	endLine, endChar := rng.End.Line, rng.End.Character

	if startLine < 0 {
		startLine = 0
	}
	if startLine >= len(lines) {
		return content + newText
	}
	if endLine >= len(lines) {
		endLine = len(lines) - 1
		endChar = len(lines[endLine])
	}
	startChar = clamp(startChar, len(lines[startLine]))
	endChar = clamp(endChar, len(lines[endLine]))

	var b strings.Builder
	for i := 0; i < startLine; i++ {
		b.WriteString(lines[i])
		b.WriteByte('\n')
	}
	b.WriteString(lines[startLine][:startChar])
	b.WriteString(newText)
	b.WriteString(lines[endLine][endChar:])
	for i := endLine + 1; i < len(lines); i++ {
		b.WriteByte('\n')
		b.WriteString(lines[i])
	}
	return b.String()
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
