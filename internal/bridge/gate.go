package bridge

import "github.com/dshills/blockbridge/internal/lsp"

// Gatekeeper decides whether an embedded-language feature request should be
// forwarded at all. Requests outside the region are suppressed so whatever
// tooling owns the host format is free to answer them instead.
type Gatekeeper struct {
	cache        *Cache
	hostLanguage string
}

// NewGatekeeper creates a gatekeeper over the shared cache. hostLanguage is
// the language id of host-format documents (normally "yaml").
func NewGatekeeper(cache *Cache, hostLanguage string) *Gatekeeper {
	return &Gatekeeper{cache: cache, hostLanguage: hostLanguage}
}

// Allow reports whether a request against the document may be forwarded.
//
// Documents that are purely in the embedded language are always allowed.
// Host-format documents need a detected region; document-scoped requests
// (nil position) pass on region presence alone, positioned requests only
// when the position's line falls inside the region.
func (g *Gatekeeper) Allow(doc Document, pos *lsp.Position) bool {
	if doc.LanguageID != g.hostLanguage {
		return true
	}

	entry := g.cache.Get(doc.URI, doc.Version, doc.Text)
	if !entry.HasRegion() {
		return false
	}
	if pos == nil {
		return true
	}
	return entry.Region.Contains(pos.Line)
}
