package bridge

import (
	"sync"

	"github.com/dshills/blockbridge/internal/lsp"
	"github.com/dshills/blockbridge/internal/region"
)

// Entry is the memoized detection and masking result for one version of one
// host document. Entries are immutable; a version advance replaces the
// entry wholesale.
type Entry struct {
	Version int
	Region  *region.Region
	Masked  string
}

// HasRegion reports whether this version of the document contains an
// embedded block.
func (e Entry) HasRegion() bool {
	return e.Region != nil
}

// Cache memoizes per-document detection and masking, keyed by URI and
// invalidated by version. Entries leave the cache only through Evict (host
// close) or Reset (teardown), never by capacity or age.
type Cache struct {
	mu       sync.RWMutex
	detector *region.Detector
	entries  map[lsp.DocumentURI]Entry
}

// NewCache creates an empty cache using the given detector.
func NewCache(detector *region.Detector) *Cache {
	return &Cache{
		detector: detector,
		entries:  make(map[lsp.DocumentURI]Entry),
	}
}

// Get returns the entry for the document at the given version, recomputing
// it from text() when no entry exists or the cached one is for a different
// version. text is only invoked on a miss.
func (c *Cache) Get(uri lsp.DocumentURI, version int, text func() string) Entry {
	c.mu.RLock()
	entry, ok := c.entries[uri]
	detector := c.detector
	c.mu.RUnlock()

	if ok && entry.Version == version {
		return entry
	}

	hostText := text()
	entry = Entry{Version: version}
	if r, found := detector.Detect(hostText); found {
		entry.Region = &r
	}
	entry.Masked = region.Mask(hostText, entry.Region)

	c.mu.Lock()
	c.entries[uri] = entry
	c.mu.Unlock()

	return entry
}

// Peek returns the cached entry without recomputation. Used after an
// asynchronous round trip: a document closed in the meantime has no entry,
// which is how the in-flight response gets dropped.
func (c *Cache) Peek(uri lsp.DocumentURI) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[uri]
	return entry, ok
}

// Evict removes the entry for a closed document.
func (c *Cache) Evict(uri lsp.DocumentURI) {
	c.mu.Lock()
	delete(c.entries, uri)
	c.mu.Unlock()
}

// Reset drops every entry and installs a new detector. Called on teardown
// and when configuration reload changes the introducer key.
func (c *Cache) Reset(detector *region.Detector) {
	c.mu.Lock()
	if detector != nil {
		c.detector = detector
	}
	c.entries = make(map[lsp.DocumentURI]Entry)
	c.mu.Unlock()
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
