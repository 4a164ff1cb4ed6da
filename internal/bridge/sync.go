package bridge

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/blockbridge/internal/lsp"
	"github.com/dshills/blockbridge/internal/region"
)

// Notifier is the outbound side of document synchronization: the synthetic
// lifecycle notifications sent toward the embedded-language service.
// *lsp.Client satisfies it.
type Notifier interface {
	DidOpen(ctx context.Context, uri lsp.DocumentURI, languageID string, version int, text string) error
	DidChange(ctx context.Context, uri lsp.DocumentURI, version int, fullText string) error
	DidClose(ctx context.Context, uri lsp.DocumentURI) error
}

// Document is a snapshot of a host document as delivered by an editor
// lifecycle event. Text is a supplier so cache hits never pay for a full
// content fetch.
type Document struct {
	URI        lsp.DocumentURI
	LanguageID string
	Version    int
	Text       func() string
}

// Synchronizer drives the per-document state machine between the host's
// lifecycle events and the embedded service's view. A document is in one of
// two live states: unopened (the service has never heard of it) or opened
// (a synthetic didOpen has been delivered). Close is terminal and drops all
// tracking.
//
// The opened set gains a member only after a didOpen actually succeeded, so
// a transport failure leaves the machine where it was and the next host
// event retries from consistent state.
type Synchronizer struct {
	mu       sync.Mutex
	cache    *Cache
	opened   map[lsp.DocumentURI]struct{}
	notifier Notifier
	language string
	log      *zap.Logger
}

// NewSynchronizer creates a synchronizer that opens embedded documents with
// the given language id.
func NewSynchronizer(cache *Cache, notifier Notifier, language string, log *zap.Logger) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{
		cache:    cache,
		opened:   make(map[lsp.DocumentURI]struct{}),
		notifier: notifier,
		language: language,
		log:      log,
	}
}

// Cache exposes the document state cache shared with the gatekeeper and
// transformer.
func (s *Synchronizer) Cache() *Cache {
	return s.cache
}

// IsOpened reports whether a synthetic open has been delivered for the
// document.
func (s *Synchronizer) IsOpened(uri lsp.DocumentURI) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.opened[uri]
	return ok
}

// HandleOpen processes a host didOpen. A document that already has a region
// is announced immediately; one without stays unknown to the service.
func (s *Synchronizer) HandleOpen(ctx context.Context, doc Document) error {
	entry := s.cache.Get(doc.URI, doc.Version, doc.Text)
	if !entry.HasRegion() {
		s.log.Debug("host open without region", zap.String("uri", string(doc.URI)))
		return nil
	}
	return s.open(ctx, doc, entry)
}

// HandleChange processes a host didChange. While unopened, a region
// appearing triggers the lazy synthetic open; while opened, the service
// receives the full new masked text. The service is never sent a change for
// a document it was not told exists.
func (s *Synchronizer) HandleChange(ctx context.Context, doc Document) error {
	entry := s.cache.Get(doc.URI, doc.Version, doc.Text)

	if !s.IsOpened(doc.URI) {
		if !entry.HasRegion() {
			return nil
		}
		return s.open(ctx, doc, entry)
	}

	if err := s.notifier.DidChange(ctx, doc.URI, doc.Version, entry.Masked); err != nil {
		return fmt.Errorf("synthetic change for %s: %w", doc.URI, err)
	}
	s.log.Debug("synthetic change",
		zap.String("uri", string(doc.URI)),
		zap.Int("version", doc.Version))
	return nil
}

// HandleClose processes a host didClose. The service close is attempted
// when one is owed, and tracking state is dropped unconditionally either
// way so nothing leaks for the identity.
func (s *Synchronizer) HandleClose(ctx context.Context, uri lsp.DocumentURI) error {
	var err error
	if s.IsOpened(uri) {
		if err = s.notifier.DidClose(ctx, uri); err != nil {
			err = fmt.Errorf("synthetic close for %s: %w", uri, err)
			s.log.Warn("synthetic close failed", zap.String("uri", string(uri)), zap.Error(err))
		}
	}

	s.mu.Lock()
	delete(s.opened, uri)
	s.mu.Unlock()
	s.cache.Evict(uri)

	s.log.Debug("host close", zap.String("uri", string(uri)))
	return err
}

// open delivers the synthetic didOpen and records membership on success.
func (s *Synchronizer) open(ctx context.Context, doc Document, entry Entry) error {
	if err := s.notifier.DidOpen(ctx, doc.URI, s.language, doc.Version, entry.Masked); err != nil {
		return fmt.Errorf("synthetic open for %s: %w", doc.URI, err)
	}

	s.mu.Lock()
	s.opened[doc.URI] = struct{}{}
	s.mu.Unlock()

	s.log.Debug("synthetic open",
		zap.String("uri", string(doc.URI)),
		zap.Int("version", doc.Version),
		zap.String("region", entry.Region.String()))
	return nil
}

// Reset clears the cache and the opened set, optionally installing a new
// detector. Documents already opened on the service are closed there first
// so a configuration reload cannot strand stale embedded documents.
func (s *Synchronizer) Reset(ctx context.Context, detector *region.Detector) {
	s.mu.Lock()
	uris := make([]lsp.DocumentURI, 0, len(s.opened))
	for uri := range s.opened {
		uris = append(uris, uri)
	}
	s.opened = make(map[lsp.DocumentURI]struct{})
	s.mu.Unlock()

	for _, uri := range uris {
		if err := s.notifier.DidClose(ctx, uri); err != nil {
			s.log.Warn("close during reset failed", zap.String("uri", string(uri)), zap.Error(err))
		}
	}

	s.cache.Reset(detector)
}
