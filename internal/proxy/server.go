package proxy

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/dshills/blockbridge/internal/bridge"
	"github.com/dshills/blockbridge/internal/lsp"
	"github.com/dshills/blockbridge/internal/region"
)

// Forwarder is the outbound request surface the proxy needs from the
// embedded-language client, beyond the bridge.Notifier lifecycle methods.
// *lsp.Client satisfies it.
type Forwarder interface {
	bridge.Notifier
	Formatting(ctx context.Context, uri lsp.DocumentURI, opts lsp.FormattingOptions) ([]lsp.TextEdit, error)
	Completion(ctx context.Context, params lsp.CompletionParams) (json.RawMessage, error)
	Hover(ctx context.Context, params lsp.TextDocumentPositionParams) (json.RawMessage, error)
}

// Server routes editor traffic through the bridge. It owns the editor-side
// transport and dispatches every message in arrival order, which preserves
// the host's per-document event sequencing end to end.
type Server struct {
	transport *lsp.Transport
	forward   Forwarder

	store *Store
	sync  *bridge.Synchronizer
	gate  *bridge.Gatekeeper
	trans *bridge.Transformer

	hostLanguage string
	serverName   string
	log          *zap.Logger
}

// Options configure the editor-facing server.
type Options struct {
	Transport    *lsp.Transport
	Forwarder    Forwarder
	Store        *Store
	Synchronizer *bridge.Synchronizer
	Gatekeeper   *bridge.Gatekeeper
	Transformer  *bridge.Transformer
	HostLanguage string
	ServerName   string
	Log          *zap.Logger
}

// NewServer wires the handlers onto the transport and returns the server.
func NewServer(opts Options) *Server {
	s := &Server{
		transport:    opts.Transport,
		forward:      opts.Forwarder,
		store:        opts.Store,
		sync:         opts.Synchronizer,
		gate:         opts.Gatekeeper,
		trans:        opts.Transformer,
		hostLanguage: opts.HostLanguage,
		serverName:   opts.ServerName,
		log:          opts.Log,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.serverName == "" {
		s.serverName = "blockbridge"
	}
	s.register()
	return s
}

// Run serves editor traffic until the stream closes or the editor sends
// exit.
func (s *Server) Run(ctx context.Context) error {
	return s.transport.Serve(ctx)
}

// Reconfigure resets the bridge with a new detector after a configuration
// reload.
func (s *Server) Reconfigure(ctx context.Context, detector *region.Detector) {
	s.sync.Reset(ctx, detector)
	s.log.Info("bridge reset after configuration reload")
}

// PublishDiagnostics relays diagnostics from the embedded server to the
// editor. Masked coordinates are host coordinates, so the params pass
// through untouched.
func (s *Server) PublishDiagnostics(params lsp.PublishDiagnosticsParams) {
	if err := s.transport.Notify(context.Background(), "textDocument/publishDiagnostics", params); err != nil {
		s.log.Warn("publish diagnostics failed", zap.String("uri", string(params.URI)), zap.Error(err))
	}
}

// register installs all request and notification handlers.
func (s *Server) register() {
	t := s.transport

	t.OnRequest("initialize", s.handleInitialize)
	t.OnNotification("initialized", func(context.Context, json.RawMessage) {})

	t.OnRequest("shutdown", func(context.Context, json.RawMessage) (any, *lsp.RPCError) {
		s.log.Info("shutdown requested")
		return nil, nil
	})
	t.OnNotification("exit", func(context.Context, json.RawMessage) {
		_ = s.transport.Close()
	})

	t.OnNotification("textDocument/didOpen", s.handleDidOpen)
	t.OnNotification("textDocument/didChange", s.handleDidChange)
	t.OnNotification("textDocument/didClose", s.handleDidClose)

	t.OnRequest("textDocument/formatting", s.handleFormatting)
	t.OnRequest("textDocument/completion", s.handleCompletion)
	t.OnRequest("textDocument/hover", s.handleHover)

	// Everything else: answer requests with null so the editor is not
	// blocked, and drop unknown notifications.
	t.OnUnhandledRequest(func(context.Context, json.RawMessage) (any, *lsp.RPCError) {
		return nil, nil
	})
	t.OnUnhandledNotification(func(context.Context, json.RawMessage) {})
}

// handleInitialize advertises the subset of capabilities the bridge can
// honor, mirroring the embedded server's completion/hover support.
func (s *Server) handleInitialize(_ context.Context, _ json.RawMessage) (any, *lsp.RPCError) {
	caps := map[string]any{
		"textDocumentSync":           lsp.SyncIncremental,
		"documentFormattingProvider": true,
	}
	if fc, ok := s.forward.(interface{ Capabilities() lsp.ServerCapabilities }); ok {
		remote := fc.Capabilities()
		if lsp.HasCapability(remote.CompletionProvider) {
			caps["completionProvider"] = json.RawMessage(remote.CompletionProvider)
		}
		if lsp.HasCapability(remote.HoverProvider) {
			caps["hoverProvider"] = true
		}
	} else {
		caps["completionProvider"] = map[string]any{}
		caps["hoverProvider"] = true
	}

	return map[string]any{
		"capabilities": caps,
		"serverInfo":   map[string]any{"name": s.serverName},
	}, nil
}

func (s *Server) handleDidOpen(ctx context.Context, params json.RawMessage) {
	var p lsp.DidOpenTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.log.Warn("bad didOpen params", zap.Error(err))
		return
	}
	td := p.TextDocument

	if err := s.store.Open(td.URI, td.LanguageID, td.Version, td.Text); err != nil {
		s.log.Warn("didOpen", zap.String("uri", string(td.URI)), zap.Error(err))
		return
	}

	if td.LanguageID != s.hostLanguage {
		// Pure embedded-language document: forward verbatim.
		if err := s.forward.DidOpen(ctx, td.URI, td.LanguageID, td.Version, td.Text); err != nil {
			s.log.Warn("forward didOpen", zap.String("uri", string(td.URI)), zap.Error(err))
		}
		return
	}

	doc, _ := s.store.Snapshot(td.URI)
	if err := s.sync.HandleOpen(ctx, doc); err != nil {
		s.log.Warn("synchronize open", zap.String("uri", string(td.URI)), zap.Error(err))
	}
}

func (s *Server) handleDidChange(ctx context.Context, params json.RawMessage) {
	var p lsp.DidChangeTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.log.Warn("bad didChange params", zap.Error(err))
		return
	}
	uri := p.TextDocument.URI

	if err := s.store.Change(uri, p.TextDocument.Version, p.ContentChanges); err != nil {
		s.log.Warn("didChange", zap.String("uri", string(uri)), zap.Error(err))
		return
	}

	doc, ok := s.store.Snapshot(uri)
	if !ok {
		return
	}

	if doc.LanguageID != s.hostLanguage {
		if err := s.forward.DidChange(ctx, uri, doc.Version, doc.Text()); err != nil {
			s.log.Warn("forward didChange", zap.String("uri", string(uri)), zap.Error(err))
		}
		return
	}

	if err := s.sync.HandleChange(ctx, doc); err != nil {
		s.log.Warn("synchronize change", zap.String("uri", string(uri)), zap.Error(err))
	}
}

func (s *Server) handleDidClose(ctx context.Context, params json.RawMessage) {
	var p lsp.DidCloseTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.log.Warn("bad didClose params", zap.Error(err))
		return
	}
	uri := p.TextDocument.URI

	doc, ok := s.store.Snapshot(uri)
	if ok && doc.LanguageID != s.hostLanguage {
		if err := s.forward.DidClose(ctx, uri); err != nil {
			s.log.Warn("forward didClose", zap.String("uri", string(uri)), zap.Error(err))
		}
	} else if ok {
		if err := s.sync.HandleClose(ctx, uri); err != nil {
			s.log.Warn("synchronize close", zap.String("uri", string(uri)), zap.Error(err))
		}
	}

	if err := s.store.Close(uri); err != nil {
		s.log.Warn("didClose", zap.String("uri", string(uri)), zap.Error(err))
	}
}

// handleFormatting gates, forwards against the masked document, and folds
// the response back into a single host edit.
func (s *Server) handleFormatting(ctx context.Context, params json.RawMessage) (any, *lsp.RPCError) {
	var p lsp.DocumentFormattingParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, lsp.NewRPCError(lsp.CodeInvalidParams, "formatting: %v", err)
	}
	uri := p.TextDocument.URI

	doc, ok := s.store.Snapshot(uri)
	if !ok {
		return nil, nil
	}

	if !s.gate.Allow(doc, nil) {
		s.log.Debug("formatting suppressed outside region", zap.String("uri", string(uri)))
		return nil, nil
	}

	edits, err := s.forward.Formatting(ctx, uri, p.Options)
	if err != nil {
		return nil, lsp.NewRPCError(lsp.CodeInternalError, "formatting: %v", err)
	}

	if doc.LanguageID != s.hostLanguage {
		// Pure embedded-language document: the service's edits already
		// apply directly.
		return edits, nil
	}

	// Re-fetch: a close or change may have raced the round trip. The
	// transformer's cache peek is the final authority.
	current, ok := s.store.Snapshot(uri)
	if !ok {
		s.log.Debug("formatting response after close dropped", zap.String("uri", string(uri)))
		return nil, nil
	}

	edit, err := s.trans.Transform(uri, current.Text(), edits)
	if err != nil {
		if errors.Is(err, bridge.ErrStaleRegion) {
			return nil, nil
		}
		return nil, lsp.NewRPCError(lsp.CodeInternalError, "transform: %v", err)
	}
	if edit == nil {
		return nil, nil
	}
	return []lsp.TextEdit{*edit}, nil
}

func (s *Server) handleCompletion(ctx context.Context, params json.RawMessage) (any, *lsp.RPCError) {
	var p lsp.CompletionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, lsp.NewRPCError(lsp.CodeInvalidParams, "completion: %v", err)
	}

	doc, ok := s.store.Snapshot(p.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	pos := p.Position
	if !s.gate.Allow(doc, &pos) {
		return nil, nil
	}

	raw, err := s.forward.Completion(ctx, p)
	if err != nil {
		return nil, lsp.NewRPCError(lsp.CodeInternalError, "completion: %v", err)
	}
	return raw, nil
}

func (s *Server) handleHover(ctx context.Context, params json.RawMessage) (any, *lsp.RPCError) {
	var p lsp.TextDocumentPositionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, lsp.NewRPCError(lsp.CodeInvalidParams, "hover: %v", err)
	}

	doc, ok := s.store.Snapshot(p.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	pos := p.Position
	if !s.gate.Allow(doc, &pos) {
		return nil, nil
	}

	raw, err := s.forward.Hover(ctx, p)
	if err != nil {
		return nil, lsp.NewRPCError(lsp.CodeInternalError, "hover: %v", err)
	}
	return raw, nil
}
