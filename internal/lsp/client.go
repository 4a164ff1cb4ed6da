package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// ClientStatus is the client's lifecycle state.
type ClientStatus int

const (
	StatusStopped ClientStatus = iota
	StatusStarting
	StatusInitializing
	StatusReady
	StatusShuttingDown
	StatusError
)

// String returns a human-readable status name.
func (s ClientStatus) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusShuttingDown:
		return "shutting down"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ClientConfig configures the embedded-language server connection.
type ClientConfig struct {
	// Command and Args launch the server executable.
	Command string
	Args    []string

	// Env holds additional environment variables as KEY=VALUE pairs.
	Env []string

	// WorkDir is the server's working directory. Empty means inherit.
	WorkDir string

	// RootURI is passed in the initialize request.
	RootURI DocumentURI

	// InitializationOptions are passed through to the server untouched.
	InitializationOptions any

	// Timeout bounds each request round trip.
	Timeout time.Duration
}

// DefaultClientConfig returns a config with the standard request timeout.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{Timeout: 10 * time.Second}
}

// Client owns a single embedded-language server process and its transport.
// It is the bridge's outbound side: synthetic lifecycle notifications and
// forwarded feature requests go through here.
type Client struct {
	mu     sync.Mutex
	config ClientConfig

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	transport *Transport

	status       atomic.Int32
	capabilities ServerCapabilities
	serverInfo   *ServerInfo

	onDiagnostics func(PublishDiagnosticsParams)

	ctx    context.Context
	cancel context.CancelFunc
	exitCh chan error
}

// NewClient creates an unstarted client.
func NewClient(config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		config: config,
		exitCh: make(chan error, 1),
	}
}

// OnDiagnostics registers the handler for diagnostics the server publishes.
// Must be called before Start.
func (c *Client) OnDiagnostics(handler func(PublishDiagnosticsParams)) {
	c.onDiagnostics = handler
}

// Status returns the current lifecycle state.
func (c *Client) Status() ClientStatus {
	return ClientStatus(c.status.Load())
}

// Capabilities returns the capabilities the server reported at initialize.
func (c *Client) Capabilities() ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// ServerInfo returns the name the server reported, if any.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// ExitChannel receives the process exit error when the server terminates.
func (c *Client) ExitChannel() <-chan error {
	return c.exitCh
}

// Start launches the server process and performs the initialize handshake.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Status() != StatusStopped {
		return ErrAlreadyStarted
	}

	c.status.Store(int32(StatusStarting))
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.startProcess(); err != nil {
		c.status.Store(int32(StatusError))
		return err
	}

	c.transport = NewTransport(c.stdout, c.stdin, nil)
	c.registerNotificationHandlers()
	c.transport.Start(c.ctx)
	go c.monitorProcess()

	c.status.Store(int32(StatusInitializing))
	if err := c.initialize(c.ctx); err != nil {
		c.status.Store(int32(StatusError))
		c.stopProcess()
		return fmt.Errorf("initialize: %w", err)
	}

	c.status.Store(int32(StatusReady))
	return nil
}

// startProcess spawns the server executable with stdio pipes.
func (c *Client) startProcess() error {
	cmd := exec.CommandContext(c.ctx, c.config.Command, c.config.Args...)
	cmd.Env = append(os.Environ(), c.config.Env...)
	if c.config.WorkDir != "" {
		cmd.Dir = c.config.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("start %s: %w", c.config.Command, err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.stdout = stdout
	c.stderr = stderr
	return nil
}

// monitorProcess reports the process exit to ExitChannel.
func (c *Client) monitorProcess() {
	if c.cmd == nil {
		return
	}
	err := c.cmd.Wait()
	select {
	case c.exitCh <- err:
	default:
	}
}

// stopProcess tears down transport, pipes, and process.
func (c *Client) stopProcess() {
	if c.transport != nil {
		c.transport.Close()
	}
	if c.stdin != nil {
		c.stdin.Close()
	}
	if c.stdout != nil {
		c.stdout.Close()
	}
	if c.stderr != nil {
		c.stderr.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	if c.cancel != nil {
		c.cancel()
	}
}

// initialize performs the initialize/initialized handshake.
func (c *Client) initialize(ctx context.Context) error {
	params := InitializeParams{
		ProcessID:             os.Getpid(),
		RootURI:               c.config.RootURI,
		Capabilities:          json.RawMessage(`{}`),
		InitializationOptions: c.config.InitializationOptions,
		ClientInfo:            &ClientInfo{Name: "blockbridge"},
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var result InitializeResult
	if err := c.transport.Call(ctx, "initialize", params, &result); err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}
	c.capabilities = result.Capabilities
	c.serverInfo = result.ServerInfo

	if err := c.transport.Notify(ctx, "initialized", InitializedParams{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// registerNotificationHandlers wires server-originated notifications.
func (c *Client) registerNotificationHandlers() {
	c.transport.OnNotification("textDocument/publishDiagnostics", func(_ context.Context, params json.RawMessage) {
		if c.onDiagnostics == nil {
			return
		}
		var p PublishDiagnosticsParams
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		c.onDiagnostics(p)
	})
}

// Shutdown performs the shutdown/exit sequence and stops the process.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Status() == StatusStopped {
		return nil
	}
	c.status.Store(int32(StatusShuttingDown))

	var err error
	if c.transport != nil && !c.transport.IsClosed() {
		shutdownCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		err = c.transport.Call(shutdownCtx, "shutdown", nil, nil)
		if err == nil {
			_ = c.transport.Notify(shutdownCtx, "exit", nil)
		}
		cancel()
	}

	c.stopProcess()
	c.status.Store(int32(StatusStopped))
	return err
}

// ready returns ErrNotStarted unless the handshake has completed.
func (c *Client) ready() error {
	if c.Status() != StatusReady {
		return ErrNotStarted
	}
	return nil
}

// DidOpen sends the synthetic open for a masked document.
func (c *Client) DidOpen(ctx context.Context, uri DocumentURI, languageID string, version int, text string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.transport.Notify(ctx, "textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        uri,
			LanguageID: languageID,
			Version:    version,
			Text:       text,
		},
	})
}

// DidChange sends a whole-document replacement. Incremental diffs are never
// sent: masked text can differ from the previous masked text on every line
// where a region boundary moved.
func (c *Client) DidChange(ctx context.Context, uri DocumentURI, version int, fullText string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.transport.Notify(ctx, "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: TextDocumentIdentifier{URI: uri},
			Version:                version,
		},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: fullText}},
	})
}

// DidClose sends the synthetic close for a document.
func (c *Client) DidClose(ctx context.Context, uri DocumentURI) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.transport.Notify(ctx, "textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}

// Formatting requests a whole-document format of the masked document and
// returns the server's edits as-is, in masked coordinates.
func (c *Client) Formatting(ctx context.Context, uri DocumentURI, opts FormattingOptions) ([]TextEdit, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var edits []TextEdit
	err := c.transport.Call(ctx, "textDocument/formatting", DocumentFormattingParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Options:      opts,
	}, &edits)
	if err != nil {
		return nil, err
	}
	return edits, nil
}

// Completion forwards a completion request and returns the raw result, which
// is position-valid in host coordinates by the masking guarantee.
func (c *Client) Completion(ctx context.Context, params CompletionParams) (json.RawMessage, error) {
	return c.forward(ctx, "textDocument/completion", params)
}

// Hover forwards a hover request and returns the raw result.
func (c *Client) Hover(ctx context.Context, params TextDocumentPositionParams) (json.RawMessage, error) {
	return c.forward(ctx, "textDocument/hover", params)
}

// forward runs a request whose result passes through the bridge untouched.
func (c *Client) forward(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var raw json.RawMessage
	if err := c.transport.Call(ctx, method, params, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
