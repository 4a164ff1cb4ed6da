package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
)

// RequestHandler serves an incoming request. The returned value is
// marshaled as the result; a non-nil *RPCError wins over the result.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, *RPCError)

// NotificationHandler consumes an incoming notification.
type NotificationHandler func(ctx context.Context, params json.RawMessage)

// Transport speaks JSON-RPC 2.0 with LSP Content-Length framing over a
// byte stream. It serves both roles: outgoing requests via Call/Notify, and
// incoming traffic via registered handlers.
//
// Incoming requests and notifications are dispatched synchronously on the
// read goroutine, in arrival order. A handler that needs the transport for
// a nested round trip therefore talks to a different Transport, never its
// own; the bridge's two connections make that split natural.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer

	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   atomic.Int64
	pending  map[int64]chan *rpcResponse
	requests map[string]RequestHandler
	notifs   map[string]NotificationHandler
	defNotif NotificationHandler
	defReq   RequestHandler

	closed atomic.Bool
	done   chan struct{}
}

// rpcRequest is the outbound request/notification envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse is the outbound and correlated inbound response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewTransport creates a transport over the given reader and writer. The
// closer may be nil.
func NewTransport(r io.Reader, w io.Writer, c io.Closer) *Transport {
	return &Transport{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		closer:   c,
		pending:  make(map[int64]chan *rpcResponse),
		requests: make(map[string]RequestHandler),
		notifs:   make(map[string]NotificationHandler),
		done:     make(chan struct{}),
	}
}

// Serve reads and dispatches messages until the stream ends, the context is
// cancelled, or the transport is closed. It returns nil on clean EOF.
func (t *Transport) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return nil
		default:
		}

		msg, err := t.readMessage()
		if err != nil {
			if t.closed.Load() || err == io.EOF || err == io.ErrClosedPipe {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		t.dispatch(ctx, msg)
	}
}

// Start runs Serve on its own goroutine. Used for the client-role
// connection, where only responses and server notifications arrive.
func (t *Transport) Start(ctx context.Context) {
	go func() { _ = t.Serve(ctx) }()
}

// Close shuts the transport down and wakes all pending callers.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	close(t.done)

	t.mu.Lock()
	t.pending = make(map[int64]chan *rpcResponse)
	t.mu.Unlock()

	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// Call sends a request and waits for the matching response. The result is
// unmarshaled into result when non-nil.
func (t *Transport) Call(ctx context.Context, method string, params, result any) error {
	if t.closed.Load() {
		return ErrShutdown
	}

	id := t.nextID.Add(1)
	ch := make(chan *rpcResponse, 1)

	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	req := &rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := t.send(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrShutdown
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 && string(resp.Result) != "null" {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}
}

// Notify sends a notification; no response is expected.
func (t *Transport) Notify(ctx context.Context, method string, params any) error {
	if t.closed.Load() {
		return ErrShutdown
	}
	return t.send(&rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

// OnRequest registers a handler for an incoming request method.
func (t *Transport) OnRequest(method string, handler RequestHandler) {
	t.mu.Lock()
	t.requests[method] = handler
	t.mu.Unlock()
}

// OnNotification registers a handler for an incoming notification method.
func (t *Transport) OnNotification(method string, handler NotificationHandler) {
	t.mu.Lock()
	t.notifs[method] = handler
	t.mu.Unlock()
}

// OnUnhandledRequest registers the fallback for requests with no handler.
// Without one, unknown requests receive a MethodNotFound error.
func (t *Transport) OnUnhandledRequest(handler RequestHandler) {
	t.mu.Lock()
	t.defReq = handler
	t.mu.Unlock()
}

// OnUnhandledNotification registers the fallback notification handler.
func (t *Transport) OnUnhandledNotification(handler NotificationHandler) {
	t.mu.Lock()
	t.defNotif = handler
	t.mu.Unlock()
}

// send writes one framed message.
func (t *Transport) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := fmt.Fprintf(t.writer, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// readMessage reads one framed message body.
func (t *Transport) readMessage() (json.RawMessage, error) {
	var contentLength int
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), "content-length:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				if n, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
					contentLength = n
				}
			}
		}
		// Content-Type and any other headers are ignored.
	}

	if contentLength <= 0 {
		return nil, fmt.Errorf("%w: missing Content-Length header", ErrInvalidMessage)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// dispatch classifies a raw message by peeking at its id/method fields and
// routes it. Peeking avoids a full decode for messages that only pass
// through or get dropped.
func (t *Transport) dispatch(ctx context.Context, data json.RawMessage) {
	body := string(data)
	id := gjson.Get(body, "id")
	method := gjson.Get(body, "method")

	switch {
	case id.Exists() && !method.Exists():
		// Response to one of our requests.
		t.handleResponse(data, id)
	case id.Exists():
		t.handleRequest(ctx, id, method.String(), rawField(body, "params"))
	case method.Exists():
		t.handleNotification(ctx, method.String(), rawField(body, "params"))
	}
}

// rawField extracts a top-level field as raw JSON, nil when absent.
func rawField(body, name string) json.RawMessage {
	v := gjson.Get(body, name)
	if !v.Exists() {
		return nil
	}
	return json.RawMessage(v.Raw)
}

// handleResponse delivers a response to the caller waiting on its id.
func (t *Transport) handleResponse(data json.RawMessage, id gjson.Result) {
	if t.closed.Load() {
		return
	}

	var resp rpcResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return
	}

	t.mu.Lock()
	ch, ok := t.pending[id.Int()]
	if ok {
		delete(t.pending, id.Int())
	}
	t.mu.Unlock()

	if ok {
		select {
		case ch <- &resp:
		default:
		}
	}
}

// handleRequest runs the registered handler and writes the response.
func (t *Transport) handleRequest(ctx context.Context, id gjson.Result, method string, params json.RawMessage) {
	t.mu.Lock()
	handler, ok := t.requests[method]
	if !ok {
		handler = t.defReq
	}
	t.mu.Unlock()

	if handler == nil {
		t.reply(id, nil, NewRPCError(CodeMethodNotFound, "method not supported: %s", method))
		return
	}

	result, rpcErr := handler(ctx, params)
	t.reply(id, result, rpcErr)
}

// reply writes a response frame, echoing the request id verbatim so string
// and numeric ids both survive.
func (t *Transport) reply(id gjson.Result, result any, rpcErr *RPCError) {
	resp := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id.Raw),
	}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else if raw, ok := result.(json.RawMessage); ok && raw != nil {
		resp["result"] = raw
	} else if result != nil {
		resp["result"] = result
	} else {
		resp["result"] = nil
	}

	_ = t.send(resp)
}

// handleNotification runs the registered handler inline, preserving arrival
// order for lifecycle notifications.
func (t *Transport) handleNotification(ctx context.Context, method string, params json.RawMessage) {
	t.mu.Lock()
	handler, ok := t.notifs[method]
	if !ok {
		handler = t.defNotif
	}
	t.mu.Unlock()

	if handler != nil {
		handler(ctx, params)
	}
}
