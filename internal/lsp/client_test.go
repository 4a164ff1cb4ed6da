package lsp

import (
	"context"
	"testing"
	"time"
)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(ClientConfig{Command: "embedded-lsp"})

	if c.Status() != StatusStopped {
		t.Errorf("Status = %v, want stopped", c.Status())
	}
	if c.config.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want the 10s default", c.config.Timeout)
	}
}

func TestClient_RequestsBeforeStart(t *testing.T) {
	c := NewClient(DefaultClientConfig())
	ctx := context.Background()

	if err := c.DidOpen(ctx, "file:///a", "sql", 1, ""); err != ErrNotStarted {
		t.Errorf("DidOpen = %v, want ErrNotStarted", err)
	}
	if err := c.DidChange(ctx, "file:///a", 2, ""); err != ErrNotStarted {
		t.Errorf("DidChange = %v, want ErrNotStarted", err)
	}
	if err := c.DidClose(ctx, "file:///a"); err != ErrNotStarted {
		t.Errorf("DidClose = %v, want ErrNotStarted", err)
	}
	if _, err := c.Formatting(ctx, "file:///a", DefaultFormattingOptions()); err != ErrNotStarted {
		t.Errorf("Formatting = %v, want ErrNotStarted", err)
	}
}

func TestClient_StartWithMissingExecutable(t *testing.T) {
	c := NewClient(ClientConfig{Command: "definitely-not-a-real-lsp-binary"})

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail for a missing executable")
	}
	if c.Status() != StatusError {
		t.Errorf("Status = %v, want error", c.Status())
	}
}

func TestClient_ShutdownWhenStopped(t *testing.T) {
	c := NewClient(DefaultClientConfig())
	if err := c.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on a stopped client = %v, want nil", err)
	}
}

func TestClientStatus_String(t *testing.T) {
	tests := map[ClientStatus]string{
		StatusStopped:      "stopped",
		StatusStarting:     "starting",
		StatusInitializing: "initializing",
		StatusReady:        "ready",
		StatusShuttingDown: "shutting down",
		StatusError:        "error",
		ClientStatus(99):   "unknown",
	}
	for status, want := range tests {
		if got := status.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", status, got, want)
		}
	}
}
