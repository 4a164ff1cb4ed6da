package bridge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dshills/blockbridge/internal/lsp"
	"github.com/dshills/blockbridge/internal/region"
)

// fakeNotifier records synthetic notifications in order and can fail on
// demand.
type fakeNotifier struct {
	calls   []string
	failAll bool
}

func (f *fakeNotifier) DidOpen(_ context.Context, uri lsp.DocumentURI, languageID string, version int, text string) error {
	if f.failAll {
		return errors.New("transport down")
	}
	f.calls = append(f.calls, fmt.Sprintf("open %s v%d lang=%s text=%q", uri, version, languageID, text))
	return nil
}

func (f *fakeNotifier) DidChange(_ context.Context, uri lsp.DocumentURI, version int, fullText string) error {
	if f.failAll {
		return errors.New("transport down")
	}
	f.calls = append(f.calls, fmt.Sprintf("change %s v%d text=%q", uri, version, fullText))
	return nil
}

func (f *fakeNotifier) DidClose(_ context.Context, uri lsp.DocumentURI) error {
	if f.failAll {
		return errors.New("transport down")
	}
	f.calls = append(f.calls, fmt.Sprintf("close %s", uri))
	return nil
}

func newTestSync(n Notifier) *Synchronizer {
	return NewSynchronizer(newTestCache(), n, "sql", nil)
}

func doc(uri string, version int, text string) Document {
	return Document{
		URI:        lsp.DocumentURI(uri),
		LanguageID: "yaml",
		Version:    version,
		Text:       func() string { return text },
	}
}

func TestSynchronizer_OpenWithRegion(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestSync(n)

	if err := s.HandleOpen(context.Background(), doc("file:///a.yaml", 1, hostWithRegion)); err != nil {
		t.Fatalf("HandleOpen error: %v", err)
	}

	if !s.IsOpened("file:///a.yaml") {
		t.Error("document should be in the opened set")
	}
	if len(n.calls) != 1 {
		t.Fatalf("calls = %v, want one open", n.calls)
	}
	want := `open file:///a.yaml v1 lang=sql text="\n\n  a\n  b\n\n"`
	if n.calls[0] != want {
		t.Errorf("call = %s\nwant %s", n.calls[0], want)
	}
}

func TestSynchronizer_OpenWithoutRegionStaysSilent(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestSync(n)

	if err := s.HandleOpen(context.Background(), doc("file:///a.yaml", 1, "plain: doc\n")); err != nil {
		t.Fatalf("HandleOpen error: %v", err)
	}
	if s.IsOpened("file:///a.yaml") {
		t.Error("document without a region must not enter the opened set")
	}
	if len(n.calls) != 0 {
		t.Errorf("calls = %v, want none", n.calls)
	}
}

func TestSynchronizer_LazyOpenOnRegionAppearance(t *testing.T) {
	// The canonical lifecycle: open with no region, region appears on the
	// second event, persists on the third, then close. Exactly one open
	// (second event), one change (third event), one close at the end.
	n := &fakeNotifier{}
	s := newTestSync(n)
	ctx := context.Background()
	uri := "file:///a.yaml"

	if err := s.HandleOpen(ctx, doc(uri, 1, "plain: doc\n")); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.HandleChange(ctx, doc(uri, 2, hostWithRegion)); err != nil {
		t.Fatalf("first change: %v", err)
	}
	if err := s.HandleChange(ctx, doc(uri, 3, "name: x\nsource: |\n  a\n  b\n  c\nother: y\n")); err != nil {
		t.Fatalf("second change: %v", err)
	}
	if err := s.HandleClose(ctx, lsp.DocumentURI(uri)); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{
		`open file:///a.yaml v2 lang=sql text="\n\n  a\n  b\n\n"`,
		`change file:///a.yaml v3 text="\n\n  a\n  b\n  c\n\n"`,
		"close file:///a.yaml",
	}
	if len(n.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", n.calls, want)
	}
	for i := range want {
		if n.calls[i] != want[i] {
			t.Errorf("call %d = %s\nwant %s", i, n.calls[i], want[i])
		}
	}

	if s.IsOpened(lsp.DocumentURI(uri)) {
		t.Error("opened set should be empty after close")
	}
	if _, ok := s.Cache().Peek(lsp.DocumentURI(uri)); ok {
		t.Error("cache should be empty after close")
	}
}

func TestSynchronizer_ChangeWithoutRegionWhileUnopened(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestSync(n)
	ctx := context.Background()

	_ = s.HandleOpen(ctx, doc("file:///a.yaml", 1, "plain: doc\n"))
	if err := s.HandleChange(ctx, doc("file:///a.yaml", 2, "still: plain\n")); err != nil {
		t.Fatalf("HandleChange error: %v", err)
	}
	if len(n.calls) != 0 {
		t.Errorf("calls = %v, want none", n.calls)
	}
}

func TestSynchronizer_ChangeWhileOpenedSendsFullMaskedText(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestSync(n)
	ctx := context.Background()

	_ = s.HandleOpen(ctx, doc("file:///a.yaml", 1, hostWithRegion))

	// Region disappears; the service still gets a full replacement (all
	// blank lines), not a close.
	if err := s.HandleChange(ctx, doc("file:///a.yaml", 2, "plain: doc\n")); err != nil {
		t.Fatalf("HandleChange error: %v", err)
	}

	if len(n.calls) != 2 {
		t.Fatalf("calls = %v, want open then change", n.calls)
	}
	if n.calls[1] != `change file:///a.yaml v2 text="\n"` {
		t.Errorf("call = %s", n.calls[1])
	}
	if !s.IsOpened("file:///a.yaml") {
		t.Error("document stays opened on the service while the host has it open")
	}
}

func TestSynchronizer_FailedOpenLeavesStateUnchanged(t *testing.T) {
	n := &fakeNotifier{failAll: true}
	s := newTestSync(n)
	ctx := context.Background()

	if err := s.HandleOpen(ctx, doc("file:///a.yaml", 1, hostWithRegion)); err == nil {
		t.Fatal("expected a transport error")
	}
	if s.IsOpened("file:///a.yaml") {
		t.Error("failed open must not enter the opened set")
	}

	// Transport recovers; the next change retries the open.
	n.failAll = false
	if err := s.HandleChange(ctx, doc("file:///a.yaml", 2, hostWithRegion)); err != nil {
		t.Fatalf("retry change: %v", err)
	}
	if len(n.calls) != 1 || n.calls[0][:4] != "open" {
		t.Errorf("calls = %v, want a single open", n.calls)
	}
	if !s.IsOpened("file:///a.yaml") {
		t.Error("recovered open should enter the opened set")
	}
}

func TestSynchronizer_CloseUnopenedDropsTrackingOnly(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestSync(n)
	ctx := context.Background()

	_ = s.HandleOpen(ctx, doc("file:///a.yaml", 1, "plain: doc\n"))
	if err := s.HandleClose(ctx, "file:///a.yaml"); err != nil {
		t.Fatalf("HandleClose error: %v", err)
	}

	if len(n.calls) != 0 {
		t.Errorf("calls = %v; no service close is owed for an unopened document", n.calls)
	}
	if _, ok := s.Cache().Peek("file:///a.yaml"); ok {
		t.Error("cache entry should be dropped on close")
	}
}

func TestSynchronizer_CloseDropsStateEvenOnTransportFailure(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestSync(n)
	ctx := context.Background()

	_ = s.HandleOpen(ctx, doc("file:///a.yaml", 1, hostWithRegion))

	n.failAll = true
	if err := s.HandleClose(ctx, "file:///a.yaml"); err == nil {
		t.Fatal("expected the close error to propagate")
	}
	if s.IsOpened("file:///a.yaml") {
		t.Error("opened set must be cleared unconditionally on host close")
	}
	if _, ok := s.Cache().Peek("file:///a.yaml"); ok {
		t.Error("cache must be cleared unconditionally on host close")
	}
}

func TestSynchronizer_ResetClosesOpenedDocuments(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestSync(n)
	ctx := context.Background()

	_ = s.HandleOpen(ctx, doc("file:///a.yaml", 1, hostWithRegion))
	s.Reset(ctx, region.NewDetector("query"))

	if len(n.calls) != 2 || n.calls[1] != "close file:///a.yaml" {
		t.Errorf("calls = %v, want a close during reset", n.calls)
	}
	if s.IsOpened("file:///a.yaml") || s.Cache().Len() != 0 {
		t.Error("reset must clear both collections")
	}

	// New detector key is live after reset.
	entry := s.Cache().Get("file:///b.yaml", 1, func() string { return "query: |\n  a\n" })
	if !entry.HasRegion() {
		t.Error("expected the reset detector to be installed")
	}
}
