package bridge

import (
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/blockbridge/internal/lsp"
	"github.com/dshills/blockbridge/internal/region"
)

// blockIndentStep matches the detector's content indentation rule: block
// content sits two columns past the introducer.
const blockIndentStep = "  "

// Transformer folds a formatting response computed against the masked
// document back into a single edit in host coordinates.
//
// The service sees the masked text as a complete document and is expected
// to return exactly one whole-document edit. Anything else is a contract
// violation recovered by applying no edit at all.
type Transformer struct {
	cache *Cache
	log   *zap.Logger
}

// NewTransformer creates a transformer over the shared cache.
func NewTransformer(cache *Cache, log *zap.Logger) *Transformer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transformer{cache: cache, log: log}
}

// Transform converts the service's edits into one host-document edit.
//
// A nil edit with nil error means the response was malformed (zero or
// multiple edits) and formatting is silently skipped. ErrStaleRegion is
// returned when no region is cached, which happens only when a host close
// raced the in-flight request; the caller must drop the response.
//
// The cache is consulted with Peek, not Get: after the round trip the entry
// for a closed document is gone and must stay gone.
func (t *Transformer) Transform(uri lsp.DocumentURI, hostText string, edits []lsp.TextEdit) (*lsp.TextEdit, error) {
	if len(edits) != 1 {
		t.log.Debug("formatting response is not a single whole-document edit",
			zap.String("uri", string(uri)),
			zap.Int("edits", len(edits)))
		return nil, nil
	}

	entry, ok := t.cache.Peek(uri)
	if !ok || !entry.HasRegion() {
		t.log.Error("formatting transform with no cached region",
			zap.String("uri", string(uri)))
		return nil, ErrStaleRegion
	}
	r := entry.Region

	hostLines := region.SplitLines(hostText)
	if r.EndLine >= len(hostLines) {
		t.log.Error("cached region exceeds host text",
			zap.String("uri", string(uri)),
			zap.String("region", r.String()),
			zap.Int("hostLines", len(hostLines)))
		return nil, ErrStaleRegion
	}

	return &lsp.TextEdit{
		Range: lsp.Range{
			Start: lsp.Position{Line: r.StartLine, Character: 0},
			End:   lsp.EndOfLine(hostLines[r.EndLine], r.EndLine),
		},
		NewText: reindent(edits[0].NewText, r.Indent+blockIndentStep),
	}, nil
}

// reindent prefixes every non-blank line with the block's indentation.
// Blank lines stay empty; indenting them would add trailing whitespace the
// host format does not want.
func reindent(text, indent string) string {
	lines := region.SplitLines(text)
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
		} else {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}
