package region

import (
	"fmt"
	"regexp"
	"strings"
)

// Region is the contiguous line span of an embedded-language block within a
// host document. Lines are 0-based and the span is inclusive on both ends.
// The line holding the block introducer itself is not part of the span.
//
// Indent is the leading whitespace of the introducer line. It is recorded so
// that formatted text can be re-indented back to the block's level.
type Region struct {
	StartLine int
	EndLine   int
	Indent    string
}

// Contains reports whether the 0-based line falls inside the region.
func (r Region) Contains(line int) bool {
	return line >= r.StartLine && line <= r.EndLine
}

// String returns a compact description for logging.
func (r Region) String() string {
	return fmt.Sprintf("lines %d-%d (indent %d)", r.StartLine, r.EndLine, len(r.Indent))
}

// contentIndentStep is how far block content must be indented past the
// introducer line for YAML to consider it part of the block scalar.
const contentIndentStep = 2

// introducerPattern matches a block-scalar introducer line: optional indent,
// the key, a colon, a literal or folded indicator, and an optional block
// header (chomping and/or explicit indentation digit). The key is injected
// after quoting, so configured keys may contain regexp metacharacters.
const introducerPattern = `^([ \t]*)%s:[ \t]*[|>][0-9]?[+-]?[ \t]*$`

// Detector finds at most one embedded-language block per document.
// It is stateless and safe for concurrent use.
type Detector struct {
	introducer *regexp.Regexp
}

// NewDetector builds a detector for the given introducer key, e.g. "source".
func NewDetector(key string) *Detector {
	return &Detector{
		introducer: regexp.MustCompile(fmt.Sprintf(introducerPattern, regexp.QuoteMeta(key))),
	}
}

// Detect scans the host text for the first introducer line and returns the
// span of the block beneath it. The second return value is false when no
// introducer exists or the block has no content lines.
//
// Only the first introducer in the document is honored; a document has zero
// or one embedded region.
func (d *Detector) Detect(text string) (Region, bool) {
	lines := SplitLines(text)

	for i, line := range lines {
		m := d.introducer.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		indent := m[1]
		contentIndent := indentWidth(indent) + contentIndentStep

		start := i + 1
		if start >= len(lines) {
			return Region{}, false
		}

		end := start - 1
		hasContent := false
		terminated := false

		for j := start; j < len(lines); j++ {
			if isBlank(lines[j]) {
				// Provisional: included only if the document ends
				// before a less-indented sibling appears.
				continue
			}
			if indentWidth(leadingWhitespace(lines[j])) < contentIndent {
				terminated = true
				break
			}
			end = j
			hasContent = true
		}

		if !hasContent {
			return Region{}, false
		}
		if !terminated {
			// Document ended inside the block; trailing blank lines
			// belong to it.
			end = len(lines) - 1
		}

		return Region{StartLine: start, EndLine: end, Indent: indent}, true
	}

	return Region{}, false
}

// SplitLines splits text on newlines, preserving empty lines. Text ending in
// a newline yields a final empty element, mirroring how editors count lines.
func SplitLines(text string) []string {
	if text == "" {
		return []string{""}
	}
	return strings.Split(text, "\n")
}

// isBlank reports whether the line contains only whitespace.
func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// leadingWhitespace returns the line's whitespace prefix.
func leadingWhitespace(line string) string {
	for i, r := range line {
		if r != ' ' && r != '\t' {
			return line[:i]
		}
	}
	return line
}

// indentWidth measures a whitespace prefix in columns. Tabs count as a
// single column; YAML forbids tabs in indentation, so any tab-indented line
// is malformed anyway and only needs a consistent ordering.
func indentWidth(prefix string) int {
	return len(prefix)
}
