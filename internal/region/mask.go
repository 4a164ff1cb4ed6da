package region

import "strings"

// Mask produces a copy of the host text in which every line outside the
// region is replaced by an empty line, and lines inside the region are
// copied verbatim. A nil region blanks every line.
//
// The output splits into exactly the same number of lines as the input.
// This is the load-bearing guarantee of the package: positions computed by
// the embedded language server against the masked text need no translation
// back into host coordinates.
func Mask(text string, r *Region) string {
	lines := SplitLines(text)
	masked := make([]string, len(lines))

	if r != nil {
		for i := r.StartLine; i <= r.EndLine && i < len(lines); i++ {
			masked[i] = lines[i]
		}
	}

	return strings.Join(masked, "\n")
}
