package lsp

// UTF16Len returns the string's length in UTF-16 code units. LSP character
// offsets count UTF-16 units, so an end-of-line column for a host line must
// be measured this way, not in bytes or runes.
func UTF16Len(s string) int {
	count := 0
	for _, r := range s {
		if r >= 0x10000 {
			count += 2 // surrogate pair
		} else {
			count++
		}
	}
	return count
}

// EndOfLine returns the position just past the last character of the given
// 0-based line.
func EndOfLine(line string, lineNumber int) Position {
	return Position{Line: lineNumber, Character: UTF16Len(line)}
}
