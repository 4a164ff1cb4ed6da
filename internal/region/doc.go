// Package region locates and masks the embedded-language block inside a
// YAML host document.
//
// Detection works on indentation alone: the block begins at the line after
// an introducer such as "source: |" and extends over every line indented at
// least two columns past the introducer. No YAML parsing is involved, which
// keeps detection cheap and, more importantly, keeps the masked output
// byte-compatible with the host text.
//
// Masking blanks every line outside the detected block while copying block
// lines verbatim. The output always splits into the same number of lines as
// the input, so any (line, character) position the embedded language server
// computes against the masked text is directly valid in the host document.
package region
