// Package proxy is the editor-facing side of the bridge: an LSP server
// speaking on the process's stdin/stdout.
//
// The editor opens YAML documents against it as if it were a YAML language
// server. Lifecycle notifications feed the document store and the bridge
// synchronizer; feature requests pass the region gatekeeper and are
// forwarded to the embedded-language server against the masked document.
// Because masking preserves line/column geometry, positions travel in both
// directions without translation — only formatting results need the
// transformer's re-indentation pass.
//
// Documents whose languageId is the embedded language itself bypass the
// bridge entirely and are forwarded verbatim.
package proxy
