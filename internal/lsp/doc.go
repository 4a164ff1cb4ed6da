// Package lsp implements the Language Server Protocol plumbing the bridge
// sits between: JSON-RPC 2.0 framing over stdio, the protocol DTOs both
// sides exchange, and a client that spawns and drives the embedded-language
// server process.
//
// The transport is role-agnostic. The bridge uses one Transport as a server
// (facing the editor on the process's own stdin/stdout) and a second one as
// a client (facing the spawned embedded-language server). Incoming requests
// and notifications are dispatched synchronously in read order, which is
// what keeps per-document lifecycle notifications correctly sequenced.
//
// Only the protocol surface the bridge needs is modeled: document lifecycle,
// formatting, completion, hover, and published diagnostics. Feature results
// that pass through the bridge untouched stay as json.RawMessage.
package lsp
