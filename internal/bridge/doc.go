// Package bridge keeps an embedded-language server's view of the world
// consistent with the editor's view of its YAML host documents.
//
// The bridge never shows the server a host document directly. Each host
// document is reduced to a masked copy (see internal/region) cached per
// version, and the Synchronizer decides when that masked copy is worth
// announcing: a document is opened on the service lazily, the first time a
// region actually exists, and every subsequent change is a whole-document
// replacement of the masked text. A document that never grows a region is
// never mentioned to the service at all.
//
// The Gatekeeper suppresses feature requests that land outside the region,
// and the Transformer folds the service's whole-document formatting result
// back into a single correctly indented edit in host coordinates.
//
// All state lives on the Synchronizer instance; Reset is the explicit
// teardown that clears both the cache and the opened-document set.
package bridge
