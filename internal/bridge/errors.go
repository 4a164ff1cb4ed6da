package bridge

import "errors"

// ErrStaleRegion indicates a formatting transform was attempted for a
// document with no cached region. The gatekeeper makes this unreachable in
// normal operation; hitting it means a close raced the in-flight request,
// and the edit must be dropped rather than applied.
var ErrStaleRegion = errors.New("no cached region for document")
