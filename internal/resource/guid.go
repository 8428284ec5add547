package resource

import "github.com/google/uuid"

// GUID is the opaque 128-bit identifier of spec §3, used to correlate a
// logical resource across sessions. It is a type alias for uuid.UUID: a
// zero-conversion fit for "opaque 128-bit identifier", and google/uuid is
// one of the most common dependencies across the retrieval pack (see
// DESIGN.md).
type GUID = uuid.UUID

// NilGUID is the invalid-GUID sentinel: "do not bind" on Add, and the
// return value of GuidOf for a handle with no bound GUID.
var NilGUID = uuid.Nil

// NewGUID mints a fresh random GUID, for callers that don't derive one from
// asset content/path themselves (cmd/enginectl uses it for its seeded mesh).
func NewGUID() GUID {
	return uuid.New()
}
