package domain

// ChangeOp is the mutation kind of a primary-store change event.
type ChangeOp string

// Change operations delivered by the primary store's change feed.
const (
	OpInsert  ChangeOp = "insert"
	OpUpdate  ChangeOp = "update"
	OpReplace ChangeOp = "replace"
	OpDelete  ChangeOp = "delete"
)

// ChangeEvent is a primary-store mutation, already translated to
// store-agnostic shape: the document identifier is a string and the full
// post-change document (when present) is a plain map. Events are consumed
// transiently and never persisted by this subsystem.
type ChangeEvent struct {
	Operation  ChangeOp
	DocumentID string
	// Document is the full post-change document. Present for inserts; may be
	// stale for updates and replaces, where the indexer re-fetches instead of
	// trusting it. Nil for deletes.
	Document   map[string]any
	Collection string
}
