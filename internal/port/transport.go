package port

// TransferID distinguishes the currently authorized live transfer from any
// stale or resurrected one. Events bearing an identity other than the
// engine's current one are dropped.
type TransferID string

// EventKind identifies the kind of a transfer event.
type EventKind int

// Transfer event kinds
const (
	EventProgress EventKind = iota
	EventFailed
	EventCompleted
)

// TransferEvent is delivered by a Transport on its event channel. The
// transport guarantees that no progress event follows a terminal event
// (EventFailed or EventCompleted) for the same TransferID.
type TransferEvent struct {
	ID   TransferID
	Kind EventKind

	// Progress fields. BytesExpected is zero when the total is unknown.
	BytesReceived int64
	BytesExpected int64

	// TempPath is the spool location of the fully received payload.
	// Set only on EventCompleted.
	TempPath string

	// Failure fields. Token carries resume state when the interruption is
	// recoverable; Cancelled marks a user-initiated teardown, which must
	// never be surfaced as an error.
	Err       error
	Token     []byte
	Cancelled bool
}

// Transport is the network collaborator that executes transfers. The engine
// does not implement HTTP itself; any range-capable client satisfies this
// contract.
type Transport interface {
	// IssueNew starts a fresh transfer for url and returns its identity.
	IssueNew(url string) (TransferID, error)

	// IssueResumed continues a partial transfer described by a resume token
	// previously produced by this transport.
	IssueResumed(token []byte) (TransferID, error)

	// Cancel tears down a live transfer. When produceToken is true the
	// transport captures partial progress as a resume token; a nil token
	// means no recoverable data exists. When false, partial data is
	// discarded.
	Cancel(id TransferID, produceToken bool) ([]byte, error)

	// Events returns the delivery channel for transfer events.
	Events() <-chan TransferEvent

	// Live enumerates transfers that are still running, used to reconcile
	// a reawakened process with its in-flight work.
	Live() []TransferID
}
