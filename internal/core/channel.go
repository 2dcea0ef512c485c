package core

// Channel is the outbound message sink for a single client connection.
// Implementations (internal/wsgate) own the underlying transport and report
// whether it is still writable; Send must never block the caller beyond a
// bounded buffering decision.
type Channel interface {
	// Send enqueues payload for delivery. It returns an error only to let the
	// caller log it; per spec.md §9 a send failure is advisory and must not by
	// itself trigger any cleanup — the channel's own close path does that.
	Send(payload any) error
	// IsOpen reports whether the channel is still in the "open" state.
	IsOpen() bool
	// Close closes the underlying transport. Idempotent.
	Close() error
}
