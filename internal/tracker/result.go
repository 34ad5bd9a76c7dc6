package tracker

// Disposition classifies the outcome of handling one message. It is a
// first-class return value so the retry/skip distinction is testable
// instead of being implicit control flow.
type Disposition int

const (
	// DispositionProcessed means the message was reconciled into a
	// task/comment write (or absorbed as a duplicate) and can be
	// retired from the mailbox.
	DispositionProcessed Disposition = iota

	// DispositionSkipped means the message is permanently
	// unprocessable (malformed headers). It is retired without a
	// write; its content will never change, so retrying is pointless.
	DispositionSkipped

	// DispositionRetry means a transient failure (fetch or storage
	// error) occurred. The message is left unretired and picked up
	// again on a later cycle.
	DispositionRetry
)

func (d Disposition) String() string {
	switch d {
	case DispositionProcessed:
		return "processed"
	case DispositionSkipped:
		return "skipped"
	case DispositionRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// Result records how one mailbox message was handled within a cycle.
type Result struct {
	UID         uint32
	Disposition Disposition
	MessageID   string
	Err         error
}
