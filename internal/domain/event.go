package domain

// EventKind tags a ProgressEvent variant
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventDone     EventKind = "done"
	EventFallback EventKind = "fallback"
	EventError    EventKind = "error"
)

// ProgressEvent is delivered to the subscriber of a download stream.
// Only the field matching Kind is meaningful.
type ProgressEvent struct {
	Kind        EventKind
	Percent     int    // EventProgress, 0..100
	FileName    string // EventDone, opaque name under the scratch directory
	OriginalURL string // EventFallback
	Message     string // EventError, one of the Message* constants
}

// Progress creates a progress event, clamped to 0..100
func Progress(percent int) ProgressEvent {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return ProgressEvent{Kind: EventProgress, Percent: percent}
}

// Done creates the success terminal event
func Done(fileName string) ProgressEvent {
	return ProgressEvent{Kind: EventDone, FileName: fileName}
}

// Fallback creates the retries-exhausted terminal event
func Fallback(originalURL string) ProgressEvent {
	return ProgressEvent{Kind: EventFallback, OriginalURL: originalURL}
}

// Failure creates the hard-error terminal event
func Failure(message string) ProgressEvent {
	return ProgressEvent{Kind: EventError, Message: message}
}

// IsTerminal reports whether the event ends the stream
func (e ProgressEvent) IsTerminal() bool {
	return e.Kind != EventProgress
}
