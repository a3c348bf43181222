package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for retry and HTTP mapping decisions
type ErrorKind string

const (
	KindInvalidInput    ErrorKind = "invalid_input"
	KindToolUnavailable ErrorKind = "tool_unavailable"
	KindProcessFailure  ErrorKind = "process_failure"
	KindDisconnected    ErrorKind = "disconnected"
	KindTimeout         ErrorKind = "timeout"
	KindUnavailable     ErrorKind = "unavailable"
)

// User-facing messages. Clients only ever see one of these.
const (
	MessageInvalidURL           = "Invalid URL. Please check the link format for this platform."
	MessageInvalidLink          = "Could not get a video from this link. Please try another link."
	MessageSystemError          = "System error. Please try again later."
	MessageExtractorUnavailable = "The video extractor is not available on the server."
	MessageReencoderUnavailable = "The video re-encoder is not available on the server."
	MessageTimeout              = "Processing the video took too long. Please try again."
	MessageFileNotFound         = "File not found."
	MessageInvalidFilename      = "Invalid file name."
	MessageInvalidProxy         = "Invalid proxy. The proxy will be ignored."
	MessagePreviewFailed        = "Could not get video information. The video may be private, region-locked or blocked. Try downloading it directly."
	MessageServiceUnavailable   = "The service is shutting down. Please try again later."
	MessageUnknownPlatform      = "Unsupported platform."
)

// Error is the typed error carried across component boundaries
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the retry controller may re-attempt after this error
func (e *Error) Retryable() bool {
	return e.Kind == KindProcessFailure
}

// NewError creates a typed error
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// InvalidInput creates an invalid_input error
func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// ToolUnavailable creates a tool_unavailable error for the given binary
func ToolUnavailable(message, binary string, err error) *Error {
	return &Error{Kind: KindToolUnavailable, Message: message, Err: fmt.Errorf("%s: %w", binary, err)}
}

// ProcessFailure creates a retryable process_failure error
func ProcessFailure(err error) *Error {
	return &Error{Kind: KindProcessFailure, Message: MessageInvalidLink, Err: err}
}

// ErrShuttingDown is returned for work submitted after shutdown began
var ErrShuttingDown = &Error{Kind: KindUnavailable, Message: MessageServiceUnavailable}

// ErrDisconnected is returned by event sinks whose subscriber went away
var ErrDisconnected = &Error{Kind: KindDisconnected, Message: "subscriber disconnected"}

// KindOf returns the kind of a typed error, or an empty kind for untyped errors
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the user-facing message for err
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return MessageSystemError
}
