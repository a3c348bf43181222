// Package events converts download events to and from the textual wire
// markers sent over SSE and WebSocket streams.
package events

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nhdinh03/Download-Video/internal/domain"
)

const (
	PrefixProgress = "PROGRESS_"
	PrefixDone     = "DONE_"
	PrefixFallback = "FALLBACK_"
	PrefixError    = "ERROR_"
)

// Encode returns the wire form of event
func Encode(event domain.ProgressEvent) string {
	switch event.Kind {
	case domain.EventProgress:
		return PrefixProgress + strconv.Itoa(event.Percent)
	case domain.EventDone:
		return PrefixDone + event.FileName
	case domain.EventFallback:
		return PrefixFallback + event.OriginalURL
	default:
		return PrefixError + event.Message
	}
}

// Decode parses a wire marker
func Decode(data string) (domain.ProgressEvent, error) {
	data = strings.TrimSpace(data)
	switch {
	case strings.HasPrefix(data, PrefixProgress):
		n, err := strconv.Atoi(strings.TrimPrefix(data, PrefixProgress))
		if err != nil || n < 0 || n > 100 {
			return domain.ProgressEvent{}, fmt.Errorf("invalid progress marker: %q", data)
		}
		return domain.Progress(n), nil
	case strings.HasPrefix(data, PrefixDone):
		return domain.Done(strings.TrimPrefix(data, PrefixDone)), nil
	case strings.HasPrefix(data, PrefixFallback):
		return domain.Fallback(strings.TrimPrefix(data, PrefixFallback)), nil
	case strings.HasPrefix(data, PrefixError):
		return domain.Failure(strings.TrimPrefix(data, PrefixError)), nil
	}
	return domain.ProgressEvent{}, fmt.Errorf("unknown event marker: %q", data)
}
