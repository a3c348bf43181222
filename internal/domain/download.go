package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttemptState is the retry controller state for one request
type AttemptState string

const (
	StateAttempting       AttemptState = "attempting"
	StateSucceeded        AttemptState = "succeeded"
	StateFallbackSignaled AttemptState = "fallback_signaled"
	StateFailed           AttemptState = "failed"
)

// DownloadRequest is a validated request for one preview or download
type DownloadRequest struct {
	ID          string
	SourceURL   string
	Platform    Platform
	Profile     *PlatformProfile
	Proxy       string
	CookiesPath string
	CreatedAt   time.Time
}

// NewDownloadRequest creates a request with a fresh ID. sourceURL must already be validated.
func NewDownloadRequest(sourceURL string, profile *PlatformProfile, proxy, cookiesPath string) *DownloadRequest {
	return &DownloadRequest{
		ID:          uuid.New().String(),
		SourceURL:   sourceURL,
		Platform:    profile.Platform,
		Profile:     profile,
		Proxy:       proxy,
		CookiesPath: cookiesPath,
		CreatedAt:   time.Now(),
	}
}

// DownloadAttempt records one process invocation. It lives only until the
// controller has decided whether to retry.
type DownloadAttempt struct {
	Number        int
	ProxyUsed     string
	ExitCode      *int
	RawOutputTail string
	StartedAt     time.Time
	Err           error
}

// NewDownloadAttempt starts a new attempt record
func NewDownloadAttempt(number int, proxy string) *DownloadAttempt {
	return &DownloadAttempt{
		Number:    number,
		ProxyUsed: proxy,
		StartedAt: time.Now(),
	}
}

// SetExitCode records the process exit code
func (a *DownloadAttempt) SetExitCode(code int) {
	a.ExitCode = &code
}

// TempFile is a downloaded file pending delivery
type TempFile struct {
	Name      string
	Path      string
	CreatedAt time.Time
}

// PreviewResult is the metadata returned by a preview run
type PreviewResult struct {
	Title          string `json:"title"`
	ThumbnailURL   string `json:"thumbnailUrl"`
	DirectVideoURL string `json:"directVideoUrl,omitempty"`
}

const (
	// PlaceholderThumbnail replaces thumbnails that are missing or not allow-listed
	PlaceholderThumbnail = "https://via.placeholder.com/300x150?text=Thumbnail"
	// UntitledVideo is used when no title line was found
	UntitledVideo = "Untitled"
)
