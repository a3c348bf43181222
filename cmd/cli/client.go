package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/nhdinh03/Download-Video/api/handlers"
	"github.com/nhdinh03/Download-Video/internal/domain"
	"github.com/nhdinh03/Download-Video/pkg/events"
)

// ErrStreamEnded is returned when a stream closes without a terminal event
var ErrStreamEnded = errors.New("stream ended before the download finished")

// Client talks to a running Download-Video server
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// APIError is a non-2xx response from the server
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload handlers.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Code = payload.Code
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// Preview resolves the title, thumbnail and media URL of a video
func (c *Client) Preview(ctx context.Context, platform, videoURL string) (*domain.PreviewResult, error) {
	payload, err := json.Marshal(handlers.PreviewRequest{URL: videoURL})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/%s/preview", c.baseURL, url.PathEscape(platform)), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var result domain.PreviewResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode preview: %w", err)
	}
	return &result, nil
}

// Stream starts a download and calls onEvent for every event until the
// terminal one, which is also returned.
func (c *Client) Stream(ctx context.Context, platform, videoURL string, onEvent func(domain.ProgressEvent)) (domain.ProgressEvent, error) {
	endpoint := fmt.Sprintf("%s/api/%s/download/stream?url=%s",
		c.baseURL, url.PathEscape(platform), url.QueryEscape(videoURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.ProgressEvent{}, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ProgressEvent{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ProgressEvent{}, decodeAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		event, err := events.Decode(strings.TrimPrefix(line, "data:"))
		if err != nil {
			return domain.ProgressEvent{}, err
		}
		if onEvent != nil {
			onEvent(event)
		}
		if event.IsTerminal() {
			return event, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.ProgressEvent{}, err
	}
	return domain.ProgressEvent{}, ErrStreamEnded
}

// Fetch retrieves a finished download into dir and returns the local path.
// The server deletes its copy once it has been sent.
func (c *Client) Fetch(ctx context.Context, fileName, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/files/%s", c.baseURL, url.PathEscape(fileName)), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(fileName))
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to save %s: %w", fileName, err)
	}
	return path, out.Close()
}

// Health returns the server health report
func (c *Client) Health(ctx context.Context) (*handlers.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var health handlers.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health: %w", err)
	}
	return &health, nil
}

// Ready returns nil when the server accepts work, otherwise the reason it does not
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Reason == "" {
		return &APIError{Status: resp.StatusCode, Message: "not ready"}
	}
	return &APIError{Status: resp.StatusCode, Message: body.Reason}
}
