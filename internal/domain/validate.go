package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// MaxURLLength is the longest source URL accepted
	MaxURLLength = 2048
	// MaxFilenameLength is the longest opaque file name accepted
	MaxFilenameLength = 255
)

var filenamePattern = regexp.MustCompile(`^[a-zA-Z0-9\-.]+$`)

// ValidateURL checks a submitted URL against the profile's URL shape and returns it trimmed.
func ValidateURL(rawURL string, profile *PlatformProfile) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", InvalidInput(MessageInvalidURL)
	}
	if len(rawURL) > MaxURLLength {
		return "", InvalidInput(MessageInvalidURL)
	}
	if strings.ContainsAny(rawURL, " \t\r\n") {
		return "", InvalidInput(MessageInvalidURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", InvalidInput(MessageInvalidURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", InvalidInput(MessageInvalidURL)
	}
	if u.User != nil || u.Port() != "" {
		return "", InvalidInput(MessageInvalidURL)
	}
	if !strings.HasPrefix(u.Path, "/") {
		return "", InvalidInput(MessageInvalidURL)
	}
	if profile == nil || !profile.MatchesDomain(u.Hostname()) {
		return "", InvalidInput(MessageInvalidURL)
	}

	return rawURL, nil
}

// ValidateFilename checks an opaque file name handed back to the client after a download
func ValidateFilename(name string) error {
	if name == "" || len(name) > MaxFilenameLength {
		return InvalidInput(MessageInvalidFilename)
	}
	if !filenamePattern.MatchString(name) || strings.Contains(name, "..") {
		return InvalidInput(MessageInvalidFilename)
	}
	return nil
}

// ValidateProxy checks a proxy URL. An empty proxy is valid and means no proxy.
func ValidateProxy(proxy string) error {
	if proxy == "" {
		return nil
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return fmt.Errorf("invalid proxy: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return fmt.Errorf("invalid proxy scheme: %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("invalid proxy: missing host")
	}
	return nil
}
