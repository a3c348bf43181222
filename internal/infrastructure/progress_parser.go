package infrastructure

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/nhdinh03/Download-Video/internal/domain"
)

// LineKind classifies one line of extractor output
type LineKind int

const (
	LineIgnored LineKind = iota
	LineProgress
	LineInfo
	LineThumbnail
	LineURL
	LineTitle
	LineError
	LineUnknown
)

func (k LineKind) String() string {
	switch k {
	case LineProgress:
		return "progress"
	case LineInfo:
		return "info"
	case LineThumbnail:
		return "thumbnail"
	case LineURL:
		return "url"
	case LineTitle:
		return "title"
	case LineError:
		return "error"
	case LineUnknown:
		return "unknown"
	default:
		return "ignored"
	}
}

// ParsedLine is the classification of one output line
type ParsedLine struct {
	Kind    LineKind
	Percent int
	Text    string
}

const (
	errorMarker   = "ERROR"
	warningMarker = "WARNING:"
	secureScheme  = "https://"
)

// A decimal number followed by %, not preceded by a digit, dot or sign.
var percentPattern = regexp.MustCompile(`(?:^|[^\d.\-])(\d{1,3})\.\d+%`)

// ProgressParser classifies extractor output lines for one attempt.
// It is not safe for concurrent use.
type ProgressParser struct {
	profile       *domain.PlatformProfile
	trackProgress bool
	titleSeen     bool
	tail          *LineRing
}

// NewProgressParser creates a parser. Preview runs pass trackProgress=false
// so a title containing a percentage is not mistaken for progress.
func NewProgressParser(profile *domain.PlatformProfile, diagnosticsLines int, trackProgress bool) *ProgressParser {
	return &ProgressParser{
		profile:       profile,
		trackProgress: trackProgress,
		tail:          NewLineRing(diagnosticsLines),
	}
}

// Classify classifies a single line
func (p *ProgressParser) Classify(line string) ParsedLine {
	text := strings.TrimSpace(line)
	if text == "" {
		return ParsedLine{Kind: LineIgnored}
	}

	if strings.Contains(text, errorMarker) {
		p.tail.Add(text)
		return ParsedLine{Kind: LineError, Text: text}
	}

	if p.trackProgress {
		if percent, ok := parsePercent(text); ok {
			return ParsedLine{Kind: LineProgress, Percent: percent, Text: text}
		}
	}

	if strings.HasPrefix(text, secureScheme) {
		if u, err := url.Parse(text); err == nil && p.profile != nil && p.profile.AllowsThumbnailHost(u.Hostname()) {
			return ParsedLine{Kind: LineThumbnail, Text: text}
		}
		return ParsedLine{Kind: LineURL, Text: text}
	}

	if strings.HasPrefix(text, "[") || strings.HasPrefix(text, warningMarker) {
		return ParsedLine{Kind: LineInfo, Text: text}
	}

	if !p.titleSeen {
		p.titleSeen = true
		return ParsedLine{Kind: LineTitle, Text: norm.NFC.String(text)}
	}

	p.tail.Add(text)
	return ParsedLine{Kind: LineUnknown, Text: text}
}

// Tail returns the retained diagnostic lines
func (p *ProgressParser) Tail() string {
	return p.tail.String()
}

// parsePercent returns the integer part of the first well-formed percentage in text
func parsePercent(text string) (int, bool) {
	for _, m := range percentPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > 100 {
			continue
		}
		return n, true
	}
	return 0, false
}
