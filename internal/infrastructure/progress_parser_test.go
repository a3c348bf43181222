package infrastructure

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhdinh03/Download-Video/internal/domain"
)

func tiktokProfile() *domain.PlatformProfile {
	p := domain.DefaultProfiles()[domain.PlatformTikTok]
	return &p
}

func TestProgressParser_Progress(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		kind    LineKind
		percent int
	}{
		{name: "yt-dlp progress", line: "[download]  42.3% of 10.00MiB at 1.00MiB/s ETA 00:05", kind: LineProgress, percent: 42},
		{name: "fraction discarded", line: "[download]  99.9% of 1MiB", kind: LineProgress, percent: 99},
		{name: "complete", line: "[download] 100.0% of 10.00MiB in 00:10", kind: LineProgress, percent: 100},
		{name: "zero", line: "[download]   0.0% of ~ 5MiB", kind: LineProgress, percent: 0},
		{name: "start of line", line: "7.5%", kind: LineProgress, percent: 7},
		{name: "over 100", line: "[download] 150.0% of 1MiB", kind: LineInfo},
		{name: "four digits", line: "[download] 1000.5%", kind: LineInfo},
		{name: "no fraction", line: "[download] 42% of 1MiB", kind: LineInfo},
		{name: "negative", line: "[download] -5.0%", kind: LineInfo},
		{name: "garbage", line: "[download] abc.d%", kind: LineInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgressParser(tiktokProfile(), 10, true)
			got := p.Classify(tt.line)
			assert.Equal(t, tt.kind, got.Kind)
			if tt.kind == LineProgress {
				assert.Equal(t, tt.percent, got.Percent)
			}
		})
	}
}

func TestProgressParser_PercentAlwaysInRange(t *testing.T) {
	p := NewProgressParser(tiktokProfile(), 10, true)
	for i := 0; i < 1000; i++ {
		line := fmt.Sprintf("[download] %d.%d%% of 1MiB", i, i%10)
		got := p.Classify(line)
		if got.Kind == LineProgress {
			assert.GreaterOrEqual(t, got.Percent, 0)
			assert.LessOrEqual(t, got.Percent, 100)
			assert.Equal(t, i, got.Percent)
		} else {
			assert.Greater(t, i, 100)
		}
	}
}

func TestProgressParser_Thumbnail(t *testing.T) {
	p := NewProgressParser(tiktokProfile(), 10, false)

	got := p.Classify("https://p16-sign-va.tiktokcdn.com/obj/cover.jpeg?x=1")
	assert.Equal(t, LineThumbnail, got.Kind)

	got = p.Classify("https://evil.example/cover.jpeg")
	assert.Equal(t, LineURL, got.Kind)

	got = p.Classify("https://tiktokcdn.com.evil.example/cover.jpeg")
	assert.Equal(t, LineURL, got.Kind)

	got = p.Classify("http://p16.tiktokcdn.com/cover.jpeg")
	assert.NotEqual(t, LineThumbnail, got.Kind, "plain http is never a thumbnail")
}

func TestProgressParser_TitleFirstMatchWins(t *testing.T) {
	p := NewProgressParser(tiktokProfile(), 10, false)

	assert.Equal(t, LineInfo, p.Classify("[TikTok] Extracting URL: https://www.tiktok.com/@a/video/1").Kind)
	assert.Equal(t, LineInfo, p.Classify("WARNING: unable to extract something").Kind)
	assert.Equal(t, LineError, p.Classify("ERROR: something went wrong").Kind)
	assert.Equal(t, LineIgnored, p.Classify("   ").Kind)

	got := p.Classify("My video title")
	require.Equal(t, LineTitle, got.Kind)
	assert.Equal(t, "My video title", got.Text)

	assert.Equal(t, LineUnknown, p.Classify("Another line").Kind)
	assert.Contains(t, p.Tail(), "Another line")
	assert.Contains(t, p.Tail(), "ERROR: something went wrong")
}

func TestProgressParser_TitleNFC(t *testing.T) {
	p := NewProgressParser(tiktokProfile(), 10, false)

	decomposed := "Vi\u0065\u0323\u0302t Nam"
	got := p.Classify(decomposed)

	require.Equal(t, LineTitle, got.Kind)
	assert.Equal(t, "Vi\u1ec7t Nam", got.Text)
}

func TestProgressParser_PreviewIgnoresPercent(t *testing.T) {
	p := NewProgressParser(tiktokProfile(), 10, false)

	got := p.Classify("Save 12.5% today")
	assert.Equal(t, LineTitle, got.Kind)
}

func TestProgressParser_TailIsBounded(t *testing.T) {
	p := NewProgressParser(tiktokProfile(), 3, true)
	p.Classify("title")
	for i := 0; i < 10; i++ {
		p.Classify(fmt.Sprintf("noise %d", i))
	}

	lines := strings.Split(p.Tail(), "\n")
	assert.Equal(t, []string{"noise 7", "noise 8", "noise 9"}, lines)
}

func TestLineRing_TruncatesLongLines(t *testing.T) {
	r := NewLineRing(2)
	r.Add(strings.Repeat("x", 2000))
	require.Len(t, r.Lines(), 1)
	assert.Len(t, r.Lines()[0], maxRingLineBytes)
}

func TestScanLinesCRLF(t *testing.T) {
	input := "one\ntwo\r\nthree\rfour"
	var got []string
	data := []byte(input)
	for len(data) > 0 {
		advance, token, err := scanLinesCRLF(data, true)
		require.NoError(t, err)
		require.Greater(t, advance, 0)
		got = append(got, string(token))
		data = data[advance:]
	}
	assert.Equal(t, []string{"one", "two", "three", "four"}, got)
}
