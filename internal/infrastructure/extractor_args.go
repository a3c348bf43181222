package infrastructure

import (
	"os"

	"github.com/nhdinh03/Download-Video/internal/domain"
)

// ArgTemplateVersion identifies the extractor argument layout below. Bump it
// whenever flags are added, removed or reordered.
const ArgTemplateVersion = "v1"

// ExtractorOptions holds the tool-level settings shared by every invocation
type ExtractorOptions struct {
	Binary              string
	ReencoderBinary     string
	UserAgent           string
	InsecureTLS         bool
	CookiesRequireProxy bool
}

// ExtractorArgs builds extractor command lines from a platform profile
type ExtractorArgs struct {
	opts       ExtractorOptions
	fileExists func(path string) bool
}

// NewExtractorArgs creates a new argument builder
func NewExtractorArgs(opts ExtractorOptions) *ExtractorArgs {
	return &ExtractorArgs{
		opts: opts,
		fileExists: func(path string) bool {
			info, err := os.Stat(path)
			return err == nil && !info.IsDir()
		},
	}
}

// DownloadCommand builds the command that downloads req to outputPath.
// proxy is the proxy in effect for this attempt, which may differ from req.Proxy.
func (b *ExtractorArgs) DownloadCommand(req *domain.DownloadRequest, proxy, outputPath string) domain.Command {
	args := b.common(req, proxy)
	args = append(args, "--newline", "-f", format(req.Profile))
	if req.Profile.Reencode && b.opts.ReencoderBinary != "" {
		args = append(args, "--recode-video", "mp4", "--ffmpeg-location", b.opts.ReencoderBinary)
	}
	args = append(args, "-o", outputPath, req.SourceURL)
	return b.command(args)
}

// PreviewCommand builds the command that prints title, thumbnail and direct URL, one per line
func (b *ExtractorArgs) PreviewCommand(req *domain.DownloadRequest, proxy string) domain.Command {
	args := b.common(req, proxy)
	args = append(args,
		"-f", format(req.Profile),
		"--print", "title",
		"--print", "thumbnail",
		"--print", "url",
		req.SourceURL,
	)
	return b.command(args)
}

func (b *ExtractorArgs) common(req *domain.DownloadRequest, proxy string) []string {
	args := []string{"--ignore-config", "--no-playlist"}
	if b.opts.UserAgent != "" {
		args = append(args, "--user-agent", b.opts.UserAgent)
	}
	if req.Profile.Referer != "" {
		args = append(args, "--add-header", "Referer:"+req.Profile.Referer)
	}
	if req.Profile.Origin != "" {
		args = append(args, "--add-header", "Origin:"+req.Profile.Origin)
	}
	if b.opts.InsecureTLS {
		args = append(args, "--no-check-certificate")
	}
	if proxy != "" {
		args = append(args, "--proxy", proxy)
	}
	if b.useCookies(req.CookiesPath, proxy) {
		args = append(args, "--cookies", req.CookiesPath)
	}
	return args
}

func (b *ExtractorArgs) useCookies(path, proxy string) bool {
	if path == "" || !b.fileExists(path) {
		return false
	}
	return proxy != "" || !b.opts.CookiesRequireProxy
}

func (b *ExtractorArgs) command(args []string) domain.Command {
	return domain.Command{
		Binary: b.opts.Binary,
		Args:   args,
		Env:    []string{"PYTHONUNBUFFERED=1", "PYTHONIOENCODING=utf-8"},
	}
}

func format(profile *domain.PlatformProfile) string {
	if profile.Format == "" {
		return "b"
	}
	return profile.Format
}
