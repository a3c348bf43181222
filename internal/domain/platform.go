package domain

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Platform represents the source platform for downloads
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformFacebook  Platform = "facebook"
)

// PreviewRequirement names the output a preview run must produce to count as a success
type PreviewRequirement string

const (
	RequireThumbnail PreviewRequirement = "thumbnail"
	RequireDirectURL PreviewRequirement = "direct_url"
)

// PlatformProfile parameterizes the orchestration core for one platform.
// Profiles are built once at startup and never mutated.
type PlatformProfile struct {
	Platform        Platform
	Domains         []string
	ThumbnailHosts  []string
	Referer         string
	Origin          string
	Format          string
	PreviewRequires PreviewRequirement
	Reencode        bool
}

// MatchesDomain reports whether host is one of the profile's URL domains
func (p *PlatformProfile) MatchesDomain(host string) bool {
	return hostInSet(host, p.Domains, false)
}

// AllowsThumbnailHost reports whether host is on the profile's CDN allow-list.
// Subdomains of an allow-listed host match.
func (p *PlatformProfile) AllowsThumbnailHost(host string) bool {
	return hostInSet(host, p.ThumbnailHosts, true)
}

func hostInSet(host string, set []string, allowSubdomains bool) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	for _, d := range set {
		d = strings.ToLower(d)
		if host == d {
			return true
		}
		if allowSubdomains && strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// DefaultProfiles returns the built-in platform profiles
func DefaultProfiles() map[Platform]PlatformProfile {
	return map[Platform]PlatformProfile{
		PlatformTikTok: {
			Platform:        PlatformTikTok,
			Domains:         []string{"tiktok.com", "www.tiktok.com", "vm.tiktok.com", "vt.tiktok.com", "m.tiktok.com"},
			ThumbnailHosts:  []string{"tiktokcdn.com", "tiktokcdn-us.com", "muscdn.com"},
			Referer:         "https://www.tiktok.com/",
			Origin:          "https://www.tiktok.com",
			Format:          "b",
			PreviewRequires: RequireThumbnail,
			Reencode:        true,
		},
		PlatformFacebook: {
			Platform:        PlatformFacebook,
			Domains:         []string{"facebook.com", "www.facebook.com", "m.facebook.com", "web.facebook.com", "fb.watch", "fb.com", "www.fb.com"},
			ThumbnailHosts:  []string{"fbcdn.net"},
			Referer:         "https://www.facebook.com/",
			Format:          "b",
			PreviewRequires: RequireDirectURL,
		},
		PlatformInstagram: {
			Platform:        PlatformInstagram,
			Domains:         []string{"instagram.com", "www.instagram.com"},
			ThumbnailHosts:  []string{"cdninstagram.com", "fbcdn.net"},
			Referer:         "https://www.instagram.com/",
			Format:          "b",
			PreviewRequires: RequireThumbnail,
		},
	}
}

// PlatformRegistry is the immutable set of profiles shared by the validator, parser and controller
type PlatformRegistry struct {
	profiles map[Platform]*PlatformProfile
}

// NewPlatformRegistry merges config overrides into the built-in profiles
func NewPlatformRegistry(overrides map[string]PlatformConfig) (*PlatformRegistry, error) {
	profiles := DefaultProfiles()
	for name, o := range overrides {
		p, ok := profiles[Platform(strings.ToLower(name))]
		if !ok {
			return nil, fmt.Errorf("unknown platform in config: %s", name)
		}
		if len(o.Domains) > 0 {
			p.Domains = append([]string(nil), o.Domains...)
		}
		if len(o.ThumbnailHosts) > 0 {
			p.ThumbnailHosts = append([]string(nil), o.ThumbnailHosts...)
		}
		if o.Referer != "" {
			p.Referer = o.Referer
		}
		if o.Origin != "" {
			p.Origin = o.Origin
		}
		if o.Format != "" {
			p.Format = o.Format
		}
		if o.PreviewRequires != "" {
			req := PreviewRequirement(o.PreviewRequires)
			if req != RequireThumbnail && req != RequireDirectURL {
				return nil, fmt.Errorf("invalid preview_requires for %s: %s", name, o.PreviewRequires)
			}
			p.PreviewRequires = req
		}
		if o.Reencode != nil {
			p.Reencode = *o.Reencode
		}
		profiles[p.Platform] = p
	}

	r := &PlatformRegistry{profiles: make(map[Platform]*PlatformProfile, len(profiles))}
	for platform, p := range profiles {
		p := p
		r.profiles[platform] = &p
	}
	return r, nil
}

// Lookup returns the profile for a platform name
func (r *PlatformRegistry) Lookup(name string) (*PlatformProfile, bool) {
	p, ok := r.profiles[Platform(strings.ToLower(name))]
	return p, ok
}

// Detect returns the profile whose domain set contains the URL's host
func (r *PlatformRegistry) Detect(rawURL string) (*PlatformProfile, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, false
	}
	for _, p := range r.profiles {
		if p.MatchesDomain(u.Hostname()) {
			return p, true
		}
	}
	return nil, false
}

// Platforms lists the registered platforms in name order
func (r *PlatformRegistry) Platforms() []Platform {
	out := make([]Platform, 0, len(r.profiles))
	for p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
