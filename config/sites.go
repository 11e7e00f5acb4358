package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// SiteProfile tunes how a domain's pages are rendered before extraction.
type SiteProfile struct {
	Domain string `yaml:"domain"`
	// WaitSelector, when set, is awaited (soft-failing) after navigation.
	WaitSelector string `yaml:"wait_selector"`
	// WaitTimeoutSec bounds the WaitSelector wait.
	WaitTimeoutSec int `yaml:"wait_timeout_sec"`
	// SettleMs overrides the fixed post-navigation settle time.
	SettleMs int `yaml:"settle_ms"`
}

// WaitTimeout returns the selector wait bound, defaulting to 30s.
func (p SiteProfile) WaitTimeout() time.Duration {
	if p.WaitTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.WaitTimeoutSec) * time.Second
}

// Settle returns the fixed wait after navigation, defaulting to 2s.
func (p SiteProfile) Settle() time.Duration {
	if p.SettleMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(p.SettleMs) * time.Millisecond
}

type sitesFile struct {
	Sites []SiteProfile `yaml:"sites"`
}

// SiteProfiles is an immutable domain -> profile table.
type SiteProfiles struct {
	byDomain map[string]SiteProfile
}

// DefaultSiteProfiles returns the built-in profiles.
func DefaultSiteProfiles() *SiteProfiles {
	return newSiteProfiles([]SiteProfile{
		{Domain: "factorvalor.pt", WaitSelector: ".propertyItem", WaitTimeoutSec: 30},
	})
}

// LoadSiteProfiles merges the YAML file at path over the built-in profiles.
// A missing file is not an error.
func LoadSiteProfiles(path string) (*SiteProfiles, error) {
	base := DefaultSiteProfiles()
	if path == "" {
		return base, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return base, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sites: read %q: %w", path, err)
	}

	var sf sitesFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("sites: parse %q: %w", path, err)
	}

	merged := make([]SiteProfile, 0, len(base.byDomain)+len(sf.Sites))
	for _, p := range base.byDomain {
		merged = append(merged, p)
	}
	for _, p := range sf.Sites {
		if strings.TrimSpace(p.Domain) == "" {
			return nil, fmt.Errorf("sites: %q: profile without domain", path)
		}
		merged = append(merged, p)
	}
	return newSiteProfiles(merged), nil
}

func newSiteProfiles(list []SiteProfile) *SiteProfiles {
	m := make(map[string]SiteProfile, len(list))
	for _, p := range list {
		p.Domain = strings.ToLower(strings.TrimSpace(p.Domain))
		m[p.Domain] = p
	}
	return &SiteProfiles{byDomain: m}
}

// For returns the most specific profile matching rawURL's host, or the zero
// profile when none matches.
func (s *SiteProfiles) For(rawURL string) SiteProfile {
	u, err := url.Parse(rawURL)
	if err != nil || s == nil {
		return SiteProfile{}
	}
	host := strings.ToLower(u.Hostname())

	var best SiteProfile
	for domain, p := range s.byDomain {
		if host != domain && !strings.HasSuffix(host, "."+domain) {
			continue
		}
		if len(domain) > len(best.Domain) {
			best = p
		}
	}
	return best
}
