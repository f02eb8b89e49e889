// Package sourceurl normalizes ad source URLs so that the same ad submitted
// in different spellings maps to one swipe.
package sourceurl

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// Well-known host aliases. Key: input host. Value: canonical domain.
var canonicalDomainByHost = map[string]string{
	"facebook.com":          "facebook.com",
	"www.facebook.com":      "facebook.com",
	"m.facebook.com":        "facebook.com",
	"web.facebook.com":      "facebook.com",
	"business.facebook.com": "facebook.com",
	"fb.com":                "facebook.com",
	"www.fb.com":            "facebook.com",
}

// ResolveCanonicalDomain returns the canonical domain for host.
//
// host should be a hostname without port.
func ResolveCanonicalDomain(host string) string {
	h := normalizeHost(host)
	if h == "" {
		return ""
	}
	if c, ok := canonicalDomainByHost[h]; ok {
		return c
	}
	return h
}

var ErrInvalidURL = errors.New("invalid source url")

// Normalize canonicalizes a user-provided ad URL for storage and dedup.
//
// The fragment and userinfo are dropped, the scheme becomes https and known
// host aliases collapse to one domain. Ad library links keep only the ad id
// (?id=), since search and tracking parameters vary between shares of the
// same ad. Other URLs keep their query.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.Join(ErrInvalidURL, errors.New("missing url"))
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Join(ErrInvalidURL, err)
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + raw)
		if err != nil {
			return "", errors.Join(ErrInvalidURL, err)
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.Join(ErrInvalidURL, errors.New("unsupported scheme "+u.Scheme))
	}

	u.Fragment = ""
	u.User = nil
	u.Scheme = "https"

	canon := ResolveCanonicalDomain(u.Host)
	if canon == "" {
		return "", errors.Join(ErrInvalidURL, errors.New("missing host"))
	}
	u.Host = canon
	u.Path = trimTrailingSlash(u.Path)

	if isAdLibrary(canon, u.Path) {
		if id := AdArchiveID(u.String()); id != "" {
			u.Path = "/ads/library/"
			u.RawQuery = "id=" + id
		}
	}

	return u.String(), nil
}

func isAdLibrary(canon, path string) bool {
	return canon == "facebook.com" && strings.HasPrefix(path, "/ads/")
}

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// AdArchiveID extracts the numeric ad archive id from an ad library URL, or
// returns "".
func AdArchiveID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if ResolveCanonicalDomain(u.Host) != "facebook.com" || !strings.HasPrefix(u.Path, "/ads/") {
		return ""
	}
	q := u.Query()
	for _, key := range []string{"id", "ad_archive_id"} {
		if v := strings.TrimSpace(q.Get(key)); digitsOnly.MatchString(v) {
			return v
		}
	}
	return ""
}

func normalizeHost(hostport string) string {
	h := strings.TrimSpace(strings.ToLower(hostport))
	if h == "" {
		return ""
	}
	// url.URL.Host may include port.
	if strings.Contains(h, ":") {
		if parsed, err := url.Parse("//" + h); err == nil {
			if parsed.Hostname() != "" {
				h = parsed.Hostname()
			}
		}
	}
	h = strings.TrimSuffix(h, ".")
	return h
}

func trimTrailingSlash(p string) string {
	if p == "" {
		return ""
	}
	if p == "/" {
		return "/"
	}
	return strings.TrimRight(p, "/")
}
