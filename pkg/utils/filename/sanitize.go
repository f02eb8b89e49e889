// Package filename turns user-supplied names into safe local filenames.
package filename

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// invalidCharsRe matches characters not safe for filenames across all major OSes.
var invalidCharsRe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// multiDash collapses runs of dashes/underscores.
var multiDash = regexp.MustCompile(`[-_]{2,}`)

// Sanitize converts an arbitrary string into a filename-safe slug. Path
// separators and reserved characters become dashes, leading/trailing dashes
// and dots are stripped, and the output is cut to maxLen bytes (120 when
// maxLen <= 0) on a rune boundary.
func Sanitize(name string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 120
	}

	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}

	s = invalidCharsRe.ReplaceAllString(s, "-")

	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return '-'
		}
		return r
	}, s)

	s = multiDash.ReplaceAllString(s, "-")

	// Avoid hidden files and trailing dots on Windows.
	s = strings.Trim(s, "-.")

	if len(s) > maxLen {
		s = s[:maxLen]
		for !utf8.ValidString(s) {
			s = s[:len(s)-1]
		}
		s = strings.TrimRight(s, "-.")
	}

	return s
}

// ForTemp returns a safe name for a temp copy of an uploaded file, keeping its
// extension so type sniffing by extension still works. fallback is used when
// nothing of the base name survives.
func ForTemp(name, fallback string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}
	ext := strings.ToLower(Sanitize(filepath.Ext(base), 16))
	stem := Sanitize(strings.TrimSuffix(base, filepath.Ext(base)), 100)
	if stem == "" {
		stem = fallback
	}
	if ext == "" {
		return stem
	}
	return stem + "." + ext
}
