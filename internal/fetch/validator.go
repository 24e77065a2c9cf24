package fetch

import (
	"regexp"
	"strings"
)

// PatternSetVersion is bumped whenever the accepted URL shapes change.
const PatternSetVersion = 2

type (
	PatternFamily string

	// Pattern is a single accepted URL shape. A URL must match at least
	// one Pattern (in addition to containing an accepted host) to be valid.
	Pattern struct {
		Family PatternFamily
		Expr   *regexp.Regexp
	}
)

const (
	VideoFamily   PatternFamily = "video"
	VmShortFamily PatternFamily = "vm-short"
	VtShortFamily PatternFamily = "vt-short"
	MobileFamily  PatternFamily = "mobile"
	TShortFamily  PatternFamily = "t-short"
)

var (
	acceptedHosts = []string{"tiktok.com", "vm.tiktok.com", "vt.tiktok.com"}

	acceptedPatterns = []Pattern{
		{VideoFamily, regexp.MustCompile(`^https?://(www\.)?tiktok\.com/@[\w.-]+/video/\d+`)},
		{VmShortFamily, regexp.MustCompile(`^https?://vm\.tiktok\.com/[\w-]+`)},
		{VtShortFamily, regexp.MustCompile(`^https?://vt\.tiktok\.com/[\w-]+`)},
		{MobileFamily, regexp.MustCompile(`^https?://m\.tiktok\.com/v/\d+`)},
		{TShortFamily, regexp.MustCompile(`^https?://(www\.)?tiktok\.com/t/[\w-]+`)},
	}
)

// Patterns returns a copy of the accepted URL patterns.
func Patterns() []Pattern {
	out := make([]Pattern, len(acceptedPatterns))
	copy(out, acceptedPatterns)
	return out
}

// ValidateURL reports whether raw is an acceptable source URL. The URL
// must contain one of the accepted hosts and match at least one of the
// accepted patterns.
func ValidateURL(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false
	}

	lowered := strings.ToLower(trimmed)
	hostOk := false
	for _, host := range acceptedHosts {
		if strings.Contains(lowered, host) {
			hostOk = true
			break
		}
	}
	if !hostOk {
		return false
	}

	return MatchFamily(trimmed) != ""
}

// MatchFamily returns the family of the first pattern matched by the
// URL, or an empty string if none match. Host checks are not applied.
func MatchFamily(raw string) PatternFamily {
	for _, p := range acceptedPatterns {
		if p.Expr.MatchString(raw) {
			return p.Family
		}
	}

	return ""
}

func normaliseURL(raw string) string { return strings.TrimSpace(raw) }
