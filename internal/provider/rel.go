package provider

import (
	"strings"
	"time"

	"backlinks/internal/models"
)

// ClassifyRel maps provider link flags to exactly one rel class.
// Precedence: sponsored, then ugc, then the dofollow flag.
func ClassifyRel(sponsored, ugc, dofollow bool) string {
	switch {
	case sponsored:
		return models.RelSponsored
	case ugc:
		return models.RelUGC
	case dofollow:
		return models.RelFollow
	default:
		return models.RelNofollow
	}
}

// relFromAttributes classifies a link from a list of rel attribute tokens.
func relFromAttributes(attrs []string, dofollow bool) string {
	var sponsored, ugc bool
	for _, a := range attrs {
		switch strings.ToLower(strings.TrimSpace(a)) {
		case "sponsored":
			sponsored = true
		case "ugc":
			ugc = true
		case "nofollow":
			dofollow = false
		}
	}
	return ClassifyRel(sponsored, ugc, dofollow)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05 -07:00",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime parses provider timestamps, returning nil when empty or unparseable.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
