package fingerprint

import (
	"strings"
	"unicode/utf8"

	"backlinks/internal/models"
)

// genericPhrases are anchors that carry no keyword or brand signal.
var genericPhrases = map[string]struct{}{
	"click here":   {},
	"click":        {},
	"read more":    {},
	"learn more":   {},
	"here":         {},
	"link":         {},
	"website":      {},
	"this website": {},
	"page":         {},
	"more":         {},
	"this":         {},
	"view":         {},
	"visit":        {},
	"source":       {},
}

// ClassifyAnchor assigns an anchor type. Rules are evaluated in order and the
// first match wins.
func ClassifyAnchor(anchor string) string {
	text := strings.ToLower(strings.TrimSpace(anchor))
	if text == "" {
		return models.AnchorEmpty
	}
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		return models.AnchorURL
	}
	if _, ok := genericPhrases[text]; ok {
		return models.AnchorGeneric
	}

	length := utf8.RuneCountInString(text)
	hasSpace := strings.ContainsAny(text, " \t")

	switch {
	case !hasSpace && length > 2:
		return models.AnchorExact
	case !hasSpace && length <= 30:
		return models.AnchorPartial
	case length > 10:
		return models.AnchorBrand
	default:
		return models.AnchorGeneric
	}
}
