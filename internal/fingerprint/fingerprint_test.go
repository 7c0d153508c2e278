package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backlinks/internal/models"
)

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("https://src.example/post", "https://target.example/", "follow", "best tools")
	b := Fingerprint("https://src.example/post", "https://target.example/", "follow", "best tools")

	require.Len(t, a, 64)
	assert.Equal(t, a, b)
}

func TestFingerprint_EachFieldMatters(t *testing.T) {
	base := Fingerprint("https://src.example/post", "https://target.example/", "follow", "anchor")

	variants := map[string]string{
		"source": Fingerprint("https://src.example/other", "https://target.example/", "follow", "anchor"),
		"target": Fingerprint("https://src.example/post", "https://target.example/page", "follow", "anchor"),
		"rel":    Fingerprint("https://src.example/post", "https://target.example/", "nofollow", "anchor"),
		"anchor": Fingerprint("https://src.example/post", "https://target.example/", "follow", "Anchor"),
	}

	for name, fp := range variants {
		t.Run(name, func(t *testing.T) {
			assert.NotEqual(t, base, fp)
		})
	}
}

func TestFingerprint_SeparatorPreventsShifting(t *testing.T) {
	assert.NotEqual(t,
		Fingerprint("ab", "c", "follow", ""),
		Fingerprint("a", "bc", "follow", ""),
	)
}

func TestFingerprint_FieldContentCannotCollide(t *testing.T) {
	tests := []struct {
		name string
		a, b [4]string
	}{
		{
			name: "pipe moves from source to target",
			a:    [4]string{"https://src.example/a|b", "https://t.example/", "follow", "x"},
			b:    [4]string{"https://src.example/a", "b|https://t.example/", "follow", "x"},
		},
		{
			name: "pipe moves from target to anchor",
			a:    [4]string{"https://src.example/", "https://t.example/|follow|x", "follow", "y"},
			b:    [4]string{"https://src.example/", "https://t.example/", "follow", "x|follow|y"},
		},
		{
			name: "digits and colons look like a length prefix",
			a:    [4]string{"1:a", "", "follow", ""},
			b:    [4]string{"", "1:a", "follow", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t,
				Fingerprint(tt.a[0], tt.a[1], tt.a[2], tt.a[3]),
				Fingerprint(tt.b[0], tt.b[1], tt.b[2], tt.b[3]),
			)
		})
	}
}

func TestAnchorHash(t *testing.T) {
	assert.Equal(t, AnchorHash("Best SEO"), AnchorHash("  best seo "))
	assert.NotEqual(t, AnchorHash("best seo"), AnchorHash("best  seo"))
	assert.Len(t, AnchorHash(""), 64)
}

func TestClassifyAnchor(t *testing.T) {
	tests := []struct {
		name     string
		anchor   string
		expected string
	}{
		{"empty", "", models.AnchorEmpty},
		{"whitespace only", "   \t", models.AnchorEmpty},
		{"https url", "https://example.com", models.AnchorURL},
		{"http url uppercase", "HTTP://Example.com/page", models.AnchorURL},
		{"generic phrase", "Click Here", models.AnchorGeneric},
		{"generic single word", "here", models.AnchorGeneric},
		{"single keyword", "SEO", models.AnchorExact},
		{"long single keyword", "backlinkauditingplatformforagencies", models.AnchorExact},
		{"two chars no space", "go", models.AnchorPartial},
		{"multi word long", "best seo tools guide", models.AnchorBrand},
		{"multi word short", "a b c", models.AnchorGeneric},
		{"exactly ten chars with space", "abcd efghi", models.AnchorGeneric},
		{"eleven chars with space", "abcd efghij", models.AnchorBrand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyAnchor(tt.anchor))
		})
	}
}

func TestClassifyAnchor_GenericPhraseIgnoresCaseAndSpace(t *testing.T) {
	assert.Equal(t, models.AnchorGeneric, ClassifyAnchor(" Read More "))
	assert.NotEqual(t, models.AnchorGeneric, ClassifyAnchor("seotools"))
}
