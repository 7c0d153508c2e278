package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backlinks/internal/models"
)

func TestClassifyRel(t *testing.T) {
	tests := []struct {
		name      string
		sponsored bool
		ugc       bool
		dofollow  bool
		expected  string
	}{
		{"sponsored and ugc prefers sponsored", true, true, true, models.RelSponsored},
		{"sponsored nofollow", true, false, false, models.RelSponsored},
		{"ugc over dofollow", false, true, true, models.RelUGC},
		{"plain dofollow", false, false, true, models.RelFollow},
		{"no flags", false, false, false, models.RelNofollow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyRel(tt.sponsored, tt.ugc, tt.dofollow))
		})
	}
}

func TestRelFromAttributes(t *testing.T) {
	assert.Equal(t, models.RelSponsored, relFromAttributes([]string{"ugc", "Sponsored"}, true))
	assert.Equal(t, models.RelUGC, relFromAttributes([]string{"ugc"}, false))
	assert.Equal(t, models.RelNofollow, relFromAttributes([]string{"nofollow"}, true))
	assert.Equal(t, models.RelFollow, relFromAttributes(nil, true))
}

func TestParseTime(t *testing.T) {
	got := parseTime("2024-05-01 12:30:00 +02:00")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC), *got)

	got = parseTime("2024-05-01")
	require.NotNil(t, got)
	assert.Equal(t, 2024, got.Year())

	assert.Nil(t, parseTime(""))
	assert.Nil(t, parseTime("yesterday"))
}
