package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"backlinks/internal/models"
)

func TestDefaultAction_Boundaries(t *testing.T) {
	tests := []struct {
		risk     int
		expected string
	}{
		{100, models.ActionDisavow},
		{80, models.ActionDisavow},
		{79, models.ActionReview},
		{55, models.ActionReview},
		{54, models.ActionKeep},
		{0, models.ActionKeep},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, DefaultAction(tt.risk), "risk %d", tt.risk)
	}
}

func TestScoreBacklink_CleanBrandLink(t *testing.T) {
	e := NewEngine(DefaultPolicy())
	res := e.ScoreBacklink(BacklinkInput{
		SourceURL: "https://news.example.org/story",
		Anchor:    "Example Corporation homepage",
		Rel:       models.RelFollow,
		TLD:       "org",
	})

	assert.Equal(t, 10, res.Risk)
	assert.Equal(t, 90, res.Quality)
	assert.Empty(t, res.Flags)
	assert.NotNil(t, res.Flags)
	assert.Equal(t, models.ActionKeep, DefaultAction(res.Risk))
}

func TestScoreBacklink_ToxicLink(t *testing.T) {
	e := NewEngine(DefaultPolicy())
	res := e.ScoreBacklink(BacklinkInput{
		SourceURL:   "https://cheap-casino-poker.xyz/payday",
		Anchor:      "casino",
		Rel:         models.RelSponsored,
		TLD:         "xyz",
		DomainLinks: 60,
		TotalLinks:  100,
	})

	assert.Equal(t, 100, res.Risk)
	assert.Equal(t, 0, res.Quality)
	assert.ElementsMatch(t, []string{
		FlagExactMatchAnchor, FlagPaidLink, FlagRiskyTLD, FlagSpamKeyword, FlagLinkConcentration,
	}, res.Flags)
	assert.Equal(t, models.ActionDisavow, DefaultAction(res.Risk))
}

func TestScoreBacklink_Deterministic(t *testing.T) {
	e := NewEngine(DefaultPolicy())
	in := BacklinkInput{SourceURL: "https://a.top/x", Anchor: "click here", Rel: models.RelUGC, TLD: "top"}
	assert.Equal(t, e.ScoreBacklink(in), e.ScoreBacklink(in))
}

func TestScoreBacklink_MonotonicInSignals(t *testing.T) {
	e := NewEngine(DefaultPolicy())
	base := BacklinkInput{SourceURL: "https://blog.example.com/p", Anchor: "a great guide to gardening", Rel: models.RelFollow, TLD: "com"}
	baseRes := e.ScoreBacklink(base)

	withTLD := base
	withTLD.TLD = "xyz"
	assert.Greater(t, e.ScoreBacklink(withTLD).Risk, baseRes.Risk)
	assert.Less(t, e.ScoreBacklink(withTLD).Quality, baseRes.Quality)

	sponsored := base
	sponsored.Rel = models.RelSponsored
	assert.Greater(t, e.ScoreBacklink(sponsored).Risk, baseRes.Risk)

	concentrated := base
	concentrated.DomainLinks = 25
	concentrated.TotalLinks = 1000
	assert.Greater(t, e.ScoreBacklink(concentrated).Risk, baseRes.Risk)
}

func TestScoreBacklink_ClampsToRange(t *testing.T) {
	p := DefaultPolicy()
	p.RiskBase = 500
	p.QualityBase = -500
	res := NewEngine(p).ScoreBacklink(BacklinkInput{Anchor: "x y z"})
	assert.Equal(t, 100, res.Risk)
	assert.Equal(t, 0, res.Quality)
}

func TestScoreBacklink_SpamKeywordsCapped(t *testing.T) {
	p := DefaultPolicy()
	p.RiskBase = 0
	p.AnchorRisk = nil
	e := NewEngine(p)
	res := e.ScoreBacklink(BacklinkInput{Anchor: "casino poker viagra cialis porn"})
	assert.Equal(t, p.SpamKeywordMax*p.SpamKeywordRisk, res.Risk)
}

func TestScoreRefDomain(t *testing.T) {
	e := NewEngine(DefaultPolicy())

	assert.Equal(t, 0, e.ScoreRefDomain(RefDomainInput{}))
	// 0.7*avg(20,40) + 0.3*40 = 21 + 12
	assert.Equal(t, 33, e.ScoreRefDomain(RefDomainInput{Risks: []int{20, 40}, DomainLinks: 2, TotalLinks: 100}))
	// concentration adds the high weight
	assert.Equal(t, 48, e.ScoreRefDomain(RefDomainInput{Risks: []int{20, 40}, DomainLinks: 60, TotalLinks: 100}))
	assert.Equal(t, 100, e.ScoreRefDomain(RefDomainInput{Risks: []int{100, 100}, DomainLinks: 60, TotalLinks: 100}))
}

func TestPolicy_TLDMatching(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.IsRiskyTLD("XYZ"))
	assert.True(t, p.IsRiskyTLD(".top"))
	assert.False(t, p.IsRiskyTLD("com"))
	assert.False(t, p.IsRiskyTLD(""))
	assert.True(t, p.IsTrustedTLD("edu"))
}

func TestPolicy_SpamKeywordsIn(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, []string{"casino", "loan"}, p.SpamKeywordsIn("Best CASINO", "https://x.com/loan-offer"))
	assert.Empty(t, p.SpamKeywordsIn("gardening tips"))
}
