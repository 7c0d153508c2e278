// Package scoring computes per-backlink and per-referring-domain risk and
// quality scores, and runs the chunked aggregation/rescoring pass over a run.
package scoring

import (
	"strings"

	"backlinks/internal/models"
)

// Flag codes explaining which heuristics fired for a backlink.
const (
	FlagRiskyTLD          = "risky_tld"
	FlagSpamKeyword       = "spam_keyword"
	FlagPaidLink          = "paid_link"
	FlagUGCLink           = "ugc_link"
	FlagExactMatchAnchor  = "exact_match_anchor"
	FlagMissingAnchor     = "missing_anchor"
	FlagGenericAnchor     = "generic_anchor"
	FlagLinkConcentration = "link_concentration"
)

// Concentration tunes the "one domain contributes too many links" signal.
type Concentration struct {
	HighLinks    int     `yaml:"high_links"`
	HighShare    float64 `yaml:"high_share"`
	HighRisk     int     `yaml:"high_risk"`
	MediumLinks  int     `yaml:"medium_links"`
	MediumRisk   int     `yaml:"medium_risk"`
	QualityDelta int     `yaml:"quality_delta"`
}

// Seed tunes the ingestion-time referring domain approximation.
type Seed struct {
	Base        int `yaml:"base"`
	RiskyTLD    int `yaml:"risky_tld"`
	HighCount   int `yaml:"high_count"`
	HighRisk    int `yaml:"high_risk"`
	MediumCount int `yaml:"medium_count"`
	MediumRisk  int `yaml:"medium_risk"`
	LowCount    int `yaml:"low_count"`
	LowRisk     int `yaml:"low_risk"`
}

// Policy holds the tunable weights behind the scoring contract. Every weight
// moves a score in one direction only and all outputs are clamped to [0,100].
type Policy struct {
	RiskBase    int `yaml:"risk_base"`
	QualityBase int `yaml:"quality_base"`

	AnchorRisk    map[string]int `yaml:"anchor_risk"`
	AnchorQuality map[string]int `yaml:"anchor_quality"`
	RelRisk       map[string]int `yaml:"rel_risk"`
	RelQuality    map[string]int `yaml:"rel_quality"`

	RiskyTLDs         []string `yaml:"risky_tlds"`
	RiskyTLDRisk      int      `yaml:"risky_tld_risk"`
	RiskyTLDQuality   int      `yaml:"risky_tld_quality"`
	TrustedTLDs       []string `yaml:"trusted_tlds"`
	TrustedTLDQuality int      `yaml:"trusted_tld_quality"`

	SpamKeywords       []string `yaml:"spam_keywords"`
	SpamKeywordRisk    int      `yaml:"spam_keyword_risk"`
	SpamKeywordMax     int      `yaml:"spam_keyword_max"`
	SpamKeywordQuality int      `yaml:"spam_keyword_quality"`

	Concentration Concentration `yaml:"concentration"`

	RefDomainAvgWeight float64 `yaml:"ref_domain_avg_weight"`
	RefDomainMaxWeight float64 `yaml:"ref_domain_max_weight"`

	Seed Seed `yaml:"seed"`
}

// DefaultPolicy returns the built-in weights.
func DefaultPolicy() Policy {
	return Policy{
		RiskBase:    10,
		QualityBase: 60,
		AnchorRisk: map[string]int{
			models.AnchorExact:   25,
			models.AnchorPartial: 10,
			models.AnchorGeneric: 5,
			models.AnchorEmpty:   5,
		},
		AnchorQuality: map[string]int{
			models.AnchorBrand:   10,
			models.AnchorURL:     5,
			models.AnchorExact:   -10,
			models.AnchorGeneric: -5,
			models.AnchorEmpty:   -5,
		},
		RelRisk: map[string]int{
			models.RelSponsored: 15,
			models.RelUGC:       10,
		},
		RelQuality: map[string]int{
			models.RelFollow:    20,
			models.RelNofollow:  -10,
			models.RelSponsored: -20,
			models.RelUGC:       -10,
		},
		RiskyTLDs: []string{
			"xyz", "top", "click", "loan", "win", "gq", "ml", "cf", "tk", "ga",
			"work", "bid", "date", "racing", "review", "stream", "download", "icu",
		},
		RiskyTLDRisk:      20,
		RiskyTLDQuality:   -25,
		TrustedTLDs:       []string{"edu", "gov"},
		TrustedTLDQuality: 15,
		SpamKeywords: []string{
			"casino", "poker", "viagra", "cialis", "porn", "loan", "payday",
			"replica", "escort", "betting", "crypto", "forex", "pills",
		},
		SpamKeywordRisk:    15,
		SpamKeywordMax:     3,
		SpamKeywordQuality: -20,
		Concentration: Concentration{
			HighLinks:    50,
			HighShare:    0.2,
			HighRisk:     15,
			MediumLinks:  20,
			MediumRisk:   8,
			QualityDelta: -10,
		},
		RefDomainAvgWeight: 0.7,
		RefDomainMaxWeight: 0.3,
		Seed: Seed{
			Base:        10,
			RiskyTLD:    30,
			HighCount:   100,
			HighRisk:    30,
			MediumCount: 50,
			MediumRisk:  20,
			LowCount:    20,
			LowRisk:     10,
		},
	}
}

// IsRiskyTLD reports whether tld is on the risky list.
func (p *Policy) IsRiskyTLD(tld string) bool {
	return containsFold(p.RiskyTLDs, tld)
}

// IsTrustedTLD reports whether tld is on the trusted list.
func (p *Policy) IsTrustedTLD(tld string) bool {
	return containsFold(p.TrustedTLDs, tld)
}

// SpamKeywordsIn returns the distinct spam keywords found in any of texts,
// in policy order.
func (p *Policy) SpamKeywordsIn(texts ...string) []string {
	joined := strings.ToLower(strings.Join(texts, " "))
	var found []string
	for _, kw := range p.SpamKeywords {
		if kw != "" && strings.Contains(joined, strings.ToLower(kw)) {
			found = append(found, kw)
		}
	}
	return found
}

// concentrationRisk returns the risk weight for a domain contributing
// links out of total backlinks, or 0 when the signal does not fire.
func (p *Policy) concentrationRisk(links, total int) int {
	c := p.Concentration
	share := 0.0
	if total > 0 {
		share = float64(links) / float64(total)
	}
	switch {
	case c.HighLinks > 0 && links >= c.HighLinks:
		return c.HighRisk
	case c.HighShare > 0 && share >= c.HighShare && links > 1:
		return c.HighRisk
	case c.MediumLinks > 0 && links >= c.MediumLinks:
		return c.MediumRisk
	}
	return 0
}

func containsFold(list []string, s string) bool {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	if s == "" {
		return false
	}
	for _, v := range list {
		if strings.EqualFold(strings.TrimPrefix(v, "."), s) {
			return true
		}
	}
	return false
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
