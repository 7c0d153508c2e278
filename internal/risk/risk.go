// Package risk holds the run-level and ingestion-time risk heuristics.
package risk

import (
	"math"

	"backlinks/internal/fingerprint"
	"backlinks/internal/models"
	"backlinks/internal/provider"
	"backlinks/internal/scoring"
)

// Band weights used by RunScore.
const (
	toxicWeight  = 1.0
	reviewWeight = 0.5
)

// RunScore aggregates per-backlink risk scores into a single 0-100 run
// score: the weighted share of links in the toxic (disavow) and review bands.
func RunScore(scores []int) int {
	if len(scores) == 0 {
		return 0
	}
	var weighted float64
	for _, s := range scores {
		switch {
		case s >= scoring.DisavowThreshold:
			weighted += toxicWeight
		case s >= scoring.ReviewThreshold:
			weighted += reviewWeight
		}
	}
	score := int(math.Round(100 * weighted / float64(len(scores))))
	return min(max(score, 0), 100)
}

// ItemFlags derives the flags that can be computed from raw provider fields
// before the full scoring pass runs.
func ItemFlags(item provider.BacklinkItem, policy scoring.Policy) []string {
	flags := []string{}
	if policy.IsRiskyTLD(item.TLD) {
		flags = append(flags, scoring.FlagRiskyTLD)
	}
	if len(policy.SpamKeywordsIn(item.Anchor, item.SourceURL)) > 0 {
		flags = append(flags, scoring.FlagSpamKeyword)
	}
	switch item.Rel {
	case models.RelSponsored:
		flags = append(flags, scoring.FlagPaidLink)
	case models.RelUGC:
		flags = append(flags, scoring.FlagUGCLink)
	}
	switch fingerprint.ClassifyAnchor(item.Anchor) {
	case models.AnchorExact:
		flags = append(flags, scoring.FlagExactMatchAnchor)
	case models.AnchorEmpty:
		flags = append(flags, scoring.FlagMissingAnchor)
	}
	return flags
}

// SeedRefDomainScore approximates a referring domain's risk from its
// backlink count and TLD alone.
func SeedRefDomainScore(backlinksCount int, tld string, policy scoring.Policy) int {
	s := policy.Seed
	score := s.Base
	if policy.IsRiskyTLD(tld) {
		score += s.RiskyTLD
	}
	switch {
	case s.HighCount > 0 && backlinksCount >= s.HighCount:
		score += s.HighRisk
	case s.MediumCount > 0 && backlinksCount >= s.MediumCount:
		score += s.MediumRisk
	case s.LowCount > 0 && backlinksCount >= s.LowCount:
		score += s.LowRisk
	}
	return min(max(score, 0), 100)
}
