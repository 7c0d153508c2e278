package scoring

import (
	"math"

	"backlinks/internal/fingerprint"
	"backlinks/internal/models"
)

// Action thresholds for the default action status.
const (
	DisavowThreshold = 80
	ReviewThreshold  = 55
)

// BacklinkInput is everything the engine needs to score one backlink.
type BacklinkInput struct {
	SourceURL string
	TargetURL string
	Anchor    string
	Rel       string
	TLD       string

	// DomainLinks is how many links the source's referring domain
	// contributes; TotalLinks is the size of the run. Both zero when the
	// referring domain has not been resolved.
	DomainLinks int
	TotalLinks  int
}

// Result is the scored output for one backlink.
type Result struct {
	Risk    int
	Quality int
	Flags   []string
}

// RefDomainInput is the backlink risk distribution of one referring domain.
type RefDomainInput struct {
	Risks       []int
	DomainLinks int
	TotalLinks  int
}

// Engine scores backlinks and referring domains. It is a pure function of
// its policy and inputs.
type Engine struct {
	policy Policy
}

// NewEngine creates an engine for the given policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy returns the policy the engine scores with.
func (e *Engine) Policy() Policy {
	return e.policy
}

// ScoreBacklink computes risk, quality and flags for a single backlink.
func (e *Engine) ScoreBacklink(in BacklinkInput) Result {
	p := &e.policy
	risk := p.RiskBase
	quality := p.QualityBase
	var flags []string

	anchorType := fingerprint.ClassifyAnchor(in.Anchor)
	risk += p.AnchorRisk[anchorType]
	quality += p.AnchorQuality[anchorType]
	switch anchorType {
	case models.AnchorExact:
		flags = append(flags, FlagExactMatchAnchor)
	case models.AnchorEmpty:
		flags = append(flags, FlagMissingAnchor)
	case models.AnchorGeneric:
		flags = append(flags, FlagGenericAnchor)
	}

	risk += p.RelRisk[in.Rel]
	quality += p.RelQuality[in.Rel]
	switch in.Rel {
	case models.RelSponsored:
		flags = append(flags, FlagPaidLink)
	case models.RelUGC:
		flags = append(flags, FlagUGCLink)
	}

	if p.IsRiskyTLD(in.TLD) {
		risk += p.RiskyTLDRisk
		quality += p.RiskyTLDQuality
		flags = append(flags, FlagRiskyTLD)
	} else if p.IsTrustedTLD(in.TLD) {
		quality += p.TrustedTLDQuality
	}

	if hits := p.SpamKeywordsIn(in.Anchor, in.SourceURL); len(hits) > 0 {
		n := len(hits)
		if p.SpamKeywordMax > 0 && n > p.SpamKeywordMax {
			n = p.SpamKeywordMax
		}
		risk += n * p.SpamKeywordRisk
		quality += p.SpamKeywordQuality
		flags = append(flags, FlagSpamKeyword)
	}

	if w := p.concentrationRisk(in.DomainLinks, in.TotalLinks); w > 0 {
		risk += w
		quality += p.Concentration.QualityDelta
		flags = append(flags, FlagLinkConcentration)
	}

	if flags == nil {
		flags = []string{}
	}
	return Result{Risk: clamp(risk), Quality: clamp(quality), Flags: flags}
}

// ScoreRefDomain blends the mean and worst backlink risk of a referring
// domain with its own link concentration signal.
func (e *Engine) ScoreRefDomain(in RefDomainInput) int {
	if len(in.Risks) == 0 {
		return 0
	}
	sum, worst := 0, 0
	for _, r := range in.Risks {
		sum += r
		if r > worst {
			worst = r
		}
	}
	avg := float64(sum) / float64(len(in.Risks))
	score := e.policy.RefDomainAvgWeight*avg + e.policy.RefDomainMaxWeight*float64(worst)
	score += float64(e.policy.concentrationRisk(in.DomainLinks, in.TotalLinks))
	return clamp(int(math.Round(score)))
}

// DefaultAction maps a risk score to the action status assigned when an
// operator has not chosen one.
func DefaultAction(risk int) string {
	switch {
	case risk >= DisavowThreshold:
		return models.ActionDisavow
	case risk >= ReviewThreshold:
		return models.ActionReview
	default:
		return models.ActionKeep
	}
}
