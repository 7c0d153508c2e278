package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"backlinks/internal/scoring"
)

// LoadScoringPolicy loads scoring weights from a YAML file on top of the
// built-in defaults. Keys missing from the file keep their default value.
// Returns the defaults without error if the file doesn't exist.
func LoadScoringPolicy(path string) (scoring.Policy, error) {
	policy := scoring.DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Policy file is optional
			return policy, nil
		}
		return policy, err
	}

	if err := yaml.Unmarshal(data, &policy); err != nil {
		return scoring.DefaultPolicy(), fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := checkPolicy(policy); err != nil {
		return scoring.DefaultPolicy(), fmt.Errorf("%s: %w", path, err)
	}
	return policy, nil
}

func checkPolicy(p scoring.Policy) error {
	if p.RefDomainAvgWeight < 0 || p.RefDomainMaxWeight < 0 {
		return errors.New("ref-domain weights must not be negative")
	}
	if p.SpamKeywordMax < 0 {
		return errors.New("spam_keyword_max must not be negative")
	}
	for name, w := range map[string]int{
		"risky_tld_risk":    p.RiskyTLDRisk,
		"spam_keyword_risk": p.SpamKeywordRisk,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	for class, w := range p.AnchorRisk {
		if w < 0 {
			return fmt.Errorf("anchor_risk[%s] must not be negative", class)
		}
	}
	for rel, w := range p.RelRisk {
		if w < 0 {
			return fmt.Errorf("rel_risk[%s] must not be negative", rel)
		}
	}
	return nil
}
