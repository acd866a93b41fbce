// Package debt computes the remediation effort of issues from the remediation
// function of their rule.
package debt

import (
	"errors"
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/rules"
)

// Sentinel errors.
var (
	ErrInvalidRemediation = errors.New("invalid remediation function")
	ErrInvalidDuration    = errors.New("invalid work duration")
)

// Calculator computes issue effort in minutes. It only reads the rule
// repository and is safe for concurrent use.
type Calculator struct {
	rules     rules.Repository
	durations Durations
}

// NewCalculator creates a calculator over a rule repository.
func NewCalculator(repo rules.Repository, durations Durations) *Calculator {
	return &Calculator{rules: repo, durations: durations}
}

// Calculate returns the effort of an issue, or nil when its rule has no
// remediation function. Issues of external engines keep their reported effort.
// An unknown rule is an error wrapping rules.ErrRuleNotFound.
func (c *Calculator) Calculate(iss *issue.Issue) (*int64, error) {
	if iss.FromExternalRuleEngine {
		return iss.Effort, nil
	}

	rule, err := c.rules.Get(iss.RuleKey)
	if err != nil {
		return nil, err
	}

	fn := rule.Remediation
	if fn == nil {
		return nil, nil //nolint:nilnil // no remediation function configured.
	}

	if fn.Type == rules.ConstantIssue && iss.Gap != nil {
		return nil, fmt.Errorf("%w: rule %s can't use a constant per issue function because it reports a gap",
			ErrInvalidRemediation, iss.RuleKey)
	}

	var effort float64

	if fn.Type.UsesGapMultiplier() && fn.GapMultiplier != "" {
		coefficient, decodeErr := c.durations.Decode(fn.GapMultiplier)
		if decodeErr != nil {
			return nil, fmt.Errorf("%w: rule %s gap multiplier: %w", ErrInvalidRemediation, iss.RuleKey, decodeErr)
		}

		effort = float64(coefficient) * gapOf(iss, fn.Type)
	}

	if fn.Type.UsesBaseEffort() && fn.BaseEffort != "" {
		offset, decodeErr := c.durations.Decode(fn.BaseEffort)
		if decodeErr != nil {
			return nil, fmt.Errorf("%w: rule %s base effort: %w", ErrInvalidRemediation, iss.RuleKey, decodeErr)
		}

		effort += float64(offset)
	}

	minutes := int64(math.Trunc(effort))

	return &minutes, nil
}

// gapOf defaults a missing gap to 1; LINEAR also never goes below 1.
func gapOf(iss *issue.Issue, t rules.FunctionType) float64 {
	if iss.Gap == nil {
		return 1
	}

	if t == rules.Linear {
		return math.Max(1, *iss.Gap)
	}

	return *iss.Gap
}
