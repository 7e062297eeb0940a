// Package scoring computes the points a contest submission earns.
package scoring

import (
	"fmt"
	"strings"

	"github.com/jjudge-oj/judgeserver/config"
	"github.com/jjudge-oj/judgeserver/types"
)

// Policy awards points for a judged contest attempt.
type Policy interface {
	// Points returns the points for an attempt. problemPoints is the
	// contest's value for the problem and attempt is 1-based.
	Points(problemPoints, attempt int, verdict types.Verdict) int
	Name() string
}

// Fixed awards the full problem value to any accepted attempt.
type Fixed struct{}

func (Fixed) Name() string { return "fixed" }

func (Fixed) Points(problemPoints, attempt int, verdict types.Verdict) int {
	if verdict != types.VerdictAccepted {
		return 0
	}
	return normalizePoints(problemPoints)
}

// Decay reduces the problem value by DecayPercent for every earlier attempt,
// never going below MinPercent of the full value.
type Decay struct {
	DecayPercent int
	MinPercent   int
}

func (Decay) Name() string { return "decay" }

func (d Decay) Points(problemPoints, attempt int, verdict types.Verdict) int {
	if verdict != types.VerdictAccepted {
		return 0
	}
	full := normalizePoints(problemPoints)
	if attempt < 1 {
		attempt = 1
	}

	percent := 100 - (attempt-1)*d.DecayPercent
	if percent < d.MinPercent {
		percent = d.MinPercent
	}
	percent = max(0, min(percent, 100))
	return full * percent / 100
}

// FromConfig returns the policy named in cfg.
func FromConfig(cfg config.ScoringConfig) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Policy)) {
	case "", "fixed":
		return Fixed{}, nil
	case "decay":
		if cfg.DecayPercent < 0 || cfg.MinPercent < 0 || cfg.MinPercent > 100 {
			return nil, fmt.Errorf("invalid decay scoring parameters: decay=%d min=%d", cfg.DecayPercent, cfg.MinPercent)
		}
		return Decay{DecayPercent: cfg.DecayPercent, MinPercent: cfg.MinPercent}, nil
	default:
		return nil, fmt.Errorf("unknown scoring policy %q", cfg.Policy)
	}
}

func normalizePoints(points int) int {
	if points <= 0 {
		return types.DefaultContestProblemPoints
	}
	return points
}
