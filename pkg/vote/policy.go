package vote

import (
	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
)

// Policy holds the acceptance thresholds. A sample is accepted when any of
// its counts is strictly greater than the matching threshold.
type Policy struct {
	MinFull      int `mapstructure:"min_full"`
	MinBasic     int `mapstructure:"min_basic"`
	MinSimilar   int `mapstructure:"min_similar"`
	DiversityCap int `mapstructure:"diversity_cap"`
}

// DefaultPolicy returns the thresholds the engine ships with.
func DefaultPolicy() Policy {
	return Policy{
		MinFull:      constants.MinFullVotes,
		MinBasic:     constants.MinBasicVotes,
		MinSimilar:   constants.MinSimilarVotes,
		DiversityCap: constants.DiversityCap,
	}
}

// Validate rejects negative thresholds.
func (p Policy) Validate() error {
	switch {
	case p.MinFull < 0:
		return errors.NewValidationError("policy.min_full", p.MinFull, "must not be negative")
	case p.MinBasic < 0:
		return errors.NewValidationError("policy.min_basic", p.MinBasic, "must not be negative")
	case p.MinSimilar < 0:
		return errors.NewValidationError("policy.min_similar", p.MinSimilar, "must not be negative")
	case p.DiversityCap < 0:
		return errors.NewValidationError("policy.diversity_cap", p.DiversityCap, "must not be negative")
	}
	return nil
}

// Confident reports whether e clears any threshold.
func (p Policy) Confident(e Entry) bool {
	return e.Full > p.MinFull || e.Basic > p.MinBasic || e.Similar > p.MinSimilar
}
