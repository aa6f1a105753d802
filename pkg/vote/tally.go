// Package vote tallies the distinct samples observed for one target and
// decides when one of them has enough support to be committed.
package vote

import (
	"slices"

	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/sample"
)

// Entry is the support gathered by one distinct sample.
type Entry struct {
	Sample *sample.Sample
	// Basic counts observations.
	Basic int
	// Full counts observations that were also verified. Full <= Basic.
	Full int
	// Similar counts the other distinct samples sharing this one's
	// similarity key.
	Similar int
}

// Reasons reported in Decision.
const (
	ReasonConfident  = "confident"
	ReasonLastChance = "last-chance pick"
	ReasonExhaustion = "picked by exhaustion"
)

// Decision is a winning entry and why it won.
type Decision struct {
	Entry
	Reason   string
	Distinct int
}

// Votes converts the decision to its persisted form.
func (d Decision) Votes() sample.Votes {
	return sample.Votes{Basic: d.Basic, Full: d.Full, Similar: d.Similar, Distinct: d.Distinct}
}

// Tally is owned by one job and is not safe for concurrent use.
type Tally struct {
	policy  Policy
	entries map[string]*Entry
}

// NewTally creates an empty tally.
func NewTally(policy Policy) *Tally {
	return &Tally{policy: policy, entries: make(map[string]*Entry)}
}

// Len returns the number of distinct samples.
func (t *Tally) Len() int {
	return len(t.entries)
}

// Add records one observation of s and refreshes every similarity count.
func (t *Tally) Add(s *sample.Sample) {
	key := s.CanonicalKey()
	e, ok := t.entries[key]
	if !ok {
		e = &Entry{Sample: s}
		t.entries[key] = e
	}
	e.Basic++

	if !ok {
		t.recomputeSimilar()
	}
}

// recomputeSimilar refreshes Similar for every entry. Only a new distinct
// sample can change the counts.
func (t *Tally) recomputeSimilar() {
	groups := make(map[string]int, len(t.entries))
	for _, e := range t.entries {
		groups[e.Sample.SimilarityKey()]++
	}
	for _, e := range t.entries {
		e.Similar = groups[e.Sample.SimilarityKey()] - 1
	}
}

// AddVerified records that one observation of s was verified. s must have
// been added first.
func (t *Tally) AddVerified(s *sample.Sample) error {
	e, ok := t.entries[s.CanonicalKey()]
	if !ok {
		return errors.NewNotFoundError("tally entry", s.ID())
	}
	if e.Full >= e.Basic {
		return errors.NewValidationError("full", e.Full+1, "verified observations cannot exceed observations")
	}
	e.Full++
	return nil
}

// Entries returns a snapshot ranked best first.
func (t *Tally) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	slices.SortFunc(out, rank)
	return out
}

// rank orders by Full, Basic, Similar descending, then by sample order.
func rank(a, b Entry) int {
	switch {
	case a.Full != b.Full:
		return b.Full - a.Full
	case a.Basic != b.Basic:
		return b.Basic - a.Basic
	case a.Similar != b.Similar:
		return b.Similar - a.Similar
	default:
		return sample.Compare(a.Sample, b.Sample)
	}
}

// Winner returns the best entry when it clears a threshold. Unless
// confidentOnly is set, the best entry is also accepted when exhausted is
// true or when more distinct samples than the diversity cap were seen.
func (t *Tally) Winner(confidentOnly, exhausted bool) (Decision, bool) {
	if len(t.entries) == 0 {
		return Decision{}, false
	}
	best := t.Entries()[0]
	d := Decision{Entry: best, Distinct: len(t.entries)}

	switch {
	case t.policy.Confident(best):
		d.Reason = ReasonConfident
	case confidentOnly:
		return Decision{}, false
	case exhausted:
		d.Reason = ReasonLastChance
	case len(t.entries) > t.policy.DiversityCap:
		d.Reason = ReasonExhaustion
	default:
		return Decision{}, false
	}
	return d, true
}
