// Package verify cross-checks a sample against an independent overlay
// service before its votes count as verified.
//
// The overlay renders the target's surroundings; a sample is corroborated
// when a feature-info query at one of its probe points returns a payload
// labelled with the target id.
package verify

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/logging"
	"github.com/agentstation/quorum/pkg/sample"
)

// Prober issues one overlay query and returns its text payload.
type Prober interface {
	Probe(ctx context.Context, url string) (string, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, url string) (string, error)

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// Reasons reported in Result.
const (
	ReasonNoDescriptor = "no descriptor"
	ReasonDegenerate   = "degenerate descriptor"
	ReasonAddressMemo  = "address memo"
	ReasonLabelMatch   = "label match"
	ReasonExhausted    = "probes exhausted"
)

// Result is the outcome of one verification.
type Result struct {
	Verified  bool
	Reason    string
	Attempted []string
	Signature *Signature
}

// Err describes a failed verification, or nil.
func (r Result) Err(targetID string) error {
	if r.Verified {
		return nil
	}
	return errors.NewVerificationError(targetID, r.Attempted)
}

// Verifier runs the probe protocol.
type Verifier struct {
	prober Prober
	query  Query
	step   int
	limit  int
	memo   *AddressMemo
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithGridStep sets the probe spacing in pixels.
func WithGridStep(step int) Option {
	return func(v *Verifier) {
		if step > 0 {
			v.step = step
		}
	}
}

// WithMaxProbes bounds the overlay queries of one verification.
func WithMaxProbes(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.limit = n
		}
	}
}

// WithAddressMemo shares memo between verifiers.
func WithAddressMemo(memo *AddressMemo) Option {
	return func(v *Verifier) {
		if memo != nil {
			v.memo = memo
		}
	}
}

// New creates a Verifier issuing query through prober.
func New(prober Prober, query Query, opts ...Option) *Verifier {
	v := &Verifier{
		prober: prober,
		query:  query,
		step:   constants.DefaultGridStep,
		limit:  constants.MaxProbes,
		memo:   NewAddressMemo(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// AddressMemo returns the memo the verifier records into.
func (v *Verifier) AddressMemo() *AddressMemo {
	return v.memo
}

// Verify checks s against the overlay, consulting and filling probes, the
// calling job's probe memo. A nil probes memo disables per-URL caching.
//
// Probe transport errors count as a non-matching probe and are not cached.
func (v *Verifier) Verify(ctx context.Context, s *sample.Sample, targetID string, probes *ProbeMemo) Result {
	logger := logging.FromContext(ctx)

	d, ok := s.Descriptor()
	if !ok {
		return Result{Verified: true, Reason: ReasonNoDescriptor}
	}
	if d.Degenerate() {
		return Result{Verified: true, Reason: ReasonDegenerate}
	}

	points := Grid(d, v.step, v.limit)

	address := s.Address()
	if sig, ok := v.memo.Lookup(address); ok {
		logger.Debug().Str("address", address).Str("probe_url", sig.ProbeURL).Msg("address already verified")
		return Result{Verified: true, Reason: ReasonAddressMemo, Signature: &sig}
	}

	if probes == nil {
		probes = NewProbeMemo()
	}

	attempted := make([]string, 0, len(points))
	for _, p := range points {
		if ctx.Err() != nil {
			break
		}
		u := v.query.URL(d, p, targetID)
		attempted = append(attempted, u)

		matched, cached := probes.Get(u)
		if !cached {
			payload, err := v.prober.Probe(ctx, u)
			if err != nil {
				logger.Debug().Err(err).Str("probe_url", u).Msg("probe failed")
				continue
			}
			matched = LabelMatch(payload, targetID)
			probes.Set(u, matched)
		}
		if !matched {
			continue
		}

		sig := Signature{Target: targetID, ProbeURL: u, Point: p, BBox: d.BBox()}
		v.memo.Record(address, sig)
		return Result{Verified: true, Reason: ReasonLabelMatch, Attempted: attempted, Signature: &sig}
	}

	return Result{Verified: false, Reason: ReasonExhausted, Attempted: attempted}
}

// LabelMatch reports whether payload contains label as a whole word.
func LabelMatch(payload, label string) bool {
	if label == "" {
		return false
	}
	for i := 0; i <= len(payload)-len(label); {
		j := strings.Index(payload[i:], label)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(label)
		if boundaryBefore(payload, start) && boundaryAfter(payload, end) {
			return true
		}
		i = start + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}
