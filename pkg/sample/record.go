package sample

import "time"

// Votes is the evidence a record was committed on.
type Votes struct {
	Basic    int `json:"basic" yaml:"basic"`
	Full     int `json:"full" yaml:"full"`
	Similar  int `json:"similar" yaml:"similar"`
	Distinct int `json:"distinct" yaml:"distinct"`
}

// Record is the persisted form of a committed sample.
type Record struct {
	ID           string      `json:"id" yaml:"id"`
	Fields       []Field     `json:"fields" yaml:"fields"`
	Volatile     []string    `json:"volatile,omitempty" yaml:"volatile,omitempty"`
	Descriptor   *Descriptor `json:"descriptor,omitempty" yaml:"descriptor,omitempty"`
	Address      string      `json:"address,omitempty" yaml:"address,omitempty"`
	Votes        Votes       `json:"votes" yaml:"votes"`
	Verified     bool        `json:"verified" yaml:"verified"`
	Reason       string      `json:"reason" yaml:"reason"`
	Warnings     []string    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	CommittedAt  time.Time   `json:"committed_at" yaml:"committed_at"`
	CanonicalKey string      `json:"-" yaml:"-"`
}

// NewRecord captures s and its evidence.
func NewRecord(s *Sample, votes Votes, verified bool, reason string, at time.Time) *Record {
	r := &Record{
		ID:           s.ID(),
		Fields:       s.Fields(),
		Volatile:     s.Volatile(),
		Address:      s.Address(),
		Votes:        votes,
		Verified:     verified,
		Reason:       reason,
		CommittedAt:  at.UTC(),
		CanonicalKey: s.CanonicalKey(),
	}
	if d, ok := s.Descriptor(); ok {
		r.Descriptor = &d
	}
	if len(r.Volatile) == 0 {
		r.Volatile = nil
	}
	return r
}

// Sample rebuilds the committed sample. The result is canonically equal to
// the sample the record was made from.
func (r *Record) Sample() *Sample {
	opts := []Option{WithVolatile(r.Volatile...)}
	if r.Descriptor != nil {
		opts = append(opts, WithDescriptor(*r.Descriptor))
	}
	s := New(r.ID, r.Fields, opts...)
	s.address = r.Address
	return s
}
