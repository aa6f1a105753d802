package verify

import "sync"

// Signature is the evidence an address was verified with.
type Signature struct {
	Target   string `json:"target"`
	ProbeURL string `json:"probe_url"`
	Point    Point  `json:"point"`
	BBox     string `json:"bbox"`
}

// AddressMemo remembers which normalized addresses have been verified. One
// memo is shared by every job of an engine.
//
// Entries are facts that never become false, so concurrent writers may race
// on the same address and whichever signature lands last is kept.
type AddressMemo struct {
	m sync.Map
}

// NewAddressMemo returns an empty memo.
func NewAddressMemo() *AddressMemo {
	return &AddressMemo{}
}

// Lookup returns the signature recorded for address.
func (m *AddressMemo) Lookup(address string) (Signature, bool) {
	if m == nil || address == "" {
		return Signature{}, false
	}
	v, ok := m.m.Load(address)
	if !ok {
		return Signature{}, false
	}
	return v.(Signature), true
}

// Record stores sig for address.
func (m *AddressMemo) Record(address string, sig Signature) {
	if m == nil || address == "" {
		return
	}
	m.m.Store(address, sig)
}

// Len counts the recorded addresses.
func (m *AddressMemo) Len() int {
	n := 0
	m.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// ProbeMemo caches probe outcomes per exact query URL for one job. It is
// owned by a single goroutine and is not safe for concurrent use.
type ProbeMemo struct {
	outcomes map[string]bool
}

// NewProbeMemo returns an empty memo.
func NewProbeMemo() *ProbeMemo {
	return &ProbeMemo{outcomes: make(map[string]bool)}
}

// Get returns the cached outcome for url.
func (m *ProbeMemo) Get(url string) (matched, ok bool) {
	matched, ok = m.outcomes[url]
	return matched, ok
}

// Set caches the outcome for url.
func (m *ProbeMemo) Set(url string, matched bool) {
	m.outcomes[url] = matched
}

// Len counts cached outcomes.
func (m *ProbeMemo) Len() int {
	return len(m.outcomes)
}
