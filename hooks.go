package quorum

import (
	"sync"

	"github.com/agentstation/quorum/pkg/sample"
)

// CommittedHook is called once per committed record. Jobs commit
// concurrently, so hooks must be safe for concurrent use.
type CommittedHook func(record sample.Record)

// hooks manages commit callbacks.
type hooks struct {
	mu          sync.RWMutex
	onCommitted []CommittedHook
}

func newHooks() *hooks {
	return &hooks{}
}

// OnCommitted registers fn.
func (h *hooks) OnCommitted(fn CommittedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCommitted = append(h.onCommitted, fn)
}

// committed fires every hook with a copy of r.
func (h *hooks) committed(r *sample.Record) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onCommitted {
		fn(*r)
	}
}
