package relay

import (
	"strings"
	"sync"
)

// Reconciler merges the provider's revisable partial fragments and
// confirmed final fragments into a running transcript. Only the latest
// partial is kept; finals are appended space-joined in delivery order.
//
// Duplicate finals are appended twice on purpose: deduplication would paper
// over a provider contract violation, so the behavior is preserved and
// documented instead.
type Reconciler struct {
	mu      sync.Mutex
	partial string
	final   string

	onFinal func(cumulative string)
}

// NewReconciler creates a reconciler. onFinal, if non-nil, is invoked with
// the updated cumulative text after every final fragment.
func NewReconciler(onFinal func(string)) *Reconciler {
	return &Reconciler{onFinal: onFinal}
}

// OnPartial replaces the current partial fragment. Lossy by design.
func (r *Reconciler) OnPartial(text string) {
	r.mu.Lock()
	r.partial = text
	r.mu.Unlock()
}

// OnFinal appends text to the final transcript with a single separating
// space, trims, and clears the partial.
func (r *Reconciler) OnFinal(text string) {
	r.mu.Lock()
	r.final = strings.TrimSpace(r.final + " " + text)
	r.partial = ""
	cumulative := r.final
	cb := r.onFinal
	r.mu.Unlock()

	if cb != nil {
		cb(cumulative)
	}
}

// Final returns the accumulated final transcript.
func (r *Reconciler) Final() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final
}

// Partial returns the latest unconfirmed fragment, empty if the last
// message was a final.
func (r *Reconciler) Partial() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.partial
}

// Reset clears both buffers. Used when a session is aborted and its text
// must not be persisted.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.final = ""
	r.partial = ""
	r.mu.Unlock()
}

// Snapshot returns both buffers consistently.
func (r *Reconciler) Snapshot() (final, partial string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final, r.partial
}
