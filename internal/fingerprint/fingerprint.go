// Package fingerprint supplies client-identity descriptors used to disguise
// repeated connection attempts as different client software.
//
// The remote service throttles reconnects per client identity, so each
// retry that the disconnect classifier flags for rotation presents a
// different descriptor from a fixed pool. Selection is deterministic:
// PickAt is a pure function of an index, and Next advances round-robin,
// never returning the immediately-previous pick.
package fingerprint

import (
	"fmt"
	"sync"

	"github.com/blacksky-md/bslink/internal/errors"
)

// Descriptor is the client-identity metadata presented to the remote
// service when opening a connection.
type Descriptor struct {
	DisplayName string `mapstructure:"display_name"`
	Platform    string `mapstructure:"platform"`
	Version     string `mapstructure:"version"`
}

// String returns a compact human-readable form, e.g. "Chrome (Linux) 110.0".
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s) %s", d.DisplayName, d.Platform, d.Version)
}

// DefaultPool returns the built-in identity pool. The entries mirror
// desktop browser identities the service accepts for linked clients.
func DefaultPool() []Descriptor {
	return []Descriptor{
		{DisplayName: "Chrome", Platform: "Linux", Version: "110.0.5481.77"},
		{DisplayName: "Firefox", Platform: "Linux", Version: "110.0"},
		{DisplayName: "Chrome", Platform: "Mac OS", Version: "110.0.5481.77"},
		{DisplayName: "Safari", Platform: "Mac OS", Version: "16.3"},
		{DisplayName: "Edge", Platform: "Windows", Version: "110.0.1587.41"},
		{DisplayName: "Opera", Platform: "Windows", Version: "95.0.4635.46"},
	}
}

// Rotator selects descriptors from a fixed pool. It is safe for
// concurrent use, though in practice one session owns one rotator.
type Rotator struct {
	mu   sync.Mutex
	pool []Descriptor
	next int // index of the next round-robin pick
	last int // index of the previous pick, -1 before the first
}

// NewRotator creates a rotator over the given pool. An empty pool falls
// back to DefaultPool.
func NewRotator(pool []Descriptor) (*Rotator, error) {
	if len(pool) == 0 {
		pool = DefaultPool()
	}
	for i, d := range pool {
		if d.DisplayName == "" || d.Platform == "" {
			return nil, errors.NewConfigurationError(
				fmt.Sprintf("fingerprint pool entry %d missing display name or platform", i)).
				WithField("fingerprint_pool")
		}
	}
	return &Rotator{
		pool: append([]Descriptor(nil), pool...),
		last: -1,
	}, nil
}

// PickAt returns the descriptor at position n in the round-robin order.
// It is pure: it never changes the rotator's own position.
func (r *Rotator) PickAt(n int) Descriptor {
	if n < 0 {
		n = -n
	}
	return r.pool[n%len(r.pool)]
}

// Next advances the rotation and returns the next descriptor, skipping
// the immediately-previous pick. With a single-entry pool the same
// descriptor is returned every time.
func (r *Rotator) Next() Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.next % len(r.pool)
	if idx == r.last && len(r.pool) > 1 {
		r.next++
		idx = r.next % len(r.pool)
	}
	r.next++
	r.last = idx
	return r.pool[idx]
}

// Current returns the most recently returned descriptor, or the first
// pool entry if Next has never been called.
func (r *Rotator) Current() Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.last < 0 {
		return r.pool[0]
	}
	return r.pool[r.last]
}

// PoolSize returns the number of descriptors in the pool.
func (r *Rotator) PoolSize() int {
	return len(r.pool)
}
