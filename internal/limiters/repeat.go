package limiters

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultRepeatCapacity = 10_000

// RepeatConfig configures a [RepeatTracker].
type RepeatConfig struct {
	Threshold int
	Window    time.Duration
	// Capacity bounds the number of tracked clients. Least recently denied
	// clients are forgotten first.
	Capacity int
}

type repeatEntry struct {
	first time.Time
	count int
}

// RepeatTracker counts repeated denials for the same client.
type RepeatTracker struct {
	config RepeatConfig

	mu      sync.Mutex
	entries *lru.Cache[string, repeatEntry]
}

// NewRepeatTracker returns nil when cfg disables tracking.
func NewRepeatTracker(cfg RepeatConfig) (*RepeatTracker, error) {
	if cfg.Threshold <= 0 || cfg.Window <= 0 {
		return nil, nil
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultRepeatCapacity
	}
	cache, err := lru.New[string, repeatEntry](cfg.Capacity)
	if err != nil {
		return nil, err
	}
	return &RepeatTracker{config: cfg, entries: cache}, nil
}

// Record notes one denial for client at now. It returns the number of
// denials in the current window and whether the threshold has been reached.
func (r *RepeatTracker) Record(client string, now time.Time) (int, bool) {
	if r == nil || client == "" {
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries.Get(client)
	if !ok || now.Sub(e.first) > r.config.Window {
		e = repeatEntry{first: now}
	}
	e.count++
	r.entries.Add(client, e)

	return e.count, e.count >= r.config.Threshold
}

// Reset forgets client.
func (r *RepeatTracker) Reset(client string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.entries.Remove(client)
	r.mu.Unlock()
}

// Len returns the number of tracked clients.
func (r *RepeatTracker) Len() int {
	if r == nil {
		return 0
	}
	return r.entries.Len()
}
