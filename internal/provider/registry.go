package provider

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/irregularchat/speech-memorization/pkg/logger"
)

const rateWindow = time.Minute

// Health is a snapshot of one registered provider's dispatch state
type Health struct {
	ID                 string    `json:"id"`
	Priority           int       `json:"priority"`
	Enabled            bool      `json:"enabled"`
	ErrorCount         int       `json:"error_count"`
	RequestsLastMinute int       `json:"requests_last_minute"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	Available          bool      `json:"available"`
	LastUsedAt         time.Time `json:"last_used_at,omitempty"`
	LastError          string    `json:"last_error,omitempty"`
}

type entry struct {
	provider   Provider
	priority   int
	rateLimit  int
	enabled    bool
	errorCount int
	requests   []time.Time // Dispatch timestamps within the rate window
	lastUsed   time.Time
	lastError  string
}

// Registry tracks transcription providers with their health and rate
// state. Selection is priority order, ties broken by fewest recent
// errors; providers over their error budget or rate limit sit out until
// they recover.
type Registry struct {
	mu            sync.Mutex
	entries       map[string]*entry
	maxErrorCount int
	logger        *logger.Logger
}

// NewRegistry creates a registry. Providers with more than
// maxErrorCount consecutive errors are excluded from selection.
func NewRegistry(maxErrorCount int, log *logger.Logger) *Registry {
	return &Registry{
		entries:       make(map[string]*entry),
		maxErrorCount: maxErrorCount,
		logger:        log.Named("provider-registry"),
	}
}

// Register adds a provider with its selection parameters
func (r *Registry) Register(p Provider, priority, rateLimitPerMinute int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[p.ID()]; exists {
		return fmt.Errorf("provider already registered: %s", p.ID())
	}
	r.entries[p.ID()] = &entry{
		provider:  p,
		priority:  priority,
		rateLimit: rateLimitPerMinute,
		enabled:   enabled,
	}
	r.logger.Info("Registered provider",
		logger.String("id", p.ID()),
		logger.Int("priority", priority),
		logger.Bool("enabled", enabled))
	return nil
}

// SetEnabled toggles a provider's participation in dispatch
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("unknown provider: %s", id)
	}
	e.enabled = enabled
	return nil
}

// Candidates returns the providers eligible for a dispatch at the given
// instant, best first. The dispatcher records a request against the one
// it actually tries; listing here does not count against rate limits.
func (r *Registry) Candidates(now time.Time) []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	var eligible []*entry
	for _, e := range r.entries {
		e.pruneRequests(now)
		if !e.enabled || e.errorCount > r.maxErrorCount {
			continue
		}
		if e.rateLimit > 0 && len(e.requests) >= e.rateLimit {
			continue
		}
		eligible = append(eligible, e)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].priority != eligible[j].priority {
			return eligible[i].priority < eligible[j].priority
		}
		return eligible[i].errorCount < eligible[j].errorCount
	})

	providers := make([]Provider, len(eligible))
	for i, e := range eligible {
		providers[i] = e.provider
	}
	return providers
}

// RecordRequest counts one dispatch attempt against the provider's rate
// window
func (r *Registry) RecordRequest(id string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.pruneRequests(now)
		e.requests = append(e.requests, now)
		e.lastUsed = now
	}
}

// ReportSuccess decrements the provider's error count toward zero
func (r *Registry) ReportSuccess(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		if e.errorCount > 0 {
			e.errorCount--
		}
		e.lastError = ""
	}
}

// ReportFailure increments the provider's error count
func (r *Registry) ReportFailure(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.errorCount++
		if err != nil {
			e.lastError = err.Error()
		}
		r.logger.Warn("Provider failure",
			logger.String("id", id),
			logger.Int("error_count", e.errorCount),
			logger.Error(err))
	}
}

// Health returns a snapshot of every registered provider, best first
func (r *Registry) Health(now time.Time) []Health {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Health, 0, len(r.entries))
	for id, e := range r.entries {
		e.pruneRequests(now)
		available := e.enabled &&
			e.errorCount <= r.maxErrorCount &&
			(e.rateLimit <= 0 || len(e.requests) < e.rateLimit)
		out = append(out, Health{
			ID:                 id,
			Priority:           e.priority,
			Enabled:            e.enabled,
			ErrorCount:         e.errorCount,
			RequestsLastMinute: len(e.requests),
			RateLimitPerMinute: e.rateLimit,
			Available:          available,
			LastUsedAt:         e.lastUsed,
			LastError:          e.lastError,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (e *entry) pruneRequests(now time.Time) {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(e.requests) && !e.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.requests = append(e.requests[:0], e.requests[i:]...)
	}
}
