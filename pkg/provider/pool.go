package provider

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/scriptsmith/scriptsmith/pkg/apperr"
)

// stats tracks per-provider request bookkeeping, mirroring FallbackManager's
// provider_stats dict in fallback_manager.py.
type stats struct {
	Requests     int64      `json:"requests"`
	Successes    int64      `json:"successes"`
	Failures     int64      `json:"failures"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	HealthStatus bool       `json:"health_status"`
}

// Pool is the fallback-capable set of LLM providers. Safe for concurrent use.
type Pool struct {
	mu        sync.RWMutex
	providers map[string]Provider
	stats     map[string]*stats
	log       *slog.Logger
}

// NewPool builds a pool from the given providers, all initially marked healthy.
func NewPool(providers ...Provider) *Pool {
	p := &Pool{
		providers: map[string]Provider{},
		stats:     map[string]*stats{},
		log:       slog.With("component", "provider_pool"),
	}
	for _, prov := range providers {
		p.providers[prov.Name()] = prov
		p.stats[prov.Name()] = &stats{HealthStatus: true}
	}
	return p
}

// Get selects the best available provider: the preferred one if named,
// healthy, and enabled; otherwise the lowest-priority (ascending numeric
// priority) enabled provider that passes a live health probe. Matches
// FallbackManager.get_provider's preferred-then-ascending-priority order.
func (p *Pool) Get(ctx context.Context, preferred string) (Provider, error) {
	p.mu.RLock()
	var preferredProvider Provider
	if preferred != "" {
		preferredProvider = p.providers[preferred]
	}
	candidates := make([]Provider, 0, len(p.providers))
	for _, prov := range p.providers {
		candidates = append(candidates, prov)
	}
	p.mu.RUnlock()

	if preferredProvider != nil && preferredProvider.Enabled() {
		if p.probeHealthy(ctx, preferredProvider) {
			p.log.Debug("using preferred provider", "provider", preferred)
			return preferredProvider, nil
		}
	}

	var available []Provider
	for _, prov := range candidates {
		if prov.Enabled() && p.isMarkedHealthy(prov.Name()) {
			available = append(available, prov)
		}
	}
	if len(available) == 0 {
		return nil, apperr.New(apperr.KindNoProvidersAvailable, "no healthy providers available")
	}

	sort.Slice(available, func(i, j int) bool { return available[i].Priority() < available[j].Priority() })

	for _, prov := range available {
		if p.probeHealthy(ctx, prov) {
			p.log.Debug("selected provider", "provider", prov.Name())
			return prov, nil
		}
	}

	return nil, apperr.New(apperr.KindNoProvidersAvailable, "no healthy providers available")
}

func (p *Pool) isMarkedHealthy(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.stats[name]
	return ok && s.HealthStatus
}

func (p *Pool) probeHealthy(ctx context.Context, prov Provider) bool {
	err := prov.HealthProbe(ctx)
	healthy := err == nil
	if err != nil {
		p.log.Warn("provider health check failed", "provider", prov.Name(), "error", err)
	}

	p.mu.Lock()
	if s, ok := p.stats[prov.Name()]; ok {
		s.HealthStatus = healthy
	}
	p.mu.Unlock()

	return healthy
}

// RecordRequest updates per-provider bookkeeping after a generation attempt.
func (p *Pool) RecordRequest(name string, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stats[name]
	if !ok {
		return
	}
	s.Requests++
	now := time.Now().UTC()
	s.LastUsed = &now
	if success {
		s.Successes++
	} else {
		s.Failures++
	}
}

// PoolStats is the aggregate view returned by Stats.
type PoolStats struct {
	TotalRequests  int64                   `json:"total_requests"`
	TotalSuccesses int64                   `json:"total_successes"`
	TotalFailures  int64                   `json:"total_failures"`
	SuccessRate    float64                 `json:"success_rate"`
	Providers      map[string]ProviderStat `json:"providers"`
}

// ProviderStat is one provider's entry within PoolStats.
type ProviderStat struct {
	Requests     int64      `json:"requests"`
	Successes    int64      `json:"successes"`
	Failures     int64      `json:"failures"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	HealthStatus bool       `json:"health_status"`
	SuccessRate  float64    `json:"success_rate"`
}

// Stats reports aggregate and per-provider request statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := PoolStats{Providers: map[string]ProviderStat{}}
	for name, s := range p.stats {
		var rate float64
		if s.Requests > 0 {
			rate = float64(s.Successes) / float64(s.Requests) * 100
		}
		out.Providers[name] = ProviderStat{
			Requests: s.Requests, Successes: s.Successes, Failures: s.Failures,
			LastUsed: s.LastUsed, HealthStatus: s.HealthStatus, SuccessRate: rate,
		}
		out.TotalRequests += s.Requests
		out.TotalSuccesses += s.Successes
		out.TotalFailures += s.Failures
	}
	if out.TotalRequests > 0 {
		out.SuccessRate = float64(out.TotalSuccesses) / float64(out.TotalRequests) * 100
	}
	return out
}

// AvailableProviders lists the names of enabled, currently-healthy providers.
func (p *Pool) AvailableProviders() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var names []string
	for name, prov := range p.providers {
		if prov.Enabled() && p.stats[name].HealthStatus {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SetEnabled toggles a provider's availability for selection.
func (p *Pool) SetEnabled(name string, enabled bool) {
	p.mu.RLock()
	prov, ok := p.providers[name]
	p.mu.RUnlock()
	if !ok {
		return
	}
	prov.SetEnabled(enabled)
	p.log.Info("provider enabled state changed", "provider", name, "enabled", enabled)
}

// Add registers a new provider in the pool.
func (p *Pool) Add(prov Provider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.providers[prov.Name()] = prov
	p.stats[prov.Name()] = &stats{HealthStatus: true}
	p.log.Info("provider added", "provider", prov.Name())
}

// Remove unregisters a provider from the pool.
func (p *Pool) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.providers, name)
	delete(p.stats, name)
	p.log.Info("provider removed", "provider", name)
}
