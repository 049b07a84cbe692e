package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/providers"
	"golang.org/x/sync/singleflight"
)

// IntelligenceStore is the Signal Store view used by the intelligence cache
type IntelligenceStore interface {
	Get(ctx context.Context, address string) (*models.IntelligenceRecord, error)
	Upsert(ctx context.Context, rec *models.IntelligenceRecord) error
}

// IntelligenceConfig holds cache TTLs and provider limits
type IntelligenceConfig struct {
	SuspiciousTTL   time.Duration
	CleanTTL        time.Duration
	ProviderTimeout time.Duration
	CacheSize       int
	Precedence      FieldPrecedence
}

// ceilingSlack is added to the per-provider timeout to bound the whole fan-out
const ceilingSlack = 500 * time.Millisecond

// evictionSample is how many entries are inspected when the memory cache is full
const evictionSample = 16

// Lookup sources reported to metrics
const (
	sourceLocal     = "local"
	sourceMemory    = "memory"
	sourceStore     = "store"
	sourceProviders = "providers"
)

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("2001:db8::/32"),
	netip.MustParsePrefix("64:ff9b:1::/48"),
}

// IntelligenceService merges reputation providers behind a two-level cache
// (process memory, then the Signal Store) with risk-dependent TTLs.
type IntelligenceService struct {
	store     IntelligenceStore
	providers []providers.Provider
	config    IntelligenceConfig
	clock     Clock
	logger    *slog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]*models.IntelligenceRecord
}

// NewIntelligenceService creates a new IntelligenceService. store may be nil, in
// which case records live only in memory.
func NewIntelligenceService(store IntelligenceStore, provs []providers.Provider, config IntelligenceConfig, clock Clock, logger *slog.Logger) *IntelligenceService {
	if config.Precedence == nil {
		config.Precedence = DefaultPrecedence
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 10000
	}
	if clock == nil {
		clock = SystemClock()
	}

	enabled := make([]providers.Provider, 0, len(provs))
	for _, p := range provs {
		if p.Enabled() {
			enabled = append(enabled, p)
		} else {
			logger.Info("reputation provider disabled", slog.String("provider", p.Name()))
		}
	}

	return &IntelligenceService{
		store:     store,
		providers: enabled,
		config:    config,
		clock:     clock,
		logger:    logger,
		cache:     make(map[string]*models.IntelligenceRecord),
	}
}

// GetIntelligence returns the merged intelligence for an address. It never fails
// because of providers or persistence; only an unparseable address is an error.
func (s *IntelligenceService) GetIntelligence(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	key := addr.String()
	now := s.clock.Now()

	if isNonPublic(addr) {
		metrics.IntelLookupsTotal.WithLabelValues(sourceLocal).Inc()
		return models.NewLocalRecord(key, now), nil
	}

	if rec := s.cached(key, now); rec != nil {
		metrics.IntelLookupsTotal.WithLabelValues(sourceMemory).Inc()
		return rec, nil
	}

	v, _, _ := s.group.Do(key, func() (interface{}, error) {
		// Shared by every waiter, so one caller's cancellation must not abort it
		lookupCtx := context.WithoutCancel(ctx)

		if rec := s.fromStore(lookupCtx, key); rec != nil {
			metrics.IntelLookupsTotal.WithLabelValues(sourceStore).Inc()
			return rec, nil
		}
		metrics.IntelLookupsTotal.WithLabelValues(sourceProviders).Inc()
		return s.refresh(lookupCtx, key), nil
	})

	return v.(*models.IntelligenceRecord).Clone(), nil
}

// RefreshIntelligence bypasses both cache levels and re-queries providers
func (s *IntelligenceService) RefreshIntelligence(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	key := addr.String()

	if isNonPublic(addr) {
		return models.NewLocalRecord(key, s.clock.Now()), nil
	}

	v, _, _ := s.group.Do("refresh:"+key, func() (interface{}, error) {
		metrics.IntelLookupsTotal.WithLabelValues(sourceProviders).Inc()
		return s.refresh(context.WithoutCancel(ctx), key), nil
	})

	return v.(*models.IntelligenceRecord).Clone(), nil
}

// TTL returns how long a record stays valid: short for suspicious records, long otherwise
func (s *IntelligenceService) TTL(rec *models.IntelligenceRecord) time.Duration {
	if rec.IsSuspicious() {
		return s.config.SuspiciousTTL
	}
	return s.config.CleanTTL
}

func (s *IntelligenceService) fresh(rec *models.IntelligenceRecord, now time.Time) bool {
	return now.Sub(rec.LastCheckedAt) < s.TTL(rec)
}

func (s *IntelligenceService) cached(key string, now time.Time) *models.IntelligenceRecord {
	s.mu.RLock()
	rec, ok := s.cache[key]
	s.mu.RUnlock()

	if !ok || !s.fresh(rec, now) {
		return nil
	}
	return rec.Clone()
}

func (s *IntelligenceService) remember(rec *models.IntelligenceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cache[rec.Address]; !exists && len(s.cache) >= s.config.CacheSize {
		s.evictLocked()
	}
	s.cache[rec.Address] = rec.Clone()
}

// evictLocked drops the stalest of a random sample of entries
func (s *IntelligenceService) evictLocked() {
	var victim string
	var oldest time.Time
	n := 0
	for key, rec := range s.cache {
		if victim == "" || rec.LastCheckedAt.Before(oldest) {
			victim, oldest = key, rec.LastCheckedAt
		}
		n++
		if n >= evictionSample {
			break
		}
	}
	delete(s.cache, victim)
}

func (s *IntelligenceService) fromStore(ctx context.Context, key string) *models.IntelligenceRecord {
	if s.store == nil {
		return nil
	}

	rec, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("intelligence store read failed",
				slog.String("ip", key),
				slog.Any("error", err),
			)
		}
		return nil
	}

	if !s.fresh(rec, s.clock.Now()) {
		return nil
	}

	// Stored rows may predate a rubric change
	rec.RiskLevel = models.ComputeRiskLevel(rec)
	s.remember(rec)
	return rec
}

// refresh fans out to providers, merges, persists and caches. A record with no
// contributing provider is returned but neither cached nor persisted.
func (s *IntelligenceService) refresh(ctx context.Context, key string) *models.IntelligenceRecord {
	results := s.fanOut(ctx, key)
	rec := MergeResults(key, results, s.config.Precedence, s.clock.Now())

	if len(rec.SourcesChecked) == 0 {
		if len(s.providers) > 0 {
			s.logger.Warn("no reputation provider answered", slog.String("ip", key))
		}
		return rec
	}

	if s.store != nil {
		if err := s.store.Upsert(ctx, rec); err != nil {
			s.logger.Warn("failed to persist ip intelligence",
				slog.String("ip", key),
				slog.Any("error", err),
			)
		}
	}

	s.remember(rec)
	return rec
}

// fanOut queries every enabled provider concurrently. Each call gets its own
// timeout; the collection as a whole is bounded by a slightly larger ceiling.
func (s *IntelligenceService) fanOut(ctx context.Context, ip string) []providers.Result {
	if len(s.providers) == 0 {
		return nil
	}

	ceilingCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout+ceilingSlack)
	defer cancel()

	ch := make(chan providers.Result, len(s.providers))
	for _, p := range s.providers {
		go func(p providers.Provider) {
			callCtx, callCancel := context.WithTimeout(ceilingCtx, s.config.ProviderTimeout)
			defer callCancel()

			start := time.Now()
			part, err := p.Lookup(callCtx, ip)
			ch <- providers.Result{Provider: p.Name(), Partial: part, Err: err, Latency: time.Since(start)}
		}(p)
	}

	results := make([]providers.Result, 0, len(s.providers))
	for len(results) < len(s.providers) {
		select {
		case r := <-ch:
			s.observe(ip, r)
			results = append(results, r)
		case <-ceilingCtx.Done():
			s.logger.Warn("provider fan-out hit ceiling",
				slog.String("ip", ip),
				slog.Int("answered", len(results)),
				slog.Int("providers", len(s.providers)),
			)
			return results
		}
	}
	return results
}

func (s *IntelligenceService) observe(ip string, r providers.Result) {
	metrics.ProviderLatency.WithLabelValues(r.Provider).Observe(r.Latency.Seconds())

	outcome := "ok"
	switch {
	case r.Err == nil && r.Partial == nil:
		outcome = "error"
		r.Err = errors.New("empty response")
	case errors.Is(r.Err, context.DeadlineExceeded):
		outcome = "timeout"
	case r.Err != nil:
		outcome = "error"
	}
	metrics.ProviderRequestsTotal.WithLabelValues(r.Provider, outcome).Inc()

	if r.Err != nil {
		s.logger.Warn("reputation provider failed",
			slog.String("provider", r.Provider),
			slog.String("ip", ip),
			slog.String("outcome", outcome),
			slog.Duration("latency", r.Latency),
			slog.Any("error", r.Err),
		)
	}
}

func parseAddress(address string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(address))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", models.ErrInvalidIP, address)
	}
	return addr.Unmap().WithZone(""), nil
}

// isNonPublic reports private, loopback, link-local, multicast, unspecified and reserved ranges
func isNonPublic(addr netip.Addr) bool {
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() || addr.IsMulticast() {
		return true
	}
	for _, prefix := range reservedPrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
