package services

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/sentinel/internal/background"
	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/google/uuid"
)

// GuardEventSink receives guard events. Implementations must not block.
type GuardEventSink interface {
	RecordSecurityEvent(ctx context.Context, event *models.SecurityEvent)
}

// GuardConfig holds the brute-force thresholds. MaxAttemptsPerIP should stay
// below MaxAttemptsPerAccount: an address is a weaker identity than an account.
type GuardConfig struct {
	MaxAttemptsPerIP      int
	IPWindow              time.Duration
	IPBlockDuration       time.Duration
	MaxAttemptsPerAccount int
	AccountWindow         time.Duration
	AccountBlockDuration  time.Duration
	MultiAccountThreshold int
	TrackingWindow        time.Duration
	StuffingBlockDuration time.Duration
	// SweepInterval <= 0 disables the background sweep
	SweepInterval time.Duration
}

// DefaultGuardConfig returns the production defaults
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxAttemptsPerIP:      5,
		IPWindow:              15 * time.Minute,
		IPBlockDuration:       30 * time.Minute,
		MaxAttemptsPerAccount: 10,
		AccountWindow:         60 * time.Minute,
		AccountBlockDuration:  60 * time.Minute,
		MultiAccountThreshold: 3,
		TrackingWindow:        60 * time.Minute,
		StuffingBlockDuration: 24 * time.Hour,
		SweepInterval:         5 * time.Minute,
	}
}

const guardShardCount = 64

const (
	ipKeyPrefix      = "ip:"
	accountKeyPrefix = "account:"
)

// attemptWindow is a LoginAttemptWindow. count is only meaningful while
// now-startedAt < span; an expired window reads as zero.
type attemptWindow struct {
	count        int
	startedAt    time.Time
	span         time.Duration
	blockedUntil time.Time
	reason       string
}

func (w *attemptWindow) activeCount(now time.Time) int {
	if now.Sub(w.startedAt) >= w.span {
		return 0
	}
	return w.count
}

func (w *attemptWindow) blocked(now time.Time) bool {
	return w.blockedUntil.After(now)
}

// block extends the block; a longer existing block is never shortened
func (w *attemptWindow) block(until time.Time, reason string) bool {
	if !until.After(w.blockedUntil) {
		return false
	}
	w.blockedUntil = until
	w.reason = reason
	return true
}

func (w *attemptWindow) snapshot(key string, now time.Time) *models.WindowState {
	state := &models.WindowState{
		Key:             key,
		Count:           w.activeCount(now),
		WindowStartedAt: w.startedAt,
		Blocked:         w.blocked(now),
	}
	if state.Blocked {
		until := w.blockedUntil
		state.BlockedUntil = &until
		state.Reason = w.reason
	}
	return state
}

type guardShard struct {
	mu      sync.Mutex
	windows map[string]*attemptWindow
	// tried maps an ip key to account -> last attempt time
	tried map[string]map[string]time.Time
}

// BruteForceGuard tracks failed authentications per IP and per account in
// sharded in-process windows. It exclusively owns that state.
type BruteForceGuard struct {
	config GuardConfig
	clock  Clock
	events GuardEventSink
	logger *slog.Logger
	shards [guardShardCount]guardShard

	sweeper   *background.SweepManager
	closeOnce sync.Once
}

// NewBruteForceGuard creates the guard and starts its sweep task. Call Close to stop it.
func NewBruteForceGuard(config GuardConfig, clock Clock, events GuardEventSink, logger *slog.Logger) *BruteForceGuard {
	if clock == nil {
		clock = SystemClock()
	}

	g := &BruteForceGuard{
		config: config,
		clock:  clock,
		events: events,
		logger: logger,
	}
	for i := range g.shards {
		g.shards[i].windows = make(map[string]*attemptWindow)
		g.shards[i].tried = make(map[string]map[string]time.Time)
	}

	logger.Info("login guard initialized",
		slog.Int("max_attempts_ip", config.MaxAttemptsPerIP),
		slog.Int("max_attempts_account", config.MaxAttemptsPerAccount),
		slog.Int("multi_account_threshold", config.MultiAccountThreshold),
		slog.Duration("sweep_interval", config.SweepInterval),
	)

	if config.SweepInterval > 0 {
		g.sweeper = background.NewSweepManager("login_guard", g, clock.Now, logger, config.SweepInterval)
		go g.sweeper.Start(context.Background())
	}

	return g
}

// Close stops the sweep task
func (g *BruteForceGuard) Close() {
	g.closeOnce.Do(func() {
		if g.sweeper != nil {
			g.sweeper.Stop()
		}
	})
}

func (g *BruteForceGuard) shard(key string) *guardShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &g.shards[h.Sum32()%guardShardCount]
}

// NormalizeAccount canonicalizes an account identifier for window keys
func NormalizeAccount(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

// NormalizeIP canonicalizes an address for window keys so every text form of
// one address (IPv4-mapped, upper-case or zero-padded IPv6) shares a window.
// Unparseable input is only trimmed and lower-cased.
func NormalizeIP(ip string) string {
	if addr, err := parseAddress(ip); err == nil {
		return addr.String()
	}
	return strings.ToLower(strings.TrimSpace(ip))
}

// CheckAllowed reports whether an authentication attempt may proceed. It is a
// pure read and does not count as an attempt.
func (g *BruteForceGuard) CheckAllowed(ip, account string) *models.LoginCheck {
	now := g.clock.Now()
	ip = NormalizeIP(ip)
	account = NormalizeAccount(account)

	remaining := g.config.MaxAttemptsPerIP
	var blockedBy *models.WindowState

	consider := func(key string, limit int) {
		sh := g.shard(key)
		sh.mu.Lock()
		w, ok := sh.windows[key]
		var state *models.WindowState
		if ok {
			state = w.snapshot(key, now)
		}
		sh.mu.Unlock()

		if state == nil {
			remaining = min(remaining, limit)
			return
		}
		remaining = min(remaining, max(limit-state.Count, 0))
		if state.Blocked && (blockedBy == nil || state.BlockedUntil.After(*blockedBy.BlockedUntil)) {
			blockedBy = state
		}
	}

	consider(ipKeyPrefix+ip, g.config.MaxAttemptsPerIP)
	if account != "" {
		consider(accountKeyPrefix+account, g.config.MaxAttemptsPerAccount)
	}

	if blockedBy != nil {
		return &models.LoginCheck{
			Allowed:      false,
			Reason:       blockedBy.Reason,
			BlockedUntil: blockedBy.BlockedUntil,
		}
	}
	return &models.LoginCheck{Allowed: true, AttemptsRemaining: &remaining}
}

// RecordFailure counts one failed authentication and escalates to blocks.
// reason is the caller's failure cause (bad password, unknown account) and is audited only.
func (g *BruteForceGuard) RecordFailure(ctx context.Context, ip, account, reason string) *models.FailureOutcome {
	now := g.clock.Now()
	ip = NormalizeIP(ip)
	account = NormalizeAccount(account)
	ipKey := ipKeyPrefix + ip

	var pending []*models.SecurityEvent
	var worst *models.WindowState

	// IP window and tried-accounts set share a shard
	sh := g.shard(ipKey)
	sh.mu.Lock()
	w := g.touch(sh, ipKey, g.config.IPWindow, now)
	if w.count >= g.config.MaxAttemptsPerIP && !w.blocked(now) && w.block(now.Add(g.config.IPBlockDuration), models.ReasonIPBlocked) {
		pending = append(pending, g.newEvent(models.SecurityEventIPBlocked, ip, account, models.ReasonIPBlocked, w.blockedUntil, now))
	}
	distinct := 0
	if account != "" {
		distinct = g.trackAccountLocked(sh, ipKey, account, now)
		// A plain IP block escalates to a stuffing block; an active stuffing block is not extended
		if distinct >= g.config.MultiAccountThreshold &&
			!(w.blocked(now) && w.reason == models.ReasonCredentialStuffing) &&
			w.block(now.Add(g.config.StuffingBlockDuration), models.ReasonCredentialStuffing) {
			pending = append(pending, g.newEvent(models.SecurityEventCredentialStuffing, ip, account, models.ReasonCredentialStuffing, w.blockedUntil, now))
		}
	}
	ipState := w.snapshot(ipKey, now)
	sh.mu.Unlock()
	worst = laterBlock(worst, ipState)

	var accountState *models.WindowState
	if account != "" {
		accountKey := accountKeyPrefix + account
		ash := g.shard(accountKey)
		ash.mu.Lock()
		aw := g.touch(ash, accountKey, g.config.AccountWindow, now)
		if aw.count >= g.config.MaxAttemptsPerAccount && !aw.blocked(now) && aw.block(now.Add(g.config.AccountBlockDuration), models.ReasonAccountLocked) {
			pending = append(pending, g.newEvent(models.SecurityEventAccountLocked, ip, account, models.ReasonAccountLocked, aw.blockedUntil, now))
		}
		accountState = aw.snapshot(accountKey, now)
		ash.mu.Unlock()
		worst = laterBlock(worst, accountState)
	}

	failure := g.newEvent(models.SecurityEventLoginFailure, ip, account, reason, time.Time{}, now)
	failure.Metadata["ip_attempts"] = ipState.Count
	failure.Metadata["accounts_tried"] = distinct
	if accountState != nil {
		failure.Metadata["account_attempts"] = accountState.Count
	}
	g.emit(ctx, append([]*models.SecurityEvent{failure}, pending...))

	if worst == nil {
		return &models.FailureOutcome{Blocked: false}
	}
	return &models.FailureOutcome{Blocked: true, Reason: worst.Reason, BlockedUntil: worst.BlockedUntil}
}

// RecordSuccess clears the account window and decays the IP window by one.
// The IP may be shared, so its block and tried-accounts set are left in place.
func (g *BruteForceGuard) RecordSuccess(ctx context.Context, ip, account string) {
	now := g.clock.Now()
	ip = NormalizeIP(ip)
	account = NormalizeAccount(account)

	if account != "" {
		accountKey := accountKeyPrefix + account
		ash := g.shard(accountKey)
		ash.mu.Lock()
		delete(ash.windows, accountKey)
		ash.mu.Unlock()
	}

	ipKey := ipKeyPrefix + ip
	sh := g.shard(ipKey)
	sh.mu.Lock()
	if w, ok := sh.windows[ipKey]; ok && w.activeCount(now) > 0 {
		w.count--
	}
	sh.mu.Unlock()

	g.emit(ctx, []*models.SecurityEvent{
		g.newEvent(models.SecurityEventLoginSuccess, ip, account, "", time.Time{}, now),
	})
}

// State returns operator-facing snapshots of the windows for an ip/account pair
func (g *BruteForceGuard) State(ip, account string) *models.LoginGuardState {
	now := g.clock.Now()
	ip = NormalizeIP(ip)
	account = NormalizeAccount(account)
	state := &models.LoginGuardState{}

	ipKey := ipKeyPrefix + ip
	sh := g.shard(ipKey)
	sh.mu.Lock()
	if w, ok := sh.windows[ipKey]; ok {
		state.IP = w.snapshot(ipKey, now)
	}
	for acct, at := range sh.tried[ipKey] {
		if now.Sub(at) < g.config.TrackingWindow {
			state.AccountsTried = append(state.AccountsTried, acct)
		}
	}
	sh.mu.Unlock()

	sort.Strings(state.AccountsTried)
	state.StuffingSignal = len(state.AccountsTried) >= g.config.MultiAccountThreshold

	if account != "" {
		accountKey := accountKeyPrefix + account
		ash := g.shard(accountKey)
		ash.mu.Lock()
		if w, ok := ash.windows[accountKey]; ok {
			state.Account = w.snapshot(accountKey, now)
		}
		ash.mu.Unlock()
	}

	return state
}

// Unblock releases an IP (window and tried set) and, if given, an account
func (g *BruteForceGuard) Unblock(ctx context.Context, ip, account string) {
	now := g.clock.Now()
	account = NormalizeAccount(account)

	if ip != "" {
		ip = NormalizeIP(ip)
		ipKey := ipKeyPrefix + ip
		sh := g.shard(ipKey)
		sh.mu.Lock()
		delete(sh.windows, ipKey)
		delete(sh.tried, ipKey)
		sh.mu.Unlock()
	}

	if account != "" {
		accountKey := accountKeyPrefix + account
		ash := g.shard(accountKey)
		ash.mu.Lock()
		delete(ash.windows, accountKey)
		ash.mu.Unlock()
	}

	g.emit(ctx, []*models.SecurityEvent{
		g.newEvent(models.SecurityEventManualUnblock, ip, account, "", time.Time{}, now),
	})
}

// Sweep removes windows that are both unblocked and expired, and tried-account
// entries older than the tracking window. Shards are locked one at a time.
func (g *BruteForceGuard) Sweep(now time.Time) int {
	removed := 0
	live := 0

	for i := range g.shards {
		sh := &g.shards[i]
		sh.mu.Lock()
		for key, w := range sh.windows {
			if !w.blocked(now) && w.activeCount(now) == 0 {
				delete(sh.windows, key)
				removed++
			}
		}
		for ipKey, accounts := range sh.tried {
			for acct, at := range accounts {
				if now.Sub(at) >= g.config.TrackingWindow {
					delete(accounts, acct)
				}
			}
			if len(accounts) == 0 {
				delete(sh.tried, ipKey)
			}
		}
		live += len(sh.windows)
		sh.mu.Unlock()
	}

	metrics.GuardTrackedKeys.Set(float64(live))
	return removed
}

// touch returns the window for key with one more failure counted, starting a
// fresh window when the previous one expired. Caller holds sh.mu.
func (g *BruteForceGuard) touch(sh *guardShard, key string, span time.Duration, now time.Time) *attemptWindow {
	w, ok := sh.windows[key]
	if !ok {
		w = &attemptWindow{span: span}
		sh.windows[key] = w
	}
	if w.activeCount(now) == 0 {
		// An active block survives the count reset
		w.count = 0
		w.startedAt = now
	}
	w.count++
	return w
}

// trackAccountLocked records account against ipKey and returns the number of
// distinct accounts tried within the tracking window. Caller holds sh.mu.
func (g *BruteForceGuard) trackAccountLocked(sh *guardShard, ipKey, account string, now time.Time) int {
	accounts, ok := sh.tried[ipKey]
	if !ok {
		accounts = make(map[string]time.Time)
		sh.tried[ipKey] = accounts
	}
	accounts[account] = now

	distinct := 0
	for acct, at := range accounts {
		if now.Sub(at) >= g.config.TrackingWindow {
			delete(accounts, acct)
			continue
		}
		distinct++
	}
	return distinct
}

func (g *BruteForceGuard) newEvent(eventType, ip, account, reason string, blockedUntil, now time.Time) *models.SecurityEvent {
	e := &models.SecurityEvent{
		ID:        uuid.New(),
		EventType: eventType,
		IP:        ip,
		Metadata:  models.EventMetadata{},
		CreatedAt: now,
	}
	if account != "" {
		e.Account = &account
	}
	if reason != "" {
		e.Reason = &reason
	}
	if !blockedUntil.IsZero() {
		e.Metadata["blocked_until"] = blockedUntil.UTC().Format(time.RFC3339)
		e.Metadata["block_seconds"] = strconv.Itoa(int(blockedUntil.Sub(now).Seconds()))
	}
	return e
}

// emit hands events to the sink; the sink queues, so this never waits on I/O
func (g *BruteForceGuard) emit(ctx context.Context, events []*models.SecurityEvent) {
	for _, e := range events {
		metrics.LoginGuardEventsTotal.WithLabelValues(e.EventType).Inc()
		if g.events != nil {
			g.events.RecordSecurityEvent(ctx, e)
		}
	}
}

func laterBlock(current, candidate *models.WindowState) *models.WindowState {
	if candidate == nil || !candidate.Blocked {
		return current
	}
	if current == nil || candidate.BlockedUntil.After(*current.BlockedUntil) {
		return candidate
	}
	return current
}
