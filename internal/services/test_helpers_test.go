package services_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/providers"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeProvider implements providers.Provider with a function field
type fakeProvider struct {
	name       string
	disabled   bool
	LookupFunc func(ctx context.Context, ip string) (*providers.Partial, error)
	calls      atomic.Int32
}

func (p *fakeProvider) Name() string  { return p.name }
func (p *fakeProvider) Enabled() bool { return !p.disabled }

func (p *fakeProvider) Lookup(ctx context.Context, ip string) (*providers.Partial, error) {
	p.calls.Add(1)
	if p.LookupFunc != nil {
		return p.LookupFunc(ctx, ip)
	}
	return &providers.Partial{}, nil
}

func (p *fakeProvider) Calls() int {
	return int(p.calls.Load())
}

// MockIntelligenceStore implements IntelligenceStore for testing
type MockIntelligenceStore struct {
	GetFunc    func(ctx context.Context, address string) (*models.IntelligenceRecord, error)
	UpsertFunc func(ctx context.Context, rec *models.IntelligenceRecord) error
}

func (m *MockIntelligenceStore) Get(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, address)
	}
	return nil, models.ErrNotFound
}

func (m *MockIntelligenceStore) Upsert(ctx context.Context, rec *models.IntelligenceRecord) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, rec)
	}
	return nil
}

// MockOrderHistoryStore implements OrderHistoryStore for testing
type MockOrderHistoryStore struct {
	GetPhoneHistoryFunc    func(ctx context.Context, tenantID, phone string, now time.Time) (*models.PhoneHistory, error)
	IsPhoneBlacklistedFunc func(ctx context.Context, tenantID, phone string) (bool, error)
}

func (m *MockOrderHistoryStore) GetPhoneHistory(ctx context.Context, tenantID, phone string, now time.Time) (*models.PhoneHistory, error) {
	if m.GetPhoneHistoryFunc != nil {
		return m.GetPhoneHistoryFunc(ctx, tenantID, phone, now)
	}
	return &models.PhoneHistory{}, nil
}

func (m *MockOrderHistoryStore) IsPhoneBlacklisted(ctx context.Context, tenantID, phone string) (bool, error) {
	if m.IsPhoneBlacklistedFunc != nil {
		return m.IsPhoneBlacklistedFunc(ctx, tenantID, phone)
	}
	return false, nil
}

// MockDecisionStore implements DecisionStore for testing
type MockDecisionStore struct {
	mu           sync.Mutex
	created      []*models.SecurityDecision
	CreateFunc   func(ctx context.Context, d *models.SecurityDecision) error
	ListByIPFunc func(ctx context.Context, ip string, limit int) ([]*models.SecurityDecision, error)
}

func (m *MockDecisionStore) Create(ctx context.Context, d *models.SecurityDecision) error {
	m.mu.Lock()
	m.created = append(m.created, d)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, d)
	}
	return nil
}

func (m *MockDecisionStore) ListByIP(ctx context.Context, ip string, limit int) ([]*models.SecurityDecision, error) {
	if m.ListByIPFunc != nil {
		return m.ListByIPFunc(ctx, ip, limit)
	}
	return []*models.SecurityDecision{}, nil
}

func (m *MockDecisionStore) Created() []*models.SecurityDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.SecurityDecision(nil), m.created...)
}

// MockEventStore implements EventStore for testing
type MockEventStore struct {
	mu         sync.Mutex
	created    []*models.SecurityEvent
	CreateFunc func(ctx context.Context, e *models.SecurityEvent) error
}

func (m *MockEventStore) Create(ctx context.Context, e *models.SecurityEvent) error {
	m.mu.Lock()
	m.created = append(m.created, e)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, e)
	}
	return nil
}

func (m *MockEventStore) Created() []*models.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.SecurityEvent(nil), m.created...)
}

// recordingSink captures guard events synchronously
type recordingSink struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func (s *recordingSink) RecordSecurityEvent(ctx context.Context, e *models.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

// recordingRecorder captures decisions synchronously
type recordingRecorder struct {
	mu        sync.Mutex
	decisions []*models.SecurityDecision
}

func (r *recordingRecorder) RecordDecision(ctx context.Context, d *models.SecurityDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }
