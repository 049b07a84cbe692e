package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/pkg/logger"
)

// DecisionStore is the append-only decision log
type DecisionStore interface {
	Create(ctx context.Context, decision *models.SecurityDecision) error
	ListByIP(ctx context.Context, ip string, limit int) ([]*models.SecurityDecision, error)
}

// EventStore is the append-only guard event log
type EventStore interface {
	Create(ctx context.Context, event *models.SecurityEvent) error
}

// EventPublisher fans persisted records out to other systems
type EventPublisher interface {
	PublishDecision(ctx context.Context, decision *models.SecurityDecision) error
	PublishEvent(ctx context.Context, event *models.SecurityEvent) error
}

// AuditConfig sizes the persistence and publish queues. PublishQueueSize
// defaults to QueueSize.
type AuditConfig struct {
	QueueSize        int
	PublishQueueSize int
	WriteTimeout     time.Duration
}

type auditJob struct {
	decision *models.SecurityDecision
	event    *models.SecurityEvent
}

// AuditService handles audit logging with dual-write pattern (slog + database).
// The slog line is written immediately. Persistence goes through a bounded queue
// drained by one worker so callers never wait on the Signal Store. Persisted
// records are handed to a second queue and worker for publishing, so a slow
// broker never holds up the store writes.
type AuditService struct {
	decisions DecisionStore
	events    EventStore
	publisher EventPublisher
	audit     *logger.SecurityAuditLogger
	logger    *slog.Logger
	config    AuditConfig

	mu           sync.RWMutex
	closed       bool
	queue        chan auditJob
	publishQueue chan auditJob
	persistWG    sync.WaitGroup
	publishWG    sync.WaitGroup
}

// NewAuditService creates a new AuditService and starts its worker. Any store or
// the publisher may be nil.
func NewAuditService(decisions DecisionStore, events EventStore, publisher EventPublisher, audit *logger.SecurityAuditLogger, log *slog.Logger, config AuditConfig) *AuditService {
	if config.QueueSize <= 0 {
		config.QueueSize = 1024
	}
	if config.PublishQueueSize <= 0 {
		config.PublishQueueSize = config.QueueSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	s := &AuditService{
		decisions: decisions,
		events:    events,
		publisher: publisher,
		audit:     audit,
		logger:    log,
		config:    config,
		queue:     make(chan auditJob, config.QueueSize),
	}

	if publisher != nil {
		s.publishQueue = make(chan auditJob, config.PublishQueueSize)
		s.publishWG.Add(1)
		go s.publishWorker()
	}

	s.persistWG.Add(1)
	go s.persistWorker()

	return s
}

// RecordDecision logs the decision and queues it for persistence
func (s *AuditService) RecordDecision(ctx context.Context, d *models.SecurityDecision) {
	s.audit.LogDecision(ctx, logger.DecisionAuditEvent{
		IPAddress:   d.IP,
		Disposition: string(d.Disposition),
		Reason:      d.Reason,
		RiskLevel:   string(d.RiskLevel),
		Path:        derefString(d.Path),
		Method:      derefString(d.Method),
		Fingerprint: derefString(d.Fingerprint),
	})

	s.enqueue(ctx, auditJob{decision: d})
}

// RecordSecurityEvent logs the guard event and queues it for persistence
func (s *AuditService) RecordSecurityEvent(ctx context.Context, e *models.SecurityEvent) {
	event := logger.GuardAuditEvent{
		EventType: e.EventType,
		IPAddress: e.IP,
		Account:   derefString(e.Account),
		Reason:    derefString(e.Reason),
	}
	if until, ok := e.Metadata["blocked_until"].(string); ok {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			event.BlockedUntil = &t
		}
	}
	s.audit.LogGuardEvent(ctx, event)

	s.enqueue(ctx, auditJob{event: e})
}

// RecentDecisions reads the decision log for an address, newest first
func (s *AuditService) RecentDecisions(ctx context.Context, ip string, limit int) ([]*models.SecurityDecision, error) {
	if s.decisions == nil {
		return nil, models.ErrStoreUnavailable
	}
	return s.decisions.ListByIP(ctx, ip, limit)
}

// Close stops accepting records and waits for both queues to drain
func (s *AuditService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	// The persist worker is the only sender on publishQueue
	s.persistWG.Wait()
	if s.publishQueue != nil {
		close(s.publishQueue)
		s.publishWG.Wait()
	}
}

func (s *AuditService) enqueue(ctx context.Context, job auditJob) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}

	select {
	case s.queue <- job:
	default:
		metrics.AuditDroppedTotal.Inc()
		s.logger.WarnContext(ctx, "audit queue full, dropping record",
			slog.Int("queue_size", s.config.QueueSize),
		)
	}
}

func (s *AuditService) persistWorker() {
	defer s.persistWG.Done()
	for job := range s.queue {
		s.persist(job)
		s.handOff(job)
	}
}

// persist writes one record. Failures are logged and never propagated.
func (s *AuditService) persist(job auditJob) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()

	switch {
	case job.decision != nil && s.decisions != nil:
		if err := s.decisions.Create(ctx, job.decision); err != nil {
			s.logger.Warn("failed to persist security decision",
				slog.String("decision_id", job.decision.ID.String()),
				slog.Any("error", err),
			)
		}
	case job.event != nil && s.events != nil:
		if err := s.events.Create(ctx, job.event); err != nil {
			s.logger.Warn("failed to persist security event",
				slog.String("event_type", job.event.EventType),
				slog.Any("error", err),
			)
		}
	}
}

// handOff queues a record for the publish worker, dropping it when that queue is full
func (s *AuditService) handOff(job auditJob) {
	if s.publishQueue == nil {
		return
	}
	select {
	case s.publishQueue <- job:
	default:
		metrics.PublishDroppedTotal.Inc()
		s.logger.Warn("publish queue full, dropping record",
			slog.Int("queue_size", s.config.PublishQueueSize),
		)
	}
}

func (s *AuditService) publishWorker() {
	defer s.publishWG.Done()
	for job := range s.publishQueue {
		s.publish(job)
	}
}

func (s *AuditService) publish(job auditJob) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()

	switch {
	case job.decision != nil:
		if err := s.publisher.PublishDecision(ctx, job.decision); err != nil {
			s.logger.Warn("failed to publish security decision", slog.Any("error", err))
		}
	case job.event != nil:
		if err := s.publisher.PublishEvent(ctx, job.event); err != nil {
			s.logger.Warn("failed to publish security event", slog.Any("error", err))
		}
	}
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
