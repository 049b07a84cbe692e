package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/pkg/logger"
)

// OrderHistoryStore reads tenant-scoped order outcomes from the Signal Store
type OrderHistoryStore interface {
	GetPhoneHistory(ctx context.Context, tenantID, phone string, now time.Time) (*models.PhoneHistory, error)
	IsPhoneBlacklisted(ctx context.Context, tenantID, phone string) (bool, error)
}

// Phone normalization
const (
	PhoneSignificantDigits = 9
	MinPhoneDigits         = 8
)

// Order risk scoring constants. Tiered signals are capped on their own; prior
// fraud grows without a cap of its own. The total is clamped to [0, 100].
const (
	// Prior fraud: the dominant signal
	FraudFirstPenalty  = 40
	FraudRepeatPenalty = 15

	// Ratios are only scored once the phone has this many orders
	MinOrdersForRatios = 3
	SevereRatio        = 0.5
	ModerateRatio      = 0.3

	ReturnSeverePenalty   = 25
	ReturnModeratePenalty = 15
	CancelSeverePenalty   = 20
	CancelModeratePenalty = 10

	UnansweredRepeatCount   = 2
	UnansweredRepeatPenalty = 10
	UnansweredSevereCount   = 3
	UnansweredSeverePenalty = 20

	// Orders in the trailing 24 hours
	VelocityModerateCount   = 3
	VelocityModeratePenalty = 15
	VelocitySevereCount     = 5
	VelocitySeverePenalty   = 25

	// Address heuristics never reach the critical band alone
	MinAddressLength       = 10
	ShortAddressPenalty    = 10
	NoLetterAddressPenalty = 15
	AddressPenaltyCap      = 15

	BlacklistPenalty = 50

	// Completed-order discount
	CompletedStrongRatio    = 0.7
	CompletedStrongDiscount = 20
	CompletedGoodRatio      = 0.5
	CompletedGoodDiscount   = 10

	// Level cut points
	CriticalOrderScore = 70
	HighOrderScore     = 50
	MediumOrderScore   = 25
)

// maxScoredFraudRepeats puts the fraud penalty past the clamp even after the
// strongest completed-order discount
const maxScoredFraudRepeats = (100+CompletedStrongDiscount-FraudFirstPenalty)/FraudRepeatPenalty + 1

// Recommendations per level
const (
	RecommendReject  = "reject the order or require prepayment"
	RecommendConfirm = "confirm by phone before shipping"
	RecommendReview  = "review the order before shipping"
	RecommendAccept  = "accept the order"
)

// FraudScorer computes order risk from stored history. It never writes.
type FraudScorer struct {
	store  OrderHistoryStore
	clock  Clock
	logger *slog.Logger
	env    string
}

// NewFraudScorer creates a new FraudScorer
func NewFraudScorer(store OrderHistoryStore, clock Clock, logger *slog.Logger, env string) *FraudScorer {
	if clock == nil {
		clock = SystemClock()
	}
	return &FraudScorer{store: store, clock: clock, logger: logger, env: env}
}

// NormalizePhone reduces a phone number to its trailing significant digits so
// formatting and country-code prefixes do not fragment history
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimPrefix(b.String(), "00")

	if len(digits) < MinPhoneDigits {
		return "", fmt.Errorf("%w: need at least %d digits", models.ErrInvalidPhone, MinPhoneDigits)
	}
	if len(digits) > PhoneSignificantDigits {
		digits = digits[len(digits)-PhoneSignificantDigits:]
	}
	return digits, nil
}

// AssessOrderRisk scores an order for (tenant, phone, address). address may be empty.
func (s *FraudScorer) AssessOrderRisk(ctx context.Context, tenantID, phone, address string) (*models.OrderRiskAssessment, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", models.ErrInvalidInput)
	}
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, models.ErrStoreUnavailable
	}

	now := s.clock.Now()
	history, err := s.store.GetPhoneHistory(ctx, tenantID, normalized, now)
	if err != nil {
		return nil, fmt.Errorf("read order history: %w", err)
	}
	blacklisted, err := s.store.IsPhoneBlacklisted(ctx, tenantID, normalized)
	if err != nil {
		return nil, fmt.Errorf("read phone blacklist: %w", err)
	}

	score, flags := ScoreOrder(*history, blacklisted, address)
	level := OrderRiskLevel(score)

	assessment := &models.OrderRiskAssessment{
		TenantID:        tenantID,
		NormalizedPhone: normalized,
		Score:           score,
		Level:           level,
		Flags:           flags,
		History:         *history,
		Blacklisted:     blacklisted,
		Recommendation:  recommendation(level),
		AssessedAt:      now,
	}

	metrics.FraudAssessmentsTotal.WithLabelValues(level).Inc()
	s.logger.InfoContext(ctx, "order risk assessed",
		slog.String("tenant_id", tenantID),
		slog.String("phone", s.phoneForLog(normalized)),
		slog.Int("score", score),
		slog.String("level", level),
	)

	return assessment, nil
}

func (s *FraudScorer) phoneForLog(phone string) string {
	if s.env == "production" {
		return logger.MaskPhone(phone)
	}
	return phone
}

// ScoreOrder applies the additive rubric and returns the clamped score with its flags, in rule order
func ScoreOrder(h models.PhoneHistory, blacklisted bool, address string) (int, []string) {
	score := 0
	flags := make([]string, 0)

	if h.Total == 0 {
		flags = append(flags, "new customer: no order history")
	}

	if h.Fraudulent > 0 {
		// Repeats past the clamp change nothing; bounding them keeps the product small
		repeats := min(h.Fraudulent-1, maxScoredFraudRepeats)
		score += FraudFirstPenalty + FraudRepeatPenalty*repeats
		flags = append(flags, fmt.Sprintf("%d prior fraudulent order(s)", h.Fraudulent))
	}

	if h.Total >= MinOrdersForRatios {
		if p, tier := ratioPenalty(h.Returned, h.Total, ReturnSeverePenalty, ReturnModeratePenalty); p > 0 {
			score += p
			flags = append(flags, fmt.Sprintf("%s return rate (%d of %d orders)", tier, h.Returned, h.Total))
		}
		if p, tier := ratioPenalty(h.Cancelled, h.Total, CancelSeverePenalty, CancelModeratePenalty); p > 0 {
			score += p
			flags = append(flags, fmt.Sprintf("%s cancellation rate (%d of %d orders)", tier, h.Cancelled, h.Total))
		}
	}

	switch {
	case h.Unanswered >= UnansweredSevereCount:
		score += UnansweredSeverePenalty
		flags = append(flags, fmt.Sprintf("%d unanswered delivery calls", h.Unanswered))
	case h.Unanswered >= UnansweredRepeatCount:
		score += UnansweredRepeatPenalty
		flags = append(flags, fmt.Sprintf("%d unanswered delivery calls", h.Unanswered))
	}

	switch {
	case h.Last24h >= VelocitySevereCount:
		score += VelocitySeverePenalty
		flags = append(flags, fmt.Sprintf("%d orders in the last 24 hours", h.Last24h))
	case h.Last24h >= VelocityModerateCount:
		score += VelocityModeratePenalty
		flags = append(flags, fmt.Sprintf("%d orders in the last 24 hours", h.Last24h))
	}

	if p, reasons := addressPenalty(address); p > 0 {
		score += p
		flags = append(flags, reasons...)
	}

	if blacklisted {
		score += BlacklistPenalty
		flags = append(flags, "phone is on the tenant blacklist")
	}

	if h.Total >= MinOrdersForRatios {
		ratio := float64(h.Completed) / float64(h.Total)
		switch {
		case ratio >= CompletedStrongRatio:
			score -= CompletedStrongDiscount
			flags = append(flags, fmt.Sprintf("reliable customer (%d of %d orders completed)", h.Completed, h.Total))
		case ratio >= CompletedGoodRatio:
			score -= CompletedGoodDiscount
			flags = append(flags, fmt.Sprintf("mostly completed orders (%d of %d)", h.Completed, h.Total))
		}
	}

	return clampScore(score), flags
}

func ratioPenalty(count, total, severe, moderate int) (int, string) {
	ratio := float64(count) / float64(total)
	switch {
	case ratio >= SevereRatio:
		return severe, "high"
	case ratio >= ModerateRatio:
		return moderate, "elevated"
	}
	return 0, ""
}

func addressPenalty(address string) (int, []string) {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0, nil
	}

	penalty := 0
	var reasons []string
	if len([]rune(address)) < MinAddressLength {
		penalty += ShortAddressPenalty
		reasons = append(reasons, "address too short")
	}
	if !strings.ContainsFunc(address, unicode.IsLetter) {
		penalty += NoLetterAddressPenalty
		reasons = append(reasons, "address has no letters")
	}
	return min(penalty, AddressPenaltyCap), reasons
}

func clampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

// OrderRiskLevel maps a clamped score onto the level cut points
func OrderRiskLevel(score int) string {
	switch {
	case score >= CriticalOrderScore:
		return models.OrderRiskCritical
	case score >= HighOrderScore:
		return models.OrderRiskHigh
	case score >= MediumOrderScore:
		return models.OrderRiskMedium
	}
	return models.OrderRiskLow
}

func recommendation(level string) string {
	switch level {
	case models.OrderRiskCritical:
		return RecommendReject
	case models.OrderRiskHigh:
		return RecommendConfirm
	case models.OrderRiskMedium:
		return RecommendReview
	}
	return RecommendAccept
}
