package models

import "time"

// Order outcome statuses as stored by the storefront
const (
	OrderStatusCompleted  = "completed"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusFraudulent = "fraudulent"
	OrderStatusNoAnswer   = "no_answer"
	OrderStatusReturned   = "returned"
	OrderStatusPending    = "pending"
)

// Order risk levels
const (
	OrderRiskLow      = "low"
	OrderRiskMedium   = "medium"
	OrderRiskHigh     = "high"
	OrderRiskCritical = "critical"
)

// PhoneHistory summarises tenant-scoped order outcomes for one normalized phone
type PhoneHistory struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
	Fraudulent int `json:"fraudulent"`
	Unanswered int `json:"unanswered"`
	Returned   int `json:"returned"`
	Pending    int `json:"pending"`
	Last24h    int `json:"last_24h"`
}

// OrderRiskAssessment is recomputed per request and never stored
type OrderRiskAssessment struct {
	TenantID        string       `json:"tenant_id"`
	NormalizedPhone string       `json:"normalized_phone"`
	Score           int          `json:"score"`
	Level           string       `json:"level"`
	Flags           []string     `json:"flags"`
	History         PhoneHistory `json:"phone_history"`
	Blacklisted     bool         `json:"blacklisted"`
	Recommendation  string       `json:"recommendation"`
	AssessedAt      time.Time    `json:"assessed_at"`
}
