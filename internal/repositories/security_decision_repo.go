package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SecurityDecisionRepository handles the append-only decision log
type SecurityDecisionRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityDecisionRepository creates a new SecurityDecisionRepository
func NewSecurityDecisionRepository(db *database.DB) *SecurityDecisionRepository {
	return &SecurityDecisionRepository{pool: db.Pool}
}

func scanSecurityDecisionRow(row rowScanner) (*models.SecurityDecision, error) {
	var d models.SecurityDecision
	var disposition, riskLevel string

	err := row.Scan(
		&d.ID, &d.IP, &d.Fingerprint, &d.VisitorID, &disposition, &d.Reason,
		&d.Path, &d.Method, &d.UserAgent,
		&riskLevel, &d.FraudScore, &d.IsVPN, &d.IsProxy, &d.CountryCode,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	d.Disposition = models.Disposition(disposition)
	d.RiskLevel = models.RiskLevel(riskLevel)
	return &d, nil
}

func scanSecurityDecisionRows(rows pgx.Rows) ([]*models.SecurityDecision, error) {
	defer rows.Close()

	decisions := make([]*models.SecurityDecision, 0)

	for rows.Next() {
		d, err := scanSecurityDecisionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security decision: %w", err)
		}
		decisions = append(decisions, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security decision rows: %w", err)
	}

	return decisions, nil
}

// Create appends a decision. Rows are never updated.
func (r *SecurityDecisionRepository) Create(ctx context.Context, d *models.SecurityDecision) error {
	query := `
		INSERT INTO security_decisions (
			id, ip, fingerprint, visitor_id, disposition, reason,
			path, method, user_agent,
			risk_level, fraud_score, is_vpn, is_proxy, country_code,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.IP, d.Fingerprint, d.VisitorID, string(d.Disposition), d.Reason,
		d.Path, d.Method, d.UserAgent,
		string(d.RiskLevel), d.FraudScore, d.IsVPN, d.IsProxy, d.CountryCode,
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create security decision: %w", database.MapPostgresError(err))
	}
	return nil
}

// ListByIP returns the most recent decisions for an address, newest first
func (r *SecurityDecisionRepository) ListByIP(ctx context.Context, ip string, limit int) ([]*models.SecurityDecision, error) {
	query := `
		SELECT id, ip, fingerprint, visitor_id, disposition, reason,
		       path, method, user_agent,
		       risk_level, fraud_score, is_vpn, is_proxy, country_code,
		       created_at
		FROM security_decisions
		WHERE ip = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, ip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security decisions: %w", database.MapPostgresError(err))
	}

	return scanSecurityDecisionRows(rows)
}
