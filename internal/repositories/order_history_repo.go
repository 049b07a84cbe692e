package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderHistoryRepository reads storefront order outcomes. It never writes.
type OrderHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewOrderHistoryRepository creates a new OrderHistoryRepository
func NewOrderHistoryRepository(db *database.DB) *OrderHistoryRepository {
	return &OrderHistoryRepository{pool: db.Pool}
}

// Phone columns are compared on their trailing digits so stored formatting
// differences do not fragment history.
const phoneMatch = `right(regexp_replace(phone, '\D', '', 'g'), length($2)) = $2`

// GetPhoneHistory aggregates the tenant's orders for a normalized phone
func (r *OrderHistoryRepository) GetPhoneHistory(ctx context.Context, tenantID, phone string, now time.Time) (*models.PhoneHistory, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('completed', 'delivered')),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COUNT(*) FILTER (WHERE status = 'fraudulent'),
			COUNT(*) FILTER (WHERE status = 'no_answer'),
			COUNT(*) FILTER (WHERE status = 'returned'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE created_at >= $3)
		FROM orders
		WHERE tenant_id = $1 AND ` + phoneMatch

	var h models.PhoneHistory
	err := r.pool.QueryRow(ctx, query, tenantID, phone, now.Add(-24*time.Hour)).Scan(
		&h.Total, &h.Completed, &h.Cancelled, &h.Fraudulent,
		&h.Unanswered, &h.Returned, &h.Pending, &h.Last24h,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read phone history: %w", database.MapPostgresError(err))
	}
	return &h, nil
}

// IsPhoneBlacklisted checks tenant-scoped blacklist membership
func (r *OrderHistoryRepository) IsPhoneBlacklisted(ctx context.Context, tenantID, phone string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM phone_blacklist WHERE tenant_id = $1 AND ` + phoneMatch + `)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, tenantID, phone).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check phone blacklist: %w", database.MapPostgresError(err))
	}
	return exists, nil
}
