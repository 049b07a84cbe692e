package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IntelligenceRepository persists merged IP intelligence, one row per address
type IntelligenceRepository struct {
	pool *pgxpool.Pool
}

// NewIntelligenceRepository creates a new IntelligenceRepository
func NewIntelligenceRepository(db *database.DB) *IntelligenceRepository {
	return &IntelligenceRepository{pool: db.Pool}
}

const intelligenceColumns = `
	address, country_code, region, city, latitude, longitude, timezone,
	isp, organization, asn,
	is_vpn, is_proxy, is_tor, is_datacenter, is_mobile, is_crawler,
	fraud_score, abuse_score,
	is_blacklisted, blacklist_reports, blacklist_confidence,
	risk_level, sources_checked, last_checked_at
`

func scanIntelligenceRow(row rowScanner) (*models.IntelligenceRecord, error) {
	var rec models.IntelligenceRecord
	var riskLevel string

	err := row.Scan(
		&rec.Address, &rec.CountryCode, &rec.Region, &rec.City, &rec.Latitude, &rec.Longitude, &rec.Timezone,
		&rec.ISP, &rec.Organization, &rec.ASN,
		&rec.IsVPN, &rec.IsProxy, &rec.IsTor, &rec.IsDatacenter, &rec.IsMobile, &rec.IsCrawler,
		&rec.FraudScore, &rec.AbuseScore,
		&rec.IsBlacklisted, &rec.BlacklistReports, &rec.BlacklistConfidence,
		&riskLevel, &rec.SourcesChecked, &rec.LastCheckedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	rec.RiskLevel = models.RiskLevel(riskLevel)
	return &rec, nil
}

// Get returns the stored record for an address or models.ErrNotFound
func (r *IntelligenceRepository) Get(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
	query := `SELECT ` + intelligenceColumns + ` FROM ip_intelligence WHERE address = $1`

	rec, err := scanIntelligenceRow(r.pool.QueryRow(ctx, query, address))
	if err != nil {
		return nil, fmt.Errorf("failed to get ip intelligence: %w", err)
	}
	return rec, nil
}

// Upsert inserts the record or refreshes the existing row in place
func (r *IntelligenceRepository) Upsert(ctx context.Context, rec *models.IntelligenceRecord) error {
	query := `
		INSERT INTO ip_intelligence (` + intelligenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (address) DO UPDATE SET
			country_code = EXCLUDED.country_code,
			region = EXCLUDED.region,
			city = EXCLUDED.city,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			timezone = EXCLUDED.timezone,
			isp = EXCLUDED.isp,
			organization = EXCLUDED.organization,
			asn = EXCLUDED.asn,
			is_vpn = EXCLUDED.is_vpn,
			is_proxy = EXCLUDED.is_proxy,
			is_tor = EXCLUDED.is_tor,
			is_datacenter = EXCLUDED.is_datacenter,
			is_mobile = EXCLUDED.is_mobile,
			is_crawler = EXCLUDED.is_crawler,
			fraud_score = EXCLUDED.fraud_score,
			abuse_score = EXCLUDED.abuse_score,
			is_blacklisted = EXCLUDED.is_blacklisted,
			blacklist_reports = EXCLUDED.blacklist_reports,
			blacklist_confidence = EXCLUDED.blacklist_confidence,
			risk_level = EXCLUDED.risk_level,
			sources_checked = EXCLUDED.sources_checked,
			last_checked_at = EXCLUDED.last_checked_at
	`

	_, err := r.pool.Exec(ctx, query,
		rec.Address, rec.CountryCode, rec.Region, rec.City, rec.Latitude, rec.Longitude, rec.Timezone,
		rec.ISP, rec.Organization, rec.ASN,
		rec.IsVPN, rec.IsProxy, rec.IsTor, rec.IsDatacenter, rec.IsMobile, rec.IsCrawler,
		rec.FraudScore, rec.AbuseScore,
		rec.IsBlacklisted, rec.BlacklistReports, rec.BlacklistConfidence,
		string(rec.RiskLevel), rec.SourcesChecked, rec.LastCheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert ip intelligence: %w", database.MapPostgresError(err))
	}
	return nil
}
