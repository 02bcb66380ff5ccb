package postgres

import (
	"context"
	"fmt"
	"time"

	"callagent/internal/domain"
	"callagent/internal/domain/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProviderDirectory implements repositories.ProviderDirectory and
// repositories.ProviderWriter
type PostgresProviderDirectory struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewProviderDirectory creates a new provider directory
func NewProviderDirectory(config *RepositoryConfig) *PostgresProviderDirectory {
	return &PostgresProviderDirectory{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// FindNearby ranks active providers by great-circle (haversine) distance
func (r *PostgresProviderDirectory) FindNearby(ctx context.Context, lon, lat, radiusMeters float64, limit int) ([]models.NearbyProvider, error) {
	query := fmt.Sprintf(`
		SELECT id, name, specialization, phone, address, longitude, latitude, is_active, rating, created_at, distance
		FROM (
			SELECT *,
				6371000 * 2 * ASIN(SQRT(
					POWER(SIN(RADIANS(latitude - $2) / 2), 2) +
					COS(RADIANS($2)) * COS(RADIANS(latitude)) *
					POWER(SIN(RADIANS(longitude - $1) / 2), 2)
				)) AS distance
			FROM %s
			WHERE is_active
		) p
		WHERE distance <= $3
		ORDER BY distance
		LIMIT $4
	`, r.tables.Providers)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, lon, lat, radiusMeters, limit)
	if err != nil {
		return nil, fmt.Errorf("find nearby providers: %w", err)
	}
	defer rows.Close()

	var providers []models.NearbyProvider
	for rows.Next() {
		var p models.NearbyProvider
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Specialization, &p.Phone, &p.Address,
			&p.Longitude, &p.Latitude, &p.IsActive, &p.Rating, &p.CreatedAt,
			&p.DistanceMeters,
		); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}
	return providers, nil
}

// Upsert inserts a provider or replaces the existing row with the same ID.
// A second provider with an existing name at the same phone is a conflict.
func (r *PostgresProviderDirectory) Upsert(ctx context.Context, p *models.HealthcareProvider) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, specialization, phone, address, longitude, latitude, is_active, rating, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			specialization = EXCLUDED.specialization,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			longitude = EXCLUDED.longitude,
			latitude = EXCLUDED.latitude,
			is_active = EXCLUDED.is_active,
			rating = EXCLUDED.rating
	`, r.tables.Providers)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		p.ID, p.Name, p.Specialization, p.Phone, p.Address,
		p.Longitude, p.Latitude, p.IsActive, p.Rating, p.CreatedAt,
	)
	if err != nil {
		if isPgDuplicateError(err) {
			return fmt.Errorf("provider %q: %w", p.Name, domain.ErrConflict)
		}
		return fmt.Errorf("upsert provider: %w", err)
	}
	return nil
}
