package repositories

import (
	"context"

	"callagent/internal/domain/models"
)

// ProviderDirectory looks up healthcare providers near a point
type ProviderDirectory interface {
	// FindNearby returns active providers within radiusMeters of (lon, lat),
	// closest first, at most limit entries. An empty result is not an error.
	FindNearby(ctx context.Context, lon, lat, radiusMeters float64, limit int) ([]models.NearbyProvider, error)
}

// ProviderWriter stores directory entries. Used by the seeder.
type ProviderWriter interface {
	// Upsert inserts or replaces a provider by ID
	Upsert(ctx context.Context, provider *models.HealthcareProvider) error
}
