package badgerdb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"callagent/internal/domain/models"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const providerPrefix = "provider/"

const earthRadiusMeters = 6371000.0

// ProviderDirectory implements repositories.ProviderDirectory and
// repositories.ProviderWriter with a full scan; the directory is small.
type ProviderDirectory struct {
	db *DB
}

// NewProviderDirectory creates a directory on db
func NewProviderDirectory(db *DB) *ProviderDirectory {
	return &ProviderDirectory{db: db}
}

// Upsert inserts or replaces a provider by ID
func (d *ProviderDirectory) Upsert(ctx context.Context, p *models.HealthcareProvider) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return d.db.update(ctx, func(txn *badger.Txn) error {
		return setValue(txn, []byte(providerPrefix+p.ID), p)
	})
}

// FindNearby returns active providers within radiusMeters, closest first
func (d *ProviderDirectory) FindNearby(ctx context.Context, lon, lat, radiusMeters float64, limit int) ([]models.NearbyProvider, error) {
	var found []models.NearbyProvider

	err := d.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(providerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var p models.HealthcareProvider
			if err := msgpack.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("decode provider: %w", err)
			}
			if !p.IsActive {
				continue
			}
			if dist := haversine(lon, lat, p.Longitude, p.Latitude); dist <= radiusMeters {
				found = append(found, models.NearbyProvider{HealthcareProvider: p, DistanceMeters: dist})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find nearby providers: %w", err)
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].DistanceMeters < found[j].DistanceMeters
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

// haversine returns the great-circle distance in meters
func haversine(lon1, lat1, lon2, lat2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
