package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"callagent/internal/config"
	"callagent/internal/domain/models"
	"callagent/internal/domain/repositories"
	"callagent/internal/repository/badgerdb"
	"callagent/internal/repository/postgres"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed providers.yaml
var providersYAML []byte

type seedFile struct {
	Providers []seedProvider `yaml:"providers"`
}

type seedProvider struct {
	Name           string     `yaml:"name"`
	Specialization string     `yaml:"specialization"`
	Phone          string     `yaml:"phone"`
	Address        string     `yaml:"address"`
	Location       [2]float64 `yaml:"location"`
	Rating         *float64   `yaml:"rating"`
	Active         *bool      `yaml:"active"`
}

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed providers")
	clearData := flag.Bool("clear-data", false, "Clear the provider directory before seeding")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && (*dropTables || *clearData) {
		log.Fatalf("🚫 BLOCKED: Cannot run destructive operations (--drop-tables or --clear-data) in production environment")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	providers, err := loadProviders()
	if err != nil {
		log.Fatalf("Failed to load seed data: %v", err)
	}

	ctx := context.Background()

	switch cfg.Store {
	case config.StoreBadger:
		if *dropTables || *clearData || *schemaOnly {
			log.Fatalf("--drop-tables, --clear-data and --schema-only apply to the postgres store only")
		}
		log.Printf("🌱 Seeding badger store (dir: %s)", cfg.BadgerDir)
		db, err := badgerdb.Open(badgerdb.Options{Dir: cfg.BadgerDir, Logger: logger})
		if err != nil {
			log.Fatalf("Failed to open badger: %v", err)
		}
		defer db.Close()

		seed(ctx, badgerdb.NewProviderDirectory(db), providers)

	default:
		log.Printf("🌱 Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()

		tables := postgres.NewTableNames(cfg.TablePrefix)

		if *dropTables {
			log.Println("🗑️  Dropping all tables...")
			if err := postgres.DropTables(ctx, pool, tables); err != nil {
				log.Fatalf("Failed to drop tables: %v", err)
			}
			log.Println("✅ Tables dropped")
		}

		log.Println("📋 Ensuring database schema is up to date...")
		if err := postgres.RunSchema(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to run schema: %v", err)
		}
		log.Println("✅ Schema ready")

		if *schemaOnly {
			log.Println("✅ Schema setup complete (schema-only mode)")
			return
		}

		if *clearData {
			log.Println("🧹 Clearing provider directory...")
			if _, err := pool.Exec(ctx, `DELETE FROM `+tables.Providers); err != nil {
				log.Fatalf("Failed to clear providers: %v", err)
			}
		}

		repoConfig := &postgres.RepositoryConfig{
			Pool:   pool,
			Tables: tables,
			Logger: logger,
		}
		directory := postgres.NewProviderDirectory(repoConfig)
		txManager := postgres.NewTransactionManager(pool, logger)

		// All-or-nothing so a bad row never leaves a half-seeded directory
		err = txManager.ExecTx(ctx, func(ctx context.Context) error {
			for _, p := range providers {
				if err := directory.Upsert(ctx, p); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.Fatalf("❌ Seeding failed: %v", err)
		}
		log.Printf("✅ Seeded %d providers", len(providers))
	}

	log.Println("🎉 Seeding complete!")
}

// seed writes providers one at a time, reporting each
func seed(ctx context.Context, w repositories.ProviderWriter, providers []*models.HealthcareProvider) {
	for i, p := range providers {
		if err := w.Upsert(ctx, p); err != nil {
			log.Printf("❌ Failed to seed provider '%s': %v", p.Name, err)
			continue
		}
		log.Printf("✅ Seeded provider %d/%d: %s (%s)", i+1, len(providers), p.Name, p.Specialization)
	}
}

// loadProviders decodes the embedded seed file. IDs are derived from name and
// phone so reseeding updates rows instead of duplicating them.
func loadProviders() ([]*models.HealthcareProvider, error) {
	var f seedFile
	if err := yaml.Unmarshal(providersYAML, &f); err != nil {
		return nil, fmt.Errorf("parse providers.yaml: %w", err)
	}

	out := make([]*models.HealthcareProvider, 0, len(f.Providers))
	for _, sp := range f.Providers {
		active := true
		if sp.Active != nil {
			active = *sp.Active
		}
		out = append(out, &models.HealthcareProvider{
			ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte(sp.Name+"|"+sp.Phone)).String(),
			Name:           sp.Name,
			Specialization: sp.Specialization,
			Phone:          sp.Phone,
			Address:        sp.Address,
			Longitude:      sp.Location[0],
			Latitude:       sp.Location[1],
			IsActive:       active,
			Rating:         sp.Rating,
		})
	}
	return out, nil
}
