package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"callagent/internal/domain"
	"callagent/internal/domain/models"

	"github.com/google/uuid"
)

// ============================================================================
// INTEGRATION TESTS - require TEST_DATABASE_URL
// ============================================================================

func newTestConfig(t *testing.T) *RepositoryConfig {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := CreateConnectionPool(ctx, dsn)
	if err != nil {
		t.Fatalf("CreateConnectionPool() error = %v", err)
	}

	prefix := fmt.Sprintf("test_%s_", strings.ReplaceAll(uuid.NewString()[:8], "-", ""))
	tables := NewTableNames(prefix)
	if err := RunSchema(ctx, pool, tables); err != nil {
		t.Fatalf("RunSchema() error = %v", err)
	}

	t.Cleanup(func() {
		_ = DropTables(context.Background(), pool, tables)
		pool.Close()
	})

	return &RepositoryConfig{Pool: pool, Tables: tables, Logger: slog.Default()}
}

func TestCallRepository_UpsertOnStartIsIdempotent(t *testing.T) {
	repo := NewCallRepository(newTestConfig(t))
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]struct{}{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			call := &models.CallSession{ProviderCallID: "CA-dup", CallerNumber: "+923001234567"}
			ok, err := repo.UpsertOnStart(ctx, call)
			if err != nil {
				t.Errorf("UpsertOnStart() error = %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			ids[call.ID] = struct{}{}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
	if len(ids) != 1 {
		t.Errorf("callers saw %d distinct records, want 1", len(ids))
	}

	calls, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("List() returned %d calls, want 1", len(calls))
	}
}

func TestCallRepository_TerminalStatusIsMonotonic(t *testing.T) {
	repo := NewCallRepository(newTestConfig(t))
	ctx := context.Background()

	if _, err := repo.UpsertOnStart(ctx, &models.CallSession{ProviderCallID: "CA-term"}); err != nil {
		t.Fatalf("UpsertOnStart() error = %v", err)
	}

	transcript := "hello"
	turn := &models.TurnUpdate{Transcript: &transcript, IncrementTurn: true}
	if _, err := repo.ApplyTurnUpdate(ctx, "CA-term", turn); err != nil {
		t.Fatalf("ApplyTurnUpdate() error = %v", err)
	}

	duration := 42
	if _, err := repo.ApplyStatusUpdate(ctx, "CA-term", &models.StatusUpdate{Status: models.CallStatusCompleted, Duration: &duration}); err != nil {
		t.Fatalf("ApplyStatusUpdate(completed) error = %v", err)
	}

	late := "too late"
	got, err := repo.ApplyTurnUpdate(ctx, "CA-term", &models.TurnUpdate{Transcript: &late, IncrementTurn: true})
	if !errors.Is(err, domain.ErrTerminal) {
		t.Fatalf("ApplyTurnUpdate() after completed error = %v, want ErrTerminal", err)
	}
	if got.Transcript != "hello" || got.TurnCount != 1 {
		t.Errorf("terminal record mutated: transcript=%q turns=%d", got.Transcript, got.TurnCount)
	}

	if _, err := repo.ApplyStatusUpdate(ctx, "CA-term", &models.StatusUpdate{Status: models.CallStatusInProgress}); !errors.Is(err, domain.ErrTerminal) {
		t.Errorf("ApplyStatusUpdate(in-progress) error = %v, want ErrTerminal", err)
	}

	// Recording metadata is independent of status.
	rec, err := repo.ApplyRecordingUpdate(ctx, "CA-term", &models.RecordingUpdate{RecordingID: "RE1", RecordingURL: "https://rec", RecordingDuration: 40})
	if err != nil {
		t.Fatalf("ApplyRecordingUpdate() error = %v", err)
	}
	if rec.Status != models.CallStatusCompleted || rec.Duration != 42 || rec.RecordingID != "RE1" {
		t.Errorf("unexpected record after recording update: %+v", rec)
	}
}

func TestCallRepository_NotFound(t *testing.T) {
	repo := NewCallRepository(newTestConfig(t))
	ctx := context.Background()

	if _, err := repo.FindByProviderCallID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindByProviderCallID() error = %v, want ErrNotFound", err)
	}
	if _, err := repo.ApplyTurnUpdate(ctx, "missing", &models.TurnUpdate{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ApplyTurnUpdate() error = %v, want ErrNotFound", err)
	}
}

func TestProviderDirectory_FindNearby(t *testing.T) {
	dir := NewProviderDirectory(newTestConfig(t))
	ctx := context.Background()

	providers := []models.HealthcareProvider{
		{Name: "Clifton Clinic", Phone: "1", Longitude: 67.0281, Latitude: 24.8138, IsActive: true},
		{Name: "Saddar Hospital", Phone: "2", Longitude: 67.0253, Latitude: 24.8584, IsActive: true},
		{Name: "Closed Clinic", Phone: "3", Longitude: 67.0282, Latitude: 24.8139, IsActive: false},
		{Name: "Malir Clinic", Phone: "4", Longitude: 67.1951, Latitude: 24.9084, IsActive: true},
	}
	for i := range providers {
		if err := dir.Upsert(ctx, &providers[i]); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	got, err := dir.FindNearby(ctx, 67.0281, 24.8138, 6000, 3)
	if err != nil {
		t.Fatalf("FindNearby() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("FindNearby() returned %d providers, want 2", len(got))
	}
	if got[0].Name != "Clifton Clinic" || got[1].Name != "Saddar Hospital" {
		t.Errorf("unexpected order: %s, %s", got[0].Name, got[1].Name)
	}
}
