package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callagent/internal/domain"
	"callagent/internal/domain/models"
	"callagent/internal/domain/repositories"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	callPrefix      = "call/"
	callIndexPrefix = "callidx/"
)

func callKey(providerCallID string) []byte {
	return []byte(callPrefix + providerCallID)
}

// callIndexKey orders calls by creation time for List
func callIndexKey(c *models.CallSession) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", callIndexPrefix, c.CreatedAt.UnixNano(), c.ProviderCallID))
}

// CallStore implements repositories.CallRepository
type CallStore struct {
	db  *DB
	now func() time.Time
}

// NewCallStore creates a call store on db
func NewCallStore(db *DB) repositories.CallRepository {
	return &CallStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// UpsertOnStart inserts the record when its key is absent. Two concurrent
// inserts conflict at commit and the loser retries into the read branch.
func (s *CallStore) UpsertOnStart(ctx context.Context, call *models.CallSession) (bool, error) {
	var (
		created bool
		stored  models.CallSession
	)

	err := s.db.update(ctx, func(txn *badger.Txn) error {
		created = false
		stored = models.CallSession{}
		err := getValue(txn, callKey(call.ProviderCallID), &stored)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		stored = *call
		now := s.now()
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		if stored.StartTime.IsZero() {
			stored.StartTime = now
		}
		if stored.Status == "" {
			stored.Status = models.CallStatusInitiated
		}
		if stored.Intent == "" {
			stored.Intent = models.IntentUnknown
		}
		if stored.Priority == "" {
			stored.Priority = models.PriorityLow
		}
		if stored.EmergencySeverity == "" {
			stored.EmergencySeverity = models.SeverityNone
		}
		if stored.EmergencyKeywords == nil {
			stored.EmergencyKeywords = []string{}
		}
		stored.CreatedAt = now
		stored.UpdatedAt = now

		if err := setValue(txn, callKey(stored.ProviderCallID), &stored); err != nil {
			return err
		}
		created = true
		return txn.Set(callIndexKey(&stored), nil)
	})
	if err != nil {
		return false, fmt.Errorf("upsert call: %w", err)
	}

	*call = stored
	return created, nil
}

// mutate loads the record, applies fn and writes it back in one transaction.
// When fn fails nothing is written and the loaded record is returned with
// the error.
func (s *CallStore) mutate(ctx context.Context, providerCallID string, fn func(c *models.CallSession) error) (*models.CallSession, error) {
	var call models.CallSession
	var fnErr error

	err := s.db.update(ctx, func(txn *badger.Txn) error {
		fnErr = nil
		call = models.CallSession{}
		if err := getValue(txn, callKey(providerCallID), &call); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("call %s: %w", providerCallID, domain.ErrNotFound)
			}
			return err
		}
		if fnErr = fn(&call); fnErr != nil {
			return nil
		}
		call.UpdatedAt = s.now()
		return setValue(txn, callKey(providerCallID), &call)
	})
	if err != nil {
		return nil, err
	}
	if fnErr != nil {
		return &call, fnErr
	}
	return &call, nil
}

func rejectTerminal(c *models.CallSession) error {
	if c.Status.IsTerminal() {
		return fmt.Errorf("call %s is %s: %w", c.ProviderCallID, c.Status, domain.ErrTerminal)
	}
	return nil
}

// ApplyTurnUpdate merges turn fields unless the call is terminal
func (s *CallStore) ApplyTurnUpdate(ctx context.Context, providerCallID string, update *models.TurnUpdate) (*models.CallSession, error) {
	return s.mutate(ctx, providerCallID, func(c *models.CallSession) error {
		if err := rejectTerminal(c); err != nil {
			return err
		}
		update.Apply(c)
		return nil
	})
}

// ApplyStatusUpdate merges a status callback unless the call is already terminal
func (s *CallStore) ApplyStatusUpdate(ctx context.Context, providerCallID string, update *models.StatusUpdate) (*models.CallSession, error) {
	return s.mutate(ctx, providerCallID, func(c *models.CallSession) error {
		if err := rejectTerminal(c); err != nil {
			return err
		}
		update.Apply(c)
		return nil
	})
}

// ApplyRecordingUpdate merges recording metadata
func (s *CallStore) ApplyRecordingUpdate(ctx context.Context, providerCallID string, update *models.RecordingUpdate) (*models.CallSession, error) {
	return s.mutate(ctx, providerCallID, func(c *models.CallSession) error {
		update.Apply(c)
		return nil
	})
}

// ApplyTranscription merges the full transcription
func (s *CallStore) ApplyTranscription(ctx context.Context, providerCallID string, update *models.TranscriptionUpdate) (*models.CallSession, error) {
	return s.mutate(ctx, providerCallID, func(c *models.CallSession) error {
		c.FullTranscript = update.Text
		c.TranscriptionStatus = update.Status
		return nil
	})
}

// FindByProviderCallID retrieves a call by the provider's call id
func (s *CallStore) FindByProviderCallID(ctx context.Context, providerCallID string) (*models.CallSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var call models.CallSession
	err := s.db.db.View(func(txn *badger.Txn) error {
		return getValue(txn, callKey(providerCallID), &call)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("call %s: %w", providerCallID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get call: %w", err)
	}
	return &call, nil
}

// List walks the creation index backwards, newest first
func (s *CallStore) List(ctx context.Context, limit int) ([]models.CallSession, error) {
	calls := []models.CallSession{}

	err := s.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		opts.Prefix = []byte(callIndexPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks from just past the prefix
		seek := append([]byte(callIndexPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if len(calls) >= limit {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			key := string(it.Item().Key())
			providerCallID := key[len(callIndexPrefix)+21:]

			var call models.CallSession
			if err := getValue(txn, callKey(providerCallID), &call); err != nil {
				return fmt.Errorf("load %s: %w", providerCallID, err)
			}
			calls = append(calls, call)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	return calls, nil
}
