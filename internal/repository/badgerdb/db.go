// Package badgerdb stores call records and the provider directory in an
// embedded BadgerDB, for single-node deployments and tests.
package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// maxTxnRetries bounds optimistic-transaction retries on write conflicts
const maxTxnRetries = 16

// Options configures the embedded database
type Options struct {
	// Dir is required unless InMemory is set
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// DB wraps a badger handle shared by the call store and the directory
type DB struct {
	db *badger.DB
}

// Open opens (or creates) the database
func Open(opts Options) (*DB, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badgerdb: Dir is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(slogAdapter{logger: logger.With("component", "badger")})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &DB{db: db}, nil
}

// Close flushes and closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// update runs fn in a read-write transaction, retrying on conflicts so that
// read-modify-write sequences stay atomic under concurrent webhooks.
func (d *DB) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := d.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("badger transaction: %w", badger.ErrConflict)
}

func getValue(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(data, v)
}

func setValue(txn *badger.Txn, key []byte, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// slogAdapter routes badger's logger into slog; info and debug are dropped
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Errorf(f string, v ...interface{}) {
	a.logger.Error(fmt.Sprintf(f, v...))
}

func (a slogAdapter) Warningf(f string, v ...interface{}) {
	a.logger.Warn(fmt.Sprintf(f, v...))
}

func (slogAdapter) Infof(string, ...interface{})  {}
func (slogAdapter) Debugf(string, ...interface{}) {}
