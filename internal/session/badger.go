package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/m3rciful/datingbot/core/logger"
)

const badgerKeyPrefix = "session:"

// BadgerStore persists sessions as JSON documents in an embedded badger database.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) a badger database in dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("session: open badger %s: %w", dir, err)
	}
	logger.DB.Info("badger opened",
		slog.String("event", "session.badger.open"),
		slog.String("dir", dir),
	)
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already opened database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Close closes the underlying database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func badgerKey(id int64) []byte {
	return []byte(badgerKeyPrefix + strconv.FormatInt(id, 10))
}

// GetOrCreate loads the session for id, writing a fresh one inside the same transaction when absent.
func (b *BadgerStore) GetOrCreate(ctx context.Context, id int64) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *Session
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(id))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			out = New(id)
			data, err := json.Marshal(out)
			if err != nil {
				return err
			}
			return txn.Set(badgerKey(id), data)
		case err != nil:
			return err
		}
		return item.Value(func(val []byte) error {
			var s Session
			if err := json.Unmarshal(val, &s); err != nil {
				return err
			}
			out = &s
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("session: badger get %d: %w", id, err)
	}
	return out, nil
}

// Update writes s under its id.
func (b *BadgerStore) Update(ctx context.Context, s *Session) error {
	if s == nil {
		return fmt.Errorf("session: nil session")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.State.Valid() {
		return fmt.Errorf("session %d: %w", s.ID, ErrInvalidState)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode %d: %w", s.ID, err)
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(s.ID), data)
	}); err != nil {
		return fmt.Errorf("session: badger put %d: %w", s.ID, err)
	}
	return nil
}
