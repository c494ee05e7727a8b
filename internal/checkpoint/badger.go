package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/goccy/go-json"

	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

const (
	keyPrefix = "ckpt:"

	// keepRevisions bounds how many revisions are retained per thread.
	keepRevisions = 20
)

// BadgerStore keeps every checkpoint revision under ckpt:<thread>:<revision>.
// Revisions are ULIDs, so lexical key order is save order.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (creating if needed) a Badger store in dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func threadPrefix(threadID string) []byte {
	return []byte(keyPrefix + threadID + ":")
}

func revisionKey(threadID, revision string) []byte {
	return []byte(keyPrefix + threadID + ":" + revision)
}

// Save implements Store.
func (s *BadgerStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("checkpoint %w", forgeerrors.ErrEmptyValue)
	}
	if err := ValidateThreadID(cp.ThreadID); err != nil {
		return err
	}

	stamp(cp)
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(revisionKey(cp.ThreadID, cp.Revision), data); err != nil {
			return err
		}
		return pruneRevisions(txn, cp.ThreadID)
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for thread '%s': %w", cp.ThreadID, err)
	}
	return nil
}

// pruneRevisions deletes all but the newest keepRevisions entries of a thread.
func pruneRevisions(txn *badger.Txn, threadID string) error {
	prefix := threadPrefix(threadID)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	it := txn.NewIterator(opts)

	var stale [][]byte
	n := 0
	for it.Seek(seekEnd(prefix)); it.ValidForPrefix(prefix); it.Next() {
		n++
		if n > keepRevisions {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
	}
	it.Close()

	for _, k := range stale {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// seekEnd returns a key just past every key with prefix, for reverse iteration.
func seekEnd(prefix []byte) []byte {
	return append(append([]byte(nil), prefix...), 0xFF)
}

// Load implements Store.
func (s *BadgerStore) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}

	var cp *domain.Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := threadPrefix(threadID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(seekEnd(prefix))
		if !it.ValidForPrefix(prefix) {
			return forgeerrors.ErrThreadNotFound
		}
		return it.Item().Value(func(val []byte) error {
			var decoded domain.Checkpoint
			if err := json.Unmarshal(val, &decoded); err != nil {
				return fmt.Errorf("%w: %w", forgeerrors.ErrCheckpointCorrupt, err)
			}
			cp = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load thread '%s': %w", threadID, err)
	}
	return cp, nil
}

// List implements Store.
func (s *BadgerStore) List(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	latest := make(map[string][]byte)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			rest := strings.TrimPrefix(string(item.Key()), keyPrefix)
			idx := strings.LastIndex(rest, ":")
			if idx <= 0 {
				continue
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			// Ascending order: the last value seen per thread is the newest.
			latest[rest[:idx]] = val
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	summaries := make([]Summary, 0, len(latest))
	for _, val := range latest {
		var cp domain.Checkpoint
		if err := json.Unmarshal(val, &cp); err != nil {
			continue
		}
		summaries = append(summaries, summarize(&cp))
	}
	sortSummaries(summaries)
	return summaries, nil
}

// Purge implements Store.
func (s *BadgerStore) Purge(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateThreadID(threadID); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		prefix := threadPrefix(threadID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("failed to purge thread '%s': %w", threadID, err)
	}
	return nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
