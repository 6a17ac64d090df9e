// Package queue is the persistent offline mutation queue. Writes made
// while disconnected are stored here as raw operations until a sync
// pass replays them, removes them as redundant, or they are explicitly
// cancelled.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/herdsync/herdsync/internal/mutation"
	"github.com/herdsync/herdsync/internal/reason"
)

const (
	// queueDirPerm is the permission mode for the queue directory.
	queueDirPerm = fs.FileMode(0o700)

	// queueFilePerm is the permission mode for the queue database file.
	queueFilePerm = fs.FileMode(0o600)

	// queueOpenTimeout is the maximum time to wait for the bolt
	// database lock.
	queueOpenTimeout = 5 * time.Second

	// replayMaxRetries bounds the exponential backoff applied to one
	// resumed operation before it is paused again.
	replayMaxRetries = 5
)

var opsBucket = []byte("operations")

// Status is the lifecycle state of a queued operation.
type Status string

const (
	// StatusPending marks an operation waiting for its first replay.
	StatusPending Status = "pending"

	// StatusPaused marks an operation whose replay previously failed
	// (typically offline) and which awaits an explicit resume.
	StatusPaused Status = "paused"
)

// Operation is one stored queue entry: the raw mutation plus replay
// bookkeeping.
type Operation struct {
	Raw       mutation.Raw `json:"raw"`
	Status    Status       `json:"status"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"lastError,omitempty"`
}

// Gate decides whether local storage has room for another mutation.
// Implemented by the storage monitor.
type Gate interface {
	CanQueue(ctx context.Context) bool
}

// Replayer sends one raw mutation to the server. It returns nil on
// success, a conflict-class error carrying both record versions on a
// version mismatch, or a not-found reason when the entity is gone
// server-side. Anything else is treated as transient.
type Replayer interface {
	Replay(ctx context.Context, raw mutation.Raw) error
}

// Options configures a Store. Gate and Replayer may be nil: a nil gate
// admits everything, and with a nil replayer Resume only transitions
// the operation back to pending for the host application to drive.
type Options struct {
	Gate     Gate
	Replayer Replayer
	Logger   *slog.Logger
}

// Store wraps a bbolt database holding the mutation queue.
type Store struct {
	db       *bolt.DB
	gate     Gate
	replayer Replayer
	logger   *slog.Logger
}

// Open opens (creating if needed) the queue database at path.
func Open(path string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), queueDirPerm); err != nil {
		return nil, fmt.Errorf("creating queue directory: %w", err)
	}

	db, err := bolt.Open(path, queueFilePerm, &bolt.Options{Timeout: queueOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening queue db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(opsBucket)

		return err
	})
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("initializing queue db: %w", err)
	}

	return &Store{
		db:       db,
		gate:     opts.Gate,
		replayer: opts.Replayer,
		logger:   opts.Logger.With(slog.String("component", "queue")),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue stores a new pending operation and returns its id. The write
// is refused with the STORAGE_BLOCKED reason when the storage gate
// reports the local budget exhausted; the user must sync first.
func (s *Store) Enqueue(ctx context.Context, raw mutation.Raw) (string, error) {
	if s.gate != nil && !s.gate.CanQueue(ctx) {
		return "", reason.StorageBlocked
	}

	if raw.ID == "" {
		raw.ID = uuid.NewString()
	}

	if raw.Timestamp.IsZero() {
		raw.Timestamp = time.Now().UTC()
	}

	op := Operation{Raw: raw, Status: StatusPending}
	if err := s.put(op); err != nil {
		return "", err
	}

	s.logger.Debug("enqueued mutation",
		slog.String("id", raw.ID),
		slog.String("key", raw.Key),
	)

	return raw.ID, nil
}

// List returns every stored operation ordered by submission time, then
// id for same-instant entries.
func (s *Store) List(_ context.Context) ([]Operation, error) {
	var ops []Operation

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(opsBucket).ForEach(func(_, v []byte) error {
			var op Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("decoding queued operation: %w", err)
			}

			ops = append(ops, op)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(ops, func(i, j int) bool {
		if !ops[i].Raw.Timestamp.Equal(ops[j].Raw.Timestamp) {
			return ops[i].Raw.Timestamp.Before(ops[j].Raw.Timestamp)
		}

		return ops[i].Raw.ID < ops[j].Raw.ID
	})

	return ops, nil
}

// Get returns the operation with the given id, or ok=false.
func (s *Store) Get(id string) (Operation, bool, error) {
	var (
		op    Operation
		found bool
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(opsBucket).Get([]byte(id))
		if v == nil {
			return nil
		}

		found = true

		return json.Unmarshal(v, &op)
	})

	return op, found, err
}

// Remove deletes the operation with the given id. Removing an id that
// is no longer present is not an error; dedup removal and a concurrent
// successful replay may race benignly.
func (s *Store) Remove(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(opsBucket).Delete([]byte(id))
	})
}

// Pause marks the operation paused with the failure that stopped it,
// bumping its attempt count.
func (s *Store) Pause(id string, cause error) error {
	return s.update(id, func(op *Operation) {
		op.Status = StatusPaused
		op.Attempts++

		if cause != nil {
			op.LastError = cause.Error()
		}
	})
}

// Resume transitions a paused operation back to pending and, when a
// replayer is configured, kicks off its replay in the background. The
// call itself never waits for the replay to settle.
func (s *Store) Resume(ctx context.Context, id string) error {
	op, found, err := s.Get(id)
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("resuming %s: %w", id, reason.NotFound)
	}

	if err := s.update(id, func(op *Operation) {
		op.Status = StatusPending
	}); err != nil {
		return err
	}

	if s.replayer != nil {
		go s.replay(ctx, op)
	}

	return nil
}

// replay drives one operation against the server with exponential
// backoff. Success and a server-side 404 both remove the operation (the
// latter is an orphaned mutation, pointless to retry); a conflict
// pauses it for the conflict flow; transient failures retry until the
// backoff budget runs out, then pause.
func (s *Store) replay(ctx context.Context, op Operation) {
	id := op.Raw.ID
	log := s.logger.With(slog.String("id", id), slog.String("key", op.Raw.Key))

	attempt := func() error {
		err := s.replayer.Replay(ctx, op.Raw)

		switch {
		case err == nil:
			return nil
		case reason.IsConflict(err), reason.IsNotFound(err):
			return backoff.Permanent(err)
		default:
			return err
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), replayMaxRetries), ctx)

	err := backoff.Retry(attempt, policy)

	switch {
	case err == nil:
		if rmErr := s.Remove(ctx, id); rmErr != nil {
			log.Error("removing replayed mutation", slog.Any("error", rmErr))

			return
		}

		log.Debug("mutation replayed")

	case reason.IsNotFound(err):
		// Orphaned mutation: the entity was deleted by another client.
		if rmErr := s.Remove(ctx, id); rmErr != nil {
			log.Error("removing orphaned mutation", slog.Any("error", rmErr))

			return
		}

		log.Warn("dropped orphaned mutation", slog.Any("error", err))

	default:
		if pErr := s.Pause(id, err); pErr != nil {
			log.Error("pausing failed mutation", slog.Any("error", pErr))

			return
		}

		log.Warn("mutation paused after failed replay", slog.Any("error", err))
	}
}

func (s *Store) put(op Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("encoding operation: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(opsBucket).Put([]byte(op.Raw.ID), data)
	})
}

// update applies fn to the stored operation inside one transaction.
func (s *Store) update(id string, fn func(*Operation)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(opsBucket)

		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("updating %s: %w", id, reason.NotFound)
		}

		var op Operation
		if err := json.Unmarshal(v, &op); err != nil {
			return fmt.Errorf("decoding operation %s: %w", id, err)
		}

		fn(&op)

		data, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("encoding operation %s: %w", id, err)
		}

		return b.Put([]byte(id), data)
	})
}
