// internal/storage/store.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"rentledger/internal/metrics"
	"rentledger/internal/model"
)

// SeedFunc builds the dataset used when no snapshot exists yet.
type SeedFunc func(now time.Time) (*Dataset, error)

// Store owns the in-memory dataset and its durable snapshot. All mutations go
// through Update, which serializes writers and persists before committing.
type Store struct {
	backend SnapshotBackend
	log     logrus.FieldLogger
	seed    SeedFunc
	now     func() time.Time

	mu   sync.RWMutex
	data *Dataset
}

type Option func(*Store)

func WithSeed(seed SeedFunc) Option {
	return func(s *Store) { s.seed = seed }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(backend SnapshotBackend, log logrus.FieldLogger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		log:     log.WithField("component", "store"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.seed = func(now time.Time) (*Dataset, error) { return EmptyDataset(now), nil }
	for _, opt := range opts {
		opt(s)
	}
	s.data = EmptyDataset(s.now())
	return s
}

// Load reads the snapshot. A missing snapshot is seeded and persisted; an
// unreadable or corrupt one is logged and replaced by an empty dataset in
// memory so the service stays up. Only a failure to persist the seed is
// returned.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.backend.Read(ctx)
	switch {
	case errors.Is(err, ErrSnapshotNotFound):
		ds, seedErr := s.seed(s.now())
		if seedErr != nil {
			s.log.WithError(seedErr).Error("seeding dataset failed, starting empty")
			ds = EmptyDataset(s.now())
		}
		ds.normalize()
		s.mu.Lock()
		s.data = ds
		s.mu.Unlock()
		if err := s.Save(ctx); err != nil {
			return fmt.Errorf("persist seed dataset: %w", err)
		}
		s.log.Info("snapshot not found, seed data initialized")

	case err != nil:
		s.log.WithError(err).Error("snapshot unreadable, continuing with empty dataset")
		s.replace(EmptyDataset(s.now()))

	default:
		var ds Dataset
		if err := json.Unmarshal(raw, &ds); err != nil {
			s.log.WithError(err).Error("snapshot corrupt, continuing with empty dataset")
			s.replace(EmptyDataset(s.now()))
			return nil
		}
		ds.normalize()
		s.replace(&ds)
		s.log.WithFields(logrus.Fields{
			"tenants":  len(ds.Tenants),
			"payments": len(ds.Payments),
			"images":   len(ds.Images),
		}).Info("snapshot loaded")
	}
	return nil
}

func (s *Store) replace(ds *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = ds
	observeRecords(ds)
}

// Save writes the current dataset to the backend.
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persist(ctx, s.data)
}

func (s *Store) persist(ctx context.Context, ds *Dataset) error {
	doc, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		metrics.SnapshotWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: encode snapshot: %v", model.ErrInternal, err)
	}
	if err := s.backend.Write(ctx, doc); err != nil {
		metrics.SnapshotWrites.WithLabelValues("error").Inc()
		s.log.WithError(err).Error("snapshot write failed")
		return fmt.Errorf("%w: %v", model.ErrInternal, err)
	}
	metrics.SnapshotWrites.WithLabelValues("ok").Inc()
	metrics.SnapshotBytes.Set(float64(len(doc)))
	observeRecords(ds)
	return nil
}

// View runs fn against a copy of the dataset.
func (s *Store) View(ctx context.Context, fn func(ds *Dataset) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.data.Clone()
	s.mu.RUnlock()
	return fn(snapshot)
}

// Update runs fn on a copy of the dataset while holding the writer lock,
// persists the copy and only then makes it current. If fn or the write fails
// the in-memory dataset is left untouched.
func (s *Store) Update(ctx context.Context, fn func(ds *Dataset) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.data.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// Now is the store clock, shared with the components so tests can pin time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Counts returns the collection sizes.
func (s *Store) Counts() (tenants, payments, images int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Tenants), len(s.data.Payments), len(s.data.Images)
}

func observeRecords(ds *Dataset) {
	metrics.Records.WithLabelValues("tenants").Set(float64(len(ds.Tenants)))
	metrics.Records.WithLabelValues("payments").Set(float64(len(ds.Payments)))
	metrics.Records.WithLabelValues("images").Set(float64(len(ds.Images)))
}
