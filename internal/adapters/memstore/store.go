// Package memstore provides the in-memory job store.
package memstore

import (
	"sync"
	"time"

	"ytdlserver/internal/core/domain"
	"ytdlserver/internal/core/ports"
)

// Store is a concurrency-safe in-memory implementation of ports.Store.
// Records are stored by value, so every update is an atomic swap and readers
// always receive a consistent copy.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job

	ttl       time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a store that keeps records for the lifetime of the process.
func New() *Store {
	return &Store{
		jobs: make(map[string]domain.Job),
		done: make(chan struct{}),
	}
}

// NewWithEviction creates a store whose janitor removes terminal jobs older
// than ttl, sweeping every sweep interval.
func NewWithEviction(ttl, sweep time.Duration) *Store {
	s := New()
	s.ttl = ttl
	if ttl > 0 {
		go s.janitor(sweep)
	}
	return s
}

// Create inserts a new job record.
func (s *Store) Create(job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return ports.ErrExists
	}
	s.jobs[job.ID] = job
	return nil
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ports.ErrNotFound
	}
	return job, nil
}

// Update applies mutate to a copy of the record and swaps it in atomically.
func (s *Store) Update(id string, mutate func(*domain.Job) error) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ports.ErrNotFound
	}
	if err := mutate(&job); err != nil {
		return domain.Job{}, err
	}
	s.jobs[id] = job
	return job, nil
}

// Delete removes the record for id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ports.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Close stops the eviction janitor, if any.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Store) janitor(sweep time.Duration) {
	if sweep <= 0 {
		sweep = time.Minute
	}
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.evict(now)
		}
	}
}

// evict removes terminal jobs not updated within the TTL. Jobs still pending
// or downloading are never evicted.
func (s *Store) evict(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
		}
	}
}
