package classifier

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

type memoryJob struct {
	rec     JobRecord
	batches map[int][]ClassifiedSentence
}

// MemoryStore keeps jobs in process memory. Jobs do not survive a restart.
// Finished jobs are dropped once ttl has passed since they finished; jobs
// still queued or running are never dropped.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*memoryJob
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryStore returns an empty store. A zero ttl keeps jobs forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*memoryJob),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (s *MemoryStore) expired(j *memoryJob, now time.Time) bool {
	if s.ttl <= 0 || !j.rec.Status.Terminal() || j.rec.CompletedAt == nil {
		return false
	}
	return now.Sub(*j.rec.CompletedAt) >= s.ttl
}

// sweep drops expired jobs. Callers hold the write lock.
func (s *MemoryStore) sweep(now time.Time) {
	for id, j := range s.jobs {
		if s.expired(j, now) {
			delete(s.jobs, id)
		}
	}
}

// Len is the number of jobs currently held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *MemoryStore) Create(_ context.Context, rec JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(s.now())
	if _, ok := s.jobs[rec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, rec.ID)
	}
	if rec.Status == "" {
		rec.Status = StatusQueued
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.jobs[rec.ID] = &memoryJob{rec: rec, batches: make(map[int][]ClassifiedSentence)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok || s.expired(j, s.now()) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return snapshot(j.rec, j.batches), nil
}

func (s *MemoryStore) MarkRunning(_ context.Context, id string) error {
	return s.update(id, func(j *memoryJob) error {
		return j.rec.transition(StatusRunning, s.now())
	})
}

func (s *MemoryStore) AppendBatch(_ context.Context, id string, batch int, sentences []ClassifiedSentence) error {
	return s.update(id, func(j *memoryJob) error {
		if j.rec.Status.Terminal() {
			return fmt.Errorf("%w: %s", ErrJobTerminal, id)
		}
		if batch < 0 || batch >= j.rec.TotalBatches {
			return fmt.Errorf("batch %d out of range for job %s", batch, id)
		}
		if _, done := j.batches[batch]; done {
			return nil
		}
		j.batches[batch] = slices.Clone(sentences)
		return nil
	})
}

func (s *MemoryStore) Complete(_ context.Context, id string) error {
	return s.update(id, func(j *memoryJob) error {
		return j.rec.transition(StatusCompleted, s.now())
	})
}

func (s *MemoryStore) Fail(_ context.Context, id, reason string) error {
	return s.update(id, func(j *memoryJob) error {
		if err := j.rec.transition(StatusFailed, s.now()); err != nil {
			return err
		}
		j.rec.Error = reason
		return nil
	})
}

func (s *MemoryStore) ListIncomplete(_ context.Context) ([]PendingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []PendingJob
	for _, j := range s.jobs {
		if j.rec.Status.Terminal() {
			continue
		}
		committed := make(map[int]bool, len(j.batches))
		for i := range j.batches {
			committed[i] = true
		}
		out = append(out, PendingJob{Record: j.rec, Committed: committed})
	}
	slices.SortFunc(out, func(a, b PendingJob) int {
		return a.Record.CreatedAt.Compare(b.Record.CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) update(id string, fn func(*memoryJob) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return fn(j)
}
