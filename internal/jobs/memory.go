package jobs

import (
	"context"
	"sync"
	"time"

	apperrors "avatarsynth/internal/pkg/errors"
)

type memoryEntry struct {
	job       Job
	expiresAt time.Time
}

// MemoryStore keeps jobs in process memory. Expired records are dropped lazily.
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	jobs    map[string]memoryEntry
	results map[string]string
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		jobs:    make(map[string]memoryEntry),
		results: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	if _, ok := s.jobs[j.ID]; ok {
		return apperrors.Newf(apperrors.CodeConflict, "job already exists: %s", j.ID).
			WithField("job_id", j.ID)
	}
	s.jobs[j.ID] = memoryEntry{job: *j, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[id]
	if !ok || s.expired(e) {
		return nil, apperrors.NotFound("job", id)
	}
	j := e.job
	return &j, nil
}

func (s *MemoryStore) Update(ctx context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[j.ID]
	if !ok {
		return apperrors.NotFound("job", j.ID)
	}
	if s.expired(e) {
		s.dropLocked(j.ID, e)
		return apperrors.NotFound("job", j.ID)
	}
	if e.job.ResultURL != "" && (e.job.ResultURL != j.ResultURL || !j.Succeeded()) {
		s.forgetResultLocked(j.ID, e.job.ResultURL)
	}
	s.jobs[j.ID] = memoryEntry{job: *j, expiresAt: s.now().Add(s.ttl)}
	if j.Succeeded() {
		s.results[resultDigest(j.ResultURL)] = j.ID
	}
	return nil
}

func (s *MemoryStore) FindByResult(ctx context.Context, resultURL string) (*Job, error) {
	s.mu.RLock()
	id, ok := s.results[resultDigest(resultURL)]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("video", resultURL)
	}

	j, err := s.Get(ctx, id)
	if err != nil || !j.Succeeded() || j.ResultURL != resultURL {
		return nil, apperrors.NotFound("video", resultURL)
	}
	return j, nil
}

// sweepLocked drops every expired job together with its allow-list entry.
func (s *MemoryStore) sweepLocked() {
	for id, e := range s.jobs {
		if s.expired(e) {
			s.dropLocked(id, e)
		}
	}
}

func (s *MemoryStore) dropLocked(id string, e memoryEntry) {
	delete(s.jobs, id)
	if e.job.ResultURL != "" {
		s.forgetResultLocked(id, e.job.ResultURL)
	}
}

func (s *MemoryStore) forgetResultLocked(id, resultURL string) {
	d := resultDigest(resultURL)
	if s.results[d] == id {
		delete(s.results, d)
	}
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return s.ttl > 0 && !s.now().Before(e.expiresAt)
}
