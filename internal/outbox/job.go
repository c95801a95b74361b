package outbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Job is one pending unread bump for one recipient of one message.
type Job struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	RecipientID    string    `json:"recipient_id"`
	At             time.Time `json:"at"`
	Attempts       int       `json:"attempts"`
}

// Key identifies a job. Putting a job with an existing key replaces it.
func (j Job) Key() string {
	return j.MessageID + ":" + j.RecipientID
}

// Store persists pending jobs until they are applied.
type Store interface {
	Put(ctx context.Context, jobs ...Job) error
	// List returns up to limit jobs, oldest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Job, error)
	Delete(ctx context.Context, keys ...string) error
	Len(ctx context.Context) (int, error)
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Put(_ context.Context, jobs ...Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range jobs {
		s.jobs[j.Key()] = j
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Job, error) {
	s.mu.Lock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	s.mu.Unlock()
	return oldestFirst(out, limit), nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.jobs, k)
	}
	return nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs), nil
}

func oldestFirst(jobs []Job, limit int) []Job {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].At.Equal(jobs[k].At) {
			return jobs[i].Key() < jobs[k].Key()
		}
		return jobs[i].At.Before(jobs[k].At)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}
