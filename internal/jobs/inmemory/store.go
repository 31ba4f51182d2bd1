package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/crypto-etl/internal/jobs"
)

// Store is an in-memory implementation of JobStore.
// It is safe for concurrent use. Data is lost when the process exits.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.LoadJob
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.LoadJob),
	}
}

func cloneJob(job *jobs.LoadJob) *jobs.LoadJob {
	c := *job
	c.PartialTables = slices.Clone(job.PartialTables)
	return &c
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.LoadJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.JobID] = cloneJob(job)
	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.LoadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return cloneJob(job), nil
}

// ListJobs implements the JobStore interface. Results are ordered by date,
// then creation time.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.LoadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.LoadJob
	for _, job := range s.jobs {
		if !filter.Date.IsZero() && job.Date != filter.Date {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		result = append(result, cloneJob(job))
	}

	slices.SortFunc(result, func(a, b *jobs.LoadJob) int {
		if c := compareDates(a.Date, b.Date); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.LoadJob{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

func compareDates(a, b civil.Date) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
