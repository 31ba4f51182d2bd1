package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/crypto-etl/internal/jobs"
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// At most one job per (asset, date) is in flight at a time.
type Queue struct {
	jobChan   chan *jobs.LoadJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	mu        sync.Mutex
	inflight  map[string]string
	store     jobs.JobStore
	workers   int
	retryBase time.Duration
	closed    bool
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishLoad blocks;
// workers is the number of jobs processed concurrently.
func NewQueue(bufferSize, workers int, store jobs.JobStore) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		jobChan:   make(chan *jobs.LoadJob, bufferSize),
		closeChan: make(chan struct{}),
		inflight:  make(map[string]string),
		store:     store,
		workers:   workers,
		retryBase: time.Second,
	}
}

// PublishLoad implements the Publisher interface.
func (q *Queue) PublishLoad(ctx context.Context, job *jobs.LoadJob) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	key := job.Key()
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue is closed")
	}
	if id, ok := q.inflight[key]; ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s is in flight as job %s", jobs.ErrDuplicateDate, key, id)
	}
	q.inflight[key] = job.JobID
	q.pending.Add(1)
	q.mu.Unlock()

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			q.release(job)
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	if err := q.enqueue(ctx, job); err != nil {
		q.release(job)
		return err
	}
	return nil
}

func (q *Queue) enqueue(ctx context.Context, job *jobs.LoadJob) error {
	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// release ends a job's time in flight.
func (q *Queue) release(job *jobs.LoadJob) {
	q.mu.Lock()
	delete(q.inflight, job.Key())
	q.mu.Unlock()
	q.pending.Done()
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.LoadJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	q.save(ctx, job)

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err == nil {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		q.save(ctx, job)
		q.release(job)
		return
	}

	job.Error = err.Error()
	if job.RetryCount >= job.MaxRetries || ctx.Err() != nil {
		job.Status = jobs.JobStatusFailed
		q.save(ctx, job)
		q.release(job)
		return
	}

	job.RetryCount++
	job.Status = jobs.JobStatusRetrying
	q.save(ctx, job)

	// The job stays in flight while it waits, so its date cannot be republished.
	wait := time.Duration(job.RetryCount) * q.retryBase
	time.AfterFunc(wait, func() {
		job.Status = jobs.JobStatusPending
		job.StartedAt = nil
		job.CompletedAt = nil
		if err := q.enqueue(ctx, job); err != nil {
			job.Status = jobs.JobStatusFailed
			job.Error = fmt.Sprintf("requeue: %v (last error: %s)", err, job.Error)
			q.save(context.Background(), job)
			q.release(job)
		}
	})
}

func (q *Queue) save(ctx context.Context, job *jobs.LoadJob) {
	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

// Wait blocks until every published job is completed or failed.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
