package inmemory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/crypto-etl/internal/jobs"
)

func date(day int) civil.Date {
	return civil.Date{Year: 2024, Month: time.March, Day: day}
}

func waitFor(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestQueue_ProcessesAllJobs(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 3, store)
	defer q.Close()

	var mu sync.Mutex
	seen := map[civil.Date]int{}
	handler := func(ctx context.Context, job jobs.Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.(*jobs.LoadJob).Date]++
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for day := 1; day <= 5; day++ {
		if err := q.PublishLoad(context.Background(), &jobs.LoadJob{Asset: "BTC", Date: date(day)}); err != nil {
			t.Fatalf("PublishLoad: %v", err)
		}
	}
	waitFor(t, q)

	if len(seen) != 5 {
		t.Errorf("processed %d dates, want 5", len(seen))
	}
	completed, err := store.ListJobs(context.Background(), jobs.JobFilter{Status: jobs.JobStatusCompleted})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(completed) != 5 {
		t.Fatalf("got %d completed jobs, want 5", len(completed))
	}
	for i, j := range completed {
		if j.Date != date(i+1) {
			t.Errorf("job %d date = %s, want %s", i, j.Date, date(i+1))
		}
	}
}

func TestQueue_RejectsDuplicateDateInFlight(t *testing.T) {
	q := NewQueue(10, 1, NewStore())
	defer q.Close()

	release := make(chan struct{})
	handler := func(ctx context.Context, job jobs.Job) error {
		<-release
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx := context.Background()
	if err := q.PublishLoad(ctx, &jobs.LoadJob{Asset: "BTC", Date: date(5)}); err != nil {
		t.Fatalf("first PublishLoad: %v", err)
	}
	err := q.PublishLoad(ctx, &jobs.LoadJob{Asset: "btc", Date: date(5)})
	if !errors.Is(err, jobs.ErrDuplicateDate) {
		t.Fatalf("second PublishLoad error = %v, want ErrDuplicateDate", err)
	}
	if err := q.PublishLoad(ctx, &jobs.LoadJob{Asset: "BTC", Date: date(6)}); err != nil {
		t.Fatalf("other date PublishLoad: %v", err)
	}

	close(release)
	waitFor(t, q)

	// Once finished, the date can be loaded again.
	if err := q.PublishLoad(ctx, &jobs.LoadJob{Asset: "BTC", Date: date(5)}); err != nil {
		t.Fatalf("republish after completion: %v", err)
	}
	waitFor(t, q)
}

func TestQueue_RetriesThenFails(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	q.retryBase = time.Millisecond
	defer q.Close()

	var calls atomic.Int32
	handler := func(ctx context.Context, job jobs.Job) error {
		calls.Add(1)
		return errors.New("warehouse unavailable")
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.LoadJob{Asset: "BTC", Date: date(5), MaxRetries: 2}
	if err := q.PublishLoad(context.Background(), job); err != nil {
		t.Fatalf("PublishLoad: %v", err)
	}
	waitFor(t, q)

	if got := calls.Load(); got != 3 {
		t.Errorf("handler called %d times, want 3", got)
	}
	stored, err := store.GetJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Status != jobs.JobStatusFailed || stored.RetryCount != 2 {
		t.Errorf("job = %s after %d retries, want failed after 2", stored.Status, stored.RetryCount)
	}
	if stored.Error != "warehouse unavailable" {
		t.Errorf("Error = %q", stored.Error)
	}
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(1, 1, nil)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.PublishLoad(context.Background(), &jobs.LoadJob{Asset: "BTC", Date: date(5)}); err == nil {
		t.Error("expected error publishing to a closed queue")
	}
	if err := q.Start(context.Background(), nil); err == nil {
		t.Error("expected error starting a closed queue")
	}
}
