package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeLoadDate represents a full load of one (asset, date).
	JobTypeLoadDate JobType = "load_date"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// Terminal reports whether no further transitions will happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ErrDuplicateDate is returned when a date is published while a job for the
// same asset and date is still queued or running. Two runs for one date would
// interleave their deletes and appends.
var ErrDuplicateDate = errors.New("date already queued")

// LoadJob represents a job to load one processing date.
type LoadJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Asset is the asset label, e.g. BTC.
	Asset string `json:"asset"`

	// Date is the processing date.
	Date civil.Date `json:"date"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// PartialTables lists the tables the last attempt left empty for Date.
	PartialTables []string `json:"partial_tables,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *LoadJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *LoadJob) GetType() JobType {
	return JobTypeLoadDate
}

// GetStatus implements the Job interface.
func (j *LoadJob) GetStatus() JobStatus {
	return j.Status
}

// Key identifies the (asset, date) the job writes.
func (j *LoadJob) Key() string {
	return strings.ToUpper(j.Asset) + "/" + j.Date.String()
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishLoad publishes a load job. It fails with ErrDuplicateDate if
	// the same asset and date is still in flight.
	PublishLoad(ctx context.Context, job *LoadJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *LoadJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*LoadJob, error)

	// ListJobs retrieves jobs with optional filtering, ordered by date.
	ListJobs(ctx context.Context, filter JobFilter) ([]*LoadJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Date filters jobs by processing date; the zero Date matches all.
	Date civil.Date

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
