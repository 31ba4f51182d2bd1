package domain

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

// Error kinds. Every failure returned by a run wraps exactly one of these.
var (
	ErrSchemaMismatch      = errors.New("schema mismatch")
	ErrDuplicatePriceBar   = errors.New("duplicate price bar")
	ErrConversionOverflow  = errors.New("conversion overflow")
	ErrWrite               = errors.New("warehouse write failed")
	ErrSourceUnavailable   = errors.New("ingestion source unavailable")
	ErrRowOutsidePartition = errors.New("row outside processing date")

	// ErrWriteUnconfirmed marks a write that was submitted but whose outcome
	// is unknown to the caller. It may have committed.
	ErrWriteUnconfirmed = errors.New("warehouse write submitted, outcome unknown")
)

// Stage names a pipeline stage for error reporting.
type Stage string

const (
	StageSource    Stage = "source"
	StageNormalize Stage = "normalize"
	StageConvert   Stage = "convert"
	StageJoin      Stage = "join"
	StageCast      Stage = "cast"
	StageLoad      Stage = "load"
)

// StageError reports which stage aborted a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// PartialLoadError is returned when a table's rows for Date were deleted
// but the replacement rows were never appended. The table holds zero rows
// for Date until the run is repeated.
type PartialLoadError struct {
	Table   string
	Date    civil.Date
	Deleted int64
	Err     error
}

func (e *PartialLoadError) Error() string {
	return fmt.Sprintf("partial load: %s may have zero rows for %s (%d deleted, replacement not appended): %v",
		e.Table, e.Date, e.Deleted, e.Err)
}

func (e *PartialLoadError) Unwrap() error {
	return e.Err
}

// PartialTables returns the tables named by any PartialLoadError inside err.
func PartialTables(err error) []string {
	var tables []string
	collectPartial(err, &tables)
	return tables
}

func collectPartial(err error, out *[]string) {
	if err == nil {
		return
	}
	if p, ok := err.(*PartialLoadError); ok {
		*out = append(*out, p.Table)
		return
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			collectPartial(e, out)
		}
	case interface{ Unwrap() error }:
		collectPartial(u.Unwrap(), out)
	}
}

// FailedStage returns the stage recorded in err, or "" if none.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Describe renders err for operators: the failing stage and any tables
// left empty for the processing date.
func Describe(err error) string {
	var b strings.Builder
	if s := FailedStage(err); s != "" {
		fmt.Fprintf(&b, "failed stage: %s", s)
	} else {
		b.WriteString("run failed")
	}
	if tables := PartialTables(err); len(tables) > 0 {
		fmt.Fprintf(&b, "; tables left with zero rows for the date (re-run required): %s",
			strings.Join(tables, ", "))
	}
	return b.String()
}

// RunError collects the per-table load failures of one run.
type RunError struct {
	Date civil.Date
	Errs []error
}

func (e *RunError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("run %s: %s", e.Date, strings.Join(msgs, "; "))
}

func (e *RunError) Unwrap() []error {
	return e.Errs
}

// PartialTables lists the tables this run left with zero rows for Date.
func (e *RunError) PartialTables() []string {
	return PartialTables(e)
}
