package pipeline

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/dvloznov/crypto-etl/internal/domain"
	"github.com/dvloznov/crypto-etl/internal/logger"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially. The first failure aborts the run and
// is returned as a *domain.StageError.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for _, step := range p.steps {
		stage := step.Stage()
		if err := ctx.Err(); err != nil {
			return &domain.StageError{Stage: stage, Err: err}
		}
		stepCtx := logger.WithContext(ctx, logger.FromContext(ctx).With().Str("stage", string(stage)).Logger())
		if err := step.Execute(stepCtx, state); err != nil {
			return &domain.StageError{Stage: stage, Err: err}
		}
	}
	return nil
}

// Options configures one run.
type Options struct {
	Asset string
	Date  civil.Date
	Width BarWidth

	// Workers is the number of join shards.
	Workers int

	// ConcurrentLoad loads the two tables in parallel.
	ConcurrentLoad bool
}

func (o Options) withDefaults() Options {
	if o.Asset == "" {
		o.Asset = DefaultAsset
	}
	if o.Width.Duration == 0 {
		o.Width = DefaultBarWidth
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	return o
}

// NewLoadPipeline creates the standard six-step pipeline for one date.
func NewLoadPipeline(source IngestionSource, warehouse WarehouseClient, opts Options) *Pipeline {
	return NewPipeline(
		&SourceStep{Source: source},
		&NormalizeStep{},
		&ConvertStep{},
		&JoinStep{Workers: opts.Workers},
		&CastStep{},
		&LoadStep{Loader: NewPartitionLoader(warehouse), Concurrent: opts.ConcurrentLoad},
	)
}

// Run loads one (asset, date): fetch, transform, then replace the date in
// both warehouse tables. Re-running a date with unchanged input leaves the
// tables in the same state.
func Run(ctx context.Context, opts Options, source IngestionSource, warehouse WarehouseClient) (*PipelineState, error) {
	opts = opts.withDefaults()
	if !opts.Date.IsValid() {
		return nil, fmt.Errorf("Run: invalid processing date %s", opts.Date)
	}

	state := &PipelineState{
		Asset: strings.ToUpper(opts.Asset),
		Date:  opts.Date,
		Width: opts.Width,
		RunID: uuid.NewString(),
	}

	log := logger.WithFields(logger.FromContext(ctx), map[string]any{
		"run_id":    state.RunID,
		"asset":     state.Asset,
		"date":      state.Date.String(),
		"frequency": state.Width.Label,
	})
	ctx = logger.WithContext(ctx, log)

	log.Info().Msg("Starting run")
	if err := NewLoadPipeline(source, warehouse, opts).Execute(ctx, state); err != nil {
		log.Error().Err(err).Str("state", state.State.String()).Msg(domain.Describe(err))
		return state, err
	}

	for _, r := range state.Results {
		log.Info().
			Str("table", r.Table.Name).
			Int64("deleted", r.Deleted).
			Int("appended", r.Appended).
			Msg("Table loaded")
	}
	log.Info().Msg("Run complete")
	return state, nil
}
