package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/prodscrape/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, each one receiving the run that earlier
// steps filled in.
type Step interface {
	// Do executes the pipeline step.
	// Returns an error if the step fails critically; per-page problems
	// are recorded in the run and return nil.
	Do(ctx context.Context, run *model.Run) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// finally contains steps that run after steps regardless of outcome.
	finally []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool

	// now returns the current time. Replaced in tests.
	now func() time.Time
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. The first error is still recorded in the run.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:   make([]Step, 0),
		finally: make([]Step, 0),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddFinally appends steps that run once the main steps are done, even
// after a failure or cancellation. They receive a context that is not
// cancelled with the parent, so a partial run can still be exported and
// saved after Ctrl-C.
func (p *Pipeline) AddFinally(steps ...Step) {
	p.finally = append(p.finally, steps...)
}

// Execute runs all pipeline steps in sequence, then the finally steps.
//
// Cancellation marks the run as interrupted. Any other step error is
// stored in run.Error. FinishedAt is set before the finally steps run.
// The returned error joins the main step error with any finally step
// errors.
func (p *Pipeline) Execute(ctx context.Context, run *model.Run) error {
	err := p.execute(ctx, run)
	run.FinishedAt = p.now()

	finalCtx := context.WithoutCancel(ctx)
	errs := []error{err}
	for _, step := range p.finally {
		p.logger.Debug("executing final step", "step", step.Name(), "listing", run.ListingURL)
		if ferr := step.Do(finalCtx, run); ferr != nil {
			p.logger.Error("final step failed", "step", step.Name(), "error", ferr)
			errs = append(errs, ferr)
		}
	}

	return errors.Join(errs...)
}

func (p *Pipeline) execute(ctx context.Context, run *model.Run) error {
	var firstErr error

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled", "step", step.Name(), "reason", err)
			run.Interrupted = true
			return err
		}

		p.logger.Debug("executing step", "step", step.Name(), "listing", run.ListingURL)

		err := step.Do(ctx, run)
		if err == nil {
			p.logger.Debug("step completed", "step", step.Name())
			continue
		}

		if isCancellation(err) {
			p.logger.Warn("step interrupted", "step", step.Name(), "reason", err)
			run.Interrupted = true
			return err
		}

		p.logger.Error("step failed", "step", step.Name(), "listing", run.ListingURL, "error", err)
		if firstErr == nil {
			firstErr = err
			run.Error = err.Error()
		}
		if !p.continueOnError {
			return err
		}
	}

	return firstErr
}

// StepCount returns the number of main steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order, main
// steps first.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps)+len(p.finally))
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finally {
		names = append(names, step.Name())
	}
	return names
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
