package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nao1215/prodscrape/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, run *model.Run) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, run *model.Run) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, run)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()

		if p == nil {
			t.Fatal("expected non-nil pipeline")
		}
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))

		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	t.Run("adds single step", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddStep(&mockStep{name: "test-step"})

		if p.StepCount() != 1 {
			t.Errorf("expected 1 step, got %d", p.StepCount())
		}
	})

	t.Run("maintains step order with finally steps last", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddFinally(&mockStep{name: "save"})
		p.AddSteps(&mockStep{name: "discover"}, &mockStep{name: "scrape"})

		want := []string{"discover", "scrape", "save"}
		if got := p.StepNames(); !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
		if p.StepCount() != 2 {
			t.Errorf("expected 2 main steps, got %d", p.StepCount())
		}
	})
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *model.Run) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New()
		p.AddSteps(record("a"), record("b"))
		p.AddFinally(record("c"))

		run := model.NewRun("https://www.i-machine.net/")
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
			t.Errorf("unexpected order %v", order)
		}
		if run.FinishedAt.IsZero() {
			t.Error("expected FinishedAt to be set")
		}
		if run.Failed() || run.Interrupted {
			t.Errorf("expected clean run, got error=%q interrupted=%v", run.Error, run.Interrupted)
		}
	})

	t.Run("stops on first error by default", func(t *testing.T) {
		t.Parallel()

		stepErr := errors.New("listing unavailable")
		failing := &mockStep{name: "discover", doFunc: func(context.Context, *model.Run) error { return stepErr }}
		next := &mockStep{name: "scrape"}
		final := &mockStep{name: "save"}

		p := New()
		p.AddSteps(failing, next)
		p.AddFinally(final)

		run := model.NewRun("https://www.i-machine.net/")
		err := p.Execute(context.Background(), run)

		if !errors.Is(err, stepErr) {
			t.Errorf("expected step error, got %v", err)
		}
		if next.callCount != 0 {
			t.Error("expected second step to be skipped")
		}
		if final.callCount != 1 {
			t.Error("expected finally step to run after failure")
		}
		if run.Error != stepErr.Error() {
			t.Errorf("expected run error %q, got %q", stepErr.Error(), run.Error)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		first := errors.New("first")
		p := New(WithContinueOnError(true))
		a := &mockStep{name: "a", doFunc: func(context.Context, *model.Run) error { return first }}
		b := &mockStep{name: "b", doFunc: func(context.Context, *model.Run) error { return errors.New("second") }}
		p.AddSteps(a, b)

		run := model.NewRun("u")
		err := p.Execute(context.Background(), run)

		if !errors.Is(err, first) {
			t.Errorf("expected first error, got %v", err)
		}
		if b.callCount != 1 {
			t.Error("expected second step to run")
		}
		if run.Error != "first" {
			t.Errorf("expected first error recorded, got %q", run.Error)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "discover"}
		var finalCtxErr error
		final := &mockStep{name: "save", doFunc: func(ctx context.Context, _ *model.Run) error {
			finalCtxErr = ctx.Err()
			return nil
		}}

		p := New()
		p.AddStep(step)
		p.AddFinally(final)

		run := model.NewRun("u")
		err := p.Execute(ctx, run)

		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("expected step not to run")
		}
		if !run.Interrupted {
			t.Error("expected run to be marked interrupted")
		}
		if run.Failed() {
			t.Errorf("expected no run error for interrupt, got %q", run.Error)
		}
		if final.callCount != 1 || finalCtxErr != nil {
			t.Errorf("expected finally step with live context, calls=%d err=%v", final.callCount, finalCtxErr)
		}
	})

	t.Run("step returning cancellation marks interrupt", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddStep(&mockStep{name: "scrape", doFunc: func(context.Context, *model.Run) error {
			return context.DeadlineExceeded
		}})

		run := model.NewRun("u")
		if err := p.Execute(context.Background(), run); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline error, got %v", err)
		}
		if !run.Interrupted || run.Failed() {
			t.Errorf("expected interrupted run without error, got %+v", run)
		}
	})

	t.Run("joins finally step errors", func(t *testing.T) {
		t.Parallel()

		saveErr := errors.New("disk full")
		p := New()
		p.AddStep(&mockStep{name: "discover"})
		p.AddFinally(&mockStep{name: "save", doFunc: func(context.Context, *model.Run) error { return saveErr }})

		run := model.NewRun("u")
		if err := p.Execute(context.Background(), run); !errors.Is(err, saveErr) {
			t.Errorf("expected save error, got %v", err)
		}
		if run.Failed() {
			t.Error("finally step errors must not mark the run failed")
		}
	})

	t.Run("sets FinishedAt before finally steps", func(t *testing.T) {
		t.Parallel()

		fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
		p := New()
		p.now = func() time.Time { return fixed }

		var seen time.Time
		p.AddFinally(&mockStep{name: "save", doFunc: func(_ context.Context, run *model.Run) error {
			seen = run.FinishedAt
			return nil
		}})

		if err := p.Execute(context.Background(), model.NewRun("u")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !seen.Equal(fixed) {
			t.Errorf("expected %v, got %v", fixed, seen)
		}
	})
}
