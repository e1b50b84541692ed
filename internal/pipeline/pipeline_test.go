package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/nao1215/earnscan/internal/model"
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

func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.continueOnError {
			t.Error("expected continueOnError to default to false")
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

func TestPipelineStepNames(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: "discover"})
	p.AddSteps(&mockStep{name: "listing"}, &mockStep{name: "detail"})

	got := strings.Join(p.StepNames(), ",")
	if got != "discover,listing,detail" {
		t.Errorf("got %q", got)
	}
}

func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		p := New()
		for _, name := range []string{"a", "b", "c"} {
			p.AddStep(&mockStep{name: name, doFunc: func(context.Context, *model.Run) error {
				order = append(order, name)
				return nil
			}})
		}

		run := model.NewRun("r1", nil)
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatal(err)
		}
		if strings.Join(order, "") != "abc" {
			t.Errorf("order = %v", order)
		}
	})

	t.Run("stops on first error by default", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		last := &mockStep{name: "last"}
		p := New()
		p.AddSteps(
			&mockStep{name: "fails", doFunc: func(context.Context, *model.Run) error { return boom }},
			last,
		)

		run := model.NewRun("r2", nil)
		if err := p.Execute(context.Background(), run); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if last.callCount != 0 {
			t.Error("step after failure should not run")
		}
		if len(run.Errors) != 1 || !errors.Is(run.Errors[0], boom) {
			t.Errorf("run errors = %v", run.Errors)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		last := &mockStep{name: "last"}
		p := New(WithContinueOnError(true))
		p.AddSteps(
			&mockStep{name: "fails", doFunc: func(context.Context, *model.Run) error { return errors.New("x") }},
			last,
		)

		if err := p.Execute(context.Background(), model.NewRun("r3", nil)); err != nil {
			t.Fatal(err)
		}
		if last.callCount != 1 {
			t.Error("step after failure should run")
		}
	})

	t.Run("cancelled context marks the run", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "never"}
		p := New()
		p.AddStep(step)

		run := model.NewRun("r4", nil)
		if err := p.Execute(ctx, run); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 || !run.Summary.Canceled {
			t.Errorf("callCount=%d canceled=%v", step.callCount, run.Summary.Canceled)
		}
	})

	t.Run("cancellation inside a step stops the pipeline", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		last := &mockStep{name: "last"}
		p := New(WithContinueOnError(true))
		p.AddSteps(
			&mockStep{name: "cancels", doFunc: func(ctx context.Context, _ *model.Run) error {
				cancel()
				return ctx.Err()
			}},
			last,
		)

		run := model.NewRun("r5", nil)
		if err := p.Execute(ctx, run); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if last.callCount != 0 || !run.Summary.Canceled {
			t.Errorf("callCount=%d canceled=%v", last.callCount, run.Summary.Canceled)
		}
	})
}

func TestPipelineWithLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p := New(WithLogger(logger))
	p.AddStep(&mockStep{name: "logged-step"})
	if err := p.Execute(context.Background(), model.NewRun("r6", nil)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "logged-step") {
		t.Errorf("expected step name in log output, got %q", buf.String())
	}
}
