package domain_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

func TestPipeline_ShortCircuitsOnFirstError(t *testing.T) {
	var ran []string
	step := func(name string, err error) domain.Step {
		return domain.Step{Name: name, Do: func(any) (any, error) {
			ran = append(ran, name)
			return nil, err
		}}
	}
	boom := errors.New("boom")

	res, err := domain.NewPipeline("test", quietLogger()).
		Then(step("a", nil), step("b", boom), step("c", nil)).
		Run()

	var stepErr *domain.StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "b" {
		t.Fatalf("err = %v, want StepError for b", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err does not wrap cause: %v", err)
	}
	if res.Outcome != domain.OutcomeFailed {
		t.Errorf("Outcome = %q, want %q", res.Outcome, domain.OutcomeFailed)
	}
	if !equalStrings(ran, []string{"a", "b"}) {
		t.Errorf("ran = %v, want [a b]", ran)
	}
	if !equalStrings(res.Steps, []string{"a"}) {
		t.Errorf("Steps = %v, want [a]", res.Steps)
	}
}

func TestPipeline_CleanStop(t *testing.T) {
	ranLast := false
	res, err := domain.NewPipeline("test", quietLogger()).Then(
		domain.Step{Name: "check", Do: func(any) (any, error) {
			return nil, domain.Stop(domain.OutcomeNothingToDo, "nothing for %s", "d1")
		}},
		domain.Step{Name: "mutate", Do: func(any) (any, error) {
			ranLast = true
			return nil, nil
		}},
	).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != domain.OutcomeNothingToDo || res.Detail != "nothing for d1" {
		t.Errorf("res = %+v", res)
	}
	if ranLast {
		t.Error("step after a stop must not run")
	}
}

func TestPipeline_StopWithError(t *testing.T) {
	res, err := domain.NewPipeline("test", quietLogger()).Then(
		domain.Step{Name: "check", Do: func(any) (any, error) {
			return nil, domain.StopWithError(domain.OutcomeUnexpectedState, domain.ErrUnexpectedState, "weird")
		}},
	).Run()
	if !errors.Is(err, domain.ErrUnexpectedState) {
		t.Fatalf("err = %v, want ErrUnexpectedState", err)
	}
	if res.Outcome != domain.OutcomeUnexpectedState {
		t.Errorf("Outcome = %q, want %q", res.Outcome, domain.OutcomeUnexpectedState)
	}
}

func TestPipeline_ActivityStepReceivesPreviousOutput(t *testing.T) {
	runner := newRunner()
	double := domain.NewActivity("double", func(_ context.Context, n int) (int, error) { return n * 2, nil })
	var seen int
	capture := domain.NewActivity("capture", func(_ context.Context, n int) (struct{}, error) {
		seen = n
		return struct{}{}, nil
	})

	_, err := domain.NewPipeline("test", quietLogger()).Then(
		domain.FixedStep(runner, double, 21),
		domain.ActivityStep(runner, capture),
	).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen != 42 {
		t.Errorf("capture saw %d, want 42", seen)
	}
	if !equalStrings(runner.names, []string{"double", "capture"}) {
		t.Errorf("activities = %v", runner.names)
	}
}

func TestPipeline_ActivityStepRejectsWrongInputType(t *testing.T) {
	runner := newRunner()
	text := domain.NewActivity("text", func(context.Context, struct{}) (string, error) { return "x", nil })
	count := domain.NewActivity("count", func(_ context.Context, n int) (int, error) { return n, nil })

	_, err := domain.NewPipeline("test", quietLogger()).Then(
		domain.FixedStep(runner, text, struct{}{}),
		domain.ActivityStep(runner, count),
	).Run()
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestOutcome_Succeeded(t *testing.T) {
	cases := map[domain.Outcome]bool{
		domain.OutcomeCompleted:       true,
		domain.OutcomeNotAMember:      true,
		domain.OutcomeNothingToDo:     true,
		domain.OutcomeRetryLater:      true,
		domain.OutcomeImageFailed:     false,
		domain.OutcomeUnexpectedState: false,
		domain.OutcomeFailed:          false,
	}
	for o, want := range cases {
		if got := o.Succeeded(); got != want {
			t.Errorf("%s.Succeeded() = %v, want %v", o, got, want)
		}
	}
}

func TestBoundedActivity_AppliesDeadline(t *testing.T) {
	a := domain.NewBoundedActivity("deadline", 50_000_000, func(ctx context.Context, _ struct{}) (bool, error) {
		_, ok := ctx.Deadline()
		return ok, nil
	})
	ok, err := a.Run(context.Background(), struct{}{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !ok {
		t.Error("bounded activity context has no deadline")
	}
}

func TestReport_Unpack(t *testing.T) {
	res, err := domain.NewReport(domain.Result{Outcome: domain.OutcomeCompleted}, nil).Unpack()
	if err != nil || res.Outcome != domain.OutcomeCompleted {
		t.Fatalf("Unpack = %+v, %v", res, err)
	}

	failed := domain.NewReport(domain.Result{Outcome: domain.OutcomeImageFailed},
		&domain.StepError{Step: "check", Err: domain.ErrImageFailed})
	res, err = failed.Unpack()
	if !errors.Is(err, domain.ErrImageFailed) {
		t.Errorf("err = %v, want ErrImageFailed", err)
	}
	if errors.Is(err, domain.ErrUnexpectedState) {
		t.Errorf("err matches unrelated sentinel")
	}
	if res.Outcome != domain.OutcomeImageFailed {
		t.Errorf("Outcome = %q", res.Outcome)
	}
}

func TestReport_KeepsProviderErrorIdentity(t *testing.T) {
	cause := &domain.ProviderCallError{Op: "describe image", Err: fmt.Errorf("%w: ami-1", domain.ErrImageNotFound)}
	report := domain.NewReport(domain.Result{Outcome: domain.OutcomeFailed},
		&domain.StepError{Step: "locate", Err: cause})

	// Reports cross the engine boundary as JSON.
	raw, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded domain.Report
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	_, err = decoded.Unpack()
	if !errors.Is(err, domain.ErrProviderCall) || !errors.Is(err, domain.ErrImageNotFound) {
		t.Errorf("err = %v, want ErrProviderCall and ErrImageNotFound", err)
	}
	if errors.Is(err, domain.ErrImageFailed) || errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("err matches unrelated sentinel: kinds %v", decoded.Kinds)
	}
	if err.Error() != report.Error {
		t.Errorf("Error() = %q, want %q", err.Error(), report.Error)
	}
}
