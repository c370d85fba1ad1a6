package domain

import (
	"errors"
	"fmt"
	"log/slog"
)

// Outcome classifies how a workflow run ended.
type Outcome string

const (
	OutcomeCompleted       Outcome = "completed"
	OutcomeNotAMember      Outcome = "not-a-member"
	OutcomeNothingToDo     Outcome = "nothing-to-do"
	OutcomeRetryLater      Outcome = "retry-later"
	OutcomeImageFailed     Outcome = "image-failed"
	OutcomeUnexpectedState Outcome = "unexpected-state"
	OutcomeFailed          Outcome = "failed"
)

// Succeeded reports whether the trigger mechanism should treat the run as
// a success. RetryLater is a success: the caller reschedules.
func (o Outcome) Succeeded() bool {
	switch o {
	case OutcomeCompleted, OutcomeNotAMember, OutcomeNothingToDo, OutcomeRetryLater:
		return true
	}
	return false
}

// Result is the externally visible result of a workflow run.
type Result struct {
	Outcome Outcome  `json:"outcome" yaml:"outcome"`
	Image   ImageID  `json:"image,omitempty" yaml:"image,omitempty"`
	Detail  string   `json:"detail,omitempty" yaml:"detail,omitempty"`
	Steps   []string `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// StopError ends a pipeline early with a specific outcome. A StopError
// without Err is a clean stop and the pipeline reports no error.
type StopError struct {
	Outcome Outcome
	Detail  string
	Err     error
}

func (e *StopError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Outcome, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Outcome, e.Detail)
}

func (e *StopError) Unwrap() error { return e.Err }

// Stop returns an error that halts the pipeline cleanly with outcome.
func Stop(outcome Outcome, format string, args ...any) error {
	return &StopError{Outcome: outcome, Detail: fmt.Sprintf(format, args...)}
}

// StopWithError halts the pipeline with outcome and surfaces err to the
// caller.
func StopWithError(outcome Outcome, err error, format string, args ...any) error {
	return &StopError{Outcome: outcome, Detail: fmt.Sprintf(format, args...), Err: err}
}

// StepError reports the step that aborted a pipeline.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// Step is one stage of a [Pipeline]. Do receives the previous step's
// output, or nil for the first step.
type Step struct {
	Name string
	Do   func(in any) (any, error)
}

// Pipeline runs steps strictly in order. The first failing step aborts the
// run; no later step executes and nothing already done is rolled back.
type Pipeline struct {
	Name   string
	Logger *slog.Logger

	steps []Step
}

// NewPipeline returns an empty pipeline.
func NewPipeline(name string, logger *slog.Logger) *Pipeline {
	return &Pipeline{Name: name, Logger: logger}
}

// Then appends a step and returns the pipeline for chaining.
func (p *Pipeline) Then(steps ...Step) *Pipeline {
	p.steps = append(p.steps, steps...)
	return p
}

// Run executes the steps. A step returning a [StopError] ends the run with
// that outcome; any other error ends it with [OutcomeFailed] and is
// returned wrapped in a [StepError].
func (p *Pipeline) Run() (Result, error) {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}

	res := Result{Outcome: OutcomeCompleted}
	var carry any
	for _, step := range p.steps {
		log.Debug("running step", "pipeline", p.Name, "step", step.Name)
		out, err := step.Do(carry)
		if err != nil {
			var stop *StopError
			if errors.As(err, &stop) {
				res.Outcome = stop.Outcome
				res.Detail = stop.Detail
				if stop.Err == nil {
					log.Info("pipeline stopped", "pipeline", p.Name, "step", step.Name,
						"outcome", stop.Outcome, "detail", stop.Detail)
					return res, nil
				}
				log.Error("pipeline stopped", "pipeline", p.Name, "step", step.Name,
					"outcome", stop.Outcome, "detail", stop.Detail, "error", stop.Err)
				return res, &StepError{Step: step.Name, Err: stop.Err}
			}
			res.Outcome = OutcomeFailed
			res.Detail = err.Error()
			log.Error("step failed", "pipeline", p.Name, "step", step.Name, "error", err)
			return res, &StepError{Step: step.Name, Err: err}
		}
		res.Steps = append(res.Steps, step.Name)
		carry = out
	}
	return res, nil
}

// ActivityStep runs activity with the previous step's output as its input.
// A nil previous output is passed as the zero value of I.
func ActivityStep[I, O any](runner DurableRunner, activity Activity[I, O]) Step {
	return Step{
		Name: activity.Name(),
		Do: func(in any) (any, error) {
			var typed I
			if in != nil {
				v, ok := in.(I)
				if !ok {
					return nil, fmt.Errorf("%w: step %s got input %T", ErrInvalidArgument, activity.Name(), in)
				}
				typed = v
			}
			return RunActivity(runner, activity, typed)
		},
	}
}

// FixedStep runs activity with a fixed input, ignoring the previous output.
func FixedStep[I, O any](runner DurableRunner, activity Activity[I, O], in I) Step {
	return Step{
		Name: activity.Name(),
		Do: func(any) (any, error) {
			return RunActivity(runner, activity, in)
		},
	}
}
