package domain

import "errors"

// reportedErrors are the sentinels a [Report] preserves by name.
var reportedErrors = []struct {
	kind string
	err  error
}{
	{"not-found", ErrNotFound},
	{"already-exists", ErrAlreadyExists},
	{"invalid-argument", ErrInvalidArgument},
	{"provider-call", ErrProviderCall},
	{"image-not-found", ErrImageNotFound},
	{"image-failed", ErrImageFailed},
	{"unexpected-state", ErrUnexpectedState},
}

// Report carries a run's [Result] and error through engines that persist
// workflow output. The error travels as text together with the names of
// the sentinels it matched, so [Report.Unpack] can restore them.
type Report struct {
	Result Result   `json:"result"`
	Error  string   `json:"error,omitempty"`
	Kinds  []string `json:"kinds,omitempty"`
}

// NewReport flattens a workflow's return values.
func NewReport(res Result, err error) Report {
	r := Report{Result: res}
	if err == nil {
		return r
	}
	r.Error = err.Error()
	for _, s := range reportedErrors {
		if errors.Is(err, s.err) {
			r.Kinds = append(r.Kinds, s.kind)
		}
	}
	return r
}

// Unpack returns the result and a [RemoteError] when the run failed.
func (r Report) Unpack() (Result, error) {
	if r.Error == "" {
		return r.Result, nil
	}
	return r.Result, &RemoteError{Outcome: r.Result.Outcome, Message: r.Error, Kinds: r.Kinds}
}

// RemoteError is a workflow error restored from its text. It matches the
// sentinels named in Kinds and, for reports written without them, the
// sentinel implied by the outcome.
type RemoteError struct {
	Outcome Outcome
	Message string
	Kinds   []string
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Is(target error) bool {
	for _, s := range reportedErrors {
		if s.err != target {
			continue
		}
		for _, k := range e.Kinds {
			if k == s.kind {
				return true
			}
		}
	}
	switch e.Outcome {
	case OutcomeImageFailed:
		return target == ErrImageFailed
	case OutcomeUnexpectedState:
		return target == ErrUnexpectedState
	}
	return false
}

// ReportedWorkflow adapts a workflow body to return a [Report].
func ReportedWorkflow[I any](run func(DurableRunner, I) (Result, error)) func(DurableRunner, I) Report {
	return func(runner DurableRunner, in I) Report {
		return NewReport(run(runner, in))
	}
}
