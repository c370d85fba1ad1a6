// Package syncworkflow provides a synchronous, in-process [domain.WorkflowEngine].
// Activities execute inline with no persistence or replay. It is the
// engine behind the Lambda handlers, where each invocation runs one
// workflow to completion.
package syncworkflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// Engine implements [domain.WorkflowEngine] with synchronous, in-process
// execution. No durable state is kept.
type Engine struct{}

func (e *Engine) InterruptionRunner(wf *domain.InterruptionWorkflow) (domain.WorkflowRunner[domain.InterruptionInput, domain.Result], error) {
	return &runner[domain.InterruptionInput]{name: wf.Name(), run: wf.Run}, nil
}

func (e *Engine) ReadinessRunner(wf *domain.ReadinessWorkflow) (domain.WorkflowRunner[domain.ReadinessInput, domain.Result], error) {
	return &runner[domain.ReadinessInput]{name: wf.Name(), run: wf.Run}, nil
}

func (e *Engine) StateSaveRunner(wf *domain.StateSaveWorkflow) (domain.WorkflowRunner[domain.StateSaveInput, domain.Result], error) {
	return &runner[domain.StateSaveInput]{name: wf.Name(), run: wf.Run}, nil
}

type runner[I any] struct {
	name string
	run  func(domain.DurableRunner, I) (domain.Result, error)
}

// Run executes the workflow before returning. Run IDs are unique across
// processes so journal entries from separate invocations stay apart.
func (r *runner[I]) Run(ctx context.Context, in I) (domain.WorkflowHandle[domain.Result], error) {
	id := r.name + "-" + uuid.NewString()
	result, err := r.run(&syncRunner{id: id, ctx: ctx}, in)
	return &handle{id: id, result: result, err: err}, nil
}

type syncRunner struct {
	id  string
	ctx context.Context
}

func (r *syncRunner) ID() string               { return r.id }
func (r *syncRunner) Context() context.Context { return r.ctx }
func (r *syncRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	return activity.Run(r.ctx, in)
}

type handle struct {
	id     string
	result domain.Result
	err    error
}

func (h *handle) WorkflowID() string { return h.id }
func (h *handle) AwaitResult(_ context.Context) (domain.Result, error) {
	return h.result, h.err
}
