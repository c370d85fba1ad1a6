// Package goworkflows implements [domain.WorkflowEngine] using
// cschleiden/go-workflows for durable workflow execution.
package goworkflows

import (
	"context"
	"fmt"
	"time"

	"github.com/cschleiden/go-workflows/client"
	"github.com/cschleiden/go-workflows/registry"
	"github.com/cschleiden/go-workflows/worker"
	"github.com/cschleiden/go-workflows/workflow"
	"github.com/google/uuid"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// activityInvoker calls an activity from the workflow context with the
// correct generic types. Created at construction time when concrete
// types are known.
type activityInvoker func(wfCtx workflow.Context, in any) (any, error)

// binder registers one typed activity.
type binder func(w *worker.Worker, invokers map[string]activityInvoker) error

// singleAttempt runs every activity once. A failed activity fails the
// workflow; retry is a new invocation.
var singleAttempt = workflow.ActivityOptions{
	RetryOptions: workflow.RetryOptions{MaxAttempts: 1},
}

func bind[I, O any](activity domain.Activity[I, O]) binder {
	return func(w *worker.Worker, invokers map[string]activityInvoker) error {
		return registerActivity(w, invokers, activity)
	}
}

// Engine implements [domain.WorkflowEngine] backed by go-workflows.
type Engine struct {
	Worker  *worker.Worker
	Client  *client.Client
	Timeout time.Duration
}

func (e *Engine) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return 5 * time.Minute
}

func (e *Engine) InterruptionRunner(wf *domain.InterruptionWorkflow) (domain.WorkflowRunner[domain.InterruptionInput, domain.Result], error) {
	return newRunner(e, wf.Name(), wf.Run,
		bind(wf.CheckMembership()),
		bind(wf.DrainPool()),
		bind(wf.RetireGeneration()),
		bind(wf.CaptureImage()),
		bind(wf.MarkGeneration()),
		bind(wf.TerminateInstance()),
		bind(wf.EnableSubscription()),
		bind(wf.Record()),
	)
}

func (e *Engine) ReadinessRunner(wf *domain.ReadinessWorkflow) (domain.WorkflowRunner[domain.ReadinessInput, domain.Result], error) {
	return newRunner(e, wf.Name(), wf.Run,
		bind(wf.LocateImage()),
		bind(wf.MarkGeneration()),
		bind(wf.RetireStragglers()),
		bind(wf.SwapImage()),
		bind(wf.RestoreCapacity()),
		bind(wf.PromoteImage()),
		bind(wf.DisableSubscription()),
		bind(wf.Record()),
	)
}

func (e *Engine) StateSaveRunner(wf *domain.StateSaveWorkflow) (domain.WorkflowRunner[domain.StateSaveInput, domain.Result], error) {
	return newRunner(e, wf.Name(), wf.Run,
		bind(wf.CheckMembership()),
		bind(wf.StartAutomation()),
	)
}

func newRunner[I any](
	e *Engine,
	name string,
	run func(domain.DurableRunner, I) (domain.Result, error),
	activities ...binder,
) (domain.WorkflowRunner[I, domain.Result], error) {
	invokers := make(map[string]activityInvoker)
	for _, b := range activities {
		if err := b(e.Worker, invokers); err != nil {
			return nil, err
		}
	}

	report := domain.ReportedWorkflow(run)
	wfFunc := func(ctx workflow.Context, in I) (domain.Report, error) {
		runner := &durableRunner{wfCtx: ctx, invokers: invokers}
		return report(runner, in), nil
	}

	if err := e.Worker.RegisterWorkflow(wfFunc, registry.WithName(name)); err != nil {
		return nil, fmt.Errorf("register workflow %q: %w", name, err)
	}

	return &workflowRunner[I]{
		client:  e.Client,
		wfName:  name,
		timeout: e.timeout(),
	}, nil
}

// registerActivity registers a typed activity with go-workflows and
// creates an invoker that schedules it as a single attempt.
func registerActivity[I, O any](
	w *worker.Worker,
	invokers map[string]activityInvoker,
	activity domain.Activity[I, O],
) error {
	activityFn := func(ctx context.Context, in I) (O, error) {
		return activity.Run(ctx, in)
	}

	if err := w.RegisterActivity(activityFn, registry.WithName(activity.Name())); err != nil {
		return fmt.Errorf("register activity %q: %w", activity.Name(), err)
	}

	invokers[activity.Name()] = func(wfCtx workflow.Context, in any) (any, error) {
		result, err := workflow.ExecuteActivity[O](wfCtx, singleAttempt, activity.Name(), in).Get(wfCtx)
		return result, err
	}

	return nil
}

type durableRunner struct {
	wfCtx    workflow.Context
	invokers map[string]activityInvoker
}

func (r *durableRunner) ID() string {
	return workflow.WorkflowInstance(r.wfCtx).InstanceID
}

func (r *durableRunner) Context() context.Context {
	return context.Background()
}

func (r *durableRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	invoke, ok := r.invokers[activity.Name()]
	if !ok {
		return nil, fmt.Errorf("activity %q not registered", activity.Name())
	}
	return invoke(r.wfCtx, in)
}

type workflowRunner[I any] struct {
	client  *client.Client
	wfName  string
	timeout time.Duration
}

func (r *workflowRunner[I]) Run(ctx context.Context, in I) (domain.WorkflowHandle[domain.Result], error) {
	instance, err := r.client.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
		InstanceID: r.wfName + "-" + uuid.NewString(),
	}, r.wfName, in)
	if err != nil {
		return nil, fmt.Errorf("create workflow instance: %w", err)
	}

	return &workflowHandle{
		client:   r.client,
		instance: instance,
		timeout:  r.timeout,
	}, nil
}

type workflowHandle struct {
	client   *client.Client
	instance *workflow.Instance
	timeout  time.Duration
}

func (h *workflowHandle) WorkflowID() string {
	return h.instance.InstanceID
}

func (h *workflowHandle) AwaitResult(ctx context.Context) (domain.Result, error) {
	report, err := client.GetWorkflowResult[domain.Report](ctx, h.client, h.instance, h.timeout)
	if err != nil {
		return domain.Result{Outcome: domain.OutcomeFailed}, fmt.Errorf("await workflow %s: %w", h.instance.InstanceID, err)
	}
	return report.Unpack()
}
