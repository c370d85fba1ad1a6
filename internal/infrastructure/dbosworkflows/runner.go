// Package dbosworkflows implements [domain.WorkflowEngine] using
// the DBOS Transact Go SDK.
package dbosworkflows

import (
	"context"
	"fmt"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/google/uuid"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// activityInvoker calls RunAsStep with the correct concrete output type.
// Created at construction time when concrete types are known.
type activityInvoker func(ctx dbos.DBOSContext, in any) (any, error)

// Engine implements [domain.WorkflowEngine] backed by DBOS.
//
// The caller must call [dbos.Launch] after creating runners and before
// invoking them.
type Engine struct {
	DBOSCtx dbos.DBOSContext
}

func (e *Engine) InterruptionRunner(wf *domain.InterruptionWorkflow) (domain.WorkflowRunner[domain.InterruptionInput, domain.Result], error) {
	invokers := make(map[string]activityInvoker)
	registerActivity(invokers, wf.CheckMembership())
	registerActivity(invokers, wf.DrainPool())
	registerActivity(invokers, wf.RetireGeneration())
	registerActivity(invokers, wf.CaptureImage())
	registerActivity(invokers, wf.MarkGeneration())
	registerActivity(invokers, wf.TerminateInstance())
	registerActivity(invokers, wf.EnableSubscription())
	registerActivity(invokers, wf.Record())
	return newRunner(e.DBOSCtx, wf.Name(), wf.Run, invokers), nil
}

func (e *Engine) ReadinessRunner(wf *domain.ReadinessWorkflow) (domain.WorkflowRunner[domain.ReadinessInput, domain.Result], error) {
	invokers := make(map[string]activityInvoker)
	registerActivity(invokers, wf.LocateImage())
	registerActivity(invokers, wf.MarkGeneration())
	registerActivity(invokers, wf.RetireStragglers())
	registerActivity(invokers, wf.SwapImage())
	registerActivity(invokers, wf.RestoreCapacity())
	registerActivity(invokers, wf.PromoteImage())
	registerActivity(invokers, wf.DisableSubscription())
	registerActivity(invokers, wf.Record())
	return newRunner(e.DBOSCtx, wf.Name(), wf.Run, invokers), nil
}

func (e *Engine) StateSaveRunner(wf *domain.StateSaveWorkflow) (domain.WorkflowRunner[domain.StateSaveInput, domain.Result], error) {
	invokers := make(map[string]activityInvoker)
	registerActivity(invokers, wf.CheckMembership())
	registerActivity(invokers, wf.StartAutomation())
	return newRunner(e.DBOSCtx, wf.Name(), wf.Run, invokers), nil
}

func newRunner[I any](
	dbosCtx dbos.DBOSContext,
	name string,
	run func(domain.DurableRunner, I) (domain.Result, error),
	invokers map[string]activityInvoker,
) domain.WorkflowRunner[I, domain.Result] {
	report := domain.ReportedWorkflow(run)
	wfFunc := func(ctx dbos.DBOSContext, in I) (domain.Report, error) {
		runner := &durableRunner{ctx: ctx, invokers: invokers}
		return report(runner, in), nil
	}

	dbos.RegisterWorkflow(dbosCtx, wfFunc, dbos.WithWorkflowName(name))

	return &workflowRunner[I]{dbosCtx: dbosCtx, wfName: name, wfFunc: wfFunc}
}

// registerActivity creates a typed invoker that calls [dbos.RunAsStep]
// with the concrete output type O, ensuring correct JSON deserialization
// during workflow replay. Steps are not retried: a failed step fails the
// workflow.
func registerActivity[I, O any](invokers map[string]activityInvoker, activity domain.Activity[I, O]) {
	invokers[activity.Name()] = func(ctx dbos.DBOSContext, in any) (any, error) {
		return dbos.RunAsStep(ctx, func(stepCtx context.Context) (O, error) {
			return activity.Run(stepCtx, in.(I))
		}, dbos.WithStepName(activity.Name()), dbos.WithStepMaxRetries(0))
	}
}

type durableRunner struct {
	ctx      dbos.DBOSContext
	invokers map[string]activityInvoker
}

func (r *durableRunner) ID() string {
	id, _ := dbos.GetWorkflowID(r.ctx)
	return id
}

func (r *durableRunner) Context() context.Context {
	return r.ctx
}

func (r *durableRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	invoke, ok := r.invokers[activity.Name()]
	if !ok {
		return nil, fmt.Errorf("activity %q not registered", activity.Name())
	}
	return invoke(r.ctx, in)
}

type workflowRunner[I any] struct {
	dbosCtx dbos.DBOSContext
	wfName  string
	wfFunc  dbos.Workflow[I, domain.Report]
}

func (r *workflowRunner[I]) Run(ctx context.Context, in I) (domain.WorkflowHandle[domain.Result], error) {
	handle, err := dbos.RunWorkflow(r.dbosCtx, r.wfFunc, in, dbos.WithWorkflowID(r.wfName+"-"+uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("run DBOS workflow: %w", err)
	}
	return &workflowHandle{handle: handle}, nil
}

type workflowHandle struct {
	handle dbos.WorkflowHandle[domain.Report]
}

func (h *workflowHandle) WorkflowID() string {
	return h.handle.GetWorkflowID()
}

func (h *workflowHandle) AwaitResult(_ context.Context) (domain.Result, error) {
	report, err := h.handle.GetResult()
	if err != nil {
		return domain.Result{Outcome: domain.OutcomeFailed}, fmt.Errorf("await workflow %s: %w", h.handle.GetWorkflowID(), err)
	}
	return report.Unpack()
}
