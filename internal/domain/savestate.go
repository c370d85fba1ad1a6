package domain

import (
	"context"
	"fmt"
	"log/slog"
)

// StateSaveInput is the decoded instance-stop event.
type StateSaveInput struct {
	Instance InstanceID `json:"instance"`
}

// StateSaveWorkflow hands a stopping pool instance to the restoration
// automation so its state is persisted before the instance is recycled.
// It mutates no image or descriptor.
type StateSaveWorkflow struct {
	Settings   LifecycleSettings
	Fleet      FleetAPI
	Automation AutomationAPI
	Logger     *slog.Logger
}

func (wf *StateSaveWorkflow) Name() string { return "save-state" }

func (wf *StateSaveWorkflow) CheckMembership() Activity[MembershipInput, bool] {
	return checkMembershipActivity("save-state/check-membership", wf.Settings.CallTimeout, wf.Fleet)
}

func (wf *StateSaveWorkflow) StartAutomation() Activity[InstanceID, AutomationExecutionID] {
	return NewBoundedActivity("save-state/start-automation", wf.Settings.CallTimeout,
		func(ctx context.Context, instance InstanceID) (AutomationExecutionID, error) {
			loggerOrDefault(wf.Logger).Info("starting state save automation",
				"instance_id", instance, "document", wf.Settings.AutomationDocument)
			id, err := wf.Automation.Start(ctx, wf.Settings.AutomationDocument, map[string][]string{
				"InstanceId": {string(instance)},
			})
			if err != nil {
				return "", providerCall("start automation", err)
			}
			return id, nil
		})
}

// Run executes the state-save pipeline for one stop event.
func (wf *StateSaveWorkflow) Run(runner DurableRunner, in StateSaveInput) (Result, error) {
	log := loggerOrDefault(wf.Logger).With("workflow", wf.Name(), "run_id", runner.ID(), "instance_id", in.Instance)
	if in.Instance == "" {
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("%w: instance ID is required", ErrInvalidArgument)
	}

	var execution AutomationExecutionID
	res, err := NewPipeline(wf.Name(), log).Then(
		membershipStep(runner, wf.CheckMembership(), MembershipInput{Pool: wf.Settings.Pool, Instance: in.Instance}),
		Step{
			Name: wf.StartAutomation().Name(),
			Do: func(any) (any, error) {
				id, err := RunActivity(runner, wf.StartAutomation(), in.Instance)
				if err != nil {
					return nil, err
				}
				execution = id
				return id, nil
			},
		},
	).Run()
	if execution != "" {
		res.Detail = "automation execution " + string(execution)
	}
	return res, err
}
