package domain

import (
	"context"
	"time"
)

// MembershipInput names the instance whose pool membership is checked.
type MembershipInput struct {
	Pool     PoolID     `json:"pool"`
	Instance InstanceID `json:"instance"`
}

func checkMembershipActivity(name string, timeout time.Duration, fleet FleetAPI) Activity[MembershipInput, bool] {
	return NewBoundedActivity(name, timeout, func(ctx context.Context, in MembershipInput) (bool, error) {
		members, err := fleet.Members(ctx, in.Pool)
		if err != nil {
			return false, providerCall("list pool members", err)
		}
		pool := ManagedPool{ID: in.Pool, Members: members}
		return pool.HasMember(in.Instance), nil
	})
}

// membershipStep stops the pipeline with [OutcomeNotAMember] when the
// instance is outside the pool. Nothing runs before it, so a foreign
// instance causes no mutation.
func membershipStep(runner DurableRunner, check Activity[MembershipInput, bool], in MembershipInput) Step {
	return Step{
		Name: check.Name(),
		Do: func(any) (any, error) {
			member, err := RunActivity(runner, check, in)
			if err != nil {
				return nil, err
			}
			if !member {
				return nil, Stop(OutcomeNotAMember, "instance %s is not part of pool %s", in.Instance, in.Pool)
			}
			return nil, nil
		},
	}
}
