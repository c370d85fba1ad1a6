package domain

import (
	"context"
	"slices"
)

// PoolID identifies a managed pool of interruptible instances (a spot
// fleet request).
type PoolID string

// InstanceID identifies a compute instance.
type InstanceID string

// ManagedPool is a snapshot of a pool as reported by the fleet API.
type ManagedPool struct {
	ID              PoolID
	DesiredCapacity int
	Members         []InstanceID
}

// HasMember reports whether id is one of the pool's current members.
func (p ManagedPool) HasMember(id InstanceID) bool {
	return slices.Contains(p.Members, id)
}

// FleetAPI is the port to the compute-fleet provider.
type FleetAPI interface {
	// Members returns the instances currently active in the pool.
	Members(ctx context.Context, pool PoolID) ([]InstanceID, error)
	// DesiredCapacity returns the pool's target capacity.
	DesiredCapacity(ctx context.Context, pool PoolID) (int, error)
	SetDesiredCapacity(ctx context.Context, pool PoolID, capacity int) error
	Terminate(ctx context.Context, instance InstanceID) error
}
