package domain

import (
	"context"
	"fmt"
)

// DeploymentID identifies the deployment (CloudFormation stack) that owns
// a pool and its generations.
type DeploymentID string

// Parameter is one parameter of a running deployment.
type Parameter struct {
	Key   string
	Value string
}

// ParameterUpdate is the per-parameter instruction of a descriptor update.
// Exactly one of Value or UsePrevious is meaningful: when UsePrevious is
// set the provider keeps the current value and Value must be empty.
type ParameterUpdate struct {
	Key         string
	Value       string
	UsePrevious bool
}

// DeploymentDescriptor is the live configuration of a deployment.
type DeploymentDescriptor struct {
	ID         DeploymentID
	Status     string
	Parameters []Parameter
}

// Parameter returns the value of key and whether it is present.
func (d DeploymentDescriptor) Parameter(key string) (string, bool) {
	for _, p := range d.Parameters {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// DescriptorAPI is the port to the deployment-descriptor store.
type DescriptorAPI interface {
	Describe(ctx context.Context, id DeploymentID) (DeploymentDescriptor, error)

	// Update submits a full parameter list. The provider rejects updates
	// that omit a parameter, so every parameter must appear either with a
	// new value or with UsePrevious set.
	Update(ctx context.Context, id DeploymentID, params []ParameterUpdate) error
}

// SwapParameter builds an update that replaces key with value and keeps
// every other parameter at its previous value. It fails with [ErrNotFound]
// when the descriptor has no parameter named key.
func SwapParameter(params []Parameter, key, value string) ([]ParameterUpdate, error) {
	out := make([]ParameterUpdate, 0, len(params))
	found := false
	for _, p := range params {
		if p.Key == key {
			found = true
			out = append(out, ParameterUpdate{Key: p.Key, Value: value})
			continue
		}
		out = append(out, ParameterUpdate{Key: p.Key, UsePrevious: true})
	}
	if !found {
		return nil, fmt.Errorf("parameter %q: %w", key, ErrNotFound)
	}
	return out, nil
}
