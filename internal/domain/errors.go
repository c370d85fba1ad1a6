package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource with the same identity
	// has already been recorded.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates that a caller-provided value violates
	// a precondition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrProviderCall marks a failure returned by a collaborator (fleet,
	// image store, descriptor store, subscription, automation).
	ErrProviderCall = errors.New("provider call failed")

	// ErrImageNotFound indicates that a describe call returned no image
	// for an identifier the workflow expected to exist.
	ErrImageNotFound = errors.New("image does not exist")

	// ErrImageFailed indicates that the provider reported the captured
	// image in the failed state.
	ErrImageFailed = errors.New("image creation failed")

	// ErrUnexpectedState indicates that a resource was observed in a state
	// the workflow does not know how to handle.
	ErrUnexpectedState = errors.New("unexpected state")
)

// ProviderCallError wraps an error returned by a collaborator call. It
// matches [ErrProviderCall] with [errors.Is] and unwraps to the cause.
type ProviderCallError struct {
	Op  string
	Err error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderCallError) Unwrap() []error { return []error{ErrProviderCall, e.Err} }

// providerCall wraps err as a [ProviderCallError] for op. A nil err stays nil.
func providerCall(op string, err error) error {
	if err == nil {
		return nil
	}
	var pce *ProviderCallError
	if errors.As(err, &pce) {
		return err
	}
	return &ProviderCallError{Op: op, Err: err}
}
