package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError describes one invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid value.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// ValidEngines returns the accepted engine names.
func ValidEngines() []string {
	return []string{EngineSync, EngineGoWorkflows, EngineDBOS}
}

// ValidHandlers returns the accepted Lambda handler names.
func ValidHandlers() []string {
	return []string{"interruption", "image-ready", "save-state"}
}

// Validate checks c and returns every problem found. A nil result means
// the configuration is usable.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	require := func(field, value string) {
		if value == "" {
			errs = append(errs, ValidationError{Field: field, Message: "is required"})
		}
	}
	require("deployment_id", c.DeploymentID)
	require("pool_id", c.PoolID)
	require("automation_document", c.AutomationDocument)
	require("subscription_name", c.SubscriptionName)
	require("image_parameter_key", c.ImageParameterKey)

	if c.CallTimeout < 0 {
		errs = append(errs, ValidationError{Field: "call_timeout", Message: "must not be negative"})
	}
	if c.Descriptor.UpdateTimeout < 0 {
		errs = append(errs, ValidationError{Field: "descriptor.update_timeout", Message: "must not be negative"})
	}
	if c.Descriptor.WaitForUpdate && c.Engine != EngineSync && c.Workflows.Timeout > 0 &&
		c.Workflows.Timeout <= c.Descriptor.UpdateTimeout {
		errs = append(errs, ValidationError{
			Field:   "workflows.timeout",
			Message: "must exceed descriptor.update_timeout when wait_for_update is set",
		})
	}
	if c.PoolCapacity < 0 {
		errs = append(errs, ValidationError{Field: "pool_capacity", Message: "must not be negative"})
	}
	if !slices.Contains(ValidEngines(), c.Engine) {
		errs = append(errs, ValidationError{
			Field:   "engine",
			Message: fmt.Sprintf("must be one of %s", strings.Join(ValidEngines(), ", ")),
		})
	}
	if c.Engine == EngineDBOS && c.Workflows.DatabaseURL == "" {
		errs = append(errs, ValidationError{Field: "workflows.database_url", Message: "is required for the dbos engine"})
	}
	if c.Handler != "" && !slices.Contains(ValidHandlers(), c.Handler) {
		errs = append(errs, ValidationError{
			Field:   "handler",
			Message: fmt.Sprintf("must be one of %s", strings.Join(ValidHandlers(), ", ")),
		})
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, ValidationError{Field: "log.format", Message: "must be json or text"})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
