// Package config loads CloudRIG settings from the environment and an
// optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// EnvPrefix prefixes every environment variable read by [Load].
const EnvPrefix = "CLOUDRIG"

// Engine names.
const (
	EngineSync        = "sync"
	EngineGoWorkflows = "goworkflows"
	EngineDBOS        = "dbos"
)

// Config is the complete CloudRIG configuration.
type Config struct {
	DeploymentID       string        `mapstructure:"deployment_id"`
	PoolID             string        `mapstructure:"pool_id"`
	AutomationDocument string        `mapstructure:"automation_document"`
	SubscriptionName   string        `mapstructure:"subscription_name"`
	ImageParameterKey  string        `mapstructure:"image_parameter_key"`
	ImageNamePrefix    string        `mapstructure:"image_name_prefix"`
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
	Region             string        `mapstructure:"region"`

	// PoolCapacity is restored after a swap when the captured image
	// carries no recorded capacity.
	PoolCapacity int `mapstructure:"pool_capacity"`

	// Handler selects the workflow the Lambda entry point runs:
	// "interruption", "image-ready" or "save-state".
	Handler string `mapstructure:"handler"`

	// Engine is the workflow engine: "sync", "goworkflows" or "dbos".
	Engine string `mapstructure:"engine"`

	Workflows  WorkflowsConfig  `mapstructure:"workflows"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Log        LogConfig        `mapstructure:"log"`
	Descriptor DescriptorConfig `mapstructure:"descriptor"`
}

// WorkflowsConfig configures the durable engines.
type WorkflowsConfig struct {
	// SQLitePath is the go-workflows backend file. Empty uses an
	// in-memory backend.
	SQLitePath string `mapstructure:"sqlite_path"`
	// DatabaseURL is the DBOS system database.
	DatabaseURL string `mapstructure:"database_url"`
	// Timeout bounds how long a caller waits for a workflow result.
	Timeout time.Duration `mapstructure:"timeout"`
}

// JournalConfig configures the generation journal.
type JournalConfig struct {
	// Path of the SQLite journal. Empty disables the journal.
	Path string `mapstructure:"path"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DescriptorConfig controls deployment descriptor updates.
type DescriptorConfig struct {
	WaitForUpdate bool `mapstructure:"wait_for_update"`
	// UpdateTimeout bounds the wait for a stack update. It replaces
	// call_timeout for the swap when wait_for_update is set.
	UpdateTimeout time.Duration `mapstructure:"update_timeout"`
	Capabilities  []string      `mapstructure:"capabilities"`
}

// Default returns the configuration with every default applied and the
// required keys empty.
func Default() *Config {
	return &Config{
		SubscriptionName:  "cloudrig-save",
		ImageParameterKey: "InstanceAMIId",
		ImageNamePrefix:   "cloudrig",
		CallTimeout:       20 * time.Second,
		PoolCapacity:      1,
		Engine:            EngineSync,
		Workflows: WorkflowsConfig{
			Timeout: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "json",
		},
		Descriptor: DescriptorConfig{
			UpdateTimeout: 10 * time.Minute,
			Capabilities:  []string{"CAPABILITY_IAM", "CAPABILITY_NAMED_IAM"},
		},
	}
}

// legacyEnv lists the environment names accepted for keys that predate
// the CLOUDRIG_<KEY> scheme.
var legacyEnv = map[string]string{
	"deployment_id":       "CLOUDRIG_CLOUDFORMATION_STACK_NAME",
	"pool_id":             "CLOUDRIG_SPOTFLEET_REQUEST_ID",
	"automation_document": "CLOUDRIG_SAVE_STATE_AUTOMATION_DOCUMENT_NAME",
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("subscription_name", defaults.SubscriptionName)
	v.SetDefault("image_parameter_key", defaults.ImageParameterKey)
	v.SetDefault("image_name_prefix", defaults.ImageNamePrefix)
	v.SetDefault("call_timeout", defaults.CallTimeout)
	v.SetDefault("region", defaults.Region)
	v.SetDefault("pool_capacity", defaults.PoolCapacity)
	v.SetDefault("handler", defaults.Handler)
	v.SetDefault("engine", defaults.Engine)

	v.SetDefault("workflows.sqlite_path", defaults.Workflows.SQLitePath)
	v.SetDefault("workflows.database_url", defaults.Workflows.DatabaseURL)
	v.SetDefault("workflows.timeout", defaults.Workflows.Timeout)

	v.SetDefault("journal.path", defaults.Journal.Path)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetDefault("descriptor.wait_for_update", defaults.Descriptor.WaitForUpdate)
	v.SetDefault("descriptor.update_timeout", defaults.Descriptor.UpdateTimeout)
	v.SetDefault("descriptor.capabilities", defaults.Descriptor.Capabilities)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Required keys have no default, so bind them explicitly.
	for key, legacy := range legacyEnv {
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(key), legacy)
	}
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, errs)
	}
	return &cfg, nil
}

// Settings returns the workflow settings carried by c.
func (c *Config) Settings() domain.LifecycleSettings {
	var updateTimeout time.Duration
	if c.Descriptor.WaitForUpdate {
		updateTimeout = c.Descriptor.UpdateTimeout
	}
	return domain.LifecycleSettings{
		Deployment:         domain.DeploymentID(c.DeploymentID),
		Pool:               domain.PoolID(c.PoolID),
		AutomationDocument: c.AutomationDocument,
		SubscriptionName:   c.SubscriptionName,
		ImageParameterKey:  c.ImageParameterKey,
		ImageNamePrefix:    c.ImageNamePrefix,
		CallTimeout:        c.CallTimeout,
		UpdateTimeout:      updateTimeout,
		PoolCapacity:       c.PoolCapacity,
	}
}
