// Package cmd implements the cloudrig operator CLI.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cloudrig/CloudRIG/internal/config"
	"github.com/cloudrig/CloudRIG/internal/logging"
	"github.com/cloudrig/CloudRIG/internal/wiring"
)

// Output formats accepted by --output.
const (
	outputYAML = "yaml"
	outputJSON = "json"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	v          *viper.Viper
	configFile string
	dryRun     string
	output     string
}

// Execute runs the cloudrig CLI.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand returns the cloudrig command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	root := &cobra.Command{
		Use:   "cloudrig",
		Short: "Operate the CloudRIG spot instance lifecycle",
		Long: `cloudrig runs the CloudRIG lifecycle workflows by hand: capture an
instance that is being interrupted, poll until its image is ready and
promote it, or hand an instance to the state restoration automation.

Settings are read from CLOUDRIG_* environment variables and an optional
YAML config file. Use --dry-run with a fixture to run against an
in-memory cloud instead of AWS.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (YAML)")
	flags.StringVar(&opts.dryRun, "dry-run", "", "run against an in-memory cloud seeded from this fixture file")
	flags.StringVarP(&opts.output, "output", "o", outputYAML, "output format (yaml or json)")
	flags.String("engine", "", "workflow engine (sync, goworkflows or dbos)")
	flags.String("log-level", "", "log level (debug, info, warn or error)")
	_ = opts.v.BindPFlag("engine", flags.Lookup("engine"))
	_ = opts.v.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(
		newInterruptCommand(opts),
		newPollCommand(opts),
		newSaveStateCommand(opts),
		newJournalCommand(opts),
	)
	return root
}

// runtime loads the configuration and assembles the service. The caller
// must Close the returned runtime.
func (o *rootOptions) runtime(cmd *cobra.Command) (*wiring.Runtime, error) {
	config.SetDefaults(o.v)
	// Operators read the CLI's logs on a terminal.
	o.v.SetDefault("log.format", logging.FormatText)

	if o.configFile != "" {
		o.v.SetConfigFile(o.configFile)
		if err := o.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg, err := config.Load(o.v)
	if err != nil {
		return nil, err
	}

	logger := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	return wiring.Build(cmd.Context(), cfg, wiring.Options{
		FixturePath: o.dryRun,
		Logger:      logger,
	})
}

// print writes v to w in the selected output format.
func (o *rootOptions) print(w io.Writer, v any) error {
	switch o.output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", o.output)
	}
}

// reportDryRun lists the provider mutations an in-memory run performed.
func reportDryRun(w io.Writer, rt *wiring.Runtime) {
	if rt.Cloud == nil {
		return
	}
	for _, call := range rt.Cloud.Mutations() {
		fmt.Fprintf(w, "dry-run: %s\n", call)
	}
}
