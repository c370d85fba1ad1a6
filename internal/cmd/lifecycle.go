package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudrig/CloudRIG/internal/application"
	"github.com/cloudrig/CloudRIG/internal/domain"
)

func newInterruptCommand(opts *rootOptions) *cobra.Command {
	var instance string
	cmd := &cobra.Command{
		Use:   "interrupt",
		Short: "Capture an instance that received an interruption warning",
		Long: `Drain the pool, retire the previous generation, capture the instance
as a new image and terminate it.

Example:
  cloudrig interrupt --instance i-0123456789abcdef0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.Service.Interrupt(cmd.Context(), domain.InstanceID(instance))
			reportDryRun(cmd.ErrOrStderr(), rt)
			if perr := opts.print(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&instance, "instance", "", "instance ID named by the interruption warning")
	_ = cmd.MarkFlagRequired("instance")
	return cmd
}

func newPollCommand(opts *rootOptions) *cobra.Command {
	var (
		image       string
		every       time.Duration
		maxAttempts int
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Wait for the pending image and promote it",
		Long: `Check the pending generation until its image leaves the pending state,
then promote it into the deployment.

Examples:
  # Poll the deployment's pending generation every 30 seconds
  cloudrig poll

  # Promote a specific image
  cloudrig poll --image ami-0123456789abcdef0 --max-attempts 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.Service.Poll(cmd.Context(), application.PollOptions{
				Image:       domain.ImageID(image),
				Every:       every,
				MaxAttempts: maxAttempts,
			})
			reportDryRun(cmd.ErrOrStderr(), rt)
			if perr := opts.print(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "image to promote (default: the pending generation)")
	cmd.Flags().DurationVar(&every, "every", 30*time.Second, "wait between attempts")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 20, "attempts before giving up")
	return cmd
}

func newSaveStateCommand(opts *rootOptions) *cobra.Command {
	var instance string
	cmd := &cobra.Command{
		Use:   "save-state",
		Short: "Start the state restoration automation for an instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.Service.SaveState(cmd.Context(), domain.InstanceID(instance))
			reportDryRun(cmd.ErrOrStderr(), rt)
			if perr := opts.print(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&instance, "instance", "", "instance that came into service")
	_ = cmd.MarkFlagRequired("instance")
	return cmd
}
