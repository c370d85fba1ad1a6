package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

// journalEntry is the printed form of a journal entry.
type journalEntry struct {
	ID       string    `json:"id" yaml:"id"`
	Event    string    `json:"event" yaml:"event"`
	Image    string    `json:"image,omitempty" yaml:"image,omitempty"`
	Instance string    `json:"instance,omitempty" yaml:"instance,omitempty"`
	RunID    string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	At       time.Time `json:"at" yaml:"at"`
}

func newJournalCommand(opts *rootOptions) *cobra.Command {
	journal := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the generation journal",
	}
	journal.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the deployment's generation transitions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := rt.Service.History(cmd.Context())
			if err != nil {
				return err
			}
			out := make([]journalEntry, len(entries))
			for i, e := range entries {
				out[i] = journalEntry{
					ID:       e.ID,
					Event:    string(e.Event),
					Image:    string(e.Image),
					Instance: string(e.Instance),
					RunID:    e.RunID,
					At:       e.At.UTC(),
				}
			}
			return opts.print(cmd.OutOrStdout(), out)
		},
	})
	return journal
}
