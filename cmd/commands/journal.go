package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/selfware-kernel/internal/config"
	"github.com/dohr-michael/selfware-kernel/internal/kernel/store"
)

// NewJournalCommand returns the subcommand that lists persisted tasks.
func NewJournalCommand() *cli.Command {
	return &cli.Command{
		Name:   "journal",
		Usage:  "List persisted tasks, most recently updated first",
		Action: runJournal,
	}
}

func runJournal(_ context.Context, cmd *cli.Command) error {
	st, err := store.New(config.CheckpointsDir())
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}

	summaries, err := st.List()
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if outputFormat(cmd) == "json" {
		return json.NewEncoder(os.Stdout).Encode(summaries)
	}

	if len(summaries) == 0 {
		fmt.Println("no tasks recorded yet")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK ID\tSTEP\tSTATUS\tUPDATED\tDESCRIPTION")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", s.TaskID, s.CurrentStep, s.Status, s.UpdatedAt.Format("2006-01-02 15:04:05"), s.TaskDescription)
	}
	return tw.Flush()
}
