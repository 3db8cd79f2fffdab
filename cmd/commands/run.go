package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// NewRunCommand returns the non-interactive "run a single task" subcommand.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a single task to completion, non-interactively",
		ArgsUsage: "<task description>",
		Action:    runRun,
	}
}

func runRun(ctx context.Context, cmd *cli.Command) error {
	description := cmd.Args().First()
	if description == "" {
		return fmt.Errorf("usage: selfware run <task description>")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	workDir, err := resolveWorkdir(cmd)
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	k, err := buildEngine(cmd, cfg, workDir, false, nil)
	if err != nil {
		return fmt.Errorf("build kernel: %w", err)
	}

	_, err = k.RunTask(ctx, description)
	return err
}
