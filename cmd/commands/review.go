package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// NewReviewCommand returns the "review a file" subcommand: a thin,
// templated front-end to run, matching spec.md §6's CLI surface.
func NewReviewCommand() *cli.Command {
	return &cli.Command{
		Name:      "review",
		Usage:     "Review a file for correctness and style issues",
		ArgsUsage: "<file>",
		Action:    runReview,
	}
}

func runReview(ctx context.Context, cmd *cli.Command) error {
	file := cmd.Args().First()
	if file == "" {
		return fmt.Errorf("usage: selfware review <file>")
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

	description := fmt.Sprintf(
		"Review %s for correctness, style, and potential bugs. Read the file, "+
			"and any related files needed for context, then report concrete findings "+
			"with line references. Do not modify anything unless asked.", file)
	_, err = k.RunTask(ctx, description)
	return err
}
