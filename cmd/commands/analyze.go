package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// NewAnalyzeCommand returns the "analyze a path" subcommand: a thin,
// templated front-end to run, matching spec.md §6's CLI surface.
func NewAnalyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Analyze a file or directory and report findings",
		ArgsUsage: "<path>",
		Action:    runAnalyze,
	}
}

func runAnalyze(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("usage: selfware analyze <path>")
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
		"Analyze %s: read its contents, understand its structure and purpose, "+
			"and report what it does, how it's organized, and any risks or issues "+
			"a maintainer should know about. Do not modify anything.", path)
	_, err = k.RunTask(ctx, description)
	return err
}
