package commands

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/selfware-kernel/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:    "selfware",
		Usage:   "Run autonomous coding tasks under a bounded, self-healing execution kernel",
		Version: version + " (" + commit + ")",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:       "config",
				Usage:      "Path to config file",
				Value:      config.ConfigPath(),
				Persistent: true,
			},
			&cli.StringFlag{
				Name:       "workdir",
				Aliases:    []string{"C"},
				Usage:      "Working directory the task runs in",
				Persistent: true,
			},
			&cli.BoolFlag{
				Name:       "no-color",
				Usage:      "Disable ANSI color output",
				Value:      os.Getenv("NO_COLOR") != "",
				Persistent: true,
			},
			&cli.StringFlag{
				Name:       "output-format",
				Usage:      "Output format: text or json",
				Value:      "text",
				Persistent: true,
			},
			&cli.BoolFlag{
				Name:       "yolo",
				Usage:      "Auto-approve every tool call, including dangerous ones, with no confirmation prompts",
				Persistent: true,
			},
			&cli.BoolFlag{
				Name:       "quiet",
				Aliases:    []string{"q"},
				Usage:      "Suppress non-essential output",
				Persistent: true,
			},
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewChatCommand(),
			NewAnalyzeCommand(),
			NewReviewCommand(),
			NewJournalCommand(),
			NewStatusCommand(),
		},
	}
}
