package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dohr-michael/selfware-kernel/internal/kernel/tools"
)

// NewChatCommand returns the interactive REPL subcommand. Falls back to
// basic line mode (no prompt redraw, no isatty checks) when stdin isn't a
// terminal, matching spec.md §6's fallback requirement.
func NewChatCommand() *cli.Command {
	return &cli.Command{
		Name:   "chat",
		Usage:  "Start an interactive session, one task per line",
		Action: runChat,
	}
}

func runChat(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	workDir, err := resolveWorkdir(cmd)
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	k, err := buildEngine(cmd, cfg, workDir, true, confirmOnStdin)
	if err != nil {
		return fmt.Errorf("build kernel: %w", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Fprint(os.Stdout, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		if _, err := k.RunTask(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "task error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// confirmOnStdin implements tools.ConfirmationPrompter for the chat REPL's
// interactive mode.
func confirmOnStdin(_ context.Context, toolName, reason string) (bool, error) {
	fmt.Fprintf(os.Stderr, "confirm %s (%s) [y/N] ", toolName, reason)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false, scanner.Err()
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes", nil
}

var _ tools.ConfirmationPrompter = confirmOnStdin
