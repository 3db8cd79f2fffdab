package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/selfware-kernel/internal/config"
	"github.com/dohr-michael/selfware-kernel/internal/kernel/store"
)

type statusReport struct {
	ConfigPath      string         `json:"config_path"`
	Home            string         `json:"home"`
	DefaultModel    string         `json:"default_model"`
	Kernel          config.KernelConfig `json:"kernel"`
	TasksByStatus   map[string]int `json:"tasks_by_status"`
	TotalTasks      int            `json:"total_tasks"`
}

// NewStatusCommand returns the subcommand that dumps resolved config and
// checkpoint-store stats.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show resolved configuration and task store statistics",
		Action: runStatus,
	}
}

func runStatus(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	report := statusReport{
		ConfigPath:    root(cmd).String("config"),
		Home:          config.KernelHome(),
		DefaultModel:  cfg.Models.Default,
		Kernel:        cfg.Kernel,
		TasksByStatus: map[string]int{},
	}

	st, err := store.New(config.CheckpointsDir())
	if err == nil {
		if summaries, err := st.List(); err == nil {
			report.TotalTasks = len(summaries)
			for _, s := range summaries {
				report.TasksByStatus[string(s.Status)]++
			}
		}
	}

	if outputFormat(cmd) == "json" {
		return json.NewEncoder(os.Stdout).Encode(report)
	}

	fmt.Printf("home:           %s\n", report.Home)
	fmt.Printf("config:         %s\n", report.ConfigPath)
	fmt.Printf("default model:  %s\n", report.DefaultModel)
	fmt.Printf("max iterations: %d\n", report.Kernel.MaxIterations)
	fmt.Printf("tasks:          %d total\n", report.TotalTasks)
	for status, n := range report.TasksByStatus {
		fmt.Printf("  %-12s %d\n", status, n)
	}
	return nil
}
