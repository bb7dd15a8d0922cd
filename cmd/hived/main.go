package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	hive "github.com/rhombus-tech/hive"
	"github.com/rhombus-tech/hive/archive"
	"github.com/rhombus-tech/hive/coordination"
)

var (
	configPath string
	workerSpec []string

	rootCmd = &cobra.Command{
		Use:   "hived",
		Short: "Task coordination and consensus orchestrator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run an orchestrator with a static roster",
		RunE:  run,
	}

	submitPriority string

	submitCmd = &cobra.Command{
		Use:   "submit <description>",
		Short: "Submit one task to a fresh orchestrator and print its assignment",
		Args:  cobra.ExactArgs(1),
		RunE:  submit,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "List archived tasks and consensus sessions",
		RunE:  status,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config")
	for _, cmd := range []*cobra.Command{runCmd, submitCmd} {
		cmd.Flags().StringSliceVarP(&workerSpec, "workers", "w", []string{"coordinator=1", "coder=2", "tester=1"},
			"roster spec as role=count pairs")
	}
	submitCmd.Flags().StringVarP(&submitPriority, "priority", "p", "normal", "task priority (low|normal|high|critical)")
	rootCmd.AddCommand(runCmd, submitCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := hive.DefaultConfig()
	if configPath != "" {
		if cfg, err = hive.LoadConfig(configPath); err != nil {
			return err
		}
	}

	orch, err := hive.New(cfg, log)
	if err != nil {
		return err
	}
	orch.Start()
	defer orch.Stop()

	if err := spawnRoster(orch, log); err != nil {
		return err
	}

	log.Info("roster ready", zap.Int("workers", orch.Registry.Len()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	return nil
}

func submit(_ *cobra.Command, args []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := hive.DefaultConfig()
	if configPath != "" {
		if cfg, err = hive.LoadConfig(configPath); err != nil {
			return err
		}
	}

	orch, err := hive.New(cfg, log)
	if err != nil {
		return err
	}
	orch.Start()
	defer orch.Stop()

	if err := spawnRoster(orch, log); err != nil {
		return err
	}

	taskID, err := orch.SubmitTask(args[0], coordination.TaskPriority(submitPriority))
	if err != nil {
		return err
	}

	task, err := orch.Coordinator.Task(taskID)
	if err != nil {
		return err
	}
	fmt.Printf("task %s assigned to %s (%s)\n", task.ID, task.AssignedTo, task.Priority)
	return nil
}

func status(_ *cobra.Command, _ []string) error {
	cfg := hive.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = hive.LoadConfig(configPath); err != nil {
			return err
		}
	}
	if cfg.ArchivePath == "" {
		return fmt.Errorf("no archive_path configured, nothing to report")
	}

	store, err := archive.Open(cfg.ArchivePath)
	if err != nil {
		return err
	}
	defer store.Close()

	tasks, err := store.Tasks()
	if err != nil {
		return err
	}
	sessions, err := store.Sessions()
	if err != nil {
		return err
	}

	fmt.Printf("archived tasks: %d\n", len(tasks))
	for _, t := range tasks {
		fmt.Printf("  %s  %-10s %s\n", t.ID, t.Status, t.Title)
	}
	fmt.Printf("archived sessions: %d\n", len(sessions))
	for _, s := range sessions {
		fmt.Printf("  %s  %-9s %-22s %s\n",
			s.Session.ID, s.Session.Status, s.Result.Outcome, s.Session.Proposal.Title)
	}
	return nil
}

// spawnRoster registers workers per the --workers spec and starts a
// receive loop for each. Loops exit when their channel closes.
func spawnRoster(orch *hive.Orchestrator, log *zap.Logger) error {
	for _, spec := range workerSpec {
		role, count, err := parseSpec(spec)
		if err != nil {
			return err
		}
		for i := 1; i <= count; i++ {
			id := coordination.WorkerID(fmt.Sprintf("%s-%d", role, i))
			ch, err := orch.AddWorker(id, role)
			if err != nil {
				return err
			}
			go func(id coordination.WorkerID, ch <-chan *coordination.Message) {
				for msg := range ch {
					log.Info("message delivered",
						zap.String("worker", string(id)),
						zap.String("type", string(msg.Type)))
				}
			}(id, ch)
		}
	}
	return nil
}

func parseSpec(spec string) (coordination.Role, int, error) {
	parts := strings.SplitN(spec, "=", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("invalid worker spec %q, want role=count", spec)
	}
	count, err := strconv.Atoi(parts[1])
	if err != nil || count < 1 {
		return "", 0, fmt.Errorf("invalid worker count in %q", spec)
	}
	return coordination.Role(strings.ToLower(parts[0])), count, nil
}
