package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sessiontrail/sessiontrail/internal/collector"
	"github.com/sessiontrail/sessiontrail/internal/config"
	"github.com/sessiontrail/sessiontrail/internal/logging"
	"github.com/spf13/cobra"
)

var collectorOnce bool

var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "Run the collection daemon on this machine",
	Long: `Scan this machine for AI assistant conversation files and sync new or
changed content into the outbox directory. Runs continuously until
interrupted; use --once for a single sync cycle.`,
	RunE: runCollector,
}

func init() {
	collectorCmd.Flags().BoolVar(&collectorOnce, "once", false, "run one sync cycle and exit")
}

func runCollector(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.Setup("collector", cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}

	state, err := collector.OpenState(cfg.Collector.StateDB)
	if err != nil {
		return fmt.Errorf("open collector state: %w", err)
	}
	defer state.Close()

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}

	daemon := collector.NewDaemon(collector.Options{
		MachineID: cfg.MachineID,
		Home:      home,
		Outbox:    cfg.Collector.OutboxPath,
		Interval:  time.Duration(cfg.Collector.IntervalSeconds) * time.Second,
	}, state, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("collector starting",
		"machine_id", cfg.MachineID,
		"outbox", cfg.Collector.OutboxPath,
		"interval_seconds", cfg.Collector.IntervalSeconds)

	if collectorOnce {
		synced := daemon.RunCycle(ctx)
		logger.Info("sync cycle complete", "files_synced", synced)
		return nil
	}

	daemon.Run(ctx)
	logger.Info("collector stopped")
	return nil
}
