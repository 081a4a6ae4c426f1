package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sessiontrail/sessiontrail/internal/config"
	"github.com/sessiontrail/sessiontrail/internal/index"
	"github.com/sessiontrail/sessiontrail/internal/logging"
	"github.com/sessiontrail/sessiontrail/internal/parsers"
	"github.com/sessiontrail/sessiontrail/internal/processor"
	"github.com/spf13/cobra"
)

var processorOnce bool

var processorCmd = &cobra.Command{
	Use:   "processor",
	Short: "Run the processing daemon on the server",
	Long: `Watch the inbox for synced conversation files, parse them into canonical
messages, index them into Typesense, and archive fully processed files.
Runs continuously until interrupted; use --once for a single cycle.

When Typesense is unreachable after the connection retries, the
processor still parses files and tracks offsets but skips indexing.`,
	RunE: runProcessor,
}

func init() {
	processorCmd.Flags().BoolVar(&processorOnce, "once", false, "run one processing cycle and exit")
}

func runProcessor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.Setup("processor", cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}

	state, err := processor.OpenState(cfg.Server.StateDB)
	if err != nil {
		return fmt.Errorf("open processor state: %w", err)
	}
	defer state.Close()

	var indexer processor.Indexer
	if client := index.Connect(cfg.Typesense.URL(), cfg.Typesense.APIKey, 10, 5*time.Second, logger); client != nil {
		indexer = client
	}

	daemon := processor.NewDaemon(processor.Options{
		Inbox:    cfg.Server.InboxPath,
		Archive:  cfg.Server.ArchivePath,
		Interval: time.Duration(cfg.Server.IntervalSeconds) * time.Second,
	}, state, parsers.NewRegistry(), indexer, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("processor starting",
		"inbox", cfg.Server.InboxPath,
		"archive", cfg.Server.ArchivePath,
		"interval_seconds", cfg.Server.IntervalSeconds)

	if processorOnce {
		stats := daemon.RunCycle(ctx)
		logger.Info("processing cycle complete",
			"files", stats.Files,
			"messages", stats.Messages,
			"indexed", stats.Indexed,
			"archived", stats.Archived)
		return nil
	}

	daemon.Run(ctx)
	logger.Info("processor stopped")
	return nil
}
