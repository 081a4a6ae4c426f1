package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sessiontrail/sessiontrail/internal/collector"
	"github.com/sessiontrail/sessiontrail/internal/config"
	"github.com/sessiontrail/sessiontrail/internal/index"
	"github.com/sessiontrail/sessiontrail/internal/parsers"
	"github.com/sessiontrail/sessiontrail/internal/processor"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection and indexing status",
	Long:  `Display the current configuration, per-source sync state, and search backend health.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Printf("SessionTrail v%s\n\n", Version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	fmt.Printf("Machine ID: %s\n", cfg.MachineID)
	fmt.Printf("Outbox:     %s\n", cfg.Collector.OutboxPath)
	fmt.Printf("Inbox:      %s\n", cfg.Server.InboxPath)
	fmt.Printf("Typesense:  %s\n", cfg.Typesense.URL())
	fmt.Println()

	printCollectorStatus(cfg)
	printProcessorStatus(cfg)
	printTypesenseStatus(cfg)
	return nil
}

func printCollectorStatus(cfg config.Config) {
	fmt.Println("Collector:")

	if _, err := os.Stat(cfg.Collector.StateDB); err != nil {
		fmt.Println("  Not started on this machine (no state database)")
		fmt.Println()
		return
	}

	state, err := collector.OpenState(cfg.Collector.StateDB)
	if err != nil {
		fmt.Printf("  Error opening state database: %v\n\n", err)
		return
	}
	defer state.Close()

	total := 0
	var lastSync int64
	for _, source := range parsers.NewRegistry().Sources() {
		files, err := state.List(source)
		if err != nil {
			fmt.Printf("  %-16s error: %v\n", source+":", err)
			continue
		}
		for _, f := range files {
			if f.LastSynced > lastSync {
				lastSync = f.LastSynced
			}
		}
		total += len(files)
		fmt.Printf("  %-16s %d files tracked\n", source+":", len(files))
	}
	fmt.Printf("  Total: %d files", total)
	if lastSync > 0 {
		fmt.Printf(", last sync %s", time.Unix(lastSync, 0).Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	fmt.Println()
}

func printProcessorStatus(cfg config.Config) {
	fmt.Println("Processor:")

	if _, err := os.Stat(cfg.Server.StateDB); err != nil {
		fmt.Println("  Not started on this machine (no state database)")
		fmt.Println()
		return
	}

	state, err := processor.OpenState(cfg.Server.StateDB)
	if err != nil {
		fmt.Printf("  Error opening state database: %v\n\n", err)
		return
	}
	defer state.Close()

	files, err := state.List()
	if err != nil {
		fmt.Printf("  Error listing processed files: %v\n\n", err)
		return
	}

	var lastProcessed int64
	for _, f := range files {
		if f.LastProcessed > lastProcessed {
			lastProcessed = f.LastProcessed
		}
	}
	fmt.Printf("  %d files processed", len(files))
	if lastProcessed > 0 {
		fmt.Printf(", last activity %s", time.Unix(lastProcessed, 0).Format("2006-01-02 15:04:05"))
	}
	fmt.Println()

	pending := processor.DiscoverInboxFiles(cfg.Server.InboxPath)
	fmt.Printf("  %d files waiting in inbox\n", len(pending))
	fmt.Println()
}

func printTypesenseStatus(cfg config.Config) {
	fmt.Println("Search backend:")
	client := index.NewClient(cfg.Typesense.URL(), cfg.Typesense.APIKey)
	if err := client.Health(); err != nil {
		fmt.Printf("  Unreachable: %v\n", err)
		return
	}
	fmt.Println("  Healthy")
}
