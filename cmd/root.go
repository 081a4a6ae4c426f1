package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sessiontrail",
	Short: "SessionTrail - Harvest and search AI assistant conversations",
	Long: `SessionTrail collects conversation transcripts from AI coding assistants,
normalizes them into a canonical format, and indexes them for full-text search.

Supported tools:
  - Claude Code
  - Codex CLI
  - VS Code Copilot Chat
  - Gemini CLI
  - OpenCode
  - Antigravity

Run "sessiontrail collector" on each machine you work on, and
"sessiontrail processor" on the machine that hosts the search index.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(collectorCmd)
	rootCmd.AddCommand(processorCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("sessiontrail %s\n", Version)
	},
}
