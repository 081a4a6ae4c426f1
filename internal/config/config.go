// Package config loads the YAML configuration shared by the collector
// and processor commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Collector configures the per-machine collection daemon.
type Collector struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	OutboxPath      string `yaml:"outbox_path"`
	StateDB         string `yaml:"state_db"`
}

// Server configures the processor side.
type Server struct {
	InboxPath       string `yaml:"inbox_path"`
	ArchivePath     string `yaml:"archive_path"`
	StateDB         string `yaml:"state_db"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// Typesense configures the search backend connection.
type Typesense struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Protocol string `yaml:"protocol"`
	APIKey   string `yaml:"api_key"`
}

// Config is the full application configuration.
type Config struct {
	MachineID string    `yaml:"machine_id"`
	LogLevel  string    `yaml:"log_level"`
	LogFile   string    `yaml:"log_file"`
	Collector Collector `yaml:"collector"`
	Server    Server    `yaml:"server"`
	Typesense Typesense `yaml:"typesense"`
}

// URL returns the base URL for the Typesense server.
func (t Typesense) URL() string {
	return fmt.Sprintf("%s://%s:%d", t.Protocol, t.Host, t.Port)
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		MachineID: "",
		LogLevel:  "info",
		Collector: Collector{
			IntervalSeconds: 30,
			OutboxPath:      filepath.Join(home, "sessiontrail", "outbox"),
			StateDB:         filepath.Join(home, "sessiontrail", "state", "collector.db"),
		},
		Server: Server{
			InboxPath:       "/data/sessiontrail/inbox",
			ArchivePath:     "/data/sessiontrail/archive",
			StateDB:         "/data/sessiontrail/state/processor.db",
			IntervalSeconds: 30,
		},
		Typesense: Typesense{
			Host:     "localhost",
			Port:     8108,
			Protocol: "http",
			APIKey:   "dev-api-key",
		},
	}
}

// searchPaths are checked in order when no --config flag is given.
func searchPaths() []string {
	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	return []string{
		filepath.Join(cwd, "config.yaml"),
		filepath.Join(home, ".config", "sessiontrail", "config.yaml"),
		"/etc/sessiontrail/config.yaml",
	}
}

// Load reads configuration from path, or from the first file found in
// the standard search locations when path is empty. A missing file
// yields defaults, not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range searchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.MachineID = expandEnv(cfg.MachineID)
	cfg.Typesense.APIKey = expandEnv(cfg.Typesense.APIKey)
	cfg.Collector.OutboxPath = expandPath(cfg.Collector.OutboxPath)
	cfg.Collector.StateDB = expandPath(cfg.Collector.StateDB)
	cfg.Server.InboxPath = expandPath(cfg.Server.InboxPath)
	cfg.Server.ArchivePath = expandPath(cfg.Server.ArchivePath)
	cfg.Server.StateDB = expandPath(cfg.Server.StateDB)
	cfg.LogFile = expandPath(cfg.LogFile)

	if cfg.MachineID == "" || cfg.MachineID == "unknown" {
		cfg.MachineID = resolveMachineID()
	}
	if cfg.Collector.IntervalSeconds <= 0 {
		cfg.Collector.IntervalSeconds = 30
	}
	if cfg.Server.IntervalSeconds <= 0 {
		cfg.Server.IntervalSeconds = 30
	}

	return cfg, nil
}

// expandEnv substitutes a whole-string ${VAR} reference, leaving the
// literal in place when the variable is unset.
func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		if env, ok := os.LookupEnv(value[2 : len(value)-1]); ok {
			return env
		}
	}
	return value
}

// expandPath expands a leading ~ and any environment variables.
func expandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}

// resolveMachineID prefers the hostname. Machines without one get a
// generated UUID persisted next to the user config so the ID is stable
// across runs.
func resolveMachineID() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return uuid.NewString()
	}
	idPath := filepath.Join(home, ".config", "sessiontrail", "machine-id")

	if data, err := os.ReadFile(idPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(idPath), 0755); err == nil {
		os.WriteFile(idPath, []byte(id+"\n"), 0644)
	}
	return id
}
