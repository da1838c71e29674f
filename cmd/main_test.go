package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ring-scanner/internal/config"
	"github.com/ring-scanner/internal/output"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// parse runs the root command with args and returns the resolved configuration
func parse(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()

	opts := &options{}
	var cfg *config.Config
	var loadErr error
	cmd := newRootCmd(opts, func(cmd *cobra.Command, hosts []string) error {
		cfg, loadErr = loadConfig(cmd, opts, hosts)
		return nil
	})
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return cfg, loadErr
}

func TestFlagDefaults(t *testing.T) {
	cfg, err := parse(t, "example.com")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Scan.Ports != "80" || cfg.Scan.Count != 3 || cfg.Scan.TimeoutMs != 2000 || cfg.Scan.PingTimeoutMs != 1000 {
		t.Fatalf("unexpected defaults %+v", cfg.Scan)
	}
	if cfg.Scan.Once || cfg.Scan.Ping || cfg.Output.JSON || cfg.Output.Quiet {
		t.Fatalf("boolean flags should default to false: %+v", cfg)
	}
	if len(cfg.Scan.Hosts) != 1 || cfg.Scan.Hosts[0] != "example.com" {
		t.Fatalf("unexpected hosts %v", cfg.Scan.Hosts)
	}
}

func TestShortFlags(t *testing.T) {
	cfg, err := parse(t, "-p", "22,443", "-c", "5", "-t", "500", "-i", "-j", "-q", "--ping", "--ping-timeout", "250", "a", "b")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	s := cfg.Scan
	if s.Ports != "22,443" || s.Count != 5 || s.TimeoutMs != 500 || !s.Once || !s.Ping || s.PingTimeoutMs != 250 {
		t.Fatalf("flags not applied: %+v", s)
	}
	if !cfg.Output.JSON || !cfg.Output.Quiet {
		t.Fatalf("output flags not applied: %+v", cfg.Output)
	}
	if len(s.Hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %v", s.Hosts)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.json")
	data := []byte(`{"scan": {"hosts": ["from-file"], "ports": "8080", "count": 7}}`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := parse(t, "--config", path, "-c", "2")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Scan.Hosts[0] != "from-file" || cfg.Scan.Ports != "8080" {
		t.Fatalf("file values lost: %+v", cfg.Scan)
	}
	if cfg.Scan.Count != 2 {
		t.Fatalf("flag should override file count, got %d", cfg.Scan.Count)
	}
}

func TestInvalidFlagValue(t *testing.T) {
	_, err := parse(t, "-c", "0", "example.com")
	if !output.IsConfigError(err) {
		t.Fatalf("expected ConfigError for zero count, got %v", err)
	}
}

func TestSetupLoggingQuiet(t *testing.T) {
	prevLevel := log.GetLevel()
	defer log.SetLevel(prevLevel)

	tests := []struct {
		name  string
		level string
		quiet bool
		want  log.Level
	}{
		{name: "default", level: "info", want: log.InfoLevel},
		{name: "quiet raises info", level: "info", quiet: true, want: log.WarnLevel},
		{name: "quiet keeps debug", level: "debug", quiet: true, want: log.DebugLevel},
		{name: "quiet keeps error", level: "error", quiet: true, want: log.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupLogging(config.LoggingConfig{Level: tt.level, Format: "text"}, tt.quiet)
			if got := log.GetLevel(); got != tt.want {
				t.Fatalf("level = %s, want %s", got, tt.want)
			}
		})
	}
}
