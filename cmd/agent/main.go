package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/diskwatch-io/diskwatch/internal/agent"
	"github.com/diskwatch-io/diskwatch/internal/agent/config"
	appLogger "github.com/diskwatch-io/diskwatch/internal/logger"
)

// configCandidates returns the paths searched for agent.yaml, highest
// priority first.
func configCandidates() []string {
	var candidates []string

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "diskwatch", "agent.yaml"))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "diskwatch", "agent.yaml"))
	}
	candidates = append(candidates,
		"/etc/diskwatch/agent.yaml",
		"agent.yaml",
	)

	return candidates
}

func findConfigPath() (string, bool) {
	for _, candidate := range configCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}

func main() {
	configPath := pflag.StringP("config", "c", "", "configuration file path (auto-detected if not specified)")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	if *debug {
		appLogger.SetDebug(true)
	}

	// -------- resolve config ---------
	path := *configPath
	if path == "" {
		found, ok := findConfigPath()
		if !ok {
			fmt.Fprintln(os.Stderr, "Configuration file not found.")
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprintln(os.Stderr, "The agent looks for configuration files in this order:")
			for i, candidate := range configCandidates() {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, candidate)
			}
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprintln(os.Stderr, "Create a configuration file in one of these locations, or specify a path with --config")
			os.Exit(1)
		}
		path = found
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("Loaded configuration from %s", path)

	a, err := agent.New(cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize agent: %v", err)
	}

	// -------- run until signalled ---------
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Fatal("Agent exited: %v", err)
	}

	appLogger.Info("Agent exiting.")
}
