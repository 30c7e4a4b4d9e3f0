// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

// Wombat-share hosts a combat log for remote receivers. It maps the
// hosting port on the local gateway via UPnP, reads the log into
// memory, and prints a session code that wombat-receive consumes.
//
// With no file argument it shares the newest log in the game's combat
// log directory. The session runs until Ctrl-C, serving any number of
// receivers; interrupting it releases the port mapping before exit.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/wombat-foundation/wombat/lib/combatlog"
	"github.com/wombat-foundation/wombat/lib/config"
	"github.com/wombat-foundation/wombat/lib/version"
	"github.com/wombat-foundation/wombat/natmap"
	"github.com/wombat-foundation/wombat/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		port        int
		verbose     bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("wombat-share", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: WOMBAT_CONFIG or built-in defaults)")
	flagSet.IntVar(&port, "port", 0, "external TCP port to map (default: from config)")
	flagSet.BoolVar(&verbose, "verbose", false, "log per-connection detail")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("wombat-share %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Share.ExternalPort = port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	filePath, err := resolveLogFile(flagSet.Args(), cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host := &session.Host{
		Mapper: natmap.New(natmap.Config{
			ExternalPort:  uint16(cfg.Share.ExternalPort),
			Description:   cfg.Share.Description,
			LeaseDuration: cfg.LeaseDuration(),
			Logger:        logger,
		}),
		ConnTimeout: cfg.ConnTimeout(),
		Logger:      logger,
	}

	code, err := host.Share(ctx, filePath)
	if err != nil {
		return err
	}

	fmt.Printf("sharing %s\n", filePath)
	fmt.Printf("session code:\n%s\n", code)
	fmt.Println("press Ctrl-C to stop sharing")

	// The accept loop only exits on its own when the listener dies.
	loopDone := make(chan struct{})
	go func() {
		host.Wait()
		close(loopDone)
	}()

	select {
	case <-ctx.Done():
		logger.Info("stopping session")
		host.Stop()
		return nil
	case <-loopDone:
		host.Stop()
		if status := host.Status(); status != "" {
			return fmt.Errorf("session ended: %s", status)
		}
		return fmt.Errorf("session ended unexpectedly")
	}
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// resolveLogFile picks the file to share: the positional argument if
// given, otherwise the newest combat log in the configured (or OS
// default) log directory.
func resolveLogFile(args []string, cfg *config.Config) (string, error) {
	if len(args) > 1 {
		return "", fmt.Errorf("expected at most one file argument, got %d", len(args))
	}
	if len(args) == 1 {
		return args[0], nil
	}

	dir := cfg.Paths.CombatLogs
	if dir == "" {
		var err error
		dir, err = combatlog.Dir()
		if err != nil {
			return "", err
		}
	}
	return combatlog.Latest(dir)
}
