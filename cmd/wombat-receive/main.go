// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

// Wombat-receive fetches a combat log from a hosting peer. It takes the
// session code printed by wombat-share, connects to the host embedded
// in it, authenticates, and writes the received log to stdout or a
// file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/wombat-foundation/wombat/lib/config"
	"github.com/wombat-foundation/wombat/lib/version"
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
		timeout     time.Duration
		outputPath  string
		merge       bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("wombat-receive", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: WOMBAT_CONFIG or built-in defaults)")
	flagSet.DurationVar(&timeout, "timeout", 0, "whole-exchange budget (default: from config)")
	flagSet.StringVarP(&outputPath, "output", "o", "", "write the received log to this file instead of stdout")
	flagSet.BoolVar(&merge, "merge", false, "append to --output instead of overwriting")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("wombat-receive %s\n", version.Info())
		return nil
	}
	if merge && outputPath == "" {
		return fmt.Errorf("--merge requires --output")
	}

	args := flagSet.Args()
	if len(args) != 1 {
		return fmt.Errorf("usage: wombat-receive [flags] <session-code>")
	}
	code := args[0]

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if timeout == 0 {
		timeout = cfg.ReceiveTimeout()
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	payload, err := session.Receive(ctx, code, timeout)
	if err != nil {
		return err
	}

	return writePayload(outputPath, merge, payload)
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

func writePayload(outputPath string, merge bool, payload string) error {
	if outputPath == "" {
		_, err := os.Stdout.WriteString(payload)
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if merge {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	file, err := os.OpenFile(outputPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", outputPath, err)
	}
	if _, err := file.WriteString(payload); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}
	fmt.Fprintf(os.Stderr, "received %d bytes to %s\n", len(payload), outputPath)
	return nil
}
