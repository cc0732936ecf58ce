// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the arbiter CLI.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jllopis/arbiter/pkg/config"
	"github.com/jllopis/arbiter/pkg/telemetry"
)

var version = "dev"

type globalFlags struct {
	ConfigPath string
	Profile    string
	Overrides  []string
	LogLevel   string
	JSON       bool
}

// app carries what every subcommand shares once flags are parsed.
type app struct {
	flags  globalFlags
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout, errOut: os.Stderr}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		printError(a.errOut, err, a.flags.JSON)
		os.Exit(exitCode(err))
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "arbiter",
		Short:         "Utility-AI decision engine tooling",
		Long:          "arbiter validates action sets, inspects response curves and runs scripted decision scenarios.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.ConfigPath, "config", "", "Config file (YAML or JSON)")
	pf.StringVar(&a.flags.Profile, "profile", "", "Config profile merged from <config>.<profile>.yaml")
	pf.StringArrayVar(&a.flags.Overrides, "set", nil, "Override a config key, e.g. --set engine.curve_miss_strategy=skip_action")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")
	pf.BoolVar(&a.flags.JSON, "json", false, "Print machine-readable output")

	root.AddCommand(
		newValidateCmd(a),
		newCurvesCmd(a),
		newSimulateCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the arbiter version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				cmd.Println("arbiter " + version)
			},
		},
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.LoadWith(config.LoadOptions{
		Path:      a.flags.ConfigPath,
		Profile:   a.flags.Profile,
		Overrides: a.flags.Overrides,
	})
	if err != nil {
		return NewConfigError(err, a.flags.ConfigPath)
	}
	a.cfg = cfg
	level := cfg.Log.Level
	if a.flags.LogLevel != "" {
		level = a.flags.LogLevel
	}
	a.logger = telemetry.ConfigureSlog(a.errOut, level, cfg.Log.Format)
	return nil
}
