// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/inertial_tracker/internal/app"
	"github.com/relabs-tech/inertial_tracker/internal/config"
	"github.com/relabs-tech/inertial_tracker/internal/transport"
)

const defaultConfig = "tracker_config.txt"

var rootCmd = &cobra.Command{
	Use:           "tracker",
	Short:         "BNO08x inertial tracker firmware",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run drives every configured sensor and forwards its data upstream.",
	Long: `run drives every configured sensor and forwards its data upstream.
Configuration is read as KEY=VALUE lines from the --config path. Every key can be
overridden by an environment variable named TRACKER_<KEY>.
If WEB_SERVER_PORT is non-zero the status surface is served on that port.`,
	Example: `  tracker run --config=/etc/tracker/tracker_config.txt
  tracker run --mock --debug`,
	RunE: runE,
}

var calibrateCmd = &cobra.Command{
	Use:     "calibrate",
	Short:   "calibrate runs the sensor calibration routine and saves the result.",
	Args:    cobra.NoArgs,
	Example: `  tracker calibrate --sensor 1`,
	RunE:    calibrateE,
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "console prints every packet the tracker publishes over MQTT.",
	RunE:  consoleE,
}

func newLogger(cmd *cobra.Command) (*zap.SugaredLogger, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// setup loads configuration and builds the logger shared by every command.
func setup(cmd *cobra.Command) (*config.Config, *zap.SugaredLogger, error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	v := config.NewViper()
	if f := cmd.Flags().Lookup("mock"); f != nil {
		if err := v.BindPFlag("mock_sensors", f); err != nil {
			return nil, nil, err
		}
	}
	path, _ := cmd.Flags().GetString("config")
	if err := config.InitGlobal(v, path); err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return config.Get(), logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runE(cmd *cobra.Command, _ []string) (err error) {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	clk := clock.New()
	rt, err := app.Build(cfg, clk, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, rt.Close()) }()

	ctx, cancel := signalContext()
	defer cancel()

	go rt.LEDs.Run(ctx)
	if err := rt.Tracker.Setup(); err != nil {
		logger.Warnw("sensor bring-up incomplete", "err", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Tracker.Run(ctx) })
	if cfg.WebServerPort > 0 {
		srv := app.NewStatusServer(rt.Tracker, clk, logger.Named("web"))
		g.Go(func() error { return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.WebServerPort)) })
	}
	return g.Wait()
}

func calibrateE(cmd *cobra.Command, _ []string) (err error) {
	sensor, err := cmd.Flags().GetUint8("sensor")
	if err != nil {
		return err
	}
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	rt, err := app.Build(cfg, clock.New(), logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, rt.Close()) }()

	ctx, cancel := signalContext()
	defer cancel()

	if err := rt.Tracker.Setup(); err != nil {
		logger.Warnw("sensor bring-up incomplete", "err", err)
	}
	return rt.Tracker.Calibrate(ctx, sensor)
}

func consoleE(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	client, err := transport.Dial(cfg.MQTTBroker, cfg.MQTTClientID+"-console", logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ctx, cancel := signalContext()
	defer cancel()
	return app.RunConsoleMQTT(ctx, client, cfg.TopicPrefix, os.Stdout, logger)
}

func main() {
	rootCmd.PersistentFlags().String("config", defaultConfig, "configuration file path")
	rootCmd.PersistentFlags().Bool("debug", false, "toggle debug logging")
	runCmd.Flags().Bool("mock", false, "use mock sensors instead of the I2C bus")
	calibrateCmd.Flags().Uint8("sensor", 0, "sensor slot to calibrate")
	calibrateCmd.Flags().Bool("mock", false, "use mock sensors instead of the I2C bus")
	rootCmd.AddCommand(runCmd, calibrateCmd, consoleCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tracker:", err)
		os.Exit(1)
	}
}
