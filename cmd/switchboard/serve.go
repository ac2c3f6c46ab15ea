// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/switchboard/pkg/config"
	"github.com/jllopis/switchboard/pkg/gateway"
	"github.com/jllopis/switchboard/pkg/telemetry"
	"github.com/jllopis/switchboard/pkg/transport/cli"
	"github.com/jllopis/switchboard/pkg/transport/webchat"
)

// shutdownSlack is added to the turn grace period for transports, session
// export and telemetry flushing.
const shutdownSlack = 5 * time.Second

type serveOptions struct {
	cliOnly     bool
	webchatOnly bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the gateway with the configured transports. Without --config the
default file under ~/.switchboard is created on first run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.cliOnly, "cli-only", false, "start only the terminal transport")
	cmd.Flags().BoolVar(&opts.webchatOnly, "webchat-only", false, "start only the web chat transport")
	cmd.MarkFlagsMutuallyExclusive("cli-only", "webchat-only")
	return cmd
}

func (o *serveOptions) channels(cfg *config.Config) []string {
	switch {
	case o.cliOnly:
		return []string{cli.ChannelID}
	case o.webchatOnly:
		return []string{webchat.ChannelID}
	case len(cfg.Gateway.Channels) > 0:
		return cfg.Gateway.Channels
	default:
		return []string{cli.ChannelID, webchat.ChannelID}
	}
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	if root.configPath == "" {
		path, created, err := config.EnsureDefaults(config.DefaultHome())
		if err != nil {
			return NewConfigError(err, path)
		}
		if created {
			fmt.Fprintf(cmd.ErrOrStderr(), "Created default configuration at %s\n", path)
		}
	}
	cfg, _, err := root.loadValid()
	if err != nil {
		return err
	}

	logger := telemetry.ConfigureSlog(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	shutdownTelemetry, err := telemetry.Setup(cmd.Context(), telemetry.Config{
		ServiceName:    "switchboard",
		ServiceVersion: version,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		OTLPTimeout:    cfg.Telemetry.OTLPTimeout,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("config.warning", slog.String("detail", w))
	}
	metrics, err := telemetry.NewGatewayMetrics()
	if err != nil {
		logger.Warn("telemetry.metrics_unavailable", slog.String("error", err.Error()))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.Build(ctx, cfg, logger, gateway.WithGatewayMetrics(metrics))
	if err != nil {
		return err
	}
	for _, ch := range opts.channels(cfg) {
		switch ch {
		case cli.ChannelID:
			gw.AddTransport(cli.New(
				cli.WithInput(cmd.InOrStdin()),
				cli.WithOutput(cmd.OutOrStdout()),
				cli.WithOnExit(gw.RequestShutdown),
				cli.WithLogger(telemetry.Component(logger, "transport.cli")),
			))
		case webchat.ChannelID:
			gw.AddTransport(webchat.New(cfg.Gateway.Addr(),
				webchat.WithAdminToken(cfg.Gateway.AdminToken),
				webchat.WithShutdownHook(gw.RequestShutdown),
				webchat.WithSessions(gw.Store().History),
				webchat.WithSessionReset(gw.Store().Clear),
				webchat.WithHealth(gw.Health().CheckAll),
				webchat.WithLogger(telemetry.Component(logger, "transport.webchat")),
			))
		}
	}

	if err := gw.Start(ctx); err != nil {
		_ = gw.Shutdown(context.Background())
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("gateway.signal_received")
	case <-gw.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout+shutdownSlack)
	defer cancel()
	err = gw.Shutdown(shutdownCtx)
	if terr := shutdownTelemetry(shutdownCtx); terr != nil {
		logger.Warn("telemetry.shutdown_failed", slog.String("error", terr.Error()))
	}
	return err
}
