/*
SPDX-License-Identifier: Apache-2.0

Copyright 2026 Project Shepherd

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/projectshepherd/shepherd/internal/config"
	"github.com/projectshepherd/shepherd/internal/git"
	"github.com/projectshepherd/shepherd/internal/layout"
	"github.com/projectshepherd/shepherd/internal/metrics"
	"github.com/projectshepherd/shepherd/internal/rancher"
	"github.com/projectshepherd/shepherd/internal/reconcile"
	"github.com/projectshepherd/shepherd/internal/version"
)

var setupLog logr.Logger

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath  string
		logLevel    string
		metricsAddr string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:          version.ClientName,
		Short:        "Aligns Rancher management state, a local working tree and a Git remote",
		Version:      version.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, logLevel, metricsAddr, dryRun)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "",
		"Path to the config file. Defaults to $HOME/.config/shepherd/config.<ext>.")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info or error.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":8080", "Listen address for metrics and health probes.")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what each tick would change without applying anything.")
	return cmd
}

func run(ctx context.Context, configPath, logLevel, metricsAddr string, dryRun bool) error {
	log, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	setupLog = log.WithName("setup")

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		setupLog.Error(err, "Failed to load configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := metrics.InitExporter(ctx)
	if err != nil {
		setupLog.Error(err, "Failed to initialize metrics exporter")
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			setupLog.Error(err, "Failed to shut down metrics exporter")
		}
	}()

	startMetricsServer(metricsAddr)

	api, err := rancher.New(cfg.EndpointURL, cfg.Token, cfg.Insecure, log.WithName("rancher"))
	if err != nil {
		setupLog.Error(err, "Failed to build API client")
		return err
	}

	worker := git.NewWorker(
		cfg.RancherConfigPath,
		cfg.RemoteGitURL,
		cfg.Branch,
		cfg.Credentials(),
		log.WithName("git"),
	)

	reconciler := &reconcile.Reconciler{
		Repo: worker,
		API:  api,
		Tree: layout.Tree{
			Root:     cfg.RancherConfigPath,
			Endpoint: cfg.EndpointURL,
			Format:   cfg.Format(),
		},
		Clusters:   cfg.ClusterNames,
		Log:        log.WithName("reconcile"),
		Interval:   cfg.LoopInterval(),
		RetryDelay: cfg.RetryDelay(),
		DryRun:     dryRun,
	}

	setupLog.Info("Starting reconcile loop",
		"endpoint", cfg.EndpointURL,
		"clusters", cfg.ClusterNames,
		"interval", cfg.LoopInterval().String(),
		"dryRun", dryRun)
	return reconciler.Run(ctx)
}

// startMetricsServer serves the Prometheus registry plus liveness and
// readiness probes on its own listener.
func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		setupLog.Info("Starting metrics server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			setupLog.Error(err, "Problem running metrics server")
			os.Exit(1)
		}
	}()
}

// newLogger builds the daemon logger. SHEPHERD_LOG overrides the flag so
// containers can flip levels without changing arguments.
func newLogger(level string) (logr.Logger, error) {
	if env := os.Getenv("SHEPHERD_LOG"); env != "" {
		level = env
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		if err := zapLevel.Set(level); err != nil {
			return logr.Logger{}, err
		}
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapLevel)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zl, err := zc.Build()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}
