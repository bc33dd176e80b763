package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/droverhq/drover/pkg/log"
	"github.com/droverhq/drover/pkg/metrics"
	"github.com/droverhq/drover/pkg/scheduler"
	"github.com/droverhq/drover/pkg/storage"
	"github.com/droverhq/drover/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Drover - Multi-tenant resource-aware task scheduler",
	Long: `Drover schedules concurrent tasks across a pool of nodes with
per-tenant quotas, dependency ordering, deadline-aware priorities,
checkpoint-based preemption and fairness auditing.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Drover version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler daemon",
	Long: `Run the scheduler daemon: restores persisted state from the data
directory, starts the scheduling loop and exposes Prometheus metrics.

Scheduling policy is read from a YAML file when --policy is given;
omitted fields keep their defaults. The policy file can be re-read at
runtime by sending SIGHUP; changes apply at the next round boundary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		policyPath, _ := cmd.Flags().GetString("policy")
		logLevel, _ := cmd.Flags().GetString("log-level")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		taskDuration, _ := cmd.Flags().GetDuration("sim-task-duration")

		log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: jsonLogs})
		logger := log.WithComponent("main")

		policy, err := loadPolicy(policyPath)
		if err != nil {
			return fmt.Errorf("failed to load policy: %v", err)
		}

		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %v", err)
		}

		core, err := scheduler.New(scheduler.Config{
			Store:    store,
			Executor: scheduler.NewLocalExecutor(taskDuration),
			Policy:   policy,
		})
		if err != nil {
			store.Close()
			return fmt.Errorf("failed to create scheduler: %v", err)
		}
		core.Start()
		logger.Info().Str("data_dir", dataDir).Msg("scheduler started")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server error: %v", err)
			}
		}()
		logger.Info().Str("addr", metricsAddr).Msg("metrics listening")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

		for {
			select {
			case sig := <-sigCh:
				if sig == syscall.SIGHUP {
					policy, err := loadPolicy(policyPath)
					if err != nil {
						logger.Error().Err(err).Msg("policy reload failed")
						continue
					}
					core.Configure(policy)
					logger.Info().Msg("policy reloaded")
					continue
				}
				logger.Info().Str("signal", sig.String()).Msg("shutting down")
			case err := <-errCh:
				logger.Error().Err(err).Msg("shutting down")
			}
			break
		}

		core.Stop()
		_ = metricsSrv.Close()
		if err := store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %v", err)
		}
		logger.Info().Msg("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("data-dir", "./drover-data", "Data directory for persisted state")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for Prometheus metrics")
	serveCmd.Flags().String("policy", "", "Path to a YAML policy file")
	serveCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().Bool("json-logs", false, "Emit logs as JSON")
	serveCmd.Flags().Duration("sim-task-duration", 30*time.Second, "Run time of simulated tasks (local executor)")
}

// loadPolicy reads a YAML policy over the defaults. An empty path
// yields the default policy.
func loadPolicy(path string) (types.Policy, error) {
	policy := types.DefaultPolicy()
	if path == "" {
		return policy, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return policy, err
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, err
	}
	return policy, nil
}
