package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kursadbilgin/onboarding-engine/internal/app"
	"github.com/kursadbilgin/onboarding-engine/internal/config"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"github.com/kursadbilgin/onboarding-engine/internal/mcpserver"
	"github.com/kursadbilgin/onboarding-engine/internal/observability"
	"github.com/kursadbilgin/onboarding-engine/internal/queue"
	"github.com/kursadbilgin/onboarding-engine/internal/report"
	"github.com/kursadbilgin/onboarding-engine/internal/service"
)

// errAborted makes the process exit non-zero after the report has been printed.
var errAborted = errors.New("onboarding run aborted")

var rootCmd = &cobra.Command{
	Use:   "onboard ORGANIZATION PROJECT",
	Short: "Onboard a member organization into a project",
	Long: `Onboard resolves a member organization, classifies each of its contacts by job title and
assigns them to the matching project committee, chat channel and welcome email. A landscape
pull request with the organization logo is opened at the end of every run.

Settings are read from the environment (RUN_MODE, BATCH_SIZE, STORE_BACKEND, ...); flags override them.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, a *app.App) error {
			run, err := a.Orchestrator.Run(ctx, service.RunRequest{
				Organization: args[0],
				ProjectSlug:  args[1],
			})
			if run == nil {
				return err
			}

			if err := printReport(run.Summary(), run.Metrics); err != nil {
				return err
			}
			if run.Status == domain.RunStatusAborted {
				return fmt.Errorf("%w: %s", errAborted, run.AbortReason)
			}
			return nil
		})
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ONBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Int("batch-size", 0, "contacts processed concurrently per batch (overrides BATCH_SIZE)")
	rootCmd.PersistentFlags().String("run-mode", "", "local or live collaborators (overrides RUN_MODE)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides LOG_LEVEL)")
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("batch-size", rootCmd.PersistentFlags().Lookup("batch-size"))
	_ = viper.BindPFlag("run-mode", rootCmd.PersistentFlags().Lookup("run-mode"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(mcpCmd())
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report RUN_ID",
		Short: "Print the stored report of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, a *app.App) error {
				summary, err := a.Onboarding.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				return printReport(*summary, nil)
			})
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued onboarding requests from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{WithBroker: true}, func(ctx context.Context, a *app.App) error {
				if a.Broker == nil {
					return fmt.Errorf("RABBITMQ_URL is required for the worker")
				}

				consumer := queue.NewRabbitMQConsumer(a.Broker, a.Config.WorkerConcurrency, a.Logger)
				worker, err := service.NewWorkerService(consumer, a.Orchestrator, a.Config.WorkerConcurrency, a.Logger)
				if err != nil {
					return err
				}

				a.Logger.Info("onboarding worker started", zap.Int("concurrency", a.Config.WorkerConcurrency))
				if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				a.Logger.Info("onboarding worker stopped")
				return nil
			})
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve onboarding tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, a *app.App) error {
				s, err := mcpserver.NewServer(a.Onboarding, a.Logger)
				if err != nil {
					return err
				}
				return s.ServeStdio()
			})
		},
	}
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	changed := false
	if size := viper.GetInt("batch-size"); size > 0 {
		cfg.BatchSize = size
		changed = true
	}
	if mode := strings.TrimSpace(viper.GetString("run-mode")); mode != "" {
		cfg.RunMode = strings.ToLower(mode)
		if cfg.RunMode == "production" {
			cfg.RunMode = config.RunModeLive
		}
		changed = true
	}
	if level := strings.TrimSpace(viper.GetString("log-level")); level != "" {
		cfg.LogLevel = level
	}

	if changed {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func withApp(ctx context.Context, opts app.Options, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	a, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printReport(summary domain.RunSummary, metrics *domain.RunMetrics) error {
	if viper.GetBool("json") {
		return printJSON(report.NewDocument(summary, metrics))
	}
	report.RenderTable(os.Stdout, summary, metrics)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
