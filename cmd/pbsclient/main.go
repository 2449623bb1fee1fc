package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/privacysandbox/pbs-client-go/internal/config"
	"github.com/privacysandbox/pbs-client-go/internal/launcher"
	"github.com/privacysandbox/pbs-client-go/internal/logging"
	"github.com/privacysandbox/pbs-client-go/internal/metricrouter"
	"github.com/privacysandbox/pbs-client-go/internal/observability"
	"github.com/privacysandbox/pbs-client-go/internal/pbsclient"
	"github.com/privacysandbox/pbs-client-go/internal/telemetry"
	"github.com/privacysandbox/pbs-client-go/internal/transaction"
	"github.com/privacysandbox/pbs-client-go/internal/uuid"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "pbsclient",
		Short: "PBS client - budget-consumption transaction CLI",
		Long:  "A CLI that drives ConsumeBudgetCommand transactions against one or more PBS coordinator endpoints",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional, env vars override)")

	rootCmd.AddCommand(
		beginCmd(),
		phaseCmd(),
		statusCmd(),
		launchCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func newClient(transactionID uuid.UUID, secret string, budgetKeys []transaction.ConsumeBudgetMetadata) (*pbsclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := initObservability(cfg); err != nil {
		return nil, err
	}
	client, result := pbsclient.New(cfg, transactionID, secret, budgetKeys)
	if !result.Successful() {
		return nil, fmt.Errorf("failed to construct client: %s", result.Error())
	}
	return client, nil
}

// initObservability wires up tracing/metrics for one CLI invocation.
// The concrete exporters stop at local Prometheus scraping and OTLP
// tracing; cloud metric-exporter backends are an external collaborator
// per Non-goals and are not implemented here.
func initObservability(cfg *config.Config) error {
	if err := observability.Init(context.Background(), observability.Config{
		Enabled:       cfg.Observability.Tracing.Enabled,
		Exporter:      cfg.Observability.Tracing.Exporter,
		Endpoint:      cfg.Observability.Tracing.Endpoint,
		ServiceName:   cfg.Observability.Tracing.ServiceName,
		SampleRate:    cfg.Observability.Tracing.SampleRate,
		EndpointCount: len(cfg.Endpoints),
		AuthProvider:  cfg.Auth.Provider,
	}); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	if cfg.Observability.Metrics.Enabled {
		telemetry.InitPrometheus(cfg.Observability.Metrics.Namespace)

		// The OTel side of metrics mirrors the Prometheus collectors
		// above rather than replacing them (see internal/telemetry's
		// dual-exporter split). A ManualReader is the local,
		// non-cloud counterpart to Prometheus's pull model: nothing
		// here requires wiring an OTLP metric exporter, which stays
		// out of scope per Non-goals.
		router := metricrouter.NewSDKRouter(sdkmetric.NewManualReader())
		meter := router.GetOrCreateMeter(cfg.Observability.Tracing.ServiceName)
		if err := telemetry.InitOTel(meter); err != nil {
			return fmt.Errorf("init otel metrics: %w", err)
		}
	}
	return nil
}

func beginCmd() *cobra.Command {
	var secret string
	var budgetKeyName string
	var timeBucket int64
	var tokenCount uint64

	cmd := &cobra.Command{
		Use:   "begin",
		Short: "Begin a budget-consumption transaction against every configured endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			txID := uuid.New()
			keys := []transaction.ConsumeBudgetMetadata{{BudgetKeyName: budgetKeyName, TimeBucket: timeBucket, TokenCount: tokenCount}}

			client, err := newClient(txID, secret, keys)
			if err != nil {
				return err
			}
			defer observability.Shutdown(context.Background())

			result := client.InitiateConsumeBudgetTransaction(time.Time{})
			fmt.Printf("transaction_id=%s status=%s code=%s\n", txID.String(), result.Status.String(), result.Code.String())
			if !result.Successful() {
				return fmt.Errorf("begin failed: %s", result.Error())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Transaction secret")
	cmd.Flags().StringVar(&budgetKeyName, "budget-key", "", "Budget key name")
	cmd.Flags().Int64Var(&timeBucket, "time-bucket", 0, "Reporting time bucket")
	cmd.Flags().Uint64Var(&tokenCount, "tokens", 1, "Token count to consume")
	return cmd
}

func phaseCmd() *cobra.Command {
	var secret, phaseName string

	cmd := &cobra.Command{
		Use:   "phase <transaction-id>",
		Short: "Drive one phase (PREPARE, COMMIT, NOTIFY, END, ABORT) across every configured endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid transaction id: %w", err)
			}

			phase := parsePhase(phaseName)
			if phase == transaction.PhaseUnknown {
				return fmt.Errorf("unknown phase %q", phaseName)
			}

			client, err := newClient(txID, secret, nil)
			if err != nil {
				return err
			}
			defer observability.Shutdown(context.Background())

			result := client.ExecuteTransactionPhase(phase, time.Time{})
			fmt.Printf("phase=%s status=%s code=%s\n", phase.String(), result.Status.String(), result.Code.String())
			if !result.Successful() {
				return fmt.Errorf("phase %s failed: %s", phase.String(), result.Error())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Transaction secret")
	cmd.Flags().StringVar(&phaseName, "phase", "", "Phase to execute: PREPARE, COMMIT, NOTIFY, END, ABORT")
	return cmd
}

func statusCmd() *cobra.Command {
	var secret string
	var endpointIndex int

	cmd := &cobra.Command{
		Use:   "status <transaction-id>",
		Short: "Query one endpoint's view of a transaction's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid transaction id: %w", err)
			}

			client, err := newClient(txID, secret, nil)
			if err != nil {
				return err
			}
			defer observability.Shutdown(context.Background())

			status, result := client.GetTransactionStatus(endpointIndex, time.Time{})
			if !result.Successful() {
				return fmt.Errorf("status query failed: %s", result.Error())
			}
			fmt.Printf("phase=%s last_execution_timestamp=%d has_failures=%t is_expired=%t\n",
				status.ExecutionPhase, status.LastExecutionTimestamp, status.HasFailures, status.IsExpired)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Transaction secret")
	cmd.Flags().IntVar(&endpointIndex, "endpoint", 0, "Index into the configured endpoints list")
	return cmd
}

func launchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "launch",
		Short: "Read a {executable_name, command_line_args, restart} JSON blob from stdin and run it",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading launch spec from stdin: %w", err)
			}
			spec, err := launcher.ParseLaunchSpec(data)
			if err != nil {
				return fmt.Errorf("parsing launch spec: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			l := launcher.New(spec)
			if err := l.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{"name": "pbsclient", "version": "dev"}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func parsePhase(name string) transaction.Phase {
	switch name {
	case "BEGIN":
		return transaction.PhaseBegin
	case "PREPARE":
		return transaction.PhasePrepare
	case "COMMIT":
		return transaction.PhaseCommit
	case "NOTIFY":
		return transaction.PhaseNotify
	case "ABORT":
		return transaction.PhaseAbort
	case "END":
		return transaction.PhaseEnd
	default:
		return transaction.PhaseUnknown
	}
}

func init() {
	logging.SetLevelFromString(os.Getenv("PBSCLIENT_LOG_LEVEL"))
}
