package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/fenilsonani/treeaudit/internal/config"
	"github.com/fenilsonani/treeaudit/internal/logging"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var (
	configPath string
	logLevel   string
	logFile    string
	traceRuns  bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "treeaudit",
	Short: "Audit a directory tree for age, size and duplicate content",
	Long: heredoc.Doc(`
		treeaudit walks a directory tree once and reports:

		  - files grouped into named age and size buckets
		  - sets of duplicate files and the space they waste
		  - a per-directory breakdown of file counts and cumulative sizes

		Scan inventories are cached per target so repeated audits of the same
		tree skip the walk. Use --force-rescan to ignore the cache.
	`),
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/treeaudit/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "append logs to this file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&traceRuns, "trace", false, "print OpenTelemetry spans for each phase to stderr")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// loadConfig reads the config file and applies the global flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}
	if flags.Changed("trace") {
		cfg.Trace = traceRuns
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.NewLogger(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// initTracer installs a stdout span exporter writing to stderr
func initTracer() (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("treeaudit"),
		semconv.ServiceVersion(Version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp, nil
}

// startTracing enables tracing when requested and returns its shutdown hook
func startTracing(enabled bool, logger *logging.Logger) func() {
	if !enabled {
		return func() {}
	}
	tp, err := initTracer()
	if err != nil {
		logger.Warn("tracing disabled: %v", err)
		return func() {}
	}
	return func() {
		if err := tp.Shutdown(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("error shutting down tracer provider: %v", err)
		}
	}
}
