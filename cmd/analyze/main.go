package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/case-analyst/internal/bootstrap"
	"github.com/kirillkom/case-analyst/internal/config"
	"github.com/kirillkom/case-analyst/internal/core/domain"
	"github.com/kirillkom/case-analyst/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/case-analyst/internal/observability/logging"
)

const (
	exitOK          = 0
	exitFatal       = 1
	exitUsage       = 2
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath      string
	documentFolder  string
	outputFolder    string
	model           string
	cases           string
	concurrency     int
	maxPromptTokens int
	summaryXLSX     string
	metricsFile     string
	timestamp       bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "optional TOML settings file (or ANALYZER_CONFIG)")
	fs.StringVar(&opts.documentFolder, "document-folder", "", "folder containing the PDF documents")
	fs.StringVar(&opts.outputFolder, "output-folder", "", "folder for result files")
	fs.StringVar(&opts.model, "model", "", "model identifier")
	fs.StringVar(&opts.cases, "cases", "", "JSON or YAML file mapping case names to criteria")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "pairs analyzed in parallel")
	fs.IntVar(&opts.maxPromptTokens, "max-prompt-tokens", 0, "prompt token budget per call")
	fs.StringVar(&opts.summaryXLSX, "summary-xlsx", "", "write a run summary workbook to this path")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the run")
	fs.BoolVar(&opts.timestamp, "timestamp", false, "nest results under a timestamped folder")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	config.LoadEnvFiles(".env")
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFatal
	}
	applyFlags(fs, opts, &cfg)

	logger := logging.New(stderr, bootstrap.ServiceName, cfg.LogLevel, cfg.LogFormat)

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFatal
	}
	defer app.Close()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           app.Metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics_listening", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics_server_error", "error", err)
			}
		}()
	}

	summary, runErr := app.RunUC.Run(ctx, domain.RunRequest{CasesFile: cfg.CasesFile, Model: cfg.Model})

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		cancel()
	}
	if cfg.MetricsFile != "" {
		if err := app.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("metrics_textfile_failed", "path", cfg.MetricsFile, "error", err)
		}
	}
	if cfg.SummaryXLSX != "" && summary.Pairs > 0 {
		if err := xlsx.WriteFile(cfg.SummaryXLSX, summary); err != nil {
			logger.Error("summary_workbook_failed", "path", cfg.SummaryXLSX, "error", err)
		}
	}

	printSummary(stdout, summary)
	return exitCode(runErr, stderr)
}

// applyFlags overrides configuration with flags given on the command line.
func applyFlags(fs *flag.FlagSet, opts options, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "document-folder":
			cfg.DocumentFolder = opts.documentFolder
		case "output-folder":
			cfg.OutputFolder = opts.outputFolder
		case "model":
			cfg.Model = opts.model
		case "cases":
			cfg.CasesFile = opts.cases
		case "concurrency":
			cfg.Concurrency = opts.concurrency
		case "max-prompt-tokens":
			cfg.MaxPromptTokens = opts.maxPromptTokens
		case "summary-xlsx":
			cfg.SummaryXLSX = opts.summaryXLSX
		case "metrics-file":
			cfg.MetricsFile = opts.metricsFile
		case "timestamp":
			cfg.TimestampOutput = opts.timestamp
		}
	})
}

func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled) && !domain.IsFatal(err):
		fmt.Fprintln(stderr, "interrupted: pending pairs were skipped")
		return exitInterrupted
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFatal
	}
}

func printSummary(w io.Writer, s domain.RunSummary) {
	if s.Pairs == 0 && s.Documents == 0 && s.Cases == 0 {
		return
	}
	fmt.Fprintf(w, "model %s: %d documents x %d cases = %d pairs\n", s.Model, s.Documents, s.Cases, s.Pairs)
	fmt.Fprintf(w, "%d succeeded, %d failed, %d skipped, %d truncated in %s\n",
		s.Succeeded, s.Failed, s.Skipped, s.Truncated, s.Duration.Round(time.Millisecond))
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  FAILED %s / %s [%s]: %s\n", f.DocumentID, f.CaseName, f.Kind, f.Reason)
	}
}
