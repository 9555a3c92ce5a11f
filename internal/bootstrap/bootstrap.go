package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/case-analyst/internal/config"
	"github.com/kirillkom/case-analyst/internal/core/ports"
	"github.com/kirillkom/case-analyst/internal/core/prompt"
	"github.com/kirillkom/case-analyst/internal/core/usecase"
	casefile "github.com/kirillkom/case-analyst/internal/infrastructure/cases/file"
	"github.com/kirillkom/case-analyst/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/case-analyst/internal/infrastructure/llm/openai"
	"github.com/kirillkom/case-analyst/internal/infrastructure/output/filesystem"
	"github.com/kirillkom/case-analyst/internal/infrastructure/resilience"
	"github.com/kirillkom/case-analyst/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/case-analyst/internal/observability/metrics"
)

const ServiceName = "case-analyst"

type App struct {
	Config  config.Config
	Metrics *metrics.RunMetrics
	RunUC   ports.RunAnalyzer

	closeFn func()
}

// New validates cfg and wires the run pipeline. Nothing touches the network
// or the filesystem here; the run itself validates inputs before any call.
func New(_ context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	runMetrics := metrics.NewRunMetrics(ServiceName)

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: cfg.RetryInitialBackoff,
		RetryMaxBackoff:     cfg.RetryMaxBackoff,
		RetryMultiplier:     2.0,
		RetryMaxElapsed:     cfg.RetryMaxElapsed,
		AttemptTimeout:      cfg.RequestTimeout,
		BreakerEnabled:      cfg.BreakerEnabled,
		OnRetry:             runMetrics.RecordRetry,
	})

	client, err := openai.New(openai.Config{
		APIKey:            cfg.OpenAIAPIKey,
		BaseURL:           cfg.OpenAIBaseURL,
		Model:             cfg.Model,
		Temperature:       cfg.Temperature,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}, executor, logger)
	if err != nil {
		return nil, fmt.Errorf("init analysis client: %w", err)
	}

	writer, err := filesystem.New(cfg.OutputFolder, filesystem.Options{
		Formats:   cfg.OutputFormats,
		Timestamp: cfg.TimestampOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("init result writer: %w", err)
	}

	documents := localfs.New(cfg.DocumentFolder)
	runUC := usecase.NewRunAnalysisUseCase(
		documents,
		pdf.NewExtractor(documents),
		casefile.NewLoader(),
		prompt.NewBuilder(cfg.MaxPromptTokens),
		client,
		writer,
		runMetrics,
		usecase.RunOptions{Model: cfg.Model, Concurrency: cfg.Concurrency},
		logger,
	)

	return &App{
		Config:  cfg,
		Metrics: runMetrics,
		RunUC:   runUC,
		closeFn: client.Close,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
