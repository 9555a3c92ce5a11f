package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/case-analyst/internal/core/domain"
	"github.com/kirillkom/case-analyst/internal/core/ports"
)

type RunOptions struct {
	Model       string
	Concurrency int
}

// RunAnalysisUseCase analyzes every document against every case.
type RunAnalysisUseCase struct {
	source    ports.DocumentSource
	extractor ports.TextExtractor
	cases     ports.CaseRegistry
	prompts   ports.PromptBuilder
	client    ports.AnalysisClient
	writer    ports.ResultWriter
	observer  ports.RunObserver
	opts      RunOptions
	log       *slog.Logger
}

func NewRunAnalysisUseCase(
	source ports.DocumentSource,
	extractor ports.TextExtractor,
	cases ports.CaseRegistry,
	prompts ports.PromptBuilder,
	client ports.AnalysisClient,
	writer ports.ResultWriter,
	observer ports.RunObserver,
	opts RunOptions,
	logger *slog.Logger,
) *RunAnalysisUseCase {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunAnalysisUseCase{
		source:    source,
		extractor: extractor,
		cases:     cases,
		prompts:   prompts,
		client:    client,
		writer:    writer,
		observer:  observer,
		opts:      opts,
		log:       logger,
	}
}

type pair struct {
	index int
	doc   domain.Document
	c     domain.Case
}

type pairStatus int

const (
	pairSkipped pairStatus = iota
	pairSucceeded
	pairFailed
)

type pairOutcome struct {
	status pairStatus
	result domain.AnalysisResult
	paths  []string
}

// Run validates inputs, then processes the document x case product. Per-pair
// failures are collected in the summary; auth and output errors stop the run
// and are returned together with the partial summary.
func (uc *RunAnalysisUseCase) Run(ctx context.Context, req domain.RunRequest) (domain.RunSummary, error) {
	started := time.Now()
	model := req.Model
	if model == "" {
		model = uc.opts.Model
	}
	summary := domain.RunSummary{
		Model:    model,
		Outputs:  []domain.PairOutput{},
		Failures: []domain.PairFailure{},
	}

	cases, err := uc.cases.Load(ctx, req.CasesFile)
	if err != nil {
		return summary, fmt.Errorf("load cases: %w", err)
	}
	docs, err := uc.source.List(ctx)
	if err != nil {
		return summary, fmt.Errorf("list documents: %w", err)
	}
	if err := uc.writer.Prepare(ctx); err != nil {
		return summary, fmt.Errorf("prepare output: %w", err)
	}

	pairs := buildPairs(docs, cases)
	summary.Documents = len(docs)
	summary.Cases = len(cases)
	summary.Pairs = len(pairs)
	uc.log.Info("run_start",
		"model", model,
		"documents", len(docs),
		"cases", len(cases),
		"pairs", len(pairs),
		"concurrency", uc.opts.Concurrency,
	)
	if len(docs) == 0 {
		uc.log.Warn("run_no_documents")
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	cache := newTextCache(uc.extractor, uc.observer)
	outcomes := make([]pairOutcome, len(pairs))
	var (
		mu        sync.Mutex
		completed int
		fatalErr  error
	)

	var g errgroup.Group
	g.SetLimit(uc.opts.Concurrency)
	for _, p := range pairs {
		if runCtx.Err() != nil {
			break
		}
		p := p
		g.Go(func() error {
			if runCtx.Err() != nil {
				return nil
			}
			outcome, fatal := uc.runPair(runCtx, cache, p, model)
			outcomes[p.index] = outcome

			mu.Lock()
			defer mu.Unlock()
			if fatal && fatalErr == nil {
				fatalErr = outcome.result.Err
				cancel(fatalErr)
			}
			if outcome.status != pairSkipped {
				completed++
				uc.logPairDone(outcome, completed, len(pairs))
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o.status {
		case pairSucceeded:
			summary.Succeeded++
			if o.result.Truncated {
				summary.Truncated++
			}
			summary.Outputs = append(summary.Outputs, domain.PairOutput{
				DocumentID: o.result.DocumentID,
				CaseName:   o.result.CaseName,
				Truncated:  o.result.Truncated,
				Paths:      o.paths,
			})
		case pairFailed:
			summary.Failed++
			if o.result.Truncated {
				summary.Truncated++
			}
			summary.Failures = append(summary.Failures, domain.PairFailure{
				DocumentID: o.result.DocumentID,
				CaseName:   o.result.CaseName,
				Kind:       domain.KindName(o.result.Err),
				Reason:     o.result.Err.Error(),
				Truncated:  o.result.Truncated,
			})
		default:
			summary.Skipped++
		}
	}
	summary.Duration = time.Since(started)

	uc.log.Info("run_done",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"truncated", summary.Truncated,
		"duration_ms", summary.Duration.Milliseconds(),
	)

	if fatalErr != nil {
		return summary, fmt.Errorf("run aborted: %w", fatalErr)
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// runPair reports fatal=true when the pair's error must stop the run.
func (uc *RunAnalysisUseCase) runPair(ctx context.Context, cache *textCache, p pair, model string) (pairOutcome, bool) {
	uc.observer.StartPair()
	started := time.Now()
	result := domain.AnalysisResult{
		DocumentID: p.doc.ID,
		CaseName:   p.c.Name,
		Criteria:   p.c.Criteria,
		Model:      model,
	}

	outcome, fatal := uc.analyzePair(ctx, cache, p, result)
	uc.observer.FinishPair(outcome.result, time.Since(started))
	return outcome, fatal
}

func (uc *RunAnalysisUseCase) analyzePair(ctx context.Context, cache *textCache, p pair, result domain.AnalysisResult) (pairOutcome, bool) {
	fail := func(err error) pairOutcome {
		result.Err = err
		if ctx.Err() != nil && isCancellation(err) {
			return pairOutcome{status: pairSkipped, result: result}
		}
		return pairOutcome{status: pairFailed, result: result}
	}

	text, err := cache.Get(ctx, p.doc)
	if err != nil {
		return fail(err), false
	}

	prompt, err := uc.prompts.Build(text, p.c)
	if err != nil {
		return fail(err), false
	}
	result.Prompt = prompt
	result.Truncated = prompt.Truncated
	if prompt.Truncated {
		uc.log.Warn("prompt_truncated",
			"document", p.doc.ID,
			"case", p.c.Name,
			"document_tokens", prompt.DocumentTokens,
			"kept_tokens", prompt.KeptTokens,
		)
	}

	analysis, err := uc.client.Analyze(ctx, domain.AnalysisRequest{
		DocumentID: p.doc.ID,
		CaseName:   p.c.Name,
		Model:      result.Model,
		Prompt:     prompt,
	})
	if err != nil {
		return fail(err), domain.IsFatal(err)
	}
	result.Analysis = analysis

	// A finished call is persisted even if the run is being canceled.
	paths, err := uc.writer.Write(context.WithoutCancel(ctx), result)
	if err != nil {
		result.Err = err
		return pairOutcome{status: pairFailed, result: result}, domain.IsFatal(err)
	}
	return pairOutcome{status: pairSucceeded, result: result, paths: paths}, false
}

func (uc *RunAnalysisUseCase) logPairDone(o pairOutcome, completed, total int) {
	attrs := []any{
		"document", o.result.DocumentID,
		"case", o.result.CaseName,
		"progress", fmt.Sprintf("%d/%d", completed, total),
		"truncated", o.result.Truncated,
	}
	if o.status == pairFailed {
		uc.log.Warn("pair_failed", append(attrs, "kind", domain.KindName(o.result.Err), "error", o.result.Err)...)
		return
	}
	uc.log.Info("pair_done", append(attrs, "attempts", o.result.Analysis.Attempts)...)
}

func buildPairs(docs []domain.Document, cases []domain.Case) []pair {
	pairs := make([]pair, 0, len(docs)*len(cases))
	for _, doc := range docs {
		for _, c := range cases {
			pairs = append(pairs, pair{index: len(pairs), doc: doc, c: c})
		}
	}
	return pairs
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type noopObserver struct{}

func (noopObserver) StartPair() {}

func (noopObserver) FinishPair(domain.AnalysisResult, time.Duration) {}

func (noopObserver) ObserveExtraction(string, error) {}
