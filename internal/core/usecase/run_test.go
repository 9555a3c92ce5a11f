package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/case-analyst/internal/core/domain"
	"github.com/kirillkom/case-analyst/internal/core/ports"
)

var _ ports.RunAnalyzer = (*RunAnalysisUseCase)(nil)

type sourceFake struct {
	docs []domain.Document
	err  error
}

func (f *sourceFake) List(context.Context) ([]domain.Document, error) { return f.docs, f.err }

func (f *sourceFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type extractorFake struct {
	delay time.Duration
	fail  map[string]error

	mu    sync.Mutex
	calls map[string]int
}

func (f *extractorFake) Extract(_ context.Context, doc domain.Document) (domain.ExtractedText, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[doc.ID]++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := f.fail[doc.ID]; err != nil {
		return domain.ExtractedText{}, err
	}
	return domain.ExtractedText{
		DocumentID: doc.ID,
		Pages:      []domain.Page{{Number: 1, Text: "text of " + doc.ID}},
	}, nil
}

func (f *extractorFake) callsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type casesFake struct {
	cases []domain.Case
	err   error
}

func (f *casesFake) Load(context.Context, string) ([]domain.Case, error) { return f.cases, f.err }

type promptFake struct {
	truncate map[string]bool
}

func (f *promptFake) Build(text domain.ExtractedText, c domain.Case) (domain.Prompt, error) {
	return domain.Prompt{
		Messages:  []domain.Message{{Role: "user", Content: text.Text() + "|" + c.Criteria}},
		Truncated: f.truncate[text.DocumentID],
	}, nil
}

type clientFake struct {
	respond func(ctx context.Context, req domain.AnalysisRequest) (domain.Analysis, error)
	calls   atomic.Int32
}

func (f *clientFake) Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.Analysis, error) {
	f.calls.Add(1)
	if f.respond != nil {
		return f.respond(ctx, req)
	}
	return domain.Analysis{Insights: domain.Insights{GeneralContext: req.DocumentID + "/" + req.CaseName}, Attempts: 1}, nil
}

type writerFake struct {
	prepareErr error
	writeErr   error

	mu      sync.Mutex
	written []domain.AnalysisResult
}

func (f *writerFake) Prepare(context.Context) error { return f.prepareErr }

func (f *writerFake) Write(_ context.Context, result domain.AnalysisResult) ([]string, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, result)
	return []string{result.DocumentID + "/" + result.CaseName + ".json"}, nil
}

func (f *writerFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

type observerFake struct {
	started     atomic.Int32
	finished    atomic.Int32
	extractions atomic.Int32
}

func (f *observerFake) StartPair() { f.started.Add(1) }

func (f *observerFake) FinishPair(domain.AnalysisResult, time.Duration) { f.finished.Add(1) }

func (f *observerFake) ObserveExtraction(string, error) { f.extractions.Add(1) }

type harness struct {
	source    *sourceFake
	extractor *extractorFake
	cases     *casesFake
	prompts   *promptFake
	client    *clientFake
	writer    *writerFake
	observer  *observerFake
}

func newHarness(docIDs []string, caseNames []string) *harness {
	h := &harness{
		source:    &sourceFake{},
		extractor: &extractorFake{},
		cases:     &casesFake{},
		prompts:   &promptFake{},
		client:    &clientFake{},
		writer:    &writerFake{},
		observer:  &observerFake{},
	}
	for _, id := range docIDs {
		h.source.docs = append(h.source.docs, domain.Document{ID: id})
	}
	for _, name := range caseNames {
		h.cases.cases = append(h.cases.cases, domain.Case{Name: name, Criteria: "criteria " + name})
	}
	return h
}

func (h *harness) useCase(concurrency int) *RunAnalysisUseCase {
	return NewRunAnalysisUseCase(
		h.source, h.extractor, h.cases, h.prompts, h.client, h.writer, h.observer,
		RunOptions{Model: "gpt-test", Concurrency: concurrency},
		nil,
	)
}

func TestRunAnalyzesEveryDocumentCasePair(t *testing.T) {
	h := newHarness([]string{"a.pdf", "b.pdf"}, []string{"c1", "c2", "c3"})

	summary, err := h.useCase(2).Run(context.Background(), domain.RunRequest{CasesFile: "cases.json"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Pairs != 6 || summary.Succeeded != 6 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if h.writer.count() != 6 || h.client.calls.Load() != 6 {
		t.Fatalf("expected 6 writes and calls, got %d/%d", h.writer.count(), h.client.calls.Load())
	}
	if summary.Outputs[0].DocumentID != "a.pdf" || summary.Outputs[0].CaseName != "c1" ||
		summary.Outputs[5].DocumentID != "b.pdf" || summary.Outputs[5].CaseName != "c3" {
		t.Fatalf("expected document-major order, got %+v", summary.Outputs)
	}
	if summary.Model != "gpt-test" {
		t.Fatalf("expected default model, got %q", summary.Model)
	}
	if h.observer.started.Load() != 6 || h.observer.finished.Load() != 6 || h.observer.extractions.Load() != 2 {
		t.Fatalf("unexpected observer counts: %d/%d/%d",
			h.observer.started.Load(), h.observer.finished.Load(), h.observer.extractions.Load())
	}
}

func TestRunExtractsEachDocumentOnceUnderConcurrency(t *testing.T) {
	h := newHarness([]string{"a.pdf"}, []string{"c1", "c2", "c3", "c4", "c5"})
	h.extractor.delay = 20 * time.Millisecond

	summary, err := h.useCase(5).Run(context.Background(), domain.RunRequest{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := h.extractor.callsFor("a.pdf"); got != 1 {
		t.Fatalf("expected one extraction, got %d", got)
	}
	if summary.Succeeded != 5 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRunExtractionFailureSkipsOnlyThatDocument(t *testing.T) {
	h := newHarness([]string{"a.pdf", "bad.pdf"}, []string{"c1", "c2"})
	h.extractor.fail = map[string]error{
		"bad.pdf": domain.WrapError(domain.ErrExtraction, "extract bad.pdf", errors.New("encrypted")),
	}

	summary, err := h.useCase(1).Run(context.Background(), domain.RunRequest{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if h.extractor.callsFor("bad.pdf") != 1 {
		t.Fatalf("failed extraction must not be repeated, got %d calls", h.extractor.callsFor("bad.pdf"))
	}
	for _, f := range summary.Failures {
		if f.DocumentID != "bad.pdf" || f.Kind != "ExtractionError" || !strings.Contains(f.Reason, "encrypted") {
			t.Fatalf("unexpected failure: %+v", f)
		}
	}
	if h.client.calls.Load() != 2 {
		t.Fatalf("expected no calls for failed document, got %d", h.client.calls.Load())
	}
}

func TestRunRecordsPairFailureAndContinues(t *testing.T) {
	h := newHarness([]string{"a.pdf"}, []string{"c1", "c2", "c3"})
	h.client.respond = func(_ context.Context, req domain.AnalysisRequest) (domain.Analysis, error) {
		if req.CaseName == "c2" {
			return domain.Analysis{}, domain.WrapError(domain.ErrAnalysisFailed, "openai chat",
				domain.WrapError(domain.ErrTemporary, "openai chat", errors.New("503 overloaded")))
		}
		return domain.Analysis{Attempts: 1}, nil
	}

	summary, err := h.useCase(2).Run(context.Background(), domain.RunRequest{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if f := summary.Failures[0]; f.CaseName != "c2" || f.Kind != "AnalysisFailure" {
		t.Fatalf("unexpected failure: %+v", f)
	}
	if h.writer.count() != 2 {
		t.Fatalf("failed pair must not be written, got %d writes", h.writer.count())
	}
}

func TestRunCountsTruncatedPairs(t *testing.T) {
	h := newHarness([]string{"a.pdf", "big.pdf"}, []string{"c1", "c2"})
	h.prompts.truncate = map[string]bool{"big.pdf": true}

	summary, err := h.useCase(2).Run(context.Background(), domain.RunRequest{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Truncated != 2 {
		t.Fatalf("expected 2 truncated pairs, got %d", summary.Truncated)
	}
	for _, o := range summary.Outputs {
		if o.Truncated != (o.DocumentID == "big.pdf") {
			t.Fatalf("unexpected truncation flag: %+v", o)
		}
	}
}

func TestRunStopsOnAuthError(t *testing.T) {
	h := newHarness([]string{"a.pdf", "b.pdf"}, []string{"c1", "c2"})
	h.client.respond = func(context.Context, domain.AnalysisRequest) (domain.Analysis, error) {
		return domain.Analysis{}, domain.WrapError(domain.ErrAuth, "openai chat", errors.New("401 invalid key"))
	}

	summary, err := h.useCase(1).Run(context.Background(), domain.RunRequest{})
	if !domain.IsKind(err, domain.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if h.client.calls.Load() != 1 {
		t.Fatalf("expected no calls after auth failure, got %d", h.client.calls.Load())
	}
	if summary.Failed != 1 || summary.Skipped != 3 || summary.Pairs != 4 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRunStopsWhenOutputBecomesUnwritable(t *testing.T) {
	h := newHarness([]string{"a.pdf"}, []string{"c1", "c2", "c3"})
	h.writer.writeErr = domain.WrapError(domain.ErrIO, "write result", errors.New("disk full"))

	summary, err := h.useCase(1).Run(context.Background(), domain.RunRequest{})
	if !domain.IsKind(err, domain.ErrIO) {
		t.Fatalf("expected io error, got %v", err)
	}
	if summary.Failed != 1 || summary.Skipped != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRunFatalStartupErrorsMakeNoCalls(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		kind  error
	}{
		{
			name:  "missing cases file",
			setup: func(h *harness) { h.cases.err = domain.WrapError(domain.ErrConfig, "load cases", domain.ErrNotFound) },
			kind:  domain.ErrConfig,
		},
		{
			name:  "missing document folder",
			setup: func(h *harness) { h.source.err = domain.WrapError(domain.ErrNotFound, "list documents", errors.New("gone")) },
			kind:  domain.ErrNotFound,
		},
		{
			name:  "unwritable output",
			setup: func(h *harness) { h.writer.prepareErr = domain.WrapError(domain.ErrIO, "prepare", errors.New("read-only")) },
			kind:  domain.ErrIO,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness([]string{"a.pdf"}, []string{"c1"})
			tt.setup(h)
			_, err := h.useCase(1).Run(context.Background(), domain.RunRequest{})
			if !domain.IsKind(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			if h.client.calls.Load() != 0 || h.extractor.callsFor("a.pdf") != 0 {
				t.Fatalf("expected no work before validation, got %d calls", h.client.calls.Load())
			}
		})
	}
}

func TestRunWithNoDocumentsSucceeds(t *testing.T) {
	h := newHarness(nil, []string{"c1"})
	summary, err := h.useCase(1).Run(context.Background(), domain.RunRequest{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Pairs != 0 || h.client.calls.Load() != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRunCancellationSkipsPendingPairs(t *testing.T) {
	h := newHarness([]string{"a.pdf", "b.pdf"}, []string{"c1", "c2"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.client.respond = func(ctx context.Context, _ domain.AnalysisRequest) (domain.Analysis, error) {
		cancel()
		<-ctx.Done()
		return domain.Analysis{}, ctx.Err()
	}

	summary, err := h.useCase(1).Run(ctx, domain.RunRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if summary.Skipped != 4 || summary.Failed != 0 || summary.Succeeded != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if h.client.calls.Load() != 1 || h.writer.count() != 0 {
		t.Fatalf("expected one abandoned call and no writes, got %d/%d", h.client.calls.Load(), h.writer.count())
	}
}

func TestRunRequestModelOverridesDefault(t *testing.T) {
	h := newHarness([]string{"a.pdf"}, []string{"c1"})
	var seen string
	h.client.respond = func(_ context.Context, req domain.AnalysisRequest) (domain.Analysis, error) {
		seen = req.Model
		return domain.Analysis{}, nil
	}

	summary, err := h.useCase(1).Run(context.Background(), domain.RunRequest{Model: "gpt-other"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if seen != "gpt-other" || summary.Model != "gpt-other" {
		t.Fatalf("expected request model, got %q/%q", seen, summary.Model)
	}
}

func TestRunKeepsTruncationOnFailedPairs(t *testing.T) {
	h := newHarness([]string{"big.pdf"}, []string{"c1", "c2"})
	h.prompts.truncate = map[string]bool{"big.pdf": true}
	h.client.respond = func(_ context.Context, req domain.AnalysisRequest) (domain.Analysis, error) {
		if req.CaseName == "c2" {
			return domain.Analysis{}, domain.WrapError(domain.ErrAnalysisFailed, "openai chat", errors.New("503"))
		}
		return domain.Analysis{Attempts: 1}, nil
	}

	summary, err := h.useCase(1).Run(context.Background(), domain.RunRequest{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Truncated != 2 || len(summary.Failures) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if f := summary.Failures[0]; f.CaseName != "c2" || !f.Truncated {
		t.Fatalf("expected truncated failure for c2, got %+v", f)
	}
}
