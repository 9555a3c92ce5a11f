package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/case-analyst/internal/core/domain"
)

// DocumentSource discovers and opens input documents.
type DocumentSource interface {
	List(ctx context.Context) ([]domain.Document, error)
	Open(ctx context.Context, documentID string) (io.ReadCloser, error)
}

// TextExtractor extracts plain text from a document.
type TextExtractor interface {
	Extract(ctx context.Context, doc domain.Document) (domain.ExtractedText, error)
}

// CaseRegistry loads the analysis cases of a run.
type CaseRegistry interface {
	Load(ctx context.Context, path string) ([]domain.Case, error)
}

// PromptBuilder combines document text and case criteria into a prompt.
type PromptBuilder interface {
	Build(text domain.ExtractedText, c domain.Case) (domain.Prompt, error)
}

// AnalysisClient sends one prompt to the model, retrying transient failures.
type AnalysisClient interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.Analysis, error)
}

// ResultWriter persists pair results.
type ResultWriter interface {
	Prepare(ctx context.Context) error
	Write(ctx context.Context, result domain.AnalysisResult) ([]string, error)
}

// RunObserver receives per-pair lifecycle events (metrics).
type RunObserver interface {
	StartPair()
	FinishPair(result domain.AnalysisResult, duration time.Duration)
	ObserveExtraction(documentID string, err error)
}
