package ports

import (
	"context"

	"github.com/kirillkom/case-analyst/internal/core/domain"
)

// RunAnalyzer is the inbound contract for one analysis run.
type RunAnalyzer interface {
	Run(ctx context.Context, req domain.RunRequest) (domain.RunSummary, error)
}
