// Package filesystem writes analysis results below an output folder, one
// file per pair and format.
package filesystem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/case-analyst/internal/core/domain"
	"github.com/kirillkom/case-analyst/internal/infrastructure/storage/localfs"
)

const (
	FormatJSON = "json"
	FormatHTML = "html"
)

type Options struct {
	Formats []string
	// Timestamp nests all results under a folder named after the run start.
	Timestamp bool
	Now       func() time.Time
}

type Writer struct {
	storage *localfs.Storage
	formats []string
	prefix  string
	report  *reportRenderer
}

func New(root string, opts Options) (*Writer, error) {
	formats, err := normalizeFormats(opts.Formats)
	if err != nil {
		return nil, err
	}
	prefix := ""
	if opts.Timestamp {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		prefix = now().Format("060102-1504")
	}
	return &Writer{
		storage: localfs.New(root),
		formats: formats,
		prefix:  prefix,
		report:  newReportRenderer(),
	}, nil
}

func (w *Writer) Prepare(context.Context) error {
	return w.storage.Ensure()
}

// Write stores every configured format for a successful result and returns
// the written paths. Existing files for the same pair are replaced.
func (w *Writer) Write(ctx context.Context, result domain.AnalysisResult) ([]string, error) {
	if result.Failed() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "write result", fmt.Errorf("pair %s/%s has no analysis", result.DocumentID, result.CaseName))
	}

	paths := make([]string, 0, len(w.formats))
	for _, format := range w.formats {
		var (
			body []byte
			err  error
		)
		switch format {
		case FormatJSON:
			body, err = renderJSON(result)
		case FormatHTML:
			body, err = w.report.Render(result)
		}
		if err != nil {
			return paths, domain.WrapError(domain.ErrIO, "render "+format, err)
		}

		key := ResultKey(result.Model, result.DocumentID, result.CaseName, format)
		if w.prefix != "" {
			key = path.Join(w.prefix, key)
		}
		if err := w.storage.Save(ctx, key, bytes.NewReader(body)); err != nil {
			return paths, fmt.Errorf("write %s: %w", key, err)
		}
		paths = append(paths, filepath.Join(w.storage.Root(), filepath.FromSlash(key)))
	}
	return paths, nil
}

type resultRecord struct {
	Document       string          `json:"document"`
	Case           string          `json:"case"`
	Criteria       string          `json:"criteria"`
	Model          string          `json:"model"`
	Truncated      bool            `json:"truncated"`
	PromptTokens   int             `json:"prompt_tokens_estimate"`
	DocumentTokens int             `json:"document_tokens"`
	KeptTokens     int             `json:"kept_tokens"`
	Insights       domain.Insights `json:"insights"`
}

func renderJSON(result domain.AnalysisResult) ([]byte, error) {
	insights := result.Analysis.Insights
	if insights.Quotes == nil {
		insights.Quotes = []domain.Quote{}
	}
	out, err := json.MarshalIndent(resultRecord{
		Document:       result.DocumentID,
		Case:           result.CaseName,
		Criteria:       result.Criteria,
		Model:          result.Model,
		Truncated:      result.Truncated,
		PromptTokens:   result.Prompt.Tokens,
		DocumentTokens: result.Prompt.DocumentTokens,
		KeptTokens:     result.Prompt.KeptTokens,
		Insights:       insights,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func normalizeFormats(formats []string) ([]string, error) {
	if len(formats) == 0 {
		return []string{FormatJSON, FormatHTML}, nil
	}
	seen := make(map[string]bool, len(formats))
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		switch f {
		case "":
			continue
		case FormatJSON, FormatHTML:
		default:
			return nil, domain.WrapError(domain.ErrConfig, "output formats", fmt.Errorf("unsupported format %q", f))
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrConfig, "output formats", fmt.Errorf("no output format selected"))
	}
	return out, nil
}
