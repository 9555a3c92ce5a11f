// Package pdf extracts page text from PDF documents with ledongthuc/pdf.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/case-analyst/internal/core/domain"
	"github.com/kirillkom/case-analyst/internal/core/ports"
)

type Extractor struct {
	source ports.DocumentSource
}

func NewExtractor(source ports.DocumentSource) *Extractor {
	return &Extractor{source: source}
}

func (e *Extractor) Extract(ctx context.Context, doc domain.Document) (domain.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExtractedText{}, err
	}

	reader, err := e.source.Open(ctx, doc.ID)
	if err != nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrExtraction, "open source document", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrExtraction, "read source document", err)
	}

	pages, err := ExtractPages(raw)
	if err != nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrExtraction, "extract "+doc.ID, err)
	}
	return domain.ExtractedText{DocumentID: doc.ID, Pages: pages}, nil
}

// ExtractPages returns the non-empty pages of a PDF. A document without any
// extractable text (for example a scan) is an error.
func ExtractPages(content []byte) (pages []domain.Page, err error) {
	if len(content) == 0 {
		return nil, errors.New("empty PDF content")
	}
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, domain.Page{Number: i, Text: text})
	}
	if len(pages) == 0 {
		return nil, errors.New("no extractable text")
	}
	return pages, nil
}
