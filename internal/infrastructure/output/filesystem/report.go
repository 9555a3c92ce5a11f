package filesystem

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/kirillkom/case-analyst/internal/core/domain"
)

const reportHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
<style>
body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; max-width: 1200px; margin: 0 auto; padding: 20px; background-color: #f5f5f5; }
h1, h2, h3 { color: #2c3e50; }
blockquote { font-style: italic; color: #2c3e50; border-left: 3px solid #4a90e2; padding-left: 10px; margin: 10px 0; }
hr { border: 0; border-top: 1px solid #e0e0e0; }
</style>
</head>
<body>
`

const reportTail = "</body>\n</html>\n"

// reportRenderer builds the per-pair HTML report from markdown. Raw HTML in
// model output is never passed through.
type reportRenderer struct {
	md goldmark.Markdown
}

func newReportRenderer() *reportRenderer {
	return &reportRenderer{
		md: goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

func (r *reportRenderer) Render(result domain.AnalysisResult) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, reportHead, html.EscapeString("Cases and Quotes: "+result.CaseName))
	if err := r.md.Convert([]byte(reportMarkdown(result)), &buf); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	buf.WriteString(reportTail)
	return buf.Bytes(), nil
}

func reportMarkdown(result domain.AnalysisResult) string {
	var sb strings.Builder
	insights := result.Analysis.Insights

	sb.WriteString("# Cases and Quotes\n\n")
	sb.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&sb, "| **Source file** | %s |\n", escapeCell(result.DocumentID))
	fmt.Fprintf(&sb, "| **Case** | %s |\n", escapeCell(result.CaseName))
	fmt.Fprintf(&sb, "| **Model** | %s |\n\n", escapeCell(result.Model))
	if result.Truncated {
		fmt.Fprintf(&sb, "*The document was truncated to about %d of %d tokens before analysis.*\n\n",
			result.Prompt.KeptTokens, result.Prompt.DocumentTokens)
	}

	sb.WriteString("## Case\n\n")
	sb.WriteString(escapeMarkdown(result.Criteria) + "\n\n")
	sb.WriteString("## General Context\n\n")
	sb.WriteString(orNone(insights.GeneralContext) + "\n\n")
	sb.WriteString("## Relevance\n\n")
	sb.WriteString(orNone(insights.GeneralRelation) + "\n\n")

	sb.WriteString("## Extracted Quotes\n\n")
	if len(insights.Quotes) == 0 {
		sb.WriteString("*No quotes found.*\n")
	}
	for i, q := range insights.Quotes {
		if i > 0 {
			sb.WriteString("---\n\n")
		}
		for _, line := range strings.Split(strings.TrimSpace(q.Text), "\n") {
			sb.WriteString("> " + escapeMarkdown(line) + "\n")
		}
		sb.WriteString("\n")
		if q.Context != "" {
			sb.WriteString(escapeMarkdown(q.Context) + "\n\n")
		}
		if q.Position != "" {
			sb.WriteString("**Position:** " + escapeMarkdown(q.Position) + "\n\n")
		}
		if q.Relation != "" {
			sb.WriteString("**Relevance:** " + escapeMarkdown(q.Relation) + "\n\n")
		}
	}
	return sb.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "*None.*"
	}
	return escapeMarkdown(s)
}

// escapeMarkdown backslash-escapes ASCII punctuation so model text renders
// literally.
func escapeMarkdown(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r < 0x80 && strings.ContainsRune("\\`*_{}[]()<>#+-.!|~&\"'=:", r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(escapeMarkdown(s), "\n", " ")
}
