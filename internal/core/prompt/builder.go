// Package prompt turns extracted document text and a case into the chat
// messages sent to the model. Building is pure: the same inputs and budget
// always give the same prompt.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/case-analyst/internal/core/domain"
)

const (
	// DefaultMaxTokens matches the largest single-call prompt of the batch tool.
	DefaultMaxTokens = 64000

	// messageOverhead approximates role and separator tokens per chat message.
	messageOverhead = 4

	truncationNotice = "\n[document truncated to fit the context budget]\n"
)

const systemInstructions = `Given parts of a source document, help a person navigate their social environment and solve an issue as described below.
Extract insights in the form of verbatim quotes that might help the person address the issue.
The issue might be situated in a different context than the document; translate the insights to the person's context.
Prefer quotes that are actionable or can be used as guidance, and quotes that are insightful or thought-provoking.
Extract insights only from the document content.
If there are no insights, leave the fields empty.`

// EstimateTokens approximates the token count of s at four bytes per token,
// rounded up.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

type Builder struct {
	maxTokens int
	schema    string
}

func NewBuilder(maxTokens int) *Builder {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	raw, err := json.Marshal(domain.InsightsSchema())
	if err != nil {
		panic(fmt.Sprintf("prompt: marshal insights schema: %v", err))
	}
	return &Builder{maxTokens: maxTokens, schema: string(raw)}
}

// Build keeps instructions, schema and criteria intact and truncates the
// document body when the prompt would exceed the token budget.
func (b *Builder) Build(text domain.ExtractedText, c domain.Case) (domain.Prompt, error) {
	fixed := []domain.Message{
		{Role: "system", Content: systemInstructions},
		{Role: "system", Content: "Respond with a single JSON object matching this JSON Schema:\n" + b.schema},
		{Role: "user", Content: "<ISSUE>\n" + strings.TrimSpace(c.Criteria) + "\n</ISSUE>"},
	}

	fixedTokens := messageOverhead
	for _, m := range fixed {
		fixedTokens += EstimateTokens(m.Content) + messageOverhead
	}
	if fixedTokens >= b.maxTokens {
		return domain.Prompt{}, domain.WrapError(
			domain.ErrInvalidRequest,
			"build prompt",
			fmt.Errorf("instructions and criteria need %d tokens, budget is %d", fixedTokens, b.maxTokens),
		)
	}
	if len(text.Pages) == 0 {
		return domain.Prompt{}, domain.WrapError(domain.ErrInvalidInput, "build prompt", errors.New("document has no text"))
	}

	budget := (b.maxTokens - fixedTokens) * 4
	full := renderPages(text.Pages, -1)
	body := full
	truncated := false
	if len(full) > budget {
		truncated = true
		room := budget - len(truncationNotice)
		if room < 0 {
			room = 0
		}
		body = renderPages(text.Pages, room) + truncationNotice
		if len(body) > budget {
			body = cutText(body, budget)
		}
	}

	messages := []domain.Message{
		fixed[0],
		fixed[1],
		{Role: "system", Content: body},
		fixed[2],
	}
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content) + messageOverhead
	}

	return domain.Prompt{
		Messages:       messages,
		Tokens:         total,
		DocumentTokens: EstimateTokens(full),
		KeptTokens:     EstimateTokens(body),
		Truncated:      truncated,
	}, nil
}

// renderPages wraps pages in PAGE tags. A negative limit renders everything;
// otherwise output stops at limit bytes with the last page cut short.
func renderPages(pages []domain.Page, limit int) string {
	var sb strings.Builder
	for _, p := range pages {
		open := fmt.Sprintf("<PAGE number=\"%d\">\n", p.Number)
		const closeTag = "\n</PAGE>\n"
		block := open + p.Text + closeTag
		if limit < 0 || sb.Len()+len(block) <= limit {
			sb.WriteString(block)
			continue
		}
		room := limit - sb.Len() - len(open) - len(closeTag)
		if room > 0 {
			if partial := cutText(p.Text, room); partial != "" {
				sb.WriteString(open + partial + closeTag)
			}
		}
		break
	}
	return sb.String()
}

// cutText shortens s to at most limit bytes on a rune boundary, backing up to
// whitespace when one is reasonably close.
func cutText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 0 {
		return ""
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if i := strings.LastIndexFunc(s[:cut], unicode.IsSpace); i > cut/2 {
		cut = i
	}
	return strings.TrimRightFunc(s[:cut], unicode.IsSpace)
}
