package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"github.com/kirillkom/case-analyst/internal/core/domain"
	"github.com/kirillkom/case-analyst/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	operationChat  = "chat"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Temperature is omitted from requests when nil.
	Temperature *float64
	// RequestsPerMinute paces calls across all workers. Zero disables pacing.
	RequestsPerMinute int
}

// Client implements ports.AnalysisClient on the Chat Completions API.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature *float64
	httpClient  *http.Client
	executor    *resilience.Executor
	limiter     *rate.Limiter
	schema      *jsonschema.Schema
	log         *slog.Logger
}

func New(cfg Config, executor *resilience.Executor, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrAuth, "openai client", errors.New("OPENAI_API_KEY is required"))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compileInsightsSchema()
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{},
		executor:    executor,
		limiter:     limiter,
		schema:      schema,
		log:         logger,
	}, nil
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

type chatRequest struct {
	Model          string           `json:"model"`
	Messages       []domain.Message `json:"messages"`
	Temperature    *float64         `json:"temperature,omitempty"`
	ResponseFormat responseFormat   `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      domain.Message `json:"message"`
		FinishReason string         `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Analyze sends the prompt and retries transient failures. Exhausted retries
// are reported as domain.ErrAnalysisFailed; auth and request errors are
// returned on the first attempt.
func (c *Client) Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.Analysis, error) {
	rid := uuid.NewString()
	start := time.Now()
	model := req.Model
	if model == "" {
		model = c.model
	}

	c.log.Debug("llm_analyze_start",
		"req_id", rid,
		"model", model,
		"document", req.DocumentID,
		"case", req.CaseName,
		"prompt_tokens_est", req.Prompt.Tokens,
	)

	var out domain.Analysis
	attempts := 0
	var opts []resilience.CallOption
	if c.limiter != nil {
		opts = append(opts, resilience.WithPacing(func(ctx context.Context) error {
			return c.limiter.Wait(ctx)
		}))
	}
	err := c.executor.Execute(ctx, "openai."+operationChat, func(attemptCtx context.Context) error {
		attempts++
		analysis, err := c.complete(attemptCtx, rid, model, req.Prompt.Messages)
		if err != nil {
			return err
		}
		out = analysis
		return nil
	}, classifyOpenAIError, opts...)
	if err != nil {
		err = finalError(ctx, err)
		c.log.Warn("llm_analyze_failed",
			"req_id", rid,
			"document", req.DocumentID,
			"case", req.CaseName,
			"attempts", attempts,
			"kind", domain.KindName(err),
			"circuit_open", resilience.IsCircuitOpen(err),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return domain.Analysis{}, err
	}

	out.Attempts = attempts
	c.log.Info("llm_analyze_ok",
		"req_id", rid,
		"document", req.DocumentID,
		"case", req.CaseName,
		"attempts", attempts,
		"quotes", len(out.Insights.Quotes),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (c *Client) complete(ctx context.Context, requestID, model string, messages []domain.Message) (domain.Analysis, error) {
	request := chatRequest{
		Model:          model,
		Messages:       messages,
		Temperature:    c.temperature,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	var response chatResponse
	if err := c.postJSON(ctx, "/chat/completions", requestID, request, &response, operationChat); err != nil {
		return domain.Analysis{}, wrapKind("openai "+operationChat, err)
	}
	if len(response.Choices) == 0 {
		return domain.Analysis{}, domain.WrapError(domain.ErrTemporary, "openai "+operationChat, errors.New("no choices in response"))
	}

	content := strings.TrimSpace(response.Choices[0].Message.Content)
	insights, err := c.parseInsights(content)
	if err != nil {
		if response.Choices[0].FinishReason == "length" {
			err = fmt.Errorf("response cut at completion limit: %w", err)
		}
		return domain.Analysis{}, domain.WrapError(domain.ErrTemporary, "openai "+operationChat, err)
	}

	out := domain.Analysis{Insights: insights, Raw: content}
	if response.Usage != nil {
		out.PromptTokens = response.Usage.PromptTokens
		out.CompletionTokens = response.Usage.CompletionTokens
	}
	return out, nil
}

func (c *Client) parseInsights(content string) (domain.Insights, error) {
	raw := []byte(extractJSONObject(content))

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Insights{}, fmt.Errorf("parse insights json: %w", err)
	}
	if err := c.schema.Validate(doc); err != nil {
		return domain.Insights{}, fmt.Errorf("insights do not match schema: %w", err)
	}

	var insights domain.Insights
	if err := json.Unmarshal(raw, &insights); err != nil {
		return domain.Insights{}, fmt.Errorf("decode insights: %w", err)
	}
	if insights.Quotes == nil {
		insights.Quotes = []domain.Quote{}
	}
	return insights, nil
}

func compileInsightsSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(domain.InsightsSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal insights schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("insights.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add insights schema: %w", err)
	}
	schema, err := compiler.Compile("insights.json")
	if err != nil {
		return nil, fmt.Errorf("compile insights schema: %w", err)
	}
	return schema, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
