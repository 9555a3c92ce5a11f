package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kirillkom/case-analyst/internal/core/domain"
)

type Config struct {
	OpenAIAPIKey  string `toml:"openai_api_key"`
	OpenAIBaseURL string `toml:"openai_base_url"`
	Model         string `toml:"model"`
	// Temperature is left to the model default when nil.
	Temperature *float64 `toml:"temperature"`

	DocumentFolder string `toml:"document_folder"`
	OutputFolder   string `toml:"output_folder"`
	CasesFile      string `toml:"cases_file"`

	MaxPromptTokens   int `toml:"max_prompt_tokens"`
	Concurrency       int `toml:"concurrency"`
	RequestsPerMinute int `toml:"requests_per_minute"`

	RequestTimeout      time.Duration `toml:"request_timeout"`
	RetryMaxAttempts    int           `toml:"retry_max_attempts"`
	RetryInitialBackoff time.Duration `toml:"retry_initial_backoff"`
	RetryMaxBackoff     time.Duration `toml:"retry_max_backoff"`
	RetryMaxElapsed     time.Duration `toml:"retry_max_elapsed"`
	BreakerEnabled      bool          `toml:"breaker_enabled"`

	OutputFormats   []string `toml:"output_formats"`
	TimestampOutput bool     `toml:"timestamp_output"`
	SummaryXLSX     string   `toml:"summary_xlsx"`

	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
	MetricsAddr string `toml:"metrics_addr"`
	MetricsFile string `toml:"metrics_file"`
}

func Default() Config {
	return Config{
		OpenAIBaseURL:       "https://api.openai.com/v1",
		Model:               "gpt-4o-mini",
		DocumentFolder:      "documents",
		OutputFolder:        "output",
		CasesFile:           "inputs/cases.json",
		MaxPromptTokens:     64000,
		Concurrency:         2,
		RequestTimeout:      120 * time.Second,
		RetryMaxAttempts:    5,
		RetryInitialBackoff: time.Second,
		RetryMaxBackoff:     60 * time.Second,
		RetryMaxElapsed:     5 * time.Minute,
		BreakerEnabled:      false,
		OutputFormats:       []string{"json", "html"},
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// Load reads defaults, then the optional TOML file, then environment
// variables. path falls back to ANALYZER_CONFIG; an empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("ANALYZER_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, domain.WrapError(domain.ErrConfig, "load config file", err)
		}
	}

	env := &envReader{}
	cfg.OpenAIAPIKey = env.mustEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = env.mustEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.Model = env.mustEnv("ANALYZER_MODEL", cfg.Model)
	cfg.Temperature = env.mustEnvFloatPtr("ANALYZER_TEMPERATURE", cfg.Temperature)

	cfg.DocumentFolder = env.mustEnv("ANALYZER_DOCUMENT_FOLDER", cfg.DocumentFolder)
	cfg.OutputFolder = env.mustEnv("ANALYZER_OUTPUT_FOLDER", cfg.OutputFolder)
	cfg.CasesFile = env.mustEnv("ANALYZER_CASES_FILE", cfg.CasesFile)

	cfg.MaxPromptTokens = env.mustEnvInt("ANALYZER_MAX_PROMPT_TOKENS", cfg.MaxPromptTokens)
	cfg.Concurrency = env.mustEnvInt("ANALYZER_CONCURRENCY", cfg.Concurrency)
	cfg.RequestsPerMinute = env.mustEnvInt("ANALYZER_REQUESTS_PER_MINUTE", cfg.RequestsPerMinute)

	cfg.RequestTimeout = env.mustEnvDuration("ANALYZER_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.RetryMaxAttempts = env.mustEnvInt("ANALYZER_RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	cfg.RetryInitialBackoff = env.mustEnvDuration("ANALYZER_RETRY_INITIAL_BACKOFF", cfg.RetryInitialBackoff)
	cfg.RetryMaxBackoff = env.mustEnvDuration("ANALYZER_RETRY_MAX_BACKOFF", cfg.RetryMaxBackoff)
	cfg.RetryMaxElapsed = env.mustEnvDuration("ANALYZER_RETRY_MAX_ELAPSED", cfg.RetryMaxElapsed)
	cfg.BreakerEnabled = env.mustEnvBool("ANALYZER_BREAKER_ENABLED", cfg.BreakerEnabled)

	cfg.OutputFormats = env.mustEnvList("ANALYZER_OUTPUT_FORMATS", cfg.OutputFormats)
	cfg.TimestampOutput = env.mustEnvBool("ANALYZER_TIMESTAMP_OUTPUT", cfg.TimestampOutput)
	cfg.SummaryXLSX = env.mustEnv("ANALYZER_SUMMARY_XLSX", cfg.SummaryXLSX)

	cfg.LogLevel = env.mustEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = env.mustEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsAddr = env.mustEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.MetricsFile = env.mustEnv("METRICS_FILE", cfg.MetricsFile)

	if err := errors.Join(env.errs...); err != nil {
		return cfg, domain.WrapError(domain.ErrConfig, "load config", err)
	}
	return cfg, nil
}

// Validate reports a missing API key as domain.ErrAuth and any other
// unusable setting as domain.ErrConfig.
func (c Config) Validate() error {
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return domain.WrapError(domain.ErrAuth, "validate config", errors.New("OPENAI_API_KEY is not set"))
	}

	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(strings.TrimSpace(c.Model) != "", "model must not be empty")
	check(strings.TrimSpace(c.DocumentFolder) != "", "document folder must not be empty")
	check(strings.TrimSpace(c.OutputFolder) != "", "output folder must not be empty")
	check(strings.TrimSpace(c.CasesFile) != "", "cases file must not be empty")
	check(c.MaxPromptTokens > 0, "max prompt tokens must be positive, got %d", c.MaxPromptTokens)
	check(c.Concurrency > 0, "concurrency must be positive, got %d", c.Concurrency)
	check(c.RequestsPerMinute >= 0, "requests per minute must not be negative, got %d", c.RequestsPerMinute)
	check(c.RequestTimeout >= 0, "request timeout must not be negative")
	check(c.RetryMaxAttempts >= 3, "retry max attempts must be at least 3, got %d", c.RetryMaxAttempts)
	check(c.RetryInitialBackoff >= 0 && c.RetryMaxBackoff >= 0, "retry backoff must not be negative")
	check(c.RetryMaxElapsed >= 0, "retry max elapsed must not be negative")
	if c.Temperature != nil {
		check(*c.Temperature >= 0 && *c.Temperature <= 2, "temperature must be within [0, 2], got %v", *c.Temperature)
	}
	check(len(c.OutputFormats) > 0, "at least one output format is required")
	for _, f := range c.OutputFormats {
		check(f == "json" || f == "html", "unsupported output format %q", f)
	}

	if err := errors.Join(errs...); err != nil {
		return domain.WrapError(domain.ErrConfig, "validate config", err)
	}
	return nil
}

// envReader collects malformed values instead of silently using fallbacks.
type envReader struct {
	errs []error
}

func (r *envReader) mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func (r *envReader) mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (r *envReader) mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return parsed
}

func (r *envReader) mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return parsed
}

func (r *envReader) mustEnvFloatPtr(key string, fallback *float64) *float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return &parsed
}

func (r *envReader) mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
