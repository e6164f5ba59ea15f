package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Stage names accepted by the -stage flag.
const (
	StageClassify = "classify"
	StageAssess   = "assess"
	StageAll      = "all"
)

// Config adds pipeline-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	Stage            string
	OrganizationID   int64
	Limit            int
	DatabaseURL      string
	ChutesAPIKey     string
	ChutesEndpoint   string
	MaxAttempts      int
	RetryBaseSeconds int
	PacingMillis     int
	PromptsFile      string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Stage, "stage", StageAll, "pipeline stage to run: classify, assess, or all")
	fs.Int64Var(&c.OrganizationID, "organization", 0, "run classification for a single organization ID (0 = all active)")
	fs.IntVar(&c.Limit, "limit", 0, "max items to process per stage per run (0 = unlimited)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL")
	fs.StringVar(&c.ChutesAPIKey, "chutes-api-key", "", "API key for the Chutes chat-completions endpoint")
	fs.StringVar(&c.ChutesEndpoint, "chutes-endpoint", "", "chat-completions endpoint URL (empty = production default)")
	fs.IntVar(&c.MaxAttempts, "max-attempts", 3, "total request attempts per LLM call, including the first (1..10)")
	fs.IntVar(&c.RetryBaseSeconds, "retry-base-seconds", 2, "fallback backoff when a 429 carries no Retry-After (1..300)")
	fs.IntVar(&c.PacingMillis, "pacing-millis", 500, "pause between consecutive LLM calls (0..60000)")
	fs.StringVar(&c.PromptsFile, "prompts-file", "", "YAML file overriding built-in prompt and model settings")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	switch c.Stage {
	case StageClassify, StageAssess, StageAll:
	default:
		errs = append(errs, fmt.Errorf("invalid STAGE %q (must be classify, assess, or all)", c.Stage))
	}

	if c.OrganizationID < 0 {
		errs = append(errs, fmt.Errorf("invalid ORGANIZATION %d (must be >= 0)", c.OrganizationID))
	}

	if c.Limit < 0 {
		errs = append(errs, fmt.Errorf("invalid LIMIT %d (must be >= 0)", c.Limit))
	}

	// Database URL is required; the pipeline is stateful by definition
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}

	// API key is required for LLM access
	if c.ChutesAPIKey == "" {
		errs = append(errs, errors.New("CHUTES_API_KEY is required"))
	}

	if c.MaxAttempts <= 0 || c.MaxAttempts > 10 {
		errs = append(errs, fmt.Errorf("invalid MAX_ATTEMPTS %d (must be 1..10)", c.MaxAttempts))
	}

	if c.RetryBaseSeconds <= 0 || c.RetryBaseSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid RETRY_BASE_SECONDS %d (must be 1..300)", c.RetryBaseSeconds))
	}

	if c.PacingMillis < 0 || c.PacingMillis > 60000 {
		errs = append(errs, fmt.Errorf("invalid PACING_MILLIS %d (must be 0..60000)", c.PacingMillis))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
