package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds triage-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds           int
	ShutdownBudgetSeconds  int
	APIPort                int
	ASREndpoint            string
	AcousticEndpoint       string
	Reasoner               string
	OllamaEndpoint         string
	OllamaModel            string
	ClaudeAPIKey           string
	ClaudeModel            string
	DatabaseURL            string
	EHREndpoint            string
	SlackWebhookURL        string
	APITokens              string
	PipelineWorkers        int
	QueueDepth             int
	StageTimeoutSeconds    int
	ReasonerTimeoutSeconds int
	MaxAudioBytes          int64
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.ASREndpoint, "asr-endpoint", "", "speech-to-text service endpoint (empty = transcription always degraded)")
	fs.StringVar(&c.AcousticEndpoint, "acoustic-endpoint", "", "acoustic embedding service endpoint (empty = ZCR fallback only)")
	fs.StringVar(&c.Reasoner, "reasoner", "ollama", "clinical reasoning provider: ollama or claude")
	fs.StringVar(&c.OllamaEndpoint, "ollama-endpoint", "http://localhost:11434", "Ollama base URL for the generate API")
	fs.StringVar(&c.OllamaModel, "ollama-model", "alibayram/medgemma", "Ollama model used for clinical reasoning")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude reasoning provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model used for clinical reasoning")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.EHREndpoint, "ehr-endpoint", "", "EHR FHIR endpoint for exporting finalized notes (empty = export disabled)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for emergency notifications")
	fs.StringVar(&c.APITokens, "api-tokens", "", "comma-separated token:actor pairs for API auth (empty = auth disabled)")
	fs.IntVar(&c.PipelineWorkers, "pipeline-workers", 8, "concurrent triage pipeline workers (1..64)")
	fs.IntVar(&c.QueueDepth, "queue-depth", 32, "pending pipeline task queue depth (1..1024)")
	fs.IntVar(&c.StageTimeoutSeconds, "stage-timeout-seconds", 60, "per-stage timeout for transcription and acoustic analysis (1..600)")
	fs.IntVar(&c.ReasonerTimeoutSeconds, "reasoner-timeout-seconds", 120, "timeout for the clinical reasoning call (1..600)")
	fs.Int64Var(&c.MaxAudioBytes, "max-audio-bytes", 10<<20, "maximum accepted audio upload size in bytes")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Reasoner selects the provider package; its credentials are checked at
	// wiring time so a missing key degrades submissions instead of refusing
	// to boot.
	if c.Reasoner != "ollama" && c.Reasoner != "claude" {
		errs = append(errs, fmt.Errorf("invalid REASONER %q (must be ollama or claude)", c.Reasoner))
	}

	if c.PipelineWorkers <= 0 || c.PipelineWorkers > 64 {
		errs = append(errs, fmt.Errorf("invalid PIPELINE_WORKERS %d (must be 1..64)", c.PipelineWorkers))
	}
	if c.QueueDepth <= 0 || c.QueueDepth > 1024 {
		errs = append(errs, fmt.Errorf("invalid QUEUE_DEPTH %d (must be 1..1024)", c.QueueDepth))
	}

	if c.StageTimeoutSeconds <= 0 || c.StageTimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid STAGE_TIMEOUT_SECONDS %d (must be 1..600)", c.StageTimeoutSeconds))
	}
	if c.ReasonerTimeoutSeconds <= 0 || c.ReasonerTimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid REASONER_TIMEOUT_SECONDS %d (must be 1..600)", c.ReasonerTimeoutSeconds))
	}

	if c.MaxAudioBytes <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_AUDIO_BYTES %d (must be positive)", c.MaxAudioBytes))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
