package cfg

import (
	"flag"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:           60,
		ShutdownBudgetSeconds:  90,
		APIPort:                8080,
		Reasoner:               "ollama",
		OllamaEndpoint:         "http://localhost:11434",
		OllamaModel:            "alibayram/medgemma",
		PipelineWorkers:        8,
		QueueDepth:             32,
		StageTimeoutSeconds:    60,
		ReasonerTimeoutSeconds: 120,
		MaxAudioBytes:          10 << 20,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.Reasoner != "ollama" {
		t.Errorf("Reasoner = %q, want %q", c.Reasoner, "ollama")
	}
	if c.OllamaEndpoint != "http://localhost:11434" {
		t.Errorf("OllamaEndpoint = %q, want %q", c.OllamaEndpoint, "http://localhost:11434")
	}
	if c.OllamaModel != "alibayram/medgemma" {
		t.Errorf("OllamaModel = %q, want %q", c.OllamaModel, "alibayram/medgemma")
	}
	if c.PipelineWorkers != 8 {
		t.Errorf("PipelineWorkers = %d, want 8", c.PipelineWorkers)
	}
	if c.QueueDepth != 32 {
		t.Errorf("QueueDepth = %d, want 32", c.QueueDepth)
	}
	if c.StageTimeoutSeconds != 60 {
		t.Errorf("StageTimeoutSeconds = %d, want 60", c.StageTimeoutSeconds)
	}
	if c.ReasonerTimeoutSeconds != 120 {
		t.Errorf("ReasonerTimeoutSeconds = %d, want 120", c.ReasonerTimeoutSeconds)
	}
	if c.MaxAudioBytes != 10<<20 {
		t.Errorf("MaxAudioBytes = %d, want %d", c.MaxAudioBytes, 10<<20)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-reasoner", "claude",
		"-claude-api-key", "sk-override",
		"-asr-endpoint", "http://asr:9000",
		"-acoustic-endpoint", "http://acoustic:9001",
		"-pipeline-workers", "4",
		"-queue-depth", "16",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.Reasoner != "claude" {
		t.Errorf("Reasoner = %q, want %q", c.Reasoner, "claude")
	}
	if c.ClaudeAPIKey != "sk-override" {
		t.Errorf("ClaudeAPIKey = %q, want %q", c.ClaudeAPIKey, "sk-override")
	}
	if c.ASREndpoint != "http://asr:9000" {
		t.Errorf("ASREndpoint = %q, want %q", c.ASREndpoint, "http://asr:9000")
	}
	if c.AcousticEndpoint != "http://acoustic:9001" {
		t.Errorf("AcousticEndpoint = %q, want %q", c.AcousticEndpoint, "http://acoustic:9001")
	}
	if c.PipelineWorkers != 4 {
		t.Errorf("PipelineWorkers = %d, want 4", c.PipelineWorkers)
	}
	if c.QueueDepth != 16 {
		t.Errorf("QueueDepth = %d, want 16", c.QueueDepth)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:      "drain zero",
			mutate:    func(c *Config) { c.DrainSeconds = 0 },
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			mutate:    func(c *Config) { c.DrainSeconds = 301; c.ShutdownBudgetSeconds = 302 },
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget equals drain",
			mutate:    func(c *Config) { c.ShutdownBudgetSeconds = c.DrainSeconds },
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "port zero",
			mutate:    func(c *Config) { c.APIPort = 0 },
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			mutate:    func(c *Config) { c.APIPort = 65536 },
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "unknown reasoner",
			mutate:    func(c *Config) { c.Reasoner = "gpt" },
			wantErr:   true,
			errSubstr: []string{"REASONER"},
		},
		{
			name:    "claude reasoner without key is valid",
			mutate:  func(c *Config) { c.Reasoner = "claude"; c.ClaudeAPIKey = "" },
			wantErr: false, // missing credentials degrade at wiring time
		},
		{
			name:      "workers zero",
			mutate:    func(c *Config) { c.PipelineWorkers = 0 },
			wantErr:   true,
			errSubstr: []string{"PIPELINE_WORKERS"},
		},
		{
			name:      "workers above max",
			mutate:    func(c *Config) { c.PipelineWorkers = 65 },
			wantErr:   true,
			errSubstr: []string{"PIPELINE_WORKERS"},
		},
		{
			name:      "queue depth zero",
			mutate:    func(c *Config) { c.QueueDepth = 0 },
			wantErr:   true,
			errSubstr: []string{"QUEUE_DEPTH"},
		},
		{
			name:      "stage timeout zero",
			mutate:    func(c *Config) { c.StageTimeoutSeconds = 0 },
			wantErr:   true,
			errSubstr: []string{"STAGE_TIMEOUT_SECONDS"},
		},
		{
			name:      "reasoner timeout above max",
			mutate:    func(c *Config) { c.ReasonerTimeoutSeconds = 601 },
			wantErr:   true,
			errSubstr: []string{"REASONER_TIMEOUT_SECONDS"},
		},
		{
			name:      "max audio bytes zero",
			mutate:    func(c *Config) { c.MaxAudioBytes = 0 },
			wantErr:   true,
			errSubstr: []string{"MAX_AUDIO_BYTES"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := validBase()
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			for _, sub := range tt.errSubstr {
				if !strings.Contains(err.Error(), sub) {
					t.Errorf("error = %q, want substring %q", err, sub)
				}
			}
		})
	}
}
