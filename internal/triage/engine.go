package triage

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"
)

var tracer = otel.Tracer("github.com/linnemanlabs/auricle/internal/triage")

// Default deadlines for external model calls.
const (
	DefaultStageTimeout    = 60 * time.Second
	DefaultReasonerTimeout = 120 * time.Second
)

// EngineHooks receives pipeline events for instrumentation. Nil funcs are
// skipped.
type EngineHooks struct {
	OnStage    func(stage string, duration float64, degraded bool)
	OnComplete func(e *CompleteEvent)
}

// CompleteEvent summarizes one finished pipeline run.
type CompleteEvent struct {
	Status             Status
	Tier               Tier
	Duration           float64
	TranscriptDegraded bool
	AcousticFallback   bool
	ParseDegraded      bool
}

// RunResult is the outcome of one pipeline run. Err is non-nil only for a
// reasoning failure; the two analysis stages degrade instead of failing.
type RunResult struct {
	Transcript    Transcript
	Acoustic      AcousticResult
	Note          SOAPNote
	Tier          Tier
	RiskScore     int
	Specialty     string
	ParseDegraded bool
	Duration      float64
	Err           error
}

// Engine orchestrates one record's pipeline: concurrent transcription and
// acoustic analysis, then clinical reasoning over both outputs, then
// parsing and risk aggregation. It holds no record state; the Service owns
// persistence.
type Engine struct {
	transcriber Transcriber
	analyzer    AcousticAnalyzer
	provider    Provider
	logger      log.Logger
	hooks       EngineHooks

	// StageTimeout bounds each analysis adapter call; ReasonerTimeout
	// bounds the reasoning call. Both default via NewEngine.
	StageTimeout    time.Duration
	ReasonerTimeout time.Duration
}

// NewEngine creates a pipeline engine with the given stage adapters.
func NewEngine(transcriber Transcriber, analyzer AcousticAnalyzer, provider Provider, logger log.Logger, hooks EngineHooks) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		transcriber:     transcriber,
		analyzer:        analyzer,
		provider:        provider,
		logger:          logger,
		hooks:           hooks,
		StageTimeout:    DefaultStageTimeout,
		ReasonerTimeout: DefaultReasonerTimeout,
	}
}

// Run executes the pipeline for one record's audio. The reasoning call is
// never issued before both analysis stages report.
func (e *Engine) Run(ctx context.Context, id string, audio []byte, language string) *RunResult {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "triage.pipeline")
	defer span.End()
	span.SetAttributes(
		attribute.String("auricle.triage.id", id),
		attribute.Int("auricle.audio.bytes", len(audio)),
	)

	L := e.logger.With("triage_id", id, "language", language)

	var (
		transcript Transcript
		acoustic   AcousticResult
	)

	// Fan out the two analysis stages; Wait is the join barrier. The
	// adapters never fail outward, so the group carries no errors.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, e.StageTimeout)
		defer cancel()
		t0 := time.Now()
		transcript = e.transcriber.Transcribe(sctx, audio, language)
		e.observeStage("transcribe", time.Since(t0).Seconds(), transcript.Degraded)
		return nil
	})
	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, e.StageTimeout)
		defer cancel()
		t0 := time.Now()
		acoustic = e.analyzer.Analyze(sctx, audio)
		e.observeStage("acoustic", time.Since(t0).Seconds(), acoustic.Degraded)
		return nil
	})
	_ = g.Wait()

	L.Info(ctx, "analysis stages complete",
		"transcript_degraded", transcript.Degraded,
		"acoustic_score", acoustic.Score,
		"acoustic_fallback", acoustic.Fallback,
		"acoustic_degraded", acoustic.Degraded,
	)

	rctx, cancel := context.WithTimeout(ctx, e.ReasonerTimeout)
	defer cancel()
	t0 := time.Now()
	raw, err := e.provider.Generate(rctx, buildClinicalPrompt(transcript.Text, acoustic.Score))
	e.observeStage("reason", time.Since(t0).Seconds(), err != nil)
	if err != nil {
		L.Error(ctx, err, "clinical reasoning failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		rr := &RunResult{
			Transcript: transcript,
			Acoustic:   acoustic,
			Duration:   time.Since(start).Seconds(),
			Err:        fmt.Errorf("clinical reasoning: %w", err),
		}
		e.complete(rr, StatusFailed)
		return rr
	}

	parsed := ParseReasoning(raw)
	tier, score, specialty := Aggregate(transcript.Text, parsed, acoustic.Score)

	span.SetAttributes(
		attribute.String("auricle.triage.tier", string(tier)),
		attribute.Int("auricle.triage.risk_score", score),
		attribute.String("auricle.triage.specialty", specialty),
	)

	rr := &RunResult{
		Transcript:    transcript,
		Acoustic:      acoustic,
		Note:          parsed.Note,
		Tier:          tier,
		RiskScore:     score,
		Specialty:     specialty,
		ParseDegraded: parsed.Degraded,
		Duration:      time.Since(start).Seconds(),
	}

	L.Info(ctx, "pipeline complete",
		"tier", string(tier),
		"risk_score", score,
		"specialty", specialty,
		"parse_degraded", parsed.Degraded,
		"duration", rr.Duration,
	)

	e.complete(rr, StatusReadyForReview)
	return rr
}

func (e *Engine) observeStage(stage string, duration float64, degraded bool) {
	if e.hooks.OnStage != nil {
		e.hooks.OnStage(stage, duration, degraded)
	}
}

func (e *Engine) complete(rr *RunResult, status Status) {
	if e.hooks.OnComplete != nil {
		e.hooks.OnComplete(&CompleteEvent{
			Status:             status,
			Tier:               rr.Tier,
			Duration:           rr.Duration,
			TranscriptDegraded: rr.Transcript.Degraded,
			AcousticFallback:   rr.Acoustic.Fallback,
			ParseDegraded:      rr.ParseDegraded,
		})
	}
}

// buildClinicalPrompt constructs the reasoner prompt: the transcript, the
// acoustic deviation score, and strict output-format instructions.
func buildClinicalPrompt(transcript string, acousticScore float64) string {
	return fmt.Sprintf(`[SYSTEM]
You are a highly efficient clinical triage AI.

[INPUT DATA]
Patient Transcript: %q
Acoustic Analysis: Acoustic Deviation Score %.1f/10

[INSTRUCTIONS]
Generate a professional SOAP note and extract clinical metadata.
Clinical weighting: Prioritize the Acoustic Deviation Score (>5.0) ONLY if symptoms are respiratory/cardiac (cough, breathlessness, chest pain). Otherwise, treat it as a secondary baseline.

[REQUIRED FORMAT]
[SUBJECTIVE]
(Detailed symptoms, onset, and patient history)
[OBJECTIVE]
(Physical and bioacoustic findings. State the "Acoustic Deviation Score" here.)
[ASSESSMENT]
(Clinical logic and context-aware differential diagnosis)
[PLAN]
(Next steps: tests, treatments, and follow-up)

[METADATA]
{
  "symptoms": [
    {"name": "symptom name", "severity": "mild|moderate|severe", "category": "cardiac|respiratory|neurological|general"}
  ],
  "triage_level": "ROUTINE|SEMI_URGENT|URGENT|EMERGENCY",
  "red_flags_present": true|false
}

GENERATE NOW. DO NOT INCLUDE INTRODUCTORY TEXT.`, transcript, acousticScore)
}
