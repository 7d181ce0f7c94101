package triage

import "context"

// DegradedTranscript is the sentinel text a Transcriber returns when it
// could not process the audio. The exact wording is a downstream contract.
const DegradedTranscript = "Error processing audio."

// Transcript is the tagged result of a transcription stage. Degraded means
// the adapter contained an internal failure and Text is the sentinel.
type Transcript struct {
	Text     string
	Degraded bool
}

// AcousticResult is the tagged result of an acoustic-deviation stage. Score
// is a bounded 0-10 deviation measure, not a probability. Fallback means
// the cheap signal-processing heuristic produced the score instead of the
// embedding model; Degraded means even the fallback failed and the score is
// zero.
type AcousticResult struct {
	Score          float64
	Interpretation string
	Fallback       bool
	Degraded       bool
}

// Transcriber wraps the external ASR model. It never fails outward: any
// internal error yields a degraded sentinel transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) Transcript
}

// AcousticAnalyzer wraps the external acoustic-deviation model. It never
// fails outward; see AcousticResult.
type AcousticAnalyzer interface {
	Analyze(ctx context.Context, audio []byte) AcousticResult
}

// Provider is the clinical reasoning backend: a single synchronous
// text-completion call. Unlike the other stage adapters it may legitimately
// fail, and the pipeline converts that failure into a failed record.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
