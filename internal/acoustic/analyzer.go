// Package acoustic adapts the external acoustic-deviation model to the
// triage AcousticAnalyzer contract. When the embedding model is
// unavailable it falls back to a cheap zero-crossing-rate heuristic; it
// never fails outward.
package acoustic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/auricle/internal/triage"
)

const httpTimeout = 60 * time.Second

// DegradedInterpretation is reported when even the fallback heuristic
// could not score the audio.
const DegradedInterpretation = "Error analyzing audio."

// chunkSeconds is the temporal resolution requested from the embedding
// service; deviation is measured across per-chunk embeddings.
const chunkSeconds = 1

// Analyzer scores vocal instability on a bounded 0-10 scale.
type Analyzer struct {
	endpoint   string
	logger     log.Logger
	httpClient *http.Client
}

// New creates an analyzer. An empty endpoint disables the embedding model
// and every call uses the fallback heuristic.
func New(endpoint string, logger log.Logger) *Analyzer {
	if logger == nil {
		logger = log.Nop()
	}
	return &Analyzer{
		endpoint: endpoint,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: httpTimeout,
		},
	}
}

// Analyze returns the acoustic deviation score for the audio. Failures are
// contained: the embedding path degrades to the signal-processing
// fallback, and a fallback failure yields a zero score tagged degraded.
func (a *Analyzer) Analyze(ctx context.Context, audio []byte) triage.AcousticResult {
	if a.endpoint != "" {
		score, err := a.embeddingScore(ctx, audio)
		if err == nil {
			return triage.AcousticResult{
				Score:          score,
				Interpretation: fmt.Sprintf("Acoustic Analysis: Acoustic Deviation Score %.1f/10", score),
			}
		}
		a.logger.Warn(ctx, "embedding model unavailable, using fallback", "error", err.Error())
	}

	score, err := fallbackScore(audio)
	if err != nil {
		a.logger.Warn(ctx, "acoustic analysis degraded", "error", err.Error(), "audio_bytes", len(audio))
		return triage.AcousticResult{
			Interpretation: DegradedInterpretation,
			Degraded:       true,
		}
	}
	return triage.AcousticResult{
		Score:          score,
		Interpretation: fmt.Sprintf("Acoustic Feature Baseline: Deviation Score %.1f/10 (Fallback)", score),
		Fallback:       true,
	}
}

func (a *Analyzer) embeddingScore(ctx context.Context, audio []byte) (float64, error) {
	payload, err := json.Marshal(map[string]any{
		"audio":         base64.StdEncoding.EncodeToString(audio),
		"chunk_seconds": chunkSeconds,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.endpoint+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("embedding service error %d: %s", resp.StatusCode, string(respBody))
	}

	var out struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(out.Embeddings) == 0 {
		return 0, fmt.Errorf("embedding service returned no chunks")
	}
	return deviationScore(out.Embeddings), nil
}

// deviationScore measures internal variability of the per-chunk
// embeddings: high mean pairwise cosine similarity means stable phonation,
// low similarity means instability. The result is scaled by an empirical
// multiplier of 50 and capped at 10.
func deviationScore(embeddings [][]float64) float64 {
	unit := make([][]float64, 0, len(embeddings))
	for _, e := range embeddings {
		unit = append(unit, normalize(e))
	}

	var sum float64
	n := len(unit)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum += dot(unit[i], unit[j])
		}
	}
	avg := sum / float64(n*n)
	return round1(math.Min(10, (1-avg)*50))
}

func normalize(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// fallbackScore derives a deviation score from the zero-crossing rate of
// the PCM16 samples. A leading RIFF/WAV header is skipped when present.
func fallbackScore(audio []byte) (float64, error) {
	samples, err := pcm16Samples(audio)
	if err != nil {
		return 0, err
	}

	var crossings int
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] < 0) != (samples[i] < 0) {
			crossings++
		}
	}
	zcr := float64(crossings) / float64(len(samples))
	return round1(math.Min(10, zcr*50)), nil
}

func pcm16Samples(audio []byte) ([]int16, error) {
	payload := audio
	if bytes.HasPrefix(audio, []byte("RIFF")) {
		idx := bytes.Index(audio, []byte("data"))
		if idx < 0 || idx+8 >= len(audio) {
			return nil, fmt.Errorf("wav header without data chunk")
		}
		payload = audio[idx+8:]
	}
	if len(payload) < 4 {
		return nil, fmt.Errorf("audio too short: %d bytes", len(payload))
	}

	samples := make([]int16, len(payload)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
	}
	return samples, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
