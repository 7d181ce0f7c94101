// Package whisper adapts the external ASR service to the triage
// Transcriber contract: it never fails outward, degrading to a sentinel
// transcript on any internal error.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/auricle/internal/triage"
)

const httpTimeout = 120 * time.Second

// Client calls the ASR service over HTTP.
type Client struct {
	endpoint   string
	logger     log.Logger
	httpClient *http.Client
}

// New creates a transcriber client for the given ASR endpoint.
func New(endpoint string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		endpoint: endpoint,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: httpTimeout,
		},
	}
}

// Transcribe sends the audio for transcription. Failures are contained:
// the result carries the degraded sentinel and the error is recorded only
// in diagnostics.
func (c *Client) Transcribe(ctx context.Context, audio []byte, language string) triage.Transcript {
	text, err := c.transcribe(ctx, audio, language)
	if err != nil {
		c.logger.Warn(ctx, "transcription degraded", "error", err.Error(), "audio_bytes", len(audio))
		return triage.Transcript{Text: triage.DegradedTranscript, Degraded: true}
	}
	return triage.Transcript{Text: text}
}

func (c *Client) transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("no ASR endpoint configured")
	}

	// Spool the blob to a temp file so large uploads stream from disk.
	// The artifact is removed on every exit path.
	tmp, err := os.CreateTemp("", "auricle-asr-*.webm")
	if err != nil {
		return "", fmt.Errorf("create temp audio: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(audio); err != nil {
		return "", fmt.Errorf("write temp audio: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind temp audio: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("language", language); err != nil {
		return "", fmt.Errorf("write language field: %w", err)
	}
	part, err := mw.CreateFormFile("audio", "complaint.webm")
	if err != nil {
		return "", fmt.Errorf("create audio part: %w", err)
	}
	if _, err := io.Copy(part, tmp); err != nil {
		return "", fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/transcribe", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("asr service error %d: %s", resp.StatusCode, string(respBody))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	return out.Text, nil
}
