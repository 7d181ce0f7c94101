// Package slack announces emergency triage cases to front-desk staff via
// incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/auricle/internal/triage"
)

const (
	maxAssessmentLen = 3000
	httpTimeout      = 10 * time.Second
)

// Notifier sends triage case notifications to a Slack webhook.
type Notifier struct {
	webhookURL string
	logger     log.Logger
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		logger:     logger,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts a triage case to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, rec *triage.TriageRecord) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(rec)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(rec *triage.TriageRecord) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(rec),
			{"type": "divider"},
			fieldsBlock(rec),
			{"type": "divider"},
			assessmentBlock(rec),
			{"type": "divider"},
			contextBlock(rec),
		},
	}
}

func headerBlock(rec *triage.TriageRecord) map[string]any {
	text := fmt.Sprintf("%s %s Triage Case", tierEmoji(rec.Tier), tierTitle(rec.Tier))

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(rec *triage.TriageRecord) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Patient:* %s", rec.PatientID),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Tier:* %s", rec.Tier),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Risk score:* %d", rec.RiskScore),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Specialty:* %s", rec.Specialty),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Acoustic score:* %.1f", rec.AcousticScore),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Status:* %s", rec.Status),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func assessmentBlock(rec *triage.TriageRecord) map[string]any {
	text := ""
	if rec.SOAPNote != nil {
		text = truncate(rec.SOAPNote.Assessment, maxAssessmentLen)
	}
	if text == "" {
		text = "_No assessment available._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Assessment*\n\n%s", text),
		},
	}
}

func contextBlock(rec *triage.TriageRecord) map[string]any {
	ts := rec.UpdatedAt
	if ts.IsZero() {
		ts = rec.CreatedAt
	}

	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("auricle • triage %s • %s", rec.ID, ts.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func tierEmoji(tier triage.Tier) string {
	switch tier {
	case triage.TierEmergency:
		return "\U0001f534" // red circle
	case triage.TierUrgent:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func tierTitle(tier triage.Tier) string {
	if tier == triage.TierEmergency {
		return "Emergency"
	}
	return "New"
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	// Back up so the cut does not land inside a multi-byte rune.
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
