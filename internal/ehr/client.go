// Package ehr exports finalized triage records to the downstream EHR as
// FHIR R4 bundles.
package ehr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/auricle/internal/triage"
)

const httpTimeout = 30 * time.Second

// Client posts FHIR bundles to the EHR endpoint.
type Client struct {
	endpoint   string
	logger     log.Logger
	httpClient *http.Client
}

// New creates an exporter client for the given EHR endpoint.
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

// Export builds the FHIR bundle for the record and delivers it. A non-2xx
// response is an error; the caller decides on retry.
func (c *Client) Export(ctx context.Context, rec *triage.TriageRecord) error {
	bundle := BuildBundle(rec)

	body, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("ehr: marshal bundle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ehr: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/fhir+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ehr: post bundle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ehr: endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Info(ctx, "bundle delivered", "triage_id", rec.ID, "status", resp.StatusCode)
	return nil
}

// BuildBundle deterministically assembles a FHIR R4 document bundle for
// the record: a Composition carrying the SOAP note sections, the Patient,
// and one Observation per vital sign.
func BuildBundle(rec *triage.TriageRecord) map[string]any {
	patientRef := "urn:uuid:patient-" + rec.PatientID

	entries := []map[string]any{
		compositionEntry(rec, patientRef),
		patientEntry(rec, patientRef),
	}
	entries = append(entries, vitalEntries(rec, patientRef)...)

	return map[string]any{
		"resourceType": "Bundle",
		"type":         "document",
		"timestamp":    rec.UpdatedAt.UTC().Format(time.RFC3339),
		"entry":        entries,
	}
}

func compositionEntry(rec *triage.TriageRecord, patientRef string) map[string]any {
	sections := []map[string]any{}
	if rec.SOAPNote != nil {
		for _, s := range []struct {
			title, text string
		}{
			{"Subjective", rec.SOAPNote.Subjective},
			{"Objective", rec.SOAPNote.Objective},
			{"Assessment", rec.SOAPNote.Assessment},
			{"Plan", rec.SOAPNote.Plan},
		} {
			sections = append(sections, map[string]any{
				"title": s.title,
				"text": map[string]any{
					"status": "generated",
					"div":    fmt.Sprintf(`<div xmlns="http://www.w3.org/1999/xhtml">%s</div>`, s.text),
				},
			})
		}
	}

	return map[string]any{
		"resource": map[string]any{
			"resourceType": "Composition",
			"status":       "final",
			"type": map[string]any{
				"coding": []map[string]any{{
					"system":  "http://loinc.org",
					"code":    "11506-3",
					"display": "Progress note",
				}},
			},
			"title":   "Clinical Triage Note",
			"date":    rec.UpdatedAt.UTC().Format(time.RFC3339),
			"subject": map[string]any{"reference": patientRef},
			"section": sections,
		},
	}
}

func patientEntry(rec *triage.TriageRecord, patientRef string) map[string]any {
	return map[string]any{
		"fullUrl": patientRef,
		"resource": map[string]any{
			"resourceType": "Patient",
			"identifier": []map[string]any{{
				"system": "urn:auricle:hospital-id",
				"value":  rec.PatientID,
			}},
		},
	}
}

// vitalObservations maps each vital sign to its LOINC code and unit.
var vitalObservations = []struct {
	code, display, unit string
	value               func(*triage.VitalSigns) float64
}{
	{"8310-5", "Body temperature", "Cel", func(v *triage.VitalSigns) float64 { return v.Temperature }},
	{"8480-6", "Systolic blood pressure", "mm[Hg]", func(v *triage.VitalSigns) float64 { return float64(v.BPSystolic) }},
	{"8462-4", "Diastolic blood pressure", "mm[Hg]", func(v *triage.VitalSigns) float64 { return float64(v.BPDiastolic) }},
	{"8867-4", "Heart rate", "/min", func(v *triage.VitalSigns) float64 { return float64(v.HeartRate) }},
	{"9279-1", "Respiratory rate", "/min", func(v *triage.VitalSigns) float64 { return float64(v.RespiratoryRate) }},
	{"2708-6", "Oxygen saturation", "%", func(v *triage.VitalSigns) float64 { return float64(v.OxygenSaturation) }},
}

func vitalEntries(rec *triage.TriageRecord, patientRef string) []map[string]any {
	if rec.Vitals == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(vitalObservations))
	for _, obs := range vitalObservations {
		out = append(out, map[string]any{
			"resource": map[string]any{
				"resourceType": "Observation",
				"status":       "final",
				"code": map[string]any{
					"coding": []map[string]any{{
						"system":  "http://loinc.org",
						"code":    obs.code,
						"display": obs.display,
					}},
				},
				"subject": map[string]any{"reference": patientRef},
				"valueQuantity": map[string]any{
					"value": obs.value(rec.Vitals),
					"unit":  obs.unit,
				},
				"effectiveDateTime": rec.Vitals.RecordedAt.UTC().Format(time.RFC3339),
			},
		})
	}
	return out
}
