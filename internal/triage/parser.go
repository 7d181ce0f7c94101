package triage

import (
	"encoding/json"
	"sort"
	"strings"
)

// ParsedReasoning is the validated form of the clinical reasoner's raw
// output. It is owned by a single aggregation call and never persisted.
type ParsedReasoning struct {
	Note              SOAPNote
	Symptoms          []Symptom
	TierHint          Tier // empty when absent or not a valid tier
	ClinicalReasoning string
	RedFlagsPresent   bool
	Degraded          bool // at least one section fell back to its placeholder
}

// soapSections are the four canonical note sections, in note order.
var soapSections = [4]string{"SUBJECTIVE", "OBJECTIVE", "ASSESSMENT", "PLAN"}

// recognizedTags terminate a tag-based section's content.
var recognizedTags = [5]string{"[SUBJECTIVE]", "[OBJECTIVE]", "[ASSESSMENT]", "[PLAN]", "[METADATA]"}

// sectionPlaceholder is substituted when structured extraction fails for a
// section. The exact wording is a downstream contract.
func sectionPlaceholder(section string) string {
	return "Clinical assessment for " + section + "."
}

// reasonerMetadata is the metadata block shape, tolerant of the key
// variations observed across model output dialects.
type reasonerMetadata struct {
	Symptoms          []Symptom `json:"symptoms"`
	TriageLevel       string    `json:"triage_level"`
	TriageTier        string    `json:"triage_tier"`
	ClinicalReasoning string    `json:"clinical_reasoning"`
	Reasoning         string    `json:"reasoning"`
	RedFlagsPresent   bool      `json:"red_flags_present"`
}

// ParseReasoning turns the reasoner's raw text into a complete
// ParsedReasoning. It is total: any input, including empty or binary
// garbage, yields a fully populated result, degrading per field to
// placeholders. Identical input always yields identical output.
//
// Grammar detection is ordered: tag-based extraction wins when any of the
// four canonical section tags is present (tag responses may embed non-JSON
// metadata), then a JSON envelope is attempted, then everything degrades.
func ParseReasoning(raw string) *ParsedReasoning {
	p := &ParsedReasoning{}

	if hasSectionTag(raw) {
		parseTagged(raw, p)
	} else {
		// malformed input falls through with empty sections
		parseJSONEnvelope(raw, p)
	}

	for i, section := range soapSections {
		if sectionField(&p.Note, i) == "" {
			*sectionFieldPtr(&p.Note, i) = sectionPlaceholder(section)
			p.Degraded = true
		}
	}
	return p
}

func hasSectionTag(raw string) bool {
	upper := strings.ToUpper(raw)
	for _, section := range soapSections {
		if strings.Contains(upper, "["+section+"]") {
			return true
		}
	}
	return false
}

// parseTagged extracts [SECTION]-delimited content. Each section runs from
// its tag to the next recognized tag or end of text.
func parseTagged(raw string, p *ParsedReasoning) {
	for i, section := range soapSections {
		*sectionFieldPtr(&p.Note, i) = extractTagSection(raw, "["+section+"]")
	}
	meta := extractTagSection(raw, "[METADATA]")
	if meta != "" {
		applyMetadata(stripCodeFences(meta), p)
	}
}

func extractTagSection(raw, tag string) string {
	upper := strings.ToUpper(raw)
	start := strings.Index(upper, tag)
	if start < 0 {
		return ""
	}
	start += len(tag)
	end := len(raw)
	for _, t := range recognizedTags {
		if idx := strings.Index(upper[start:], t); idx >= 0 && start+idx < end {
			end = start + idx
		}
	}
	return strings.TrimSpace(raw[start:end])
}

// stripCodeFences removes markdown fence lines so an embedded ```json block
// decodes cleanly.
func stripCodeFences(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// parseJSONEnvelope handles the two JSON dialects: a soap_note/metadata
// envelope and an object with top-level section keys. It reports whether a
// plausible SOAP structure was found.
func parseJSONEnvelope(raw string, p *ParsedReasoning) bool {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return false
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw[start:end+1]), &envelope); err != nil {
		return false
	}

	sections := envelope
	if nested, ok := lookupKey(envelope, "soap_note"); ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err == nil {
			sections = inner
		}
	}

	// Plausibility check: without at least a subjective or assessment key
	// this is some other JSON object, not a clinical note.
	_, hasSubjective := lookupKey(sections, "subjective")
	_, hasAssessment := lookupKey(sections, "assessment")
	if !hasSubjective && !hasAssessment {
		return false
	}

	for i, section := range soapSections {
		if v, ok := lookupKey(sections, section); ok {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				*sectionFieldPtr(&p.Note, i) = strings.TrimSpace(s)
			}
		}
	}

	if meta, ok := lookupKey(envelope, "metadata"); ok {
		applyMetadata(string(meta), p)
	}
	return true
}

// lookupKey finds a key case-insensitively. Keys are visited in sorted
// order so repeated parses of the same input pick the same winner.
func lookupKey(m map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, name) {
			return m[k], true
		}
	}
	return nil, false
}

// applyMetadata decodes a metadata JSON blob into the parsed result. A blob
// that fails to decode is dropped; the surrounding parse still succeeds.
func applyMetadata(blob string, p *ParsedReasoning) {
	start := strings.Index(blob, "{")
	end := strings.LastIndex(blob, "}")
	if start < 0 || end <= start {
		return
	}

	var meta reasonerMetadata
	if err := json.Unmarshal([]byte(blob[start:end+1]), &meta); err != nil {
		return
	}

	p.Symptoms = sanitizeSymptoms(meta.Symptoms)
	p.RedFlagsPresent = meta.RedFlagsPresent

	hint := meta.TriageLevel
	if hint == "" {
		hint = meta.TriageTier
	}
	if t, ok := ParseTier(hint); ok {
		p.TierHint = t
	}

	p.ClinicalReasoning = meta.ClinicalReasoning
	if p.ClinicalReasoning == "" {
		p.ClinicalReasoning = meta.Reasoning
	}
}

func sanitizeSymptoms(in []Symptom) []Symptom {
	out := make([]Symptom, 0, len(in))
	for _, s := range in {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			continue
		}
		s.Severity = strings.TrimSpace(s.Severity)
		s.Category = strings.TrimSpace(s.Category)
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sectionField(n *SOAPNote, i int) string {
	return *sectionFieldPtr(n, i)
}

func sectionFieldPtr(n *SOAPNote, i int) *string {
	switch i {
	case 0:
		return &n.Subjective
	case 1:
		return &n.Objective
	case 2:
		return &n.Assessment
	default:
		return &n.Plan
	}
}
