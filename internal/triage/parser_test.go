package triage

import (
	"reflect"
	"testing"
)

const taggedResponse = `[SUBJECTIVE]
Patient reports sharp chest pain radiating to the left arm.

[OBJECTIVE]
Speech pattern strained, elevated vocal distress markers.

[ASSESSMENT]
Suspected acute coronary syndrome.

[PLAN]
Immediate ECG, troponin panel, cardiology consult.

[METADATA]
{"symptoms":[{"name":"chest pain","severity":"severe","category":"cardiac"}],"triage_level":"EMERGENCY","clinical_reasoning":"Classic ACS presentation.","red_flags_present":true}`

func TestParseReasoning_TaggedFormat(t *testing.T) {
	t.Parallel()

	p := ParseReasoning(taggedResponse)

	if p.Degraded {
		t.Error("Degraded = true, want false")
	}
	if p.Note.Subjective != "Patient reports sharp chest pain radiating to the left arm." {
		t.Errorf("Subjective = %q", p.Note.Subjective)
	}
	if p.Note.Plan != "Immediate ECG, troponin panel, cardiology consult." {
		t.Errorf("Plan = %q", p.Note.Plan)
	}
	if p.TierHint != TierEmergency {
		t.Errorf("TierHint = %q, want %q", p.TierHint, TierEmergency)
	}
	if !p.RedFlagsPresent {
		t.Error("RedFlagsPresent = false, want true")
	}
	if p.ClinicalReasoning != "Classic ACS presentation." {
		t.Errorf("ClinicalReasoning = %q", p.ClinicalReasoning)
	}
	want := []Symptom{{Name: "chest pain", Severity: "severe", Category: "cardiac"}}
	if !reflect.DeepEqual(p.Symptoms, want) {
		t.Errorf("Symptoms = %v, want %v", p.Symptoms, want)
	}
}

func TestParseReasoning_TaggedCaseInsensitive(t *testing.T) {
	t.Parallel()

	raw := "[subjective]\nLower case tags.\n[Objective]\nMixed case."
	p := ParseReasoning(raw)

	if p.Note.Subjective != "Lower case tags." {
		t.Errorf("Subjective = %q", p.Note.Subjective)
	}
	if p.Note.Objective != "Mixed case." {
		t.Errorf("Objective = %q", p.Note.Objective)
	}
}

func TestParseReasoning_TaggedMetadataInCodeFence(t *testing.T) {
	t.Parallel()

	raw := "[SUBJECTIVE]\nHeadache.\n[METADATA]\n```json\n{\"triage_tier\":\"urgent\"}\n```"
	p := ParseReasoning(raw)

	if p.TierHint != TierUrgent {
		t.Errorf("TierHint = %q, want %q", p.TierHint, TierUrgent)
	}
	if p.Note.Subjective != "Headache." {
		t.Errorf("Subjective = %q", p.Note.Subjective)
	}
}

func TestParseReasoning_JSONEnvelope(t *testing.T) {
	t.Parallel()

	raw := `Here is the note:
{"soap_note":{"subjective":"Dizzy spells.","objective":"Unsteady gait.","assessment":"Possible vestibular issue.","plan":"Neurology referral."},"metadata":{"symptoms":[{"name":"dizziness","severity":"moderate","category":"neurological"}],"triage_level":"SEMI_URGENT"}}`
	p := ParseReasoning(raw)

	if p.Degraded {
		t.Error("Degraded = true, want false")
	}
	if p.Note.Assessment != "Possible vestibular issue." {
		t.Errorf("Assessment = %q", p.Note.Assessment)
	}
	if p.TierHint != TierSemiUrgent {
		t.Errorf("TierHint = %q, want %q", p.TierHint, TierSemiUrgent)
	}
	if len(p.Symptoms) != 1 || p.Symptoms[0].Category != "neurological" {
		t.Errorf("Symptoms = %v", p.Symptoms)
	}
}

func TestParseReasoning_JSONTopLevelSections(t *testing.T) {
	t.Parallel()

	raw := `{"Subjective":"Sore throat.","OBJECTIVE":"Mild erythema.","assessment":"Viral pharyngitis.","plan":"Rest and fluids."}`
	p := ParseReasoning(raw)

	if p.Degraded {
		t.Error("Degraded = true, want false")
	}
	if p.Note.Subjective != "Sore throat." {
		t.Errorf("Subjective = %q", p.Note.Subjective)
	}
	if p.Note.Objective != "Mild erythema." {
		t.Errorf("Objective = %q", p.Note.Objective)
	}
}

func TestParseReasoning_PartialSectionsGetPlaceholders(t *testing.T) {
	t.Parallel()

	raw := "[SUBJECTIVE]\nOnly one section present."
	p := ParseReasoning(raw)

	if !p.Degraded {
		t.Error("Degraded = false, want true")
	}
	if p.Note.Subjective != "Only one section present." {
		t.Errorf("Subjective = %q", p.Note.Subjective)
	}
	if p.Note.Objective != "Clinical assessment for OBJECTIVE." {
		t.Errorf("Objective = %q", p.Note.Objective)
	}
	if p.Note.Assessment != "Clinical assessment for ASSESSMENT." {
		t.Errorf("Assessment = %q", p.Note.Assessment)
	}
	if p.Note.Plan != "Clinical assessment for PLAN." {
		t.Errorf("Plan = %q", p.Note.Plan)
	}
}

func TestParseReasoning_Totality(t *testing.T) {
	t.Parallel()

	// Any input yields a fully populated note with no panic.
	inputs := []string{
		"",
		"   \n\t  ",
		"plain prose with no structure at all",
		`{"unrelated":"json"}`,
		`{"broken": json`,
		"\x00\x01\xff binary garbage \xfe",
		"[METADATA] only metadata, no sections",
		"{}",
		"[[]][[[",
	}

	for _, raw := range inputs {
		p := ParseReasoning(raw)
		if p == nil {
			t.Fatalf("ParseReasoning(%q) = nil", raw)
		}
		if !p.Degraded {
			t.Errorf("ParseReasoning(%q).Degraded = false, want true", raw)
		}
		for i, section := range soapSections {
			if sectionField(&p.Note, i) == "" {
				t.Errorf("ParseReasoning(%q): empty %s section", raw, section)
			}
		}
	}
}

func TestParseReasoning_Deterministic(t *testing.T) {
	t.Parallel()

	// Duplicate keys differing only in case must resolve the same way on
	// every parse.
	inputs := []string{
		taggedResponse,
		`{"subjective":"a","SUBJECTIVE":"b","assessment":"c","plan":"d","objective":"e"}`,
		"random text",
	}

	for _, raw := range inputs {
		first := ParseReasoning(raw)
		for i := 0; i < 10; i++ {
			if got := ParseReasoning(raw); !reflect.DeepEqual(got, first) {
				t.Fatalf("ParseReasoning(%q) not deterministic: %+v vs %+v", raw, got, first)
			}
		}
	}
}

func TestParseReasoning_InvalidTierHintIgnored(t *testing.T) {
	t.Parallel()

	raw := "[SUBJECTIVE]\nFine.\n[METADATA]\n{\"triage_level\":\"CRITICAL\"}"
	p := ParseReasoning(raw)

	if p.TierHint != "" {
		t.Errorf("TierHint = %q, want empty", p.TierHint)
	}
}

func TestParseReasoning_EmptySymptomNamesDropped(t *testing.T) {
	t.Parallel()

	raw := `[SUBJECTIVE]
x
[METADATA]
{"symptoms":[{"name":"  ","severity":"mild","category":"cardiac"},{"name":" cough ","severity":"mild","category":"respiratory"}]}`
	p := ParseReasoning(raw)

	want := []Symptom{{Name: "cough", Severity: "mild", Category: "respiratory"}}
	if !reflect.DeepEqual(p.Symptoms, want) {
		t.Errorf("Symptoms = %v, want %v", p.Symptoms, want)
	}
}

func TestParseReasoning_ReasoningKeyFallback(t *testing.T) {
	t.Parallel()

	raw := "[SUBJECTIVE]\nx\n[METADATA]\n{\"reasoning\":\"short rationale\"}"
	p := ParseReasoning(raw)

	if p.ClinicalReasoning != "short rationale" {
		t.Errorf("ClinicalReasoning = %q, want %q", p.ClinicalReasoning, "short rationale")
	}
}

func TestParseReasoning_MalformedMetadataKeepsSections(t *testing.T) {
	t.Parallel()

	raw := "[SUBJECTIVE]\nPresent.\n[OBJECTIVE]\nPresent.\n[ASSESSMENT]\nPresent.\n[PLAN]\nPresent.\n[METADATA]\nnot json at all"
	p := ParseReasoning(raw)

	if p.Degraded {
		t.Error("Degraded = true, want false")
	}
	if p.TierHint != "" {
		t.Errorf("TierHint = %q, want empty", p.TierHint)
	}
	if p.Note.Plan != "Present." {
		t.Errorf("Plan = %q", p.Note.Plan)
	}
}
