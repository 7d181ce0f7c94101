package triage

import "time"

// Status tracks where a triage record is in its lifecycle.
type Status string

const (
	// StatusPending means created, pipeline not yet started
	StatusPending Status = "pending"

	// StatusInProgress means the analysis pipeline is running
	StatusInProgress Status = "in_progress"

	// StatusReadyForReview means all stages completed and the record awaits a clinician
	StatusReadyForReview Status = "ready_for_review"

	// StatusFinalized means a clinician signed off on the record
	StatusFinalized Status = "finalized"

	// StatusExported means the record was delivered to the downstream EHR
	StatusExported Status = "exported"

	// StatusFailed means the reasoning stage raised an unrecoverable error
	StatusFailed Status = "failed"

	// StatusFailedAIInit means a required model was unavailable at process start
	StatusFailedAIInit Status = "failed_ai_init"
)

// transitions is the forward-only edge set of the record lifecycle.
// ready_for_review self-loops to allow manual edits before finalization.
var transitions = map[Status][]Status{
	StatusPending:        {StatusInProgress, StatusFailed, StatusFailedAIInit},
	StatusInProgress:     {StatusReadyForReview, StatusFailed},
	StatusReadyForReview: {StatusReadyForReview, StatusFinalized},
	StatusFinalized:      {StatusExported},
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// VitalSigns are point-in-time measurements attached to a triage record.
// They are overwritable until the record is finalized.
type VitalSigns struct {
	Temperature      float64   `json:"temperature"` // Celsius
	BPSystolic       int       `json:"bp_systolic"` // mmHg
	BPDiastolic      int       `json:"bp_diastolic"`
	HeartRate        int       `json:"heart_rate"`        // bpm
	RespiratoryRate  int       `json:"respiratory_rate"`  // breaths/min
	OxygenSaturation int       `json:"oxygen_saturation"` // percent
	RecordedAt       time.Time `json:"recorded_at"`
	RecordedBy       string    `json:"recorded_by"`
}

// SOAPNote is the structured clinical note produced by the reasoning stage.
// A clinician may replace it prior to finalization.
type SOAPNote struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// TriageRecord is one patient encounter moving through the pipeline.
//
// RiskScore and Tier are always written together and stay consistent with
// the fixed tier score table; see Aggregate.
type TriageRecord struct {
	ID                     string      `json:"id"`
	PatientID              string      `json:"patient_id"`
	AudioRef               string      `json:"audio_ref"`
	Language               string      `json:"language"`
	Transcript             string      `json:"transcript"`
	TranscriptDegraded     bool        `json:"transcript_degraded,omitempty"`
	SOAPNote               *SOAPNote   `json:"soap_note,omitempty"`
	Vitals                 *VitalSigns `json:"vitals,omitempty"`
	RiskScore              int         `json:"risk_score"`
	Tier                   Tier        `json:"triage_tier,omitempty"`
	Specialty              string      `json:"specialty"`
	AcousticScore          float64     `json:"acoustic_score"`
	AcousticInterpretation string      `json:"acoustic_interpretation,omitempty"`
	Status                 Status      `json:"status"`
	FailureReason          string      `json:"failure_reason,omitempty"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
}

// Symptom is one extracted symptom from the reasoner's metadata block.
type Symptom struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Category string `json:"category"`
}
