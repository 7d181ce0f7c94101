package triage

import "strings"

// Tier is the urgency classification assigned to a triage record.
type Tier string

const (
	TierRoutine    Tier = "ROUTINE"
	TierSemiUrgent Tier = "SEMI_URGENT"
	TierUrgent     Tier = "URGENT"
	TierEmergency  Tier = "EMERGENCY"
)

// tiersByRank is indexed by rank-1; ranks run 1 (ROUTINE) to 4 (EMERGENCY).
var tiersByRank = [4]Tier{TierRoutine, TierSemiUrgent, TierUrgent, TierEmergency}

// Rank returns the ascending urgency rank of the tier, or 0 if t is not a
// valid tier.
func (t Tier) Rank() int {
	for i, v := range tiersByRank {
		if v == t {
			return i + 1
		}
	}
	return 0
}

// ParseTier maps a free-form tier string to a valid Tier. Matching is
// case-insensitive and tolerates surrounding whitespace.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if t.Rank() == 0 {
		return "", false
	}
	return t, true
}

// bucketScores is the fixed tier to numeric score table. The score is not a
// continuous function of the escalation steps; the UI depends on these exact
// values.
var bucketScores = map[Tier]int{
	TierEmergency:  95,
	TierUrgent:     75,
	TierSemiUrgent: 45,
	TierRoutine:    15,
}

// Score returns the fixed numeric risk score for the tier.
func (t Tier) Score() int {
	return bucketScores[t]
}

// Guardrail keyword lists. A critical match forces EMERGENCY; a high match
// forces at least URGENT. Matching is a plain substring test on the
// lower-cased transcript.
var (
	criticalSymptoms = []string{
		"chest pain", "severe breathlessness", "unconscious", "seizure",
		"slurred speech", "difficulty speaking", "cannot speak",
		"sudden weakness", "stroke", "paralysis", "vision loss",
	}
	highSymptoms = []string{
		"breathlessness", "persistent vomiting", "high fever",
		"severe headache", "confusion", "visual disturbances", "blurred vision",
	}
)

// specialtyByCategory routes the first extracted symptom's category to a
// department. Unknown or absent categories go to general medicine.
var specialtyByCategory = map[string]string{
	"cardiac":      "Cardiology",
	"respiratory":  "Pulmonology",
	"neurological": "Neurology",
}

// DefaultSpecialty is the routing target when no symptom category matches.
const DefaultSpecialty = "General Medicine"

// acousticEscalationThreshold is the deviation score above which the
// acoustic stage raises the tier by one level.
const acousticEscalationThreshold = 7.0

// Aggregate converts the untrusted reasoner output, the transcript and the
// acoustic deviation score into a final tier, risk score and specialty.
//
// The three steps run in a fixed order and each may only raise the rank:
//
//  1. seed from the reasoner's tier hint (ROUTINE when absent or invalid)
//  2. keyword guardrail on the transcript (critical wins over high)
//  3. acoustic escalation of exactly one level when the deviation score
//     exceeds the threshold
//
// The guardrail runs before the acoustic step so the +1 is relative to the
// post-guardrail rank, not the raw seed.
func Aggregate(transcript string, parsed *ParsedReasoning, acousticScore float64) (Tier, int, string) {
	rank := TierRoutine.Rank()
	if parsed != nil {
		if r := parsed.TierHint.Rank(); r > 0 {
			rank = r
		}
	}

	lower := strings.ToLower(transcript)
	if containsAny(lower, criticalSymptoms) {
		rank = TierEmergency.Rank()
	} else if containsAny(lower, highSymptoms) && rank < TierUrgent.Rank() {
		rank = TierUrgent.Rank()
	}

	if acousticScore > acousticEscalationThreshold && rank < TierEmergency.Rank() {
		rank++
	}

	tier := tiersByRank[rank-1]
	return tier, tier.Score(), routeSpecialty(parsed)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func routeSpecialty(parsed *ParsedReasoning) string {
	if parsed == nil || len(parsed.Symptoms) == 0 {
		return DefaultSpecialty
	}
	category := strings.ToLower(strings.TrimSpace(parsed.Symptoms[0].Category))
	if s, ok := specialtyByCategory[category]; ok {
		return s
	}
	return DefaultSpecialty
}
