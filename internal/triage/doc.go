// Package triage provides the business boundary for Auricle's clinical
// triage pipeline. It defines the Service (record lifecycle, async dispatch),
// Engine (stage orchestration), the structured-output parser and risk
// aggregation logic, the Store interface (persistence), and domain models.
package triage
