// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/auricle/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/auricle/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists triage records in PostgreSQL. Per-id update serialization
// comes from row-level locks (SELECT ... FOR UPDATE).
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const recordColumns = `id, patient_id, audio_ref, language, transcript, transcript_degraded,
	soap_note, vitals, risk_score, triage_tier, specialty, acoustic_score,
	acoustic_interpretation, status, failure_reason, created_at, updated_at`

// Get retrieves a record by id.
func (s *Store) Get(ctx context.Context, id string) (*triage.TriageRecord, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM triage_records WHERE id = $1`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}
	return rec, true, nil
}

// Put inserts or updates a record (upsert on id).
func (s *Store) Put(ctx context.Context, rec *triage.TriageRecord) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	if err := s.upsert(ctx, s.pool, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Update applies mutate to the record inside a transaction holding the row
// lock, serializing concurrent updates to the same id.
func (s *Store) Update(ctx context.Context, id string, mutate func(*triage.TriageRecord) error) (*triage.TriageRecord, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Update", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	query := `SELECT ` + recordColumns + ` FROM triage_records WHERE id = $1 FOR UPDATE`
	rec, err := scanRecord(tx.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if rec == nil {
		return nil, triage.ErrNotFound
	}

	if err := mutate(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := s.upsert(ctx, tx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// List returns records in queue order, optionally filtered by specialty.
func (s *Store) List(ctx context.Context, specialty string) ([]*triage.TriageRecord, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM triage_records
		WHERE ($1 = '' OR specialty = $1)
		ORDER BY risk_score DESC, created_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, query, specialty)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []*triage.TriageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

// execer covers both pool and transaction for upsert.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) upsert(ctx context.Context, db execer, rec *triage.TriageRecord) error {
	soap, err := marshalNullable(rec.SOAPNote)
	if err != nil {
		return fmt.Errorf("marshal soap note: %w", err)
	}
	vitals, err := marshalNullable(rec.Vitals)
	if err != nil {
		return fmt.Errorf("marshal vitals: %w", err)
	}

	query := `INSERT INTO triage_records (` + recordColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			audio_ref = EXCLUDED.audio_ref,
			language = EXCLUDED.language,
			transcript = EXCLUDED.transcript,
			transcript_degraded = EXCLUDED.transcript_degraded,
			soap_note = EXCLUDED.soap_note,
			vitals = EXCLUDED.vitals,
			risk_score = EXCLUDED.risk_score,
			triage_tier = EXCLUDED.triage_tier,
			specialty = EXCLUDED.specialty,
			acoustic_score = EXCLUDED.acoustic_score,
			acoustic_interpretation = EXCLUDED.acoustic_interpretation,
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = EXCLUDED.updated_at`
	_, err = db.Exec(ctx, query,
		rec.ID, rec.PatientID, rec.AudioRef, rec.Language, rec.Transcript,
		rec.TranscriptDegraded, soap, vitals, rec.RiskScore, string(rec.Tier),
		rec.Specialty, rec.AcousticScore, rec.AcousticInterpretation,
		string(rec.Status), rec.FailureReason, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert triage record: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*triage.TriageRecord, error) {
	var (
		rec          triage.TriageRecord
		tier, status string
		soap, vitals []byte
	)
	err := row.Scan(
		&rec.ID, &rec.PatientID, &rec.AudioRef, &rec.Language, &rec.Transcript,
		&rec.TranscriptDegraded, &soap, &vitals, &rec.RiskScore, &tier,
		&rec.Specialty, &rec.AcousticScore, &rec.AcousticInterpretation,
		&status, &rec.FailureReason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan triage record: %w", err)
	}
	rec.Tier = triage.Tier(tier)
	rec.Status = triage.Status(status)

	if len(soap) > 0 {
		var n triage.SOAPNote
		if err := json.Unmarshal(soap, &n); err != nil {
			return nil, fmt.Errorf("decode soap note: %w", err)
		}
		rec.SOAPNote = &n
	}
	if len(vitals) > 0 {
		var v triage.VitalSigns
		if err := json.Unmarshal(vitals, &v); err != nil {
			return nil, fmt.Errorf("decode vitals: %w", err)
		}
		rec.Vitals = &v
	}
	return &rec, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch x := v.(type) {
	case *triage.SOAPNote:
		if x == nil {
			return nil, nil
		}
	case *triage.VitalSigns:
		if x == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
