package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/oklog/ulid/v2"
)

// DefaultLanguage is assumed when a submission omits the language hint.
const DefaultLanguage = "English"

const (
	notifyTimeout = 15 * time.Second
	exportTimeout = 60 * time.Second
)

// Exporter delivers a finalized record to the downstream EHR.
type Exporter interface {
	Export(ctx context.Context, rec *TriageRecord) error
}

// Notifier announces emergency-tier cases to front-desk staff.
type Notifier interface {
	Send(ctx context.Context, rec *TriageRecord) error
}

// SubmitRequest is one patient submission: audio plus metadata, with
// optional vitals recorded at intake.
type SubmitRequest struct {
	PatientID string
	Language  string
	Audio     []byte
	Vitals    *VitalSigns
}

// ServiceOptions carries the optional collaborators and the startup state.
// InitErr marks a required model that failed to initialize at process
// start; while set, every submission lands in failed_ai_init.
type ServiceOptions struct {
	Exporter Exporter
	Notifier Notifier
	InitErr  error
}

// Service is the business boundary for triage operations: record lifecycle,
// async pipeline dispatch, and the clinician-facing actions.
type Service struct {
	store    Store
	engine   *Engine
	pool     *Pool
	logger   log.Logger
	metrics  *Metrics
	exporter Exporter
	notifier Notifier
	initErr  error
}

// NewService creates a triage service. Store, engine and pool are required.
func NewService(store Store, engine *Engine, pool *Pool, logger log.Logger, metrics *Metrics, opts ServiceOptions) *Service {
	if store == nil {
		panic(xerrors.New("triage store is required"))
	}
	if engine == nil {
		panic(xerrors.New("triage engine is required"))
	}
	if pool == nil {
		panic(xerrors.New("worker pool is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		engine:   engine,
		pool:     pool,
		logger:   logger,
		metrics:  metrics,
		exporter: opts.Exporter,
		notifier: opts.Notifier,
		initErr:  opts.InitErr,
	}
}

// Submit creates a pending record and dispatches its pipeline to the worker
// pool. The record is returned immediately; processing is asynchronous.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*TriageRecord, error) {
	if req == nil || req.PatientID == "" {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidRequest)
	}
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("%w: audio is required", ErrInvalidRequest)
	}
	language := req.Language
	if language == "" {
		language = DefaultLanguage
	}

	id := ulid.Make().String()
	now := time.Now().UTC()
	rec := &TriageRecord{
		ID:        id,
		PatientID: req.PatientID,
		AudioRef:  "audio/" + id,
		Language:  language,
		Specialty: DefaultSpecialty,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Vitals != nil {
		v := *req.Vitals
		if v.RecordedAt.IsZero() {
			v.RecordedAt = now
		}
		rec.Vitals = &v
	}

	if err := s.store.Put(ctx, rec); err != nil {
		s.countSubmit("error")
		return nil, err
	}

	// A model that failed to load at process start fails every submission
	// up front, distinctly from a pipeline failure.
	if s.initErr != nil {
		s.logger.Warn(ctx, "submission while required model unavailable",
			"triage_id", id, "init_error", s.initErr.Error())
		failed, err := s.transition(ctx, id, StatusFailedAIInit, s.initErr.Error())
		if err != nil {
			return nil, err
		}
		s.countSubmit("failed_ai_init")
		return failed, nil
	}

	audio := req.Audio
	err := s.pool.Submit(func() {
		s.runPipeline(context.WithoutCancel(ctx), id, audio, language)
	})
	if err != nil {
		s.countSubmit("rejected")
		if _, terr := s.transition(ctx, id, StatusFailed, "pipeline dispatch rejected"); terr != nil {
			s.logger.Error(ctx, terr, "failed to mark rejected record", "triage_id", id)
		}
		return nil, err
	}

	s.countSubmit("accepted")
	return rec, nil
}

// Get retrieves a record snapshot by id.
func (s *Service) Get(ctx context.Context, id string) (*TriageRecord, error) {
	rec, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Queue returns records ordered by descending risk score, ties broken by
// ascending creation time, optionally filtered by specialty.
func (s *Service) Queue(ctx context.Context, specialty string) ([]*TriageRecord, error) {
	return s.store.List(ctx, specialty)
}

// AddVitals attaches or replaces vitals on a record in any pre-finalization
// state. It does not change the lifecycle state.
func (s *Service) AddVitals(ctx context.Context, id string, vitals VitalSigns) (*TriageRecord, error) {
	return s.store.Update(ctx, id, func(rec *TriageRecord) error {
		switch rec.Status {
		case StatusPending, StatusInProgress, StatusReadyForReview:
		default:
			return fmt.Errorf("%w: cannot attach vitals in state %s", ErrInvalidState, rec.Status)
		}
		v := vitals
		if v.RecordedAt.IsZero() {
			v.RecordedAt = time.Now().UTC()
		}
		rec.Vitals = &v
		return nil
	})
}

// OverrideSOAP replaces the generated SOAP note with a clinician's edit.
// Allowed only while the record awaits review.
func (s *Service) OverrideSOAP(ctx context.Context, id string, note SOAPNote) (*TriageRecord, error) {
	return s.store.Update(ctx, id, func(rec *TriageRecord) error {
		if rec.Status != StatusReadyForReview {
			return fmt.Errorf("%w: SOAP override requires ready_for_review, got %s", ErrInvalidState, rec.Status)
		}
		n := note
		rec.SOAPNote = &n
		return nil
	})
}

// Finalize transitions a reviewed record to finalized.
func (s *Service) Finalize(ctx context.Context, id string) (*TriageRecord, error) {
	return s.transition(ctx, id, StatusFinalized, "")
}

// Export delivers a finalized record to the EHR asynchronously. The record
// stays finalized if delivery fails; re-invoking Export retries it.
func (s *Service) Export(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != StatusFinalized {
		return fmt.Errorf("%w: export requires a finalized record, got %s", ErrInvalidState, rec.Status)
	}
	if s.exporter == nil {
		return errors.New("triage: no EHR exporter configured")
	}

	// Independent supervised task: export must not contend with pipeline
	// workers.
	go s.runExport(context.WithoutCancel(ctx), rec)
	return nil
}

func (s *Service) runPipeline(ctx context.Context, id string, audio []byte, language string) {
	L := s.logger.With("triage_id", id)

	if _, err := s.transition(ctx, id, StatusInProgress, ""); err != nil {
		L.Error(ctx, err, "failed to mark record in progress")
		return
	}

	rr := s.engine.Run(ctx, id, audio, language)
	if rr.Err != nil {
		if _, err := s.transition(ctx, id, StatusFailed, rr.Err.Error()); err != nil {
			L.Error(ctx, err, "failed to mark record failed")
		}
		return
	}

	updated, err := s.store.Update(ctx, id, func(rec *TriageRecord) error {
		if !rec.Status.CanTransition(StatusReadyForReview) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidState, rec.Status, StatusReadyForReview)
		}
		rec.Transcript = rr.Transcript.Text
		rec.TranscriptDegraded = rr.Transcript.Degraded
		note := rr.Note
		rec.SOAPNote = &note
		rec.RiskScore = rr.RiskScore
		rec.Tier = rr.Tier
		rec.Specialty = rr.Specialty
		rec.AcousticScore = rr.Acoustic.Score
		rec.AcousticInterpretation = rr.Acoustic.Interpretation
		rec.Status = StatusReadyForReview
		return nil
	})
	if err != nil {
		L.Error(ctx, err, "failed to persist pipeline result")
		return
	}

	if updated.Tier == TierEmergency && s.notifier != nil {
		nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		if err := s.notifier.Send(nctx, updated); err != nil {
			L.Error(ctx, err, "emergency notification failed")
			s.countNotify("error")
		} else {
			s.countNotify("ok")
		}
	}
}

func (s *Service) runExport(ctx context.Context, rec *TriageRecord) {
	L := s.logger.With("triage_id", rec.ID)

	ectx, cancel := context.WithTimeout(ctx, exportTimeout)
	defer cancel()
	if err := s.exporter.Export(ectx, rec); err != nil {
		L.Error(ctx, err, "ehr export failed")
		s.countExport("error")
		return
	}

	if _, err := s.transition(ctx, rec.ID, StatusExported, ""); err != nil {
		L.Error(ctx, err, "failed to mark record exported")
		s.countExport("error")
		return
	}
	s.countExport("ok")
	L.Info(ctx, "record exported")
}

// transition advances a record's status through the lifecycle table,
// rejecting illegal moves without mutation.
func (s *Service) transition(ctx context.Context, id string, next Status, reason string) (*TriageRecord, error) {
	return s.store.Update(ctx, id, func(rec *TriageRecord) error {
		if !rec.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidState, rec.Status, next)
		}
		rec.Status = next
		if reason != "" {
			rec.FailureReason = reason
		}
		return nil
	})
}

func (s *Service) countSubmit(result string) {
	if s.metrics != nil {
		s.metrics.SubmitsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) countExport(outcome string) {
	if s.metrics != nil {
		s.metrics.ExportsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countNotify(outcome string) {
	if s.metrics != nil {
		s.metrics.NotifyTotal.WithLabelValues(outcome).Inc()
	}
}
