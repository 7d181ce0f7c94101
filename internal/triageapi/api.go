// Package triageapi exposes the triage service over HTTP.
package triageapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/auricle/internal/triage"
)

// DefaultMaxAudioBytes bounds the multipart submission size when the
// caller does not configure a limit.
const DefaultMaxAudioBytes = 10 << 20

// TriageService defines the business operations triageapi needs.
type TriageService interface {
	Submit(ctx context.Context, req *triage.SubmitRequest) (*triage.TriageRecord, error)
	Get(ctx context.Context, id string) (*triage.TriageRecord, error)
	Queue(ctx context.Context, specialty string) ([]*triage.TriageRecord, error)
	AddVitals(ctx context.Context, id string, vitals triage.VitalSigns) (*triage.TriageRecord, error)
	OverrideSOAP(ctx context.Context, id string, note triage.SOAPNote) (*triage.TriageRecord, error)
	Finalize(ctx context.Context, id string) (*triage.TriageRecord, error)
	Export(ctx context.Context, id string) error
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger        log.Logger
	svc           TriageService
	maxAudioBytes int64
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, maxAudioBytes int64) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if maxAudioBytes <= 0 {
		maxAudioBytes = DefaultMaxAudioBytes
	}
	return &API{
		logger:        logger,
		svc:           svc,
		maxAudioBytes: maxAudioBytes,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/triage", func(r chi.Router) {
		r.Post("/", a.handleSubmit)
		r.Get("/queue", a.handleQueue)
		r.Get("/{id}", a.handleGet)
		r.Post("/{id}/vitals", a.handleVitals)
		r.Post("/{id}/soap", a.handleSOAP)
		r.Post("/{id}/finalize", a.handleFinalize)
		r.Post("/{id}/export", a.handleExport)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a service error to a status code and writes the response.
// Internal errors are logged and not echoed to the client.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error(r.Context(), err, msg)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, triage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, triage.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, triage.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, triage.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
