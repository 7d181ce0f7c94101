package triageapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/auricle/internal/triage"
)

// mockService implements TriageService with overridable func fields.
type mockService struct {
	submit   func(ctx context.Context, req *triage.SubmitRequest) (*triage.TriageRecord, error)
	get      func(ctx context.Context, id string) (*triage.TriageRecord, error)
	queue    func(ctx context.Context, specialty string) ([]*triage.TriageRecord, error)
	vitals   func(ctx context.Context, id string, v triage.VitalSigns) (*triage.TriageRecord, error)
	soap     func(ctx context.Context, id string, n triage.SOAPNote) (*triage.TriageRecord, error)
	finalize func(ctx context.Context, id string) (*triage.TriageRecord, error)
	export   func(ctx context.Context, id string) error
}

func (m *mockService) Submit(ctx context.Context, req *triage.SubmitRequest) (*triage.TriageRecord, error) {
	return m.submit(ctx, req)
}

func (m *mockService) Get(ctx context.Context, id string) (*triage.TriageRecord, error) {
	return m.get(ctx, id)
}

func (m *mockService) Queue(ctx context.Context, specialty string) ([]*triage.TriageRecord, error) {
	return m.queue(ctx, specialty)
}

func (m *mockService) AddVitals(ctx context.Context, id string, v triage.VitalSigns) (*triage.TriageRecord, error) {
	return m.vitals(ctx, id, v)
}

func (m *mockService) OverrideSOAP(ctx context.Context, id string, n triage.SOAPNote) (*triage.TriageRecord, error) {
	return m.soap(ctx, id, n)
}

func (m *mockService) Finalize(ctx context.Context, id string) (*triage.TriageRecord, error) {
	return m.finalize(ctx, id)
}

func (m *mockService) Export(ctx context.Context, id string) error {
	return m.export(ctx, id)
}

func newTestRouter(t *testing.T, svc TriageService) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	New(nil, svc, 0).RegisterRoutes(r)
	return r
}

// multipartSubmit builds a POST /api/v1/triage body with the given fields
// and an audio part.
func multipartSubmit(t *testing.T, fields map[string]string, audio []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if audio != nil {
		fw, err := w.CreateFormFile("audio", "complaint.webm")
		if err != nil {
			t.Fatalf("create audio part: %v", err)
		}
		if _, err := fw.Write(audio); err != nil {
			t.Fatalf("write audio part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestNew_NilServicePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("New(nil, nil, 0) did not panic")
		}
	}()
	New(nil, nil, 0)
}

func TestSubmit_Created(t *testing.T) {
	t.Parallel()

	var gotReq *triage.SubmitRequest
	svc := &mockService{
		submit: func(_ context.Context, req *triage.SubmitRequest) (*triage.TriageRecord, error) {
			gotReq = req
			return &triage.TriageRecord{ID: "t1", PatientID: req.PatientID, Status: triage.StatusPending}, nil
		},
	}
	r := newTestRouter(t, svc)

	req := multipartSubmit(t, map[string]string{
		"patient_id": "p-1",
		"language":   "Hindi",
	}, []byte("fake-webm-bytes"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if gotReq.PatientID != "p-1" || gotReq.Language != "Hindi" {
		t.Errorf("request = %+v", gotReq)
	}
	if string(gotReq.Audio) != "fake-webm-bytes" {
		t.Errorf("audio = %q", gotReq.Audio)
	}
	if gotReq.Vitals != nil {
		t.Errorf("vitals = %+v, want nil when no vitals fields sent", gotReq.Vitals)
	}

	var body triage.TriageRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ID != "t1" || body.Status != triage.StatusPending {
		t.Errorf("body = %+v", body)
	}
}

func TestSubmit_ParsesVitalsFields(t *testing.T) {
	t.Parallel()

	var gotReq *triage.SubmitRequest
	svc := &mockService{
		submit: func(_ context.Context, req *triage.SubmitRequest) (*triage.TriageRecord, error) {
			gotReq = req
			return &triage.TriageRecord{ID: "t1"}, nil
		},
	}
	r := newTestRouter(t, svc)

	req := multipartSubmit(t, map[string]string{
		"patient_id":        "p-1",
		"temperature":       "38.4",
		"bp_systolic":       "130",
		"bp_diastolic":      "85",
		"heart_rate":        "104",
		"respiratory_rate":  "22",
		"oxygen_saturation": "94",
		"recorded_by":       "nurse-a",
	}, []byte("a"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	v := gotReq.Vitals
	if v == nil {
		t.Fatal("vitals = nil")
	}
	if v.Temperature != 38.4 || v.BPSystolic != 130 || v.BPDiastolic != 85 ||
		v.HeartRate != 104 || v.RespiratoryRate != 22 || v.OxygenSaturation != 94 {
		t.Errorf("vitals = %+v", v)
	}
	if v.RecordedBy != "nurse-a" {
		t.Errorf("RecordedBy = %q", v.RecordedBy)
	}
}

func TestSubmit_BadRequests(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		submit: func(_ context.Context, _ *triage.SubmitRequest) (*triage.TriageRecord, error) {
			return nil, nil
		},
	}
	r := newTestRouter(t, svc)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"missing audio part", multipartSubmit(t, map[string]string{"patient_id": "p-1"}, nil)},
		{"malformed vitals", multipartSubmit(t, map[string]string{"patient_id": "p-1", "heart_rate": "fast"}, []byte("a"))},
		{"not multipart", httptest.NewRequest(http.MethodPost, "/api/v1/triage", bytes.NewBufferString("{}"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestSubmit_ServiceErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", triage.ErrInvalidRequest, http.StatusBadRequest},
		{"shutting down", triage.ErrShuttingDown, http.StatusServiceUnavailable},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockService{
				submit: func(_ context.Context, _ *triage.SubmitRequest) (*triage.TriageRecord, error) {
					return nil, tt.err
				},
			}
			r := newTestRouter(t, svc)

			req := multipartSubmit(t, map[string]string{"patient_id": "p-1"}, []byte("a"))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["error"] == "" {
				t.Error("error body missing error field")
			}
		})
	}
}

func TestSubmit_InternalErrorNotEchoed(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		submit: func(_ context.Context, _ *triage.SubmitRequest) (*triage.TriageRecord, error) {
			return nil, errors.New("pgstore: connection string contains password")
		},
	}
	r := newTestRouter(t, svc)

	req := multipartSubmit(t, map[string]string{"patient_id": "p-1"}, []byte("a"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "internal error" {
		t.Errorf("error = %q, internal detail must not leak", body["error"])
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		get: func(_ context.Context, id string) (*triage.TriageRecord, error) {
			if id != "t1" {
				return nil, triage.ErrNotFound
			}
			return &triage.TriageRecord{ID: "t1", Status: triage.StatusReadyForReview}, nil
		},
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/triage/t1", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/triage/missing", http.NoBody)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestQueue(t *testing.T) {
	t.Parallel()

	var gotSpecialty string
	svc := &mockService{
		queue: func(_ context.Context, specialty string) ([]*triage.TriageRecord, error) {
			gotSpecialty = specialty
			return []*triage.TriageRecord{{ID: "t1"}, {ID: "t2"}}, nil
		},
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/triage/queue?specialty=Cardiology", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotSpecialty != "Cardiology" {
		t.Errorf("specialty = %q", gotSpecialty)
	}

	var body []*triage.TriageRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 2 {
		t.Errorf("len = %d, want 2", len(body))
	}
}

func TestQueue_EmptyIsArray(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		queue: func(_ context.Context, _ string) ([]*triage.TriageRecord, error) {
			return nil, nil
		},
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/triage/queue", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	got := bytes.TrimSpace(rec.Body.Bytes())
	if string(got) != "[]" {
		t.Errorf("body = %s, want []", got)
	}
}

func TestAddVitals(t *testing.T) {
	t.Parallel()

	var gotVitals triage.VitalSigns
	svc := &mockService{
		vitals: func(_ context.Context, _ string, v triage.VitalSigns) (*triage.TriageRecord, error) {
			gotVitals = v
			return &triage.TriageRecord{ID: "t1"}, nil
		},
	}
	r := newTestRouter(t, svc)

	body := bytes.NewBufferString(`{"heart_rate":104,"bp_systolic":130,"recorded_by":"nurse-a"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage/t1/vitals", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if gotVitals.HeartRate != 104 || gotVitals.BPSystolic != 130 || gotVitals.RecordedBy != "nurse-a" {
		t.Errorf("vitals = %+v", gotVitals)
	}
}

func TestAddVitals_InvalidJSON(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		vitals: func(_ context.Context, _ string, _ triage.VitalSigns) (*triage.TriageRecord, error) {
			return nil, nil
		},
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage/t1/vitals", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestOverrideSOAP_StateConflict(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		soap: func(_ context.Context, _ string, _ triage.SOAPNote) (*triage.TriageRecord, error) {
			return nil, triage.ErrInvalidState
		},
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage/t1/soap",
		bytes.NewBufferString(`{"subjective":"s","objective":"o","assessment":"a","plan":"p"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		finalize: func(_ context.Context, id string) (*triage.TriageRecord, error) {
			return &triage.TriageRecord{ID: id, Status: triage.StatusFinalized}, nil
		},
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage/t1/finalize", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body triage.TriageRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != triage.StatusFinalized {
		t.Errorf("status = %s", body.Status)
	}
}

func TestExport_Accepted(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		export: func(_ context.Context, _ string) error { return nil },
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage/t1/export", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["id"] != "t1" || body["export"] != "accepted" {
		t.Errorf("body = %v", body)
	}
}

func TestExport_NotFinalized(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		export: func(_ context.Context, _ string) error { return triage.ErrInvalidState },
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage/t1/export", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}
