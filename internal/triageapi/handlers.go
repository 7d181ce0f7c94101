package triageapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/auricle/internal/triage"
)

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxAudioBytes)
	if err := r.ParseMultipartForm(a.maxAudioBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file part is required")
		return
	}
	defer func() { _ = file.Close() }()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read audio part")
		return
	}

	vitals, err := vitalsFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := a.svc.Submit(r.Context(), &triage.SubmitRequest{
		PatientID: r.FormValue("patient_id"),
		Language:  r.FormValue("language"),
		Audio:     audio,
		Vitals:    vitals,
	})
	if err != nil {
		a.fail(w, r, err, "submit failed")
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleQueue(w http.ResponseWriter, r *http.Request) {
	records, err := a.svc.Queue(r.Context(), r.URL.Query().Get("specialty"))
	if err != nil {
		a.fail(w, r, err, "queue listing failed")
		return
	}
	if records == nil {
		records = []*triage.TriageRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleVitals(w http.ResponseWriter, r *http.Request) {
	var vitals triage.VitalSigns
	if err := json.NewDecoder(r.Body).Decode(&vitals); err != nil {
		writeError(w, http.StatusBadRequest, "invalid vitals payload")
		return
	}

	rec, err := a.svc.AddVitals(r.Context(), chi.URLParam(r, "id"), vitals)
	if err != nil {
		a.fail(w, r, err, "vitals update failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleSOAP(w http.ResponseWriter, r *http.Request) {
	var note triage.SOAPNote
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		writeError(w, http.StatusBadRequest, "invalid SOAP payload")
		return
	}

	rec, err := a.svc.OverrideSOAP(r.Context(), chi.URLParam(r, "id"), note)
	if err != nil {
		a.fail(w, r, err, "SOAP override failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleFinalize(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.Finalize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err, "finalize failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.svc.Export(r.Context(), id); err != nil {
		a.fail(w, r, err, "export failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     id,
		"export": "accepted",
	})
}

// vitalsFromForm parses the optional vitals fields from a submission
// form. It returns nil when no vitals field is present.
func vitalsFromForm(r *http.Request) (*triage.VitalSigns, error) {
	present := false
	for _, f := range []string{"temperature", "bp_systolic", "bp_diastolic", "heart_rate", "respiratory_rate", "oxygen_saturation"} {
		if r.FormValue(f) != "" {
			present = true
			break
		}
	}
	if !present {
		return nil, nil
	}

	vitals := &triage.VitalSigns{RecordedBy: r.FormValue("recorded_by")}

	if raw := r.FormValue("temperature"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errField("temperature")
		}
		vitals.Temperature = v
	}
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"bp_systolic", &vitals.BPSystolic},
		{"bp_diastolic", &vitals.BPDiastolic},
		{"heart_rate", &vitals.HeartRate},
		{"respiratory_rate", &vitals.RespiratoryRate},
		{"oxygen_saturation", &vitals.OxygenSaturation},
	} {
		raw := r.FormValue(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errField(f.name)
		}
		*f.dst = v
	}
	return vitals, nil
}

type errField string

func (e errField) Error() string { return "invalid value for " + string(e) }
