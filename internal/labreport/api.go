package labreport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/medireport/platform/internal/catalog"
	"github.com/medireport/platform/internal/export"
	"github.com/medireport/platform/internal/report"
	"github.com/medireport/platform/internal/shared/auth"
	"github.com/medireport/platform/internal/shared/errors"
	"github.com/medireport/platform/internal/shared/events"
	"github.com/medireport/platform/internal/shared/metrics"
	"github.com/medireport/platform/internal/storage"
)

// Handler provides HTTP handlers for patients, test results and reports
type Handler struct {
	store     storage.Store
	reports   *report.Service
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewHandler creates a new lab report handler
func NewHandler(store storage.Store, reports *report.Service, publisher events.Publisher, logger zerolog.Logger) *Handler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Handler{
		store:     store,
		reports:   reports,
		publisher: publisher,
		logger:    logger.With().Str("component", "labreport").Logger(),
		now:       time.Now,
	}
}

// Routes registers the lab report routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/patients", h.RegisterPatient)
	r.Post("/generate-report", h.GenerateReport)
	r.Get("/test-results/{patientId}", h.ListTestResults)

	r.Route("/catalog", func(r chi.Router) {
		r.Get("/", h.ListTestTypes)
		r.Get("/{testType}", h.GetParameters)
	})

	r.Route("/reports/{id}", func(r chi.Router) {
		r.Get("/", h.GetReport)
		r.Get("/pdf", h.DownloadPDF)
	})

	return r
}

// --- Request types ---

// RegisterPatientRequest is the body of POST /patients
type RegisterPatientRequest struct {
	PatientID string         `json:"patientId"`
	Name      string         `json:"name"`
	Age       int            `json:"age"`
	Gender    storage.Gender `json:"gender"`
}

// Validate returns field level messages for every invalid field
func (req RegisterPatientRequest) Validate() map[string]string {
	details := map[string]string{}
	if strings.TrimSpace(req.PatientID) == "" {
		details["patientId"] = "patientId is required"
	}
	if strings.TrimSpace(req.Name) == "" {
		details["name"] = "name is required"
	}
	if req.Age < 1 || req.Age > 150 {
		details["age"] = "age must be between 1 and 150"
	}
	if !req.Gender.IsValid() {
		details["gender"] = "gender must be one of male, female, other"
	}
	return details
}

// GenerateReportRequest is the body of POST /generate-report
type GenerateReportRequest struct {
	PatientID  string            `json:"patientId"`
	TestType   string            `json:"testType"`
	Parameters report.Parameters `json:"parameters"`
}

// Validate returns field level messages for every invalid field
func (req GenerateReportRequest) Validate() map[string]string {
	details := map[string]string{}
	if strings.TrimSpace(req.PatientID) == "" {
		details["patientId"] = "patientId is required"
	}
	if !catalog.IsValidTestType(req.TestType) {
		details["testType"] = "testType must be one of blood, urine, lipid, thyroid, liver"
	}
	if req.Parameters == nil {
		details["parameters"] = "parameters is required"
	}
	return details
}

// ReportView is a test result with its derived risk classification
type ReportView struct {
	TestResult *storage.TestResult `json:"testResult"`
	RiskLevel  report.Level        `json:"riskLevel"`
	TestName   string              `json:"testName"`
}

// --- Patient Handlers ---

// RegisterPatient returns the patient with the given patientId, creating it
// on first use
func (h *Handler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req RegisterPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, decodeError(err, "Invalid patient data"))
		return
	}

	if details := req.Validate(); len(details) > 0 {
		writeError(w, errors.Validation("Invalid patient data", details))
		return
	}

	ctx := r.Context()
	patient, err := h.store.GetPatient(ctx, req.PatientID)
	if err != nil {
		writeError(w, err)
		return
	}

	if patient == nil {
		patient, err = h.store.CreatePatient(ctx, storage.NewPatient{
			PatientID: req.PatientID,
			Name:      req.Name,
			Age:       req.Age,
			Gender:    req.Gender,
		})
		switch {
		case errors.Is(err, errors.ErrConflict):
			// registered concurrently by another request
			patient, err = h.store.GetPatient(ctx, req.PatientID)
		case err == nil:
			metrics.RecordPatientRegistered()
			h.publish(r, events.TypePatientRegistered, map[string]any{
				"patient_id": patient.PatientID,
				"age":        patient.Age,
				"gender":     patient.Gender,
			})
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if patient == nil {
			writeError(w, errors.Internal(fmt.Errorf("patient %s vanished after conflict", req.PatientID)))
			return
		}
	}

	writeJSON(w, http.StatusOK, patient)
}

// --- Test Result Handlers ---

// GenerateReport stores a pending test result, asks the model for a report
// and attaches it. On model failure the pending record is kept.
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req GenerateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, decodeError(err, "Invalid test data"))
		return
	}

	if details := req.Validate(); len(details) > 0 {
		writeError(w, errors.Validation("Invalid test data", details))
		return
	}

	ctx := r.Context()
	pending, err := h.store.CreateTestResult(ctx, storage.NewTestResult{
		PatientID:  req.PatientID,
		TestType:   req.TestType,
		Parameters: req.Parameters,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordTestResultCreated(req.TestType)
	h.publish(r, events.TypeTestResultCreated, map[string]any{
		"test_result_id":  pending.ID,
		"patient_id":      pending.PatientID,
		"test_type":       pending.TestType,
		"parameter_count": len(pending.Parameters),
	})

	aiReport, err := h.reports.Generate(ctx, report.Request{
		TestResultID:  pending.ID,
		PatientID:     req.PatientID,
		TestType:      req.TestType,
		Parameters:    req.Parameters,
		ActorID:       auth.ActorID(ctx),
		CorrelationID: middleware.GetReqID(ctx),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.store.UpdateTestResultWithReport(ctx, pending.ID, aiReport)
	if err != nil {
		h.logger.Error().Err(err).Int64("test_result_id", pending.ID).Msg("failed to attach report")
		writeError(w, errors.GenerationFailed(err))
		return
	}
	if updated == nil {
		writeError(w, errors.GenerationFailed(fmt.Errorf("test result %d not found", pending.ID)))
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// ListTestResults lists all test results of a patient in submission order
func (h *Handler) ListTestResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.GetTestResults(r.Context(), chi.URLParam(r, "patientId"))
	if err != nil {
		writeError(w, errors.Wrap(err, "Failed to fetch test results"))
		return
	}
	if results == nil {
		results = []storage.TestResult{}
	}

	writeJSON(w, http.StatusOK, results)
}

// --- Catalog Handlers ---

// ListTestTypes lists the supported panels
func (h *Handler) ListTestTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.TestTypes())
}

// GetParameters lists the parameters of a panel, empty for unknown panels
func (h *Handler) GetParameters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.Lookup(chi.URLParam(r, "testType")))
}

// --- Report Handlers ---

// GetReport returns a test result with its risk level
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	tr, ok := h.loadTestResult(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, ReportView{
		TestResult: tr,
		RiskLevel:  report.RiskLevel(tr.AIReport, tr.Parameters),
		TestName:   catalog.DisplayName(tr.TestType),
	})
}

// DownloadPDF renders a test result as a PDF attachment
func (h *Handler) DownloadPDF(w http.ResponseWriter, r *http.Request) {
	tr, ok := h.loadTestResult(w, r)
	if !ok {
		return
	}

	now := h.now()
	var buf bytes.Buffer
	if err := export.Render(&buf, tr, now); err != nil {
		h.logger.Error().Err(err).Int64("test_result_id", tr.ID).Msg("failed to render pdf")
		writeError(w, errors.Internal(err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": export.Filename(tr, now),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *Handler) loadTestResult(w http.ResponseWriter, r *http.Request) (*storage.TestResult, bool) {
	idParam := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil || id < 1 {
		writeError(w, errors.BadRequest("invalid test result ID"))
		return nil, false
	}

	tr, err := h.store.GetTestResult(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if tr == nil {
		writeError(w, errors.NotFound("test result", idParam))
		return nil, false
	}
	return tr, true
}

func (h *Handler) publish(r *http.Request, eventType string, data map[string]any) {
	ctx := r.Context()
	event := events.NewEvent(eventType, "labreport", data).
		WithActor(auth.ActorID(ctx)).
		WithCorrelation(middleware.GetReqID(ctx))

	if err := h.publisher.Publish(ctx, event); err != nil {
		h.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

// --- Helpers ---

// decodeError maps a body decoding failure to a response. A field of the
// wrong JSON type is reported as a validation error on that field.
func decodeError(err error, message string) *errors.AppError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return errors.Validation(message, map[string]string{
			field: fmt.Sprintf("%s must be %s", field, describeKind(typeErr.Type)),
		})
	}
	return errors.BadRequest("invalid request body")
}

func describeKind(t reflect.Type) string {
	if t == nil {
		return "a valid value"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "a whole number"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "true or false"
	case reflect.Map, reflect.Struct:
		return "an object"
	case reflect.Slice, reflect.Array:
		return "an array"
	}
	return "a valid value"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
