package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/oapi-codegen/runtime/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"croaudit/internal/adapters/reportpdf"
	"croaudit/internal/domain"
	"croaudit/internal/logger"
	"croaudit/internal/ports"
	"croaudit/internal/schemas"
)

const (
	defaultWaitTimeout = 30 * time.Second
	maxBodyBytes       = 1 << 20
)

// Server exposes the auditor and contact capture over REST.
type Server struct {
	auditor     ports.Auditor
	contacts    ports.Contacts
	screenshots ports.Screenshots
	log         logger.Logger
}

type Option func(*Server)

// WithScreenshots serves screenshot references through shots; without it
// GET /screenshot answers 404.
func WithScreenshots(shots ports.Screenshots) Option {
	return func(s *Server) { s.screenshots = shots }
}

func New(auditor ports.Auditor, contacts ports.Contacts, log logger.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	s := &Server{auditor: auditor, contacts: contacts, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns a chi.Router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.getHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/goals", s.getGoals)
	r.Get("/screenshot", s.getScreenshot)

	r.Post("/scans", s.postScan)
	r.Get("/scans/{id}", s.getScan)
	r.Delete("/scans/{id}", s.deleteScan)

	r.Get("/audits/{id}", s.getAudit)
	r.Get("/audits/{id}/report.pdf", s.getAuditPDF)
	r.Post("/audits/{id}/contact", s.postContact)
	return r
}

type scanAcceptedResponse struct {
	ScanID string `json:"scan_id"`
}

type scanResponse struct {
	ScanID  string              `json:"scan_id"`
	Status  domain.ScanStatus   `json:"status"`
	State   domain.SessionState `json:"state"`
	AuditID string              `json:"audit_id,omitempty"`
	Error   string              `json:"error,omitempty"`
}

type reportResponse struct {
	domain.AuditReport
	CriticalIssues []domain.Issue `json:"critical_issues"`
	TotalIssues    int            `json:"total_issues"`
}

type contactRequest struct {
	Name  string      `json:"name"`
	Email types.Email `json:"email"`
	Phone string      `json:"phone,omitempty"`
}

type contactResponse struct {
	AuditID string `json:"audit_id"`
	Created bool   `json:"created"`
}

type errorResponse struct {
	Code   domain.ErrorCode     `json:"code"`
	Error  string               `json:"error"`
	Fields []schemas.FieldError `json:"fields,omitempty"`
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getGoals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]domain.Goal{"goals": domain.Goals()})
}

func (s *Server) getScreenshot(w http.ResponseWriter, r *http.Request) {
	var site string
	if err := runtime.BindQueryParameter("form", true, true, "url", r.URL.Query(), &site); err != nil {
		s.writeError(w, r, &domain.InvalidInputError{Field: "url", Reason: err.Error()})
		return
	}
	if s.screenshots == nil {
		s.writeError(w, r, domain.ErrNotFound)
		return
	}
	body, contentType, err := s.screenshots.Fetch(r.Context(), site)
	if err != nil {
		s.log.Warn("screenshot fetch", map[string]interface{}{"error": err.Error()})
		s.writeError(w, r, fmt.Errorf("screenshot unavailable: %w", domain.ErrNotFound))
		return
	}
	defer body.Close()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (s *Server) postScan(w http.ResponseWriter, r *http.Request) {
	var wait bool
	if err := runtime.BindQueryParameter("form", true, false, "wait", r.URL.Query(), &wait); err != nil {
		s.writeError(w, r, &domain.InvalidInputError{Field: "wait", Value: r.URL.Query().Get("wait"), Reason: err.Error()})
		return
	}
	var timeoutSec int
	if err := runtime.BindQueryParameter("form", true, false, "timeout", r.URL.Query(), &timeoutSec); err != nil {
		s.writeError(w, r, &domain.InvalidInputError{Field: "timeout", Value: r.URL.Query().Get("timeout"), Reason: err.Error()})
		return
	}

	var in domain.AuditInputs
	if err := decodeBody(r, schemas.AuditInputs, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	scanID, err := s.auditor.Start(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !wait {
		w.Header().Set("Location", "/scans/"+scanID)
		writeJSON(w, http.StatusAccepted, scanAcceptedResponse{ScanID: scanID})
		return
	}

	timeout := defaultWaitTimeout
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	report, err := s.auditor.Wait(ctx, scanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(report))
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.auditor.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{
		ScanID:  view.ScanID,
		Status:  view.Status,
		State:   view.State.Clone(),
		AuditID: view.AuditID,
		Error:   view.Error,
	})
}

func (s *Server) deleteScan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.auditor.Cancel(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.auditor.Report(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(report))
}

func (s *Server) getAuditPDF(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.auditor.Report(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := reportpdf.Render(&buf, report); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="cro-audit-%s.pdf"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) postContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req contactRequest
	if err := decodeBody(r, schemas.Contact, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.contacts.Submit(r.Context(), domain.Contact{
		AuditID: id,
		Name:    req.Name,
		Email:   string(req.Email),
		Phone:   req.Phone,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, contactResponse{AuditID: id, Created: created})
}

func newReportResponse(report domain.AuditReport) reportResponse {
	return reportResponse{
		AuditReport:    report,
		CriticalIssues: report.CriticalIssues(),
		TotalIssues:    report.TotalIssues(),
	}
}

// pathID binds the {id} segment as a UUID.
func pathID(r *http.Request) (string, error) {
	var id types.UUID
	raw := chi.URLParam(r, "id")
	err := runtime.BindStyledParameterWithOptions("simple", "id", raw, &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Required:      true,
	})
	if err != nil {
		return "", &domain.InvalidInputError{Field: "id", Value: raw, Reason: "must be a UUID"}
	}
	return id.String(), nil
}

// decodeBody validates the request body against schema before decoding it
// into dst.
func decodeBody(r *http.Request, schema string, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return &domain.InvalidInputError{Field: "body", Reason: err.Error()}
	}
	if len(raw) > maxBodyBytes {
		return &domain.InvalidInputError{Field: "body", Reason: "request body too large"}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return &domain.InvalidInputError{Field: "body", Reason: "missing body"}
	}
	if !json.Valid(raw) {
		return &domain.InvalidInputError{Field: "body", Reason: "malformed JSON"}
	}
	if err := schemas.ValidateBytes(schema, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &domain.InvalidInputError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *schemas.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:   domain.ErrCodeInvalidInput,
			Error:  verr.Error(),
			Fields: verr.Errors,
		})
		return
	}

	code := domain.CodeOf(err)
	status := statusOf(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
			"error":      msg,
		})
		if code == domain.ErrCodeInternal {
			msg = "internal error"
		}
	}
	writeJSON(w, status, errorResponse{Code: code, Error: msg})
}

func statusOf(code domain.ErrorCode) int {
	switch code {
	case domain.ErrCodeInvalidInput, domain.ErrCodeConfiguration:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeAlreadyRunning, domain.ErrCodeNotRunning, domain.ErrCodeCancelled:
		return http.StatusConflict
	case domain.ErrCodeCapacity:
		return http.StatusServiceUnavailable
	case domain.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}
