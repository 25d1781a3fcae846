package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shyim/vitals-dashboard/internal/analysis"
	"github.com/shyim/vitals-dashboard/internal/credential"
	"github.com/shyim/vitals-dashboard/internal/models"
	"github.com/shyim/vitals-dashboard/internal/storage"
)

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
	State(rawURL string, device models.Device) (analysis.State, *time.Time)
	Reset()
}

type CredentialStore interface {
	HasCredential() bool
	IsPlaceholder() bool
	Set(ctx context.Context, raw string) (string, error)
	Clear(ctx context.Context) error
}

// ReportStore is the optional snapshot archive.
type ReportStore interface {
	GetReport(ctx context.Context, id string) (io.ReadCloser, *time.Time, *string, error)
	DeleteReport(ctx context.Context, id string) error
}

type Handler struct {
	analyzer    Analyzer
	credentials CredentialStore
	reports     ReportStore
	authToken   string
	logger      *zap.Logger
}

// NewHandler wires the HTTP surface. reports may be nil when no archive is
// configured.
func NewHandler(analyzer Analyzer, credentials CredentialStore, reports ReportStore, authToken string, logger *zap.Logger) *Handler {
	return &Handler{
		analyzer:    analyzer,
		credentials: credentials,
		reports:     reports,
		authToken:   authToken,
		logger:      logger,
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/analysis", h.HandleAnalyze)
	mux.HandleFunc("GET /api/analysis/state", h.HandleState)
	mux.HandleFunc("GET /api/credential", h.HandleGetCredential)
	mux.HandleFunc("PUT /api/credential", h.HandleSetCredential)
	mux.HandleFunc("DELETE /api/credential", h.HandleDeleteCredential)
	mux.HandleFunc("GET /api/reports/{id}", h.HandleGetReport)
	mux.HandleFunc("DELETE /api/reports/{id}", h.HandleDeleteReport)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	return mux
}

func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api") && h.authToken != "" {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") || authHeader[7:] != h.authToken {
				renderError(w, "Unauthorized", "", nil, http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	device, ok := models.ParseDevice(q.Get("device"))
	if !ok {
		renderError(w, "Unsupported device type", "", nil, http.StatusBadRequest)
		return
	}

	req := analysis.Request{
		URL:     q.Get("url"),
		Device:  device,
		Refresh: q.Get("refresh") == "true",
	}

	res, err := h.analyzer.Analyze(r.Context(), req)
	if err != nil {
		h.renderAnalyzeError(w, req, err)
		return
	}

	renderJSON(w, res, http.StatusOK)
}

func (h *Handler) renderAnalyzeError(w http.ResponseWriter, req analysis.Request, err error) {
	var aerr *analysis.Error
	switch {
	case errors.Is(err, analysis.ErrInvalidURL):
		renderError(w, "Invalid URL", "", stringPtr(req.URL), http.StatusBadRequest)
	case errors.Is(err, analysis.ErrInvalidDevice):
		renderError(w, "Unsupported device type", "", nil, http.StatusBadRequest)
	case errors.As(err, &aerr) && aerr.Kind == analysis.KindTimeout:
		renderError(w, aerr.UserMessage(req.Device), string(aerr.Kind), nil, http.StatusGatewayTimeout)
	case errors.As(err, &aerr):
		renderError(w, aerr.UserMessage(req.Device), string(aerr.Kind), stringPtr(err.Error()), http.StatusBadGateway)
	case errors.Is(err, context.Canceled):
		// client went away, nobody to answer
		h.logger.Debug("analysis request cancelled", zap.String("url", req.URL))
	default:
		h.logger.Error("analysis failed", zap.String("url", req.URL), zap.Error(err))
		renderError(w, "Analysis failed", "", nil, http.StatusInternalServerError)
	}
}

func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	device, ok := models.ParseDevice(q.Get("device"))
	if !ok {
		renderError(w, "Unsupported device type", "", nil, http.StatusBadRequest)
		return
	}

	state, updated := h.analyzer.State(q.Get("url"), device)
	renderJSON(w, models.StateResponse{State: string(state), LastUpdated: updated}, http.StatusOK)
}

func (h *Handler) HandleGetCredential(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, h.credentialStatus(), http.StatusOK)
}

func (h *Handler) HandleSetCredential(w http.ResponseWriter, r *http.Request) {
	var req models.SetCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, "Invalid Request Body", "", nil, http.StatusBadRequest)
		return
	}

	if _, err := h.credentials.Set(r.Context(), req.Key); err != nil {
		switch {
		case errors.Is(err, credential.ErrEmpty):
			renderError(w, "API key must not be empty", "", nil, http.StatusBadRequest)
		case errors.Is(err, credential.ErrPlaceholder):
			renderError(w, "Replace the placeholder with your actual API key", "", nil, http.StatusBadRequest)
		default:
			h.logger.Error("failed to store credential", zap.Error(err))
			renderError(w, "Failed to store API key", "", nil, http.StatusInternalServerError)
		}
		return
	}

	// cached results were produced with the previous key
	h.analyzer.Reset()
	h.logger.Info("credential updated")

	renderJSON(w, h.credentialStatus(), http.StatusOK)
}

func (h *Handler) HandleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.credentials.Clear(r.Context()); err != nil {
		h.logger.Error("failed to clear credential", zap.Error(err))
		renderError(w, "Failed to clear API key", "", nil, http.StatusInternalServerError)
		return
	}
	h.analyzer.Reset()
	h.logger.Info("credential cleared")

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) credentialStatus() models.CredentialStatus {
	return models.CredentialStatus{
		Configured:  h.credentials.HasCredential(),
		Placeholder: h.credentials.IsPlaceholder(),
	}
}

func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(w, r)
	if !ok {
		return
	}
	if h.reports == nil {
		http.NotFound(w, r)
		return
	}

	stream, lastModified, etag, err := h.reports.GetReport(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("failed to read report", zap.String("id", id), zap.Error(err))
		renderError(w, "Failed to read report", "", nil, http.StatusInternalServerError)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=604800")
	if etag != nil {
		w.Header().Set("ETag", *etag)
	}
	if lastModified != nil {
		w.Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}

	if _, err := io.Copy(w, stream); err != nil {
		h.logger.Warn("failed to stream report", zap.String("id", id), zap.Error(err))
	}
}

func (h *Handler) HandleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(w, r)
	if !ok {
		return
	}
	if h.reports == nil {
		http.NotFound(w, r)
		return
	}

	if err := h.reports.DeleteReport(r.Context(), id); err != nil {
		h.logger.Error("failed to delete report", zap.String("id", id), zap.Error(err))
		renderError(w, "Failed to delete report", "", nil, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, "ok")
}

// reportID accepts only snapshot ids the analyzer could have produced.
func reportID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if err := uuid.Validate(id); err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func renderJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func renderError(w http.ResponseWriter, msg, kind string, details *string, status int) {
	renderJSON(w, models.ErrorResponse{
		Error:   msg,
		Kind:    kind,
		Details: details,
	}, status)
}

func stringPtr(v string) *string {
	return &v
}
