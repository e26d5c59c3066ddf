// Package api exposes the HTTP interface for the card service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cardsmith/og-card-service/internal/access"
	"github.com/cardsmith/og-card-service/internal/config"
	"github.com/cardsmith/og-card-service/internal/ogcard"
	"github.com/cardsmith/og-card-service/internal/service"
	"github.com/cardsmith/og-card-service/internal/telemetry"
)

// Server wires HTTP handlers to the card service.
type Server struct {
	router  chi.Router
	service *service.Service
	gate    *access.Gate
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. assetsDir,
// when non-empty, is served under /assets/og/ for the local image
// provider.
func NewServer(svc *service.Service, gate *access.Gate, cfg config.Config, assetsDir string, logger *zap.Logger) *Server {
	telemetry.Init()
	s := &Server{
		service: svc,
		gate:    gate,
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", telemetry.Handler())

	if assetsDir != "" {
		fileServer := http.StripPrefix("/assets/og/", http.FileServer(http.Dir(assetsDir)))
		r.Get("/assets/og/*", fileServer.ServeHTTP)
	}

	r.Route("/v1/og", func(r chi.Router) {
		r.Use(s.securityMiddleware)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.createJob)
			r.Get("/", s.listJobs)
			r.Get("/{job_id}", s.getJob)
		})
		r.Route("/mappings", func(r chi.Router) {
			r.Post("/", s.bindMapping)
			r.Get("/by-url", s.getMappingByURL)
		})
		r.Get("/templates", s.listTemplates)
		r.Get("/presets", s.listPresets)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                  true,
		"auth_required":       s.cfg.Auth.RequireKey,
		"configured_api_keys": len(s.cfg.Auth.Keys),
	})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createJobRequest struct {
	SourceImageURL    string `json:"source_image_url"`
	SourceImageBase64 string `json:"source_image_base64"`
	Title             string `json:"title"`
	Subtitle          string `json:"subtitle"`
	Platform          string `json:"platform"`
	TemplateID        string `json:"template_id"`
	PageURL           string `json:"page_url"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	in, err := s.decodeCreateJob(r)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	job, err := s.service.CreateJob(r.Context(), in)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, jobPayload(job))
}

func (s *Server) decodeCreateJob(r *http.Request) (ogcard.CreateJobInput, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "multipart/form-data" {
		return s.decodeMultipartJob(r)
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ogcard.CreateJobInput{}, ogcard.NewError(ogcard.CodeInvalidRequest, "request body failed validation", http.StatusBadRequest)
	}
	return ogcard.CreateJobInput{
		Title:             req.Title,
		Subtitle:          req.Subtitle,
		Platform:          ogcard.Platform(req.Platform),
		TemplateID:        ogcard.TemplateID(req.TemplateID),
		PageURL:           req.PageURL,
		SourceImageURL:    req.SourceImageURL,
		SourceImageBase64: req.SourceImageBase64,
	}, nil
}

// decodeMultipartJob walks the parts by hand so that a wrong file field
// or a second file fails with a specific code.
func (s *Server) decodeMultipartJob(r *http.Request) (ogcard.CreateJobInput, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return ogcard.CreateJobInput{}, ogcard.NewError(ogcard.CodeInvalidRequest, "request body failed validation", http.StatusBadRequest)
	}

	in := ogcard.CreateJobInput{}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ogcard.CreateJobInput{}, ogcard.NewError(ogcard.CodeInvalidRequest, "request body failed validation", http.StatusBadRequest)
		}

		if part.FileName() != "" {
			if part.FormName() != "source_image_file" {
				return ogcard.CreateJobInput{}, ogcard.NewError(ogcard.CodeInvalidFileField, "use source_image_file as the multipart file field name", http.StatusBadRequest)
			}
			if len(in.SourceImageBytes) > 0 {
				return ogcard.CreateJobInput{}, ogcard.NewError(ogcard.CodeMultipleFiles, "only one source_image_file is allowed", http.StatusBadRequest)
			}
			data, err := readPart(part, s.cfg.Source.MaxBytes)
			if err != nil {
				return ogcard.CreateJobInput{}, err
			}
			in.SourceImageBytes = data
			in.SourceFileName = part.FileName()
			continue
		}

		value, err := readPart(part, 64*1024)
		if err != nil {
			return ogcard.CreateJobInput{}, err
		}
		switch part.FormName() {
		case "title":
			in.Title = string(value)
		case "subtitle":
			in.Subtitle = string(value)
		case "platform":
			in.Platform = ogcard.Platform(value)
		case "template_id":
			in.TemplateID = ogcard.TemplateID(value)
		case "page_url":
			in.PageURL = string(value)
		case "source_image_url":
			in.SourceImageURL = string(value)
		}
	}
	return in, nil
}

func readPart(part io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
	if err != nil {
		return nil, ogcard.NewError(ogcard.CodeInvalidRequest, "request body failed validation", http.StatusBadRequest)
	}
	if int64(len(data)) > maxBytes {
		return nil, ogcard.NewError(
			ogcard.CodeSourceTooLarge,
			fmt.Sprintf("uploaded image exceeded %d bytes", maxBytes),
			http.StatusUnprocessableEntity,
		)
	}
	return data, nil
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	in := ogcard.ListJobsInput{Cursor: r.URL.Query().Get("cursor")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			writeCodedError(w, ogcard.NewError(ogcard.CodeInvalidQuery, "limit must be an integer between 1 and 100", http.StatusBadRequest))
			return
		}
		in.Limit = limit
	}

	result, err := s.service.ListJobs(r.Context(), in)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(result.Items))
	for _, job := range result.Items {
		items = append(items, jobPayload(job))
	}
	payload := map[string]any{"items": items}
	if result.NextCursor != "" {
		payload["nextCursor"] = result.NextCursor
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobPayload(job))
}

type bindMappingRequest struct {
	PageURL string `json:"page_url"`
	JobID   string `json:"job_id"`
}

func (s *Server) bindMapping(w http.ResponseWriter, r *http.Request) {
	var req bindMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PageURL == "" || req.JobID == "" {
		writeCodedError(w, ogcard.NewError(ogcard.CodeInvalidRequest, "page_url and job_id are required", http.StatusBadRequest))
		return
	}
	mapping, err := s.service.BindMapping(r.Context(), req.PageURL, req.JobID)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mappingPayload(mapping))
}

func (s *Server) getMappingByURL(w http.ResponseWriter, r *http.Request) {
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		writeCodedError(w, ogcard.NewError(ogcard.CodeInvalidRequest, "url query parameter is required", http.StatusBadRequest))
		return
	}
	mapping, err := s.service.GetMappingForURL(r.Context(), pageURL)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mappingPayload(mapping))
}

func (s *Server) listTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Templates())
}

func (s *Server) listPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Presets())
}

// jobPayload adds the ISO-8601 rendering of created_at alongside the
// epoch-millisecond value.
func jobPayload(job ogcard.Job) map[string]any {
	payload := map[string]any{}
	raw, _ := json.Marshal(job)
	_ = json.Unmarshal(raw, &payload)
	payload["created_at_iso"] = time.UnixMilli(job.CreatedAt).UTC().Format(time.RFC3339Nano)
	return payload
}

func mappingPayload(mapping ogcard.URLMapping) map[string]any {
	payload := map[string]any{}
	raw, _ := json.Marshal(mapping)
	_ = json.Unmarshal(raw, &payload)
	payload["updated_at_iso"] = time.UnixMilli(mapping.UpdatedAt).UTC().Format(time.RFC3339Nano)
	return payload
}

// securityMiddleware authenticates the request and enforces the tier
// budget, exposing the outcome through rate-limit headers.
func (s *Server) securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := s.gate.Authorize(apiKeyFromRequest(r), r.RemoteAddr)
		if err != nil {
			if coded, ok := ogcard.AsError(err); ok && coded.Code == ogcard.CodeRateLimited {
				telemetry.ObserveRateLimited(string(decision.Tier))
				setRateLimitHeaders(w, decision)
				if retry, ok := coded.Details["retry_after_seconds"].(int); ok {
					w.Header().Set("Retry-After", strconv.Itoa(retry))
				}
			}
			writeCodedError(w, err)
			return
		}

		w.Header().Set("X-Api-Key-Tier", string(decision.Tier))
		if decision.KeyName != "" {
			w.Header().Set("X-Api-Key-Name", decision.KeyName)
		}
		if decision.Limit > 0 {
			setRateLimitHeaders(w, decision)
		}
		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, decision access.Decision) {
	remaining := decision.Remaining
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-Rate-Limit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-Rate-Limit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-Rate-Limit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
}

// apiKeyFromRequest reads the key from X-API-Key or a Bearer token.
func apiKeyFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeCodedError(w, ogcard.NewError(ogcard.CodeInternal, "internal error", http.StatusInternalServerError))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

// writeCodedError renders the error envelope, spreading structured
// details alongside code and message.
func writeCodedError(w http.ResponseWriter, err error) {
	coded, ok := ogcard.AsError(err)
	if !ok {
		coded = ogcard.NewError(ogcard.CodeInternal, "internal error", http.StatusInternalServerError)
	}
	body := map[string]any{
		"code":    coded.Code,
		"message": coded.Message,
	}
	for k, v := range coded.Details {
		body[k] = v
	}
	writeJSON(w, coded.Status, map[string]any{"error": body})
}
