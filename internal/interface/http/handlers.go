package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/julAtWork/edx-platform/config"
	"github.com/julAtWork/edx-platform/internal/application/block"
	"github.com/julAtWork/edx-platform/internal/application/eventhandler"
	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive"
	"github.com/julAtWork/edx-platform/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":    "Adaptive Learning Hub API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":    "/health",
			"revisions": "/revisions?user_id={uid}",
			"student":   "/api/v1/students/{uid}/revisions",
			"view":      "/api/v1/courses/{course_id}/blocks/{block_id}/view?user_id={uid}",
			"tracking":  "/api/v1/tracking",
		},
	}

	writeJSON(w, r, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// handleReady handles the readiness endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// REVISION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRevisions handles GET /revisions?user_id=...
// The body is a bare JSON list, the shape the learner dashboard consumes.
func (s *Server) handleRevisions(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("user_id")
	if uid == "" {
		writeJSONError(w, r, http.StatusBadRequest, "missing_user_id", "user_id query parameter is required")
		return
	}

	list, err := s.deps.Revisions.PendingRevisions(r.Context(), uid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeRaw(w, http.StatusOK, list)
}

// handleStudentRevisions handles GET /api/v1/students/{uid}/revisions
func (s *Server) handleStudentRevisions(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	list, err := s.deps.Revisions.PendingRevisions(r.Context(), uid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, list, &ResponseMeta{TotalCount: len(list)})
}

// ══════════════════════════════════════════════════════════════════════════════
// BLOCK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// BlockViewResponse is the result of showing an adaptive block.
type BlockViewResponse struct {
	CourseID string         `json:"course_id"`
	BlockID  string         `json:"block_id"`
	UserID   string         `json:"user_id"`
	Children []config.Child `json:"children"`
}

// handleBlockView handles POST /api/v1/courses/{course_id}/blocks/{block_id}/view?user_id=...
func (s *Server) handleBlockView(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("user_id")
	if uid == "" {
		writeJSONError(w, r, http.StatusBadRequest, "missing_user_id", "user_id query parameter is required")
		return
	}

	courseID := r.PathValue("course_id")
	blockID := r.PathValue("block_id")

	children, err := s.deps.Blocks.StudentView(r.Context(), courseID, blockID, uid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if children == nil {
		children = []config.Child{}
	}

	writeJSON(w, r, http.StatusOK, BlockViewResponse{
		CourseID: courseID,
		BlockID:  blockID,
		UserID:   uid,
		Children: children,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACKING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleTracking handles POST /api/v1/tracking with one tracking event as body.
func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
			return
		}
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "Failed to read request body")
		return
	}

	var event map[string]any
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&event); err != nil || event == nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_json", "Body must be a JSON object")
		return
	}

	if err := s.deps.Tracking.Handle(r.Context(), event); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusAccepted, map[string]bool{"accepted": true})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeServiceError maps application and transport errors to HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)

	log := s.logger.Warn
	if status >= http.StatusInternalServerError {
		log = s.logger.Error
	}
	log("request failed",
		"path", r.URL.Path,
		"status", status,
		"error", err,
		"request_id", requestID(r.Context()),
	)

	message := http.StatusText(status)
	if status < http.StatusInternalServerError {
		message = err.Error()
	}
	writeJSONError(w, r, status, code, message)
}

func classifyError(err error) (int, string) {
	var apiErr *adaptive.APIError
	var urlErr *url.Error

	switch {
	case errors.Is(err, config.ErrCourseNotFound), errors.Is(err, config.ErrContentBlockNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, block.ErrNotAdaptive):
		return http.StatusConflict, "not_adaptive"
	case errors.Is(err, eventhandler.ErrMalformedEvent):
		return http.StatusBadRequest, "malformed_event"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, "adaptive_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "adaptive_timeout"
	case errors.As(err, &apiErr), errors.Is(err, adaptive.ErrMalformedResponse), errors.As(err, &urlErr):
		return http.StatusBadGateway, "adaptive_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
