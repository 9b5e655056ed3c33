// Package handler wires the assessment API: submission, retrieval, and the
// lifecycle event stream.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"arbiter/internal/assessment"
	"arbiter/internal/events"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/platform/httputil"
	"arbiter/pkg/requestcontext"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Service defines the assessment operations the handler exposes.
type Service interface {
	Assess(ctx context.Context, req assessment.AssessmentRequest) (*assessment.RiskAssessment, error)
	Get(ctx context.Context, requestID id.RequestID) (*assessment.RiskAssessment, error)
	ListBySubject(ctx context.Context, subjectID id.SubjectID, limit int) ([]*assessment.RiskAssessment, error)
}

// Streamer delivers lifecycle events for one request. The cancel function
// must be called when the subscriber goes away.
type Streamer interface {
	Subscribe(requestID string) (<-chan events.Event, func())
}

// Handler wires assessment endpoints to the coordinator.
type Handler struct {
	service Service
	streams Streamer
	logger  *slog.Logger
}

// New constructs an assessment handler with its dependencies.
func New(service Service, streams Streamer, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		streams: streams,
		logger:  logger,
	}
}

// Register mounts assessment endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/assessments", h.HandleSubmit)
	r.Get("/v1/assessments/{requestID}", h.HandleGet)
	r.Get("/v1/assessments/{requestID}/events", h.HandleEvents)
	r.Get("/v1/subjects/{subjectID}/assessments", h.HandleListBySubject)
}

// HandleSubmit handles POST /v1/assessments.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, correlationID)
	if !ok {
		return
	}

	domainReq := req.ToDomain()
	result, err := h.service.Assess(ctx, domainReq)
	if err != nil {
		var ins *assessment.InsufficientDataError
		if errors.As(err, &ins) {
			h.logger.WarnContext(ctx, "assessment had no usable factors",
				"request_id", correlationID,
				"assessment_request_id", domainReq.RequestID,
				"subject_id", domainReq.SubjectID,
			)
			httputil.WriteJSON(w, http.StatusUnprocessableEntity, fromInsufficientData(ins))
			return
		}
		h.logger.ErrorContext(ctx, "assessment failed",
			"request_id", correlationID,
			"assessment_request_id", domainReq.RequestID,
			"subject_id", domainReq.SubjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "assessment served",
		"request_id", correlationID,
		"assessment_request_id", result.RequestID,
		"subject_id", result.SubjectID,
		"composite_score", result.CompositeScore,
		"category", result.Category,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromAssessment(result))
}

// HandleGet handles GET /v1/assessments/{requestID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Get(ctx, requestID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "assessment lookup failed",
				"request_id", requestcontext.RequestID(ctx),
				"assessment_request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAssessment(result))
}

// HandleListBySubject handles GET /v1/subjects/{subjectID}/assessments.
func (h *Handler) HandleListBySubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjectID, err := id.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	list, err := h.service.ListBySubject(ctx, subjectID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "assessment listing failed",
			"request_id", requestcontext.RequestID(ctx),
			"subject_id", subjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := ListResponse{
		SubjectID:   subjectID.String(),
		Assessments: make([]AssessmentResponse, 0, len(list)),
	}
	for _, a := range list {
		resp.Assessments = append(resp.Assessments, FromAssessment(a))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}
