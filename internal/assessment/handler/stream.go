package handler

import (
	"encoding/json"
	"fmt"
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

const heartbeatInterval = 15 * time.Second

// HandleEvents handles GET /v1/assessments/{requestID}/events as a
// server-sent event stream. Subscribing before the request is submitted is
// allowed: the stream stays open and delivers events once the run starts.
// For an already archived assessment it replays a single completed event.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	// Subscribe before the archive lookup so a run finishing in between
	// still delivers its final event through the channel.
	ch, cancel := h.streams.Subscribe(requestID.String())
	defer cancel()

	prior, err := h.service.Get(ctx, requestID)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		h.logger.ErrorContext(ctx, "assessment lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"assessment_request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if prior != nil {
		writeEvent(w, flusher, archivedEvent(prior))
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := writeEvent(w, flusher, ev); err != nil {
				return
			}
			if ev.Final() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Stage, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// archivedEvent reconstructs the terminal event for an assessment that
// completed before the subscriber attached.
func archivedEvent(a *assessment.RiskAssessment) events.Event {
	return events.Event{
		RequestID: a.RequestID.String(),
		SubjectID: a.SubjectID.String(),
		Stage:     events.StageCompleted,
		At:        a.CreatedAt,
		Detail: map[string]string{
			"composite_score": strconv.Itoa(a.CompositeScore),
			"category":        string(a.Category),
			"recommendation":  string(a.Recommendation),
			"recorded":        strconv.FormatBool(a.Recording.Recorded),
		},
	}
}
