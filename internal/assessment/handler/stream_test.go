package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/events"
)

// parseStream decodes the data lines of a server-sent event body.
func parseStream(t *testing.T, body string) []events.Event {
	t.Helper()
	var out []events.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev events.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		out = append(out, ev)
	}
	return out
}

func (s *HandlerSuite) TestEvents_MalformedID() {
	rec := s.do(http.MethodGet, "/v1/assessments/zzz/events", nil)

	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
	envelope := decodeErrorEnvelope(s.T(), rec)
	assert.Equal(s.T(), "invalid_input", envelope["error"])
}

func (s *HandlerSuite) TestEvents_ArchivedReplay() {
	requestID := uuid.NewString()
	submitted := s.do(http.MethodPost, "/v1/assessments", submitBody("INV-2026-00130", requestID))
	require.Equal(s.T(), http.StatusOK, submitted.Code)
	want := decodeAssessment(s.T(), submitted)

	rec := s.do(http.MethodGet, "/v1/assessments/"+requestID+"/events", nil)

	require.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Equal(s.T(), "text/event-stream", rec.Header().Get("Content-Type"))

	evs := parseStream(s.T(), rec.Body.String())
	require.Len(s.T(), evs, 1, "archived assessment replays exactly one event")
	assert.Equal(s.T(), events.StageCompleted, evs[0].Stage)
	assert.Equal(s.T(), requestID, evs[0].RequestID)
	assert.Equal(s.T(), strconv.Itoa(want.CompositeScore), evs[0].Detail["composite_score"])
	assert.Equal(s.T(), "true", evs[0].Detail["recorded"])
	assert.True(s.T(), want.CreatedAt.Equal(evs[0].At))
}

func (s *HandlerSuite) TestEvents_StreamsUntilFinal() {
	requestID := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/v1/assessments/"+requestID+"/events", nil)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.router.ServeHTTP(rec, req)
	}()

	require.Eventually(s.T(), func() bool { return s.hub.SubscriberCount(requestID) == 1 },
		2*time.Second, 5*time.Millisecond, "stream never subscribed")

	ctx := context.Background()
	s.hub.Publish(ctx, events.Event{RequestID: requestID, Stage: events.StagePending, At: time.Now().UTC()})
	s.hub.Publish(ctx, events.Event{RequestID: requestID, Stage: events.StageGathering, At: time.Now().UTC()})
	s.hub.Publish(ctx, events.Event{RequestID: requestID, Stage: events.StageCompleted, At: time.Now().UTC(),
		Detail: map[string]string{"category": "low"}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.T().Fatal("stream did not terminate on the final event")
	}

	body := rec.Body.String()
	assert.Contains(s.T(), body, "event: pending")
	assert.Contains(s.T(), body, "event: completed")

	evs := parseStream(s.T(), body)
	require.Len(s.T(), evs, 3)
	assert.Equal(s.T(), events.StagePending, evs[0].Stage)
	assert.Equal(s.T(), events.StageGathering, evs[1].Stage)
	assert.Equal(s.T(), events.StageCompleted, evs[2].Stage)
	assert.Equal(s.T(), "low", evs[2].Detail["category"])
}

func (s *HandlerSuite) TestEvents_FollowsLiveAssessment() {
	requestID := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/v1/assessments/"+requestID+"/events", nil)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.router.ServeHTTP(rec, req)
	}()
	require.Eventually(s.T(), func() bool { return s.hub.SubscriberCount(requestID) == 1 },
		2*time.Second, 5*time.Millisecond, "stream never subscribed")

	submitted := s.do(http.MethodPost, "/v1/assessments", submitBody("INV-2026-00131", requestID))
	require.Equal(s.T(), http.StatusOK, submitted.Code)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.T().Fatal("stream did not terminate after the assessment completed")
	}

	evs := parseStream(s.T(), rec.Body.String())
	stages := make([]events.Stage, 0, len(evs))
	for _, ev := range evs {
		stages = append(stages, ev.Stage)
	}
	assert.Equal(s.T(), []events.Stage{
		events.StagePending,
		events.StageGathering,
		events.StageSynthesizing,
		events.StageRecording,
		events.StageCompleted,
	}, stages)
	assert.Equal(s.T(), "true", evs[len(evs)-1].Detail["recorded"])
}

func (s *HandlerSuite) TestEvents_ClientDisconnectUnsubscribes() {
	requestID := uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/assessments/"+requestID+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.router.ServeHTTP(rec, req)
	}()
	require.Eventually(s.T(), func() bool { return s.hub.SubscriberCount(requestID) == 1 },
		2*time.Second, 5*time.Millisecond, "stream never subscribed")

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.T().Fatal("handler did not return after client disconnect")
	}
	assert.Equal(s.T(), 0, s.hub.SubscriberCount(requestID))
}
