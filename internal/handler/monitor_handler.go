package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oddiant-techlabs/assessment-engine/internal/config"
	"github.com/oddiant-techlabs/assessment-engine/internal/model"
	"github.com/oddiant-techlabs/assessment-engine/internal/response"
	"github.com/oddiant-techlabs/assessment-engine/internal/service"
)

const keepAliveInterval = 30 * time.Second

// MonitorHandler streams live proctoring events to staff over SSE.
type MonitorHandler struct {
	rdb            *redis.Client
	testService    *service.TestService
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	testService *service.TestService,
	sessionService *service.SessionService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		testService:    testService,
		sessionService: sessionService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorTestSSE godoc
// GET /api/v1/staff/tests/:test_id/monitor
// Sends an initial roster snapshot, then forwards integrity events published
// on the test's monitor channel as they happen.
func (h *MonitorHandler) MonitorTestSSE(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	test, err := h.testService.GetTest(c.Request.Context(), testID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	h.sendSnapshot(c, testID, test)

	channelName := config.CacheKey.TestMonitorChannel(testID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Str("test_id", testID.String()).Msg("Staff attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("test_id", testID.String()).Msg("Staff detached from live monitor SSE")
			return

		case msg, ok := <-ch:
			// The channel closes when the pubsub connection drops; a closed
			// channel yields nil messages forever.
			if !ok || msg == nil {
				h.log.Info().Str("test_id", testID.String()).Msg("Monitor channel closed, detaching SSE")
				return
			}
			// Forward raw JSON directly, no deserialization needed
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendSnapshot writes the initial roster so the dashboard starts populated.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, testID uuid.UUID, test *model.Test) {
	sessions, err := h.sessionService.ListByTest(c.Request.Context(), testID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to load sessions for monitor snapshot")
		sessions = nil
	}

	inProgress := 0
	submitted := 0
	abandoned := 0
	for _, s := range sessions {
		switch s.Outcome {
		case model.OutcomeInProgress:
			inProgress++
		case model.OutcomeSubmitted:
			submitted++
		case model.OutcomeAbandoned:
			abandoned++
		}
	}

	c.SSEvent("message", map[string]interface{}{
		"type": "snapshot",
		"data": map[string]interface{}{
			"test": map[string]interface{}{
				"id":              testID.String(),
				"name":            test.Name,
				"duration":        test.DurationMinutes,
				"total_questions": test.QuestionCount(),
			},
			"stats": map[string]interface{}{
				"total_joined": len(sessions),
				"in_progress":  inProgress,
				"submitted":    submitted,
				"abandoned":    abandoned,
			},
			"sessions": sessions,
		},
	})
	c.Writer.Flush()
}
