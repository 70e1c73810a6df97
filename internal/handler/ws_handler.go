package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/oddiant-techlabs/assessment-engine/internal/middleware"
	"github.com/oddiant-techlabs/assessment-engine/internal/model"
	"github.com/oddiant-techlabs/assessment-engine/internal/service"
	ws "github.com/oddiant-techlabs/assessment-engine/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the exam phase over a WebSocket: autosave, navigation,
// integrity signals and submission, without per-request HTTP overhead.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/candidate/tests/:test_id/stream
// Upgrades to WebSocket for the in-exam hot path.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	candidateID, err := uuid.Parse(claims.CandidateID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid test ID"})
		return
	}

	// The stream exists only for a live attempt.
	if _, err := h.sessionService.State(c.Request.Context(), testID, candidateID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session for this test"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("candidate_id", candidateID.String()).
		Str("test_id", testID.String()).
		Logger()

	wsLog.Info().Msg("Candidate connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, testID, candidateID, &msg)
		case ws.ActionNavigate:
			h.handleNavigate(conn, testID, candidateID, &msg)
		case ws.ActionIntegrity:
			h.handleIntegrity(conn, testID, candidateID, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, testID, candidateID)
		case ws.ActionPing:
			h.handlePing(conn, testID, candidateID)
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

func (h *WSHandler) handleAutosave(conn *websocket.Conn, testID, candidateID uuid.UUID, msg *ws.RequestPayload) {
	if msg.QID == "" {
		ws.WriteError(conn, "q_id is required")
		return
	}
	// Reject malformed ids before they reach the machine.
	if _, err := uuid.Parse(msg.QID); err != nil {
		ws.WriteError(conn, "invalid q_id format")
		return
	}

	view, err := h.sessionService.SaveAnswer(context.Background(), testID, candidateID, msg.QID, msg.Answer)
	if err != nil {
		ws.WriteError(conn, "save failed: "+err.Error())
		return
	}
	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Progress: view.Progress})
}

func (h *WSHandler) handleNavigate(conn *websocket.Conn, testID, candidateID uuid.UUID, msg *ws.RequestPayload) {
	if _, err := h.sessionService.Navigate(context.Background(), testID, candidateID, msg.Section, msg.Question); err != nil {
		ws.WriteError(conn, "navigate failed: "+err.Error())
		return
	}
	ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
}

func (h *WSHandler) handleIntegrity(conn *websocket.Conn, testID, candidateID uuid.UUID, msg *ws.RequestPayload) {
	view, err := h.sessionService.ReportIntegrity(context.Background(), testID, candidateID, model.IntegrityKind(msg.Kind))
	if err != nil {
		ws.WriteError(conn, "integrity report failed: "+err.Error())
		return
	}
	ws.WriteTyped(conn, ws.RecordedResponse{Event: ws.EventRecorded, TabSwitches: view.TabSwitches})
}

func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, testID, candidateID uuid.UUID) {
	view, err := h.sessionService.Submit(context.Background(), testID, candidateID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Submit failed")
		ws.WriteError(conn, "submit failed: "+err.Error())
		return
	}

	wsLog.Info().Int("progress", view.Progress).Msg("Session submitted over WebSocket")
	ws.WriteTyped(conn, ws.SubmittedResponse{Event: ws.EventSubmitted, Phase: view.Phase})
}

// handlePing answers with the live countdown so the client clock can resync.
func (h *WSHandler) handlePing(conn *websocket.Conn, testID, candidateID uuid.UUID) {
	view, err := h.sessionService.State(context.Background(), testID, candidateID)
	if err != nil {
		ws.WriteError(conn, "no active session")
		return
	}
	ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong, RemainingSeconds: view.RemainingSeconds})
}
