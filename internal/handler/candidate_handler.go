package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oddiant-techlabs/assessment-engine/internal/middleware"
	"github.com/oddiant-techlabs/assessment-engine/internal/model"
	"github.com/oddiant-techlabs/assessment-engine/internal/response"
	"github.com/oddiant-techlabs/assessment-engine/internal/service"
	"github.com/oddiant-techlabs/assessment-engine/internal/session"
	"github.com/oddiant-techlabs/assessment-engine/internal/validator"
)

// CandidateHandler serves the candidate exam flow: test payload, the phase
// funnel, answers, integrity reports and the gated result view.
type CandidateHandler struct {
	testService    *service.TestService
	sessionService *service.SessionService
	resultService  *service.ResultService
}

// NewCandidateHandler creates a new CandidateHandler.
func NewCandidateHandler(
	testService *service.TestService,
	sessionService *service.SessionService,
	resultService *service.ResultService,
) *CandidateHandler {
	return &CandidateHandler{
		testService:    testService,
		sessionService: sessionService,
		resultService:  resultService,
	}
}

// failSession translates session engine and orchestration errors into API
// error responses.
func failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrTerminal), errors.Is(err, session.ErrAlreadySubmitted),
		errors.Is(err, service.ErrSessionFinished):
		response.Fail(c, http.StatusConflict, response.ErrSessionTerminal)
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrNotInProgress),
		errors.Is(err, session.ErrBackNotAllowed):
		response.Fail(c, http.StatusConflict, response.ErrPhaseOrder)
	case errors.Is(err, session.ErrCameraCheckNeeded), errors.Is(err, session.ErrCameraRequired):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrCameraCheckRequired)
	case errors.Is(err, session.ErrIdentityRequired):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrIdentityRequired)
	case errors.Is(err, session.ErrRulesNotAccepted):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrRulesNotAccepted)
	case errors.Is(err, session.ErrUnknownQuestion):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrUnknownQuestion)
	case errors.Is(err, session.ErrUnknownIntegrity):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
	case errors.Is(err, service.ErrNoActiveSession):
		response.Fail(c, http.StatusNotFound, response.ErrNoSession)
	case errors.Is(err, service.ErrTestNotAvailable), errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrTestNotAvailable)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// sessionScope extracts the test id from the path and the candidate id from
// the JWT claims.
func sessionScope(c *gin.Context) (testID, candidateID uuid.UUID, ok bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	candidateID, err := uuid.Parse(claims.CandidateID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}
	testID, err = uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	return testID, candidateID, true
}

// GetTestPayload godoc
// GET /api/v1/candidate/tests/:test_id
// Returns the candidate-facing test document (no answer keys).
func (h *CandidateHandler) GetTestPayload(c *gin.Context) {
	testID, _, ok := sessionScope(c)
	if !ok {
		return
	}

	payload, err := h.testService.GetPayload(c.Request.Context(), testID)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"test": payload})
}

// BeginSession godoc
// POST /api/v1/candidate/tests/:test_id/session
// Starts or resumes the candidate's attempt, landing in Instructions.
func (h *CandidateHandler) BeginSession(c *gin.Context) {
	testID, candidateID, ok := sessionScope(c)
	if !ok {
		return
	}

	view, err := h.sessionService.Begin(c.Request.Context(), testID, candidateID)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"session": view})
}

// GetSessionState godoc
// GET /api/v1/candidate/tests/:test_id/session
// Returns the live session document; covers page reloads.
func (h *CandidateHandler) GetSessionState(c *gin.Context) {
	testID, candidateID, ok := sessionScope(c)
	if !ok {
		return
	}

	view, err := h.sessionService.State(c.Request.Context(), testID, candidateID)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// MovePhase godoc
// POST /api/v1/candidate/tests/:test_id/session/phase
// Advances or backs the phase machine one step.
func (h *CandidateHandler) MovePhase(c *gin.Context) {
	testID, candidateID, ok := sessionScope(c)
	if !ok {
		return
	}

	var req model.PhaseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessionService.AdvancePhase(c.Request.Context(), testID, candidateID, req.Direction)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// SubmitSystemCheck godoc
// POST /api/v1/candidate/tests/:test_id/session/system-check
func (h *CandidateHandler) SubmitSystemCheck(c *gin.Context) {
	testID, candidateID, ok := sessionScope(c)
	if !ok {
		return
	}

	var req model.SystemCheckRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessionService.RecordSystemCheck(c.Request.Context(), testID, candidateID, req)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// SubmitIdentity godoc
// POST /api/v1/candidate/tests/:test_id/session/identity
func (h *CandidateHandler) SubmitIdentity(c *gin.Context) {
	testID, candidateID, ok := sessionScope(c)
	if !ok {
		return
	}

	var req model.IdentityRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessionService.RecordIdentity(c.Request.Context(), testID, candidateID, req)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// AcknowledgeRules godoc
// POST /api/v1/candidate/tests/:test_id/session/rules
func (h *CandidateHandler) AcknowledgeRules(c *gin.Context) {
	testID, candidateID, ok := sessionScope(c)
	if !ok {
		return
	}

	var req model.RulesRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessionService.AcceptRules(c.Request.Context(), testID, candidateID, *req.AcceptedRules)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// SaveAnswer godoc
// PUT /api/v1/candidate/tests/:test_id/session/answers/:question_id
// Autosaves one answer; last write wins.
func (h *CandidateHandler) SaveAnswer(c *gin.Context) {
	testID, candidateID, ok := sessionScope(c)
	if !ok {
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessionService.SaveAnswer(c.Request.Context(), testID, candidateID, questionID.String(), req.Value)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// ReportIntegrity godoc
// POST /api/v1/candidate/tests/:test_id/session/integrity
func (h *CandidateHandler) ReportIntegrity(c *gin.Context) {
	testID, candidateID, ok := sessionScope(c)
	if !ok {
		return
	}

	var req model.IntegrityRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessionService.ReportIntegrity(c.Request.Context(), testID, candidateID, req.Kind)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// SubmitSession godoc
// POST /api/v1/candidate/tests/:test_id/session/submit
// Finalizes the attempt. The response never carries a score.
func (h *CandidateHandler) SubmitSession(c *gin.Context) {
	testID, candidateID, ok := sessionScope(c)
	if !ok {
		return
	}

	view, err := h.sessionService.Submit(c.Request.Context(), testID, candidateID)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// GetResult godoc
// GET /api/v1/candidate/tests/:test_id/result
// Returns the declaration-gated result view: pending until staff declare.
func (h *CandidateHandler) GetResult(c *gin.Context) {
	testID, candidateID, ok := sessionScope(c)
	if !ok {
		return
	}

	view, err := h.resultService.CandidateView(c.Request.Context(), testID, candidateID)
	if err != nil {
		if errors.Is(err, service.ErrResultNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": view})
}
