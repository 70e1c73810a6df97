package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oddiant-techlabs/assessment-engine/internal/response"
	"github.com/oddiant-techlabs/assessment-engine/internal/service"
)

// StaffHandler serves the staff review surface: session oversight, the
// integrity log and the result declaration gate.
type StaffHandler struct {
	testService    *service.TestService
	sessionService *service.SessionService
	resultService  *service.ResultService
}

// NewStaffHandler creates a new StaffHandler.
func NewStaffHandler(
	testService *service.TestService,
	sessionService *service.SessionService,
	resultService *service.ResultService,
) *StaffHandler {
	return &StaffHandler{
		testService:    testService,
		sessionService: sessionService,
		resultService:  resultService,
	}
}

// GetTest godoc
// GET /api/v1/staff/tests/:test_id
// Returns the full test definition, answer key included.
func (h *StaffHandler) GetTest(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	test, err := h.testService.GetTest(c.Request.Context(), testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// WarmTestCache godoc
// POST /api/v1/staff/tests/:test_id/cache
// Rewarms the Redis hot copies after a test is (re)published.
func (h *StaffHandler) WarmTestCache(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	test, err := h.testService.GetPublished(c.Request.Context(), testID)
	if err != nil {
		failSession(c, err)
		return
	}
	if err := h.testService.WarmTestCache(c.Request.Context(), test); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"warmed": true})
}

// ListSessions godoc
// GET /api/v1/staff/tests/:test_id/sessions
// Lists session rows for a test, newest first.
func (h *StaffHandler) ListSessions(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sessions, err := h.sessionService.ListByTest(c.Request.Context(), testID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// AbandonSession godoc
// POST /api/v1/staff/sessions/:session_id/abandon
// Marks a stuck attempt abandoned. Submitted attempts are untouchable.
func (h *StaffHandler) AbandonSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.sessionService.Abandon(c.Request.Context(), sessionID); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrSessionFinished):
			response.Fail(c, http.StatusConflict, response.ErrSessionTerminal)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}
	response.Success(c, http.StatusOK, gin.H{"abandoned": true})
}

// ListResults godoc
// GET /api/v1/staff/tests/:test_id/results?page=1&per_page=20&undeclared_only=true
// Paginated results for review; scores are always visible to staff.
func (h *StaffHandler) ListResults(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	undeclaredOnly := c.Query("undeclared_only") == "true"

	results, total, err := h.resultService.ListByTest(c.Request.Context(), testID, page, perPage, undeclaredOnly)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage != 0 {
		totalPages++
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: totalPages,
	})
}

// DeclareResult godoc
// POST /api/v1/staff/results/:result_id/declare
// Declares one result. Safe to repeat; only the first call notifies.
func (h *StaffHandler) DeclareResult(c *gin.Context) {
	resultID, err := uuid.Parse(c.Param("result_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.resultService.DeclareIndividual(c.Request.Context(), resultID)
	if err != nil {
		if errors.Is(err, service.ErrResultNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// DeclareAllResults godoc
// POST /api/v1/staff/tests/:test_id/results/declare
// Declares every undeclared result for the test.
func (h *StaffHandler) DeclareAllResults(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	declared, err := h.resultService.DeclareBatch(c.Request.Context(), testID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"declared": declared})
}

// GetIntegrityLog godoc
// GET /api/v1/staff/tests/:test_id/candidates/:candidate_id/integrity
// Returns the persisted proctoring log for one attempt, in recording order.
func (h *StaffHandler) GetIntegrityLog(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	candidateID, err := uuid.Parse(c.Param("candidate_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	events, err := h.resultService.IntegrityLog(c.Request.Context(), testID, candidateID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"events": events})
}
