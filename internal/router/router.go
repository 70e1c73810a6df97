package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/oddiant-techlabs/assessment-engine/internal/config"
	"github.com/oddiant-techlabs/assessment-engine/internal/handler"
	"github.com/oddiant-techlabs/assessment-engine/internal/middleware"
	"github.com/oddiant-techlabs/assessment-engine/internal/response"
	"github.com/oddiant-techlabs/assessment-engine/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Candidate *handler.CandidateHandler
	Staff     *handler.StaffHandler
	WS        *handler.WSHandler
	Monitor   *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP); access
	// codes are guessable secrets, so logins are throttled.
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/candidate/login", handlers.Auth.CandidateLogin)
		auth.POST("/staff/login", handlers.Auth.StaffLogin)

		// Authenticated profile routes
		auth.POST("/candidate/logout", middleware.RequireCandidateJWT(authService), handlers.Auth.CandidateLogout)
		auth.GET("/candidate/me", middleware.RequireCandidateJWT(authService), handlers.Auth.GetCandidateProfile)
	}

	// ─── 2. Candidate Group (JWT + Single Device) ──────────────────────
	candidateAPI := router.Group("/api/v1/candidate")
	candidateAPI.Use(middleware.RequireCandidateJWT(authService))
	{
		candidateAPI.GET("/tests/:test_id", handlers.Candidate.GetTestPayload)
		candidateAPI.POST("/tests/:test_id/session", handlers.Candidate.BeginSession)
		candidateAPI.GET("/tests/:test_id/session", handlers.Candidate.GetSessionState)
		candidateAPI.POST("/tests/:test_id/session/phase", handlers.Candidate.MovePhase)
		candidateAPI.POST("/tests/:test_id/session/system-check", handlers.Candidate.SubmitSystemCheck)
		candidateAPI.POST("/tests/:test_id/session/identity", handlers.Candidate.SubmitIdentity)
		candidateAPI.POST("/tests/:test_id/session/rules", handlers.Candidate.AcknowledgeRules)
		candidateAPI.PUT("/tests/:test_id/session/answers/:question_id", handlers.Candidate.SaveAnswer)
		candidateAPI.POST("/tests/:test_id/session/integrity", handlers.Candidate.ReportIntegrity)
		candidateAPI.POST("/tests/:test_id/session/submit", handlers.Candidate.SubmitSession)
		candidateAPI.GET("/tests/:test_id/result", handlers.Candidate.GetResult)
	}

	// ─── 3. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService))
	{
		ws.GET("/candidate/tests/:test_id/stream", handlers.WS.SessionStream)
	}

	// ─── 4. Staff Group (JWT) ──────────────────────────────────────────
	staffAPI := router.Group("/api/v1/staff")
	staffAPI.Use(middleware.RequireStaffJWT(authService))
	{
		staffAPI.GET("/tests/:test_id", handlers.Staff.GetTest)
		staffAPI.POST("/tests/:test_id/cache", handlers.Staff.WarmTestCache)
		staffAPI.GET("/tests/:test_id/sessions", handlers.Staff.ListSessions)
		staffAPI.POST("/sessions/:session_id/abandon", handlers.Staff.AbandonSession)
		staffAPI.GET("/tests/:test_id/monitor", handlers.Monitor.MonitorTestSSE)

		// Declaration gate
		staffAPI.GET("/tests/:test_id/results", handlers.Staff.ListResults)
		staffAPI.POST("/results/:result_id/declare", handlers.Staff.DeclareResult)
		staffAPI.POST("/tests/:test_id/results/declare", handlers.Staff.DeclareAllResults)
		staffAPI.GET("/tests/:test_id/candidates/:candidate_id/integrity", handlers.Staff.GetIntegrityLog)
		staffAPI.POST("/candidates/:candidate_id/reset-login", handlers.Auth.ResetCandidateLogin)
	}

	return router
}
