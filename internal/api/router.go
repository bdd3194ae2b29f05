package api

import (
	"net/http"
	"time"

	"github.com/Anzful/devtrain/internal/api/handler"
	"github.com/Anzful/devtrain/internal/app/service"
	"github.com/Anzful/devtrain/internal/common/security"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(
	authService *service.AuthService,
	challengeService *service.ChallengeService,
	submissionService *service.SubmissionService,
	progressService *service.ProgressService,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	// The synchronous submit path holds the connection for the full
	// sequential grading run, so the timeout has to cover
	// testCases * (submit + poll budget).
	r.Use(chiMiddleware.Timeout(5 * time.Minute))

	// JWT verification; puts claims in context, Authenticator enforces them.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	// Public health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// API v1 Routes
	r.Route("/api/v1", func(v1 chi.Router) {
		// Auth routes (public)
		authHandler := handler.NewAuthHandler(authService)
		v1.Route("/auth", authHandler.RegisterRoutes)

		challengeHandler := handler.NewChallengeHandler(challengeService)
		v1.Route("/challenges", challengeHandler.RegisterRoutes)

		submissionHandler := handler.NewSubmissionHandler(submissionService)
		v1.Route("/submissions", submissionHandler.RegisterRoutes)

		progressHandler := handler.NewProgressHandler(progressService)
		v1.Route("/users", progressHandler.RegisterRoutes)
	})

	return r
}
