package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	authmw "github.com/mind-engage/mindengage-scenarios/internal/auth/middleware"
	"github.com/mind-engage/mindengage-scenarios/internal/logger"
	"github.com/mind-engage/mindengage-scenarios/internal/rbac"
	"github.com/mind-engage/mindengage-scenarios/internal/scenario"
	"github.com/mind-engage/mindengage-scenarios/internal/storage"
)

type RouterDeps struct {
	Engine *scenario.Engine
	Graphs scenario.GraphStore
	Users  authmw.UserWriter
	Auth   *authmw.AuthService
	Blobs  storage.BlobStore
	Log    *logger.Logger

	CORSOrigins     []string
	RequestTimeout  time.Duration
	EnableLocalAuth bool
	// AllowClaimFallback trusts the token role for subjects missing from
	// the user store (offline/dev).
	AllowClaimFallback bool
	// Ready backs /readyz; nil means always ready.
	Ready func(context.Context) error
}

func NewRouter(d RouterDeps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Local login (enabled in offline mode by default; can be enabled online via env)
	if d.EnableLocalAuth {
		r.Post("/auth/login", authmw.LoginHandler(d.Auth, d.Users))
	}

	// Protected API (JWT → role from store → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth), authmw.AttachRoleFromStore(d.Users, d.AllowClaimFallback))

		pr.Route("/assets", func(ar chi.Router) {
			MountAssets(ar, d.Blobs)
		})

		pr.With(rbac.Require("scenario:view")).
			Get("/scenarios", ListScenariosHandler(d.Graphs, log))
		pr.With(rbac.Require("scenario:create")).
			Post("/scenarios", ImportScenarioHandler(d.Graphs, log))
		pr.With(rbac.Require("scenario:view")).
			Get("/scenarios/{scenarioID}", GetScenarioHandler(d.Graphs, d.Blobs, log))
		pr.With(rbac.Require("scenario:create")).
			Put("/scenarios/{scenarioID}/assets/{kind}", UploadAssetHandler(d.Graphs, d.Blobs, log))

		pr.With(rbac.Require("attempt:create")).
			Post("/scenarios/{scenarioID}/attempts", StartAttemptHandler(d.Engine, log))
		pr.With(rbac.Require("attempt:view-own")).
			Get("/scenarios/{scenarioID}/score", LatestScoreHandler(d.Engine, log))
		pr.With(rbac.Require("attempt:view-all")).
			Get("/scenarios/{scenarioID}/attempts", ScoreboardHandler(d.Engine, log))

		pr.With(rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/responses", SubmitResponseHandler(d.Engine, log))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", GetAttemptHandler(d.Engine, log))

		// Users (teacher/admin)
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", BulkUpsertUsersHandler(d.Users, log))
		pr.With(rbac.Require("user:change_password")).
			Post("/users/change-password", ChangePasswordHandler(d.Users, log))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				log.Warn("not ready", "error", err)
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}
