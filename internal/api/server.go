// Package api provides the HTTP API server and handlers for the MotorLot application.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/motorlot/motorlot-server/internal/auth"
	"github.com/motorlot/motorlot-server/internal/config"
	"github.com/motorlot/motorlot-server/internal/ratelimit"
	"github.com/motorlot/motorlot-server/internal/service"
	"github.com/motorlot/motorlot-server/internal/store"
	"github.com/motorlot/motorlot-server/internal/uploads"
	"github.com/motorlot/motorlot-server/internal/validation"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store         *store.Store
	cars          *service.CarService
	uploads       *uploads.Storage
	tokens        *auth.TokenService
	validator     *validation.Validator
	uploadLimiter *ratelimit.KeyedRateLimiter

	maxUploadFiles int
	maxUploadSize  int64

	router *chi.Mux
	api    huma.API
	logger *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st *store.Store, cars *service.CarService, up *uploads.Storage, tokens *auth.TokenService, cfg *config.Config, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(authMiddleware(tokens))

	humaConfig := huma.DefaultConfig("MotorLot API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	api := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		store:          st,
		cars:           cars,
		uploads:        up,
		tokens:         tokens,
		validator:      validation.New(),
		uploadLimiter:  ratelimit.New(cfg.Upload.RatePerSecond, cfg.Upload.RateBurst),
		maxUploadFiles: cfg.Upload.MaxFiles,
		maxUploadSize:  cfg.Upload.MaxFileSize,
		router:         router,
		api:            api,
		logger:         logger,
	}

	s.registerHealthRoutes()
	s.registerCarRoutes()
	s.registerUploadRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
