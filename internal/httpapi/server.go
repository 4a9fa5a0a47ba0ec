// Package server assembles the chi router and the http.Server lifetime
// around it. It owns no business logic of its own; the file and signaling
// handlers are methods on collaborators constructed in cmd/coordinatord, and
// the health/ready handlers come from the handlers package.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/websoft9/dropcode/internal/blobstore"
	"github.com/websoft9/dropcode/internal/catalog"
	"github.com/websoft9/dropcode/internal/config"
	"github.com/websoft9/dropcode/internal/httpapi/handlers"
	"github.com/websoft9/dropcode/internal/httpapi/middleware"
	"github.com/websoft9/dropcode/internal/identity"
	"github.com/websoft9/dropcode/internal/signaling"
)

// Server owns the router and its http.Server lifetime.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	httpServer *http.Server
}

// New builds the router. verifier gates every authenticated route; the
// download-resolve and signaling endpoints are intentionally left outside
// that gate.
func New(cfg *config.Config, cat *catalog.Catalog, blobs blobstore.Store, filesAPI *handlers.FilesAPI, signalingHandler *signaling.Handler, verifier identity.Verifier) *Server {
	s := &Server{cfg: cfg}
	s.setupRouter(cat, blobs, filesAPI, signalingHandler, verifier)
	return s
}

func (s *Server) setupRouter(cat *catalog.Catalog, blobs blobstore.Store, filesAPI *handlers.FilesAPI, signalingHandler *signaling.Handler, verifier identity.Verifier) {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.Health)
	r.Get("/ready", handlers.Ready(cat, blobs))

	// Share-code download resolve/unlock carries no auth; it is keyed
	// entirely by the unguessable code, optionally gated by a password.
	r.Route("/files/download", func(r chi.Router) {
		r.Get("/{code}", filesAPI.DownloadResolve)
		r.Post("/{code}", filesAPI.DownloadUnlock)
	})

	// Signaling is its own auth-free protocol: join messages carry the room
	// code, which is the capability.
	r.Handle("/signaling", signalingHandler)

	r.Route("/files", func(r chi.Router) {
		r.Use(identity.Middleware(verifier))

		r.Post("/presign", filesAPI.Presign)
		r.Post("/confirm", filesAPI.Confirm)
		r.Post("/upload", filesAPI.Upload)
		r.Get("/", filesAPI.List)
		r.Delete("/{id}", filesAPI.Delete)
	})

	s.router = r
}

// Start blocks serving HTTP on addr until the server is shut down.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // signaling upgrade + large presign responses
		IdleTimeout:  120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("httpapi: listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("httpapi: shutting down")
	return s.httpServer.Shutdown(ctx)
}
