// Package http exposes the trigger surface of the sync worker: health and
// storage introspection, the sync trigger, and the outbox dispatch triggers.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/usecase"
	"github.com/kvca-ops/enrolsync/pkg/utils/logging"
)

// SyncUseCase is the part of the sync engine the server triggers.
type SyncUseCase interface {
	Run(ctx context.Context, input usecase.SyncInput) (*model.SyncSummary, error)
}

// OutboxUseCase is the dispatcher surface the server triggers.
type OutboxUseCase interface {
	DispatchSheet(ctx context.Context) (*usecase.DispatchResult, error)
	DispatchNotifications(ctx context.Context) (*usecase.DispatchResult, error)
	DispatchAll(ctx context.Context) (map[string]*usecase.DispatchResult, error)
}

type Server struct {
	router      *chi.Mux
	sync        SyncUseCase
	outbox      OutboxUseCase
	storageName string
}

type Options func(*Server)

// WithStorageName sets the backend name reported by GET /storage.
func WithStorageName(name string) Options {
	return func(s *Server) {
		s.storageName = name
	}
}

func New(sync SyncUseCase, outbox OutboxUseCase, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:      r,
		sync:        sync,
		outbox:      outbox,
		storageName: "memory",
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/storage", s.handleStorage)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/enrolment-sync", s.handleSync)
		r.Post("/final-check", s.handleFinalCheck)
		r.Route("/outbox", func(r chi.Router) {
			r.Post("/sheet", s.handleDispatchSheet)
			r.Post("/notification", s.handleDispatchNotification)
			r.Post("/dispatch-all", s.handleDispatchAll)
		})
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
