// Package api exposes the relay, read models, text generation and data
// streams over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vietddude/gigwatch/internal/datastream"
	"github.com/vietddude/gigwatch/internal/indexing/health"
	"github.com/vietddude/gigwatch/internal/indexing/readmodel"
	"github.com/vietddude/gigwatch/internal/indexing/relay"
)

// Generator produces model output. *llm.Client implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string, dst any) error
}

// Config holds the components served by the router. Nil components leave
// their routes unmounted.
type Config struct {
	Relay   *relay.Handler
	Models  *readmodel.Accessors
	LLM     Generator
	Streams *datastream.Service
	Health  *health.Monitor
}

// New returns an HTTP handler exposing the gigwatch API.
func New(cfg Config) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(slog.Default().With("component", "api")))

	if cfg.Health != nil {
		health.Mount(router, cfg.Health)
	}

	router.Route("/api", func(r chi.Router) {
		if cfg.Relay != nil {
			r.Get("/events/stream", cfg.Relay.Stream)
			r.Get("/events/history", cfg.Relay.History)
		}
		if cfg.Models != nil {
			registerJobs(r, cfg.Models)
		}
		if cfg.LLM != nil {
			registerAI(r, cfg.LLM)
		}
		if cfg.Streams != nil {
			registerStreams(r, cfg.Streams)
		}
	})

	return router
}

// requestLogger logs each request at debug once it completes. Streams are
// logged when the client disconnects.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
