// Package server exposes registered entities over a small JSON REST API.
//
// Routes, one set per entity, addressed by entity name or table name:
//
//	GET    /entities         registered entity names and tables
//	GET    /{entity}         query; URL parameters use the filter mini-language
//	POST   /{entity}/query   query; the JSON body holds the parameters
//	GET    /{entity}/{id}    read one row by primary key
//	POST   /{entity}         insert, 201 with the saved entity
//	PUT    /{entity}/{id}    update, 200 with the entity
//	DELETE /{entity}/{id}    delete, 204
//
// Query responses keep the collapsing rule of query.Result: one row renders
// as an object, anything else as an array.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/arcforge/internal/logger"
	"github.com/koustreak/arcforge/internal/model"
	"github.com/koustreak/arcforge/internal/query"
)

// Config holds the listener settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server routes HTTP requests to the query engine.
type Server struct {
	eng    *query.Engine
	reg    *model.Registry
	cfg    Config
	log    *logger.Logger
	router chi.Router
}

// New builds the router for every entity in reg.
func New(eng *query.Engine, reg *model.Registry, cfg Config, log *logger.Logger) *Server {
	s := &Server{
		eng: eng,
		reg: reg,
		cfg: cfg,
		log: logger.OrNop(log).Component("server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(s.log))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.health)
	r.Get("/entities", s.listEntities)

	r.Route("/{entity}", func(r chi.Router) {
		r.Use(s.resolveEntity)
		r.Get("/", s.list)
		r.Post("/", s.create)
		r.Post("/query", s.search)
		r.Get("/{id}", s.read)
		r.Put("/{id}", s.update)
		r.Delete("/{id}", s.remove)
	})
	return r
}

// Handler returns the root handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to five seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoWith("listening", map[string]any{"addr": s.cfg.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

type entityKey struct{}

// resolveEntity finds the entity named in the path or answers 404.
func (s *Server) resolveEntity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "entity")
		meta, ok := s.reg.Lookup(name)
		if !ok {
			meta, ok = s.reg.LookupTable(name)
		}
		if !ok {
			renderMessage(w, http.StatusNotFound, "not_found", "unknown entity "+name)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), entityKey{}, meta)))
	})
}

func entityFrom(r *http.Request) *model.Meta {
	m, _ := r.Context().Value(entityKey{}).(*model.Meta)
	return m
}
