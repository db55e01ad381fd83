// Package devserver serves a remote.Remote over the REST surface spoken by
// remote.HTTPClient, plus a websocket realtime endpoint streaming change
// events. It is meant for local development and end-to-end tests.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/remote"
)

// RealtimePath is the websocket endpoint.
const RealtimePath = "/realtime"

// Config configures a Server.
type Config struct {
	Addr           string
	AllowedOrigins []string
	Logger         log.FieldLogger
}

// Server exposes a remote store over HTTP.
type Server struct {
	store  remote.Remote
	feed   feed.Source
	auth   *Auth
	cfg    Config
	logger log.FieldLogger
}

// New returns a server for store. A nil source disables the realtime
// endpoint.
func New(store remote.Remote, source feed.Source, auth *Auth, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{
		store:  store,
		feed:   source,
		auth:   auth,
		cfg:    cfg,
		logger: cfg.Logger.WithField("component", "devserver"),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Prefer", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth.middleware)
		r.Route(remote.RESTPrefix, func(r chi.Router) {
			r.Post("/rpc/{fn}", s.rpc)
			r.Get("/{table}", s.list)
			r.Post("/{table}", s.insert)
			r.Patch("/{table}", s.update)
			r.Delete("/{table}", s.delete)
		})
		if s.feed != nil {
			r.Get(RealtimePath, s.realtime)
		}
	})
	return r
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.cfg.Addr).Info("dev server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

// writeStoreError maps store errors onto the statuses remote.HTTPError
// understands.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, remote.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, remote.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("store call failed")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
