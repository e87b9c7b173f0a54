package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"zax_relay/internal/service/relay"
	"zax_relay/internal/utils/log"
	"zax_relay/internal/zaxerr"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DefaultMaxBody caps a command request body.
const DefaultMaxBody = 100 * 1024

type (
	// HealthCheck reports whether a backend the relay depends on is reachable.
	HealthCheck struct {
		Name  string
		Check func(ctx context.Context) error
	}

	HttpServer struct {
		dispatcher *relay.Dispatcher
		maxBody    int64
		checks     []HealthCheck
		srv        *http.Server
	}
)

func NewHttpServer(dispatcher *relay.Dispatcher, maxBody int64, checks ...HealthCheck) *HttpServer {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	s := &HttpServer{
		dispatcher: dispatcher,
		maxBody:    maxBody,
		checks:     checks,
	}
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *HttpServer) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/command", s.HandleCommand()).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.HandleHealth()).Methods(http.MethodGet)
	return r
}

// Run serves until Shutdown is called. It returns nil after a clean shutdown,
// including when Shutdown came first.
func (s *HttpServer) Run(addr string) error {
	s.srv.Addr = addr

	log.Info("relay listening", zap.String("addr", addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *HttpServer) HandleCommand() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBody+1))
		if err == nil && int64(len(body)) > s.maxBody {
			err = zaxerr.New(zaxerr.MalformedRequest, "server.read", "body exceeds %d bytes", s.maxBody)
		}
		if err != nil {
			log.Warn("Process command aborted", zap.String("remote", r.RemoteAddr), zap.Error(err))
			s.fail(w, err)
			return
		}

		reply, err := s.dispatcher.Process(r.Context(), body)
		if err != nil {
			s.fail(w, err)
			return
		}

		if reply.Body == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write(reply.Body)
	}
}

// fail writes the single failure signal callers get. Details are logged
// where the error is raised, never here.
func (s *HttpServer) fail(w http.ResponseWriter, err error) {
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(zaxerr.HTTPStatus(err))
}

func (s *HttpServer) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, c := range s.checks {
			if err := c.Check(ctx); err != nil {
				log.Error("health check failed", zap.String("backend", c.Name), zap.Error(err))
				http.Error(w, c.Name+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
