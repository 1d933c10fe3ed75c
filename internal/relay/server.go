package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/op/go-logging.v1"

	"commcore/internal/domain"
	"commcore/internal/services/auth"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server exposes a Hub and an auth.Server over HTTP.
type Server struct {
	hub     *Hub
	auth    *auth.Server
	tokens  *auth.Tokens
	metrics *Metrics
	gather  prometheus.Gatherer
	log     *logging.Logger
}

// NewServer returns a Server. Its metrics are registered with reg, which
// also backs the /metrics endpoint.
func NewServer(
	hub *Hub,
	authServer *auth.Server,
	tokens *auth.Tokens,
	reg *prometheus.Registry,
	log *logging.Logger,
) *Server {
	return &Server{
		hub:     hub,
		auth:    authServer,
		tokens:  tokens,
		metrics: NewMetrics(reg),
		gather:  reg,
		log:     log,
	}
}

// Routes returns the relay's HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(s.metrics.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register/start", s.handleRegisterStart)
		r.Post("/register/finish", s.handleRegisterFinish)
		r.Post("/login/start", s.handleLoginStart)
		r.Post("/login/finish", s.handleLoginFinish)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/keys", s.handleUploadKeys)
		r.Get("/keys/{user}", s.handleClaimKeys)
		r.Post("/msg/{user}", s.handleSendMessage)
		r.Get("/msg/{user}", s.handleFetchMessages)
		r.Post("/msg/{user}/ack", s.handleAckMessages)
	})
	return r
}

type subjectKey struct{}

// authenticate requires a bearer token and stores its subject in the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			s.writeError(w, r, ErrUnauthorized)
			return
		}
		sub, err := s.tokens.Verify(strings.TrimSpace(raw[len("Bearer "):]))
		if err != nil {
			s.log.Debugf("%s: %v", chimw.GetReqID(r.Context()), err)
			s.writeError(w, r, ErrUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), subjectKey{}, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func subject(r *http.Request) domain.Username {
	u, _ := r.Context().Value(subjectKey{}).(domain.Username)
	return u
}

// owner returns the {user} path parameter if it is the caller.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) (domain.Username, bool) {
	user := domain.Username(chi.URLParam(r, "user"))
	if user != subject(r) {
		s.writeError(w, r, ErrUnauthorized)
		return "", false
	}
	return user, true
}

func (s *Server) handleRegisterStart(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterStartRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.auth.RegisterStart(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterFinishRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.auth.RegisterFinish(r.Context(), req)
	s.metrics.RegistrationsTotal.WithLabelValues(result(err)).Inc()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoginStart(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginStartRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.auth.LoginStart(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLoginFinish(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginFinishRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.auth.LoginFinish(r.Context(), req)
	s.metrics.LoginsTotal.WithLabelValues(result(err)).Inc()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUploadKeys(w http.ResponseWriter, r *http.Request) {
	var bundle domain.KeyBundle
	if !s.decode(w, r, &bundle) {
		return
	}
	if bundle.Username != subject(r) {
		s.writeError(w, r, ErrUnauthorized)
		return
	}
	if err := s.hub.UploadKeys(r.Context(), bundle); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Infof("%s uploaded %d one-time keys", bundle.Username, len(bundle.OneTimeKeys))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClaimKeys(w http.ResponseWriter, r *http.Request) {
	user := domain.Username(chi.URLParam(r, "user"))
	claimed, err := s.hub.ClaimKeys(r.Context(), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kind := "one_time"
	if claimed.Fallback {
		kind = "fallback"
		s.log.Warningf("%s has no one-time keys left; handed out fallback key", user)
	}
	s.metrics.KeyClaimsTotal.WithLabelValues(kind).Inc()
	writeJSON(w, http.StatusOK, claimed)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var env domain.Envelope
	if !s.decode(w, r, &env) {
		return
	}
	if env.To != domain.Username(chi.URLParam(r, "user")) {
		s.writeError(w, r, ErrBadRequest)
		return
	}
	if env.From != subject(r) {
		s.writeError(w, r, ErrUnauthorized)
		return
	}
	env.Timestamp = 0
	if err := s.hub.SendMessage(r.Context(), env); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.MessagesQueuedTotal.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFetchMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := s.owner(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, ErrBadRequest)
			return
		}
		limit = n
	}
	envs, err := s.hub.FetchMessages(r.Context(), user, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envs)
}

type ackRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleAckMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req ackRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.hub.AckMessages(r.Context(), user, req.Count); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		s.log.Debugf("%s: decode %s: %v", chimw.GetReqID(r.Context()), r.URL.Path, err)
		s.writeError(w, r, ErrBadRequest)
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorFor(err)
	if status == http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		s.log.Errorf("%s %s %s: %v", chimw.GetReqID(r.Context()), r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
