package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"imobot/models"
	"imobot/storage"
	"imobot/utils"
)

const recentLimit = 10

// Firer sets the manual trigger.
type Firer interface {
	Fire() error
}

// StatusSource reports the state of the cycle loop.
type StatusSource interface {
	Status() models.SchedulerStatus
}

// Credentials protect every route but /healthz with HTTP basic auth when
// User is set.
type Credentials struct {
	User     string
	Password string
}

// Server is the control API: manual trigger, store overview and health.
type Server struct {
	store   storage.Reader
	trigger Firer
	status  StatusSource
	creds   Credentials
	logger  *utils.Logger
	router  *mux.Router
}

// NewServer builds the router.
func NewServer(store storage.Reader, trigger Firer, status StatusSource, creds Credentials, logger *utils.Logger) *Server {
	s := &Server{store: store, trigger: trigger, status: status, creds: creds, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	// Registered on the root router so a wrong method yields 405, not 404.
	r.Handle("/api/trigger", s.basicAuth(http.HandlerFunc(s.handleTrigger))).Methods(http.MethodPost)
	r.Handle("/api/stats", s.basicAuth(http.HandlerFunc(s.handleStats))).Methods(http.MethodGet)
	r.Handle("/api/properties", s.basicAuth(http.HandlerFunc(s.handleProperties))).Methods(http.MethodGet)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("[api] Control API listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.creds.User == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.creds.User)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.creds.Password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="imobot"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "incorrect username or password"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if err := s.trigger.Fire(); err != nil {
		s.logger.Error("[api] %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not set trigger"})
		return
	}
	s.logger.Info("[api] Manual scan triggered")
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Scan triggered"})
}

type statsResponse struct {
	*models.SiteStats
	Status    string                  `json:"status"`
	Scheduler *models.SchedulerStatus `json:"scheduler,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("[api] stats: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not read stats"})
		return
	}

	resp := statsResponse{SiteStats: stats, Status: "Online"}
	if s.status != nil {
		st := s.status.Status()
		resp.Scheduler = &st
		if st.Running {
			resp.Status = "Scanning"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	listings, err := s.store.Recent(r.Context(), recentLimit)
	if err != nil {
		s.logger.Error("[api] properties: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not read properties"})
		return
	}
	if listings == nil {
		listings = []*models.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
