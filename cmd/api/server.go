package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/alim08/landing/pkg/auth"
	"github.com/alim08/landing/pkg/config"
	"github.com/alim08/landing/pkg/database"
	"github.com/alim08/landing/pkg/logger"
	"github.com/alim08/landing/pkg/metrics"
	"github.com/alim08/landing/pkg/quote"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// EventsChannel carries tracked events to the live admin feed.
const EventsChannel = "landing:events"

const maxBodyBytes = 1 << 20

//go:embed templates/login.html
var loginHTML string

type quoteLookup interface {
	Lookup(ctx context.Context, code string) quote.Outcome
}

type eventPublisher interface {
	Publish(ctx context.Context, channel string, msg interface{}) error
}

type rateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type migrationReporter interface {
	GetMigrationStatus(ctx context.Context) ([]database.MigrationStatus, error)
}

// Server holds the handler dependencies. The Redis backed fields are nil
// when REDIS_URL is not configured.
type Server struct {
	cfg    *config.Config
	auth   *auth.Service
	store  *database.Store
	quotes quoteLookup

	publisher  eventPublisher
	limiter    rateLimiter
	live       subscriber
	migrations migrationReporter
	checks     []healthCheck

	proxies   []*net.IPNet
	loginTmpl *template.Template
	now       func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

type healthCheck struct {
	name  string
	check func(context.Context) error
}

func newServer(cfg *config.Config, store *database.Store, authSvc *auth.Service, quotes quoteLookup) *Server {
	proxies, err := cfg.Security.TrustedProxyNets()
	if err != nil {
		logger.Log.Warn("ignoring trusted proxies", zap.Error(err))
		proxies = nil
	}
	return &Server{
		proxies:   proxies,
		cfg:       cfg,
		auth:      authSvc,
		store:     store,
		quotes:    quotes,
		loginTmpl: template.Must(template.New("login").Parse(loginHTML)),
		now:       time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Server) addCheck(name string, fn func(context.Context) error) {
	s.checks = append(s.checks, healthCheck{name: name, check: fn})
}

// Handler builds the router and wraps it with the outer middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.readyHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler())

	// Admin console pages
	r.HandleFunc("/admin/login", s.loginPageHandler).Methods(http.MethodGet)
	r.HandleFunc("/admin/login", s.loginHandler).Methods(http.MethodPost)
	r.HandleFunc("/admin/logout", s.logoutHandler).Methods(http.MethodGet)
	r.Handle("/admin", s.auth.AdminMiddleware(http.HandlerFunc(s.dashboardHandler))).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.rateLimitMiddleware)

	// Public landing endpoints
	api.HandleFunc("/get_token", s.getTokenHandler).Methods(http.MethodGet)
	api.HandleFunc("/google-tracking-settings", s.publicTrackingSettingsHandler).Methods(http.MethodGet)
	api.HandleFunc("/stock", s.stockHandler).Methods(http.MethodGet)

	// Session endpoints
	session := s.auth.SessionMiddleware(s.store.Tokens)
	api.Handle("/track", session(http.HandlerFunc(s.trackHandler))).Methods(http.MethodPost)
	api.Handle("/convert", session(http.HandlerFunc(s.convertHandler))).Methods(http.MethodPost)

	// Admin API
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.auth.AdminMiddleware)
	admin.HandleFunc("/links", s.listLinksHandler).Methods(http.MethodGet)
	admin.HandleFunc("/links", s.createLinkHandler).Methods(http.MethodPost)
	admin.HandleFunc("/links/{id:[0-9]+}", s.updateLinkHandler).Methods(http.MethodPut)
	admin.HandleFunc("/links/{id:[0-9]+}", s.deleteLinkHandler).Methods(http.MethodDelete)
	admin.HandleFunc("/sessions/{session_id}", s.sessionDetailHandler).Methods(http.MethodGet)
	admin.HandleFunc("/analytics", s.analyticsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/tokens", s.tokensHandler).Methods(http.MethodGet)
	admin.HandleFunc("/settings/google-tracking", s.getTrackingSettingsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/settings/google-tracking", s.putTrackingSettingsHandler).Methods(http.MethodPut)
	admin.HandleFunc("/migrations/status", s.migrationStatusHandler).Methods(http.MethodGet)
	admin.HandleFunc("/live", s.liveHandler).Methods(http.MethodGet)

	var h http.Handler = r
	h = s.securityHeadersMiddleware(h)
	h = s.corsMiddleware(h)
	h = loggingMiddleware(h)
	h = recoverMiddleware(h)
	return h
}

// writeJSON writes a JSON response with proper headers
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.Error("JSON encoding error", zap.Error(err))
	}
}

// writeDetail writes the {"detail": msg} error body the frontend expects
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// decodeJSON strictly decodes a bounded request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON payload: trailing data")
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.runChecks(w, r, "healthy")
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	s.runChecks(w, r, "ready")
}

func (s *Server) runChecks(w http.ResponseWriter, r *http.Request, okStatus string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			logger.Log.Warn("health check failed", zap.String("check", c.name), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"check":  c.name,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    okStatus,
		"timestamp": s.now().Unix(),
	})
}
