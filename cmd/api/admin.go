package main

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alim08/landing/pkg/auth"
	"github.com/alim08/landing/pkg/database"
	"github.com/alim08/landing/pkg/logger"
	"github.com/alim08/landing/pkg/metrics"
	"github.com/alim08/landing/pkg/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	analyticsSessions = 50
	recentTokens      = 100
)

type loginPage struct {
	Error    string
	Username string
}

func (s *Server) renderLogin(w http.ResponseWriter, status int, page loginPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.loginTmpl.Execute(w, page); err != nil {
		logger.Log.Error("failed to render login page", zap.Error(err))
	}
}

func (s *Server) loginPageHandler(w http.ResponseWriter, r *http.Request) {
	s.renderLogin(w, http.StatusOK, loginPage{})
}

// loginHandler accepts a form post or a JSON body
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var creds models.LoginRequest
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		if err := decodeJSON(w, r, &creds); err != nil {
			s.renderLogin(w, http.StatusBadRequest, loginPage{Error: "Invalid login request"})
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			s.renderLogin(w, http.StatusBadRequest, loginPage{Error: "Invalid login request"})
			return
		}
		creds.Username = r.PostFormValue("username")
		creds.Password = r.PostFormValue("password")
	}
	creds.Username = strings.TrimSpace(creds.Username)

	if err := creds.Validate(); err != nil {
		s.renderLogin(w, http.StatusBadRequest, loginPage{Error: "Username and password are required", Username: creds.Username})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	admin, err := s.store.Admins.GetAdmin(ctx, creds.Username)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		logger.Log.Error("failed to load admin", zap.Error(err))
		metrics.AuthOperations.WithLabelValues("admin_login", "error").Inc()
		s.renderLogin(w, http.StatusInternalServerError, loginPage{Error: "Login system error", Username: creds.Username})
		return
	}
	if admin == nil || !auth.CheckPassword(admin.PasswordHash, creds.Password) {
		logger.Log.Warn("admin login failed", zap.String("username", creds.Username), zap.String("ip", s.clientIP(r)))
		metrics.AuthOperations.WithLabelValues("admin_login", "denied").Inc()
		s.renderLogin(w, http.StatusUnauthorized, loginPage{Error: "Invalid username or password", Username: creds.Username})
		return
	}

	token, err := s.auth.IssueAdminToken(admin.Username)
	if err != nil {
		logger.Log.Error("failed to sign admin token", zap.Error(err))
		s.renderLogin(w, http.StatusInternalServerError, loginPage{Error: "Login system error", Username: creds.Username})
		return
	}

	metrics.AuthOperations.WithLabelValues("admin_login", "success").Inc()
	http.SetCookie(w, &http.Cookie{
		Name:     auth.AdminCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.auth.AdminTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/admin", http.StatusFound)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.AdminCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/admin/login", http.StatusFound)
}

// dashboardHandler returns the signed-in admin and the headline counts
func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	username, _ := auth.GetAdmin(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	overview, err := s.store.Analytics.Overview(ctx)
	if err != nil {
		logger.Log.Error("failed to load dashboard overview", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username": username,
		"overview": overview,
	})
}

func (s *Server) listLinksHandler(w http.ResponseWriter, r *http.Request) {
	links, err := s.store.Links.ListLinks(r.Context())
	if err != nil {
		logger.Log.Error("failed to list links", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to list links")
		return
	}
	if links == nil {
		links = []models.ConversionLink{}
	}
	writeJSON(w, http.StatusOK, links)
}

func (s *Server) createLinkHandler(w http.ResponseWriter, r *http.Request) {
	var in models.LinkInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Sanitize()
	if err := in.Validate(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	link := in.ToLink()
	if err := s.store.Links.CreateLink(r.Context(), &link); err != nil {
		logger.Log.Error("failed to create link", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to create link")
		return
	}

	admin, _ := auth.GetAdmin(r.Context())
	logger.Log.Info("conversion link created", zap.Int64("id", link.ID), zap.String("admin", admin))
	writeJSON(w, http.StatusCreated, link)
}

func (s *Server) updateLinkHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := linkID(w, r)
	if !ok {
		return
	}

	var patch models.LinkPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	patch.Sanitize()
	if err := patch.Validate(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	link, err := s.store.Links.GetLink(r.Context(), id)
	if err != nil {
		s.linkError(w, "failed to load link", err)
		return
	}
	updated := patch.Apply(*link)
	if err := s.store.Links.UpdateLink(r.Context(), &updated); err != nil {
		s.linkError(w, "failed to update link", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) deleteLinkHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := linkID(w, r)
	if !ok {
		return
	}
	if err := s.store.Links.DeleteLink(r.Context(), id); err != nil {
		s.linkError(w, "failed to delete link", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func linkID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeDetail(w, http.StatusBadRequest, "Invalid link id")
		return 0, false
	}
	return id, true
}

func (s *Server) linkError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Link not found")
		return
	}
	logger.Log.Error(msg, zap.Error(err))
	writeDetail(w, http.StatusInternalServerError, "Internal server error")
}

// sessionDetailHandler returns everything recorded for one session
func (s *Server) sessionDetailHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	ctx := r.Context()

	token, err := s.store.Tokens.GetBySession(ctx, sessionID)
	if errors.Is(err, database.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		logger.Log.Error("failed to load session", zap.Error(err), zap.String("session_id", sessionID))
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	events, err := s.store.Events.ListEventsBySession(ctx, sessionID)
	if err != nil {
		logger.Log.Error("failed to load session events", zap.Error(err), zap.String("session_id", sessionID))
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	conversions, err := s.store.Conversions.ListConversionsBySession(ctx, sessionID)
	if err != nil {
		logger.Log.Error("failed to load session conversions", zap.Error(err), zap.String("session_id", sessionID))
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if events == nil {
		events = []models.Event{}
	}
	if conversions == nil {
		conversions = []models.Conversion{}
	}
	writeJSON(w, http.StatusOK, models.SessionDetail{
		SessionID: sessionID,
		TokenInfo: models.TokenInfo{
			GCLID:     token.GCLID,
			UTMSource: token.UTMSource,
			CreatedAt: token.CreatedAt,
			ExpiresAt: token.ExpiresAt,
		},
		Events:      events,
		Conversions: conversions,
	})
}

// analyticsHandler summarises recent sessions. A failed query is logged
// and reported as an empty list.
func (s *Server) analyticsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.Analytics.RecentSessions(r.Context(), analyticsSessions)
	if err != nil {
		logger.Log.Error("failed to load analytics", zap.Error(err))
		sessions = nil
	}
	if sessions == nil {
		sessions = []models.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) tokensHandler(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.store.Tokens.ListRecentTokens(r.Context(), recentTokens)
	if err != nil {
		logger.Log.Error("failed to list tokens", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to list tokens")
		return
	}

	now := s.now()
	valid := 0
	for _, t := range tokens {
		if !t.Expired(now) {
			valid++
		}
	}
	if tokens == nil {
		tokens = []models.Token{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tokens":               tokens,
		"current_time":         now.UTC(),
		"valid_tokens_count":   valid,
		"expired_tokens_count": len(tokens) - valid,
	})
}

func (s *Server) getTrackingSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.Settings.GetTrackingSettings(r.Context())
	if err != nil {
		logger.Log.Error("failed to load tracking settings", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to load tracking settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) putTrackingSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var in models.TrackingSettingsInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Sanitize()
	if err := in.Validate(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	settings := in.ToSettings()
	if err := s.store.Settings.SaveTrackingSettings(r.Context(), &settings); err != nil {
		logger.Log.Error("failed to save tracking settings", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to save tracking settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Google tracking settings updated",
	})
}

// Migration status handler (admin only)
func (s *Server) migrationStatusHandler(w http.ResponseWriter, r *http.Request) {
	if s.migrations == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Migration status unavailable")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status, err := s.migrations.GetMigrationStatus(ctx)
	if err != nil {
		logger.Log.Error("failed to get migration status", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, status)
}
