package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/alim08/landing/pkg/auth"
	"github.com/alim08/landing/pkg/logger"
	"github.com/alim08/landing/pkg/metrics"
	"github.com/alim08/landing/pkg/models"
	"github.com/alim08/landing/pkg/quote"
	"github.com/alim08/landing/pkg/redirect"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// knownEventTypes bounds the event_type metric label.
var knownEventTypes = map[string]bool{
	"page_visit":  true,
	"scroll":      true,
	"click":       true,
	"form_focus":  true,
	"form_submit": true,
	"conversion":  true,
	"unknown":     true,
}

// getTokenHandler issues a session token to visitors arriving from an ad
func (s *Server) getTokenHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	gclid := strings.TrimSpace(q.Get("gclid"))
	utmSource := strings.TrimSpace(q.Get("utm_source"))
	if gclid == "" && utmSource == "" {
		writeDetail(w, http.StatusForbidden, "Access denied: missing required parameters")
		return
	}

	sessionID := uuid.NewString()
	signed, expiresAt, err := s.auth.IssueSessionToken(sessionID)
	if err != nil {
		logger.Log.Error("failed to sign session token", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	token := &models.Token{
		Token:     signed,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
		GCLID:     gclid,
		UTMSource: utmSource,
	}
	if err := s.store.Tokens.CreateToken(ctx, token); err != nil {
		logger.Log.Error("failed to save session token", zap.Error(err), zap.String("session_id", sessionID))
		writeDetail(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	metrics.TokensIssued.WithLabelValues(tokenSource(gclid, utmSource)).Inc()
	writeJSON(w, http.StatusOK, map[string]string{
		"token":      signed,
		"session_id": sessionID,
	})
}

func tokenSource(gclid, utmSource string) string {
	switch {
	case gclid != "" && utmSource != "":
		return "both"
	case gclid != "":
		return "gclid"
	default:
		return "utm"
	}
}

// trackHandler records one client event for the authenticated session
func (s *Server) trackHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TrackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Sanitize()
	if err := req.Validate(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	sessionID, _ := auth.GetSessionID(r.Context())
	meta, err := json.Marshal(req.EnrichedMeta(r.UserAgent(), s.clientIP(r), s.now()))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid meta")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	event := &models.Event{SessionID: sessionID, EventType: req.EventType, Meta: meta}
	if err := s.store.Events.CreateEvent(ctx, event); err != nil {
		logger.Log.Error("failed to save event", zap.Error(err), zap.String("session_id", sessionID))
		writeDetail(w, http.StatusInternalServerError, "Failed to track event")
		return
	}

	metrics.EventsTracked.WithLabelValues(eventLabel(event.EventType)).Inc()
	s.publishEvent(event)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Event tracked",
	})
}

// eventLabel maps client supplied event types onto a bounded label set.
func eventLabel(eventType string) string {
	if knownEventTypes[eventType] {
		return eventType
	}
	return "other"
}

// publishEvent forwards an event to the live feed without delaying the
// response. Failures are only logged.
func (s *Server) publishEvent(event *models.Event) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Log.Warn("failed to encode live event", zap.Error(err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, EventsChannel, payload); err != nil {
			logger.Log.Debug("failed to publish live event", zap.Error(err))
		}
	}()
}

// convertHandler picks a weighted redirect target and records the conversion
func (s *Server) convertHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ConvertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Sanitize()
	if err := req.Validate(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	links, err := s.store.Links.ListActiveLinks(ctx)
	if err != nil {
		logger.Log.Error("failed to load conversion links", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to load conversion links")
		return
	}

	s.mu.Lock()
	link, err := redirect.Pick(links, s.rnd)
	s.mu.Unlock()
	if errors.Is(err, redirect.ErrNoLinks) {
		writeDetail(w, http.StatusNotFound, "No conversion links available")
		return
	}

	sessionID, _ := auth.GetSessionID(r.Context())
	conv := &models.Conversion{SessionID: sessionID, InputValue: req.InputValue, TargetURL: link.TargetURL}
	if err := s.store.Conversions.CreateConversion(ctx, conv); err != nil {
		logger.Log.Error("failed to save conversion", zap.Error(err), zap.String("session_id", sessionID))
		writeDetail(w, http.StatusInternalServerError, "Failed to record conversion")
		return
	}

	metrics.Conversions.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"redirect_url": link.TargetURL})
}

// publicTrackingSettingsHandler serves the Google tag ids to the frontend.
// It never fails; errors yield empty ids.
func (s *Server) publicTrackingSettingsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	settings, err := s.store.Settings.GetTrackingSettings(ctx)
	if err != nil {
		logger.Log.Error("failed to load public tracking settings", zap.Error(err))
		settings = &models.TrackingSettings{}
	}
	writeJSON(w, http.StatusOK, settings)
}

type stockResponse struct {
	Success  bool          `json:"success"`
	Data     *quote.Record `json:"data,omitempty"`
	Source   quote.Source  `json:"source,omitempty"`
	Fallback bool          `json:"fallback,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// stockHandler always answers with a record; degradation is signalled by
// source and fallback only.
func (s *Server) stockHandler(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		writeJSON(w, http.StatusBadRequest, stockResponse{Success: false, Error: "code is required"})
		return
	}

	out := s.quotes.Lookup(r.Context(), code)
	writeJSON(w, http.StatusOK, stockResponse{
		Success:  true,
		Data:     &out.Record,
		Source:   out.Source,
		Fallback: out.Fallback(),
	})
}
