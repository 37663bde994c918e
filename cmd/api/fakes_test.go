package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alim08/landing/pkg/database"
	"github.com/alim08/landing/pkg/models"
	"github.com/alim08/landing/pkg/quote"
)

// memStore is an in-memory implementation of every repository the server
// uses. A non-nil settingsErr makes the settings reads fail with it.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	tokens      []models.Token
	events      []models.Event
	conversions []models.Conversion
	links       map[int64]models.ConversionLink
	admins      map[string]models.AdminUser
	settings    models.TrackingSettings
	settingsErr error
}

func newMemStore() *memStore {
	return &memStore{
		links:  map[int64]models.ConversionLink{},
		admins: map[string]models.AdminUser{},
	}
}

func (m *memStore) store() *database.Store {
	return &database.Store{
		Tokens:      memTokens{m},
		Events:      memEvents{m},
		Conversions: memConversions{m},
		Links:       memLinks{m},
		Admins:      memAdmins{m},
		Settings:    memSettings{m},
		Analytics:   memAnalytics{m},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

type memTokens struct{ m *memStore }

func (r memTokens) CreateToken(_ context.Context, t *models.Token) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t.ID = r.m.id()
	t.CreatedAt = time.Now()
	r.m.tokens = append(r.m.tokens, *t)
	return nil
}

func (r memTokens) GetByToken(_ context.Context, token string) (*models.Token, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range r.m.tokens {
		if t.Token == token {
			t := t
			return &t, nil
		}
	}
	return nil, database.ErrNotFound
}

func (r memTokens) GetBySession(_ context.Context, sessionID string) (*models.Token, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range r.m.tokens {
		if t.SessionID == sessionID {
			t := t
			return &t, nil
		}
	}
	return nil, database.ErrNotFound
}

func (r memTokens) ListRecentTokens(_ context.Context, limit int) ([]models.Token, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]models.Token, 0, len(r.m.tokens))
	for i := len(r.m.tokens) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.m.tokens[i])
	}
	return out, nil
}

func (r memTokens) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var kept []models.Token
	var n int64
	for _, t := range r.m.tokens {
		if t.ExpiresAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, t)
	}
	r.m.tokens = kept
	return n, nil
}

type memEvents struct{ m *memStore }

func (r memEvents) CreateEvent(_ context.Context, e *models.Event) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e.ID = r.m.id()
	e.CreatedAt = time.Now()
	r.m.events = append(r.m.events, *e)
	return nil
}

func (r memEvents) ListEventsBySession(_ context.Context, sessionID string) ([]models.Event, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.Event
	for _, e := range r.m.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memConversions struct{ m *memStore }

func (r memConversions) CreateConversion(_ context.Context, c *models.Conversion) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c.ID = r.m.id()
	c.CreatedAt = time.Now()
	r.m.conversions = append(r.m.conversions, *c)
	return nil
}

func (r memConversions) ListConversionsBySession(_ context.Context, sessionID string) ([]models.Conversion, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.Conversion
	for _, c := range r.m.conversions {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	return out, nil
}

type memLinks struct{ m *memStore }

func (r memLinks) sorted(activeOnly bool) []models.ConversionLink {
	var out []models.ConversionLink
	for _, l := range r.m.links {
		if activeOnly && !l.IsActive {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memLinks) ListLinks(_ context.Context) ([]models.ConversionLink, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.sorted(false), nil
}

func (r memLinks) ListActiveLinks(_ context.Context) ([]models.ConversionLink, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.sorted(true), nil
}

func (r memLinks) GetLink(_ context.Context, id int64) (*models.ConversionLink, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	l, ok := r.m.links[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &l, nil
}

func (r memLinks) CreateLink(_ context.Context, l *models.ConversionLink) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	l.ID = r.m.id()
	l.CreatedAt = time.Now()
	r.m.links[l.ID] = *l
	return nil
}

func (r memLinks) UpdateLink(_ context.Context, l *models.ConversionLink) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.links[l.ID]; !ok {
		return database.ErrNotFound
	}
	r.m.links[l.ID] = *l
	return nil
}

func (r memLinks) DeleteLink(_ context.Context, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.links[id]; !ok {
		return database.ErrNotFound
	}
	delete(r.m.links, id)
	return nil
}

type memAdmins struct{ m *memStore }

func (r memAdmins) GetAdmin(_ context.Context, username string) (*models.AdminUser, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.admins[username]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &u, nil
}

func (r memAdmins) EnsureAdmin(_ context.Context, username, passwordHash string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.admins[username]; ok {
		return false, nil
	}
	r.m.admins[username] = models.AdminUser{ID: r.m.id(), Username: username, PasswordHash: passwordHash}
	return true, nil
}

type memSettings struct{ m *memStore }

func (r memSettings) GetTrackingSettings(_ context.Context) (*models.TrackingSettings, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.settingsErr != nil {
		return nil, r.m.settingsErr
	}
	s := r.m.settings
	return &s, nil
}

func (r memSettings) EnsureTrackingSettings(_ context.Context) error { return nil }

func (r memSettings) SaveTrackingSettings(_ context.Context, s *models.TrackingSettings) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s.UpdatedAt = time.Now()
	r.m.settings = *s
	return nil
}

type memAnalytics struct{ m *memStore }

func (r memAnalytics) RecentSessions(_ context.Context, limit int) ([]models.SessionSummary, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.SessionSummary
	for i := len(r.m.tokens) - 1; i >= 0 && len(out) < limit; i-- {
		t := r.m.tokens[i]
		s := models.SessionSummary{SessionID: t.SessionID, GCLID: t.GCLID, UTMSource: t.UTMSource, SessionStart: t.CreatedAt}
		for _, e := range r.m.events {
			if e.SessionID == t.SessionID {
				s.EventCount++
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (r memAnalytics) Overview(_ context.Context) (*database.Overview, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return &database.Overview{
		Sessions:    int64(len(r.m.tokens)),
		Events:      int64(len(r.m.events)),
		Conversions: int64(len(r.m.conversions)),
		ActiveLinks: int64(len(memLinks{r.m}.sorted(true))),
	}, nil
}

// stubQuotes always serves the placeholder record.
type stubQuotes struct{ now time.Time }

func (q stubQuotes) Lookup(_ context.Context, code string) quote.Outcome {
	return quote.Outcome{Record: quote.Fallback(code, q.now), Source: quote.SourceFallback}
}

// countingLimiter allows the first limit calls per key.
type countingLimiter struct {
	mu   sync.Mutex
	seen map[string]int
	err  error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = map[string]int{}
	}
	l.seen[key]++
	return l.seen[key] <= limit, nil
}
