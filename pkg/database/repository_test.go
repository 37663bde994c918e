package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alim08/landing/pkg/models"
)

func initMocks(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return Wrap(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestTokenRepository_CreateToken(t *testing.T) {
	db, mock := initMocks(t)
	now := time.Now()
	tok := &models.Token{Token: "signed", SessionID: "sess-1", ExpiresAt: now.Add(30 * time.Minute), GCLID: "g1"}

	mock.ExpectQuery(`INSERT INTO tokens`).
		WithArgs("signed", "sess-1", tok.ExpiresAt, "g1", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, now))

	if err := NewTokenRepository(db).CreateToken(context.Background(), tok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.ID != 7 {
		t.Errorf("expected ID 7, got %d", tok.ID)
	}
	expectationsMet(t, mock)
}

func TestTokenRepository_GetByToken_NotFound(t *testing.T) {
	db, mock := initMocks(t)

	mock.ExpectQuery(`SELECT id, token, session_id, expires_at, created_at, gclid, utm_source FROM tokens WHERE token = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "token", "session_id", "expires_at", "created_at", "gclid", "utm_source"}))

	_, err := NewTokenRepository(db).GetByToken(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestTokenRepository_ListRecentTokens_ClampsLimit(t *testing.T) {
	db, mock := initMocks(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "token", "session_id", "expires_at", "created_at", "gclid", "utm_source"}).
		AddRow(2, "b", "s2", now.Add(time.Minute), now, "", "news").
		AddRow(1, "a", "s1", now.Add(-time.Minute), now.Add(-time.Hour), "g", "")
	mock.ExpectQuery(`FROM tokens\s+ORDER BY created_at DESC`).WithArgs(100).WillReturnRows(rows)

	out, err := NewTokenRepository(db).ListRecentTokens(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out[0].SessionID != "s2" {
		t.Errorf("unexpected tokens: %+v", out)
	}
	expectationsMet(t, mock)
}

func TestTokenRepository_PurgeExpired(t *testing.T) {
	db, mock := initMocks(t)
	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM events WHERE session_id IN`).WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(`DELETE FROM conversions WHERE session_id IN`).WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM tokens WHERE expires_at < \$1`).WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := NewTokenRepository(db).PurgeExpired(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 purged tokens, got %d", n)
	}
	expectationsMet(t, mock)
}

func TestTokenRepository_PurgeExpired_RollsBack(t *testing.T) {
	db, mock := initMocks(t)
	cutoff := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM events`).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	if _, err := NewTokenRepository(db).PurgeExpired(context.Background(), cutoff); err == nil {
		t.Fatal("expected error")
	}
	expectationsMet(t, mock)
}

func TestEventRepository_CreateAndList(t *testing.T) {
	db, mock := initMocks(t)
	now := time.Now()
	repo := NewEventRepository(db)

	mock.ExpectQuery(`INSERT INTO events`).
		WithArgs("sess-1", "scroll", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, now))

	ev := &models.Event{SessionID: "sess-1", EventType: "scroll"}
	if err := repo.CreateEvent(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectQuery(`FROM events\s+WHERE session_id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "event_type", "meta", "created_at"}).
			AddRow(1, "sess-1", "scroll", []byte(`{"depth":50}`), now).
			AddRow(2, "sess-1", "click", nil, now))

	events, err := repo.ListEventsBySession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	var meta map[string]int
	if err := json.Unmarshal(events[0].Meta, &meta); err != nil || meta["depth"] != 50 {
		t.Errorf("unexpected meta %s", events[0].Meta)
	}
	if string(events[1].Meta) != "{}" {
		t.Errorf("expected empty object for missing meta, got %s", events[1].Meta)
	}
	expectationsMet(t, mock)
}

func TestConversionRepository_Create(t *testing.T) {
	db, mock := initMocks(t)

	mock.ExpectQuery(`INSERT INTO conversions`).
		WithArgs("sess-1", "hello", "https://example.com/a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(3, time.Now()))

	c := &models.Conversion{SessionID: "sess-1", InputValue: "hello", TargetURL: "https://example.com/a"}
	if err := NewConversionRepository(db).CreateConversion(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID != 3 {
		t.Errorf("expected ID 3, got %d", c.ID)
	}
	expectationsMet(t, mock)
}

func TestLinkRepository_ListActiveLinks(t *testing.T) {
	db, mock := initMocks(t)
	now := time.Now()

	mock.ExpectQuery(`FROM conversion_links WHERE is_active = TRUE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "target_url", "weight", "is_active", "created_at"}).
			AddRow(1, "A", "https://a.example", 3.0, true, now).
			AddRow(2, "B", "https://b.example", 1.0, true, now))

	links, err := NewLinkRepository(db).ListActiveLinks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 2 || links[0].Weight != 3.0 {
		t.Errorf("unexpected links: %+v", links)
	}
	expectationsMet(t, mock)
}

func TestLinkRepository_UpdateAndDeleteMissing(t *testing.T) {
	db, mock := initMocks(t)
	repo := NewLinkRepository(db)

	mock.ExpectExec(`UPDATE conversion_links`).
		WithArgs("A", "https://a.example", 2.0, false, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateLink(context.Background(), &models.ConversionLink{ID: 42, Name: "A", TargetURL: "https://a.example", Weight: 2})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from update, got %v", err)
	}

	mock.ExpectExec(`DELETE FROM conversion_links WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.DeleteLink(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from delete, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestLinkRepository_GetLink(t *testing.T) {
	db, mock := initMocks(t)

	mock.ExpectQuery(`FROM conversion_links WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "target_url", "weight", "is_active", "created_at"}).
			AddRow(5, "Main", "https://main.example", 1.0, true, time.Now()))

	link, err := NewLinkRepository(db).GetLink(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.Name != "Main" {
		t.Errorf("expected Main, got %s", link.Name)
	}
	expectationsMet(t, mock)
}

func TestAdminRepository_EnsureAdmin(t *testing.T) {
	db, mock := initMocks(t)
	repo := NewAdminRepository(db)

	mock.ExpectExec(`INSERT INTO admin_users .* ON CONFLICT \(username\) DO NOTHING`).
		WithArgs("admin", "hash").
		WillReturnResult(sqlmock.NewResult(1, 1))
	created, err := repo.EnsureAdmin(context.Background(), "admin", "hash")
	if err != nil || !created {
		t.Errorf("expected created admin, got %v %v", created, err)
	}

	mock.ExpectExec(`INSERT INTO admin_users`).
		WithArgs("admin", "hash").
		WillReturnResult(sqlmock.NewResult(0, 0))
	created, err = repo.EnsureAdmin(context.Background(), "admin", "hash")
	if err != nil || created {
		t.Errorf("expected existing admin, got %v %v", created, err)
	}
	expectationsMet(t, mock)
}

func TestSettingsRepository_GetMissingRow(t *testing.T) {
	db, mock := initMocks(t)

	mock.ExpectQuery(`FROM google_tracking_settings`).
		WillReturnRows(sqlmock.NewRows([]string{"ga4_measurement_id", "google_ads_conversion_id", "google_ads_conversion_label", "updated_at"}))

	s, err := NewSettingsRepository(db).GetTrackingSettings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *s != (models.TrackingSettings{}) {
		t.Errorf("expected empty settings, got %+v", s)
	}
	expectationsMet(t, mock)
}

func TestSettingsRepository_Save(t *testing.T) {
	db, mock := initMocks(t)
	now := time.Now()

	mock.ExpectQuery(`ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("G-123", "AW-1", "label").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	s := &models.TrackingSettings{GA4MeasurementID: "G-123", GoogleAdsConversionID: "AW-1", GoogleAdsConversionLabel: "label"}
	if err := NewSettingsRepository(db).SaveTrackingSettings(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.UpdatedAt.Equal(now) {
		t.Errorf("expected UpdatedAt to be set")
	}
	expectationsMet(t, mock)
}

func TestAnalyticsRepository_RecentSessions(t *testing.T) {
	db, mock := initMocks(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"session_id", "gclid", "utm_source", "created_at", "events", "scrolls", "conversions", "last"}).
		AddRow("s1", "g", "", now, 4, 2, 1, now).
		AddRow("s2", "", "news", now, 0, 0, 0, nil)
	mock.ExpectQuery(`FROM tokens t\s+ORDER BY t.created_at DESC`).WithArgs(50).WillReturnRows(rows)

	out, err := NewAnalyticsRepository(db).RecentSessions(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(out))
	}
	if out[0].ScrollEvents != 2 || out[0].LastActivity == nil {
		t.Errorf("unexpected first summary: %+v", out[0])
	}
	if out[1].LastActivity != nil {
		t.Errorf("expected nil last activity without events")
	}
	expectationsMet(t, mock)
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		limit, want int
	}{
		{0, 50},
		{-3, 50},
		{10, 10},
		{5000, 500},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.limit, 50, 500); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.limit, got, tt.want)
		}
	}
}
