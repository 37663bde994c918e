package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakePurger) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	f.cutoff = before
	return f.n, f.err
}

func TestRunPass(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakePurger{n: 4}

	n, err := runPass(context.Background(), repo, 30*24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, time.Date(2025, 1, 30, 12, 0, 0, 0, time.UTC), repo.cutoff)
}

func TestRunPass_Error(t *testing.T) {
	repo := &fakePurger{n: 9, err: errors.New("db down")}

	n, err := runPass(context.Background(), repo, time.Hour, time.Now())
	assert.Error(t, err)
	assert.Zero(t, n)
}
