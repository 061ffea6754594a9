package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotJSON = `{
	"submissions": [{"id": "1", "team_id": "7", "problem_id": "A", "time": "2024-05-01T10:00:00Z"}],
	"judgements": [{"id": "1", "submission_id": "1", "judgement_type_id": "AC"}],
	"teams": [{"id": "7", "name": "Seven"}],
	"problems": [{"id": "A", "label": "A", "name": "Apples", "rgb": "#ff0000", "color": "red"}],
	"info": {"name": "Finals"}
}`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "balloon" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(snapshotJSON))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, User: "balloon", Password: "secret"})
	snap, err := c.Fetch(context.Background())
	require.NoError(t, err)

	assert.True(t, snap.Complete())
	assert.Equal(t, "7", snap.Submissions[0].TeamID)
	assert.Equal(t, "AC", snap.Judgements[0].JudgementTypeID)
	assert.Equal(t, "red", snap.Problems[0].Color)
	assert.Equal(t, "Finals", snap.Info["name"])
}

func TestFetch_BearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	snap, err := NewClient(Config{URL: srv.URL, Token: "tkn"}).Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Complete())
}

func TestFetch_MissingCollections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"submissions": [], "teams": [], "problems": []}`))
	}))
	defer srv.Close()

	snap, err := NewClient(Config{URL: srv.URL}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Judgements)
	assert.False(t, snap.Complete())
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
		{"bad gateway", http.StatusBadGateway, ErrUnexpectedStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(Config{URL: srv.URL}).Fetch(context.Background())
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewClient(Config{URL: srv.URL, Timeout: 50 * time.Millisecond}).Fetch(context.Background())
	assert.Error(t, err)
}

func TestFetch_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"submissions": [`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{URL: srv.URL}).Fetch(context.Background())
	assert.Error(t, err)
}
