package session

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/models"
	"stockwatch/internal/remote"
)

type fakeFetcher struct {
	resp *models.SessionResponse
	err  error
}

func (f *fakeFetcher) FetchCurrentSession(ctx context.Context) (*models.SessionResponse, error) {
	return f.resp, f.err
}

func TestCheckSession_Authenticated(t *testing.T) {
	fetcher := &fakeFetcher{resp: &models.SessionResponse{
		Authenticated: true,
		ID:            "google-123",
		Email:         "ann@example.com",
		Name:          "Ann",
	}}
	gate := NewGate(fetcher, "http://localhost:8080/api/auth/logout")

	var notified []*models.SessionUser
	gate.Subscribe(func(u *models.SessionUser) { notified = append(notified, u) })

	user := gate.CheckSession(context.Background())
	require.NotNil(t, user)
	assert.Equal(t, "Ann", user.Name)
	assert.True(t, user.Authenticated)
	assert.True(t, gate.Authenticated())
	assert.NoError(t, gate.LastError())

	require.Len(t, notified, 1)
	require.NotNil(t, notified[0])
	assert.Equal(t, "google-123", notified[0].ID)
}

func TestCheckSession_FailClosed(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *fakeFetcher
		wantErr bool
	}{
		{
			name:    "not authenticated",
			fetcher: &fakeFetcher{resp: &models.SessionResponse{Authenticated: false}},
		},
		{
			name:    "authenticated flag without identity",
			fetcher: &fakeFetcher{resp: &models.SessionResponse{Authenticated: true}},
		},
		{
			name:    "server error",
			fetcher: &fakeFetcher{err: remote.NewRemoteError("fetch current session", http.StatusInternalServerError, "")},
			wantErr: true,
		},
		{
			name:    "network failure",
			fetcher: &fakeFetcher{err: &remote.TransportError{Op: "fetch current session", Cause: errors.New("connection refused")}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(tt.fetcher, "")

			notifications := 0
			var last *models.SessionUser
			gate.Subscribe(func(u *models.SessionUser) {
				notifications++
				last = u
			})

			user := gate.CheckSession(context.Background())
			assert.Nil(t, user)
			assert.Nil(t, gate.User())
			assert.False(t, gate.Authenticated())
			assert.Equal(t, 1, notifications, "dependents are notified of the signed-out state")
			assert.Nil(t, last)
			assert.Equal(t, tt.wantErr, gate.LastError() != nil)
		})
	}
}

func TestCheckSession_FailureAfterSignInSignsOut(t *testing.T) {
	fetcher := &fakeFetcher{resp: &models.SessionResponse{Authenticated: true, ID: "1", Name: "Ann"}}
	gate := NewGate(fetcher, "")

	require.NotNil(t, gate.CheckSession(context.Background()))

	fetcher.resp = nil
	fetcher.err = errors.New("boom")
	assert.Nil(t, gate.CheckSession(context.Background()))
	assert.False(t, gate.Authenticated())
}

func TestSignOut(t *testing.T) {
	fetcher := &fakeFetcher{resp: &models.SessionResponse{Authenticated: true, ID: "1", Name: "Ann"}}
	gate := NewGate(fetcher, "http://localhost:8080/api/auth/logout")
	gate.CheckSession(context.Background())

	var got []*models.SessionUser
	unsubscribe := gate.Subscribe(func(u *models.SessionUser) { got = append(got, u) })

	url := gate.SignOut()
	assert.Equal(t, "http://localhost:8080/api/auth/logout", url)
	assert.Nil(t, gate.User())
	require.Len(t, got, 1)
	assert.Nil(t, got[0])

	unsubscribe()
	gate.CheckSession(context.Background())
	assert.Len(t, got, 1)
}

func TestUserReturnsCopy(t *testing.T) {
	fetcher := &fakeFetcher{resp: &models.SessionResponse{Authenticated: true, ID: "1", Name: "Ann"}}
	gate := NewGate(fetcher, "")
	gate.CheckSession(context.Background())

	u := gate.User()
	u.Name = "Mallory"
	assert.Equal(t, "Ann", gate.User().Name)
}
