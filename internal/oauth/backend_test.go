package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/errors"
	"github.com/pulseboard/pulseboard/internal/tokenexchange"
)

func TestHTTPBackend_ClientKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/config", r.URL.Path)
		_, _ = w.Write([]byte(`{"clientKey":"ck-remote"}`))
	}))
	defer srv.Close()

	key, err := NewHTTPBackend(srv.URL+"/", nil).ClientKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ck-remote", key)
}

func TestHTTPBackend_ClientKey_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"clientKey":""}`))
	}))
	defer srv.Close()

	_, err := NewHTTPBackend(srv.URL, nil).ClientKey(context.Background())
	assert.True(t, errors.IsMissingConfig(err))
}

func TestHTTPBackend_Exchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/tiktok-auth", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ExchangeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "auth-code", req.Code)
		assert.Equal(t, testRedirect, req.RedirectURI)

		_, _ = w.Write([]byte(`{"access_token":"act.1","open_id":"oid-1","expires_in":86400,"scope":"video.list"}`))
	}))
	defer srv.Close()

	tok, err := NewHTTPBackend(srv.URL, srv.Client()).Exchange(context.Background(), "auth-code", testRedirect)
	require.NoError(t, err)
	assert.Equal(t, "act.1", tok.AccessToken)
	assert.Equal(t, "oid-1", tok.OpenID)
	assert.Equal(t, int64(86400), tok.ExpiresIn)
}

func TestHTTPBackend_Exchange_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Authorization code is expired."}`))
	}))
	defer srv.Close()

	_, err := NewHTTPBackend(srv.URL, nil).Exchange(context.Background(), "auth-code", testRedirect)
	require.Error(t, err)
	var backendErr *errors.ErrBackend
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "Authorization code is expired.", backendErr.Message)
}

func TestHTTPBackend_Exchange_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPBackend(srv.URL, nil).Exchange(context.Background(), "auth-code", testRedirect)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestLocalBackend(t *testing.T) {
	b := NewLocalBackend(tokenexchange.NewService(tokenexchange.Config{}, nil, nil, nil))

	_, err := b.ClientKey(context.Background())
	assert.True(t, errors.IsMissingConfig(err))

	_, err = b.Exchange(context.Background(), "code", testRedirect)
	assert.True(t, errors.IsMissingConfig(err))

	b = NewLocalBackend(tokenexchange.NewService(tokenexchange.Config{ClientKey: "ck"}, nil, nil, nil))
	key, err := b.ClientKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ck", key)
}
