package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecmwf-go/retriever/internal/errs"
)

func TestClient_GetDoesNotFollowRedirects(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("final"))
	}))
	defer target.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer srv.Close()

	c := New(false)
	resp, err := c.Get(context.Background(), srv.URL, nil, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.Status)
	assert.NotEqual(t, "final", string(resp.Body))
}

func TestClient_PostDefaultsContentType(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(false)
	_, err := c.Post(context.Background(), srv.URL, []byte("a=b"), nil, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
}

func TestClient_PostRespectsCallerContentType(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(false)
	_, err := c.Post(context.Background(), srv.URL, []byte(`{}`), map[string]string{"Content-Type": "application/json"}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
}

func TestClient_TimeoutSurfacesAsHttpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(false)
	_, err := c.Get(context.Background(), srv.URL, nil, 10*time.Millisecond)
	require.Error(t, err)
	var httpErr *errs.HttpError
	require.ErrorAs(t, err, &httpErr)
}

func TestClient_DeleteAndHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		case http.MethodHead:
			w.Header().Set("Content-Length", "42")
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := New(false)

	delResp, err := c.Delete(context.Background(), srv.URL, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, delResp.Status)

	headResp, err := c.Head(context.Background(), srv.URL, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "42", headResp.Headers.Get("Content-Length"))
}
