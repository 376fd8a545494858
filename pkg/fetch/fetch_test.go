package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, base string) *Client {
	t.Helper()
	c, err := NewClient(base, t.TempDir())
	require.NoError(t, err)
	// keep retries fast under test
	c.backoff.Duration = time.Millisecond
	return c
}

func TestClient_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/dists/stable/main/source/Sources.gz" {
			_, _ = w.Write([]byte("index-bytes"))
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	dst, err := c.Fetch(context.TODO(), "dists/stable/main/source/Sources.gz")
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "index-bytes", string(got))
}

func TestClient_FetchNotFound(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	_, err := c.Fetch(context.TODO(), "dists/stable/main/source/Sources.gz")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClient_FetchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("eventually"))
	}))
	defer ts.Close()

	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))
	c := newTestClient(t, ts.URL)
	dst, err := c.Fetch(ctx, "pool/a.deb")
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "eventually", string(got))
}

func TestClient_FetchRetriesExhausted(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	_, err := c.Fetch(context.TODO(), "pool/a.deb")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestClient_FetchUsesCache(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("once"))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	first, err := c.Fetch(context.TODO(), "pool/a.deb")
	require.NoError(t, err)
	second, err := c.Fetch(context.TODO(), "pool/a.deb")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_FetchFileScheme(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "pool"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "pool", "a.deb"), []byte("local"), 0644))

	c := newTestClient(t, "file://"+srcDir)
	dst, err := c.Fetch(context.TODO(), "pool/a.deb")
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "local", string(got))
}
