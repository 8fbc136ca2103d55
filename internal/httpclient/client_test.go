package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetsUserAgent(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(nil)
	defer c.Close()

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, defaultUserAgent, gotUA.Load())
}

func TestDoAppliesDefaultTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := New(&Config{DefaultTimeout: 50 * time.Millisecond})
	defer c.Close()

	_, err := c.Get(context.Background(), srv.URL) //nolint:bodyclose // error path, no body
	require.Error(t, err)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(nil)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Get(ctx, srv.URL) //nolint:bodyclose // error path, no body
	require.ErrorIs(t, err, context.Canceled)
}

func TestHooksAreInvoked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(nil)
	defer c.Close()

	var before, after atomic.Int32
	c.SetBeforeRequestHook(func(*http.Request) { before.Add(1) })
	c.SetAfterResponseHook(func(*http.Request, *http.Response, error) { after.Add(1) })

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, int32(1), before.Load())
	assert.Equal(t, int32(1), after.Load())
}

func TestDoNilRequest(t *testing.T) {
	t.Parallel()

	c := New(nil)
	defer c.Close()

	_, err := c.Do(context.Background(), nil) //nolint:bodyclose // error path, no body
	require.Error(t, err)
}
