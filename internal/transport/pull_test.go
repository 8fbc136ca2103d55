package transport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagesec/sentinel-go/internal/httpclient"
)

const pollURL = "http://sentinel.test/api/v1/state"

func newTestPull(t *testing.T, interval time.Duration) *Pull {
	t.Helper()

	client := httpclient.New(nil)
	t.Cleanup(client.Close)
	httpmock.ActivateNonDefault(client.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	return NewPull(PullConfig{
		URL:              pollURL,
		Interval:         interval,
		BackoffBase:      20 * time.Millisecond,
		BackoffMax:       100 * time.Millisecond,
		RestoreSuccesses: 2,
	}, client, nil, nil)
}

func envelopeResponder() httpmock.Responder {
	return httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
		"success":   true,
		"timestamp": "2026-08-30T12:00:00Z",
		"version":   "3",
		"data": map[string]any{
			"system": map[string]any{"power_mode": "ACTIVE"},
			"tracks": []any{},
			"alerts": []any{},
		},
	})
}

func TestPullDeliversPayloads(t *testing.T) {
	p := newTestPull(t, 10*time.Millisecond)
	httpmock.RegisterResponder(http.MethodGet, pollURL, envelopeResponder())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case raw := <-p.Payloads():
		assert.Equal(t, true, raw["success"])
	case <-time.After(2 * time.Second):
		t.Fatal("no payload delivered")
	}

	assert.Equal(t, StatusActive, p.Session().Status)
}

func TestPullReportsTypedFailures(t *testing.T) {
	p := newTestPull(t, 10*time.Millisecond)
	httpmock.RegisterResponder(http.MethodGet, pollURL,
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	var failures []Failure
	deadline := time.After(2 * time.Second)
	for len(failures) < 2 {
		select {
		case f := <-p.Failures():
			failures = append(failures, f)
		case <-deadline:
			t.Fatal("expected failure signals")
		}
	}

	assert.Equal(t, ModePull, failures[0].Mode)
	assert.Equal(t, 1, failures[0].Consecutive)
	assert.Equal(t, 2, failures[1].Consecutive)
	assert.Equal(t, StatusFailing, p.Session().Status)
}

// Sustained failure slows polling; recovery restores nominal cadence after the
// configured number of consecutive successes.
func TestPullBacksOffAndRecovers(t *testing.T) {
	p := newTestPull(t, 10*time.Millisecond)

	var failing atomic.Bool
	failing.Store(true)
	var calls atomic.Int32
	httpmock.RegisterResponder(http.MethodGet, pollURL,
		func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			if failing.Load() {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
			}
			return envelopeResponder()(req)
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	// Let several failing polls accumulate backoff.
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	failing.Store(false)

	// Payloads resume after recovery.
	select {
	case <-p.Payloads():
	case <-time.After(2 * time.Second):
		t.Fatal("no payload after recovery")
	}
	require.Eventually(t, func() bool {
		return p.Session().Status == StatusActive
	}, 2*time.Second, 5*time.Millisecond)
}

// Concurrent fetches for the same logical tick share one HTTP request.
func TestFetchNowDeduplicatesInflight(t *testing.T) {
	p := newTestPull(t, time.Hour)

	release := make(chan struct{})
	var calls atomic.Int32
	httpmock.RegisterResponder(http.MethodGet, pollURL,
		func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			<-release
			return envelopeResponder()(req)
		})

	ctx := context.Background()
	const waiters = 4
	var wg sync.WaitGroup
	raws := make([]map[string]any, waiters)
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, err := p.FetchNow(ctx)
			raws[i] = raw
			errs[i] = err
		}(i)
	}

	// Give all goroutines time to join the in-flight call, then release it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, true, raws[i]["success"])
	}
}

func TestFetchNowContextCancellation(t *testing.T) {
	p := newTestPull(t, time.Hour)

	httpmock.RegisterResponder(http.MethodGet, pollURL,
		func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := p.FetchNow(ctx)
	require.Error(t, err)
}
