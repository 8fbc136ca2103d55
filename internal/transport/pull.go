package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/vantagesec/sentinel-go/internal/errors"
	"github.com/vantagesec/sentinel-go/internal/httpclient"
	"github.com/vantagesec/sentinel-go/internal/observability"
	"github.com/vantagesec/sentinel-go/internal/state"
)

// PullConfig configures the pull strategy.
type PullConfig struct {
	URL              string
	Interval         time.Duration // nominal polling cadence
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	RestoreSuccesses int // consecutive successes to restore nominal cadence
}

// Pull fetches state on a fixed interval. Under sustained failure the interval
// itself backs off exponentially up to a cap; after RestoreSuccesses
// consecutive successes the nominal cadence is restored. FetchNow serves
// manual refresh and is deduplicated against an in-flight scheduled poll.
type Pull struct {
	config  PullConfig
	client  *httpclient.Client
	logger  *slog.Logger
	metrics *observability.SyncMetrics

	payloads chan state.RawPayload
	failures chan Failure

	mu          sync.Mutex
	session     Session
	consecutive int
	inflight    *inflightFetch
}

// inflightFetch lets concurrent fetches for the same logical tick share one
// request and one result.
type inflightFetch struct {
	done chan struct{}
	raw  state.RawPayload
	err  error
}

// NewPull creates a pull strategy. A nil client gets a default one.
func NewPull(config PullConfig, client *httpclient.Client, logger *slog.Logger, metrics *observability.SyncMetrics) *Pull {
	if client == nil {
		client = httpclient.New(nil)
	}
	return &Pull{
		config:   config,
		client:   client,
		logger:   logger,
		metrics:  metrics,
		payloads: make(chan state.RawPayload, payloadChanSize),
		failures: make(chan Failure, failureChanSize),
		session: Session{
			Mode:   ModePull,
			Status: StatusIdle,
		},
	}
}

// Mode implements Strategy.
func (p *Pull) Mode() Mode { return ModePull }

// Close releases the underlying HTTP connection pool.
func (p *Pull) Close() {
	p.client.Close()
}

// Payloads implements Strategy.
func (p *Pull) Payloads() <-chan state.RawPayload { return p.payloads }

// Failures implements Strategy.
func (p *Pull) Failures() <-chan Failure { return p.failures }

// Session returns a copy of the current session.
func (p *Pull) Session() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Run polls until ctx is cancelled. The first request fires immediately so a
// fallback switch does not wait a full interval for data.
func (p *Pull) Run(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.session.Status = StatusIdle
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.UpdateConnectionStatus(string(ModePull), false)
		}
	}()

	p.mu.Lock()
	p.session = Session{
		ID:        uuid.NewString(),
		Mode:      ModePull,
		Status:    StatusConnecting,
		StartedAt: time.Now(),
	}
	p.mu.Unlock()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.config.BackoffBase
	bo.MaxInterval = p.config.BackoffMax
	bo.MaxElapsedTime = 0

	interval := time.Duration(0) // immediate first poll
	successStreak := 0
	degraded := false

	for {
		if !sleepCtx(ctx, interval) {
			return
		}

		raw, err := p.fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			successStreak = 0
			degraded = true
			interval = bo.NextBackOff()
			if p.logger != nil {
				p.logger.Warn("poll failed, slowing cadence",
					"url", p.config.URL,
					"next_interval", interval,
					"error", err)
			}
			continue
		}

		successStreak++
		if degraded && successStreak >= p.config.RestoreSuccesses {
			degraded = false
			bo.Reset()
			if p.logger != nil {
				p.logger.Info("poll cadence restored to nominal",
					"interval", p.config.Interval)
			}
		}
		if degraded {
			interval = bo.NextBackOff()
		} else {
			interval = p.config.Interval
		}

		select {
		case p.payloads <- raw:
		case <-ctx.Done():
			return
		}
	}
}

// FetchNow performs an on-demand fetch, bypassing cadence. A concurrent
// scheduled poll or another manual refresh for the same logical tick shares
// the in-flight request and result instead of issuing a second one.
func (p *Pull) FetchNow(ctx context.Context) (state.RawPayload, error) {
	return p.fetch(ctx)
}

func (p *Pull) fetch(ctx context.Context) (state.RawPayload, error) {
	p.mu.Lock()
	if call := p.inflight; call != nil {
		p.mu.Unlock()
		select {
		case <-call.done:
			return call.raw, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &inflightFetch{done: make(chan struct{})}
	p.inflight = call
	p.mu.Unlock()

	call.raw, call.err = p.doFetch(ctx)

	p.mu.Lock()
	p.inflight = nil
	if call.err == nil {
		p.consecutive = 0
		p.session.Status = StatusActive
		p.session.LastSuccess = time.Now()
	} else {
		p.consecutive++
		p.session.Status = StatusFailing
		p.session.RetryCount++
	}
	consecutive := p.consecutive
	p.mu.Unlock()
	close(call.done)

	if call.err != nil {
		if p.metrics != nil {
			p.metrics.UpdateConnectionStatus(string(ModePull), false)
			p.metrics.IncrementTransportErrors(string(ModePull))
		}
		select {
		case p.failures <- Failure{Mode: ModePull, Err: call.err, Consecutive: consecutive}:
		default:
		}
		return nil, call.err
	}

	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(string(ModePull), true)
		p.metrics.IncrementSnapshotsReceived(string(ModePull))
	}
	return call.raw, nil
}

func (p *Pull) doFetch(ctx context.Context) (state.RawPayload, error) {
	start := time.Now()
	resp, err := p.client.Get(ctx, p.config.URL)
	if p.metrics != nil {
		p.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, errors.New(err).
			Component("transport").
			Category(errors.CategoryNetwork).
			Context("mode", string(ModePull)).
			Context("url", p.config.URL).
			Build()
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("unexpected response status %d", resp.StatusCode).
			Component("transport").
			Category(errors.CategoryNetwork).
			Context("mode", string(ModePull)).
			Context("url", p.config.URL).
			Build()
	}

	var raw state.RawPayload
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.New(fmt.Errorf("decoding response: %w", err)).
			Component("transport").
			Category(errors.CategoryNetwork).
			Context("mode", string(ModePull)).
			Build()
	}
	return raw, nil
}
