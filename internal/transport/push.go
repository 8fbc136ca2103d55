package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vantagesec/sentinel-go/internal/errors"
	"github.com/vantagesec/sentinel-go/internal/observability"
	"github.com/vantagesec/sentinel-go/internal/state"
)

const defaultHandshakeTimeout = 10 * time.Second

// PushConfig configures the push strategy.
type PushConfig struct {
	URL         string
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Push maintains one long-lived websocket connection to the remote system and
// forwards every received payload. Connection loss triggers reconnection with
// exponential backoff and jitter, indefinitely, until the context is cancelled.
type Push struct {
	config  PushConfig
	dialer  *websocket.Dialer
	logger  *slog.Logger
	metrics *observability.SyncMetrics

	payloads chan state.RawPayload
	failures chan Failure

	mu          sync.Mutex
	session     Session
	consecutive int
}

// NewPush creates a push strategy. Logger and metrics may be nil.
func NewPush(config PushConfig, logger *slog.Logger, metrics *observability.SyncMetrics) *Push {
	return &Push{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		logger:   logger,
		metrics:  metrics,
		payloads: make(chan state.RawPayload, payloadChanSize),
		failures: make(chan Failure, failureChanSize),
		session: Session{
			Mode:   ModePush,
			Status: StatusIdle,
		},
	}
}

// Mode implements Strategy.
func (p *Push) Mode() Mode { return ModePush }

// Payloads implements Strategy.
func (p *Push) Payloads() <-chan state.RawPayload { return p.payloads }

// Failures implements Strategy.
func (p *Push) Failures() <-chan Failure { return p.failures }

// Session returns a copy of the current session.
func (p *Push) Session() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Run connects and reads until ctx is cancelled. Each reconnect replaces the
// session; the retry counter carries across attempts until a read succeeds.
func (p *Push) Run(ctx context.Context) {
	defer p.transition(func(s *Session) { s.Status = StatusIdle })

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.config.BackoffBase
	bo.MaxInterval = p.config.BackoffMax
	bo.MaxElapsedTime = 0 // retry until torn down or superseded

	retries := 0
	for ctx.Err() == nil {
		p.replaceSession(retries)

		conn, err := p.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			retries++
			p.recordFailure(err)
			if !sleepCtx(ctx, bo.NextBackOff()) {
				return
			}
			continue
		}

		retries = 0
		bo.Reset()
		p.activate()

		err = p.readLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		retries++
		p.recordFailure(err)
		if !sleepCtx(ctx, bo.NextBackOff()) {
			return
		}
	}
}

func (p *Push) dial(ctx context.Context) (*websocket.Conn, error) {
	if p.metrics != nil {
		p.metrics.ReconnectAttempts.Inc()
	}
	conn, resp, err := p.dialer.DialContext(ctx, p.config.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.New(err).
			Component("transport").
			Category(errors.CategoryNetwork).
			Context("mode", string(ModePush)).
			Context("url", p.config.URL).
			Build()
	}
	return conn, nil
}

// readLoop reads payloads until the connection drops or ctx is cancelled.
func (p *Push) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock the read when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var raw state.RawPayload
		if err := conn.ReadJSON(&raw); err != nil {
			return errors.New(err).
				Component("transport").
				Category(errors.CategoryNetwork).
				Context("mode", string(ModePush)).
				Build()
		}

		p.markSuccess()
		if p.metrics != nil {
			p.metrics.IncrementSnapshotsReceived(string(ModePush))
		}

		select {
		case p.payloads <- raw:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// replaceSession installs a fresh session for the next connection attempt.
func (p *Push) replaceSession(retries int) {
	p.mu.Lock()
	p.session = Session{
		ID:         uuid.NewString(),
		Mode:       ModePush,
		Status:     StatusConnecting,
		RetryCount: retries,
		StartedAt:  time.Now(),
	}
	p.mu.Unlock()
}

func (p *Push) activate() {
	p.mu.Lock()
	p.consecutive = 0
	p.session.Status = StatusActive
	p.session.LastSuccess = time.Now()
	sessionID := p.session.ID
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(string(ModePush), true)
	}
	if p.logger != nil {
		p.logger.Info("push connection established",
			"url", p.config.URL,
			"session_id", sessionID)
	}
}

func (p *Push) markSuccess() {
	p.mu.Lock()
	p.session.LastSuccess = time.Now()
	p.mu.Unlock()
}

func (p *Push) recordFailure(err error) {
	p.mu.Lock()
	p.consecutive++
	p.session.Status = StatusFailing
	consecutive := p.consecutive
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(string(ModePush), false)
		p.metrics.IncrementTransportErrors(string(ModePush))
	}
	if p.logger != nil {
		p.logger.Warn("push connection failed",
			"url", p.config.URL,
			"consecutive", consecutive,
			"error", err)
	}

	// Non-blocking: the synchronizer only needs the latest signals.
	select {
	case p.failures <- Failure{Mode: ModePush, Err: err, Consecutive: consecutive}:
	default:
	}
}

func (p *Push) transition(apply func(*Session)) {
	p.mu.Lock()
	apply(&p.session)
	p.mu.Unlock()
}

// sleepCtx waits for d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
