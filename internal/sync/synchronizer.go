// Package sync orchestrates the delivery strategies and owns the authoritative
// current state. A single event-loop goroutine arbitrates push versus pull,
// normalizes inbound payloads, coalesces bursts and fans the result out to
// subscribers through the distributor.
package sync

import (
	"context"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/vantagesec/sentinel-go/internal/conf"
	"github.com/vantagesec/sentinel-go/internal/distributor"
	"github.com/vantagesec/sentinel-go/internal/errors"
	"github.com/vantagesec/sentinel-go/internal/httpclient"
	"github.com/vantagesec/sentinel-go/internal/observability"
	"github.com/vantagesec/sentinel-go/internal/state"
	"github.com/vantagesec/sentinel-go/internal/transport"
)

// ErrTornDown is returned by operations invoked after Teardown.
var ErrTornDown = errors.NewStd("synchronizer torn down")

// ErrNotStarted is returned by Refresh when the loop is not running yet.
var ErrNotStarted = errors.NewStd("synchronizer not started")

// Synchronizer owns the current snapshot and the active delivery mode. All
// mode and state decisions happen on one loop goroutine; the exported API
// communicates with it through channels, so no external caller ever mutates
// loop-owned state.
type Synchronizer struct {
	settings conf.SyncSettings
	logger   *slog.Logger
	metrics  *observability.SyncMetrics

	normalizer *state.Normalizer
	dist       *distributor.Distributor
	push       *transport.Push
	pull       *transport.Pull

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup

	startOnce    stdsync.Once
	teardownOnce stdsync.Once
	started      atomic.Bool

	manualCh chan *state.NormalizedState

	// Guards reads of current snapshot and driving mode from outside the loop.
	mu      stdsync.RWMutex
	current *state.NormalizedState
	mode    transport.Mode
}

// New constructs a Synchronizer from validated settings. Configuration errors
// are fatal and surface here, synchronously; they are not recoverable at
// runtime. Logger and metrics may be nil.
func New(settings conf.SyncSettings, logger *slog.Logger, metrics *observability.Metrics) (*Synchronizer, error) {
	if err := conf.ValidateSyncSettings(&settings); err != nil {
		return nil, errors.New(err).
			Component("sync").
			Category(errors.CategoryConfiguration).
			Build()
	}

	var syncMetrics *observability.SyncMetrics
	if metrics != nil {
		syncMetrics = metrics.Sync
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Synchronizer{
		settings:   settings,
		logger:     logger,
		metrics:    syncMetrics,
		normalizer: state.NewNormalizer(logger, syncMetrics),
		dist:       distributor.New(logger, syncMetrics),
		push: transport.NewPush(transport.PushConfig{
			URL:         settings.PushURL,
			BackoffBase: settings.BackoffBase,
			BackoffMax:  settings.BackoffMax,
		}, logger, syncMetrics),
		pull: transport.NewPull(transport.PullConfig{
			URL:              settings.PollURL,
			Interval:         settings.PollInterval,
			BackoffBase:      settings.BackoffBase,
			BackoffMax:       settings.BackoffMax,
			RestoreSuccesses: settings.PollRestoreSuccesses,
		}, httpclient.New(nil), logger, syncMetrics),
		ctx:      ctx,
		cancel:   cancel,
		manualCh: make(chan *state.NormalizedState),
		current:  state.Default(),
		mode:     transport.ModePush,
	}
	return s, nil
}

// Start launches the synchronization loop. Push is attempted first; pull
// engages as fallback per the configured thresholds. Start is a no-op after
// the first call and returns ErrTornDown once torn down.
func (s *Synchronizer) Start() error {
	if s.ctx.Err() != nil {
		return ErrTornDown
	}
	s.startOnce.Do(func() {
		s.started.Store(true)
		s.wg.Add(1)
		go s.run()
	})
	return nil
}

// Subscribe registers a listener for state snapshots and returns its
// unsubscribe function. Listeners are invoked synchronously during fan-out and
// must not block for long.
func (s *Synchronizer) Subscribe(fn distributor.Listener) func() {
	sub := s.dist.Register(fn)
	return func() { s.dist.Unregister(sub) }
}

// CurrentState returns the latest published snapshot. Before the first
// successful synchronization this is the fully defaulted offline snapshot.
func (s *Synchronizer) CurrentState() *state.NormalizedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Mode returns the driving delivery mode.
func (s *Synchronizer) Mode() transport.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Sessions returns copies of both transport sessions for introspection.
func (s *Synchronizer) Sessions() (push, pull transport.Session) {
	return s.push.Session(), s.pull.Session()
}

// Refresh performs an on-demand pull, bypassing cadence. The fetch shares any
// in-flight scheduled poll, and its snapshot is published through the same
// coalescing path as background updates, so a concurrent scheduled delivery
// for the same tick cannot reach subscribers twice. Requires Start; returns
// ErrNotStarted otherwise.
func (s *Synchronizer) Refresh(ctx context.Context) (*state.NormalizedState, error) {
	if s.ctx.Err() != nil {
		return nil, ErrTornDown
	}
	if !s.started.Load() {
		return nil, ErrNotStarted
	}

	raw, err := s.pull.FetchNow(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := s.normalizer.Normalize(raw)

	select {
	case s.manualCh <- snapshot:
	case <-s.ctx.Done():
		return nil, ErrTornDown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return snapshot, nil
}

// Teardown stops both strategies, cancels pending timers and in-flight work,
// and waits for the loop to exit. Idempotent. Distributor registrations are
// not cleared implicitly; that remains the caller's decision.
func (s *Synchronizer) Teardown() {
	s.teardownOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.pull.Close()
		if s.logger != nil {
			s.logger.Info("synchronizer torn down")
		}
	})
}

// run is the event loop. It is the only goroutine that mutates the driving
// mode, the pending batch and the published snapshot.
func (s *Synchronizer) run() {
	defer s.wg.Done()

	// Strategy runners get sub-contexts so a mode switch can stop one side
	// without tearing down the loop.
	pushCtx, cancelPush := context.WithCancel(s.ctx)
	pullCtx, cancelPull := context.WithCancel(s.ctx)
	defer func() {
		cancelPush()
		cancelPull()
	}()

	runnerDone := make(chan struct{}, 4)
	runnersActive := 0
	startRunner := func(run func(context.Context), ctx context.Context) {
		runnersActive++
		go func() {
			run(ctx)
			runnerDone <- struct{}{}
		}()
	}

	// Push preferred: lower latency, server initiated.
	startRunner(s.push.Run, pushCtx)
	pullRunning := false
	pushRunning := true
	pushEstablished := false
	offlinePublished := false

	attemptWindow := time.NewTimer(s.settings.PushAttemptWindow)
	defer attemptWindow.Stop()

	// Probe timer re-launches the push runner while pull is driving.
	probe := time.NewTicker(s.settings.ProbeInterval)
	probe.Stop()
	defer probe.Stop()

	flush := time.NewTimer(s.settings.CoalesceWindow)
	stopTimer(flush)
	defer flush.Stop()
	flushArmed := false
	var pending *state.NormalizedState

	fallbackToPull := func() {
		if s.Mode() != transport.ModePush {
			return
		}
		attemptWindow.Stop()
		cancelPush()
		pushRunning = false
		s.setMode(transport.ModePull)
		if s.metrics != nil {
			s.metrics.ModeSwitches.Inc()
		}
		if !pullRunning {
			pullCtx, cancelPull = context.WithCancel(s.ctx)
			startRunner(s.pull.Run, pullCtx)
			pullRunning = true
		}
		probe.Reset(s.settings.ProbeInterval)
		if s.logger != nil {
			s.logger.Warn("falling back to pull delivery",
				"poll_interval", s.settings.PollInterval,
				"probe_interval", s.settings.ProbeInterval)
		}
	}

	restorePush := func() {
		probe.Stop()
		cancelPull()
		pullRunning = false
		s.setMode(transport.ModePush)
		if s.metrics != nil {
			s.metrics.ModeSwitches.Inc()
		}
		if s.logger != nil {
			s.logger.Info("push re-established, pull polling suspended")
		}
	}

	handleSnapshot := func(snapshot *state.NormalizedState) {
		offlinePublished = false
		if pending != nil && s.metrics != nil {
			s.metrics.Coalesced.Inc()
		}
		pending = snapshot
		if !flushArmed {
			flush.Reset(s.settings.CoalesceWindow)
			flushArmed = true
		}
	}

	// markOffline republishes the last known snapshot with camera and
	// processing forced offline, once per outage.
	markOffline := func() {
		if offlinePublished {
			return
		}
		offlinePublished = true
		snapshot := s.CurrentState().MarkOffline()
		if pending != nil && s.metrics != nil {
			s.metrics.Coalesced.Inc()
		}
		pending = snapshot
		if !flushArmed {
			flush.Reset(s.settings.CoalesceWindow)
			flushArmed = true
		}
	}

	flushPending := func() {
		flushArmed = false
		if pending == nil {
			return
		}
		snapshot := pending
		pending = nil
		s.mu.Lock()
		s.current = snapshot
		s.mu.Unlock()
		s.dist.Publish(snapshot)
	}

	for {
		select {
		case <-s.ctx.Done():
			// Pending work is dropped with the loop; wait for both strategy
			// runners so Teardown returns with everything stopped.
			cancelPush()
			cancelPull()
			for runnersActive > 0 {
				<-runnerDone
				runnersActive--
			}
			return

		case raw := <-s.push.Payloads():
			if s.Mode() != transport.ModePush {
				if !pushRunning {
					// Buffered by a runner that fallback already cancelled.
					// Acting on it would re-enter push mode with no runner
					// and no probe behind it.
					continue
				}
				// Push recovered while pull was driving: switch at this
				// message boundary, then deliver.
				restorePush()
			}
			pushEstablished = true
			attemptWindow.Stop()
			handleSnapshot(s.normalizer.Normalize(raw))

		case raw := <-s.pull.Payloads():
			if s.Mode() != transport.ModePull {
				// Buffered by a poller that has since been suspended.
				continue
			}
			handleSnapshot(s.normalizer.Normalize(raw))

		case snapshot := <-s.manualCh:
			handleSnapshot(snapshot)

		case f := <-s.push.Failures():
			if s.Mode() == transport.ModePush && f.Consecutive >= s.settings.FailureThreshold {
				markOffline()
				fallbackToPull()
			}

		case f := <-s.pull.Failures():
			if s.Mode() == transport.ModePull && f.Consecutive >= s.settings.FailureThreshold {
				markOffline()
			}

		case <-attemptWindow.C:
			if s.Mode() == transport.ModePush && !pushEstablished {
				markOffline()
				fallbackToPull()
			}

		case <-probe.C:
			// While pull drives, keep one background push runner attempting
			// re-establishment. The runner counts its own dial attempts.
			if !pushRunning {
				pushCtx, cancelPush = context.WithCancel(s.ctx)
				startRunner(s.push.Run, pushCtx)
				pushRunning = true
			}

		case <-flush.C:
			flushPending()

		case <-runnerDone:
			// A strategy runner exited. The loop restarts push runners via
			// the probe timer when needed.
			runnersActive--
		}
	}
}

func (s *Synchronizer) setMode(mode transport.Mode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

// stopTimer drains a timer so a later Reset arms it cleanly.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
