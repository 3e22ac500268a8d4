// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package coordinator implements the transaction coordinator: every request
// is run as an operation on a worker pool, against the session lock manager,
// the controller framework and the startup store.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/vtnc/pkg/clock"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/pkg/workerpool"
	"github.com/pingcap/vtnc/tc/audit"
	"github.com/pingcap/vtnc/tc/cache"
	"github.com/pingcap/vtnc/tc/framework"
	"github.com/pingcap/vtnc/tc/model"
	"github.com/pingcap/vtnc/tc/session"
	"github.com/pingcap/vtnc/tc/store"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config is the configuration of a Coordinator.
type Config struct {
	// Workers is the number of workers running requests.
	Workers int
	// AuditWorkers is the number of workers running audits. Audits run on
	// their own pool: a request waiting for an audit occupies a request
	// worker.
	AuditWorkers int
	QueueSize    int

	// ReadTimeout is the default lifetime of a read session.
	ReadTimeout time.Duration
	// AcquireTimeout is used by TC_OP_CONFIG_ACQUIRE_TIMED requests without
	// a timeout.
	AcquireTimeout time.Duration
	// RequestTimeout bounds every round-trip to a controller.
	RequestTimeout time.Duration
	// PingInterval is the period of the health monitor, 0 disables it.
	PingInterval time.Duration
	// EnableDriverAudit makes a controller coming up trigger a driver audit.
	EnableDriverAudit bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:           8,
		AuditWorkers:      4,
		QueueSize:         1024,
		ReadTimeout:       5 * time.Minute,
		AcquireTimeout:    30 * time.Second,
		RequestTimeout:    30 * time.Second,
		PingInterval:      10 * time.Second,
		EnableDriverAudit: true,
	}
}

// Coordinator serves requests of the front end.
type Coordinator struct {
	cfg   Config
	clock clock.Clock

	pool        workerpool.AsyncPool
	auditPool   workerpool.AsyncPool
	timers      workerpool.TimerService
	closeTimers func()

	sessions   *session.Manager
	candidates *cache.CandidateStore
	audits     *audit.WaitQueue
	framework  *framework.ControllerFramework
	drivers    *framework.DriverRegistry
	store      *store.Store

	// bgCtx bounds the background operations, it is cancelled when Run exits.
	bgCtx    context.Context
	bgCancel context.CancelFunc

	autosave atomic.Bool
	// dirty is set by a commit and cleared by a running save.
	dirty atomic.Bool

	readMu     sync.Mutex
	readGen    uint64
	readTimers map[model.SessionID]readTimer
}

type readTimer struct {
	handle workerpool.TimerHandle
	gen    uint64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock of the coordinator, by default the real clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithTimerService replaces the timer service driving read timeouts.
func WithTimerService(ts workerpool.TimerService) Option {
	return func(c *Coordinator) { c.timers = ts }
}

// New creates a Coordinator. Run must be called before any request is
// served.
func New(
	cfg Config, drivers *framework.DriverRegistry, st *store.Store, opts ...Option,
) (*Coordinator, error) {
	c := &Coordinator{
		cfg:        cfg,
		clock:      clock.New(),
		pool:       workerpool.NewDefaultAsyncPool("request", cfg.Workers, cfg.QueueSize),
		auditPool:  workerpool.NewDefaultAsyncPool("audit", cfg.AuditWorkers, cfg.QueueSize),
		candidates: cache.NewCandidateStore(),
		framework:  framework.NewControllerFramework(),
		drivers:    drivers,
		store:      st,
		readTimers: make(map[model.SessionID]readTimer),
	}
	c.bgCtx, c.bgCancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(c)
	}
	if c.timers == nil {
		ts := workerpool.NewTimerService(c.clock, c.pool)
		c.timers, c.closeTimers = ts, ts.Close
	}
	c.sessions = session.NewManager(
		session.WithClock(c.clock),
		session.WithEvictHook(c.candidates.Discard))
	c.audits = audit.NewWaitQueue(c.auditPool)

	enabled, err := st.Autosave()
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.autosave.Store(enabled)
	return c, nil
}

// Run runs the worker pools and the health monitor until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		<-ctx.Done()
		c.bgCancel()
		c.audits.Close()
		if c.closeTimers != nil {
			c.closeTimers()
		}
		return nil
	})
	errg.Go(func() error {
		return c.pool.Run(ctx)
	})
	errg.Go(func() error {
		return c.auditPool.Run(ctx)
	})
	if c.cfg.PingInterval > 0 {
		errg.Go(func() error {
			return c.runHealthMonitor(ctx)
		})
	}
	log.Info("coordinator started",
		zap.Int("workers", c.cfg.Workers),
		zap.Int("auditWorkers", c.cfg.AuditWorkers),
		zap.Bool("autosave", c.autosave.Load()))
	err := errg.Wait()
	if errors.Cause(err) == context.Canceled {
		err = nil
	}
	log.Info("coordinator exited", zap.Error(err))
	return errors.Trace(err)
}

// Sessions returns the session lock manager.
func (c *Coordinator) Sessions() *session.Manager {
	return c.sessions
}

// SessionStats returns a snapshot of the session manager state.
func (c *Coordinator) SessionStats() session.Stats {
	return c.sessions.Stats()
}

// Framework returns the controller framework.
func (c *Coordinator) Framework() *framework.ControllerFramework {
	return c.framework
}

// Execute runs the request on the worker pool and waits for its result.
func (c *Coordinator) Execute(ctx context.Context, req *model.Request) *model.Response {
	if !req.Operation.IsValid() {
		return errorResponse(cerrors.ErrInvalidOperation.GenWithStackByArgs(req.Operation.String()))
	}
	return c.dispatch(ctx, func() *model.Response {
		return c.handle(ctx, req)
	})
}

// dispatch runs fn on a worker. The calling goroutine never runs it.
func (c *Coordinator) dispatch(ctx context.Context, fn func() *model.Response) *model.Response {
	var resp *model.Response
	handle, err := c.pool.Go(ctx, func() {
		resp = fn()
	})
	if err != nil {
		return errorResponse(err)
	}
	if err := handle.Wait(ctx); err != nil {
		if cerrors.IsContextCanceledError(err) || cerrors.IsContextDeadlineExceededError(err) {
			return errorResponse(cerrors.WrapError(cerrors.ErrSystemBusy, err, "request abandoned"))
		}
		return errorResponse(err)
	}
	return resp
}

func errorResponse(err error) *model.Response {
	return &model.Response{Status: model.StatusFromError(err), Err: err}
}

func okResponse(payload interface{}) *model.Response {
	return &model.Response{Status: model.OperSuccess, Payload: payload}
}

// handle runs one operation on the calling worker.
func (c *Coordinator) handle(ctx context.Context, req *model.Request) (resp *model.Response) {
	start := c.clock.Now()
	defer func() {
		if resp == nil {
			// panicking, the pool reports it
			return
		}
		status := resp.Status
		operationDuration.WithLabelValues(req.Operation.String(), status.String()).
			Observe(c.clock.Since(start).Seconds())
		stats := c.sessions.Stats()
		configSessionsGauge.Set(float64(stats.ConfigSessions))
		readSessionsGauge.Set(float64(stats.ReadSessions))

		fields := []zap.Field{
			zap.Uint32("sessionID", uint32(req.SessionID)),
			zap.Stringer("operation", req.Operation),
			zap.Stringer("status", status),
			zap.Duration("duration", c.clock.Since(start)),
		}
		if req.ControllerID != "" {
			fields = append(fields, zap.String("controller", req.ControllerID))
		}
		if resp.Err != nil {
			fields = append(fields, zap.Error(resp.Err))
		}
		log.Info("operation finished", fields...)
	}()

	switch req.Operation {
	case model.OpConfigAcquire, model.OpConfigAcquireTimed,
		model.OpConfigAcquirePartial, model.OpConfigAcquireForce:
		return c.acquireConfig(ctx, req)
	case model.OpConfigRelease:
		return c.releaseConfig(req)
	case model.OpCandidateCommit, model.OpCandidateCommitTimed:
		return c.commit(ctx, req)
	case model.OpCandidateAbort, model.OpCandidateAbortTimed:
		return c.abort(ctx, req)
	case model.OpRunningSave:
		return c.runningSave(req)
	case model.OpClearStartup:
		return c.clearStartup(req)
	case model.OpAutoSaveGet:
		return okResponse(model.AutosaveStatus{Enabled: c.autosave.Load()})
	case model.OpAutoSaveEnable, model.OpAutoSaveDisable:
		return c.setAutosave(req)
	case model.OpUserAudit, model.OpDriverAudit:
		return c.audit(ctx, req)
	case model.OpReadAcquire:
		return c.readAcquire(req)
	case model.OpReadRelease:
		return c.readRelease(ctx, req)
	case model.OpReadRunningStatus:
		return c.readRunningStatus(req)
	case model.OpReadStartupStatus:
		return c.readStartupStatus(req)
	}
	return errorResponse(cerrors.ErrInvalidOperation.GenWithStackByArgs(req.Operation.String()))
}

// operationContext applies the timeout of a timed operation.
func (c *Coordinator) operationContext(
	ctx context.Context, req *model.Request,
) (context.Context, context.CancelFunc) {
	switch req.Operation {
	case model.OpCandidateCommitTimed, model.OpCandidateAbortTimed:
		if req.Timeout > 0 {
			return c.clock.WithTimeout(ctx, req.Timeout)
		}
	}
	return context.WithCancel(ctx)
}
