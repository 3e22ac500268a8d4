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

package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/vtnc/pkg/db"
	"github.com/pingcap/vtnc/pkg/workerpool"
	"github.com/pingcap/vtnc/tc/cache"
	"github.com/pingcap/vtnc/tc/driver"
	"github.com/pingcap/vtnc/tc/driver/memory"
	"github.com/pingcap/vtnc/tc/framework"
	"github.com/pingcap/vtnc/tc/model"
	"github.com/pingcap/vtnc/tc/store"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"golang.org/x/sync/errgroup"
)

// countingDriver is a memory driver recording aborts.
type countingDriver struct {
	*memory.Driver

	mu     sync.Mutex
	aborts map[string]int
	gates  map[model.KeyType]*fetchGate
}

func (d *countingDriver) Abort(ctx context.Context, ctr *driver.Controller) error {
	d.mu.Lock()
	d.aborts[ctr.Name()]++
	d.mu.Unlock()
	return d.Driver.Abort(ctx, ctr)
}

// GetCommand returns a command whose FetchChildren waits for the fetch gate
// when one is set for the key type.
func (d *countingDriver) GetCommand(kt model.KeyType) (driver.Command, bool) {
	cmd, ok := d.Driver.GetCommand(kt)
	d.mu.Lock()
	gate := d.gates[kt]
	d.mu.Unlock()
	if !ok || gate == nil {
		return cmd, ok
	}
	return gatedCommand{Command: cmd, gate: gate}, true
}

func (d *countingDriver) setGate(kt model.KeyType, g *fetchGate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gates == nil {
		d.gates = make(map[model.KeyType]*fetchGate)
	}
	d.gates[kt] = g
}

// fetchGate holds FetchChildren after the objects were read.
type fetchGate struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newFetchGate() *fetchGate {
	return &fetchGate{entered: make(chan struct{}), release: make(chan struct{})}
}

type gatedCommand struct {
	driver.Command
	gate *fetchGate
}

func (c gatedCommand) FetchChildren(
	ctx context.Context, ctr *driver.Controller, parentKey string,
) ([]model.ConfigNode, error) {
	nodes, err := c.Command.FetchChildren(ctx, ctr, parentKey)
	c.gate.once.Do(func() { close(c.gate.entered) })
	<-c.gate.release
	return nodes, err
}

func (d *countingDriver) abortCount(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aborts[name]
}

// mockTimers is a TimerService fired by hand.
type mockTimers struct {
	mu        sync.Mutex
	next      workerpool.TimerHandle
	posted    map[workerpool.TimerHandle]func()
	fns       map[workerpool.TimerHandle]func()
	cancelled []workerpool.TimerHandle
}

func newMockTimers() *mockTimers {
	return &mockTimers{
		posted: make(map[workerpool.TimerHandle]func()),
		fns:    make(map[workerpool.TimerHandle]func()),
	}
}

func (m *mockTimers) Post(_ time.Duration, f func()) (workerpool.TimerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.posted[m.next] = f
	m.fns[m.next] = f
	return m.next, nil
}

func (m *mockTimers) Cancel(h workerpool.TimerHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, h)
	_, ok := m.posted[h]
	delete(m.posted, h)
	return ok
}

// fire runs the function posted with h even if it was cancelled, as a
// timer racing with Cancel does.
func (m *mockTimers) fire(h workerpool.TimerHandle) {
	m.mu.Lock()
	f := m.fns[h]
	delete(m.posted, h)
	m.mu.Unlock()
	f()
}

func (m *mockTimers) cancelCalls() []workerpool.TimerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]workerpool.TimerHandle(nil), m.cancelled...)
}

type testEnv struct {
	co  *Coordinator
	drv *countingDriver
	st  *store.Store
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...Option) *testEnv {
	drv := &countingDriver{Driver: memory.NewDriver(), aborts: make(map[string]int)}
	drivers := framework.NewDriverRegistry()
	drivers.MustRegister(drv)

	ldb, err := db.OpenLevelDBWithStorage(storage.NewMemStorage(), db.Options{})
	require.NoError(t, err)
	st := store.New(ldb)

	cfg := DefaultConfig()
	cfg.Workers = 4
	cfg.AuditWorkers = 2
	cfg.PingInterval = 0
	cfg.EnableDriverAudit = false
	if mutate != nil {
		mutate(&cfg)
	}
	co, err := New(cfg, drivers, st, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errg := &errgroup.Group{}
	errg.Go(func() error {
		return co.Run(ctx)
	})
	t.Cleanup(func() {
		cancel()
		require.NoError(t, errg.Wait())
		require.NoError(t, st.Close())
	})
	return &testEnv{co: co, drv: drv, st: st}
}

func (e *testEnv) addController(t *testing.T, name string) *memory.Backend {
	require.NoError(t, e.co.AddController(context.Background(), model.ControllerInfo{
		Name: name, Type: model.ControllerTypeMemory, Address: name,
	}))
	return e.drv.Backend(name)
}

func (e *testEnv) exec(req *model.Request) *model.Response {
	return e.co.Execute(context.Background(), req)
}

func (e *testEnv) acquire(t *testing.T, id model.SessionID) model.ConfigID {
	resp := e.exec(&model.Request{Operation: model.OpConfigAcquire, SessionID: id})
	require.Equal(t, model.OperSuccess, resp.Status, "%+v", resp.Err)
	return resp.ConfigID
}

func create(controller string, kt model.KeyType, names ...string) model.ConfigChange {
	return model.ConfigChange{
		Controller: controller, Op: model.OpCreate, Node: model.NewConfigNode(kt, nil, names...),
	}
}

func TestCommitVoteFailureAbortsEveryController(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	b1 := env.addController(t, "c1")
	env.addController(t, "c2")
	cid := env.acquire(t, 1)

	resp := env.exec(&model.Request{
		Operation: model.OpCandidateCommit, SessionID: 1, ConfigID: cid,
		Changes: []model.ConfigChange{
			create("c1", model.KeyTypeVTN, "v"),
			{Controller: "c2", Op: model.OpUpdate, Node: model.NewConfigNode(model.KeyTypeVTN, nil, "missing")},
		},
	})
	require.Equal(t, model.OperAbort, resp.Status)
	require.Equal(t, 1, env.drv.abortCount("c1"))
	require.Equal(t, 1, env.drv.abortCount("c2"))
	require.Empty(t, b1.Nodes())

	stats := env.co.Sessions().Stats()
	require.False(t, stats.Writing)
	ctr, _, err := env.co.Framework().GetDriverByControllerName("c1")
	require.NoError(t, err)
	require.Nil(t, ctr.Txn())
	require.NoError(t, ctr.Lock(context.Background()))
	ctr.Unlock()

	resp = env.exec(&model.Request{Operation: model.OpConfigRelease, SessionID: 1})
	require.Equal(t, model.OperSuccess, resp.Status)
	require.Zero(t, env.co.Sessions().Stats().ConfigSessions)
}

func TestCommitFailureRevertsCommittedControllers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	b1 := env.addController(t, "c1")
	b2 := env.addController(t, "c2")
	b2.FailOn(model.OpCreate, model.NewConfigNode(model.KeyTypeVTN, nil, "w"),
		errors.New("connection reset"))
	cid := env.acquire(t, 1)

	resp := env.exec(&model.Request{
		Operation: model.OpCandidateCommit, SessionID: 1, ConfigID: cid,
		Changes: []model.ConfigChange{
			create("c1", model.KeyTypeVTN, "v"),
			create("c1", model.KeyTypeVBridge, "v", "b"),
			create("c2", model.KeyTypeVTN, "w"),
		},
	})
	require.Equal(t, model.OperFailure, resp.Status)
	require.Empty(t, b1.Nodes())
	require.Empty(t, b2.Nodes())
	ctr, _, err := env.co.Framework().GetDriverByControllerName("c1")
	require.NoError(t, err)
	require.Zero(t, ctr.KeyTree().Len())
}

func TestCommitWithCandidateAndAutosave(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	b1 := env.addController(t, "c1")
	resp := env.exec(&model.Request{Operation: model.OpAutoSaveEnable, SessionID: 9})
	require.Equal(t, model.OperSuccess, resp.Status)

	cid := env.acquire(t, 1)
	resp = env.co.StageCandidate(context.Background(), 1, cid, []model.ConfigChange{
		create("c1", model.KeyTypeVTN, "v"),
	})
	require.Equal(t, model.OperSuccess, resp.Status)
	resp = env.exec(&model.Request{
		Operation: model.OpCandidateCommitTimed, SessionID: 1, ConfigID: cid, Timeout: time.Minute,
		Changes: []model.ConfigChange{create("c1", model.KeyTypeVBridge, "v", "b")},
	})
	require.Equal(t, model.OperSuccess, resp.Status, "%+v", resp.Err)
	require.Len(t, b1.Nodes(), 2)
	require.Empty(t, env.co.candidates.Peek(1))

	resp = env.exec(&model.Request{Operation: model.OpReadStartupStatus, SessionID: 2})
	require.Equal(t, model.OperSuccess, resp.Status)
	startup := resp.Payload.(model.StartupStatus)
	require.True(t, startup.Present)
	require.Equal(t, 2, startup.ObjectCount)

	resp = env.exec(&model.Request{Operation: model.OpReadRunningStatus, SessionID: 2})
	running := resp.Payload.(model.RunningStatus)
	require.True(t, running.Saved)
	require.Equal(t, 2, running.ObjectCount)
	require.False(t, running.LastCommit.IsZero())

	resp = env.exec(&model.Request{Operation: model.OpAutoSaveDisable, SessionID: 9})
	require.Equal(t, model.OperSuccess, resp.Status)
	resp = env.exec(&model.Request{Operation: model.OpAutoSaveGet, SessionID: 9})
	require.False(t, resp.Payload.(model.AutosaveStatus).Enabled)

	resp = env.exec(&model.Request{
		Operation: model.OpCandidateCommit, SessionID: 1, ConfigID: cid,
		Changes: []model.ConfigChange{create("c1", model.KeyTypeVTerminal, "v", "t")},
	})
	require.Equal(t, model.OperSuccess, resp.Status)
	resp = env.exec(&model.Request{Operation: model.OpReadRunningStatus, SessionID: 2})
	require.False(t, resp.Payload.(model.RunningStatus).Saved)

	resp = env.exec(&model.Request{Operation: model.OpRunningSave, SessionID: 9})
	require.Equal(t, model.OperSuccess, resp.Status)
	resp = env.exec(&model.Request{Operation: model.OpReadRunningStatus, SessionID: 2})
	require.True(t, resp.Payload.(model.RunningStatus).Saved)

	resp = env.exec(&model.Request{Operation: model.OpClearStartup, SessionID: 9})
	require.Equal(t, model.OperSuccess, resp.Status)
	resp = env.exec(&model.Request{Operation: model.OpReadStartupStatus, SessionID: 2})
	require.False(t, resp.Payload.(model.StartupStatus).Present)
}

func TestForceInvalidatesConfigID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.addController(t, "c1")
	cidA := env.acquire(t, 1)
	resp := env.co.StageCandidate(context.Background(), 1, cidA, []model.ConfigChange{
		create("c1", model.KeyTypeVTN, "v"),
	})
	require.Equal(t, model.OperSuccess, resp.Status)

	resp = env.exec(&model.Request{Operation: model.OpConfigAcquire, SessionID: 2})
	require.Equal(t, model.SystemBusy, resp.Status)
	resp = env.exec(&model.Request{Operation: model.OpConfigAcquireForce, SessionID: 2})
	require.Equal(t, model.OperSuccess, resp.Status)
	require.Greater(t, resp.ConfigID, cidA)

	resp = env.exec(&model.Request{Operation: model.OpCandidateCommit, SessionID: 1, ConfigID: cidA})
	require.Equal(t, model.OperInvalidConfigID, resp.Status)
	require.Empty(t, env.co.candidates.Peek(1))
	resp = env.exec(&model.Request{Operation: model.OpConfigRelease, SessionID: 1})
	require.Equal(t, model.OperInvalidSession, resp.Status)
}

func TestPartialSessions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.addController(t, "c1")
	partial := func(id model.SessionID, scope model.LockScope) *model.Response {
		return env.exec(&model.Request{Operation: model.OpConfigAcquirePartial, SessionID: id, Lock: scope})
	}
	vtnA := model.LockScope{Mode: model.ModePartial, Scope: model.ScopeVTN, VTN: "a"}
	resp := partial(1, vtnA)
	require.Equal(t, model.OperSuccess, resp.Status)
	cid := resp.ConfigID
	resp = partial(2, model.LockScope{Mode: model.ModePartial, Scope: model.ScopeReal})
	require.Equal(t, model.OperSuccess, resp.Status)
	resp = partial(3, model.LockScope{Mode: model.ModePartial, Scope: model.ScopeVirtual})
	require.Equal(t, model.SystemBusy, resp.Status)
	resp = partial(4, model.LockScope{Mode: model.ModeGlobal})
	require.Equal(t, model.OperInvalidOption, resp.Status)

	resp = env.co.StageCandidate(context.Background(), 1, cid, []model.ConfigChange{
		create("c1", model.KeyTypeVTN, "b"),
	})
	require.Equal(t, model.OperInvalidOption, resp.Status)
	resp = env.exec(&model.Request{
		Operation: model.OpCandidateCommit, SessionID: 1, ConfigID: cid,
		Changes: []model.ConfigChange{create("c1", model.KeyTypeVTN, "a")},
	})
	require.Equal(t, model.OperSuccess, resp.Status)
}

func TestCommitUnknownController(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.addController(t, "c1")
	cid := env.acquire(t, 1)
	resp := env.exec(&model.Request{
		Operation: model.OpCandidateCommit, SessionID: 1, ConfigID: cid,
		Changes: []model.ConfigChange{
			create("c1", model.KeyTypeVTN, "v"),
			create("nope", model.KeyTypeVTN, "v"),
		},
	})
	require.Equal(t, model.OperDriverNotPresent, resp.Status)
	require.Zero(t, env.drv.abortCount("c1"))
	require.Empty(t, env.drv.Backend("c1").Nodes())

	resp = env.exec(&model.Request{Operation: model.OpInvalid, SessionID: 1})
	require.Equal(t, model.OperInvalidOperation, resp.Status)
}

func TestCandidateAbort(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.addController(t, "c1")
	env.addController(t, "c2")
	cid := env.acquire(t, 1)
	resp := env.co.StageCandidate(context.Background(), 1, cid, []model.ConfigChange{
		create("c1", model.KeyTypeVTN, "v"),
	})
	require.Equal(t, model.OperSuccess, resp.Status)

	resp = env.exec(&model.Request{Operation: model.OpCandidateAbort, SessionID: 1, ConfigID: cid})
	require.Equal(t, model.OperSuccess, resp.Status)
	require.Empty(t, env.co.candidates.Peek(1))
	require.Equal(t, 1, env.drv.abortCount("c1"))
	require.Equal(t, 1, env.drv.abortCount("c2"))

	resp = env.exec(&model.Request{Operation: model.OpCandidateAbortTimed, SessionID: 1, ConfigID: cid + 1})
	require.Equal(t, model.OperInvalidConfigID, resp.Status)
}

func TestReadReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	timers := newMockTimers()
	env := newTestEnv(t, nil, WithTimerService(timers))

	resp := env.exec(&model.Request{Operation: model.OpReadAcquire, SessionID: 7})
	require.Equal(t, model.OperSuccess, resp.Status)
	require.Equal(t, 1, env.co.Sessions().Stats().ReadSessions)
	require.True(t, env.co.hasReadTimer(7))

	// A write is excluded while reading.
	resp = env.exec(&model.Request{Operation: model.OpRunningSave, SessionID: 8})
	require.Equal(t, model.SystemBusy, resp.Status)

	resp = env.exec(&model.Request{Operation: model.OpReadRelease, SessionID: 7})
	require.Equal(t, model.OperSuccess, resp.Status)
	require.Equal(t, []workerpool.TimerHandle{1}, timers.cancelCalls())
	require.Zero(t, env.co.Sessions().Stats().ReadSessions)

	resp = env.exec(&model.Request{Operation: model.OpReadRelease, SessionID: 7})
	require.Equal(t, model.OperSuccess, resp.Status)
	require.Zero(t, env.co.Sessions().Stats().ReadSessions)

	// The cancelled timer fires anyway after the session read again: the
	// newer read session is kept.
	resp = env.exec(&model.Request{Operation: model.OpReadAcquire, SessionID: 7})
	require.Equal(t, model.OperSuccess, resp.Status)
	timers.fire(1)
	require.True(t, env.co.Sessions().IsReading(7))
	require.Equal(t, 1, env.co.Sessions().Stats().ReadSessions)

	// The timer of the current session releases it, the client release that
	// follows is a no-op.
	timers.fire(2)
	require.False(t, env.co.Sessions().IsReading(7))
	require.False(t, env.co.hasReadTimer(7))
	resp = env.exec(&model.Request{Operation: model.OpReadRelease, SessionID: 7})
	require.Equal(t, model.OperSuccess, resp.Status)
	require.Zero(t, env.co.Sessions().Stats().ReadSessions)
	require.Equal(t, []workerpool.TimerHandle{1}, timers.cancelCalls())
}

func TestReadTimeoutWithTimerService(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(cfg *Config) { cfg.ReadTimeout = time.Millisecond })
	resp := env.exec(&model.Request{Operation: model.OpReadAcquire, SessionID: 3})
	require.Equal(t, model.OperSuccess, resp.Status)
	require.Eventually(t, func() bool {
		return !env.co.Sessions().IsReading(3)
	}, 5*time.Second, 5*time.Millisecond)
	require.False(t, env.co.hasReadTimer(3))
}

func TestAudit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.addController(t, "c1")
	cid := env.acquire(t, 1)
	resp := env.exec(&model.Request{
		Operation: model.OpCandidateCommit, SessionID: 1, ConfigID: cid,
		Changes: []model.ConfigChange{
			create("c1", model.KeyTypeVTN, "v"),
			create("c1", model.KeyTypeVBridge, "v", "b"),
			create("c1", model.KeyTypeVBrIf, "v", "b", "if1"),
			create("c1", model.KeyTypeBoundary, "bd"),
		},
	})
	require.Equal(t, model.OperSuccess, resp.Status, "%+v", resp.Err)

	ctr, _, err := env.co.Framework().GetDriverByControllerName("c1")
	require.NoError(t, err)
	before := ctr.KeyTree().Nodes()
	require.Len(t, before, 4)
	ctr.SetKeyTree(cache.NewKeyTree())

	resp = env.exec(&model.Request{Operation: model.OpUserAudit, SessionID: 1, ControllerID: "c1"})
	require.Equal(t, model.OperSuccess, resp.Status, "%+v", resp.Err)
	report := resp.Payload.(model.AuditReport)
	require.Equal(t, 4, report.ObjectCount)
	require.Equal(t, 1, report.Attempts)
	require.Equal(t, model.AuditSuccess, ctr.AuditResult())
	require.Equal(t, before, ctr.KeyTree().Nodes())

	resp = env.exec(&model.Request{Operation: model.OpDriverAudit, ControllerID: "nope"})
	require.Equal(t, model.OperDriverNotPresent, resp.Status)
	resp = env.exec(&model.Request{Operation: model.OpDriverAudit})
	require.Equal(t, model.OperInvalidInput, resp.Status)

	env.drv.Backend("c1").SetDown(true)
	resp = env.exec(&model.Request{Operation: model.OpDriverAudit, ControllerID: "c1"})
	require.Equal(t, model.SystemFailure, resp.Status)
	require.Equal(t, model.AuditFailure, ctr.AuditResult())
}

func TestAbandonedAuditKeepsWritesOut(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	backend := env.addController(t, "c1")
	cid := env.acquire(t, 1)
	gate := newFetchGate()
	env.drv.setGate(model.KeyTypeVTN, gate)

	ctx, cancel := context.WithCancel(context.Background())
	respCh := make(chan *model.Response, 1)
	go func() {
		respCh <- env.co.Execute(ctx, &model.Request{
			Operation: model.OpUserAudit, SessionID: 2, ControllerID: "c1",
		})
	}()
	<-gate.entered
	cancel()
	resp := <-respCh
	require.NotEqual(t, model.OperSuccess, resp.Status)

	commit := &model.Request{
		Operation: model.OpCandidateCommit, SessionID: 1, ConfigID: cid,
		Changes:   []model.ConfigChange{create("c1", model.KeyTypeVTN, "w")},
	}
	// the audit task still runs.
	resp = env.exec(commit)
	require.Equal(t, model.SystemBusy, resp.Status, "%+v", resp.Err)
	require.Empty(t, backend.Nodes())

	close(gate.release)
	require.Eventually(t, func() bool {
		return env.co.audits.Running("c1") == nil && env.co.SessionStats().Audits == 0
	}, 5*time.Second, 10*time.Millisecond)

	resp = env.exec(commit)
	require.Equal(t, model.OperSuccess, resp.Status, "%+v", resp.Err)
	ctr, _, err := env.co.Framework().GetDriverByControllerName("c1")
	require.NoError(t, err)
	require.Equal(t, 1, ctr.KeyTree().Len())
	require.Len(t, backend.Nodes(), 1)
}
