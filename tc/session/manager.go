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

package session

import (
	"context"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/vtnc/pkg/clock"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/pkg/syncutil"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/zap"
)

// Manager serializes config sessions and the operations running on behalf
// of them.
//
// Config sessions exclude each other according to their LockScope. On top of
// that the manager tracks the operation in progress: a write operation
// excludes any other write, every read session and every audit; read sessions
// and audits share.
type Manager struct {
	clock   clock.Clock
	onEvict func(model.SessionID)

	mu      sync.Mutex
	cond    *syncutil.Cond
	seq     model.ConfigID
	holders map[model.SessionID]*model.ConfigSession
	waiters int

	writing bool
	writeOp model.ServiceType
	readers map[model.SessionID]struct{}
	audits  map[string]int
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for acquire timeouts.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clock = clk }
}

// WithEvictHook sets a function called for every session evicted by a force
// acquire. It is called without holding any lock.
func WithEvictHook(fn func(model.SessionID)) Option {
	return func(m *Manager) { m.onEvict = fn }
}

// NewManager creates a Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clock:   clock.New(),
		holders: make(map[model.SessionID]*model.ConfigSession),
		readers: make(map[model.SessionID]struct{}),
		audits:  make(map[string]int),
	}
	m.cond = syncutil.NewCond(&m.mu)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AcquireConfig acquires a config lock for the session.
//
// A zero timeout fails at once with ErrSystemBusy if the lock conflicts with
// a holder, a positive one waits at most that long, and a negative one waits
// until ctx is done. ModeForce never waits: it evicts every holder and
// invalidates their config ids.
func (m *Manager) AcquireConfig(
	ctx context.Context, id model.SessionID, lock model.LockScope, timeout time.Duration,
) (model.ConfigID, error) {
	if err := lock.Validate(); err != nil {
		return model.InvalidConfigID, errors.Trace(err)
	}
	if lock.Mode == model.ModeForce {
		return m.acquireForce(id, lock)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = m.clock.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if _, ok := m.holders[id]; ok {
			return model.InvalidConfigID, cerrors.ErrSessionAlreadyActive.GenWithStackByArgs(id)
		}
		conflict := m.conflictLocked(lock)
		if conflict == nil {
			return m.grantLocked(id, lock), nil
		}
		if timeout == 0 {
			return model.InvalidConfigID, cerrors.ErrSystemBusy.GenWithStackByArgs(
				"config is locked by session " + sessionString(conflict))
		}
		m.waiters++
		err := m.cond.WaitWithContext(ctx)
		m.waiters--
		if err != nil {
			return model.InvalidConfigID, cerrors.WrapError(cerrors.ErrSystemBusy, err,
				"timed out waiting for session "+sessionString(conflict))
		}
	}
}

func (m *Manager) acquireForce(id model.SessionID, lock model.LockScope) (model.ConfigID, error) {
	m.mu.Lock()
	evicted := make([]model.SessionID, 0, len(m.holders))
	for sid := range m.holders {
		if sid != id {
			evicted = append(evicted, sid)
		}
		delete(m.holders, sid)
	}
	cid := m.grantLocked(id, lock)
	m.cond.Broadcast()
	m.mu.Unlock()

	for _, sid := range evicted {
		log.Warn("config session evicted by force acquire",
			zap.Uint32("evictedSession", uint32(sid)),
			zap.Uint32("sessionID", uint32(id)))
		if m.onEvict != nil {
			m.onEvict(sid)
		}
	}
	return cid, nil
}

func (m *Manager) conflictLocked(lock model.LockScope) *model.ConfigSession {
	for _, h := range m.holders {
		if h.Lock.ConflictsWith(lock) {
			return h
		}
	}
	return nil
}

func (m *Manager) grantLocked(id model.SessionID, lock model.LockScope) model.ConfigID {
	m.seq++
	m.holders[id] = &model.ConfigSession{SessionID: id, Lock: lock, ConfigID: m.seq}
	return m.seq
}

// ReleaseConfig releases the config lock of the session and wakes up waiters.
func (m *Manager) ReleaseConfig(id model.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.holders[id]; !ok {
		return cerrors.ErrInvalidSession.GenWithStackByArgs(id)
	}
	delete(m.holders, id)
	m.cond.Broadcast()
	return nil
}

// Holder returns the config session of id, if it holds a lock.
func (m *Manager) Holder(id model.SessionID) (model.ConfigSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holders[id]
	if !ok {
		return model.ConfigSession{}, false
	}
	return *h, true
}

// ValidateConfigID checks the session still holds the lock it acquired with cid.
func (m *Manager) ValidateConfigID(id model.SessionID, cid model.ConfigID) (model.ConfigSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateLocked(id, cid)
}

func (m *Manager) validateLocked(id model.SessionID, cid model.ConfigID) (model.ConfigSession, error) {
	h, ok := m.holders[id]
	if !ok || h.ConfigID != cid {
		return model.ConfigSession{}, cerrors.ErrInvalidConfigID.GenWithStackByArgs(cid, id)
	}
	return *h, nil
}

// AcquireWrite marks a write operation as running. If requireConfig is set,
// the session must hold a config lock acquired with cid; the check is atomic
// with taking the write slot, so a concurrent force acquire either rejects
// the write or happens after it started.
// The returned function releases the slot, calling it more than once is safe.
func (m *Manager) AcquireWrite(
	id model.SessionID, cid model.ConfigID, op model.ServiceType, requireConfig bool,
) (model.ConfigSession, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cs model.ConfigSession
	if requireConfig {
		var err error
		if cs, err = m.validateLocked(id, cid); err != nil {
			return cs, nil, err
		}
	}
	switch {
	case m.writing:
		return cs, nil, cerrors.ErrSystemBusy.GenWithStackByArgs(m.writeOp.String() + " is in progress")
	case len(m.readers) > 0:
		return cs, nil, cerrors.ErrSystemBusy.GenWithStackByArgs("read sessions are active")
	case len(m.audits) > 0:
		return cs, nil, cerrors.ErrSystemBusy.GenWithStackByArgs("audit is in progress")
	}
	m.writing, m.writeOp = true, op
	var once sync.Once
	return cs, func() {
		once.Do(func() {
			m.mu.Lock()
			m.writing, m.writeOp = false, model.OpInvalid
			m.mu.Unlock()
		})
	}, nil
}

// AcquireRead starts a read session.
func (m *Manager) AcquireRead(id model.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writing {
		return cerrors.ErrSystemBusy.GenWithStackByArgs(m.writeOp.String() + " is in progress")
	}
	if _, ok := m.readers[id]; ok {
		return cerrors.ErrSessionAlreadyActive.GenWithStackByArgs(id)
	}
	m.readers[id] = struct{}{}
	return nil
}

// ReleaseRead ends a read session. Releasing a session which is not reading
// is a no-op, it returns false in that case.
func (m *Manager) ReleaseRead(id model.SessionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.readers[id]; !ok {
		return false
	}
	delete(m.readers, id)
	return true
}

// IsReading returns true if the session holds a read session.
func (m *Manager) IsReading(id model.SessionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.readers[id]
	return ok
}

// AcquireAudit marks an audit of the controller as running. Audits of the
// same controller are serialized by the audit wait queue, not here.
// The returned function releases the slot, calling it more than once is safe.
func (m *Manager) AcquireAudit(controller string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writing {
		return nil, cerrors.ErrSystemBusy.GenWithStackByArgs(m.writeOp.String() + " is in progress")
	}
	m.audits[controller]++
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.audits[controller]--; m.audits[controller] <= 0 {
				delete(m.audits, controller)
			}
			m.mu.Unlock()
		})
	}, nil
}

// Stats is a snapshot of the manager state.
type Stats struct {
	ConfigSessions int
	ReadSessions   int
	Waiters        int
	Writing        bool
	Audits         int
}

// Stats returns a snapshot of the manager state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	audits := 0
	for _, n := range m.audits {
		audits += n
	}
	return Stats{
		ConfigSessions: len(m.holders),
		ReadSessions:   len(m.readers),
		Waiters:        m.waiters,
		Writing:        m.writing,
		Audits:         audits,
	}
}

func sessionString(s *model.ConfigSession) string {
	return model.SessionIDString(s.SessionID) + " (" + s.Lock.String() + ")"
}
