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

package framework

import (
	"context"
	"sort"
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/driver"
	"go.uber.org/zap"
)

type entry struct {
	ctr *driver.Controller
	drv driver.Driver
}

// ControllerFramework is the registry of controllers.
//
// The map is protected by a reader/writer lock held only for the lookup or
// the structural change. In place updates of one controller are serialized
// by the entry lock of that controller, which is always acquired after the
// map lock is released.
type ControllerFramework struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewControllerFramework creates an empty registry.
func NewControllerFramework() *ControllerFramework {
	return &ControllerFramework{entries: make(map[string]entry)}
}

// AddController registers a controller. The entry is complete when it
// becomes visible.
func (f *ControllerFramework) AddController(ctr *driver.Controller, drv driver.Driver) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.entries[ctr.Name()]; exists {
		return cerrors.ErrControllerAlreadyExists.GenWithStackByArgs(ctr.Name())
	}
	f.entries[ctr.Name()] = entry{ctr: ctr, drv: drv}
	log.Info("controller added",
		zap.String("controller", ctr.Name()),
		zap.String("type", string(drv.Type())))
	return nil
}

// GetDriverByControllerName returns the controller and its driver.
func (f *ControllerFramework) GetDriverByControllerName(name string) (*driver.Controller, driver.Driver, error) {
	f.mu.RLock()
	e, ok := f.entries[name]
	f.mu.RUnlock()
	if !ok {
		return nil, nil, cerrors.ErrDriverNotPresent.GenWithStackByArgs(name)
	}
	return e.ctr, e.drv, nil
}

// UpdateControllerConfiguration applies fn to the controller under its entry
// lock. Lookups of other controllers are not blocked while fn runs.
func (f *ControllerFramework) UpdateControllerConfiguration(
	ctx context.Context, name string, fn func(ctr *driver.Controller, drv driver.Driver) error,
) error {
	ctr, drv, err := f.GetDriverByControllerName(name)
	if err != nil {
		return err
	}
	if err := ctr.Lock(ctx); err != nil {
		return errors.Trace(err)
	}
	defer ctr.Unlock()
	return fn(ctr, drv)
}

// RemoveControllerConfiguration removes a controller and returns it.
// The caller makes sure nothing is dispatched on the controller any more.
func (f *ControllerFramework) RemoveControllerConfiguration(name string) (*driver.Controller, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[name]
	if !ok {
		return nil, cerrors.ErrDriverNotPresent.GenWithStackByArgs(name)
	}
	delete(f.entries, name)
	log.Info("controller removed", zap.String("controller", name))
	return e.ctr, nil
}

// Controllers returns all controllers, sorted by name.
func (f *ControllerFramework) Controllers() []*driver.Controller {
	f.mu.RLock()
	ctrs := make([]*driver.Controller, 0, len(f.entries))
	for _, e := range f.entries {
		ctrs = append(ctrs, e.ctr)
	}
	f.mu.RUnlock()
	sort.Slice(ctrs, func(i, j int) bool { return ctrs[i].Name() < ctrs[j].Name() })
	return ctrs
}

// Len returns the number of controllers.
func (f *ControllerFramework) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}
