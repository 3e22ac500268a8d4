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
	"sync"

	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/driver"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/zap"
)

// DriverRegistry maps controller types to their driver. There is one driver
// per type, shared by all controllers of the type.
type DriverRegistry struct {
	mu      sync.RWMutex
	drivers map[model.ControllerType]driver.Driver
}

// NewDriverRegistry creates an empty registry.
func NewDriverRegistry() *DriverRegistry {
	return &DriverRegistry{drivers: make(map[model.ControllerType]driver.Driver)}
}

// MustRegister registers a driver and panics on duplicate types.
func (r *DriverRegistry) MustRegister(d driver.Driver) {
	if ok := r.Register(d); !ok {
		log.Panic("duplicate driver type", zap.String("type", string(d.Type())))
	}
}

// Register registers a driver, it returns false if the type is taken.
func (r *DriverRegistry) Register(d driver.Driver) (ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.drivers[d.Type()]; exists {
		return false
	}
	r.drivers[d.Type()] = d
	return true
}

// Get returns the driver of a controller type.
func (r *DriverRegistry) Get(tp model.ControllerType) (driver.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[tp]
	if !ok {
		return nil, cerrors.ErrDriverTypeNotFound.GenWithStackByArgs(tp)
	}
	return d, nil
}

// Types returns the registered controller types.
func (r *DriverRegistry) Types() []model.ControllerType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]model.ControllerType, 0, len(r.drivers))
	for tp := range r.drivers {
		types = append(types, tp)
	}
	return types
}
