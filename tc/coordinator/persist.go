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
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/vtnc/tc/cache"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/zap"
)

func (c *Coordinator) runningSave(req *model.Request) *model.Response {
	_, release, err := c.sessions.AcquireWrite(req.SessionID, req.ConfigID, req.Operation, false)
	if err != nil {
		return errorResponse(err)
	}
	defer release()
	if err := c.saveRunning(); err != nil {
		return errorResponse(err)
	}
	return okResponse(nil)
}

// saveRunning writes the key tree of every controller to the startup store.
// The caller holds the write slot.
func (c *Coordinator) saveRunning() error {
	ctrs := c.framework.Controllers()
	trees := make(map[string]*cache.KeyTree, len(ctrs))
	for _, ctr := range ctrs {
		trees[ctr.Name()] = ctr.KeyTree()
	}
	if err := c.store.Save(trees, c.clock.Now()); err != nil {
		return errors.Trace(err)
	}
	c.dirty.Store(false)
	return nil
}

func (c *Coordinator) clearStartup(req *model.Request) *model.Response {
	_, release, err := c.sessions.AcquireWrite(req.SessionID, req.ConfigID, req.Operation, false)
	if err != nil {
		return errorResponse(err)
	}
	defer release()
	if err := c.store.Clear(); err != nil {
		return errorResponse(err)
	}
	return okResponse(nil)
}

func (c *Coordinator) setAutosave(req *model.Request) *model.Response {
	_, release, err := c.sessions.AcquireWrite(req.SessionID, req.ConfigID, req.Operation, false)
	if err != nil {
		return errorResponse(err)
	}
	defer release()
	enabled := req.Operation == model.OpAutoSaveEnable
	if err := c.store.SetAutosave(enabled); err != nil {
		return errorResponse(err)
	}
	c.autosave.Store(enabled)
	log.Info("autosave changed", zap.Bool("enabled", enabled))
	return okResponse(model.AutosaveStatus{Enabled: enabled})
}

// LoadStartup installs the saved startup configuration as the key tree of
// every registered controller that has one. It is meant to run once after
// the controllers of the config file were added.
func (c *Coordinator) LoadStartup() error {
	trees, err := c.store.Load()
	if err != nil {
		return errors.Trace(err)
	}
	for name, tree := range trees {
		ctr, _, err := c.framework.GetDriverByControllerName(name)
		if err != nil {
			log.Warn("startup configuration of unknown controller ignored",
				zap.String("controller", name))
			continue
		}
		ctr.SetKeyTree(tree)
	}
	log.Info("startup configuration loaded", zap.Int("controllers", len(trees)))
	return nil
}
