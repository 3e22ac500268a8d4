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

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/pkg/version"
	"github.com/pingcap/vtnc/tc/driver"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/zap"
)

// AddController connects to a new controller and registers it. A controller
// which does not answer the first ping is registered down.
func (c *Coordinator) AddController(ctx context.Context, info model.ControllerInfo) error {
	status, err := c.addController(ctx, info)
	if err != nil {
		return errors.Trace(err)
	}
	if status == model.ConnectionUp && c.cfg.EnableDriverAudit {
		c.triggerDriverAudit(info.Name)
	}
	return nil
}

// Bootstrap adds the configured controllers and installs the saved startup
// configuration before any driver audit runs.
func (c *Coordinator) Bootstrap(ctx context.Context, infos []model.ControllerInfo) error {
	up := make([]string, 0, len(infos))
	for _, info := range infos {
		status, err := c.addController(ctx, info)
		if err != nil {
			return errors.Trace(err)
		}
		if status == model.ConnectionUp {
			up = append(up, info.Name)
		}
	}
	if err := c.LoadStartup(); err != nil {
		return errors.Trace(err)
	}
	if c.cfg.EnableDriverAudit {
		for _, name := range up {
			c.triggerDriverAudit(name)
		}
	}
	return nil
}

func (c *Coordinator) addController(
	ctx context.Context, info model.ControllerInfo,
) (model.ConnectionStatus, error) {
	if err := info.Validate(); err != nil {
		return model.ConnectionDown, errors.Trace(err)
	}
	if err := version.CheckControllerVersion(info.Name, info.Version); err != nil {
		return model.ConnectionDown, errors.Trace(err)
	}
	drv, err := c.drivers.Get(info.Type)
	if err != nil {
		return model.ConnectionDown, errors.Trace(err)
	}
	conn, err := drv.Connect(info)
	if err != nil {
		return model.ConnectionDown, errors.Trace(err)
	}
	ctr := driver.NewController(info, conn)
	if err := c.framework.AddController(ctr, drv); err != nil {
		_ = conn.Close()
		return model.ConnectionDown, errors.Trace(err)
	}
	log.Info("controller added", zap.Any("controller", info.Redacted()))
	return c.ping(ctx, ctr, drv), nil
}

// UpdateController reconnects a controller with new connection parameters.
// The controller type can not change.
func (c *Coordinator) UpdateController(ctx context.Context, info model.ControllerInfo) error {
	if err := info.Validate(); err != nil {
		return errors.Trace(err)
	}
	if err := version.CheckControllerVersion(info.Name, info.Version); err != nil {
		return errors.Trace(err)
	}
	err := c.framework.UpdateControllerConfiguration(ctx, info.Name,
		func(ctr *driver.Controller, drv driver.Driver) error {
			if ctr.Type() != info.Type {
				return cerrors.ErrInvalidArgument.GenWithStackByArgs(
					"controller " + info.Name + " can not change type to " + string(info.Type))
			}
			conn, err := drv.Connect(info)
			if err != nil {
				return errors.Trace(err)
			}
			if old := ctr.SwapConn(conn); old != nil {
				if err := old.Close(); err != nil {
					log.Warn("failed to close controller connection",
						zap.String("controller", info.Name), zap.Error(err))
				}
			}
			ctr.SetInfo(info)
			return nil
		})
	if err != nil {
		return errors.Trace(err)
	}
	log.Info("controller updated", zap.Any("controller", info.Redacted()))
	return nil
}

// RemoveController unregisters a controller. Its pending audits are
// drained before its connection is closed.
func (c *Coordinator) RemoveController(ctx context.Context, name string) error {
	ctr, err := c.framework.RemoveControllerConfiguration(name)
	if err != nil {
		return errors.Trace(err)
	}
	if err := c.audits.Drain(ctx, name); err != nil {
		return errors.Trace(err)
	}
	if err := ctr.Lock(ctx); err != nil {
		return errors.Trace(err)
	}
	defer ctr.Unlock()
	if conn := ctr.SwapConn(nil); conn != nil {
		if err := conn.Close(); err != nil {
			log.Warn("failed to close controller connection",
				zap.String("controller", name), zap.Error(err))
		}
	}
	controllerUpGauge.DeleteLabelValues(name)
	log.Info("controller removed", zap.String("controller", name))
	return nil
}

// Controller returns the state of one controller.
func (c *Coordinator) Controller(name string) (model.ControllerStatus, error) {
	ctr, _, err := c.framework.GetDriverByControllerName(name)
	if err != nil {
		return model.ControllerStatus{}, errors.Trace(err)
	}
	return controllerStatus(ctr), nil
}

// Controllers returns the state of every controller, sorted by name.
func (c *Coordinator) Controllers() []model.ControllerStatus {
	ctrs := c.framework.Controllers()
	res := make([]model.ControllerStatus, 0, len(ctrs))
	for _, ctr := range ctrs {
		res = append(res, controllerStatus(ctr))
	}
	return res
}

func controllerStatus(ctr *driver.Controller) model.ControllerStatus {
	return model.ControllerStatus{
		Info:        ctr.Info().Redacted(),
		Status:      ctr.Status(),
		AuditResult: ctr.AuditResult(),
		ObjectCount: ctr.KeyTree().Len(),
		LastCommit:  ctr.LastCommit(),
	}
}
