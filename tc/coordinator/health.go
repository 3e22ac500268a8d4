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
	"github.com/pingcap/vtnc/tc/driver"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/zap"
)

func (c *Coordinator) runHealthMonitor(ctx context.Context) error {
	ticker := c.clock.Ticker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-ticker.C:
			c.checkHealth(ctx)
		}
	}
}

// checkHealth pings every controller. A controller coming up is audited.
func (c *Coordinator) checkHealth(ctx context.Context) {
	for _, ctr := range c.framework.Controllers() {
		_, drv, err := c.framework.GetDriverByControllerName(ctr.Name())
		if err != nil {
			continue
		}
		prev := ctr.Status()
		status := c.ping(ctx, ctr, drv)
		if prev == model.ConnectionDown && status == model.ConnectionUp && c.cfg.EnableDriverAudit {
			c.triggerDriverAudit(ctr.Name())
		}
	}
}

// ping updates the connection status of the controller and returns it.
func (c *Coordinator) ping(ctx context.Context, ctr *driver.Controller, drv driver.Driver) model.ConnectionStatus {
	pctx, cancel := c.clock.WithTimeout(ctx, c.cfg.RequestTimeout)
	err := drv.Ping(pctx, ctr)
	cancel()

	status := model.ConnectionUp
	if err != nil {
		status = model.ConnectionDown
	}
	prev := ctr.SetStatus(status)
	up := 0.0
	if status == model.ConnectionUp {
		up = 1
	}
	controllerUpGauge.WithLabelValues(ctr.Name()).Set(up)
	if _, _, err := c.framework.GetDriverByControllerName(ctr.Name()); err != nil {
		// removed while being pinged
		controllerUpGauge.DeleteLabelValues(ctr.Name())
		return status
	}

	switch {
	case prev == model.ConnectionUp && status == model.ConnectionDown:
		log.Warn("controller is down", zap.String("controller", ctr.Name()), zap.Error(err))
	case prev == model.ConnectionDown && status == model.ConnectionUp:
		log.Info("controller is up", zap.String("controller", ctr.Name()))
	}
	return status
}

// triggerDriverAudit runs a TC_OP_DRIVER_AUDIT of the controller in the
// background.
func (c *Coordinator) triggerDriverAudit(name string) {
	req := &model.Request{Operation: model.OpDriverAudit, ControllerID: name}
	_, err := c.pool.Go(c.bgCtx, func() {
		c.handle(c.bgCtx, req)
	})
	if err != nil {
		log.Warn("failed to trigger driver audit",
			zap.String("controller", name), zap.Error(err))
	}
}
