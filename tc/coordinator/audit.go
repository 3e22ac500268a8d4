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
	"github.com/pingcap/vtnc/tc/audit"
	"github.com/pingcap/vtnc/tc/cache"
	"github.com/pingcap/vtnc/tc/driver"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/zap"
)

func (c *Coordinator) audit(ctx context.Context, req *model.Request) *model.Response {
	name := req.ControllerID
	if name == "" {
		return errorResponse(cerrors.ErrInvalidArgument.GenWithStackByArgs("audit without controller"))
	}
	ctr, drv, err := c.framework.GetDriverByControllerName(name)
	if err != nil {
		return errorResponse(err)
	}
	release, err := c.sessions.AcquireAudit(name)
	if err != nil {
		return errorResponse(err)
	}
	defer release()

	report, err := c.audits.Audit(ctx, name, req.Operation, c.auditFunc(ctr, drv))
	if err != nil {
		auditRuns.WithLabelValues(model.AuditFailure.String()).Inc()
		return errorResponse(err)
	}
	auditRuns.WithLabelValues(report.Result.String()).Inc()
	if report.Attempts > 1 {
		auditRuns.WithLabelValues(model.AuditCancelled.String()).Add(float64(report.Attempts - 1))
	}
	return okResponse(report)
}

// auditFunc reads every object of the controller, key type by key type from
// the root down, and replaces its key tree with the result.
// The cancellation checkpoint is after every round-trip to the controller.
//
// The task holds its own audit slot while it runs: the caller that queued it
// may stop waiting long before the task returns.
func (c *Coordinator) auditFunc(ctr *driver.Controller, drv driver.Driver) audit.RunFunc {
	return func(ctx context.Context, task *audit.Task) (model.AuditReport, error) {
		report := model.AuditReport{Controller: ctr.Name(), Result: model.AuditFailure}
		release, err := c.sessions.AcquireAudit(ctr.Name())
		if err != nil {
			return report, errors.Trace(err)
		}
		defer release()
		builder := cache.NewBuilder()
		parents := map[model.KeyType][]string{model.KeyTypeRoot: {""}}

		for _, kt := range model.TopDown() {
			cmd, ok := drv.GetCommand(kt)
			if !ok {
				continue
			}
			for _, parentKey := range parents[kt.Parent()] {
				rctx, cancel := c.clock.WithTimeout(ctx, c.cfg.RequestTimeout)
				nodes, err := cmd.FetchChildren(rctx, ctr, parentKey)
				cancel()
				if cerr := task.Checkpoint(); cerr != nil {
					return report, cerr
				}
				if err != nil {
					c.setAuditResult(ctx, ctr, model.AuditFailure)
					return report, errors.Trace(err)
				}
				builder.Add(nodes...)
				for _, n := range nodes {
					parents[kt] = append(parents[kt], n.Key)
				}
			}
		}

		tree, err := builder.Build()
		if err != nil {
			c.setAuditResult(ctx, ctr, model.AuditFailure)
			return report, errors.Trace(err)
		}
		if err := ctr.Lock(ctx); err != nil {
			return report, errors.Trace(err)
		}
		ctr.SetKeyTree(tree)
		ctr.SetAuditResult(model.AuditSuccess)
		ctr.Unlock()

		report.Result = model.AuditSuccess
		report.ObjectCount = tree.Len()
		log.Info("controller audited",
			zap.String("controller", ctr.Name()),
			zap.Stringer("kind", task.Kind),
			zap.Int("objects", tree.Len()))
		return report, nil
	}
}

func (c *Coordinator) setAuditResult(ctx context.Context, ctr *driver.Controller, r model.AuditResult) {
	if err := ctr.Lock(ctx); err != nil {
		return
	}
	ctr.SetAuditResult(r)
	ctr.Unlock()
}
