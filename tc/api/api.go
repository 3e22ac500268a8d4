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

// Package api is the HTTP front end of the coordinator. Handlers only decode
// requests and hand them to the coordinator, which runs them on its workers.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/pkg/logutil"
	"github.com/pingcap/vtnc/tc/model"
	"github.com/pingcap/vtnc/tc/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Service is what the front end needs from the coordinator.
type Service interface {
	Execute(ctx context.Context, req *model.Request) *model.Response
	StageCandidate(ctx context.Context, id model.SessionID, cid model.ConfigID,
		changes []model.ConfigChange) *model.Response

	AddController(ctx context.Context, info model.ControllerInfo) error
	UpdateController(ctx context.Context, info model.ControllerInfo) error
	RemoveController(ctx context.Context, name string) error
	Controller(name string) (model.ControllerStatus, error)
	Controllers() []model.ControllerStatus

	SessionStats() session.Stats
}

// OpenAPI serves the v1 API.
type OpenAPI struct {
	svc Service
}

// NewOpenAPI creates an OpenAPI.
func NewOpenAPI(svc Service) OpenAPI {
	return OpenAPI{svc: svc}
}

// RegisterRoutes registers every route of the front end.
func RegisterRoutes(router *gin.Engine, svc Service, registry prometheus.Gatherer) {
	api := NewOpenAPI(svc)

	v1 := router.Group("/api/v1")
	v1.Use(LogMiddleware())
	v1.Use(ErrorHandleMiddleware())

	v1.POST("/operations", api.postOperation)
	v1.PUT("/sessions/:id/candidate", api.putCandidate)

	controllers := v1.Group("/controllers")
	controllers.GET("", api.listControllers)
	controllers.POST("", api.createController)
	controllers.GET("/:name", api.getController)
	controllers.PUT("/:name", api.updateController)
	controllers.DELETE("/:name", api.deleteController)

	v1.GET("/health", api.health)

	router.POST("/admin/log", LogMiddleware(), ErrorHandleMiddleware(), setLogLevel)
	router.Any("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
}

func (h *OpenAPI) postOperation(c *gin.Context) {
	var body OperationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		if cerrors.RFCCode(err) != "" {
			// e.g. an unknown operation name
			c.JSON(http.StatusOK, newOperationResponse(&model.Response{
				Status: model.StatusFromError(err), Err: err,
			}))
			return
		}
		_ = c.Error(cerrors.WrapError(cerrors.ErrInvalidArgument, err, err.Error()))
		return
	}
	req, err := body.toRequest()
	if err != nil {
		c.JSON(http.StatusOK, newOperationResponse(&model.Response{
			Status: model.StatusFromError(err), Err: err,
		}))
		return
	}
	resp := h.svc.Execute(c.Request.Context(), req)
	c.JSON(http.StatusOK, newOperationResponse(resp))
}

func (h *OpenAPI) putCandidate(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		_ = c.Error(cerrors.ErrInvalidArgument.GenWithStackByArgs("invalid session id " + c.Param("id")))
		return
	}
	var body CandidateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(cerrors.WrapError(cerrors.ErrInvalidArgument, err, err.Error()))
		return
	}
	resp := h.svc.StageCandidate(c.Request.Context(), model.SessionID(id), body.ConfigID, body.Changes)
	c.JSON(http.StatusOK, newOperationResponse(resp))
}

func (h *OpenAPI) listControllers(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Controllers())
}

func (h *OpenAPI) createController(c *gin.Context) {
	var info model.ControllerInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		_ = c.Error(cerrors.WrapError(cerrors.ErrInvalidArgument, err, err.Error()))
		return
	}
	if err := h.svc.AddController(c.Request.Context(), info); err != nil {
		_ = c.Error(err)
		return
	}
	status, err := h.svc.Controller(info.Name)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, status)
}

func (h *OpenAPI) getController(c *gin.Context) {
	status, err := h.svc.Controller(c.Param("name"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *OpenAPI) updateController(c *gin.Context) {
	var info model.ControllerInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		_ = c.Error(cerrors.WrapError(cerrors.ErrInvalidArgument, err, err.Error()))
		return
	}
	info.Name = c.Param("name")
	if err := h.svc.UpdateController(c.Request.Context(), info); err != nil {
		_ = c.Error(err)
		return
	}
	status, err := h.svc.Controller(info.Name)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *OpenAPI) deleteController(c *gin.Context) {
	if err := h.svc.RemoveController(c.Request.Context(), c.Param("name")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, &EmptyResponse{})
}

func (h *OpenAPI) health(c *gin.Context) {
	ctrs := h.svc.Controllers()
	up := 0
	for _, ctr := range ctrs {
		if ctr.Status == model.ConnectionUp {
			up++
		}
	}
	stats := h.svc.SessionStats()
	c.JSON(http.StatusOK, &HealthResponse{
		Status:        "ok",
		Controllers:   len(ctrs),
		ControllersUp: up,
		Sessions: SessionsInfo{
			Config:  stats.ConfigSessions,
			Read:    stats.ReadSessions,
			Writing: stats.Writing,
		},
	})
}

// setLogLevel changes the log level dynamically.
func setLogLevel(c *gin.Context) {
	req := &LogLevelReq{Level: "info"}
	if err := c.ShouldBindJSON(req); err != nil {
		_ = c.Error(cerrors.ErrInvalidArgument.GenWithStackByArgs("invalid log level: " + err.Error()))
		return
	}
	if err := logutil.SetLogLevel(req.Level); err != nil {
		_ = c.Error(cerrors.ErrInvalidArgument.GenWithStackByArgs("fail to change log level: " + req.Level))
		return
	}
	log.Warn("log level changed", zap.String("level", req.Level))
	c.JSON(http.StatusOK, &EmptyResponse{})
}
