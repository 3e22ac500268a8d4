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

package api

import (
	"strings"
	"time"

	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/model"
)

// OperationRequest is the body of POST /api/v1/operations.
type OperationRequest struct {
	Operation    model.ServiceType    `json:"operation"`
	SessionID    model.SessionID      `json:"session_id"`
	ConfigID     model.ConfigID       `json:"config_id,omitempty"`
	ControllerID string               `json:"controller_id,omitempty"`
	TimeoutMs    int64                `json:"timeout_ms,omitempty"`
	Mode         string               `json:"mode,omitempty"`
	Scope        string               `json:"scope,omitempty"`
	VTN          string               `json:"vtn,omitempty"`
	Changes      []model.ConfigChange `json:"changes,omitempty"`
}

// toRequest converts the body into a coordinator request.
func (r *OperationRequest) toRequest() (*model.Request, error) {
	lock, err := parseLock(r.Mode, r.Scope, r.VTN)
	if err != nil {
		return nil, err
	}
	return &model.Request{
		Operation:    r.Operation,
		SessionID:    r.SessionID,
		ConfigID:     r.ConfigID,
		ControllerID: r.ControllerID,
		Timeout:      time.Duration(r.TimeoutMs) * time.Millisecond,
		Lock:         lock,
		Changes:      r.Changes,
	}, nil
}

func parseLock(mode, scope, vtn string) (model.LockScope, error) {
	var lock model.LockScope
	switch strings.ToLower(mode) {
	case "", "global":
		lock.Mode = model.ModeGlobal
	case "force":
		lock.Mode = model.ModeForce
	case "partial":
		lock.Mode = model.ModePartial
		s, err := model.ParsePartialScope(scope)
		if err != nil {
			return lock, err
		}
		lock.Scope, lock.VTN = s, vtn
	default:
		return lock, cerrors.ErrInvalidOption.GenWithStackByArgs("unknown mode " + mode)
	}
	return lock, nil
}

// OperationResponse is the result of an operation.
type OperationResponse struct {
	Status     model.OperStatus `json:"status"`
	StatusCode int              `json:"status_code"`
	ConfigID   model.ConfigID   `json:"config_id,omitempty"`
	Payload    interface{}      `json:"payload,omitempty"`
	Error      string           `json:"error,omitempty"`
}

func newOperationResponse(resp *model.Response) *OperationResponse {
	res := &OperationResponse{
		Status:     resp.Status,
		StatusCode: int(resp.Status),
		ConfigID:   resp.ConfigID,
		Payload:    resp.Payload,
	}
	if resp.Err != nil {
		res.Error = resp.Err.Error()
	}
	return res
}

// CandidateRequest is the body of PUT /api/v1/sessions/:id/candidate.
type CandidateRequest struct {
	ConfigID model.ConfigID       `json:"config_id"`
	Changes  []model.ConfigChange `json:"changes"`
}

// LogLevelReq is the body of POST /admin/log.
type LogLevelReq struct {
	Level string `json:"log_level"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string       `json:"status"`
	Controllers   int          `json:"controllers"`
	ControllersUp int          `json:"controllers_up"`
	Sessions      SessionsInfo `json:"sessions"`
}

// SessionsInfo summarizes the session lock manager.
type SessionsInfo struct {
	Config  int  `json:"config"`
	Read    int  `json:"read"`
	Writing bool `json:"writing"`
}

// HTTPError is the body of a failed request.
type HTTPError struct {
	Error string `json:"error_msg"`
	Code  string `json:"error_code"`
}

// NewHTTPError wraps an error into HTTPError.
func NewHTTPError(err error) HTTPError {
	return HTTPError{
		Error: err.Error(),
		Code:  string(cerrors.RFCCode(err)),
	}
}

// EmptyResponse is returned when there is nothing to return.
type EmptyResponse struct{}
