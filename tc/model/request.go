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

package model

import "time"

// Request is one coordinator request, as received by the front end.
type Request struct {
	Operation    ServiceType    `json:"operation"`
	SessionID    SessionID      `json:"session_id"`
	ConfigID     ConfigID       `json:"config_id,omitempty"`
	ControllerID string         `json:"controller_id,omitempty"`
	Timeout      time.Duration  `json:"-"`
	Lock         LockScope      `json:"-"`
	Changes      []ConfigChange `json:"changes,omitempty"`
}

// Response is the result of one request.
type Response struct {
	Status   OperStatus  `json:"status"`
	ConfigID ConfigID    `json:"config_id,omitempty"`
	Payload  interface{} `json:"payload,omitempty"`
	Err      error       `json:"-"`
}

// RunningStatus is the payload of TC_OP_READ_RUNNING_STATUS.
type RunningStatus struct {
	// Saved is true when nothing was committed since the last running save.
	Saved       bool      `json:"saved"`
	LastCommit  time.Time `json:"last_commit,omitempty"`
	ObjectCount int       `json:"object_count"`
}

// StartupStatus is the payload of TC_OP_READ_STARTUP_STATUS.
type StartupStatus struct {
	Present     bool      `json:"present"`
	SavedAt     time.Time `json:"saved_at,omitempty"`
	ObjectCount int       `json:"object_count"`
}

// AuditReport is the payload of TC_OP_USER_AUDIT and TC_OP_DRIVER_AUDIT.
type AuditReport struct {
	Controller  string      `json:"controller"`
	Result      AuditResult `json:"result"`
	ObjectCount int         `json:"object_count"`
	// Attempts counts runs of the audit, including cancelled ones.
	Attempts int `json:"attempts"`
}

// AutosaveStatus is the payload of TC_OP_AUTOSAVE_GET.
type AutosaveStatus struct {
	Enabled bool `json:"enabled"`
}

// ControllerStatus is the state of one registered controller.
type ControllerStatus struct {
	Info        ControllerInfo   `json:"info"`
	Status      ConnectionStatus `json:"status"`
	AuditResult AuditResult      `json:"audit_result"`
	ObjectCount int              `json:"object_count"`
	LastCommit  time.Time        `json:"last_commit,omitempty"`
}
