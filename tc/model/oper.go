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

import (
	"strings"

	"github.com/pingcap/errors"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
)

// ServiceType is the kind of a request served by the transaction coordinator.
// The numeric values are part of the wire contract, never reorder them.
type ServiceType int32

// All service types.
const (
	OpConfigAcquire ServiceType = iota
	OpConfigRelease
	OpConfigAcquireTimed
	OpConfigAcquirePartial
	OpConfigAcquireForce
	OpCandidateCommit
	OpCandidateCommitTimed
	OpCandidateAbort
	OpCandidateAbortTimed
	OpRunningSave
	OpClearStartup
	OpUserAudit
	OpDriverAudit
	OpAutoSaveGet
	OpAutoSaveEnable
	OpAutoSaveDisable
	OpReadAcquire
	OpReadRelease
	OpReadRunningStatus
	OpReadStartupStatus
	OpInvalid
)

var serviceTypeNames = [...]string{
	OpConfigAcquire:        "TC_OP_CONFIG_ACQUIRE",
	OpConfigRelease:        "TC_OP_CONFIG_RELEASE",
	OpConfigAcquireTimed:   "TC_OP_CONFIG_ACQUIRE_TIMED",
	OpConfigAcquirePartial: "TC_OP_CONFIG_ACQUIRE_PARTIAL",
	OpConfigAcquireForce:   "TC_OP_CONFIG_ACQUIRE_FORCE",
	OpCandidateCommit:      "TC_OP_CANDIDATE_COMMIT",
	OpCandidateCommitTimed: "TC_OP_CANDIDATE_COMMIT_TIMED",
	OpCandidateAbort:       "TC_OP_CANDIDATE_ABORT",
	OpCandidateAbortTimed:  "TC_OP_CANDIDATE_ABORT_TIMED",
	OpRunningSave:          "TC_OP_RUNNING_SAVE",
	OpClearStartup:         "TC_OP_CLEAR_STARTUP",
	OpUserAudit:            "TC_OP_USER_AUDIT",
	OpDriverAudit:          "TC_OP_DRIVER_AUDIT",
	OpAutoSaveGet:          "TC_OP_AUTOSAVE_GET",
	OpAutoSaveEnable:       "TC_OP_AUTOSAVE_ENABLE",
	OpAutoSaveDisable:      "TC_OP_AUTOSAVE_DISABLE",
	OpReadAcquire:          "TC_OP_READ_ACQUIRE",
	OpReadRelease:          "TC_OP_READ_RELEASE",
	OpReadRunningStatus:    "TC_OP_READ_RUNNING_STATUS",
	OpReadStartupStatus:    "TC_OP_READ_STARTUP_STATUS",
	OpInvalid:              "TC_OP_INVALID",
}

func (t ServiceType) String() string {
	if t < 0 || t > OpInvalid {
		return serviceTypeNames[OpInvalid]
	}
	return serviceTypeNames[t]
}

// IsValid returns true for every service type a client may request.
func (t ServiceType) IsValid() bool {
	return t >= OpConfigAcquire && t < OpInvalid
}

// IsWrite returns true if the operation changes running or startup configuration.
func (t ServiceType) IsWrite() bool {
	switch t {
	case OpCandidateCommit, OpCandidateCommitTimed,
		OpCandidateAbort, OpCandidateAbortTimed,
		OpRunningSave, OpClearStartup,
		OpAutoSaveEnable, OpAutoSaveDisable:
		return true
	}
	return false
}

// ParseServiceType parses both "TC_OP_CONFIG_ACQUIRE" and "config_acquire".
func ParseServiceType(s string) (ServiceType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(name, "TC_OP_") {
		name = "TC_OP_" + name
	}
	for i, n := range serviceTypeNames {
		if n == name && ServiceType(i) != OpInvalid {
			return ServiceType(i), nil
		}
	}
	return OpInvalid, cerrors.ErrInvalidOperation.GenWithStackByArgs(s)
}

// MarshalText implements encoding.TextMarshaler.
func (t ServiceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ServiceType) UnmarshalText(text []byte) error {
	parsed, err := ParseServiceType(string(text))
	if err != nil {
		return errors.Trace(err)
	}
	*t = parsed
	return nil
}

// OperStatus is the result code of a request.
// The numeric values are part of the wire contract, never reorder them.
type OperStatus int32

// All operation status.
const (
	OperSuccess OperStatus = iota
	OperFailure
	OperInvalidInput
	OperInvalidOperation
	OperInvalidSession
	OperInvalidConfigID
	OperInvalidState
	OperInvalidOption
	SystemBusy
	SessionAlreadyActive
	ConfigNotPresent
	OperDriverNotPresent
	OperAbort
	OperAuditCancelled
	SystemFailure
)

var operStatusNames = [...]string{
	OperSuccess:          "TC_OPER_SUCCESS",
	OperFailure:          "TC_OPER_FAILURE",
	OperInvalidInput:     "TC_OPER_INVALID_INPUT",
	OperInvalidOperation: "TC_OPER_INVALID_OPERATION",
	OperInvalidSession:   "TC_INVALID_SESSION_ID",
	OperInvalidConfigID:  "TC_INVALID_CONFIG_ID",
	OperInvalidState:     "TC_INVALID_STATE",
	OperInvalidOption:    "TC_INVALID_OPTION",
	SystemBusy:           "TC_SYSTEM_BUSY",
	SessionAlreadyActive: "TC_SESSION_ALREADY_ACTIVE",
	ConfigNotPresent:     "TC_CONFIG_NOT_PRESENT",
	OperDriverNotPresent: "TC_OPER_DRIVER_NOT_PRESENT",
	OperAbort:            "TC_OPER_ABORT",
	OperAuditCancelled:   "TC_OPER_AUDIT_CANCELLED",
	SystemFailure:        "TC_SYSTEM_FAILURE",
}

func (s OperStatus) String() string {
	if s < 0 || int(s) >= len(operStatusNames) {
		return "TC_OPER_UNKNOWN"
	}
	return operStatusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s OperStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *OperStatus) UnmarshalText(text []byte) error {
	for i, n := range operStatusNames {
		if n == string(text) {
			*s = OperStatus(i)
			return nil
		}
	}
	return cerrors.ErrInvalidArgument.GenWithStackByArgs("unknown status " + string(text))
}
