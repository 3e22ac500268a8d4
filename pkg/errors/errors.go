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

package errors

import (
	"github.com/pingcap/errors"
)

// all transaction coordinator errors
var (
	// general errors
	ErrInvalidArgument = errors.Normalize(
		"invalid argument: %s",
		errors.RFCCodeText("TC:ErrInvalidArgument"),
	)
	ErrInvalidOperation = errors.Normalize(
		"invalid operation: %s",
		errors.RFCCodeText("TC:ErrInvalidOperation"),
	)
	ErrInvalidOption = errors.Normalize(
		"invalid option: %s",
		errors.RFCCodeText("TC:ErrInvalidOption"),
	)
	ErrSystemFailure = errors.Normalize(
		"system failure: %s",
		errors.RFCCodeText("TC:ErrSystemFailure"),
	)
	ErrInvalidServerOption = errors.Normalize(
		"invalid server option: %s",
		errors.RFCCodeText("TC:ErrInvalidServerOption"),
	)
	ErrInvalidConfig = errors.Normalize(
		"invalid config: %s",
		errors.RFCCodeText("TC:ErrInvalidConfig"),
	)

	// session related errors
	ErrInvalidSession = errors.Normalize(
		"session %d does not hold a config lock",
		errors.RFCCodeText("TC:ErrInvalidSession"),
	)
	ErrInvalidConfigID = errors.Normalize(
		"config id %d is not valid for session %d",
		errors.RFCCodeText("TC:ErrInvalidConfigID"),
	)
	ErrInvalidState = errors.Normalize(
		"invalid state: %s",
		errors.RFCCodeText("TC:ErrInvalidState"),
	)
	ErrSystemBusy = errors.Normalize(
		"system busy: %s",
		errors.RFCCodeText("TC:ErrSystemBusy"),
	)
	ErrSessionAlreadyActive = errors.Normalize(
		"session %d already holds a config lock",
		errors.RFCCodeText("TC:ErrSessionAlreadyActive"),
	)
	ErrConfigNotPresent = errors.Normalize(
		"config not present: %s",
		errors.RFCCodeText("TC:ErrConfigNotPresent"),
	)

	// controller and driver related errors
	ErrDriverNotPresent = errors.Normalize(
		"driver not present for controller %s",
		errors.RFCCodeText("TC:ErrDriverNotPresent"),
	)
	ErrDriverTypeNotFound = errors.Normalize(
		"driver type %s is not registered",
		errors.RFCCodeText("TC:ErrDriverTypeNotFound"),
	)
	ErrControllerAlreadyExists = errors.Normalize(
		"controller %s already exists",
		errors.RFCCodeText("TC:ErrControllerAlreadyExists"),
	)
	ErrControllerDisconnected = errors.Normalize(
		"controller %s is disconnected",
		errors.RFCCodeText("TC:ErrControllerDisconnected"),
	)
	ErrDriverOperAbort = errors.Normalize(
		"driver operation aborted on controller %s: %s",
		errors.RFCCodeText("TC:ErrDriverOperAbort"),
	)
	ErrDriverBusy = errors.Normalize(
		"controller %s is busy",
		errors.RFCCodeText("TC:ErrDriverBusy"),
	)
	ErrDriverFailure = errors.Normalize(
		"driver failure on controller %s",
		errors.RFCCodeText("TC:ErrDriverFailure"),
	)
	ErrKeyTypeNotSupported = errors.Normalize(
		"key type %s is not supported by driver %s",
		errors.RFCCodeText("TC:ErrKeyTypeNotSupported"),
	)
	ErrOrphanConfigNode = errors.Normalize(
		"config node %s has no parent %s in the cache",
		errors.RFCCodeText("TC:ErrOrphanConfigNode"),
	)
	ErrTransportRequestFailed = errors.Normalize(
		"request %s %s failed with status %d",
		errors.RFCCodeText("TC:ErrTransportRequestFailed"),
	)

	// audit related errors
	ErrAuditCancelled = errors.Normalize(
		"audit of controller %s is cancelled",
		errors.RFCCodeText("TC:ErrAuditCancelled"),
	)

	// storage related errors
	ErrStartupStoreFailed = errors.Normalize(
		"startup store operation failed",
		errors.RFCCodeText("TC:ErrStartupStoreFailed"),
	)
	ErrCheckDirWritable = errors.Normalize(
		"check dir writable failed",
		errors.RFCCodeText("TC:ErrCheckDirWritable"),
	)
	ErrGetDiskAvailableSpace = errors.Normalize(
		"get dir disk info failed",
		errors.RFCCodeText("TC:ErrGetDiskAvailableSpace"),
	)

	// worker pool related errors
	ErrAsyncPoolExited = errors.Normalize(
		"async pool exited",
		errors.RFCCodeText("TC:ErrAsyncPoolExited"),
	)
	ErrTimerServiceClosed = errors.Normalize(
		"timer service is closed",
		errors.RFCCodeText("TC:ErrTimerServiceClosed"),
	)
)
