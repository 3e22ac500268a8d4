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
	cerrors "github.com/pingcap/vtnc/pkg/errors"
)

// StatusFromError maps an error returned by the coordinator to the status
// reported to the client. The outermost normalized error in the chain
// decides, so a driver abort caused by an invalid argument is an abort.
func StatusFromError(err error) OperStatus {
	if err == nil {
		return OperSuccess
	}
	switch cerrors.RFCCode(err) {
	case cerrors.ErrInvalidArgument.RFCCode():
		return OperInvalidInput
	case cerrors.ErrInvalidOperation.RFCCode():
		return OperInvalidOperation
	case cerrors.ErrInvalidOption.RFCCode():
		return OperInvalidOption
	case cerrors.ErrInvalidSession.RFCCode():
		return OperInvalidSession
	case cerrors.ErrInvalidConfigID.RFCCode():
		return OperInvalidConfigID
	case cerrors.ErrInvalidState.RFCCode():
		return OperInvalidState
	case cerrors.ErrSystemBusy.RFCCode(),
		cerrors.ErrDriverBusy.RFCCode():
		return SystemBusy
	case cerrors.ErrSessionAlreadyActive.RFCCode():
		return SessionAlreadyActive
	case cerrors.ErrConfigNotPresent.RFCCode():
		return ConfigNotPresent
	case cerrors.ErrDriverNotPresent.RFCCode(),
		cerrors.ErrDriverTypeNotFound.RFCCode():
		return OperDriverNotPresent
	case cerrors.ErrDriverOperAbort.RFCCode(),
		cerrors.ErrKeyTypeNotSupported.RFCCode(),
		cerrors.ErrOrphanConfigNode.RFCCode():
		return OperAbort
	case cerrors.ErrAuditCancelled.RFCCode():
		return OperAuditCancelled
	case cerrors.ErrSystemFailure.RFCCode(),
		cerrors.ErrDriverFailure.RFCCode(),
		cerrors.ErrControllerDisconnected.RFCCode(),
		cerrors.ErrTransportRequestFailed.RFCCode(),
		cerrors.ErrAsyncPoolExited.RFCCode(),
		cerrors.ErrTimerServiceClosed.RFCCode(),
		cerrors.ErrStartupStoreFailed.RFCCode():
		return SystemFailure
	}
	return OperFailure
}
