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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"go.uber.org/zap"
)

// RequestIDHeader carries the id of a request, generated when absent.
const RequestIDHeader = "X-Request-Id"

// LogMiddleware logs the api requests
func LogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		requestID := c.Request.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDHeader, requestID)
		c.Next()

		err := c.Errors.Last()
		var stdErr error
		if err != nil {
			stdErr = err.Err
		}
		log.Info("vtnc api request",
			zap.String("requestID", requestID),
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Error(stdErr),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// ErrorHandleMiddleware puts the error into response
func ErrorHandleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		// handlers return right after recording an error, there is at most one.
		lastError := c.Errors.Last()
		if lastError != nil {
			err := lastError.Err
			c.IndentedJSON(httpStatus(err), NewHTTPError(err))
			c.Abort()
			return
		}
	}
}

func httpStatus(err error) int {
	switch cerrors.RFCCode(err) {
	case cerrors.ErrInvalidArgument.RFCCode(), cerrors.ErrInvalidOption.RFCCode(),
		cerrors.ErrDriverTypeNotFound.RFCCode():
		return http.StatusBadRequest
	case cerrors.ErrDriverNotPresent.RFCCode():
		return http.StatusNotFound
	case cerrors.ErrControllerAlreadyExists.RFCCode():
		return http.StatusConflict
	case cerrors.ErrSystemBusy.RFCCode():
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
