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

package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pingcap/errors"
)

// Operation is the action need to retry
type Operation func() error

// Do execute the specified function.
// By default, it tries three times unless it succeeds or got canceled.
func Do(ctx context.Context, operation Operation, opts ...Option) error {
	retryOption := setOptions(opts...)
	return run(ctx, operation, retryOption)
}

func setOptions(opts ...Option) *retryOptions {
	retryOption := newRetryOptions()
	for _, opt := range opts {
		opt(retryOption)
	}
	return retryOption
}

func run(ctx context.Context, op Operation, retryOption *retryOptions) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = time.Duration(retryOption.backoffBase * float64(time.Millisecond))
	exp.MaxInterval = time.Duration(retryOption.backoffCap * float64(time.Millisecond))
	// The number of tries bounds the retry, not the elapsed time.
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = exp
	if !math.IsInf(retryOption.maxTries, 1) {
		b = backoff.WithMaxRetries(b, uint64(retryOption.maxTries)-1)
	}
	b = backoff.WithContext(b, ctx)

	err := backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !retryOption.isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	return errors.Trace(err)
}
