/*
SPDX-License-Identifier: Apache-2.0

Copyright 2026 Project Shepherd

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package retry provides the bounded retry and readiness-wait primitives the
// reconciler leans on. Both drive one operation at a time; parallelism is
// the caller's business.
package retry

import (
	"context"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Do runs op up to attempts times, sleeping delay between tries, retrying
// only while retryable returns true for the error. It returns the first
// success or the last error observed. Every attempt is logged at info,
// giving up at error.
func Do[T any](
	ctx context.Context,
	log logr.Logger,
	label string,
	attempts int,
	delay time.Duration,
	op func(context.Context) (T, error),
	retryable func(error) bool,
) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			log.Error(err, "Operation failed with non-retriable error", "operation", label, "attempt", attempt)
			return zero, err
		}
		log.Info("Operation failed, will retry", "operation", label, "attempt", attempt, "error", err.Error())

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	log.Error(lastErr, "Giving up on operation", "operation", label, "attempts", attempts)
	return zero, lastErr
}

// WaitForPresence polls op until it stops failing with a not-found error.
// Any other error is terminal and returned as-is. This is the readiness
// concession to the server's eventual consistency: a freshly created object
// may not be readable immediately.
func WaitForPresence[T any](
	ctx context.Context,
	log logr.Logger,
	label string,
	attempts int,
	delay time.Duration,
	op func(context.Context) (T, error),
) (T, error) {
	return Do(ctx, log, label, attempts, delay, op, IsNotFoundError)
}

// IsNotFoundError matches errors whose message reports a missing object.
// String matching is deliberate: not-found conditions surface both as typed
// API errors and as wrapped transport messages.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}
