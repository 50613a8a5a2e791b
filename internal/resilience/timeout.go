// File: internal/resilience/timeout.go
package resilience

import (
	"context"
	"time"
)

// outcome carries an operation's result across the race channel.
type outcome[T any] struct {
	val T
	err error
}

// WithTimeout races op against a timer of duration d. Whichever settles first
// decides the result. When the timer wins a *TimedOutError is returned, the
// context handed to op is canceled, and op's eventual result is dropped on a
// buffered channel nobody reads.
//
// A non-positive d disables the race and runs op inline.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithCancel(ctx)
	// Buffered so the losing goroutine can always deliver and exit.
	done := make(chan outcome[T], 1)
	start := time.Now()

	go func() {
		v, err := op(opCtx)
		done <- outcome[T]{val: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case res := <-done:
		cancel()
		return res.val, res.err
	case <-timer.C:
		cancel()
		var zero T
		return zero, &TimedOutError{Budget: d, Elapsed: time.Since(start)}
	}
}

// RunWithTimeout is WithTimeout for operations without a result value.
func RunWithTimeout(ctx context.Context, d time.Duration, op func(ctx context.Context) error) error {
	_, err := WithTimeout(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
