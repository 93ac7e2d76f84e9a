package ratelimiting

import (
	"context"
	"slices"
	"sync"
	"time"
)

// windowLimitRequestLimiter allows at most limit operations per sliding
// window. Callers over the limit wait for the oldest finished operation to
// leave the window instead of failing.
type windowLimitRequestLimiter struct {
	limit     int
	window    time.Duration
	nowFunc   func() time.Time
	afterFunc func(time.Duration) <-chan time.Time

	availableSlots     chan struct{}
	finishedOperations []time.Time
	mutex              sync.Mutex
}

func NewWindowLimitRequestLimiter(
	limit int,
	window time.Duration,
	nowFunc func() time.Time,
	afterFunc func(time.Duration) <-chan time.Time,
) *windowLimitRequestLimiter {
	availableSlots := make(chan struct{}, limit)
	for i := 0; i < limit; i++ {
		availableSlots <- struct{}{}
	}

	// No finished operations within the window -> no waiting for the first operations
	finishedOperations := make([]time.Time, limit)
	veryOldTime := nowFunc().Add(-window)
	for i := 0; i < limit; i++ {
		finishedOperations[i] = veryOldTime
	}

	return &windowLimitRequestLimiter{
		limit:     limit,
		window:    window,
		nowFunc:   nowFunc,
		afterFunc: afterFunc,

		availableSlots:     availableSlots,
		finishedOperations: finishedOperations,
		mutex:              sync.Mutex{},
	}
}

func insertSortedOrder(arr []time.Time, t time.Time) []time.Time {
	i, _ := slices.BinarySearchFunc(arr, t, func(a, b time.Time) int {
		if a.Before(b) {
			return -1
		}
		if a.After(b) {
			return 1
		}
		return 0
	})
	return slices.Insert(arr, i, t)
}

// Limit runs operation once a slot within the window is available. It returns
// false without running the operation if ctx ends first, or if the wait plus
// maxOperationTime would overrun ctx's deadline.
func (l *windowLimitRequestLimiter) Limit(ctx context.Context, maxOperationTime time.Duration, operation func(ctx context.Context)) bool {
	return l.LimitCancelable(ctx, maxOperationTime, func(ctx context.Context) bool {
		operation(ctx)
		return true
	})
}

// LimitCancelable is Limit for operations that may decide not to run after
// all. An operation returning false does not count against the window.
func (l *windowLimitRequestLimiter) LimitCancelable(ctx context.Context, maxOperationTime time.Duration, operation func(ctx context.Context) bool) bool {
	return l.waitIf(ctx, func(ctx context.Context, wait time.Duration) bool {
		deadline, ok := ctx.Deadline()
		if !ok {
			// No deadline, we can proceed
			return true
		}

		maxDuration := wait + maxOperationTime
		untilDeadline := deadline.Sub(l.nowFunc())
		if maxDuration > untilDeadline {
			return false
		}

		return true
	}, operation)
}

func (l *windowLimitRequestLimiter) waitIf(ctx context.Context, shouldRun func(ctx context.Context, wait time.Duration) bool, operation func(ctx context.Context) bool) bool {
	// Make sure there is data in the operation history
	select {
	case <-l.availableSlots:
		// Make sure to return the slot when we are done
		defer func() {
			l.availableSlots <- struct{}{}
		}()
	case <-ctx.Done():
		return false
	}

	oldestOperation, ok := l.grabOldestFinishedOperation(ctx, shouldRun)
	if !ok {
		return false
	}
	// Since we grabbed an entry, we need to put one back when we return
	entryToInsert := oldestOperation // If we return without running the operation, we reinsert the entry we grabbed
	defer func() {
		l.insertFinishedOperation(entryToInsert)
	}()

	if wait := l.computeWait(oldestOperation); wait > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-l.afterFunc(wait):
		}
	}

	// Perform the operation
	ran := operation(ctx)
	if !ran {
		return false
	}

	entryToInsert = l.nowFunc()
	return true
}

func (l *windowLimitRequestLimiter) computeWait(oldOperation time.Time) time.Duration {
	timeSinceOperation := l.nowFunc().Sub(oldOperation)
	remainingTimeInWindow := l.window - timeSinceOperation
	return remainingTimeInWindow
}

func (l *windowLimitRequestLimiter) insertFinishedOperation(finishedOperation time.Time) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.finishedOperations = insertSortedOrder(l.finishedOperations, finishedOperation)
}

func (l *windowLimitRequestLimiter) grabOldestFinishedOperation(ctx context.Context, shouldRun func(context.Context, time.Duration) bool) (time.Time, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	oldestOperation := l.finishedOperations[0]
	wait := l.computeWait(oldestOperation)
	run := shouldRun(ctx, wait)
	if !run {
		return time.Time{}, false
	}

	// Remove and return the oldest entry
	l.finishedOperations = l.finishedOperations[1:]
	return oldestOperation, true
}
