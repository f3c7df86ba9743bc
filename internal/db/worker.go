package db

import (
	"context"

	"github.com/google/uuid"
)

// WorkerID identifies the worker (goroutine or group of goroutines acting as
// one logical thread) that owns a ConnContext.
type WorkerID string

// MainWorker is the identity of any caller whose context.Context carries no
// worker tag.
const MainWorker WorkerID = "main"

type workerKey struct{}

// WithWorker returns a copy of ctx tagged with the given worker identity.
func WithWorker(ctx context.Context, id WorkerID) context.Context {
	return context.WithValue(ctx, workerKey{}, id)
}

// WorkerFrom returns the worker identity carried by ctx, or MainWorker.
func WorkerFrom(ctx context.Context) WorkerID {
	if ctx == nil {
		return MainWorker
	}
	if id, ok := ctx.Value(workerKey{}).(WorkerID); ok && id != "" {
		return id
	}
	return MainWorker
}

// NewWorkerID returns a random worker identity.
func NewWorkerID() WorkerID {
	return WorkerID(uuid.NewString())
}
