package telemetry

import (
	"context"
	"time"
)

// NoOpRecorder is a recorder that does nothing.
type NoOpRecorder struct{}

// NewNoOpRecorder creates a recorder for when metrics export is disabled.
func NewNoOpRecorder() *NoOpRecorder {
	return &NoOpRecorder{}
}

func (NoOpRecorder) RecordRequest(ctx context.Context, route, method string, status int, elapsed time.Duration) {
}

func (NoOpRecorder) Close(ctx context.Context) error {
	return nil
}
