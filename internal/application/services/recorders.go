package services

import (
	"context"
	"time"
)

// TransitionRecorder receives status change metrics
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, from, to string, backward bool)
}

// PersistRecorder receives session save metrics
type PersistRecorder interface {
	RecordPersist(ctx context.Context, backend string, duration time.Duration, err error)
}

// ImportRecorder receives schedule import metrics
type ImportRecorder interface {
	RecordImport(ctx context.Context, outcome string, n int)
}

// WaitRecorder receives the final wait of a patient once it stops growing
type WaitRecorder interface {
	RecordWaitTime(ctx context.Context, wait time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordTransition(context.Context, string, string, bool) {}
func (noopRecorder) RecordPersist(context.Context, string, time.Duration, error) {}
func (noopRecorder) RecordImport(context.Context, string, int) {}
func (noopRecorder) RecordWaitTime(context.Context, time.Duration) {}
