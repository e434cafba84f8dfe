package models

import (
	"context"
	"time"
)

// ComponentStatus is the lifecycle of one tracked unit of decode work.
type ComponentStatus string

const (
	ComponentStatusRunning  ComponentStatus = "running"
	ComponentStatusFinished ComponentStatus = "finished"
	ComponentStatusError    ComponentStatus = "error"
)

// ComponentUpdate is one component's progress update: a node entering or
// leaving Codec/ProxyResolver/MetadataResolver/HandlerRegistry.
type ComponentUpdate struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Status    ComponentStatus `json:"status"`
	Detail    string          `json:"detail,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ProgressTracker publishes ComponentUpdates on an optional channel so a
// caller can observe a long recursive decode without the decoder depending
// on one: panic-safe sends, cancellation via context.
type ProgressTracker struct {
	updateChan chan<- ComponentUpdate
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewProgressTracker returns a tracker that publishes to updateChan, or a
// no-op tracker if updateChan is nil.
func NewProgressTracker(updateChan chan<- ComponentUpdate) *ProgressTracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProgressTracker{updateChan: updateChan, ctx: ctx, cancel: cancel}
}

// Close stops further publishing. Safe to call multiple times.
func (pt *ProgressTracker) Close() {
	pt.cancel()
}

// Update reports a component transition. Never blocks the caller longer
// than the channel send requires and never panics if the channel has been
// closed concurrently by a consumer that gave up.
func (pt *ProgressTracker) Update(id, title string, status ComponentStatus, detail string) {
	if pt == nil || pt.updateChan == nil {
		return
	}

	update := ComponentUpdate{
		ID:        id,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now(),
	}

	defer func() { _ = recover() }()

	select {
	case <-pt.ctx.Done():
	case pt.updateChan <- update:
	default:
		// Consumer isn't keeping up; drop rather than block the decode.
	}
}
