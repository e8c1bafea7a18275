package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/timetable-api/internal/models"
	"github.com/campushq/timetable-api/pkg/jobs"
)

// EventSubscriber consumes a published domain event. The payload is the
// JSON-encoded event struct for the given event type.
type EventSubscriber func(ctx context.Context, eventType string, payload []byte) error

// EventDispatcher fans domain events out to registered subscribers through a
// background worker queue. Publication happens after the owning transaction
// commits; delivery is at-least-once with bounded retries and never blocks or
// fails the mutating request.
type EventDispatcher struct {
	queue  *jobs.Queue
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[string][]EventSubscriber
}

// NewEventDispatcher builds a dispatcher backed by an in-process queue.
func NewEventDispatcher(cfg jobs.QueueConfig, logger *zap.Logger) *EventDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &EventDispatcher{
		logger:      logger,
		subscribers: make(map[string][]EventSubscriber),
	}
	cfg.Logger = logger
	d.queue = jobs.NewQueue("domain-events", d.deliver, cfg)
	return d
}

// Start begins background delivery.
func (d *EventDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains workers.
func (d *EventDispatcher) Stop() {
	d.queue.Stop()
}

// Subscribe registers a subscriber for an event type. Must be called before
// events of that type are published to guarantee delivery.
func (d *EventDispatcher) Subscribe(eventType string, sub EventSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[eventType] = append(d.subscribers[eventType], sub)
}

// Publish enqueues an event for asynchronous delivery. Errors are logged, not
// returned: the state change already committed and must not be rolled back by
// a notification failure.
func (d *EventDispatcher) Publish(eventType string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    eventType,
		Payload: payload,
	}
	if err := d.queue.Enqueue(job); err != nil {
		d.logger.Error("failed to enqueue event", zap.String("type", eventType), zap.Error(err))
	}
}

// PublishStudentEnrolled publishes the post-commit enrollment event.
func (d *EventDispatcher) PublishStudentEnrolled(event models.StudentEnrolledEvent) {
	d.Publish(models.EventStudentEnrolled, event)
}

// PublishEnrollmentStatusChanged publishes the post-commit status event.
func (d *EventDispatcher) PublishEnrollmentStatusChanged(event models.EnrollmentStatusChangedEvent) {
	d.Publish(models.EventEnrollmentStatusChanged, event)
}

func (d *EventDispatcher) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.([]byte)
	if !ok {
		d.logger.Error("event payload is not []byte", zap.String("type", job.Type))
		return nil
	}

	d.mu.RLock()
	subs := d.subscribers[job.Type]
	d.mu.RUnlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub(ctx, job.Type, payload); err != nil {
			d.logger.Warn("event subscriber failed",
				zap.String("type", job.Type),
				zap.String("job_id", job.ID),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
