package usecase

import (
	"context"
	"errors"
	"time"

	"roadside/internal/request/application/ports/out"
	"roadside/internal/request/domain"
	"roadside/internal/shared/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("roadside/request/usecase")

// Deps — общие зависимости всех use case заявок
type Deps struct {
	Repo      out.RequestRepository
	Cache     out.AvailableCache
	Publisher out.EventPublisher
	Notifier  out.RequestNotifier
	Log       *logger.Logger

	// ListLimit caps the available list; 0 means 100.
	ListLimit int
	// Clock and NewID are overridable in tests.
	Clock func() time.Time
	NewID func() string
	// ReadRetry bounds retries of reads on TransportError.
	ReadRetry RetryPolicy
}

// RetryPolicy — экспоненциальный backoff для чтений
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

var defaultReadRetry = RetryPolicy{Attempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}

// sideEffectTimeout bounds publish, notify and cache invalidation after a commit.
const sideEffectTimeout = 5 * time.Second

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.ListLimit <= 0 {
		d.ListLimit = 100
	}
	if d.ReadRetry.Attempts <= 0 {
		d.ReadRetry = defaultReadRetry
	}
	return d
}

func (d Deps) now() time.Time { return d.Clock().UTC() }

// requireRole returns a ForbiddenError unless actor carries one of roles.
func requireRole(actor domain.Actor, op string, roles ...domain.Role) error {
	if actor.ID == "" {
		return &domain.ForbiddenError{Role: actor.Role, Op: op}
	}
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return &domain.ForbiddenError{Role: actor.Role, Op: op}
}

func requireID(requestID string) error {
	if _, err := uuid.Parse(requestID); err != nil {
		return &domain.ValidationError{Field: "id", Reason: "not a valid request id"}
	}
	return nil
}

// startSpan opens a span carrying the actor; finish records err and ends it.
func startSpan(ctx context.Context, name string, actor domain.Actor, requestID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.Role)),
	}
	if requestID != "" {
		attrs = append(attrs, attribute.String("request.id", requestID))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// retryRead retries fn while it fails with a TransportError. Other errors return immediately.
func retryRead[T any](ctx context.Context, p RetryPolicy, log *logger.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, domain.ErrTransport) || attempt == p.Attempts {
			return zero, err
		}
		log.Warn(logger.Entry{
			Action:  "read_retry",
			Message: err.Error(),
			Additional: map[string]any{
				"op":       op,
				"attempt":  attempt,
				"retry_in": delay.String(),
			},
		})
		select {
		case <-ctx.Done():
			return zero, &domain.TransportError{Op: op, Err: ctx.Err()}
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return zero, err
}

// afterCommit runs the side effects of a committed transition. Failures are
// logged only: the transition already happened and must not be reported as failed.
// The caller's cancellation does not reach them: a client that disconnects right
// after the commit must not lose the event.
func (d Deps) afterCommit(ctx context.Context, evType domain.EventType, r *domain.ServiceRequest, actor domain.Actor, prevWorker *string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	ev := domain.NewRequestEvent(d.NewID(), evType, r, actor.ID, d.now())
	ev.PreviousWorker = prevWorker

	d.Log.Info(logger.Entry{
		Action:           string(evType),
		Message:          string(r.Status),
		ServiceRequestID: r.ID,
		Additional: map[string]any{
			"actor_id":     actor.ID,
			"actor_role":   string(actor.Role),
			"requester_id": r.RequesterID,
			"worker_id":    deref(r.WorkerID),
			"service_type": string(r.ServiceType),
		},
	})

	if evType.ChangesAvailableSet() && d.Cache != nil {
		if err := d.Cache.Invalidate(ctx); err != nil {
			d.logSideEffect("invalidate_available_cache_failed", r.ID, err)
		}
	}
	if d.Publisher != nil {
		if err := d.Publisher.PublishRequestEvent(ctx, ev); err != nil {
			d.logSideEffect("publish_request_event_failed", r.ID, err)
		}
	}
	if d.Notifier != nil {
		if err := d.Notifier.NotifyChange(ctx, ev); err != nil {
			d.logSideEffect("notify_request_change_failed", r.ID, err)
		}
	}
}

func (d Deps) logSideEffect(action, requestID string, err error) {
	d.Log.Error(logger.Entry{
		Action:           action,
		Message:          err.Error(),
		ServiceRequestID: requestID,
		Error:            &logger.ErrObj{Msg: err.Error()},
	})
}

// logWriteFailure logs a failed transition at a level matching its kind.
func (d Deps) logWriteFailure(action, requestID string, actor domain.Actor, err error) {
	e := logger.Entry{
		Action:           action,
		Message:          err.Error(),
		ServiceRequestID: requestID,
		Additional: map[string]any{
			"actor_id":   actor.ID,
			"actor_role": string(actor.Role),
		},
	}
	switch {
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrForbidden):
		d.Log.Info(e)
	default:
		e.Error = &logger.ErrObj{Msg: err.Error()}
		d.Log.Error(e)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
