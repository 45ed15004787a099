package usecase

import (
	"context"
	"fmt"

	"roadside/internal/request/domain"
)

// CancelRequestService — автор отменяет заявку из pending или accepted
type CancelRequestService struct {
	deps Deps
}

func NewCancelRequestService(deps Deps) *CancelRequestService {
	return &CancelRequestService{deps: deps.withDefaults()}
}

func (s *CancelRequestService) Execute(ctx context.Context, actor domain.Actor, requestID string) (r *domain.ServiceRequest, err error) {
	ctx, span := startSpan(ctx, "request.cancel", actor, requestID)
	defer func() { finish(span, err) }()

	if err := requireRole(actor, "cancel a request", domain.RoleUser); err != nil {
		return nil, err
	}
	if err := requireID(requestID); err != nil {
		return nil, err
	}

	c, err := s.deps.Repo.Cancel(ctx, requestID, actor.ID, s.deps.now())
	if err != nil {
		s.deps.logWriteFailure("cancel_request_failed", requestID, actor, err)
		return nil, fmt.Errorf("cancel request: %w", err)
	}

	s.deps.afterCommit(ctx, domain.EventCancelled, c.Request, actor, c.PreviousWorkerID)
	return c.Request, nil
}
