package usecase

import (
	"context"
	"fmt"

	"roadside/internal/request/domain"
)

// AcceptRequestService — исполнитель берет pending заявку.
// Одна условная запись: проигравшие в гонке получают ConflictError.
type AcceptRequestService struct {
	deps Deps
}

func NewAcceptRequestService(deps Deps) *AcceptRequestService {
	return &AcceptRequestService{deps: deps.withDefaults()}
}

func (s *AcceptRequestService) Execute(ctx context.Context, actor domain.Actor, requestID string) (r *domain.ServiceRequest, err error) {
	ctx, span := startSpan(ctx, "request.accept", actor, requestID)
	defer func() { finish(span, err) }()

	if err := requireRole(actor, "accept a request", domain.RoleWorker); err != nil {
		return nil, err
	}
	if err := requireID(requestID); err != nil {
		return nil, err
	}

	r, err = s.deps.Repo.Accept(ctx, requestID, actor.ID, s.deps.now())
	if err != nil {
		s.deps.logWriteFailure("accept_request_failed", requestID, actor, err)
		return nil, fmt.Errorf("accept request: %w", err)
	}

	s.deps.afterCommit(ctx, domain.EventAccepted, r, actor, nil)
	return r, nil
}
