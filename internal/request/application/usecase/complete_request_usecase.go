package usecase

import (
	"context"
	"fmt"

	"roadside/internal/request/application/ports/in"
	"roadside/internal/request/domain"
)

// CompleteRequestService — назначенный исполнитель завершает заявку.
// Условие записи включает worker_id, поэтому чужой или повторный complete дает ConflictError.
type CompleteRequestService struct {
	deps Deps
}

func NewCompleteRequestService(deps Deps) *CompleteRequestService {
	return &CompleteRequestService{deps: deps.withDefaults()}
}

func (s *CompleteRequestService) Execute(ctx context.Context, actor domain.Actor, input in.CompleteRequestInput) (r *domain.ServiceRequest, err error) {
	ctx, span := startSpan(ctx, "request.complete", actor, input.RequestID)
	defer func() { finish(span, err) }()

	if err := requireRole(actor, "complete a request", domain.RoleWorker); err != nil {
		return nil, err
	}
	if err := requireID(input.RequestID); err != nil {
		return nil, err
	}
	if err := domain.ValidatePrice(input.Price); err != nil {
		return nil, err
	}

	r, err = s.deps.Repo.Complete(ctx, input.RequestID, actor.ID, input.Price, s.deps.now())
	if err != nil {
		s.deps.logWriteFailure("complete_request_failed", input.RequestID, actor, err)
		return nil, fmt.Errorf("complete request: %w", err)
	}

	s.deps.afterCommit(ctx, domain.EventCompleted, r, actor, nil)
	return r, nil
}
