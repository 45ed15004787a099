package usecase

import (
	"context"
	"fmt"

	"roadside/internal/request/application/ports/in"
	"roadside/internal/request/domain"
)

// CreateRequestService реализует CreateRequestUseCase
type CreateRequestService struct {
	deps Deps
}

func NewCreateRequestService(deps Deps) *CreateRequestService {
	return &CreateRequestService{deps: deps.withDefaults()}
}

// Execute валидирует ввод и вставляет заявку в статусе pending
func (s *CreateRequestService) Execute(ctx context.Context, actor domain.Actor, input domain.NewRequestInput) (out *in.CreateRequestOutput, err error) {
	ctx, span := startSpan(ctx, "request.create", actor, "")
	defer func() { finish(span, err) }()

	if err := requireRole(actor, "create a request", domain.RoleUser); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	r := domain.NewServiceRequest(s.deps.NewID(), actor.ID, input, s.deps.now())
	if err := s.deps.Repo.Create(ctx, r); err != nil {
		s.deps.logWriteFailure("create_request_failed", r.ID, actor, err)
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.deps.afterCommit(ctx, domain.EventCreated, r, actor, nil)

	return &in.CreateRequestOutput{ID: r.ID, Status: r.Status}, nil
}
