package usecase

import (
	"context"
	"fmt"
	"strings"

	"roadside/internal/request/domain"
)

// RateRequestService — автор ставит оценку 1..5 завершенной заявке, один раз
type RateRequestService struct {
	deps Deps
}

func NewRateRequestService(deps Deps) *RateRequestService {
	return &RateRequestService{deps: deps.withDefaults()}
}

func (s *RateRequestService) Execute(ctx context.Context, actor domain.Actor, requestID string, input domain.RatingInput) (r *domain.ServiceRequest, err error) {
	ctx, span := startSpan(ctx, "request.rate", actor, requestID)
	defer func() { finish(span, err) }()

	if err := requireRole(actor, "rate a request", domain.RoleUser); err != nil {
		return nil, err
	}
	if err := requireID(requestID); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	review := input.Review
	if review != nil {
		trimmed := strings.TrimSpace(*review)
		review = &trimmed
		if trimmed == "" {
			review = nil
		}
	}

	r, err = s.deps.Repo.Rate(ctx, requestID, actor.ID, input.Rating, review, s.deps.now())
	if err != nil {
		s.deps.logWriteFailure("rate_request_failed", requestID, actor, err)
		return nil, fmt.Errorf("rate request: %w", err)
	}

	s.deps.afterCommit(ctx, domain.EventRated, r, actor, nil)
	return r, nil
}
