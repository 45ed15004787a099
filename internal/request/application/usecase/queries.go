package usecase

import (
	"context"
	"fmt"

	"roadside/internal/request/domain"
)

// ListAvailableService — pending заявки для исполнителей, через кеш
type ListAvailableService struct {
	deps Deps
}

func NewListAvailableService(deps Deps) *ListAvailableService {
	return &ListAvailableService{deps: deps.withDefaults()}
}

func (s *ListAvailableService) Execute(ctx context.Context, actor domain.Actor) (list []*domain.ServiceRequest, err error) {
	ctx, span := startSpan(ctx, "request.list_available", actor, "")
	defer func() { finish(span, err) }()

	if err := requireRole(actor, "list available requests", domain.RoleWorker); err != nil {
		return nil, err
	}
	return s.Load(ctx)
}

// Load reads the available list without a role check; the poller uses it.
func (s *ListAvailableService) Load(ctx context.Context) ([]*domain.ServiceRequest, error) {
	load := func(ctx context.Context) ([]*domain.ServiceRequest, error) {
		return retryRead(ctx, s.deps.ReadRetry, s.deps.Log, "list_available", func(ctx context.Context) ([]*domain.ServiceRequest, error) {
			return s.deps.Repo.ListAvailable(ctx, s.deps.ListLimit)
		})
	}

	var (
		list []*domain.ServiceRequest
		err  error
	)
	if s.deps.Cache != nil {
		list, err = s.deps.Cache.GetAvailable(ctx, load)
	} else {
		list, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list available: %w", err)
	}
	return list, nil
}

// ListMineService — заявки клиента (как автора) или исполнителя (как назначенного)
type ListMineService struct {
	deps Deps
}

func NewListMineService(deps Deps) *ListMineService {
	return &ListMineService{deps: deps.withDefaults()}
}

func (s *ListMineService) Execute(ctx context.Context, actor domain.Actor, statuses []domain.Status) (list []*domain.ServiceRequest, err error) {
	ctx, span := startSpan(ctx, "request.list_mine", actor, "")
	defer func() { finish(span, err) }()

	if err := requireRole(actor, "list own requests", domain.RoleUser, domain.RoleWorker); err != nil {
		return nil, err
	}

	list, err = retryRead(ctx, s.deps.ReadRetry, s.deps.Log, "list_mine", func(ctx context.Context) ([]*domain.ServiceRequest, error) {
		if actor.Role == domain.RoleWorker {
			return s.deps.Repo.ListForWorker(ctx, actor.ID, statuses)
		}
		return s.deps.Repo.ListForRequester(ctx, actor.ID, statuses)
	})
	if err != nil {
		return nil, fmt.Errorf("list mine: %w", err)
	}
	return list, nil
}

// GetRequestService — одна заявка. Видна автору, назначенному исполнителю
// и любому исполнителю, пока она pending.
type GetRequestService struct {
	deps Deps
}

func NewGetRequestService(deps Deps) *GetRequestService {
	return &GetRequestService{deps: deps.withDefaults()}
}

func (s *GetRequestService) Execute(ctx context.Context, actor domain.Actor, requestID string) (r *domain.ServiceRequest, err error) {
	ctx, span := startSpan(ctx, "request.get", actor, requestID)
	defer func() { finish(span, err) }()

	if err := requireRole(actor, "view a request", domain.RoleUser, domain.RoleWorker); err != nil {
		return nil, err
	}
	if err := requireID(requestID); err != nil {
		return nil, err
	}

	r, err = retryRead(ctx, s.deps.ReadRetry, s.deps.Log, "get_request", func(ctx context.Context) (*domain.ServiceRequest, error) {
		return s.deps.Repo.FindByID(ctx, requestID)
	})
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if !CanView(actor, r) {
		// не раскрываем существование чужой заявки
		return nil, fmt.Errorf("get request: %w", domain.ErrRequestNotFound)
	}
	return r, nil
}

// CanView reports whether actor may see r.
func CanView(actor domain.Actor, r *domain.ServiceRequest) bool {
	switch actor.Role {
	case domain.RoleUser:
		return r.RequesterID == actor.ID
	case domain.RoleWorker:
		return r.Status == domain.StatusPending || r.IsAssignedTo(actor.ID)
	}
	return false
}
