package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"roadside/internal/request/domain"

	"github.com/shopspring/decimal"
)

// RequestRepository — in-process хранилище. Мьютекс дает ту же атомарность
// условной записи, что и UPDATE ... WHERE в SQL адаптерах.
type RequestRepository struct {
	mu   sync.Mutex
	rows map[string]*domain.ServiceRequest
	seq  map[string]int64 // порядок вставки для стабильной сортировки
	next int64
}

func NewRequestRepository() *RequestRepository {
	return &RequestRepository{
		rows: make(map[string]*domain.ServiceRequest),
		seq:  make(map[string]int64),
	}
}

func (r *RequestRepository) Create(ctx context.Context, req *domain.ServiceRequest) error {
	if err := ctx.Err(); err != nil {
		return &domain.TransportError{Op: "create", Err: err, OutcomeUnknown: true}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[req.ID]; exists {
		return &domain.ConflictError{RequestID: req.ID, Op: "create", Expected: "id is new"}
	}
	row := req.Clone()
	row.Status = domain.StatusPending
	r.rows[row.ID] = row
	r.next++
	r.seq[row.ID] = r.next
	return nil
}

func (r *RequestRepository) FindByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.TransportError{Op: "find", Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return row.Clone(), nil
}

func (r *RequestRepository) ListAvailable(ctx context.Context, limit int) ([]*domain.ServiceRequest, error) {
	return r.list(ctx, "list_available", limit, func(row *domain.ServiceRequest) bool {
		return row.Status == domain.StatusPending
	})
}

func (r *RequestRepository) ListForRequester(ctx context.Context, requesterID string, statuses []domain.Status) ([]*domain.ServiceRequest, error) {
	return r.list(ctx, "list_for_requester", 0, func(row *domain.ServiceRequest) bool {
		return row.RequesterID == requesterID && statusIn(row.Status, statuses)
	})
}

func (r *RequestRepository) ListForWorker(ctx context.Context, workerID string, statuses []domain.Status) ([]*domain.ServiceRequest, error) {
	return r.list(ctx, "list_for_worker", 0, func(row *domain.ServiceRequest) bool {
		return row.IsAssignedTo(workerID) && statusIn(row.Status, statuses)
	})
}

func (r *RequestRepository) list(ctx context.Context, op string, limit int, match func(*domain.ServiceRequest) bool) ([]*domain.ServiceRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.ServiceRequest, 0)
	for _, row := range r.rows {
		if match(row) {
			out = append(out, row.Clone())
		}
	}
	// новые первыми; при равном created_at — позже вставленные первыми
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return r.seq[out[i].ID] > r.seq[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func statusIn(s domain.Status, statuses []domain.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, x := range statuses {
		if x == s {
			return true
		}
	}
	return false
}

// update applies mutate to the row only if cond holds, all under one lock.
func (r *RequestRepository) update(ctx context.Context, op, id, expected string, cond func(*domain.ServiceRequest) bool, mutate func(*domain.ServiceRequest)) (*domain.ServiceRequest, *domain.ServiceRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, &domain.TransportError{Op: op, Err: err, OutcomeUnknown: true}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || !cond(row) {
		return nil, nil, &domain.ConflictError{RequestID: id, Op: op, Expected: expected}
	}
	before := row.Clone()
	mutate(row)
	return row.Clone(), before, nil
}

func (r *RequestRepository) Accept(ctx context.Context, id, workerID string, now time.Time) (*domain.ServiceRequest, error) {
	after, _, err := r.update(ctx, "accept", id, domain.ExpectAcceptable,
		func(row *domain.ServiceRequest) bool { return domain.CanTransition(row.Status, domain.StatusAccepted) },
		func(row *domain.ServiceRequest) {
			w := workerID
			row.Status = domain.StatusAccepted
			row.WorkerID = &w
			row.UpdatedAt = now.UTC()
		})
	return after, err
}

func (r *RequestRepository) Complete(ctx context.Context, id, workerID string, price *decimal.Decimal, now time.Time) (*domain.ServiceRequest, error) {
	after, _, err := r.update(ctx, "complete", id, domain.ExpectCompletable,
		func(row *domain.ServiceRequest) bool {
			return domain.CanTransition(row.Status, domain.StatusCompleted) && row.IsAssignedTo(workerID)
		},
		func(row *domain.ServiceRequest) {
			t := now.UTC()
			row.Status = domain.StatusCompleted
			row.CompletedAt = &t
			row.UpdatedAt = t
			if price != nil {
				p := *price
				row.Price = &p
			}
		})
	return after, err
}

func (r *RequestRepository) Cancel(ctx context.Context, id, requesterID string, now time.Time) (*domain.Cancellation, error) {
	after, before, err := r.update(ctx, "cancel", id, domain.ExpectCancellable,
		func(row *domain.ServiceRequest) bool {
			return row.RequesterID == requesterID && domain.CanTransition(row.Status, domain.StatusCancelled)
		},
		func(row *domain.ServiceRequest) {
			t := now.UTC()
			by := requesterID
			row.Status = domain.StatusCancelled
			row.WorkerID = nil
			row.CancelledAt = &t
			row.CancelledBy = &by
			row.UpdatedAt = t
		})
	if err != nil {
		return nil, err
	}
	return &domain.Cancellation{Request: after, PreviousWorkerID: before.WorkerID}, nil
}

func (r *RequestRepository) Rate(ctx context.Context, id, requesterID string, rating int, review *string, now time.Time) (*domain.ServiceRequest, error) {
	after, _, err := r.update(ctx, "rate", id, domain.ExpectRateable,
		func(row *domain.ServiceRequest) bool {
			return row.RequesterID == requesterID && row.Status == domain.StatusCompleted && row.Rating == nil
		},
		func(row *domain.ServiceRequest) {
			n := rating
			row.Rating = &n
			if review != nil {
				v := *review
				row.Review = &v
			}
			row.UpdatedAt = now.UTC()
		})
	return after, err
}
