package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"roadside/internal/request/domain"
	"roadside/internal/shared/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RequestPgRepository — PostgreSQL репозиторий заявок.
// Каждый переход — один UPDATE ... WHERE <предусловие> RETURNING.
type RequestPgRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewRequestPgRepository создает новый экземпляр репозитория
func NewRequestPgRepository(pool *pgxpool.Pool, log *logger.Logger) *RequestPgRepository {
	return &RequestPgRepository{pool: pool, log: log}
}

var columns = []string{
	"id", "requester_id", "worker_id", "service_type", "description", "location",
	"status", "created_at", "updated_at", "completed_at", "cancelled_at", "cancelled_by",
	"price::text", "rating::int", "review",
}

// cols returns the select list qualified by alias.
func cols(alias string) string {
	if alias == "" {
		return strings.Join(columns, ", ")
	}
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

func scanRequest(row pgx.Row, extra ...any) (*domain.ServiceRequest, error) {
	var (
		r        domain.ServiceRequest
		svcType  string
		status   string
		location []byte
		price    *string
	)
	dest := []any{
		&r.ID, &r.RequesterID, &r.WorkerID, &svcType, &r.Description, &location,
		&status, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt, &r.CancelledAt, &r.CancelledBy,
		&price, &r.Rating, &r.Review,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	r.ServiceType = domain.ServiceType(svcType)
	r.Status = domain.Status(status)
	if err := json.Unmarshal(location, &r.Location); err != nil {
		return nil, fmt.Errorf("decode location of %s: %w", r.ID, err)
	}
	if price != nil {
		p, err := decimal.NewFromString(*price)
		if err != nil {
			return nil, fmt.Errorf("decode price of %s: %w", r.ID, err)
		}
		r.Price = &p
	}
	normalizeTimes(&r)
	return &r, nil
}

func normalizeTimes(r *domain.ServiceRequest) {
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if r.CompletedAt != nil {
		t := r.CompletedAt.UTC()
		r.CompletedAt = &t
	}
	if r.CancelledAt != nil {
		t := r.CancelledAt.UTC()
		r.CancelledAt = &t
	}
}

// Create вставляет новую заявку
func (r *RequestPgRepository) Create(ctx context.Context, req *domain.ServiceRequest) error {
	loc, err := json.Marshal(req.Location)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}

	query := `
		INSERT INTO service_requests (
			id, requester_id, service_type, description, location, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::jsonb, 'pending', $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		req.ID,
		req.RequesterID,
		string(req.ServiceType),
		req.Description,
		string(loc),
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logFailure("db_create_request_failed", req.ID, err)
		return classify("create", req.ID, true, err)
	}
	return nil
}

// FindByID возвращает заявку по ID
func (r *RequestPgRepository) FindByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	query := `SELECT ` + cols("") + ` FROM service_requests WHERE id = $1`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		r.logFailure("db_find_request_failed", id, err)
		return nil, classify("find", id, false, err)
	}
	return req, nil
}

// ListAvailable — pending заявки, новые первыми
func (r *RequestPgRepository) ListAvailable(ctx context.Context, limit int) ([]*domain.ServiceRequest, error) {
	query := `
		SELECT ` + cols("") + `
		FROM service_requests
		WHERE status = 'pending'
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	return r.query(ctx, "list_available", query, limit)
}

// ListForRequester — заявки клиента
func (r *RequestPgRepository) ListForRequester(ctx context.Context, requesterID string, statuses []domain.Status) ([]*domain.ServiceRequest, error) {
	query := `
		SELECT ` + cols("") + `
		FROM service_requests
		WHERE requester_id = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY created_at DESC, id DESC
	`
	return r.query(ctx, "list_for_requester", query, requesterID, statusStrings(statuses))
}

// ListForWorker — заявки, назначенные исполнителю
func (r *RequestPgRepository) ListForWorker(ctx context.Context, workerID string, statuses []domain.Status) ([]*domain.ServiceRequest, error) {
	query := `
		SELECT ` + cols("") + `
		FROM service_requests
		WHERE worker_id = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY created_at DESC, id DESC
	`
	return r.query(ctx, "list_for_worker", query, workerID, statusStrings(statuses))
}

func (r *RequestPgRepository) query(ctx context.Context, op, query string, args ...any) ([]*domain.ServiceRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logFailure("db_"+op+"_failed", "", err)
		return nil, classify(op, "", false, err)
	}
	defer rows.Close()

	out := make([]*domain.ServiceRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", op, err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		r.logFailure("db_"+op+"_failed", "", err)
		return nil, classify(op, "", false, err)
	}
	return out, nil
}

// Accept — атомарно: pending → accepted. Ноль строк = гонка проиграна или статус уже другой.
func (r *RequestPgRepository) Accept(ctx context.Context, id, workerID string, now time.Time) (*domain.ServiceRequest, error) {
	query := `
		UPDATE service_requests
		SET status = 'accepted', worker_id = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + cols("")

	return r.transition(ctx, "accept", id, domain.ExpectAcceptable, query, id, workerID, now)
}

// Complete — accepted → completed, только для назначенного исполнителя
func (r *RequestPgRepository) Complete(ctx context.Context, id, workerID string, price *decimal.Decimal, now time.Time) (*domain.ServiceRequest, error) {
	query := `
		UPDATE service_requests
		SET status = 'completed', completed_at = $3, updated_at = $3,
		    price = COALESCE($4::text::numeric, price)
		WHERE id = $1 AND worker_id = $2 AND status = 'accepted'
		RETURNING ` + cols("")

	return r.transition(ctx, "complete", id, domain.ExpectCompletable, query, id, workerID, now, priceArg(price))
}

// Cancel — автор отменяет pending/accepted заявку. CTE блокирует строку и
// возвращает прежнего исполнителя для уведомления.
func (r *RequestPgRepository) Cancel(ctx context.Context, id, requesterID string, now time.Time) (*domain.Cancellation, error) {
	query := `
		WITH prev AS (
			SELECT id, worker_id FROM service_requests WHERE id = $1 FOR UPDATE
		)
		UPDATE service_requests s
		SET status = 'cancelled', worker_id = NULL, cancelled_at = $3, cancelled_by = $2, updated_at = $3
		FROM prev
		WHERE s.id = prev.id AND s.requester_id = $2 AND s.status IN ('pending', 'accepted')
		RETURNING ` + cols("s") + `, prev.worker_id`

	var prevWorker *string
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id, requesterID, now), &prevWorker)
	if err != nil {
		return nil, r.transitionError("cancel", id, domain.ExpectCancellable, err)
	}
	return &domain.Cancellation{Request: req, PreviousWorkerID: prevWorker}, nil
}

// Rate — один раз, только автор, только completed
func (r *RequestPgRepository) Rate(ctx context.Context, id, requesterID string, rating int, review *string, now time.Time) (*domain.ServiceRequest, error) {
	query := `
		UPDATE service_requests
		SET rating = $3, review = $4, updated_at = $5
		WHERE id = $1 AND requester_id = $2 AND status = 'completed' AND rating IS NULL
		RETURNING ` + cols("")

	return r.transition(ctx, "rate", id, domain.ExpectRateable, query, id, requesterID, rating, review, now)
}

func (r *RequestPgRepository) transition(ctx context.Context, op, id, expected, query string, args ...any) (*domain.ServiceRequest, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, r.transitionError(op, id, expected, err)
	}
	return req, nil
}

func (r *RequestPgRepository) transitionError(op, id, expected string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.ConflictError{RequestID: id, Op: op, Expected: expected}
	}
	r.logFailure("db_"+op+"_request_failed", id, err)
	return classify(op, id, true, err)
}

func (r *RequestPgRepository) logFailure(action, id string, err error) {
	r.log.Error(logger.Entry{
		Action:           action,
		Message:          err.Error(),
		ServiceRequestID: id,
		Error:            &logger.ErrObj{Msg: err.Error()},
	})
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func priceArg(p *decimal.Decimal) *string {
	if p == nil {
		return nil
	}
	s := p.StringFixed(2)
	return &s
}
