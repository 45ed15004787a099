package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"roadside/internal/request/domain"
	"roadside/internal/shared/logger"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// RequestRepository — SQLite хранилище для одиночного узла и dev.
// Одно соединение (SetMaxOpenConns(1)) сериализует записи; переходы
// выполняются тем же UPDATE ... WHERE ... RETURNING, что и в PostgreSQL.
type RequestRepository struct {
	db  *sql.DB
	log *logger.Logger
}

// Open открывает (или создает) файл базы и применяет схему
func Open(ctx context.Context, path string, log *logger.Logger) (*RequestRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`PRAGMA foreign_keys=ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	r := &RequestRepository{db: db, log: log}
	if err := r.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Info(logger.Entry{Action: "sqlite_opened", Message: path})
	return r, nil
}

func (r *RequestRepository) Close() error {
	return r.db.Close()
}

func (r *RequestRepository) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS service_requests (
		id TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL,
		worker_id TEXT,
		service_type TEXT NOT NULL CHECK (service_type IN ('towing','battery','flat-tire','lockout','fuel-delivery','mechanical')),
		description TEXT,
		location TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','accepted','completed','cancelled')),
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER,
		cancelled_at INTEGER,
		cancelled_by TEXT,
		price TEXT,
		rating INTEGER CHECK (rating IS NULL OR rating BETWEEN 1 AND 5),
		review TEXT,
		CHECK ((worker_id IS NOT NULL) = (status IN ('accepted','completed'))),
		CHECK ((completed_at IS NOT NULL) = (status = 'completed')),
		CHECK ((cancelled_at IS NOT NULL) = (status = 'cancelled'))
	);
	CREATE INDEX IF NOT EXISTS idx_sr_status_created ON service_requests(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_sr_requester ON service_requests(requester_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_sr_worker ON service_requests(worker_id, created_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

const selectCols = `id, requester_id, worker_id, service_type, description, location, status,
	created_at, updated_at, completed_at, cancelled_at, cancelled_by, price, rating, review`

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (*domain.ServiceRequest, error) {
	var (
		req                    domain.ServiceRequest
		workerID, description  sql.NullString
		cancelledBy, review    sql.NullString
		price                  sql.NullString
		svcType, status, loc   string
		createdAt, updatedAt   int64
		completedAt, cancelled sql.NullInt64
		rating                 sql.NullInt64
	)
	if err := s.Scan(
		&req.ID, &req.RequesterID, &workerID, &svcType, &description, &loc, &status,
		&createdAt, &updatedAt, &completedAt, &cancelled, &cancelledBy, &price, &rating, &review,
	); err != nil {
		return nil, err
	}

	req.ServiceType = domain.ServiceType(svcType)
	req.Status = domain.Status(status)
	req.WorkerID = nullString(workerID)
	req.Description = nullString(description)
	req.CancelledBy = nullString(cancelledBy)
	req.Review = nullString(review)
	req.CreatedAt = fromNanos(createdAt)
	req.UpdatedAt = fromNanos(updatedAt)
	if completedAt.Valid {
		t := fromNanos(completedAt.Int64)
		req.CompletedAt = &t
	}
	if cancelled.Valid {
		t := fromNanos(cancelled.Int64)
		req.CancelledAt = &t
	}
	if rating.Valid {
		n := int(rating.Int64)
		req.Rating = &n
	}
	if price.Valid {
		p, err := decimal.NewFromString(price.String)
		if err != nil {
			return nil, fmt.Errorf("decode price of %s: %w", req.ID, err)
		}
		req.Price = &p
	}
	if err := json.Unmarshal([]byte(loc), &req.Location); err != nil {
		return nil, fmt.Errorf("decode location of %s: %w", req.ID, err)
	}
	return &req, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func (r *RequestRepository) Create(ctx context.Context, req *domain.ServiceRequest) error {
	loc, err := json.Marshal(req.Location)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO service_requests (id, requester_id, service_type, description, location, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)`,
		req.ID, req.RequesterID, string(req.ServiceType), req.Description, string(loc),
		toNanos(req.CreatedAt), toNanos(req.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ConflictError{RequestID: req.ID, Op: "create", Expected: "id is new"}
		}
		r.logFailure("sqlite_create_request_failed", req.ID, err)
		return classify("create", true, err)
	}
	return nil
}

func (r *RequestRepository) FindByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, `SELECT `+selectCols+` FROM service_requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		r.logFailure("sqlite_find_request_failed", id, err)
		return nil, classify("find", false, err)
	}
	return req, nil
}

func (r *RequestRepository) ListAvailable(ctx context.Context, limit int) ([]*domain.ServiceRequest, error) {
	if limit <= 0 {
		limit = -1 // в SQLite LIMIT -1 = без ограничения
	}
	return r.query(ctx, "list_available", `
		SELECT `+selectCols+` FROM service_requests
		WHERE status = 'pending'
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
}

func (r *RequestRepository) ListForRequester(ctx context.Context, requesterID string, statuses []domain.Status) ([]*domain.ServiceRequest, error) {
	where, args := statusFilter("requester_id = ?", requesterID, statuses)
	return r.query(ctx, "list_for_requester", `
		SELECT `+selectCols+` FROM service_requests
		WHERE `+where+`
		ORDER BY created_at DESC, rowid DESC`, args...)
}

func (r *RequestRepository) ListForWorker(ctx context.Context, workerID string, statuses []domain.Status) ([]*domain.ServiceRequest, error) {
	where, args := statusFilter("worker_id = ?", workerID, statuses)
	return r.query(ctx, "list_for_worker", `
		SELECT `+selectCols+` FROM service_requests
		WHERE `+where+`
		ORDER BY created_at DESC, rowid DESC`, args...)
}

func statusFilter(base string, owner string, statuses []domain.Status) (string, []any) {
	args := []any{owner}
	if len(statuses) == 0 {
		return base, args
	}
	marks := make([]string, len(statuses))
	for i, s := range statuses {
		marks[i] = "?"
		args = append(args, string(s))
	}
	return base + " AND status IN (" + strings.Join(marks, ",") + ")", args
}

func (r *RequestRepository) query(ctx context.Context, op, query string, args ...any) ([]*domain.ServiceRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logFailure("sqlite_"+op+"_failed", "", err)
		return nil, classify(op, false, err)
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
		return nil, classify(op, false, err)
	}
	return out, nil
}

func (r *RequestRepository) Accept(ctx context.Context, id, workerID string, now time.Time) (*domain.ServiceRequest, error) {
	return r.transition(ctx, "accept", id, domain.ExpectAcceptable, `
		UPDATE service_requests
		SET status = 'accepted', worker_id = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
		RETURNING `+selectCols,
		workerID, toNanos(now), id)
}

func (r *RequestRepository) Complete(ctx context.Context, id, workerID string, price *decimal.Decimal, now time.Time) (*domain.ServiceRequest, error) {
	var priceArg any
	if price != nil {
		priceArg = price.StringFixed(2)
	}
	return r.transition(ctx, "complete", id, domain.ExpectCompletable, `
		UPDATE service_requests
		SET status = 'completed', completed_at = ?, updated_at = ?, price = COALESCE(?, price)
		WHERE id = ? AND worker_id = ? AND status = 'accepted'
		RETURNING `+selectCols,
		toNanos(now), toNanos(now), priceArg, id, workerID)
}

// Cancel читает прежнего исполнителя и обновляет строку в одной транзакции;
// решение о переходе принимает только WHERE в UPDATE.
func (r *RequestRepository) Cancel(ctx context.Context, id, requesterID string, now time.Time) (*domain.Cancellation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("cancel", false, err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT worker_id FROM service_requests WHERE id = ?`, id).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, classify("cancel", false, err)
	}

	req, err := scanRequest(tx.QueryRowContext(ctx, `
		UPDATE service_requests
		SET status = 'cancelled', worker_id = NULL, cancelled_at = ?, cancelled_by = ?, updated_at = ?
		WHERE id = ? AND requester_id = ? AND status IN ('pending', 'accepted')
		RETURNING `+selectCols,
		toNanos(now), requesterID, toNanos(now), id, requesterID))
	if err != nil {
		return nil, r.transitionError("cancel", id, domain.ExpectCancellable, err)
	}
	if err := tx.Commit(); err != nil {
		r.logFailure("sqlite_cancel_commit_failed", id, err)
		return nil, classify("cancel", true, err)
	}
	return &domain.Cancellation{Request: req, PreviousWorkerID: nullString(prev)}, nil
}

func (r *RequestRepository) Rate(ctx context.Context, id, requesterID string, rating int, review *string, now time.Time) (*domain.ServiceRequest, error) {
	return r.transition(ctx, "rate", id, domain.ExpectRateable, `
		UPDATE service_requests
		SET rating = ?, review = ?, updated_at = ?
		WHERE id = ? AND requester_id = ? AND status = 'completed' AND rating IS NULL
		RETURNING `+selectCols,
		rating, review, toNanos(now), id, requesterID)
}

func (r *RequestRepository) transition(ctx context.Context, op, id, expected, query string, args ...any) (*domain.ServiceRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, r.transitionError(op, id, expected, err)
	}
	return req, nil
}

func (r *RequestRepository) transitionError(op, id, expected string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.ConflictError{RequestID: id, Op: op, Expected: expected}
	}
	r.logFailure("sqlite_"+op+"_request_failed", id, err)
	return classify(op, true, err)
}

func (r *RequestRepository) logFailure(action, id string, err error) {
	r.log.Error(logger.Entry{
		Action:           action,
		Message:          err.Error(),
		ServiceRequestID: id,
		Error:            &logger.ErrObj{Msg: err.Error()},
	})
}
