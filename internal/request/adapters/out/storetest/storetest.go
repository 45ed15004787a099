// Package storetest is a conformance suite every RequestRepository adapter runs.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"roadside/internal/request/application/ports/out"
	"roadside/internal/request/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Factory returns an empty repository; cleanup is registered on t.
type Factory func(t *testing.T) out.RequestRepository

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// Run executes every conformance test against the factory.
func Run(t *testing.T, newRepo Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, out.RequestRepository)
	}{
		{"ScenarioA_Create", testScenarioACreate},
		{"ScenarioB_AcceptThenConflict", testScenarioBAccept},
		{"ScenarioC_CompleteTwice", testScenarioCComplete},
		{"ScenarioD_WrongAssignee", testScenarioDWrongAssignee},
		{"ConcurrentAcceptHasOneWinner", testAcceptRace},
		{"TerminalStatesAreFinal", testMonotonic},
		{"CancelFromAccepted", testCancelFromAccepted},
		{"CancelOnlyByRequester", testCancelByStranger},
		{"RateOnceAfterCompletion", testRate},
		{"ListsNewestFirst", testListOrdering},
		{"MissingRequest", testMissing},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newRepo(t))
		})
	}
}

func strp(s string) *string { return &s }

func newRequest(t *testing.T, repo out.RequestRepository, requester string, at time.Time) *domain.ServiceRequest {
	t.Helper()
	r := domain.NewServiceRequest(uuid.NewString(), requester, domain.NewRequestInput{
		ServiceType: string(domain.ServiceTowing),
		Description: strp("car won't start"),
		Location: domain.Location{
			Address:     "123 Main St",
			City:        "Springfield",
			VehicleInfo: "2012 Civic",
			Coordinates: &domain.Coordinates{Lat: 39.78, Lng: -89.65},
		},
	}, at)
	if err := repo.Create(context.Background(), r); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return r
}

func mustFind(t *testing.T, repo out.RequestRepository, id string) *domain.ServiceRequest {
	t.Helper()
	r, err := repo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%s): %v", id, err)
	}
	if err := r.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	return r
}

func wantConflict(t *testing.T, err error, op string) {
	t.Helper()
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("%s: err = %v, want ConflictError", op, err)
	}
	var ce *domain.ConflictError
	if !errors.As(err, &ce) || ce.Op == "" {
		t.Fatalf("%s: err %v is not a *ConflictError", op, err)
	}
}

func testScenarioACreate(t *testing.T, repo out.RequestRepository) {
	r := newRequest(t, repo, "u-1", base)

	got := mustFind(t, repo, r.ID)
	if got.Status != domain.StatusPending || got.WorkerID != nil || got.CompletedAt != nil {
		t.Fatalf("created = %+v", got)
	}
	if got.ServiceType != domain.ServiceTowing || got.Location.Address != "123 Main St" || got.Location.City != "Springfield" {
		t.Fatalf("fields not persisted: %+v", got)
	}
	if got.Location.Coordinates == nil || got.Location.Coordinates.Lat != 39.78 {
		t.Fatalf("coordinates lost: %+v", got.Location)
	}
	if got.Description == nil || *got.Description != "car won't start" {
		t.Fatalf("description lost")
	}
	if !got.CreatedAt.Equal(base) || !got.UpdatedAt.Equal(base) {
		t.Fatalf("timestamps = %v / %v", got.CreatedAt, got.UpdatedAt)
	}
}

func testScenarioBAccept(t *testing.T, repo out.RequestRepository) {
	ctx := context.Background()
	r := newRequest(t, repo, "u-1", base)

	acc, err := repo.Accept(ctx, r.ID, "w-1", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Accept W1: %v", err)
	}
	if acc.Status != domain.StatusAccepted || !acc.IsAssignedTo("w-1") {
		t.Fatalf("accepted = %+v", acc)
	}
	if !acc.UpdatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("updated_at = %v", acc.UpdatedAt)
	}

	_, err = repo.Accept(ctx, r.ID, "w-2", base.Add(2*time.Minute))
	wantConflict(t, err, "Accept W2")

	if got := mustFind(t, repo, r.ID); !got.IsAssignedTo("w-1") {
		t.Fatalf("loser overwrote worker: %+v", got.WorkerID)
	}
}

func testScenarioCComplete(t *testing.T, repo out.RequestRepository) {
	ctx := context.Background()
	r := newRequest(t, repo, "u-1", base)
	if _, err := repo.Accept(ctx, r.ID, "w-1", base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	price := decimal.RequireFromString("89.90")
	done, err := repo.Complete(ctx, r.ID, "w-1", &price, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != domain.StatusCompleted || done.CompletedAt == nil || !done.CompletedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("completed = %+v", done)
	}
	if done.Price == nil || !done.Price.Equal(price) {
		t.Fatalf("price = %v", done.Price)
	}

	_, err = repo.Complete(ctx, r.ID, "w-1", nil, base.Add(2*time.Hour))
	wantConflict(t, err, "second Complete")

	got := mustFind(t, repo, r.ID)
	if !got.CompletedAt.Equal(base.Add(time.Hour)) || !got.UpdatedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("second complete changed the row: %+v", got)
	}
}

func testScenarioDWrongAssignee(t *testing.T, repo out.RequestRepository) {
	ctx := context.Background()
	r := newRequest(t, repo, "u-1", base)
	if _, err := repo.Accept(ctx, r.ID, "w-1", base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	_, err := repo.Complete(ctx, r.ID, "w-2", nil, base.Add(time.Hour))
	wantConflict(t, err, "Complete by W2")

	if got := mustFind(t, repo, r.ID); got.Status != domain.StatusAccepted {
		t.Fatalf("status = %s", got.Status)
	}
}

func testAcceptRace(t *testing.T, repo out.RequestRepository) {
	ctx := context.Background()
	r := newRequest(t, repo, "u-1", base)

	const n = 16
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		mu        sync.Mutex
		winners   []string
		conflicts int
		others    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		worker := fmt.Sprintf("w-%02d", i)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.Accept(ctx, r.ID, worker, base.Add(time.Minute))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, worker)
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if len(winners) != 1 || conflicts != n-1 {
		t.Fatalf("winners = %v, conflicts = %d", winners, conflicts)
	}
	if got := mustFind(t, repo, r.ID); !got.IsAssignedTo(winners[0]) {
		t.Fatalf("final worker %v, winner %s", got.WorkerID, winners[0])
	}
}

func testMonotonic(t *testing.T, repo out.RequestRepository) {
	ctx := context.Background()
	at := base.Add(time.Hour)

	completed := newRequest(t, repo, "u-1", base)
	if _, err := repo.Accept(ctx, completed.ID, "w-1", at); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Complete(ctx, completed.ID, "w-1", nil, at); err != nil {
		t.Fatal(err)
	}
	cancelled := newRequest(t, repo, "u-1", base)
	if _, err := repo.Cancel(ctx, cancelled.ID, "u-1", at); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{completed.ID, cancelled.ID} {
		before := mustFind(t, repo, id)
		_, err := repo.Accept(ctx, id, "w-9", at)
		wantConflict(t, err, "accept terminal")
		_, err = repo.Complete(ctx, id, "w-1", nil, at)
		wantConflict(t, err, "complete terminal")
		_, err = repo.Cancel(ctx, id, "u-1", at)
		wantConflict(t, err, "cancel terminal")

		after := mustFind(t, repo, id)
		if after.Status != before.Status || !after.UpdatedAt.Equal(before.UpdatedAt) {
			t.Fatalf("terminal row moved: %s -> %s", before.Status, after.Status)
		}
	}

	// pending cannot skip straight to completed
	p := newRequest(t, repo, "u-1", base)
	_, err := repo.Complete(ctx, p.ID, "w-1", nil, at)
	wantConflict(t, err, "complete pending")
}

func testCancelFromAccepted(t *testing.T, repo out.RequestRepository) {
	ctx := context.Background()
	r := newRequest(t, repo, "u-1", base)
	if _, err := repo.Accept(ctx, r.ID, "w-1", base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	c, err := repo.Cancel(ctx, r.ID, "u-1", base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if c.Request.Status != domain.StatusCancelled || c.Request.WorkerID != nil {
		t.Fatalf("cancelled = %+v", c.Request)
	}
	if c.PreviousWorkerID == nil || *c.PreviousWorkerID != "w-1" {
		t.Fatalf("previous worker = %v", c.PreviousWorkerID)
	}
	if c.Request.CancelledBy == nil || *c.Request.CancelledBy != "u-1" || c.Request.CancelledAt == nil {
		t.Fatalf("cancel metadata = %+v", c.Request)
	}
	mustFind(t, repo, r.ID)

	// worker that was unbound cannot complete anymore
	_, err = repo.Complete(ctx, r.ID, "w-1", nil, base.Add(time.Hour))
	wantConflict(t, err, "complete cancelled")
}

func testCancelByStranger(t *testing.T, repo out.RequestRepository) {
	r := newRequest(t, repo, "u-1", base)
	_, err := repo.Cancel(context.Background(), r.ID, "u-2", base.Add(time.Minute))
	wantConflict(t, err, "cancel by stranger")
	if got := mustFind(t, repo, r.ID); got.Status != domain.StatusPending {
		t.Fatalf("status = %s", got.Status)
	}
}

func testRate(t *testing.T, repo out.RequestRepository) {
	ctx := context.Background()
	r := newRequest(t, repo, "u-1", base)

	_, err := repo.Rate(ctx, r.ID, "u-1", 5, nil, base)
	wantConflict(t, err, "rate pending")

	if _, err := repo.Accept(ctx, r.ID, "w-1", base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Complete(ctx, r.ID, "w-1", nil, base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	_, err = repo.Rate(ctx, r.ID, "u-2", 5, nil, base.Add(2*time.Hour))
	wantConflict(t, err, "rate by stranger")

	rated, err := repo.Rate(ctx, r.ID, "u-1", 4, strp("quick and friendly"), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if rated.Rating == nil || *rated.Rating != 4 || rated.Review == nil || *rated.Review != "quick and friendly" {
		t.Fatalf("rated = %+v", rated)
	}
	if rated.Status != domain.StatusCompleted || !rated.CompletedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("rating changed lifecycle fields: %+v", rated)
	}

	_, err = repo.Rate(ctx, r.ID, "u-1", 1, nil, base.Add(3*time.Hour))
	wantConflict(t, err, "rate twice")
}

func testListOrdering(t *testing.T, repo out.RequestRepository) {
	ctx := context.Background()
	older := newRequest(t, repo, "u-1", base)
	newer := newRequest(t, repo, "u-1", base.Add(time.Minute))
	other := newRequest(t, repo, "u-2", base.Add(2*time.Minute))
	taken := newRequest(t, repo, "u-1", base.Add(3*time.Minute))
	if _, err := repo.Accept(ctx, taken.ID, "w-1", base.Add(4*time.Minute)); err != nil {
		t.Fatal(err)
	}

	avail, err := repo.ListAvailable(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if ids(avail) != ids2(other, newer, older) {
		t.Fatalf("available = %s", ids(avail))
	}

	limited, err := repo.ListAvailable(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if ids(limited) != ids2(other, newer) {
		t.Fatalf("limited = %s", ids(limited))
	}

	mine, err := repo.ListForRequester(ctx, "u-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ids(mine) != ids2(taken, newer, older) {
		t.Fatalf("mine = %s", ids(mine))
	}

	pendingMine, err := repo.ListForRequester(ctx, "u-1", []domain.Status{domain.StatusPending})
	if err != nil {
		t.Fatal(err)
	}
	if ids(pendingMine) != ids2(newer, older) {
		t.Fatalf("pending mine = %s", ids(pendingMine))
	}

	work, err := repo.ListForWorker(ctx, "w-1", []domain.Status{domain.StatusAccepted})
	if err != nil {
		t.Fatal(err)
	}
	if ids(work) != ids2(taken) {
		t.Fatalf("worker list = %s", ids(work))
	}
	none, err := repo.ListForWorker(ctx, "w-2", nil)
	if err != nil || len(none) != 0 {
		t.Fatalf("w-2 list = %v, %v", none, err)
	}
}

func testMissing(t *testing.T, repo out.RequestRepository) {
	ctx := context.Background()
	id := uuid.NewString()
	if _, err := repo.FindByID(ctx, id); !errors.Is(err, domain.ErrRequestNotFound) {
		t.Fatalf("FindByID missing = %v", err)
	}
	_, err := repo.Accept(ctx, id, "w-1", base)
	wantConflict(t, err, "accept missing")
}

func ids(rs []*domain.ServiceRequest) string {
	s := ""
	for _, r := range rs {
		s += r.ID + ","
	}
	return s
}

func ids2(rs ...*domain.ServiceRequest) string { return ids(rs) }
