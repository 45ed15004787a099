package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceType — категория помощи на дороге
type ServiceType string

const (
	ServiceTowing       ServiceType = "towing"
	ServiceBattery      ServiceType = "battery"
	ServiceFlatTire     ServiceType = "flat-tire"
	ServiceLockout      ServiceType = "lockout"
	ServiceFuelDelivery ServiceType = "fuel-delivery"
	ServiceMechanical   ServiceType = "mechanical"
)

// ServiceTypes lists every accepted service type.
var ServiceTypes = []ServiceType{
	ServiceTowing, ServiceBattery, ServiceFlatTire,
	ServiceLockout, ServiceFuelDelivery, ServiceMechanical,
}

func (t ServiceType) Valid() bool {
	for _, s := range ServiceTypes {
		if s == t {
			return true
		}
	}
	return false
}

// ServiceRequest — центральная сущность: заявка клиента на помощь.
type ServiceRequest struct {
	ID          string           `json:"id"`
	RequesterID string           `json:"requester_id"`
	WorkerID    *string          `json:"worker_id,omitempty"`
	ServiceType ServiceType      `json:"service_type"`
	Description *string          `json:"description,omitempty"`
	Location    Location         `json:"location"`
	Status      Status           `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CancelledAt *time.Time       `json:"cancelled_at,omitempty"`
	CancelledBy *string          `json:"cancelled_by,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Rating      *int             `json:"rating,omitempty"`
	Review      *string          `json:"review,omitempty"`
}

// NewServiceRequest builds a pending request. Input must already be validated.
func NewServiceRequest(id, requesterID string, in NewRequestInput, now time.Time) *ServiceRequest {
	now = now.UTC()
	return &ServiceRequest{
		ID:          id,
		RequesterID: requesterID,
		ServiceType: ServiceType(in.ServiceType),
		Description: in.Description,
		Location:    in.Location.Normalized(),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsAssignedTo reports whether workerID is the bound worker.
func (r *ServiceRequest) IsAssignedTo(workerID string) bool {
	return r.WorkerID != nil && *r.WorkerID == workerID
}

// CheckInvariants returns the first violated lifecycle invariant, nil if the row is consistent.
func (r *ServiceRequest) CheckInvariants() error {
	if !r.Status.Valid() {
		return &InvariantError{RequestID: r.ID, Rule: "status is known"}
	}
	hasWorker := r.WorkerID != nil
	wantWorker := r.Status == StatusAccepted || r.Status == StatusCompleted
	if hasWorker != wantWorker {
		return &InvariantError{RequestID: r.ID, Rule: "worker set iff accepted or completed"}
	}
	if (r.CompletedAt != nil) != (r.Status == StatusCompleted) {
		return &InvariantError{RequestID: r.ID, Rule: "completed_at set iff completed"}
	}
	if (r.CancelledAt != nil) != (r.Status == StatusCancelled) {
		return &InvariantError{RequestID: r.ID, Rule: "cancelled_at set iff cancelled"}
	}
	if r.Rating != nil && r.Status != StatusCompleted {
		return &InvariantError{RequestID: r.ID, Rule: "rating only on completed"}
	}
	if r.UpdatedAt.Before(r.CreatedAt) {
		return &InvariantError{RequestID: r.ID, Rule: "updated_at not before created_at"}
	}
	return nil
}

// Clone returns a deep copy; stores hand out clones so callers cannot mutate shared state.
func (r *ServiceRequest) Clone() *ServiceRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.WorkerID = cloneString(r.WorkerID)
	c.Description = cloneString(r.Description)
	c.CancelledBy = cloneString(r.CancelledBy)
	c.Review = cloneString(r.Review)
	c.Location = r.Location.clone()
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.CancelledAt != nil {
		t := *r.CancelledAt
		c.CancelledAt = &t
	}
	if r.Price != nil {
		p := *r.Price
		c.Price = &p
	}
	if r.Rating != nil {
		n := *r.Rating
		c.Rating = &n
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
