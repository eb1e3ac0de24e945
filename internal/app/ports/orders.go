package ports

import "context"

// OrderStatusUpdate is the state transition applied to the order service.
type OrderStatusUpdate struct {
	OrderID       string
	Status        string
	TransactionID string
	Amount        string
	Currency      string
	RawData       map[string]any
}

// OrderUpdateResult is the order service's structured outcome.
type OrderUpdateResult struct {
	Success bool
	Message string
}

// OrderService applies order state transitions. Duplicate-transition
// detection is the collaborator's responsibility, not the caller's.
type OrderService interface {
	UpdateStatus(ctx context.Context, update OrderStatusUpdate) (OrderUpdateResult, error)
}
