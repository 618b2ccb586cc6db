package order

import "github.com/go-faster/errors"

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusCollected Status = "COLLECTED"
	StatusCancelled Status = "CANCELLED"
)

// ActiveStatuses are the states in which an order is still in the kitchen queue.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed, StatusPreparing, StatusReady}

// ParseStatus validates a wire value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusCollected, StatusCancelled:
		return st, nil
	default:
		return "", errors.Errorf("unknown order status %q", s)
	}
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCollected || s == StatusCancelled
}

// next is the happy path; each state has exactly one successor.
var next = map[Status]Status{
	StatusPending:   StatusConfirmed,
	StatusConfirmed: StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusCollected,
}

// CheckTransition returns a *TransitionError unless o may move to status to.
func (o *Order) CheckTransition(to Status) error {
	from := o.OrderStatus
	if from.Terminal() {
		return &TransitionError{From: from, To: to, Reason: "order is closed"}
	}

	if to == StatusCancelled {
		switch {
		case from == StatusPending:
			return nil
		case from == StatusConfirmed && o.PaymentMethod == PaymentCash:
			return nil
		case from == StatusConfirmed:
			return &TransitionError{From: from, To: to, Reason: "order is already paid"}
		default:
			return &TransitionError{From: from, To: to, Reason: "order is already being prepared"}
		}
	}

	if next[from] != to {
		return &TransitionError{From: from, To: to, Reason: "transition not allowed"}
	}
	return nil
}

// cancellation is the update that cancels o. A mobile-money attempt is voided;
// cash was never collected.
func (o *Order) cancellation() StatusUpdate {
	u := StatusUpdate{OrderStatus: StatusCancelled, PaymentStatus: PaymentPending}
	if o.PaymentMethod == PaymentMobileMoney {
		u.PaymentStatus = PaymentFailed
	}
	return u
}
