package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/campusbite/campusbite-api/internal/domain/auth"
)

// UpdateStatus moves an order one step through the kitchen workflow on
// behalf of staff. Collection settles cash payments.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, id string, to Status) (*Order, error) {
	if !p.Role.CanManageOrders() {
		return nil, ErrForbidden
	}

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.CheckTransition(to); err != nil {
		return nil, err
	}

	u := StatusUpdate{OrderStatus: to, PaymentStatus: o.PaymentStatus}
	switch to {
	case StatusConfirmed:
		if o.PaymentMethod == PaymentMobileMoney {
			return nil, &TransitionError{From: o.OrderStatus, To: to, Reason: "awaiting mobile-money confirmation"}
		}
	case StatusCollected:
		u.PaymentStatus = PaymentPaid
	case StatusCancelled:
		u = o.cancellation()
	}

	updated, err := s.orders.UpdateStatus(ctx, o.ID, o.OrderStatus, u)
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}

	lg := zctx.From(ctx)
	lg.Info("Order status updated",
		zap.String("order_id", o.ID),
		zap.String("from", string(o.OrderStatus)),
		zap.String("to", string(to)),
		zap.String("staff_id", p.UserID),
	)
	if to == StatusReady {
		// TODO: notify the student by SMS once an SMS provider is configured.
		lg.Info("Order ready for pickup", zap.String("pickup_code", updated.PickupCode))
	}
	return updated, nil
}

// ListActive returns orders still in the kitchen queue, newest first.
func (s *Service) ListActive(ctx context.Context, p auth.Principal) ([]Order, error) {
	if !p.Role.CanManageOrders() {
		return nil, ErrForbidden
	}
	orders, err := s.orders.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active orders")
	}
	return orders, nil
}
