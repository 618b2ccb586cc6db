package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// ReceiptField is the metadata item carrying the provider receipt number.
const ReceiptField = "MpesaReceiptNumber"

// Callback is the provider's asynchronous result for one prompt.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Metadata          []MetadataItem
}

// MetadataItem is a named value from the callback metadata list. Values are
// kept in their textual form.
type MetadataItem struct {
	Name  string
	Value string
}

// Succeeded reports whether the payer authorized the payment.
func (c Callback) Succeeded() bool {
	return c.ResultCode == 0
}

// Receipt returns the provider receipt number, or "" if absent.
func (c Callback) Receipt() string {
	for _, it := range c.Metadata {
		if it.Name == ReceiptField {
			return it.Value
		}
	}
	return ""
}

// CallbackOutcome describes what a callback did.
type CallbackOutcome string

const (
	OutcomePaid       CallbackOutcome = "paid"
	OutcomeFailed     CallbackOutcome = "failed"
	OutcomeUnmatched  CallbackOutcome = "unmatched"
	OutcomeDuplicate  CallbackOutcome = "duplicate"
	OutcomeSuperseded CallbackOutcome = "superseded"
	// OutcomeLatePayment is money received for an order that was already
	// cancelled or paid; staff must refund it.
	OutcomeLatePayment CallbackOutcome = "late_payment"
	OutcomeIgnored     CallbackOutcome = "ignored"
)

// HandleCallback reconciles a provider callback with its transaction and
// order. The transaction is resolved at most once, so redelivered callbacks
// change nothing. Unmatched callbacks are not errors.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) (CallbackOutcome, error) {
	lg := zctx.From(ctx).With(
		zap.String("checkout_request_id", cb.CheckoutRequestID),
		zap.Int("result_code", cb.ResultCode),
	)

	var outcome CallbackOutcome
	err := s.orders.Transact(ctx, func(ctx context.Context) error {
		t, err := s.orders.LockTransaction(ctx, cb.CheckoutRequestID)
		if errors.Is(err, ErrNotFound) {
			outcome = OutcomeUnmatched
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "lock transaction")
		}
		if t.Resolved() {
			outcome = OutcomeDuplicate
			return nil
		}

		err = s.orders.ResolveTransaction(ctx, t.ID, Resolution{
			ResultCode: cb.ResultCode,
			ResultDesc: cb.ResultDesc,
			ReceiptRef: cb.Receipt(),
		})
		if errors.Is(err, ErrAlreadyResolved) {
			outcome = OutcomeDuplicate
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "resolve transaction")
		}

		o, err := s.orders.Lock(ctx, t.OrderID)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}

		outcome, err = s.applyCallback(ctx, o, t, cb)
		return err
	})
	if err != nil {
		s.metrics.callback(ctx, "error")
		return "", err
	}

	s.metrics.callback(ctx, outcome)
	switch outcome {
	case OutcomeUnmatched:
		lg.Warn("Callback for unknown transaction")
	case OutcomeDuplicate:
		lg.Info("Callback already applied")
	case OutcomeLatePayment:
		lg.Warn("Payment received for an order that cannot take it, refund required",
			zap.String("receipt", cb.Receipt()),
		)
	default:
		lg.Info("Callback applied", zap.String("outcome", string(outcome)))
	}
	return outcome, nil
}

func (s *Service) applyCallback(ctx context.Context, o *Order, t *Transaction, cb Callback) (CallbackOutcome, error) {
	if cb.Succeeded() {
		// Money moved, whichever attempt it came from.
		switch {
		case o.OrderStatus == StatusPending:
			_, err := s.orders.UpdateStatus(ctx, o.ID, o.OrderStatus, StatusUpdate{
				OrderStatus:   StatusConfirmed,
				PaymentStatus: PaymentPaid,
				ReceiptRef:    cb.Receipt(),
			})
			if err != nil {
				return "", errors.Wrap(err, "confirm order")
			}
			return OutcomePaid, nil
		case o.PaymentStatus != PaymentPaid:
			_, err := s.orders.UpdateStatus(ctx, o.ID, o.OrderStatus, StatusUpdate{
				OrderStatus:   o.OrderStatus,
				PaymentStatus: PaymentPaid,
				ReceiptRef:    cb.Receipt(),
			})
			if err != nil {
				return "", errors.Wrap(err, "record late payment")
			}
			return OutcomeLatePayment, nil
		default:
			return OutcomeLatePayment, nil
		}
	}

	if t.Superseded {
		return OutcomeSuperseded, nil
	}
	if o.OrderStatus != StatusPending {
		return OutcomeIgnored, nil
	}
	_, err := s.orders.UpdateStatus(ctx, o.ID, o.OrderStatus, StatusUpdate{
		OrderStatus:   StatusCancelled,
		PaymentStatus: PaymentFailed,
	})
	if err != nil {
		return "", errors.Wrap(err, "cancel unpaid order")
	}
	return OutcomeFailed, nil
}
