package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusbite/campusbite-api/internal/domain/auth"
)

// prompt sends the push-payment request for o and records the transaction
// the provider callback will be matched against. It is never retried
// automatically: a second request would prompt the payer twice.
func (s *Service) prompt(ctx context.Context, o *Order, phone string) error {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	res, err := s.gateway.STKPush(ctx, PushRequest{
		Phone:   phone,
		Amount:  o.TotalAmount,
		OrderID: o.ID,
	})
	if err != nil {
		s.metrics.prompt(ctx, "failed")
		lg.Warn("Payment prompt failed", zap.Error(err))

		if markErr := s.orders.MarkPromptFailed(ctx, o.ID); markErr != nil {
			lg.Error("Record prompt failure", zap.Error(markErr))
		} else {
			o.PaymentAttempt = AttemptPromptFailed
		}
		return &GatewayError{OrderID: o.ID, PickupCode: o.PickupCode, Err: err}
	}

	t := &Transaction{
		ID:                        uuid.New().String(),
		OrderID:                   o.ID,
		ProviderRequestID:         res.CheckoutRequestID,
		ProviderMerchantRequestID: res.MerchantRequestID,
		PayerPhone:                phone,
		Amount:                    o.TotalAmount.Ceil(),
	}
	if err := s.orders.RecordPrompt(ctx, t); err != nil {
		// The payer got the prompt but its callback cannot be matched.
		lg.Error("Payment prompt sent but not recorded",
			zap.String("checkout_request_id", res.CheckoutRequestID),
			zap.String("merchant_request_id", res.MerchantRequestID),
			zap.Error(err),
		)
		return errors.Wrap(err, "record payment prompt")
	}

	s.metrics.prompt(ctx, "sent")
	o.PaymentAttempt = AttemptPromptSent
	lg.Info("Payment prompt sent", zap.String("checkout_request_id", res.CheckoutRequestID))
	return nil
}

// RetryPayment sends a new prompt for a PENDING mobile-money order whose
// previous attempt failed or went unanswered for longer than RetryAfter.
// An empty phone reuses the number of the previous attempt.
func (s *Service) RetryPayment(ctx context.Context, p auth.Principal, id, phone string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.StudentID != p.UserID {
		return nil, ErrForbidden
	}
	if o.PaymentMethod != PaymentMobileMoney {
		return nil, &TransitionError{From: o.OrderStatus, To: o.OrderStatus, Reason: "cash orders are paid at the counter"}
	}
	if o.OrderStatus != StatusPending || o.PaymentStatus != PaymentPending {
		return nil, &TransitionError{From: o.OrderStatus, To: StatusConfirmed, Reason: "order is no longer awaiting payment"}
	}

	last, err := s.orders.LatestTransaction(ctx, o.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		last = nil
	case err != nil:
		return nil, errors.Wrap(err, "latest transaction")
	}

	switch o.PaymentAttempt {
	case AttemptPromptFailed:
	case AttemptInitiating:
		// Another request is talking to the gateway unless it stalled.
		if s.now().Sub(o.UpdatedAt) < s.retryAfter {
			return nil, ErrPaymentInProgress
		}
	case AttemptPromptSent:
		if last != nil && !last.Resolved() && s.now().Sub(last.CreatedAt) < s.retryAfter {
			return nil, ErrPaymentInProgress
		}
	case AttemptNotRequired:
		return nil, &TransitionError{From: o.OrderStatus, To: StatusConfirmed, Reason: "order does not take mobile money"}
	}

	if phone == "" && last != nil {
		phone = last.PayerPhone
	}
	canonical, err := normalizePhone(phone)
	if err != nil {
		return nil, err
	}

	if err := s.orders.ClaimPaymentAttempt(ctx, o); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return nil, ErrPaymentInProgress
		}
		return nil, errors.Wrap(err, "claim payment attempt")
	}
	o.PaymentAttempt = AttemptInitiating

	if err := s.prompt(ctx, o, canonical); err != nil {
		return o, err
	}
	return o, nil
}
