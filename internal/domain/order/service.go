package order

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/campusbite/campusbite-api/internal/domain/auth"
	"github.com/campusbite/campusbite-api/internal/domain/menu"
	"github.com/campusbite/campusbite-api/internal/msisdn"
)

const maxPickupCodeAttempts = 5

// LineRequest is one cart entry submitted at checkout.
type LineRequest struct {
	FoodItemID string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// CreateRequest is the checkout submission. The cart lives on the client and
// is handed over whole here.
type CreateRequest struct {
	Lines         []LineRequest
	TotalAmount   decimal.Decimal
	PaymentMethod PaymentMethod
	Phone         string
}

// Config holds non-dependency settings for the Service.
type Config struct {
	// RetryAfter is how long an unanswered prompt blocks a new one.
	RetryAfter    time.Duration
	MeterProvider metric.MeterProvider
}

// Service encapsulates the order and payment lifecycle.
type Service struct {
	orders     Repository
	catalog    menu.Repository
	gateway    Gateway
	retryAfter time.Duration
	metrics    *metrics

	now    func() time.Time
	pickup func() string
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	orders Repository,
	catalog menu.Repository,
	gateway Gateway,
	cfg Config,
) (*Service, error) {
	m, err := newMetrics(cfg.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}
	return &Service{
		orders:     orders,
		catalog:    catalog,
		gateway:    gateway,
		retryAfter: cfg.RetryAfter,
		metrics:    m,
		now:        time.Now,
		pickup:     randomPickupCode,
	}, nil
}

// randomPickupCode draws uniformly from [1000, 9999].
func randomPickupCode() string {
	return strconv.Itoa(1000 + rand.IntN(9000))
}

// Create validates the checkout, persists the order with its lines and, for
// mobile money, sends the payment prompt. A prompt failure returns a
// *GatewayError together with the persisted order.
func (s *Service) Create(ctx context.Context, p auth.Principal, req CreateRequest) (*Order, error) {
	if !p.Role.CanPlaceOrders() {
		return nil, ErrForbidden
	}

	lines, total, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	var phone string
	if req.PaymentMethod == PaymentMobileMoney {
		if phone, err = normalizePhone(req.Phone); err != nil {
			return nil, err
		}
	}

	o := &Order{
		ID:            uuid.New().String(),
		StudentID:     p.UserID,
		TotalAmount:   total,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: PaymentPending,
		OrderStatus:   StatusPending,
		Lines:         lines,
	}
	o.PaymentAttempt = AttemptNotRequired
	if o.PaymentMethod == PaymentMobileMoney {
		o.PaymentAttempt = AttemptInitiating
	}

	if err := s.insert(ctx, o); err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	lg.Info("Order created",
		zap.String("payment_method", string(o.PaymentMethod)),
		zap.String("total", o.TotalAmount.StringFixed(2)),
		zap.Int("lines", len(o.Lines)),
	)

	if o.PaymentMethod == PaymentCash {
		return o, nil
	}
	if err := s.prompt(ctx, o, phone); err != nil {
		return o, err
	}
	return o, nil
}

// validate checks the cart and returns the lines with their subtotals.
func (s *Service) validate(ctx context.Context, req CreateRequest) ([]Line, decimal.Decimal, error) {
	if len(req.Lines) == 0 {
		return nil, decimal.Zero, &ValidationError{Field: "items", Err: ErrEmptyItems}
	}
	switch req.PaymentMethod {
	case PaymentCash, PaymentMobileMoney:
	default:
		return nil, decimal.Zero, &ValidationError{Field: "paymentMethod", Reason: "must be CASH or MOBILE_MONEY"}
	}

	lines := make([]Line, len(req.Lines))
	ids := make([]string, 0, len(req.Lines))
	total := decimal.Zero
	for i, l := range req.Lines {
		if l.FoodItemID == "" {
			return nil, decimal.Zero, &ValidationError{Field: "items.id", Reason: "required"}
		}
		if l.Quantity <= 0 {
			return nil, decimal.Zero, &ValidationError{
				Field:  "items.quantity",
				Reason: "must be greater than 0 for item " + l.FoodItemID,
			}
		}
		if !l.UnitPrice.IsPositive() {
			return nil, decimal.Zero, &ValidationError{
				Field:  "items.price",
				Reason: "must be greater than 0 for item " + l.FoodItemID,
			}
		}
		unit := l.UnitPrice.Round(2)
		if !unit.Equal(l.UnitPrice) {
			return nil, decimal.Zero, &ValidationError{
				Field:  "items.price",
				Reason: "must have at most 2 decimal places for item " + l.FoodItemID,
			}
		}
		subtotal := unit.Mul(decimal.NewFromInt(int64(l.Quantity)))
		lines[i] = Line{
			FoodItemID: l.FoodItemID,
			Quantity:   l.Quantity,
			UnitPrice:  unit,
			Subtotal:   subtotal,
		}
		total = total.Add(subtotal)
		ids = append(ids, l.FoodItemID)
	}

	if !req.TotalAmount.Round(2).Equal(total) {
		return nil, decimal.Zero, &ValidationError{
			Field:  "totalAmount",
			Reason: "does not match items (expected " + total.StringFixed(2) + ")",
		}
	}

	items, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get food items")
	}
	byID := make(map[string]menu.FoodItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	for _, id := range ids {
		it, ok := byID[id]
		if !ok {
			return nil, decimal.Zero, &ValidationError{Field: "items.id", Reason: "unknown food item " + id, Err: menu.ErrNotFound}
		}
		if !it.Orderable() {
			return nil, decimal.Zero, &ValidationError{Field: "items.id", Reason: it.Name + " is not available right now"}
		}
	}

	return lines, total, nil
}

// insert persists o, redrawing the pickup code on collision with an active order.
func (s *Service) insert(ctx context.Context, o *Order) error {
	for attempt := 1; ; attempt++ {
		o.PickupCode = s.pickup()
		err := s.orders.Create(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrPickupCodeTaken) || attempt == maxPickupCodeAttempts {
			return errors.Wrap(err, "create order")
		}
		zctx.From(ctx).Debug("Pickup code collision, redrawing", zap.String("pickup_code", o.PickupCode))
	}
}

func normalizePhone(phone string) (string, error) {
	if phone == "" {
		return "", &ValidationError{Field: "phone", Reason: "required for mobile money"}
	}
	canonical, err := msisdn.Normalize(phone)
	if err != nil {
		return "", &ValidationError{Field: "phone", Reason: "must be a Safaricom number like 07XXXXXXXX", Err: err}
	}
	return canonical, nil
}

// Get returns the order if p owns it or manages orders.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.StudentID != p.UserID && !p.Role.CanManageOrders() {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListMine returns the student's orders, newest first.
func (s *Service) ListMine(ctx context.Context, p auth.Principal) ([]Order, error) {
	if !p.Role.CanPlaceOrders() {
		return nil, ErrForbidden
	}
	orders, err := s.orders.ListByStudent(ctx, p.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Cancel lets a student cancel their own order while it is PENDING, or
// CONFIRMED for cash orders. Paid mobile-money orders are refunded at the
// counter instead.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.StudentID != p.UserID {
		return nil, ErrForbidden
	}
	if err := o.CheckTransition(StatusCancelled); err != nil {
		return nil, err
	}

	updated, err := s.orders.UpdateStatus(ctx, o.ID, o.OrderStatus, o.cancellation())
	if err != nil {
		return nil, errors.Wrap(err, "cancel order")
	}

	zctx.From(ctx).Info("Order cancelled by student",
		zap.String("order_id", o.ID),
		zap.String("from", string(o.OrderStatus)),
	)
	return updated, nil
}
