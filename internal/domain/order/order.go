package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PaymentMethod is fixed when the order is created.
type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "CASH"
	PaymentMobileMoney PaymentMethod = "MOBILE_MONEY"
)

// ParsePaymentMethod accepts the canonical names plus "MPESA", which older
// checkout clients send for mobile money.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch s {
	case string(PaymentCash):
		return PaymentCash, nil
	case string(PaymentMobileMoney), "MPESA":
		return PaymentMobileMoney, nil
	default:
		return "", errors.Errorf("unknown payment method %q", s)
	}
}

// PaymentStatus tracks settlement of the order total.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// PaymentAttempt records how far the mobile-money prompt got, so an order
// left in PENDING after a gateway failure can be retried safely.
type PaymentAttempt string

const (
	AttemptNotRequired  PaymentAttempt = "NOT_REQUIRED"
	AttemptInitiating   PaymentAttempt = "INITIATING"
	AttemptPromptSent   PaymentAttempt = "PROMPT_SENT"
	AttemptPromptFailed PaymentAttempt = "PROMPT_FAILED"
)

// Order is a student's order together with its immutable lines.
type Order struct {
	ID                string
	StudentID         string
	TotalAmount       decimal.Decimal
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	OrderStatus       Status
	PaymentAttempt    PaymentAttempt
	PickupCode        string
	PaymentReceiptRef string
	Lines             []Line
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Line is a single item of an order. UnitPrice is the price the student saw
// when adding the item, not the live catalog price.
type Line struct {
	FoodItemID string
	Quantity   int
	UnitPrice  decimal.Decimal
	Subtotal   decimal.Decimal
}

// Transaction is one mobile-money prompt sent for an order.
type Transaction struct {
	ID                        string
	OrderID                   string
	ProviderRequestID         string
	ProviderMerchantRequestID string
	PayerPhone                string
	Amount                    decimal.Decimal
	ResultCode                *int
	ResultDesc                string
	ReceiptRef                string
	Superseded                bool
	CreatedAt                 time.Time
	ResolvedAt                *time.Time
}

// Resolved reports whether the provider callback for t has been applied.
func (t *Transaction) Resolved() bool {
	return t.ResultCode != nil
}

// Resolution is the provider outcome written to a transaction.
type Resolution struct {
	ResultCode int
	ResultDesc string
	ReceiptRef string
}

// StatusUpdate is the full set of mutable order fields written by a transition.
type StatusUpdate struct {
	OrderStatus   Status
	PaymentStatus PaymentStatus
	// ReceiptRef is left unchanged when empty.
	ReceiptRef string
}

// Repository defines persistence operations for orders and their payment
// transactions.
type Repository interface {
	// Transact runs fn in a database transaction. Repository calls made with
	// the ctx passed to fn join that transaction.
	Transact(ctx context.Context, fn func(ctx context.Context) error) error

	// Create persists the order and all of its lines atomically. It returns
	// ErrPickupCodeTaken when the pickup code clashes with an active order.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// Lock reads the order row with FOR UPDATE; it must run inside Transact.
	Lock(ctx context.Context, id string) (*Order, error)
	ListByStudent(ctx context.Context, studentID string) ([]Order, error)
	ListActive(ctx context.Context) ([]Order, error)

	// UpdateStatus applies u only if the order is still in status from.
	// It returns ErrStaleStatus otherwise.
	UpdateStatus(ctx context.Context, id string, from Status, u StatusUpdate) (*Order, error)
	// ClaimPaymentAttempt moves o to AttemptInitiating if its attempt and
	// updated_at still match what the caller read.
	ClaimPaymentAttempt(ctx context.Context, o *Order) error
	MarkPromptFailed(ctx context.Context, orderID string) error

	// RecordPrompt supersedes earlier unresolved transactions of the order,
	// inserts t and marks the order AttemptPromptSent.
	RecordPrompt(ctx context.Context, t *Transaction) error
	LatestTransaction(ctx context.Context, orderID string) (*Transaction, error)
	// LockTransaction reads a transaction by provider request id with FOR
	// UPDATE; it must run inside Transact.
	LockTransaction(ctx context.Context, providerRequestID string) (*Transaction, error)
	// ResolveTransaction writes r only if the transaction is unresolved and
	// returns ErrAlreadyResolved otherwise.
	ResolveTransaction(ctx context.Context, id string, r Resolution) error
}

// PushRequest asks the gateway to prompt a payer.
type PushRequest struct {
	// Phone is in canonical 254XXXXXXXXX form.
	Phone   string
	Amount  decimal.Decimal
	OrderID string
}

// PushResult carries the provider's correlation identifiers.
type PushResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	CustomerMessage   string
}

// Gateway initiates mobile-money push payments.
type Gateway interface {
	STKPush(ctx context.Context, req PushRequest) (*PushResult, error)
}
