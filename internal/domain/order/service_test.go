package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusbite/campusbite-api/internal/domain/auth"
	"github.com/campusbite/campusbite-api/internal/domain/menu"
)

var (
	student = auth.Principal{UserID: "student-1", Role: auth.RoleStudent}
	other   = auth.Principal{UserID: "student-2", Role: auth.RoleStudent}
	staff   = auth.Principal{UserID: "staff-1", Role: auth.RoleStaff}
)

type testEnv struct {
	svc   *Service
	repo  *memRepo
	gw    *mockGateway
	clock time.Time
}

func (e *testEnv) advance(d time.Duration) { e.clock = e.clock.Add(d) }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:  newMemRepo(),
		gw:    &mockGateway{},
		clock: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	env.repo.now = func() time.Time { return env.clock }

	svc, err := NewService(env.repo, newMenuRepo(chapati, beans, samosa), env.gw, Config{
		RetryAfter: 2 * time.Minute,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return env.clock }
	env.svc = svc
	return env
}

func (e *testEnv) order(t *testing.T, id string) *Order {
	t.Helper()
	o, err := e.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

func successCallback(checkoutID, receipt string) Callback {
	return Callback{
		MerchantRequestID: "mr",
		CheckoutRequestID: checkoutID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		Metadata: []MetadataItem{
			{Name: "Amount", Value: "150"},
			{Name: ReceiptField, Value: receipt},
			{Name: "PhoneNumber", Value: "254712345678"},
		},
	}
}

func failureCallback(checkoutID string) Callback {
	return Callback{
		MerchantRequestID: "mr",
		CheckoutRequestID: checkoutID,
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	}
}

func mobileMoneyCart() CreateRequest {
	return CreateRequest{
		Lines:         []LineRequest{line(beans, 1), line(chapati, 1)},
		TotalAmount:   decimal.RequireFromString("149.50"),
		PaymentMethod: PaymentMobileMoney,
		Phone:         "0712345678",
	}
}

// --- Create ---

func TestCreate_Cash(t *testing.T) {
	env := newTestEnv(t)

	o, err := env.svc.Create(context.Background(), student, CreateRequest{
		Lines:         []LineRequest{line(chapati, 2)},
		TotalAmount:   decimal.RequireFromString("40"),
		PaymentMethod: PaymentCash,
	})
	require.NoError(t, err)

	assert.Regexp(t, `^[1-9][0-9]{3}$`, o.PickupCode)
	assert.Equal(t, StatusPending, o.OrderStatus)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, AttemptNotRequired, o.PaymentAttempt)
	assert.Empty(t, env.gw.requests)

	stored := env.order(t, o.ID)
	require.Len(t, stored.Lines, 1)
	assert.True(t, decimal.RequireFromString("40.00").Equal(stored.Lines[0].Subtotal))
	assert.Equal(t, "student-1", stored.StudentID)
}

func TestCreate_LineSubtotalMatchesUnitPrice(t *testing.T) {
	env := newTestEnv(t)

	o, err := env.svc.Create(context.Background(), student, CreateRequest{
		Lines:         []LineRequest{{FoodItemID: beans.ID, Quantity: 3, UnitPrice: decimal.RequireFromString("129.500")}},
		TotalAmount:   decimal.RequireFromString("388.5"),
		PaymentMethod: PaymentCash,
	})
	require.NoError(t, err)

	l := env.order(t, o.ID).Lines[0]
	assert.True(t, l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Equal(l.Subtotal), "subtotal %s", l.Subtotal)
	assert.True(t, decimal.RequireFromString("388.50").Equal(o.TotalAmount))
}

func TestCreate_MobileMoney(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o, err := env.svc.Create(ctx, student, mobileMoneyCart())
	require.NoError(t, err)
	assert.Equal(t, AttemptPromptSent, o.PaymentAttempt)

	require.Len(t, env.gw.requests, 1)
	req := env.gw.requests[0]
	assert.Equal(t, "254712345678", req.Phone)
	assert.Equal(t, o.ID, req.OrderID)

	txs := env.repo.transactions(o.ID)
	require.Len(t, txs, 1)
	assert.True(t, decimal.NewFromInt(150).Equal(txs[0].Amount), "amount %s", txs[0].Amount)
	assert.Equal(t, "ws_CO_1", txs[0].ProviderRequestID)
	assert.Equal(t, "254712345678", txs[0].PayerPhone)

	outcome, err := env.svc.HandleCallback(ctx, successCallback("ws_CO_1", "QK12ABC3DE"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, outcome)

	stored := env.order(t, o.ID)
	assert.Equal(t, StatusConfirmed, stored.OrderStatus)
	assert.Equal(t, PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, "QK12ABC3DE", stored.PaymentReceiptRef)
}

func TestCreate_GatewayFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gw.err = errors.New("invalid access token")

	o, err := env.svc.Create(context.Background(), student, mobileMoneyCart())

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.NotNil(t, o)
	assert.Equal(t, o.ID, gwErr.OrderID)
	assert.Equal(t, o.PickupCode, gwErr.PickupCode)

	stored := env.order(t, o.ID)
	assert.Equal(t, StatusPending, stored.OrderStatus)
	assert.Equal(t, PaymentPending, stored.PaymentStatus)
	assert.Equal(t, AttemptPromptFailed, stored.PaymentAttempt)
	assert.Empty(t, env.repo.transactions(o.ID))
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{
			name:  "UnknownPaymentMethod",
			req:   CreateRequest{Lines: []LineRequest{line(chapati, 1)}, TotalAmount: chapati.Price, PaymentMethod: "CARD"},
			field: "paymentMethod",
		},
		{
			name:  "ZeroQuantity",
			req:   CreateRequest{Lines: []LineRequest{line(chapati, 0)}, TotalAmount: decimal.Zero, PaymentMethod: PaymentCash},
			field: "items.quantity",
		},
		{
			name: "NonPositivePrice",
			req: CreateRequest{
				Lines:         []LineRequest{{FoodItemID: chapati.ID, Quantity: 1, UnitPrice: decimal.Zero}},
				TotalAmount:   decimal.Zero,
				PaymentMethod: PaymentCash,
			},
			field: "items.price",
		},
		{
			name: "SubCentPrice",
			req: CreateRequest{
				Lines:         []LineRequest{{FoodItemID: chapati.ID, Quantity: 3, UnitPrice: decimal.RequireFromString("0.335")}},
				TotalAmount:   decimal.RequireFromString("1.01"),
				PaymentMethod: PaymentCash,
			},
			field: "items.price",
		},
		{
			name:  "TotalMismatch",
			req:   CreateRequest{Lines: []LineRequest{line(chapati, 2)}, TotalAmount: decimal.RequireFromString("30"), PaymentMethod: PaymentCash},
			field: "totalAmount",
		},
		{
			name: "UnknownItem",
			req: CreateRequest{
				Lines:         []LineRequest{{FoodItemID: "f-missing", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
				TotalAmount:   decimal.NewFromInt(10),
				PaymentMethod: PaymentCash,
			},
			field: "items.id",
		},
		{
			name:  "OutOfStock",
			req:   CreateRequest{Lines: []LineRequest{line(samosa, 1)}, TotalAmount: samosa.Price, PaymentMethod: PaymentCash},
			field: "items.id",
		},
		{
			name: "MissingPhone",
			req: CreateRequest{
				Lines:         []LineRequest{line(chapati, 1)},
				TotalAmount:   chapati.Price,
				PaymentMethod: PaymentMobileMoney,
			},
			field: "phone",
		},
		{
			name: "InvalidPhone",
			req: CreateRequest{
				Lines:         []LineRequest{line(chapati, 1)},
				TotalAmount:   chapati.Price,
				PaymentMethod: PaymentMobileMoney,
				Phone:         "12345",
			},
			field: "phone",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			_, err := env.svc.Create(context.Background(), student, tt.req)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Empty(t, env.repo.orders)
			assert.Empty(t, env.gw.requests)
		})
	}
}

func TestCreate_EmptyItems(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Create(context.Background(), student, CreateRequest{PaymentMethod: PaymentCash})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCreate_UnknownItemWrapsNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Create(context.Background(), student, CreateRequest{
		Lines:         []LineRequest{{FoodItemID: "f-missing", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
		TotalAmount:   decimal.NewFromInt(10),
		PaymentMethod: PaymentCash,
	})
	require.ErrorIs(t, err, menu.ErrNotFound)
}

func TestCreate_StaffCannotOrder(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Create(context.Background(), staff, CreateRequest{
		Lines:         []LineRequest{line(chapati, 1)},
		TotalAmount:   chapati.Price,
		PaymentMethod: PaymentCash,
	})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCreate_PickupCodeRedraw(t *testing.T) {
	env := newTestEnv(t)
	env.repo.put(&Order{ID: "busy", StudentID: "x", OrderStatus: StatusPreparing, PickupCode: "1234"})
	env.repo.put(&Order{ID: "done", StudentID: "x", OrderStatus: StatusCollected, PickupCode: "5678"})

	codes := []string{"1234", "1234", "5678"}
	env.svc.pickup = func() string {
		c := codes[0]
		codes = codes[1:]
		return c
	}

	o, err := env.svc.Create(context.Background(), student, CreateRequest{
		Lines:         []LineRequest{line(chapati, 1)},
		TotalAmount:   chapati.Price,
		PaymentMethod: PaymentCash,
	})
	require.NoError(t, err)
	assert.Equal(t, "5678", o.PickupCode)
}

func TestCreate_PickupCodeExhausted(t *testing.T) {
	env := newTestEnv(t)
	env.repo.put(&Order{ID: "busy", StudentID: "x", OrderStatus: StatusPending, PickupCode: "1234"})

	draws := 0
	env.svc.pickup = func() string {
		draws++
		return "1234"
	}

	_, err := env.svc.Create(context.Background(), student, CreateRequest{
		Lines:         []LineRequest{line(chapati, 1)},
		TotalAmount:   chapati.Price,
		PaymentMethod: PaymentCash,
	})
	require.ErrorIs(t, err, ErrPickupCodeTaken)
	assert.Equal(t, maxPickupCodeAttempts, draws)
}

func TestCreate_RepositoryError(t *testing.T) {
	env := newTestEnv(t)
	env.repo.createErr = errors.New("db write failed")

	_, err := env.svc.Create(context.Background(), student, mobileMoneyCart())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Empty(t, env.gw.requests)
}

// --- Callbacks ---

func TestHandleCallback_Failure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o, err := env.svc.Create(ctx, student, mobileMoneyCart())
	require.NoError(t, err)

	outcome, err := env.svc.HandleCallback(ctx, failureCallback("ws_CO_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	stored := env.order(t, o.ID)
	assert.Equal(t, StatusCancelled, stored.OrderStatus)
	assert.Equal(t, PaymentFailed, stored.PaymentStatus)

	txs := env.repo.transactions(o.ID)
	require.Len(t, txs, 1)
	require.NotNil(t, txs[0].ResultCode)
	assert.Equal(t, 1032, *txs[0].ResultCode)
}

func TestHandleCallback_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o, err := env.svc.Create(ctx, student, mobileMoneyCart())
	require.NoError(t, err)

	_, err = env.svc.HandleCallback(ctx, successCallback("ws_CO_1", "QK12ABC3DE"))
	require.NoError(t, err)
	first := env.order(t, o.ID)

	outcome, err := env.svc.HandleCallback(ctx, successCallback("ws_CO_1", "QK99ZZZ9ZZ"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	// A redelivered failure must not undo the payment either.
	outcome, err = env.svc.HandleCallback(ctx, failureCallback("ws_CO_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	assert.Equal(t, first, env.order(t, o.ID))
}

func TestHandleCallback_Unmatched(t *testing.T) {
	env := newTestEnv(t)

	outcome, err := env.svc.HandleCallback(context.Background(), successCallback("ws_CO_unknown", "QK"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, outcome)
}

func TestHandleCallback_LatePaymentAfterCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o, err := env.svc.Create(ctx, student, mobileMoneyCart())
	require.NoError(t, err)
	_, err = env.svc.Cancel(ctx, student, o.ID)
	require.NoError(t, err)

	outcome, err := env.svc.HandleCallback(ctx, successCallback("ws_CO_1", "QK12ABC3DE"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeLatePayment, outcome)

	stored := env.order(t, o.ID)
	assert.Equal(t, StatusCancelled, stored.OrderStatus)
	assert.Equal(t, PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, "QK12ABC3DE", stored.PaymentReceiptRef)
}

func TestReceipt(t *testing.T) {
	cb := Callback{Metadata: []MetadataItem{{Name: "Amount", Value: "1"}}}
	assert.Empty(t, cb.Receipt())
	assert.Equal(t, "QK1", successCallback("x", "QK1").Receipt())
}

// --- Retry ---

func TestRetryPayment_AfterGatewayFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gw.err = errors.New("gateway down")
	o, err := env.svc.Create(ctx, student, mobileMoneyCart())
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)

	env.gw.err = nil
	retried, err := env.svc.RetryPayment(ctx, student, o.ID, "+254 712 345 678")
	require.NoError(t, err)
	assert.Equal(t, AttemptPromptSent, retried.PaymentAttempt)

	txs := env.repo.transactions(o.ID)
	require.Len(t, txs, 1)
	assert.Equal(t, "254712345678", txs[0].PayerPhone)
}

func TestRetryPayment_NoPhoneAfterGatewayFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gw.err = errors.New("gateway down")
	o, _ := env.svc.Create(ctx, student, mobileMoneyCart())
	env.gw.err = nil

	_, err := env.svc.RetryPayment(ctx, student, o.ID, "")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "phone", vErr.Field)
}

func TestRetryPayment_SupersedesUnansweredPrompt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o, err := env.svc.Create(ctx, student, mobileMoneyCart())
	require.NoError(t, err)

	_, err = env.svc.RetryPayment(ctx, student, o.ID, "")
	require.ErrorIs(t, err, ErrPaymentInProgress)

	env.advance(3 * time.Minute)
	_, err = env.svc.RetryPayment(ctx, student, o.ID, "")
	require.NoError(t, err)

	txs := env.repo.transactions(o.ID)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].Superseded)
	assert.False(t, txs[1].Superseded)
	assert.Equal(t, "254712345678", txs[1].PayerPhone)

	// The abandoned prompt failing later must not cancel the order.
	outcome, err := env.svc.HandleCallback(ctx, failureCallback("ws_CO_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuperseded, outcome)
	assert.Equal(t, StatusPending, env.order(t, o.ID).OrderStatus)

	outcome, err = env.svc.HandleCallback(ctx, successCallback("ws_CO_2", "QK2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, outcome)

	stored := env.order(t, o.ID)
	assert.Equal(t, StatusConfirmed, stored.OrderStatus)
	assert.Equal(t, PaymentPaid, stored.PaymentStatus)
}

func TestRetryPayment_Rejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cash, err := env.svc.Create(ctx, student, CreateRequest{
		Lines:         []LineRequest{line(chapati, 1)},
		TotalAmount:   chapati.Price,
		PaymentMethod: PaymentCash,
	})
	require.NoError(t, err)

	_, err = env.svc.RetryPayment(ctx, student, cash.ID, "0712345678")
	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)

	mm, err := env.svc.Create(ctx, student, mobileMoneyCart())
	require.NoError(t, err)

	_, err = env.svc.RetryPayment(ctx, other, mm.ID, "")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.HandleCallback(ctx, successCallback("ws_CO_1", "QK1"))
	require.NoError(t, err)
	_, err = env.svc.RetryPayment(ctx, student, mm.ID, "")
	require.ErrorAs(t, err, &trErr)
	assert.Len(t, env.gw.requests, 1)
}

// --- Cancellation and fulfillment ---

func TestCancel(t *testing.T) {
	tests := []struct {
		from    Status
		method  PaymentMethod
		allowed bool
		payment PaymentStatus
	}{
		{StatusPending, PaymentCash, true, PaymentPending},
		{StatusPending, PaymentMobileMoney, true, PaymentFailed},
		{StatusConfirmed, PaymentCash, true, PaymentPending},
		{StatusConfirmed, PaymentMobileMoney, false, ""},
		{StatusPreparing, PaymentCash, false, ""},
		{StatusReady, PaymentMobileMoney, false, ""},
		{StatusCollected, PaymentCash, false, ""},
		{StatusCancelled, PaymentCash, false, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.method), func(t *testing.T) {
			env := newTestEnv(t)
			paid := PaymentPending
			if tt.method == PaymentMobileMoney && tt.from != StatusPending {
				paid = PaymentPaid
			}
			env.repo.put(&Order{
				ID:            "o1",
				StudentID:     student.UserID,
				TotalAmount:   decimal.NewFromInt(40),
				PaymentMethod: tt.method,
				PaymentStatus: paid,
				OrderStatus:   tt.from,
				PickupCode:    "4321",
			})

			o, err := env.svc.Cancel(context.Background(), student, "o1")
			if !tt.allowed {
				var trErr *TransitionError
				require.ErrorAs(t, err, &trErr)
				assert.Equal(t, tt.from, env.order(t, "o1").OrderStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusCancelled, o.OrderStatus)
			assert.Equal(t, tt.payment, o.PaymentStatus)
		})
	}
}

func TestCancel_NotOwner(t *testing.T) {
	env := newTestEnv(t)
	env.repo.put(&Order{ID: "o1", StudentID: student.UserID, PaymentMethod: PaymentCash, OrderStatus: StatusPending})

	_, err := env.svc.Cancel(context.Background(), other, "o1")
	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, StatusPending, env.order(t, "o1").OrderStatus)
}

func TestUpdateStatus_CashLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o, err := env.svc.Create(ctx, student, CreateRequest{
		Lines:         []LineRequest{line(chapati, 1)},
		TotalAmount:   chapati.Price,
		PaymentMethod: PaymentCash,
	})
	require.NoError(t, err)

	for _, to := range []Status{StatusConfirmed, StatusPreparing, StatusReady} {
		updated, err := env.svc.UpdateStatus(ctx, staff, o.ID, to)
		require.NoError(t, err, to)
		assert.Equal(t, to, updated.OrderStatus)
		assert.Equal(t, PaymentPending, updated.PaymentStatus)
	}

	collected, err := env.svc.UpdateStatus(ctx, staff, o.ID, StatusCollected)
	require.NoError(t, err)
	assert.Equal(t, StatusCollected, collected.OrderStatus)
	assert.Equal(t, PaymentPaid, collected.PaymentStatus)

	// A freed pickup code can be issued again.
	env.svc.pickup = func() string { return o.PickupCode }
	again, err := env.svc.Create(ctx, student, CreateRequest{
		Lines:         []LineRequest{line(chapati, 1)},
		TotalAmount:   chapati.Price,
		PaymentMethod: PaymentCash,
	})
	require.NoError(t, err)
	assert.Equal(t, o.PickupCode, again.PickupCode)
}

func TestUpdateStatus_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		who    auth.Principal
		order  Order
		to     Status
		assert func(t *testing.T, err error)
	}{
		{
			name:  "StudentForbidden",
			who:   student,
			order: Order{PaymentMethod: PaymentCash, OrderStatus: StatusConfirmed},
			to:    StatusPreparing,
			assert: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrForbidden)
			},
		},
		{
			name:  "SkipStep",
			who:   staff,
			order: Order{PaymentMethod: PaymentCash, OrderStatus: StatusConfirmed},
			to:    StatusReady,
			assert: func(t *testing.T, err error) {
				var trErr *TransitionError
				require.ErrorAs(t, err, &trErr)
			},
		},
		{
			name:  "ConfirmUnpaidMobileMoney",
			who:   staff,
			order: Order{PaymentMethod: PaymentMobileMoney, OrderStatus: StatusPending},
			to:    StatusConfirmed,
			assert: func(t *testing.T, err error) {
				var trErr *TransitionError
				require.ErrorAs(t, err, &trErr)
			},
		},
		{
			name:  "Closed",
			who:   staff,
			order: Order{PaymentMethod: PaymentCash, OrderStatus: StatusCollected},
			to:    StatusCancelled,
			assert: func(t *testing.T, err error) {
				var trErr *TransitionError
				require.ErrorAs(t, err, &trErr)
				assert.Equal(t, "order is closed", trErr.Reason)
			},
		},
		{
			name:  "Backwards",
			who:   staff,
			order: Order{PaymentMethod: PaymentCash, OrderStatus: StatusReady},
			to:    StatusPreparing,
			assert: func(t *testing.T, err error) {
				var trErr *TransitionError
				require.ErrorAs(t, err, &trErr)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			o := tt.order
			o.ID = "o1"
			o.StudentID = student.UserID
			o.PaymentStatus = PaymentPending
			env.repo.put(&o)

			_, err := env.svc.UpdateStatus(context.Background(), tt.who, "o1", tt.to)
			tt.assert(t, err)

			stored := env.order(t, "o1")
			assert.Equal(t, tt.order.OrderStatus, stored.OrderStatus)
			assert.Equal(t, PaymentPending, stored.PaymentStatus)
		})
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.UpdateStatus(context.Background(), staff, "missing", StatusConfirmed)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGet_Access(t *testing.T) {
	env := newTestEnv(t)
	env.repo.put(&Order{ID: "o1", StudentID: student.UserID, OrderStatus: StatusPending})

	_, err := env.svc.Get(context.Background(), student, "o1")
	require.NoError(t, err)
	_, err = env.svc.Get(context.Background(), staff, "o1")
	require.NoError(t, err)
	_, err = env.svc.Get(context.Background(), other, "o1")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestListActive(t *testing.T) {
	env := newTestEnv(t)
	env.repo.put(&Order{ID: "a", StudentID: "s", OrderStatus: StatusPreparing})
	env.repo.put(&Order{ID: "b", StudentID: "s", OrderStatus: StatusCollected})
	env.repo.put(&Order{ID: "c", StudentID: "s", OrderStatus: StatusPending})

	orders, err := env.svc.ListActive(context.Background(), staff)
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	_, err = env.svc.ListActive(context.Background(), student)
	require.ErrorIs(t, err, ErrForbidden)
}
