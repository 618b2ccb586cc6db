package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusbite/campusbite-api/internal/domain/order"
)

const (
	orderColumns = `id::text, student_id, total_amount, payment_method, payment_status, order_status,
		payment_attempt, pickup_code, COALESCE(payment_receipt_ref, ''), created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (id, student_id, total_amount, payment_method, payment_status,
			order_status, payment_attempt, pickup_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	createLineSQL = `INSERT INTO order_lines (order_id, line_no, food_item_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	lockOrderSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersByStudentSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE student_id = $1 ORDER BY created_at DESC`

	listActiveOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE order_status = ANY($1) ORDER BY created_at DESC`

	listLinesSQL = `SELECT order_id::text, food_item_id, quantity, unit_price, subtotal
		FROM order_lines WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, line_no`

	updateStatusSQL = `UPDATE orders
		SET order_status = $3,
			payment_status = $4,
			payment_receipt_ref = COALESCE(NULLIF($5, ''), payment_receipt_ref),
			updated_at = clock_timestamp()
		WHERE id = $1 AND order_status = $2
		RETURNING ` + orderColumns

	claimAttemptSQL = `UPDATE orders
		SET payment_attempt = 'INITIATING', updated_at = clock_timestamp()
		WHERE id = $1 AND order_status = 'PENDING' AND payment_attempt = $2 AND updated_at = $3
		RETURNING updated_at`

	markPromptFailedSQL = `UPDATE orders
		SET payment_attempt = 'PROMPT_FAILED', updated_at = clock_timestamp()
		WHERE id = $1 AND payment_attempt = 'INITIATING'`

	markPromptSentSQL = `UPDATE orders
		SET payment_attempt = 'PROMPT_SENT', updated_at = clock_timestamp()
		WHERE id = $1`

	transactionColumns = `id::text, order_id::text, provider_request_id, provider_merchant_request_id,
		payer_phone, amount, result_code, COALESCE(result_desc, ''), COALESCE(receipt_ref, ''),
		superseded, created_at, resolved_at`

	supersedeTransactionsSQL = `UPDATE payment_transactions SET superseded = TRUE
		WHERE order_id = $1 AND result_code IS NULL AND NOT superseded`

	createTransactionSQL = `INSERT INTO payment_transactions (id, order_id, provider_request_id,
			provider_merchant_request_id, payer_phone, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	latestTransactionSQL = `SELECT ` + transactionColumns + ` FROM payment_transactions
		WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`

	lockTransactionSQL = `SELECT ` + transactionColumns + ` FROM payment_transactions
		WHERE provider_request_id = $1 FOR UPDATE`

	resolveTransactionSQL = `UPDATE payment_transactions
		SET result_code = $2, result_desc = $3, receipt_ref = NULLIF($4, ''), resolved_at = now()
		WHERE id = $1 AND result_code IS NULL`
)

// activePickupCodeKey is the partial unique index over pickup codes of
// orders still in the kitchen queue.
const activePickupCodeKey = "orders_active_pickup_code_key"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	transactor
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{transactor: transactor{pool: pool}}
}

// Create persists the order header and its lines in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.Transact(ctx, func(ctx context.Context) error {
		q := r.q(ctx)
		err := q.QueryRow(ctx, createOrderSQL,
			o.ID, o.StudentID, o.TotalAmount, o.PaymentMethod, o.PaymentStatus,
			o.OrderStatus, o.PaymentAttempt, o.PickupCode,
		).Scan(&o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, activePickupCodeKey) {
				return order.ErrPickupCodeTaken
			}
			return errors.Wrapf(err, "insert order %q", o.ID)
		}

		for i, l := range o.Lines {
			if _, err := q.Exec(ctx, createLineSQL,
				o.ID, i+1, l.FoodItemID, l.Quantity, l.UnitPrice, l.Subtotal,
			); err != nil {
				return errors.Wrapf(err, "insert line %d", i+1)
			}
		}
		return nil
	})
}

// Get returns the order with its lines.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderSQL, id)
}

// Lock returns the order with its row locked until the surrounding
// transaction ends.
func (r *OrderRepository) Lock(ctx context.Context, id string) (*order.Order, error) {
	if !inTx(ctx) {
		return nil, errors.New("lock order outside transaction")
	}
	return r.get(ctx, lockOrderSQL, id)
}

func (r *OrderRepository) get(ctx context.Context, sql, id string) (*order.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, order.ErrNotFound
	}

	q := r.q(ctx)
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	orders := []order.Order{o}
	if err := r.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByStudent returns the student's orders, newest first.
func (r *OrderRepository) ListByStudent(ctx context.Context, studentID string) ([]order.Order, error) {
	return r.list(ctx, listOrdersByStudentSQL, studentID)
}

// ListActive returns orders in the kitchen queue, newest first.
func (r *OrderRepository) ListActive(ctx context.Context) ([]order.Order, error) {
	statuses := make([]string, len(order.ActiveStatuses))
	for i, s := range order.ActiveStatuses {
		statuses[i] = string(s)
	}
	return r.list(ctx, listActiveOrdersSQL, statuses)
}

func (r *OrderRepository) list(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := r.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if err := r.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) loadLines(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := r.q(ctx).Query(ctx, listLinesSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list order lines")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			l       order.Line
		)
		if err := rows.Scan(&orderID, &l.FoodItemID, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return errors.Wrap(err, "scan order line")
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "list order lines")
	}
	return nil
}

// UpdateStatus applies u if the order is still in status from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from order.Status, u order.StatusUpdate) (*order.Order, error) {
	rows, err := r.q(ctx).Query(ctx, updateStatusSQL, id, from, u.OrderStatus, u.PaymentStatus, u.ReceiptRef)
	if err != nil {
		return nil, errors.Wrapf(err, "update order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(err, "update order %q", id)
		}
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, order.ErrStaleStatus
	}

	orders := []order.Order{o}
	if err := r.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ClaimPaymentAttempt compares and swaps the attempt marker, using
// updated_at as the version.
func (r *OrderRepository) ClaimPaymentAttempt(ctx context.Context, o *order.Order) error {
	err := r.q(ctx).QueryRow(ctx, claimAttemptSQL, o.ID, o.PaymentAttempt, o.UpdatedAt).Scan(&o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrStaleStatus
		}
		return errors.Wrapf(err, "claim payment attempt %q", o.ID)
	}
	return nil
}

// MarkPromptFailed records that the gateway rejected the prompt.
func (r *OrderRepository) MarkPromptFailed(ctx context.Context, orderID string) error {
	if _, err := r.q(ctx).Exec(ctx, markPromptFailedSQL, orderID); err != nil {
		return errors.Wrapf(err, "mark prompt failed %q", orderID)
	}
	return nil
}

// RecordPrompt stores the transaction for an accepted prompt.
func (r *OrderRepository) RecordPrompt(ctx context.Context, t *order.Transaction) error {
	return r.Transact(ctx, func(ctx context.Context) error {
		q := r.q(ctx)
		if _, err := q.Exec(ctx, supersedeTransactionsSQL, t.OrderID); err != nil {
			return errors.Wrap(err, "supersede transactions")
		}
		err := q.QueryRow(ctx, createTransactionSQL,
			t.ID, t.OrderID, t.ProviderRequestID, t.ProviderMerchantRequestID, t.PayerPhone, t.Amount,
		).Scan(&t.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "insert transaction")
		}
		if _, err := q.Exec(ctx, markPromptSentSQL, t.OrderID); err != nil {
			return errors.Wrap(err, "mark prompt sent")
		}
		return nil
	})
}

// LatestTransaction returns the most recent prompt for the order.
func (r *OrderRepository) LatestTransaction(ctx context.Context, orderID string) (*order.Transaction, error) {
	return r.transaction(ctx, latestTransactionSQL, orderID)
}

// LockTransaction returns the transaction for a provider request with its
// row locked until the surrounding transaction ends.
func (r *OrderRepository) LockTransaction(ctx context.Context, providerRequestID string) (*order.Transaction, error) {
	if !inTx(ctx) {
		return nil, errors.New("lock transaction outside transaction")
	}
	return r.transaction(ctx, lockTransactionSQL, providerRequestID)
}

func (r *OrderRepository) transaction(ctx context.Context, sql, arg string) (*order.Transaction, error) {
	rows, err := r.q(ctx).Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "get transaction")
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTransaction)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "get transaction")
	}
	return &t, nil
}

// ResolveTransaction writes the provider outcome once.
func (r *OrderRepository) ResolveTransaction(ctx context.Context, id string, res order.Resolution) error {
	tag, err := r.q(ctx).Exec(ctx, resolveTransactionSQL, id, res.ResultCode, res.ResultDesc, res.ReceiptRef)
	if err != nil {
		return errors.Wrapf(err, "resolve transaction %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrAlreadyResolved
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.StudentID, &o.TotalAmount, &o.PaymentMethod, &o.PaymentStatus, &o.OrderStatus,
		&o.PaymentAttempt, &o.PickupCode, &o.PaymentReceiptRef, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func scanTransaction(row pgx.CollectableRow) (order.Transaction, error) {
	var t order.Transaction
	err := row.Scan(
		&t.ID, &t.OrderID, &t.ProviderRequestID, &t.ProviderMerchantRequestID,
		&t.PayerPhone, &t.Amount, &t.ResultCode, &t.ResultDesc, &t.ReceiptRef,
		&t.Superseded, &t.CreatedAt, &t.ResolvedAt,
	)
	return t, err
}
