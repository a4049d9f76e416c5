package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/oolio-orders/internal/domain/order"
)

const (
	orderColumns = `id, status, currency, email, note, billing_address, shipping_address,
		subtotal, discount_total, shipping_total, tax_total, grand_total, paid_total, balance_due,
		version, created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT NULLIF($2, 0) OFFSET $3`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $16)
		ON CONFLICT (id) DO NOTHING`

	updateOrderSQL = `UPDATE orders SET
		status = $2, currency = $3, email = $4, note = $5, billing_address = $6, shipping_address = $7,
		subtotal = $8, discount_total = $9, shipping_total = $10, tax_total = $11, grand_total = $12,
		paid_total = $13, balance_due = $14, updated_at = $15, version = version + 1
		WHERE id = $1 AND version = $16`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	deleteItemsSQL        = `DELETE FROM order_items WHERE order_id = $1`
	deleteDiscountsSQL    = `DELETE FROM order_discounts WHERE order_id = $1`
	deleteTransactionsSQL = `DELETE FROM order_transactions WHERE order_id = $1`

	insertItemSQL = `INSERT INTO order_items
		(order_id, id, position, product_id, name, quantity, unit_price, gross, discount, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertDiscountSQL = `INSERT INTO order_discounts
		(order_id, id, position, kind, value, scope, item_id, code, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertTransactionSQL = `INSERT INTO order_transactions
		(order_id, id, position, type, amount, gateway_reference, outcome, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	listItemsSQL = `SELECT order_id, id, product_id, name, quantity, unit_price, gross, discount, total
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	listDiscountsSQL = `SELECT order_id, id, kind, value, scope, item_id, code, amount
		FROM order_discounts WHERE order_id = ANY($1) ORDER BY order_id, position`

	listTransactionsSQL = `SELECT order_id, id, type, amount, gateway_reference, outcome, failure_reason, created_at, updated_at
		FROM order_transactions WHERE order_id = ANY($1) ORDER BY order_id, position`
)

// readTxOptions gives every read one snapshot, so an order row and its
// sub-entity rows always come from the same committed save.
var readTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

var _ order.Store = (*OrderRepository)(nil)

// OrderRepository implements order.Store backed by PostgreSQL. The order row
// carries the version; sub-entity rows are rewritten on every save inside the
// same transaction, keeping their slice position.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// addressDoc is the JSONB shape of an address column.
type addressDoc struct {
	Recipient   string   `json:"recipient"`
	Lines       []string `json:"lines"`
	Locality    string   `json:"locality"`
	Region      string   `json:"region,omitempty"`
	PostalCode  string   `json:"postal_code,omitempty"`
	CountryCode string   `json:"country_code"`
}

func encodeAddress(a *order.Address) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(addressDoc(*a))
}

func decodeAddress(raw []byte) (*order.Address, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var doc addressDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	a := order.Address(doc)
	return &a, nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	err := pgx.BeginTxFunc(ctx, r.pool, readTxOptions, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, getOrderSQL, id)
		if err != nil {
			return errors.Wrapf(err, "get order %q", id)
		}
		if o, err = pgx.CollectExactlyOneRow(rows, scanOrder); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errors.Wrapf(order.ErrNotFound, "order %s", id)
			}
			return errors.Wrapf(err, "get order %q", id)
		}
		orders := []order.Order{o}
		if err := loadChildren(ctx, tx, orders); err != nil {
			return err
		}
		o = orders[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	var orders []order.Order
	err := pgx.BeginTxFunc(ctx, r.pool, readTxOptions, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, listOrdersSQL, string(f.Status), f.Limit, f.Offset)
		if err != nil {
			return errors.Wrap(err, "list orders")
		}
		if orders, err = pgx.CollectRows(rows, scanOrder); err != nil {
			return errors.Wrap(err, "list orders")
		}
		return loadChildren(ctx, tx, orders)
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) Save(ctx context.Context, o *order.Order) (rerr error) {
	billing, err := encodeAddress(o.BillingAddress)
	if err != nil {
		return errors.Wrap(err, "encode billing address")
	}
	shipping, err := encodeAddress(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "encode shipping address")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	t := o.Totals
	args := []any{
		o.ID, string(o.Status), o.Currency, o.Email, o.Note, billing, shipping,
		t.Subtotal, t.DiscountTotal, t.ShippingTotal, t.TaxTotal, t.GrandTotal, t.PaidTotal, t.BalanceDue,
	}
	var tag pgconn.CommandTag
	if o.Version == 0 {
		tag, err = tx.Exec(ctx, insertOrderSQL, append(args, o.CreatedAt, o.UpdatedAt)...)
	} else {
		tag, err = tx.Exec(ctx, updateOrderSQL, append(args, o.UpdatedAt, o.Version)...)
	}
	if err != nil {
		return errors.Wrapf(err, "save order %q", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(order.ErrConflict, "order %s: version %d is stale", o.ID, o.Version)
	}

	if err := replaceChildren(ctx, tx, o); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	o.Version++
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return false, errors.Wrapf(err, "delete order %q", id)
	}
	return tag.RowsAffected() > 0, nil
}

func replaceChildren(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	batch := &pgx.Batch{}
	batch.Queue(deleteItemsSQL, o.ID)
	batch.Queue(deleteDiscountsSQL, o.ID)
	batch.Queue(deleteTransactionsSQL, o.ID)
	for i, it := range o.Items {
		batch.Queue(insertItemSQL, o.ID, it.ID, i, it.ProductID, it.Name, it.Quantity,
			it.UnitPrice, it.Gross, it.Discount, it.Total)
	}
	for i, d := range o.Discounts {
		batch.Queue(insertDiscountSQL, o.ID, d.ID, i, string(d.Kind), d.Value, string(d.Scope),
			d.ItemID, d.Code, d.Amount)
	}
	for i, t := range o.Transactions {
		batch.Queue(insertTransactionSQL, o.ID, t.ID, i, string(t.Type), t.Amount, t.GatewayReference,
			string(t.Outcome), t.FailureReason, t.CreatedAt, t.UpdatedAt)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range batch.Len() {
		if _, err := results.Exec(); err != nil {
			return errors.Wrapf(err, "write sub-entities of order %q", o.ID)
		}
	}
	return results.Close()
}

// loadChildren fills the sub-entities of orders with one batched round trip
// of three queries, whatever the number of orders.
func loadChildren(ctx context.Context, tx pgx.Tx, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}

	batch := &pgx.Batch{}
	batch.Queue(listItemsSQL, ids)
	batch.Queue(listDiscountsSQL, ids)
	batch.Queue(listTransactionsSQL, ids)
	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	items, err := collectByOrder(results, scanItem)
	if err != nil {
		return errors.Wrap(err, "list items")
	}
	discounts, err := collectByOrder(results, scanDiscount)
	if err != nil {
		return errors.Wrap(err, "list discounts")
	}
	transactions, err := collectByOrder(results, scanTransaction)
	if err != nil {
		return errors.Wrap(err, "list transactions")
	}

	// Orders without sub-entities keep nil collections, matching freshly
	// built aggregates.
	for i := range orders {
		id := orders[i].ID
		orders[i].Items = items[id]
		orders[i].Discounts = discounts[id]
		orders[i].Transactions = transactions[id]
	}
	return results.Close()
}

// collectByOrder reads the next batch result and groups its rows by the
// leading order_id column, keeping row order.
func collectByOrder[T any](results pgx.BatchResults, scan func(pgx.CollectableRow) (string, T, error)) (map[string][]T, error) {
	rows, err := results.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byOrder := make(map[string][]T)
	for rows.Next() {
		orderID, v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		byOrder[orderID] = append(byOrder[orderID], v)
	}
	return byOrder, rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                 order.Order
		status            string
		billing, shipping []byte
	)
	t := &o.Totals
	err := row.Scan(
		&o.ID, &status, &o.Currency, &o.Email, &o.Note, &billing, &shipping,
		&t.Subtotal, &t.DiscountTotal, &t.ShippingTotal, &t.TaxTotal, &t.GrandTotal, &t.PaidTotal, &t.BalanceDue,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	o.Status = order.Status(status)
	if o.BillingAddress, err = decodeAddress(billing); err != nil {
		return order.Order{}, errors.Wrap(err, "decode billing address")
	}
	if o.ShippingAddress, err = decodeAddress(shipping); err != nil {
		return order.Order{}, errors.Wrap(err, "decode shipping address")
	}
	return o, nil
}

func scanItem(row pgx.CollectableRow) (string, order.Item, error) {
	var (
		orderID string
		it      order.Item
	)
	err := row.Scan(&orderID, &it.ID, &it.ProductID, &it.Name, &it.Quantity, &it.UnitPrice, &it.Gross, &it.Discount, &it.Total)
	return orderID, it, err
}

func scanDiscount(row pgx.CollectableRow) (string, order.Discount, error) {
	var (
		orderID     string
		d           order.Discount
		kind, scope string
	)
	err := row.Scan(&orderID, &d.ID, &kind, &d.Value, &scope, &d.ItemID, &d.Code, &d.Amount)
	d.Kind, d.Scope = order.DiscountKind(kind), order.DiscountScope(scope)
	return orderID, d, err
}

func scanTransaction(row pgx.CollectableRow) (string, order.Transaction, error) {
	var (
		orderID      string
		t            order.Transaction
		typ, outcome string
	)
	err := row.Scan(&orderID, &t.ID, &typ, &t.Amount, &t.GatewayReference, &outcome, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt)
	t.Type, t.Outcome = order.TransactionType(typ), order.Outcome(outcome)
	return orderID, t, err
}
