package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"
)

type orderRow struct {
	ID         int64          `db:"id"`
	Name       sql.NullString `db:"name"`
	Address    sql.NullString `db:"address"`
	Phone      sql.NullString `db:"phone"`
	Pincode    sql.NullString `db:"pincode"`
	Payment    sql.NullString `db:"payment"`
	GPayNumber sql.NullString `db:"gpay_number"`
	TxnID      sql.NullString `db:"txn_id"`
	Items      sql.NullString `db:"items"`
	Screenshot sql.NullString `db:"screenshot"`
}

// InsertOrder appends an order and sets its ID. Identical orders are stored
// as separate rows.
func (s *Store) InsertOrder(ctx context.Context, order *models.Order) error {
	defer observe("insert", time.Now())

	items := order.Items
	if items == nil {
		items = []models.CartLine{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}

	query := s.db.Rebind(`
		INSERT INTO orders (name, address, phone, pincode, payment, gpay_number, txn_id, items, screenshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + s.dialect.idColumn)

	err = s.db.GetContext(ctx, &order.ID, query,
		order.CustomerName, order.Address, order.Phone, order.Pincode, string(order.PaymentMethod),
		orNA(order.GPayNumber), orNA(order.TransactionID), string(itemsJSON), orNA(order.Screenshot))
	if err != nil {
		return fmt.Errorf("%w: insert order: %w", ErrIOFailure, err)
	}
	return nil
}

// ListOrders returns every stored order in insertion order.
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	defer observe("list", time.Now())

	query := fmt.Sprintf(`
		SELECT %[1]s AS id, name, address, phone, pincode, payment, gpay_number, txn_id, items, screenshot
		FROM orders
		ORDER BY %[1]s`, s.dialect.idColumn)

	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%w: list orders: %w", ErrIOFailure, err)
	}

	orders := make([]models.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, r.toOrder())
	}
	return orders, nil
}

func (r orderRow) toOrder() models.Order {
	o := models.Order{
		ID:            r.ID,
		CustomerName:  r.Name.String,
		Address:       r.Address.String,
		Phone:         r.Phone.String,
		Pincode:       r.Pincode.String,
		PaymentMethod: models.PaymentMethod(r.Payment.String),
		GPayNumber:    naIfNull(r.GPayNumber),
		TransactionID: naIfNull(r.TxnID),
		Screenshot:    naIfNull(r.Screenshot),
		Items:         []models.CartLine{},
	}
	if r.Items.Valid && json.Unmarshal([]byte(r.Items.String), &o.Items) != nil {
		o.Items = []models.CartLine{}
		o.RawItems = r.Items.String
	}
	return o
}

func orNA(s string) string {
	if s == "" {
		return models.NotApplicable
	}
	return s
}

func naIfNull(s sql.NullString) string {
	if !s.Valid || s.String == "" {
		return models.NotApplicable
	}
	return s.String
}

func observe(op string, start time.Time) {
	util.OrderStoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
