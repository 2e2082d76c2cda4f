// Package store is the pharmacy backend's Postgres repository: catalog
// reads, order creation with price snapshots, guarded status changes and
// the transactional outbox.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Repository struct {
	db *sql.DB
}

func Open(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "pharmacy_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// UpsertUser registers a customer by email and returns its id.
func (r *Repository) UpsertUser(ctx context.Context, email, fullName string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, full_name) VALUES ($1, $2)
		ON CONFLICT (LOWER(email)) DO UPDATE SET full_name = EXCLUDED.full_name
		RETURNING id`, strings.TrimSpace(email), fullName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert user: %w", err)
	}
	return id, nil
}

func (r *Repository) AddMedicine(ctx context.Context, m domain.Medicine) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO medicines (name, price, stock_quantity, image_url)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		m.Name, m.Price, m.Stock, m.ImageURL).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert medicine: %w", err)
	}
	return id, nil
}

func (r *Repository) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, price, stock_quantity, image_url FROM medicines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query medicines: %w", err)
	}
	defer rows.Close()

	meds := []domain.Medicine{}
	for rows.Next() {
		var m domain.Medicine
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.Stock, &m.ImageURL); err != nil {
			return nil, fmt.Errorf("scan medicine row: %w", err)
		}
		meds = append(meds, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return meds, nil
}

type NewOrderItem struct {
	MedicineID int64
	Quantity   int
}

type NewOrder struct {
	UserID          int64
	ShippingAddress string
	Items           []NewOrderItem
}

// CreateOrder stores a Pending order. Unknown medicines are skipped, names
// and prices are copied from the catalog and the total is computed from
// those copies. A line asking for more than the stock is rejected whole.
func (r *Repository) CreateOrder(ctx context.Context, in NewOrder) (*domain.Order, error) {
	if in.UserID <= 0 {
		return nil, ErrUserRequired
	}
	items, err := mergeItems(in.Items)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order := &domain.Order{
		UserID:          in.UserID,
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
		Status:          domain.StatusPending,
		StatusName:      domain.StatusPending.String(),
	}
	err = tx.QueryRowContext(ctx, `SELECT full_name, email FROM users WHERE id = $1`, in.UserID).
		Scan(&order.UserName, &order.OwnerEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidUser
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.MedicineID)
	}
	catalog, err := lockMedicines(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		med, ok := catalog[it.MedicineID]
		if !ok {
			continue
		}
		if it.Quantity > med.Stock {
			return nil, &OversoldError{MedicineID: med.ID, Name: med.Name, Requested: it.Quantity, Available: med.Stock}
		}
		order.Details = append(order.Details, domain.OrderDetail{
			MedicineID:   med.ID,
			MedicineName: med.Name,
			Quantity:     it.Quantity,
			UnitPrice:    med.Price,
		})
	}
	if len(order.Details) == 0 {
		return nil, ErrNoItems
	}
	order.TotalAmount = order.CalculateTotal()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, status_id, shipping_address, total_amount)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		order.UserID, int(order.Status), order.ShippingAddress, order.TotalAmount,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for _, d := range order.Details {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_details (order_id, medicine_id, medicine_name, quantity, price)
			VALUES ($1, $2, $3, $4, $5)`,
			order.ID, d.MedicineID, d.MedicineName, d.Quantity, d.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("insert order detail: %w", err)
		}
	}

	if err := insertEvent(ctx, tx, order.ID, EventOrderCreated, orderCreatedPayload{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Status:      order.StatusName,
		Items:       len(order.Details),
		CreatedAt:   order.CreatedAt,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit order: %w", err)
	}
	return order, nil
}

// Transition moves the order along cmd's edge. The row is locked and the
// update is guarded by the legal source statuses, so two concurrent commands
// cannot both succeed from the same status.
func (r *Repository) Transition(ctx context.Context, cmd domain.Command, orderID int64) (*domain.Order, error) {
	to, ok := domain.Target(cmd)
	if !ok {
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
	sources := domain.Sources(cmd)
	legal := make([]int64, 0, len(sources))
	for _, s := range sources {
		legal = append(legal, int64(s))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx, `SELECT status_id FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	from := domain.StatusFromID(current)
	if _, ok := domain.Transition(cmd, from); !ok {
		return nil, &IllegalTransitionError{Command: cmd, From: from}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status_id = $1, updated_at = NOW()
		WHERE id = $2 AND status_id = ANY($3)`,
		int(to), orderID, pq.Array(legal))
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if err := checkTransitioned(res, cmd, from); err != nil {
		return nil, err
	}

	if err := insertEvent(ctx, tx, orderID, EventOrderStatusChanged, statusChangedPayload{
		OrderID:   orderID,
		Command:   string(cmd),
		From:      from.String(),
		To:        to.String(),
		ChangedAt: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return r.GetOrder(ctx, orderID)
}

// checkTransitioned reports an illegal transition when the guarded update
// matched no row. A driver failure reading the count is returned as is.
func checkTransitioned(res sql.Result, cmd domain.Command, from domain.OrderStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: rows affected: %w", err)
	}
	if n != 1 {
		return &IllegalTransitionError{Command: cmd, From: from}
	}
	return nil
}

const orderColumns = `
	SELECT o.id, o.user_id, u.full_name, u.email, o.shipping_address, o.created_at,
	       o.status_id, s.name, o.total_amount
	FROM orders o
	JOIN users u ON u.id = o.user_id
	JOIN order_statuses s ON s.id = o.status_id`

func (r *Repository) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	list, err := r.queryOrders(ctx, orderColumns+` WHERE o.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrOrderNotFound
	}
	return &list[0], nil
}

func (r *Repository) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return r.queryOrders(ctx, orderColumns+` ORDER BY o.id`)
}

// ListOrdersByEmail returns an empty list for unknown emails.
func (r *Repository) ListOrdersByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	return r.queryOrders(ctx,
		orderColumns+` WHERE LOWER(u.email) = LOWER($1) ORDER BY o.created_at DESC, o.id DESC`,
		strings.TrimSpace(email))
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	index := map[int64]int{}
	for rows.Next() {
		var (
			o        domain.Order
			statusID int
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.UserName, &o.OwnerEmail, &o.ShippingAddress,
			&o.CreatedAt, &statusID, &o.StatusName, &o.TotalAmount); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		o.Status = domain.StatusFromID(statusID)
		o.Details = []domain.OrderDetail{}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	detailRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, medicine_id, medicine_name, quantity, price
		FROM order_details WHERE order_id = ANY($1)
		ORDER BY order_id, medicine_id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query order details: %w", err)
	}
	defer detailRows.Close()

	for detailRows.Next() {
		var (
			orderID int64
			d       domain.OrderDetail
		)
		if err := detailRows.Scan(&orderID, &d.MedicineID, &d.MedicineName, &d.Quantity, &d.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order detail row: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Details = append(orders[i].Details, d)
		}
	}
	if err := detailRows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

type stockedMedicine struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Stock int
}

// lockMedicines reads the requested catalog rows and holds a share lock on
// them until the transaction ends.
func lockMedicines(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]stockedMedicine, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, price, stock_quantity FROM medicines
		WHERE id = ANY($1) FOR SHARE`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query medicines: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]stockedMedicine, len(ids))
	for rows.Next() {
		var m stockedMedicine
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.Stock); err != nil {
			return nil, fmt.Errorf("scan medicine row: %w", err)
		}
		out[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// mergeItems folds repeated medicine ids into one line, keeping first
// appearance order.
func mergeItems(items []NewOrderItem) ([]NewOrderItem, error) {
	out := make([]NewOrderItem, 0, len(items))
	pos := make(map[int64]int, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if i, ok := pos[it.MedicineID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		pos[it.MedicineID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

type orderCreatedPayload struct {
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	Items       int             `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
}

type statusChangedPayload struct {
	OrderID   int64     `json:"order_id"`
	Command   string    `json:"command"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

func insertEvent(ctx context.Context, tx *sql.Tx, orderID int64, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		strconv.FormatInt(orderID, 10), eventType, raw)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
