package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mcelebi/qrtransfer/internal/model"
	"github.com/mcelebi/qrtransfer/internal/store/config"
)

type Store interface {
	GetOrderByGuid(ctx context.Context, guid uuid.UUID) (model.Order, error)
	SearchOrders(ctx context.Context, createdFrom time.Time, paymentStatus string) ([]model.Order, error)
	InsertOrder(ctx context.Context, order model.Order) error
	UpdateOrder(ctx context.Context, order model.Order) error
	GetTransactionByOrderGuid(ctx context.Context, guid uuid.UUID) (model.PaymentTransaction, error)
	InsertTransaction(ctx context.Context, transaction model.PaymentTransaction) error
	UpdateTransaction(ctx context.Context, transaction model.PaymentTransaction) error
}

var ErrNoRows = errors.New("no rows")

type store struct {
	database *sql.DB
}

func NewStore(cfg config.Config) (Store, error) {
	db, err := sql.Open("pgx", cfg.DBDsn)
	if err != nil {
		return nil, err
	}

	// Orders. One row per order; statuses change, the rest is immutable here.
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS orders (" +
			" guid UUID PRIMARY KEY," +
			" code VARCHAR (40) NOT NULL," +
			" customer_id VARCHAR (40) NOT NULL," +
			" store_id VARCHAR (40) NOT NULL," +
			" status VARCHAR (20) NOT NULL," +
			" payment_status VARCHAR (20) NOT NULL," +
			" created_at TIMESTAMP NOT NULL" +
			" );")
	if err != nil {
		return nil, err
	}

	// Order user fields: extensible key-value bag. Inserts never overwrite,
	// keys are written at most once per order.
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS order_user_fields (" +
			" order_guid UUID NOT NULL," +
			" key VARCHAR (40) NOT NULL," +
			" value TEXT NOT NULL," +
			" store_id VARCHAR (40) NOT NULL," +
			" PRIMARY KEY (order_guid, key)" +
			" );")
	if err != nil {
		return nil, err
	}

	// Payment transactions, one per order
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS payment_transactions (" +
			" order_guid UUID PRIMARY KEY," +
			" amount NUMERIC (18, 2) NOT NULL," +
			" status VARCHAR (20) NOT NULL," +
			" authorization_id VARCHAR (64) NOT NULL DEFAULT ''," +
			" authorization_code VARCHAR (64) NOT NULL DEFAULT ''," +
			" authorization_result VARCHAR (32) NOT NULL DEFAULT ''" +
			" );")
	if err != nil {
		return nil, err
	}

	return &store{database: db}, nil
}

func (store *store) GetOrderByGuid(ctx context.Context, guid uuid.UUID) (model.Order, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT guid, code, customer_id, store_id, status, payment_status, created_at"+
			" FROM orders"+
			" WHERE guid = $1",
		guid)
	var order model.Order
	err := row.Scan(&order.Guid,
		&order.Code,
		&order.CustomerID,
		&order.StoreID,
		&order.Status,
		&order.PaymentStatus,
		&order.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Order{}, ErrNoRows
		}
		return model.Order{}, err
	}

	order.UserFields, err = store.userFields(ctx, guid)
	if err != nil {
		return model.Order{}, err
	}
	return order, nil
}

func (store *store) SearchOrders(ctx context.Context, createdFrom time.Time, paymentStatus string) ([]model.Order, error) {
	// ascending creation order: callers take the last match so the most
	// recently created order wins
	rows, err := store.database.QueryContext(ctx,
		"SELECT guid, code, customer_id, store_id, status, payment_status, created_at"+
			" FROM orders"+
			" WHERE created_at >= $1"+
			"   AND payment_status = $2"+
			" ORDER BY created_at",
		createdFrom,
		paymentStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var order model.Order
		err := rows.Scan(&order.Guid,
			&order.Code,
			&order.CustomerID,
			&order.StoreID,
			&order.Status,
			&order.PaymentStatus,
			&order.CreatedAt)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		orders[i].UserFields, err = store.userFields(ctx, orders[i].Guid)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (store *store) InsertOrder(ctx context.Context, order model.Order) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO orders (guid, code, customer_id, store_id, status, payment_status, created_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7)",
		order.Guid,
		order.Code,
		order.CustomerID,
		order.StoreID,
		order.Status,
		order.PaymentStatus,
		order.CreatedAt)
	if err != nil {
		return err
	}
	return store.mergeUserFields(ctx, order)
}

func (store *store) UpdateOrder(ctx context.Context, order model.Order) error {
	_, err := store.database.ExecContext(ctx,
		"UPDATE orders"+
			" SET status = $1,"+
			"     payment_status = $2"+
			" WHERE guid = $3",
		order.Status,
		order.PaymentStatus,
		order.Guid)
	if err != nil {
		return err
	}
	return store.mergeUserFields(ctx, order)
}

// mergeUserFields persists any user fields not stored yet. Existing keys
// are left untouched, so a repeated merge is a no-op.
func (store *store) mergeUserFields(ctx context.Context, order model.Order) error {
	for _, field := range order.UserFields {
		_, err := store.database.ExecContext(ctx,
			"INSERT INTO order_user_fields (order_guid, key, value, store_id)"+
				" VALUES ($1, $2, $3, $4)"+
				" ON CONFLICT (order_guid, key) DO NOTHING",
			order.Guid,
			field.Key,
			field.Value,
			field.StoreID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (store *store) userFields(ctx context.Context, guid uuid.UUID) ([]model.UserField, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT key, value, store_id"+
			" FROM order_user_fields"+
			" WHERE order_guid = $1",
		guid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []model.UserField
	for rows.Next() {
		var field model.UserField
		if err := rows.Scan(&field.Key, &field.Value, &field.StoreID); err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, rows.Err()
}

func (store *store) GetTransactionByOrderGuid(ctx context.Context, guid uuid.UUID) (model.PaymentTransaction, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT order_guid, amount, status, authorization_id, authorization_code, authorization_result"+
			" FROM payment_transactions"+
			" WHERE order_guid = $1",
		guid)
	var transaction model.PaymentTransaction
	err := row.Scan(&transaction.OrderGuid,
		&transaction.Amount,
		&transaction.Status,
		&transaction.AuthorizationID,
		&transaction.AuthorizationCode,
		&transaction.AuthorizationResult)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.PaymentTransaction{}, ErrNoRows
		}
		return model.PaymentTransaction{}, err
	}
	return transaction, nil
}

func (store *store) InsertTransaction(ctx context.Context, transaction model.PaymentTransaction) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO payment_transactions (order_guid, amount, status, authorization_id, authorization_code, authorization_result)"+
			" VALUES ($1, $2, $3, $4, $5, $6)",
		transaction.OrderGuid,
		transaction.Amount,
		transaction.Status,
		transaction.AuthorizationID,
		transaction.AuthorizationCode,
		transaction.AuthorizationResult)
	return err
}

func (store *store) UpdateTransaction(ctx context.Context, transaction model.PaymentTransaction) error {
	_, err := store.database.ExecContext(ctx,
		"UPDATE payment_transactions"+
			" SET status = $1,"+
			"     authorization_id = $2,"+
			"     authorization_code = $3,"+
			"     authorization_result = $4"+
			" WHERE order_guid = $5",
		transaction.Status,
		transaction.AuthorizationID,
		transaction.AuthorizationCode,
		transaction.AuthorizationResult,
		transaction.OrderGuid)
	return err
}
