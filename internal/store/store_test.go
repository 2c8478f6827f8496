package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mcelebi/qrtransfer/internal/model"
	"github.com/mcelebi/qrtransfer/internal/store/config"
)

func testStore(t *testing.T) Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("DATABASE_DSN is not set")
	}
	store, err := NewStore(config.Config{DBDsn: dsn})
	require.NoError(t, err)
	return store
}

func TestStoreOrder(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	order := model.Order{
		Guid:          uuid.New(),
		Code:          "ABC-1001",
		CustomerID:    "100001",
		StoreID:       "1",
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
		UserFields: []model.UserField{
			{Key: model.FieldSenderName, Value: "John Doe", StoreID: "1"},
		},
	}
	require.NoError(t, store.InsertOrder(ctx, order))

	dbOrder, err := store.GetOrderByGuid(ctx, order.Guid)
	require.NoError(t, err)
	require.Equal(t, order.Code, dbOrder.Code)
	require.Equal(t, "John Doe", dbOrder.UserField(model.FieldSenderName))

	// updates change statuses and merge new user fields
	order.PaymentStatus = model.PaymentStatusPaid
	order.UserFields = append(order.UserFields,
		model.UserField{Key: model.FieldSenderName, Value: "Somebody Else", StoreID: "1"},
		model.UserField{Key: model.FieldSenderIBAN, Value: "TR120001000100000001234567", StoreID: "1"})
	require.NoError(t, store.UpdateOrder(ctx, order))

	dbOrder, err = store.GetOrderByGuid(ctx, order.Guid)
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusPaid, dbOrder.PaymentStatus)
	// stored keys survive a conflicting merge
	require.Equal(t, "John Doe", dbOrder.UserField(model.FieldSenderName))
	require.Equal(t, "TR120001000100000001234567", dbOrder.UserField(model.FieldSenderIBAN))
}

func TestStoreOrderNotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.GetOrderByGuid(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNoRows)
}

func TestStoreSearchOrders(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	code := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Second)
	older := model.Order{
		Guid:          uuid.New(),
		Code:          code,
		CustomerID:    "100001",
		StoreID:       "1",
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		CreatedAt:     base.Add(-time.Hour),
	}
	newer := older
	newer.Guid = uuid.New()
	newer.CreatedAt = base
	require.NoError(t, store.InsertOrder(ctx, older))
	require.NoError(t, store.InsertOrder(ctx, newer))

	orders, err := store.SearchOrders(ctx, base.Add(-2*time.Hour), model.PaymentStatusPending)
	require.NoError(t, err)

	// creation time ascending
	var seen []uuid.UUID
	last := time.Time{}
	for _, order := range orders {
		require.False(t, order.CreatedAt.Before(last))
		last = order.CreatedAt
		if order.Code == code {
			seen = append(seen, order.Guid)
		}
	}
	require.Equal(t, []uuid.UUID{older.Guid, newer.Guid}, seen)
}

func TestStoreTransaction(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	orderGuid := uuid.New()
	transaction := model.PaymentTransaction{
		OrderGuid: orderGuid,
		Amount:    decimal.RequireFromString("150.50"),
		Status:    model.TransactionStatusPending,
	}
	require.NoError(t, store.InsertTransaction(ctx, transaction))

	dbTransaction, err := store.GetTransactionByOrderGuid(ctx, orderGuid)
	require.NoError(t, err)
	require.True(t, dbTransaction.Amount.Equal(transaction.Amount))
	require.Equal(t, model.TransactionStatusPending, dbTransaction.Status)

	transaction.Status = model.TransactionStatusPaid
	transaction.AuthorizationID = "ABC-1001"
	transaction.AuthorizationCode = "FAST2025031512345"
	transaction.AuthorizationResult = "success"
	require.NoError(t, store.UpdateTransaction(ctx, transaction))

	dbTransaction, err = store.GetTransactionByOrderGuid(ctx, orderGuid)
	require.NoError(t, err)
	require.Equal(t, model.TransactionStatusPaid, dbTransaction.Status)
	require.Equal(t, "ABC-1001", dbTransaction.AuthorizationID)
	require.Equal(t, "success", dbTransaction.AuthorizationResult)

	_, err = store.GetTransactionByOrderGuid(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNoRows)
}
