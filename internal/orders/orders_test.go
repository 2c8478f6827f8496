package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mcelebi/qrtransfer/internal/model"
	"github.com/mcelebi/qrtransfer/internal/store"
)

type memStore struct {
	orders       map[uuid.UUID]model.Order
	transactions map[uuid.UUID]model.PaymentTransaction
}

func newMemStore() *memStore {
	return &memStore{
		orders:       make(map[uuid.UUID]model.Order),
		transactions: make(map[uuid.UUID]model.PaymentTransaction),
	}
}

func (m *memStore) GetOrderByGuid(_ context.Context, guid uuid.UUID) (model.Order, error) {
	order, ok := m.orders[guid]
	if !ok {
		return model.Order{}, store.ErrNoRows
	}
	return order, nil
}

func (m *memStore) SearchOrders(_ context.Context, _ time.Time, _ string) ([]model.Order, error) {
	return nil, nil
}

func (m *memStore) InsertOrder(_ context.Context, order model.Order) error {
	m.orders[order.Guid] = order
	return nil
}

func (m *memStore) UpdateOrder(_ context.Context, order model.Order) error {
	m.orders[order.Guid] = order
	return nil
}

func (m *memStore) GetTransactionByOrderGuid(_ context.Context, guid uuid.UUID) (model.PaymentTransaction, error) {
	transaction, ok := m.transactions[guid]
	if !ok {
		return model.PaymentTransaction{}, store.ErrNoRows
	}
	return transaction, nil
}

func (m *memStore) InsertTransaction(_ context.Context, transaction model.PaymentTransaction) error {
	m.transactions[transaction.OrderGuid] = transaction
	return nil
}

func (m *memStore) UpdateTransaction(_ context.Context, transaction model.PaymentTransaction) error {
	m.transactions[transaction.OrderGuid] = transaction
	return nil
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	o := NewOrders(ms, zap.NewNop())

	order := model.Order{
		Guid:          uuid.New(),
		Code:          "ABC-1001",
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
	}
	require.NoError(t, ms.InsertOrder(ctx, order))
	require.NoError(t, ms.InsertTransaction(ctx, model.PaymentTransaction{
		OrderGuid: order.Guid,
		Amount:    decimal.RequireFromString("150.00"),
		Status:    model.TransactionStatusPending,
	}))

	require.NoError(t, o.Cancel(ctx, order, true, true))

	require.Equal(t, model.OrderStatusCancelled, ms.orders[order.Guid].Status)
	require.Equal(t, model.PaymentStatusCancelled, ms.orders[order.Guid].PaymentStatus)
	require.Equal(t, model.TransactionStatusCancelled, ms.transactions[order.Guid].Status)
}

func TestCancelWithoutTransaction(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	o := NewOrders(ms, zap.NewNop())

	order := model.Order{
		Guid:   uuid.New(),
		Code:   "ABC-1001",
		Status: model.OrderStatusPending,
	}
	require.NoError(t, ms.InsertOrder(ctx, order))

	// an order that never reached the payment step has no transaction row
	require.NoError(t, o.Cancel(ctx, order, false, false))
	require.Equal(t, model.OrderStatusCancelled, ms.orders[order.Guid].Status)
}

func TestMarkAsPaid(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	o := NewOrders(ms, zap.NewNop())

	order := model.Order{
		Guid:          uuid.New(),
		Code:          "ABC-1001",
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
	}
	require.NoError(t, ms.InsertOrder(ctx, order))

	transaction := model.PaymentTransaction{
		OrderGuid: order.Guid,
		Amount:    decimal.RequireFromString("150.00"),
		Status:    model.TransactionStatusPending,
	}
	require.NoError(t, ms.InsertTransaction(ctx, transaction))

	require.NoError(t, o.MarkAsPaid(ctx, transaction))

	require.Equal(t, model.TransactionStatusPaid, ms.transactions[order.Guid].Status)
	require.Equal(t, model.PaymentStatusPaid, ms.orders[order.Guid].PaymentStatus)
	require.Equal(t, model.OrderStatusPending, ms.orders[order.Guid].Status)
}
