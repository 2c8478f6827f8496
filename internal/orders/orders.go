// Package orders carries the two commands the reconciliation pipeline
// issues against the external order subsystem: cancel and mark-as-paid.
package orders

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mcelebi/qrtransfer/internal/model"
	"github.com/mcelebi/qrtransfer/internal/store"
)

type Orders interface {
	Cancel(ctx context.Context, order model.Order, notifyCustomer bool, notifyStoreOwner bool) error
	MarkAsPaid(ctx context.Context, transaction model.PaymentTransaction) error
}

type orders struct {
	store  store.Store
	zaplog *zap.Logger
}

func NewOrders(store store.Store, zaplog *zap.Logger) Orders {
	return &orders{store: store, zaplog: zaplog}
}

// Cancel voids the order and its transaction. Notification delivery is the
// storefront's concern; the flags are recorded for it.
func (o *orders) Cancel(ctx context.Context, order model.Order, notifyCustomer bool, notifyStoreOwner bool) error {
	order.Status = model.OrderStatusCancelled
	order.PaymentStatus = model.PaymentStatusCancelled
	if err := o.store.UpdateOrder(ctx, order); err != nil {
		return err
	}

	transaction, err := o.store.GetTransactionByOrderGuid(ctx, order.Guid)
	if err != nil && !errors.Is(err, store.ErrNoRows) {
		return err
	}
	if err == nil {
		transaction.Status = model.TransactionStatusCancelled
		if err := o.store.UpdateTransaction(ctx, transaction); err != nil {
			return err
		}
	}

	o.zaplog.Info("order cancelled",
		zap.String("order", order.Code),
		zap.Bool("notifyCustomer", notifyCustomer),
		zap.Bool("notifyStoreOwner", notifyStoreOwner))
	return nil
}

// MarkAsPaid settles the transaction and flips the order's payment status.
func (o *orders) MarkAsPaid(ctx context.Context, transaction model.PaymentTransaction) error {
	transaction.Status = model.TransactionStatusPaid
	if err := o.store.UpdateTransaction(ctx, transaction); err != nil {
		return err
	}

	order, err := o.store.GetOrderByGuid(ctx, transaction.OrderGuid)
	if err != nil {
		return err
	}
	order.PaymentStatus = model.PaymentStatusPaid
	if err := o.store.UpdateOrder(ctx, order); err != nil {
		return err
	}

	o.zaplog.Info("order marked as paid", zap.String("order", order.Code))
	return nil
}
