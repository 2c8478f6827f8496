package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mcelebi/qrtransfer/internal/fuzzy"
	"github.com/mcelebi/qrtransfer/internal/model"
	"github.com/mcelebi/qrtransfer/internal/orders"
	"github.com/mcelebi/qrtransfer/internal/qrcode"
	"github.com/mcelebi/qrtransfer/internal/service/config"
	"github.com/mcelebi/qrtransfer/internal/store"
)

type Service interface {
	ProcessPayment(ctx context.Context, orderGuid uuid.UUID) (PaymentProcess, error)
	PaymentCallback(ctx context.Context, orderGuid uuid.UUID, action, qrData, senderName string) error
	CompletePayment(ctx context.Context, notice model.PaymentNotice) error
	PaymentInfo() PaymentInfo
	AdditionalFee(total decimal.Decimal) decimal.Decimal
}

// Rejections of the reconciliation algorithm. These are defined outcomes,
// not faults: the handler answers 400 and the notice stays unconsumed.
var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrNoMatchingOrder       = errors.New("no matching pending order")
	ErrOrderNotPending       = errors.New("order is not pending")
	ErrPaymentNotPending     = errors.New("payment is not pending")
	ErrTransactionNotFound   = errors.New("payment transaction not found")
	ErrTransactionNotPending = errors.New("payment transaction is not pending")
	ErrSenderUnknown         = errors.New("order has no stored sender name")
	ErrSenderMismatch        = errors.New("sender name does not match")
)

const (
	// how far back reconciliation searches for pending orders
	searchWindow = 30 * 24 * time.Hour
	// validity window of an issued QR payload
	qrValidity = 30 * 24 * time.Hour

	transactionDateLayout = "02.01.2006 15:04"

	ActionConfirm = "confirm"
)

// PaymentProcess is what the storefront needs to render the QR step.
type PaymentProcess struct {
	OrderGuid   uuid.UUID
	OrderCode   string
	Amount      decimal.Decimal
	QRData      string
	Description string
}

// PaymentInfo is the static payment-method presentation data.
type PaymentInfo struct {
	DescriptionText         string
	AdditionalFee           float64
	AdditionalFeePercentage bool
	DisplayOrder            int
}

type service struct {
	cfg    config.Config
	store  store.Store
	orders orders.Orders
	zaplog *zap.Logger
}

func NewService(cfg config.Config, store store.Store, orders orders.Orders, zaplog *zap.Logger) Service {
	return &service{
		cfg:    cfg,
		store:  store,
		orders: orders,
		zaplog: zaplog,
	}
}

// ProcessPayment builds the QR payload for a pending order's checkout
// redirect. The amount comes from the payment transaction snapshot.
func (s *service) ProcessPayment(ctx context.Context, orderGuid uuid.UUID) (PaymentProcess, error) {
	order, err := s.store.GetOrderByGuid(ctx, orderGuid)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return PaymentProcess{}, ErrOrderNotFound
		}
		return PaymentProcess{}, err
	}
	if order.Status != model.OrderStatusPending {
		return PaymentProcess{}, ErrOrderNotPending
	}
	if order.PaymentStatus != model.PaymentStatusPending {
		return PaymentProcess{}, ErrPaymentNotPending
	}

	transaction, err := s.store.GetTransactionByOrderGuid(ctx, orderGuid)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return PaymentProcess{}, ErrTransactionNotFound
		}
		return PaymentProcess{}, err
	}

	now := time.Now().UTC()
	qrData := qrcode.Generate(qrcode.Request{
		RecipientName: s.cfg.RecipientName,
		RecipientIBAN: s.cfg.RecipientIBAN,
		BankCode:      s.cfg.BankCode,
		Amount:        transaction.Amount.Round(2),
		Created:       now,
		Expiry:        now.Add(qrValidity),
		Dynamic:       s.cfg.Dynamic,
		ReferenceNo:   s.cfg.ReferenceNo,
	})

	return PaymentProcess{
		OrderGuid:   order.Guid,
		OrderCode:   order.Code,
		Amount:      transaction.Amount,
		QRData:      qrData,
		Description: s.cfg.PaymentDescription,
	}, nil
}

// PaymentCallback handles the payer's confirm/cancel choice. Confirm stores
// the QR payload and the announced sender name once; the stored sender name
// is the precondition reconciliation later checks against. Anything other
// than confirm cancels the order quietly.
func (s *service) PaymentCallback(ctx context.Context, orderGuid uuid.UUID, action, qrData, senderName string) error {
	order, err := s.store.GetOrderByGuid(ctx, orderGuid)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return ErrOrderNotFound
		}
		return err
	}
	if order.Status != model.OrderStatusPending {
		return ErrOrderNotPending
	}
	if order.PaymentStatus != model.PaymentStatusPending {
		return ErrPaymentNotPending
	}

	if action != ActionConfirm {
		return s.orders.Cancel(ctx, order, false, false)
	}

	if !order.HasUserField(model.FieldQRData) {
		order.UserFields = append(order.UserFields,
			model.UserField{Key: model.FieldQRData, Value: qrData, StoreID: order.StoreID},
			model.UserField{Key: model.FieldSenderName, Value: senderName, StoreID: order.StoreID})
		return s.store.UpdateOrder(ctx, order)
	}
	return nil
}

// CompletePayment reconciles one scraped bank notice against the pending
// orders. nil means the notice was consumed: either the order was marked
// paid, or the amount disagreed and the order was definitively cancelled.
func (s *service) CompletePayment(ctx context.Context, notice model.PaymentNotice) error {
	searchFrom := time.Now().UTC().Add(-searchWindow)
	candidates, err := s.store.SearchOrders(ctx, searchFrom, model.PaymentStatusPending)
	if err != nil {
		return err
	}

	// candidates come sorted by creation time ascending; keep the last
	// match so the most recently created order wins
	var order *model.Order
	for i := range candidates {
		if fuzzy.Contains(candidates[i].Code, notice.Description) {
			order = &candidates[i]
		}
	}
	if order == nil {
		return ErrNoMatchingOrder
	}
	if order.Status != model.OrderStatusPending {
		return ErrOrderNotPending
	}
	if order.PaymentStatus != model.PaymentStatusPending {
		return ErrPaymentNotPending
	}

	transaction, err := s.store.GetTransactionByOrderGuid(ctx, order.Guid)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return ErrTransactionNotFound
		}
		return err
	}
	if transaction.Status != model.TransactionStatusPending {
		return ErrTransactionNotPending
	}

	// the sender name stored at checkout guards against an unrelated
	// transfer that happens to quote the order code
	senderName := order.UserField(model.FieldSenderName)
	if strings.TrimSpace(senderName) == "" {
		return ErrSenderUnknown
	}
	if !fuzzy.Contains(senderName, notice.SenderName) {
		return ErrSenderMismatch
	}

	mergeNotice(order, notice)

	if !notice.Amount.Round(2).Equal(transaction.Amount.Round(2)) {
		err := s.orders.Cancel(ctx, *order, true, true)
		if err == nil {
			return nil
		}
		// a failed cancel falls through to the paid path, matching the
		// long-standing behavior of this pipeline
		s.zaplog.Warn("cancel on amount mismatch failed, proceeding",
			zap.String("order", order.Code), zap.Error(err))
	}

	transaction.AuthorizationID = order.Code
	transaction.AuthorizationCode = notice.TransactionCode
	transaction.AuthorizationResult = "success"

	if err := s.store.UpdateOrder(ctx, *order); err != nil {
		return err
	}
	if err := s.store.UpdateTransaction(ctx, transaction); err != nil {
		return err
	}
	return s.orders.MarkAsPaid(ctx, transaction)
}

// mergeNotice copies the extracted fields into the order's user fields.
// Populated keys are never overwritten, so replayed notices are no-ops.
func mergeNotice(order *model.Order, notice model.PaymentNotice) {
	merge := func(key, value string) {
		if order.HasUserField(key) {
			return
		}
		order.UserFields = append(order.UserFields,
			model.UserField{Key: key, Value: value, StoreID: order.StoreID})
	}

	merge(model.FieldSenderIBAN, notice.SenderIBAN)
	merge(model.FieldSenderBankName, notice.SenderBankName)
	merge(model.FieldRecipientName, notice.RecipientName)
	merge(model.FieldRecipientBankName, notice.RecipientBankName)
	merge(model.FieldRecipientBranch, notice.RecipientBranch)
	merge(model.FieldRecipientIBAN, notice.RecipientIBAN)
	merge(model.FieldCurrencyCode, notice.CurrencyCode)
	merge(model.FieldDescription, notice.Description)
	merge(model.FieldAmountWords, notice.AmountWords)
	merge(model.FieldAmount, notice.Amount.StringFixed(2))
	merge(model.FieldTransactionDate, notice.TransactionDate.Format(transactionDateLayout))
	merge(model.FieldTransactionCode, notice.TransactionCode)
}

func (s *service) PaymentInfo() PaymentInfo {
	return PaymentInfo{
		DescriptionText:         s.cfg.DescriptionText,
		AdditionalFee:           s.cfg.AdditionalFee,
		AdditionalFeePercentage: s.cfg.AdditionalFeePercentage,
		DisplayOrder:            s.cfg.DisplayOrder,
	}
}

// AdditionalFee computes the payment-method surcharge for an order total,
// either fixed or as a percentage of the total.
func (s *service) AdditionalFee(total decimal.Decimal) decimal.Decimal {
	if s.cfg.AdditionalFee == 0 {
		return decimal.Zero
	}
	fee := decimal.NewFromFloat(s.cfg.AdditionalFee)
	if s.cfg.AdditionalFeePercentage {
		return total.Mul(fee).Div(decimal.NewFromInt(100)).Round(2)
	}
	return fee.Round(2)
}
