package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Orders are owned by the storefront; this module only reads and amends them.

type Order struct {
	Guid          uuid.UUID
	Code          string
	CustomerID    string
	StoreID       string
	Status        string
	PaymentStatus string
	CreatedAt     time.Time
	UserFields    []UserField
}

type UserField struct {
	Key     string
	Value   string
	StoreID string
}

const (
	OrderStatusPending   = "PENDING"
	OrderStatusComplete  = "COMPLETE"
	OrderStatusCancelled = "CANCELLED"
)

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusPaid      = "PAID"
	PaymentStatusCancelled = "CANCELLED"
)

// UserField returns the value stored under key, empty string if absent.
func (o *Order) UserField(key string) string {
	for _, f := range o.UserFields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

func (o *Order) HasUserField(key string) bool {
	for _, f := range o.UserFields {
		if f.Key == key {
			return true
		}
	}
	return false
}

// Order user-field keys
const (
	FieldSenderName        = "sender_name"
	FieldSenderIBAN        = "sender_iban"
	FieldSenderBankName    = "sender_bank_name"
	FieldRecipientName     = "recipient_name"
	FieldRecipientBankName = "recipient_bank_name"
	FieldRecipientBranch   = "recipient_branch"
	FieldRecipientIBAN     = "recipient_iban"
	FieldCurrencyCode      = "currency_code"
	FieldQRData            = "qr_data"
	FieldDescription       = "description"
	FieldAmountWords       = "amount_words"
	FieldAmount            = "amount"
	FieldTransactionDate   = "transaction_date"
	FieldTransactionCode   = "transaction_code"
)

// Payment transactions

type PaymentTransaction struct {
	OrderGuid           uuid.UUID
	Amount              decimal.Decimal
	Status              string
	AuthorizationID     string
	AuthorizationCode   string
	AuthorizationResult string
}

const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusPaid      = "PAID"
	TransactionStatusCancelled = "CANCELLED"
)

// PaymentNotice is one scraped bank notification. Built once by a scraper,
// consumed once by the reconciliation endpoint.
type PaymentNotice struct {
	RecipientName     string          `json:"recipient_name"`
	RecipientBankName string          `json:"recipient_bank_name"`
	RecipientBranch   string          `json:"recipient_branch"`
	RecipientIBAN     string          `json:"recipient_iban"`
	CurrencyCode      string          `json:"currency_code"`
	SenderName        string          `json:"sender_name"`
	SenderBankName    string          `json:"sender_bank_name"`
	SenderIBAN        string          `json:"sender_iban"`
	TransactionDate   time.Time       `json:"transaction_date"`
	TransactionCode   string          `json:"transaction_code"`
	Description       string          `json:"description"`
	AmountWords       string          `json:"amount_words"`
	Amount            decimal.Decimal `json:"amount"`
}
