package domain

import "time"

// TransactionType distinguishes money direction; amounts are always positive.
type TransactionType string

const (
	TxIncome   TransactionType = "income"
	TxExpense  TransactionType = "expense"
	TxTransfer TransactionType = "transfer"
)

// TransactionStatus tracks settlement state.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxCancelled TransactionStatus = "cancelled"
	TxRefunded  TransactionStatus = "refunded"
)

// PaymentMethod is a normalized payment channel.
type PaymentMethod string

const (
	PayCash         PaymentMethod = "cash"
	PayCredit       PaymentMethod = "credit_card"
	PayDebit        PaymentMethod = "debit_card"
	PayBankTransfer PaymentMethod = "bank_transfer"
	PayDigital      PaymentMethod = "digital_wallet"
	PayOther        PaymentMethod = "other"
)

// Merchant carries counterparty attribution for a transaction.
type Merchant struct {
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
}

// Transaction is one money movement. Amount is positive; the sign is carried
// by Type. Completed transactions are immutable except for soft tags.
type Transaction struct {
	ID             string            `json:"id" db:"id"`
	UserID         string            `json:"user_id" db:"user_id"`
	Amount         float64           `json:"amount" db:"amount"`
	Type           TransactionType   `json:"type" db:"type"`
	CategoryID     string            `json:"category_id,omitempty" db:"category_id"`
	Description    string            `json:"description" db:"description"`
	Date           time.Time         `json:"date" db:"date"`
	PaymentMethod  PaymentMethod     `json:"payment_method" db:"payment_method"`
	Status         TransactionStatus `json:"status" db:"status"`
	IsRecurring    bool              `json:"is_recurring" db:"is_recurring"`
	SubscriptionID string            `json:"subscription_id,omitempty" db:"subscription_id"`
	Tags           []string          `json:"tags,omitempty"`
	Notes          string            `json:"notes,omitempty" db:"notes"`
	Merchant       Merchant          `json:"merchant"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// Validate checks the amount-sign and category invariants.
func (t *Transaction) Validate() error {
	if t.Amount <= 0 {
		return ErrAmountNotPositive
	}
	switch t.Type {
	case TxIncome, TxExpense, TxTransfer:
	default:
		return ErrInvalidTransactionType
	}
	if t.Type != TxTransfer && t.CategoryID == "" {
		return ErrCategoryRequired
	}
	return nil
}

// SignedAmount returns the cash-flow contribution of the transaction.
func (t *Transaction) SignedAmount() float64 {
	switch t.Type {
	case TxIncome:
		return t.Amount
	case TxExpense:
		return -t.Amount
	default:
		return 0
	}
}

// IsWeekend reports whether the transaction fell on a Saturday or Sunday.
func (t *Transaction) IsWeekend() bool {
	wd := t.Date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
