package domain

import "errors"

var (
	ErrAmountNotPositive      = errors.New("amount must be positive")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrCategoryRequired       = errors.New("category is required for non-transfer transactions")
)
