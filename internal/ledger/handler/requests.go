package handler

import (
	"remit/pkg/domain"
	dErrors "remit/pkg/domain-errors"
)

// CreateTransactionRequest funds a new transfer. Value is what the sender
// supplies; anything above amount+fee is returned.
type CreateTransactionRequest struct {
	Recipient domain.AccountID `json:"recipient"`
	Amount    domain.Amount    `json:"amount"`
	Value     domain.Amount    `json:"value"`
}

type BatchVerifyRequest struct {
	Accounts []domain.AccountID `json:"accounts"`
}

type DepositRequest struct {
	Amount domain.Amount `json:"amount"`
}

// FeeRateRequest decodes the rate wider than uint16 so out-of-range values
// reach the ledger and fail as FeeRateTooHigh instead of a decode error.
type FeeRateRequest struct {
	FeeRateBps *int64 `json:"fee_rate_bps"`
}

func (r FeeRateRequest) Validate() error {
	if r.FeeRateBps == nil {
		return dErrors.New(dErrors.CodeValidation, "fee_rate_bps is required")
	}
	if *r.FeeRateBps < 0 {
		return dErrors.New(dErrors.CodeValidation, "fee_rate_bps must not be negative")
	}
	return nil
}

type OperatorRequest struct {
	Enabled *bool `json:"enabled"`
}

func (r OperatorRequest) Validate() error {
	if r.Enabled == nil {
		return dErrors.New(dErrors.CodeValidation, "enabled is required")
	}
	return nil
}

type AccountRequest struct {
	Account domain.AccountID `json:"account"`
}

type PausedRequest struct {
	Paused *bool `json:"paused"`
}

func (r PausedRequest) Validate() error {
	if r.Paused == nil {
		return dErrors.New(dErrors.CodeValidation, "paused is required")
	}
	return nil
}

// CreditRequest funds an account on the in-process rail.
type CreditRequest struct {
	Account domain.AccountID `json:"account"`
	Amount  domain.Amount    `json:"amount"`
}
