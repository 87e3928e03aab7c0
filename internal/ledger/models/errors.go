package models

import (
	dErrors "remit/pkg/domain-errors"
)

// Ledger failures. The message is the stable failure name surfaced to clients;
// the code drives the transport status.
var (
	ErrNotAuthorized               = dErrors.New(dErrors.CodeForbidden, "NotAuthorized")
	ErrOwnableUnauthorizedAccount  = dErrors.New(dErrors.CodeForbidden, "OwnableUnauthorizedAccount")
	ErrOwnableInvalidOwner         = dErrors.New(dErrors.CodeBadRequest, "OwnableInvalidOwner")
	ErrUserNotVerified             = dErrors.New(dErrors.CodeForbidden, "UserNotVerified")
	ErrInvalidRecipient            = dErrors.New(dErrors.CodeBadRequest, "InvalidRecipient")
	ErrInvalidAmount               = dErrors.New(dErrors.CodeBadRequest, "InvalidAmount")
	ErrInsufficientPayment         = dErrors.New(dErrors.CodeBadRequest, "InsufficientPayment")
	ErrInvalidFeeCollector         = dErrors.New(dErrors.CodeBadRequest, "InvalidFeeCollector")
	ErrInvalidAccount              = dErrors.New(dErrors.CodeBadRequest, "InvalidAccount")
	ErrFeeRateTooHigh              = dErrors.New(dErrors.CodeBadRequest, "FeeRateTooHigh")
	ErrTransactionNotFound         = dErrors.New(dErrors.CodeNotFound, "TransactionNotFound")
	ErrTransactionAlreadyCompleted = dErrors.New(dErrors.CodeConflict, "TransactionAlreadyCompleted")
	ErrContractIsPaused            = dErrors.New(dErrors.CodeUnavailable, "ContractIsPaused")
	ErrNoFeesToWithdraw            = dErrors.New(dErrors.CodeConflict, "NoFeesToWithdraw")
	ErrReentrantCall               = dErrors.New(dErrors.CodeConflict, "ReentrancyGuardReentrantCall")
	ErrTransferFailed              = dErrors.New(dErrors.CodeUnavailable, "TransferFailed")
	ErrBatchTooLarge               = dErrors.New(dErrors.CodeBadRequest, "BatchTooLarge")
	ErrHoldingsCorrupt             = dErrors.New(dErrors.CodeInvariantViolation, "HoldingsCorrupt")
)
