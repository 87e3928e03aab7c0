package models

import "remit/pkg/domain"

const (
	// MaxFeeRateBps caps the fee rate at 10%.
	MaxFeeRateBps uint16 = 1000
	// BpsDenominator is 100% in basis points.
	BpsDenominator = 10000
	// DefaultFeeRateBps is applied when a ledger is created without an explicit rate.
	DefaultFeeRateBps uint16 = 50
)

// CalculateFee returns floor(amount * rateBps / 10000).
func CalculateFee(amount domain.Amount, rateBps uint16) domain.Amount {
	return amount.MulDiv(uint64(rateBps), BpsDenominator)
}

// ValidateFeeRate rejects rates above MaxFeeRateBps. It takes a wide integer so
// callers can validate a decoded value before narrowing it to uint16.
func ValidateFeeRate(rateBps uint64) error {
	if rateBps > uint64(MaxFeeRateBps) {
		return ErrFeeRateTooHigh
	}
	return nil
}
