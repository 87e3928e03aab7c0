package models

import "remit/pkg/domain"

// TransferReason labels why value crosses the ledger boundary.
type TransferReason string

const (
	ReasonPayment TransferReason = "payment"
	ReasonDeposit TransferReason = "deposit"
	ReasonFee     TransferReason = "fee"
	ReasonOverpay TransferReason = "overpayment_refund"
	ReasonPayout  TransferReason = "payout"
	ReasonRefund  TransferReason = "refund"
	ReasonSweep   TransferReason = "emergency_sweep"
)

// HoldID names value a rail has reserved for a settlement but not yet moved.
type HoldID string

// Transfer is one leg of a Settlement.
type Transfer struct {
	Account domain.AccountID
	Amount  domain.Amount
	Reason  TransferReason
}

// Settlement is one atomic movement of value: an optional inflow pulled from
// an account into custody, then outflows paid from custody. A rail applies
// all legs or none.
type Settlement struct {
	Inflow   *Transfer
	Outflows []Transfer
}

// Pay appends an outflow; zero amounts are dropped.
func (s *Settlement) Pay(account domain.AccountID, amount domain.Amount, reason TransferReason) {
	if amount.IsZero() {
		return
	}
	s.Outflows = append(s.Outflows, Transfer{Account: account, Amount: amount, Reason: reason})
}

// Collect sets the inflow; a zero amount clears it.
func (s *Settlement) Collect(account domain.AccountID, amount domain.Amount, reason TransferReason) {
	if amount.IsZero() {
		s.Inflow = nil
		return
	}
	s.Inflow = &Transfer{Account: account, Amount: amount, Reason: reason}
}

// IsEmpty reports whether the settlement moves nothing.
func (s *Settlement) IsEmpty() bool {
	return s.Inflow == nil && len(s.Outflows) == 0
}
