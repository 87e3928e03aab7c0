package audit

import (
	"context"
	"fmt"
	"time"

	"go.jetify.com/typeid/v2"

	"remit/pkg/domain"
)

// EventCategory classifies events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers movements of value and identity changes.
	// These need long retention and tamper-evident storage.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers changes to who may do what.
	// Examples: operator grants, ownership transfer, pause switch.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers parameter changes with no direct value impact.
	CategoryOperations EventCategory = "operations"
)

// EventKind names a ledger event.
type EventKind string

const (
	EventUserVerified         EventKind = "UserVerified"
	EventTransactionCreated   EventKind = "TransactionCreated"
	EventTransactionCompleted EventKind = "TransactionCompleted"
	EventTransactionCancelled EventKind = "TransactionCancelled"
	EventFeeRateUpdated       EventKind = "FeeRateUpdated"
	EventContractPaused       EventKind = "ContractPaused"
	EventOperatorUpdated      EventKind = "OperatorUpdated"
	EventFeeCollectorUpdated  EventKind = "FeeCollectorUpdated"
	EventOwnershipTransferred EventKind = "OwnershipTransferred"
	EventEmergencyWithdrawal  EventKind = "EmergencyWithdrawal"
	EventFundsReceived        EventKind = "FundsReceived"
)

var eventCategories = map[EventKind]EventCategory{
	EventUserVerified:         CategoryCompliance,
	EventTransactionCreated:   CategoryCompliance,
	EventTransactionCompleted: CategoryCompliance,
	EventTransactionCancelled: CategoryCompliance,
	EventEmergencyWithdrawal:  CategoryCompliance,
	EventFundsReceived:        CategoryCompliance,

	EventOperatorUpdated:      CategorySecurity,
	EventOwnershipTransferred: CategorySecurity,
	EventContractPaused:       CategorySecurity,
	EventFeeCollectorUpdated:  CategorySecurity,

	EventFeeRateUpdated: CategoryOperations,
}

// Category returns the EventCategory for this kind.
// Unknown kinds default to CategoryOperations.
func (k EventKind) Category() EventCategory {
	if cat, ok := eventCategories[k]; ok {
		return cat
	}
	return CategoryOperations
}

// IDPrefix is the TypeID prefix of every event id.
const IDPrefix = "evt"

// Event is emitted by the ledger after a mutation commits. Fields not relevant
// to a kind stay zero and are omitted on the wire.
type Event struct {
	ID        string        `json:"id"`
	Seq       uint64        `json:"seq"`
	Kind      EventKind     `json:"kind"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`

	TxID         domain.TxID      `json:"tx_id,omitzero"`
	Account      domain.AccountID `json:"account,omitzero"`
	Counterparty domain.AccountID `json:"counterparty,omitzero"`
	Amount       domain.Amount    `json:"amount,omitzero"`
	Fee          domain.Amount    `json:"fee,omitzero"`
	FeeRateBps   *uint16          `json:"fee_rate_bps,omitempty"`
	Enabled      *bool            `json:"enabled,omitempty"`

	Actor     domain.AccountID `json:"actor,omitzero"`
	RequestID string           `json:"request_id,omitempty"`
}

// PartitionKey groups related events: the transaction id when present,
// otherwise the subject account.
func (e Event) PartitionKey() string {
	if !e.TxID.IsZero() {
		return e.TxID.String()
	}
	if !e.Account.IsZero() {
		return e.Account.Hex()
	}
	return string(e.Kind)
}

// NewEventID returns a fresh K-sortable event id ("evt_...").
func NewEventID() (string, error) {
	tid, err := typeid.Generate(IDPrefix)
	if err != nil {
		return "", fmt.Errorf("generate event id: %w", err)
	}
	return tid.String(), nil
}

// Store is the append-only event log. Append assigns Seq; sequence numbers
// start at 1 and have no gaps.
type Store interface {
	Append(ctx context.Context, event *Event) error
	ListAfter(ctx context.Context, after uint64, limit int) ([]Event, error)
}

// Sink receives events that are already in the log, in Seq order.
type Sink interface {
	Deliver(ctx context.Context, events []Event) error
}
