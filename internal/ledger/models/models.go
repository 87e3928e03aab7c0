package models

import (
	"fmt"
	"maps"
	"time"

	"remit/pkg/domain"
)

// Status is the lifecycle state of a transaction. Pending is the only state
// with outgoing transitions.
type Status uint8

const (
	StatusPending Status = iota
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*s = StatusPending
	case "completed":
		*s = StatusCompleted
	case "cancelled":
		*s = StatusCancelled
	default:
		return fmt.Errorf("unknown transaction status %q", text)
	}
	return nil
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// UserRecord holds verification state and running totals for one account.
// Unknown accounts read as the zero record with Exists=false.
type UserRecord struct {
	Account          domain.AccountID `json:"account"`
	IsVerified       bool             `json:"is_verified"`
	Exists           bool             `json:"exists"`
	TotalSent        domain.Amount    `json:"total_sent"`
	TotalReceived    domain.Amount    `json:"total_received"`
	TransactionCount uint64           `json:"transaction_count"`
	VerifiedAt       *time.Time       `json:"verified_at,omitempty"`
}

// EmptyUser returns the default record for an account never seen before.
func EmptyUser(account domain.AccountID) *UserRecord {
	return &UserRecord{Account: account}
}

// MarkVerified sets the verification flags. Re-verifying keeps the original
// timestamp.
func (u *UserRecord) MarkVerified(at time.Time) {
	u.IsVerified = true
	u.Exists = true
	if u.VerifiedAt == nil {
		t := at
		u.VerifiedAt = &t
	}
}

// Transaction is one escrowed transfer. Amount and Fee are frozen at creation.
type Transaction struct {
	ID        domain.TxID      `json:"id"`
	Index     uint64           `json:"index"`
	Sender    domain.AccountID `json:"sender"`
	Recipient domain.AccountID `json:"recipient"`
	Amount    domain.Amount    `json:"amount"`
	Fee       domain.Amount    `json:"fee"`
	Status    Status           `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	SettledAt *time.Time       `json:"settled_at,omitempty"`
}

func (t *Transaction) IsPending() bool {
	return t.Status == StatusPending
}

// Complete moves a pending transaction to Completed.
func (t *Transaction) Complete(at time.Time) error {
	return t.transition(StatusCompleted, at)
}

// Cancel moves a pending transaction to Cancelled.
func (t *Transaction) Cancel(at time.Time) error {
	return t.transition(StatusCancelled, at)
}

func (t *Transaction) transition(to Status, at time.Time) error {
	if !t.IsPending() {
		return ErrTransactionAlreadyCompleted
	}
	t.Status = to
	settled := at
	t.SettledAt = &settled
	return nil
}

// Config is the ledger's single configuration instance.
type Config struct {
	LedgerID     [16]byte
	Owner        domain.AccountID
	FeeCollector domain.AccountID
	FeeRateBps   uint16
	Paused       bool
	Operators    map[domain.AccountID]struct{}
}

// IsOwner reports whether account is the owner.
func (c *Config) IsOwner(account domain.AccountID) bool {
	return !account.IsZero() && account == c.Owner
}

// IsOperator reports whether account is an authorized operator.
func (c *Config) IsOperator(account domain.AccountID) bool {
	_, ok := c.Operators[account]
	return ok
}

// CanOperate reports whether account may verify users and settle transfers.
func (c *Config) CanOperate(account domain.AccountID) bool {
	return c.IsOwner(account) || c.IsOperator(account)
}

// SetOperator adds or removes an operator.
func (c *Config) SetOperator(account domain.AccountID, enabled bool) {
	if c.Operators == nil {
		c.Operators = make(map[domain.AccountID]struct{})
	}
	if enabled {
		c.Operators[account] = struct{}{}
		return
	}
	delete(c.Operators, account)
}

// OperatorList returns operators in no particular order.
func (c *Config) OperatorList() []domain.AccountID {
	out := make([]domain.AccountID, 0, len(c.Operators))
	for a := range c.Operators {
		out = append(out, a)
	}
	return out
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Operators = maps.Clone(c.Operators)
	if out.Operators == nil {
		out.Operators = make(map[domain.AccountID]struct{})
	}
	return &out
}

// Holdings tracks value in ledger custody. Escrowed is the sum of pending
// amounts; anything above it is residual and may be swept by the owner.
type Holdings struct {
	Custody  domain.Amount `json:"custody"`
	Escrowed domain.Amount `json:"escrowed"`
}

// Residual returns Custody - Escrowed.
func (h Holdings) Residual() (domain.Amount, error) {
	r, err := h.Custody.Sub(h.Escrowed)
	if err != nil {
		return domain.Amount{}, ErrHoldingsCorrupt
	}
	return r, nil
}
