package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"remit/pkg/domain"
	audit "remit/pkg/platform/audit"
	txcontext "remit/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// Store implements audit.Store on the audit_events table. The BIGSERIAL
// column supplies Seq. Sequence gaps are possible when an enclosing
// transaction rolls back, so readers must page by Seq rather than count.
type Store struct {
	db *sql.DB
}

var _ audit.Store = (*Store)(nil)

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts the event and sets event.Seq. Joins a transaction carried
// in ctx so events can be written alongside ledger state.
func (s *Store) Append(ctx context.Context, event *audit.Event) error {
	if event.ID == "" {
		eventID, err := audit.NewEventID()
		if err != nil {
			return err
		}
		event.ID = eventID
	}
	if event.Category == "" {
		event.Category = event.Kind.Category()
	}

	var feeRate sql.NullInt32
	if event.FeeRateBps != nil {
		feeRate = sql.NullInt32{Int32: int32(*event.FeeRateBps), Valid: true}
	}
	var enabled sql.NullBool
	if event.Enabled != nil {
		enabled = sql.NullBool{Bool: *event.Enabled, Valid: true}
	}

	query := `
		INSERT INTO audit_events (
			id, kind, category, ts, tx_id, account, counterparty,
			amount, fee, fee_rate_bps, enabled, actor, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING seq
	`
	err := s.execer(ctx).QueryRowContext(ctx, query,
		event.ID,
		string(event.Kind),
		string(event.Category),
		event.Timestamp,
		txText(event.TxID),
		accountText(event.Account),
		accountText(event.Counterparty),
		event.Amount,
		event.Fee,
		feeRate,
		enabled,
		accountText(event.Actor),
		event.RequestID,
	).Scan(&event.Seq)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAfter returns up to limit events with Seq > after, oldest first.
// A non-positive limit returns everything.
func (s *Store) ListAfter(ctx context.Context, after uint64, limit int) ([]audit.Event, error) {
	query := `
		SELECT seq, id, kind, category, ts, tx_id, account, counterparty,
			   amount, fee, fee_rate_bps, enabled, actor, request_id
		FROM audit_events
		WHERE seq > $1
		ORDER BY seq
	`
	args := []any{int64(after)} //nolint:gosec // seq is a BIGSERIAL
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	events := []audit.Event{}

	for rows.Next() {
		var (
			event                       audit.Event
			kind, category              string
			txID, account, counterparty string
			actor                       string
			feeRate                     sql.NullInt32
			enabled                     sql.NullBool
		)

		err := rows.Scan(
			&event.Seq,
			&event.ID,
			&kind,
			&category,
			&event.Timestamp,
			&txID,
			&account,
			&counterparty,
			&event.Amount,
			&event.Fee,
			&feeRate,
			&enabled,
			&actor,
			&event.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Kind = audit.EventKind(kind)
		event.Category = audit.EventCategory(category)
		if txID != "" {
			if event.TxID, err = domain.ParseTxID(txID); err != nil {
				return nil, fmt.Errorf("decode event tx id: %w", err)
			}
		}
		for _, f := range []struct {
			raw string
			dst *domain.AccountID
		}{{account, &event.Account}, {counterparty, &event.Counterparty}, {actor, &event.Actor}} {
			if f.raw == "" {
				continue
			}
			if *f.dst, err = domain.ParseAccountID(f.raw); err != nil {
				return nil, fmt.Errorf("decode event account: %w", err)
			}
		}
		if feeRate.Valid {
			bps := uint16(feeRate.Int32) //nolint:gosec // written from a uint16
			event.FeeRateBps = &bps
		}
		if enabled.Valid {
			v := enabled.Bool
			event.Enabled = &v
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

func txText(id domain.TxID) string {
	if id.IsZero() {
		return ""
	}
	return id.String()
}

func accountText(a domain.AccountID) string {
	if a.IsZero() {
		return ""
	}
	return a.Hex()
}
