package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"remit/internal/ledger/models"
	"remit/internal/ledger/store"
	"remit/pkg/domain"
	"remit/pkg/platform/sentinel"
	txcontext "remit/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Store persists ledger state in PostgreSQL. Writes made inside RunInTx share
// one *sql.Tx carried in the context.
type Store struct {
	db *sql.DB
}

var _ store.Backend = (*Store)(nil)

// New constructs a PostgreSQL-backed ledger store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the ledger tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

// RunInTx runs fn in a single SQL transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	return txcontext.Run(ctx, s.db, nil, func(ctx context.Context) error {
		return fn(ctx, s)
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) execer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) LoadConfig(ctx context.Context) (*models.Config, error) {
	query := `SELECT ledger_id, owner, fee_collector, fee_rate_bps, paused FROM ledger_config WHERE id = 1`
	// Inside a transaction the row lock serializes writers across processes.
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	var (
		ledgerID            []byte
		owner, feeCollector string
		rate                int
		cfg                 models.Config
	)
	err := s.execer(ctx).QueryRowContext(ctx, query).Scan(&ledgerID, &owner, &feeCollector, &rate, &cfg.Paused)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ledger config: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("load ledger config: %w", err)
	}
	copy(cfg.LedgerID[:], ledgerID)
	if cfg.Owner, err = domain.ParseAccountID(owner); err != nil {
		return nil, fmt.Errorf("decode owner: %w", err)
	}
	if cfg.FeeCollector, err = domain.ParseAccountID(feeCollector); err != nil {
		return nil, fmt.Errorf("decode fee collector: %w", err)
	}
	cfg.FeeRateBps = uint16(rate) //nolint:gosec // bounded by a CHECK constraint

	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT account FROM ledger_operators`)
	if err != nil {
		return nil, fmt.Errorf("load operators: %w", err)
	}
	defer rows.Close()
	cfg.Operators = make(map[domain.AccountID]struct{})
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan operator: %w", err)
		}
		a, err := domain.ParseAccountID(raw)
		if err != nil {
			return nil, fmt.Errorf("decode operator: %w", err)
		}
		cfg.Operators[a] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operators: %w", err)
	}
	return &cfg, nil
}

func (s *Store) SaveConfig(ctx context.Context, cfg *models.Config) error {
	return txcontext.Run(ctx, s.db, nil, func(ctx context.Context) error {
		_, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO ledger_config (id, ledger_id, owner, fee_collector, fee_rate_bps, paused)
			VALUES (1, $1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				owner = EXCLUDED.owner,
				fee_collector = EXCLUDED.fee_collector,
				fee_rate_bps = EXCLUDED.fee_rate_bps,
				paused = EXCLUDED.paused
		`, cfg.LedgerID[:], cfg.Owner.Hex(), cfg.FeeCollector.Hex(), int(cfg.FeeRateBps), cfg.Paused)
		if err != nil {
			return fmt.Errorf("save ledger config: %w", err)
		}
		if _, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM ledger_operators`); err != nil {
			return fmt.Errorf("clear operators: %w", err)
		}
		if len(cfg.Operators) == 0 {
			return nil
		}
		_, err = s.execer(ctx).ExecContext(ctx,
			`INSERT INTO ledger_operators (account) SELECT unnest($1::text[])`,
			pq.Array(hexList(cfg.OperatorList())))
		if err != nil {
			return fmt.Errorf("save operators: %w", err)
		}
		return nil
	})
}

func (s *Store) FindUser(ctx context.Context, account domain.AccountID) (*models.UserRecord, error) {
	u := models.UserRecord{Account: account}
	var verifiedAt sql.NullTime
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT is_verified, exists_flag, total_sent, total_received, transaction_count, verified_at
		FROM users WHERE account = $1
	`, account.Hex()).Scan(&u.IsVerified, &u.Exists, &u.TotalSent, &u.TotalReceived, &u.TransactionCount, &verifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", account, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		u.VerifiedAt = &t
	}
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, u *models.UserRecord) error {
	var verifiedAt sql.NullTime
	if u.VerifiedAt != nil {
		verifiedAt = sql.NullTime{Time: *u.VerifiedAt, Valid: true}
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO users (account, is_verified, exists_flag, total_sent, total_received, transaction_count, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account) DO UPDATE SET
			is_verified = EXCLUDED.is_verified,
			exists_flag = EXCLUDED.exists_flag,
			total_sent = EXCLUDED.total_sent,
			total_received = EXCLUDED.total_received,
			transaction_count = EXCLUDED.transaction_count,
			verified_at = EXCLUDED.verified_at
	`, u.Account.Hex(), u.IsVerified, u.Exists, u.TotalSent, u.TotalReceived, int64(u.TransactionCount), verifiedAt) //nolint:gosec // counts stay far below 2^63
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// MarkVerified upserts every account in one round trip.
func (s *Store) MarkVerified(ctx context.Context, accounts []domain.AccountID, at time.Time) error {
	if len(accounts) == 0 {
		return nil
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO users (account, is_verified, exists_flag, verified_at)
		SELECT DISTINCT unnest($1::text[]), TRUE, TRUE, $2::timestamptz
		ON CONFLICT (account) DO UPDATE SET
			is_verified = TRUE,
			exists_flag = TRUE,
			verified_at = COALESCE(users.verified_at, EXCLUDED.verified_at)
	`, pq.Array(hexList(accounts)), at)
	if err != nil {
		return fmt.Errorf("mark users verified: %w", err)
	}
	return nil
}

const txColumns = `id, idx, sender, recipient, amount, fee, status, created_at, settled_at`

func (s *Store) FindTransaction(ctx context.Context, id domain.TxID) (*models.Transaction, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id.String())
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return t, nil
}

func (s *Store) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID.String(), int64(t.Index), t.Sender.Hex(), t.Recipient.Hex(), t.Amount, t.Fee, int(t.Status), t.CreatedAt, nullTime(t.SettledAt)) //nolint:gosec // index fits in BIGINT
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("transaction %s: %w", t.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t *models.Transaction) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE transactions SET status = $2, settled_at = $3 WHERE id = $1
	`, t.ID.String(), int(t.Status), nullTime(t.SettledAt))
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", t.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Store) TransactionIDAt(ctx context.Context, index uint64) (domain.TxID, error) {
	var raw string
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT id FROM transactions WHERE idx = $1`, int64(index)).Scan(&raw) //nolint:gosec // index fits in BIGINT
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TxID{}, fmt.Errorf("transaction index %d: %w", index, sentinel.ErrNotFound)
		}
		return domain.TxID{}, fmt.Errorf("find transaction id: %w", err)
	}
	return domain.ParseTxID(raw)
}

func (s *Store) CountTransactions(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return uint64(n), nil //nolint:gosec // COUNT is never negative
}

func (s *Store) LoadHoldings(ctx context.Context) (models.Holdings, error) {
	var h models.Holdings
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT custody, escrowed FROM ledger_holdings WHERE id = 1`).Scan(&h.Custody, &h.Escrowed)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.Holdings{}, fmt.Errorf("load holdings: %w", err)
	}
	return h, nil
}

func (s *Store) SaveHoldings(ctx context.Context, h models.Holdings) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO ledger_holdings (id, custody, escrowed) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET custody = EXCLUDED.custody, escrowed = EXCLUDED.escrowed
	`, h.Custody, h.Escrowed)
	if err != nil {
		return fmt.Errorf("save holdings: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t                     models.Transaction
		id, sender, recipient string
		idx                   int64
		status                int
		settledAt             sql.NullTime
	)
	if err := row.Scan(&id, &idx, &sender, &recipient, &t.Amount, &t.Fee, &status, &t.CreatedAt, &settledAt); err != nil {
		return nil, err
	}
	var err error
	if t.ID, err = domain.ParseTxID(id); err != nil {
		return nil, err
	}
	if t.Sender, err = domain.ParseAccountID(sender); err != nil {
		return nil, err
	}
	if t.Recipient, err = domain.ParseAccountID(recipient); err != nil {
		return nil, err
	}
	t.Index = uint64(idx)            //nolint:gosec // written from a uint64
	t.Status = models.Status(status) //nolint:gosec // small enum
	if settledAt.Valid {
		at := settledAt.Time
		t.SettledAt = &at
	}
	return &t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func hexList(accounts []domain.AccountID) []string {
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.Hex()
	}
	return out
}
