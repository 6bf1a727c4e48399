package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bidme/bidme/internal/auction"
)

//go:embed schema.sql
var ledgerSchemaSQL string

// Ledger statuses.
const (
	chargePending   = "pending"
	chargeSucceeded = "succeeded"
	chargeFailed    = "failed"
)

// Ledger is the durable charge record backing the at-most-once-charge
// guarantee. Uses SQLite; the charges table is keyed by period_id.
type Ledger struct {
	db *sql.DB
}

// Compile-time check that Ledger satisfies the engine's interface.
var _ auction.ChargeLedger = (*Ledger)(nil)

// OpenLedger creates or opens the SQLite ledger at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect ledger: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(ledgerSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the ledger database.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Begin records the intent to charge a period and reports whether a prior
// run already succeeded.
//
// State handling per existing row:
//   - succeeded: the gateway must be skipped; the stored charge ID is
//     returned.
//   - pending for the same bidder: a resumed run; the original request ID is
//     reused so the provider-side idempotency key chain stays intact.
//   - failed, or pending for a different bidder (the previous winner was
//     superseded): the row is re-armed with a fresh request ID.
func (l *Ledger) Begin(ctx context.Context, periodID, bidder string, amount int64) (auction.ChargeAttempt, error) {
	var attempt auction.ChargeAttempt

	requestID := uuid.Must(uuid.NewV7()).String()
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO charges (period_id, request_id, bidder, amount, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(period_id) DO NOTHING
	`, periodID, requestID, bidder, amount, chargePending)
	if err != nil {
		return attempt, fmt.Errorf("begin charge for %s: %w", periodID, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return attempt, fmt.Errorf("begin charge for %s: %w", periodID, err)
	}
	if inserted > 0 {
		attempt.RequestID = requestID
		return attempt, nil
	}

	// Row already exists: inspect it.
	var existing struct {
		requestID string
		bidder    string
		status    string
		chargeID  sql.NullString
	}
	err = l.db.QueryRowContext(ctx, `
		SELECT request_id, bidder, status, charge_id FROM charges WHERE period_id = ?
	`, periodID).Scan(&existing.requestID, &existing.bidder, &existing.status, &existing.chargeID)
	if err != nil {
		return attempt, fmt.Errorf("read charge row for %s: %w", periodID, err)
	}

	switch {
	case existing.status == chargeSucceeded:
		attempt.AlreadyCharged = true
		attempt.ChargeID = existing.chargeID.String
		return attempt, nil

	case existing.status == chargePending && existing.bidder == bidder:
		attempt.RequestID = existing.requestID
		return attempt, nil

	default:
		// Failed attempt or superseded winner: re-arm with a fresh request.
		_, err := l.db.ExecContext(ctx, `
			UPDATE charges
			SET request_id = ?, bidder = ?, amount = ?, status = ?, reason = NULL,
			    updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
			WHERE period_id = ? AND status != ?
		`, requestID, bidder, amount, chargePending, periodID, chargeSucceeded)
		if err != nil {
			return attempt, fmt.Errorf("re-arm charge for %s: %w", periodID, err)
		}
		attempt.RequestID = requestID
		return attempt, nil
	}
}

// MarkSucceeded records a successful charge. The status guard keeps a
// belated success report from overwriting an earlier one.
func (l *Ledger) MarkSucceeded(ctx context.Context, periodID, chargeID string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE charges
		SET status = ?, charge_id = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE period_id = ? AND status != ?
	`, chargeSucceeded, chargeID, periodID, chargeSucceeded)
	if err != nil {
		return fmt.Errorf("mark charge succeeded for %s: %w", periodID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark charge succeeded for %s: %w", periodID, err)
	}
	if affected == 0 {
		// Either no Begin was recorded or an earlier run already succeeded.
		var status string
		err := l.db.QueryRowContext(ctx, `SELECT status FROM charges WHERE period_id = ?`, periodID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("mark charge succeeded for %s: no charge attempt recorded", periodID)
		}
		if err != nil {
			return fmt.Errorf("mark charge succeeded for %s: %w", periodID, err)
		}
	}
	return nil
}

// MarkFailed records a failed attempt with its reason.
func (l *Ledger) MarkFailed(ctx context.Context, periodID, reason string) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE charges
		SET status = ?, reason = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE period_id = ? AND status != ?
	`, chargeFailed, reason, periodID, chargeSucceeded)
	if err != nil {
		return fmt.Errorf("mark charge failed for %s: %w", periodID, err)
	}
	return nil
}

// ChargeRecord is one ledger row, used for status reporting.
type ChargeRecord struct {
	PeriodID  string `json:"period_id"`
	RequestID string `json:"request_id"`
	Bidder    string `json:"bidder"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	ChargeID  string `json:"charge_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Lookup returns the ledger row for a period, or nil if none exists.
func (l *Ledger) Lookup(ctx context.Context, periodID string) (*ChargeRecord, error) {
	var rec ChargeRecord
	var chargeID, reason sql.NullString
	err := l.db.QueryRowContext(ctx, `
		SELECT period_id, request_id, bidder, amount, status, charge_id, reason
		FROM charges WHERE period_id = ?
	`, periodID).Scan(&rec.PeriodID, &rec.RequestID, &rec.Bidder, &rec.Amount, &rec.Status, &chargeID, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup charge for %s: %w", periodID, err)
	}
	rec.ChargeID = chargeID.String
	rec.Reason = reason.String
	return &rec, nil
}
