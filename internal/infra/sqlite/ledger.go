package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/possuite/auditguard/internal/domain"
)

const entryColumns = `chain_index, id, log_type, category, title, description, amount,
	previous_hash, current_hash, app_clock, system_clock, session_id, user_signature,
	table_id, table_name, product_id, product_name, user_id, user_name, metadata,
	created_at, secure_timestamp`

// ─── Ledger Operations ──────────────────────────────────────────────────────

// AppendEntry reads the chain tip and inserts build(tip) in one transaction.
// The built entry must carry the next chain index; the primary key on
// chain_index rejects any duplicate that slips past.
func (db *DB) AppendEntry(ctx context.Context, build domain.TipFunc) (domain.LedgerEntry, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.LedgerEntry{}, storageErr("begin append", err)
	}
	defer tx.Rollback()

	tip, err := lastEntry(ctx, tx)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	entry, err := build(tip)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	want := int64(1)
	if tip != nil {
		want = tip.ChainIndex + 1
	}
	if entry.ChainIndex != want {
		return domain.LedgerEntry{}, fmt.Errorf("%w: chain index %d does not follow tip (want %d)",
			domain.ErrValidation, entry.ChainIndex, want)
	}

	if err := insertEntry(ctx, tx, entry); err != nil {
		return domain.LedgerEntry{}, storageErr("insert entry", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.LedgerEntry{}, storageErr("commit append", err)
	}
	return entry, nil
}

// ListEntries returns entries ascending by chain index; limit <= 0 means all.
func (db *DB) ListEntries(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	return db.QueryEntries(ctx, domain.EntryFilter{Limit: limit})
}

// LastEntry returns the chain tip, or nil when the ledger is empty.
func (db *DB) LastEntry(ctx context.Context) (*domain.LedgerEntry, error) {
	return lastEntry(ctx, db.db)
}

// QueryEntries returns entries matching f, ascending by chain index.
func (db *DB) QueryEntries(ctx context.Context, f domain.EntryFilter) ([]domain.LedgerEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.LogType != "" {
		where = append(where, "log_type = ?")
		args = append(args, string(f.LogType))
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.TableID != "" {
		where = append(where, "table_id = ?")
		args = append(args, f.TableID)
	}
	if f.ProductID != "" {
		where = append(where, "product_id = ?")
		args = append(args, f.ProductID)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, formatTime(f.To))
	}
	if f.MinAmount != nil {
		where = append(where, "amount >= ?")
		args = append(args, *f.MinAmount)
	}
	if f.MaxAmount != nil {
		where = append(where, "amount <= ?")
		args = append(args, *f.MaxAmount)
	}

	q := "SELECT " + entryColumns + " FROM ledger_entries"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY chain_index ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("query entries", err)
	}
	defer rows.Close()

	var result []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query entries", err)
	}
	return result, nil
}

// CountEntriesBefore counts entries created strictly before t.
func (db *DB) CountEntriesBefore(ctx context.Context, t time.Time) (int64, error) {
	var n int64
	err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE created_at < ?`, formatTime(t)).Scan(&n)
	if err != nil {
		return 0, storageErr("count entries", err)
	}
	return n, nil
}

// ─── Row Mapping ────────────────────────────────────────────────────────────

func lastEntry(ctx context.Context, q querier) (*domain.LedgerEntry, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM ledger_entries ORDER BY chain_index DESC LIMIT 1")
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func insertEntry(ctx context.Context, q querier, e domain.LedgerEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ChainIndex, e.ID, string(e.LogType), string(e.Category), e.Title, e.Description,
		nullFloat(e.Amount), nullString(e.PreviousHash), e.CurrentHash,
		e.AppClock, e.SystemClock, e.SessionID, e.UserSignature,
		nullString(e.TableID), nullString(e.TableName),
		nullString(e.ProductID), nullString(e.ProductName),
		nullString(e.UserID), nullString(e.UserName),
		nullString(e.Metadata), formatTime(e.CreatedAt), e.SecureTimestamp,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry maps one row. Unknown tags and malformed timestamps fail with
// ErrDecode; sql.ErrNoRows is returned unwrapped.
func scanEntry(r rowScanner) (domain.LedgerEntry, error) {
	var (
		e                            domain.LedgerEntry
		logType, category, createdAt string
		amount                       sql.NullFloat64
		prevHash, tableID, tableName sql.NullString
		productID, productName       sql.NullString
		userID, userName, metadata   sql.NullString
	)
	err := r.Scan(
		&e.ChainIndex, &e.ID, &logType, &category, &e.Title, &e.Description, &amount,
		&prevHash, &e.CurrentHash, &e.AppClock, &e.SystemClock, &e.SessionID, &e.UserSignature,
		&tableID, &tableName, &productID, &productName, &userID, &userName, &metadata,
		&createdAt, &e.SecureTimestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return e, err
	}
	if err != nil {
		return e, storageErr("scan entry", err)
	}

	if e.LogType, err = domain.ParseLogType(logType); err != nil {
		return e, fmt.Errorf("entry %d: %w", e.ChainIndex, err)
	}
	if e.Category, err = domain.ParseCategory(category); err != nil {
		return e, fmt.Errorf("entry %d: %w", e.ChainIndex, err)
	}
	if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return e, fmt.Errorf("entry %d: %w", e.ChainIndex, err)
	}
	if amount.Valid {
		v := amount.Float64
		e.Amount = &v
	}
	e.PreviousHash = prevHash.String
	e.TableID, e.TableName = tableID.String, tableName.String
	e.ProductID, e.ProductName = productID.String, productName.String
	e.UserID, e.UserName = userID.String, userName.String
	e.Metadata = metadata.String
	return e, nil
}
