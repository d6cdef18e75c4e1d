// Package ledger implements the hash-chained, append-only audit ledger.
//
// Each entry's CurrentHash is SHA-256 over its canonical string followed by
// the previous entry's hash bytes, so altering any stored entry breaks every
// link after it.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/possuite/auditguard/internal/domain"
	"github.com/possuite/auditguard/internal/infra/observability"
)

// Ledger appends and reads hash-chained entries.
type Ledger struct {
	store  domain.LedgerStore
	clocks domain.ClockStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a ledger over the given stores.
func New(store domain.LedgerStore, clocks domain.ClockStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  store,
		clocks: clocks,
		logger: logger.With("component", "ledger"),
		now:    time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// ─── Write Path ─────────────────────────────────────────────────────────────

// Append validates fields and chains a new entry onto the current tip.
//
// The app clock value is read from the session's stored AppClock; a session
// without one gets a fresh, unsaved clock. Both clocks are sampled inside the
// append transaction.
func (l *Ledger) Append(ctx context.Context, f domain.EntryFields) (domain.LedgerEntry, error) {
	if err := f.Validate(); err != nil {
		observability.LedgerAppendFailures.Inc()
		return domain.LedgerEntry{}, err
	}

	clock, err := l.clocks.GetAppClock(ctx, f.SessionID)
	if err != nil {
		observability.LedgerAppendFailures.Inc()
		return domain.LedgerEntry{}, err
	}

	// The wall clock is sampled under the store's write lock, so created_at
	// follows chain order even when appends race.
	entry, err := l.store.AppendEntry(ctx, func(tip *domain.LedgerEntry) (domain.LedgerEntry, error) {
		now := l.now().UTC()
		c := clock
		if c == nil {
			fresh := domain.NewAppClock(f.SessionID, now)
			c = &fresh
		}
		return buildEntry(f, tip, c.UsageTime(now), now), nil
	})
	if err != nil {
		observability.LedgerAppendFailures.Inc()
		l.logger.Error("append failed", "session", f.SessionID, "error", err)
		return domain.LedgerEntry{}, err
	}

	observability.RecordAppend(entry)
	l.logger.Info("entry appended",
		"chain_index", entry.ChainIndex,
		"log_type", entry.LogType,
		"category", entry.Category,
		"title", entry.Title,
	)
	return entry, nil
}

func buildEntry(f domain.EntryFields, tip *domain.LedgerEntry, appClock int64, now time.Time) domain.LedgerEntry {
	e := domain.LedgerEntry{
		ID:            uuid.NewString(),
		LogType:       f.LogType,
		Category:      f.Category,
		Title:         f.Title,
		Description:   f.Description,
		Amount:        f.Amount,
		ChainIndex:    1,
		AppClock:      appClock,
		SystemClock:   now.Unix(),
		SessionID:     f.SessionID,
		UserSignature: f.UserSignature,
		TableID:       f.TableID,
		TableName:     f.TableName,
		ProductID:     f.ProductID,
		ProductName:   f.ProductName,
		UserID:        f.UserID,
		UserName:      f.UserName,
		Metadata:      f.Metadata,
		CreatedAt:     now,
	}
	if tip != nil {
		e.ChainIndex = tip.ChainIndex + 1
		e.PreviousHash = tip.CurrentHash
	}
	e.CurrentHash = ComputeHash(CanonicalString(e), e.PreviousHash)
	e.SecureTimestamp = domain.TimestampChecksum(now)
	return e
}

// ─── Hashing ────────────────────────────────────────────────────────────────

// CanonicalString concatenates the hashed fields in their fixed order with no
// separators. Absent optional references contribute the empty string and an
// absent amount contributes "0".
func CanonicalString(e domain.LedgerEntry) string {
	var b strings.Builder
	b.WriteString(string(e.LogType))
	b.WriteString(string(e.Category))
	b.WriteString(e.Title)
	b.WriteString(e.Description)
	b.WriteString(strconv.FormatFloat(e.AmountOrZero(), 'f', -1, 64))
	b.WriteString(strconv.FormatInt(e.AppClock, 10))
	b.WriteString(strconv.FormatInt(e.SystemClock, 10))
	b.WriteString(e.SessionID)
	b.WriteString(e.UserSignature)
	b.WriteString(strconv.FormatInt(e.ChainIndex, 10))
	b.WriteString(e.TableID)
	b.WriteString(e.TableName)
	b.WriteString(e.ProductID)
	b.WriteString(e.ProductName)
	b.WriteString(e.UserID)
	b.WriteString(e.UserName)
	b.WriteString(e.Metadata)
	return b.String()
}

// ComputeHash returns hex SHA-256 of canonical followed by previousHash.
// An empty previousHash (genesis) adds nothing.
func ComputeHash(canonical, previousHash string) string {
	h := sha256.New()
	h.Write([]byte(canonical))
	h.Write([]byte(previousHash))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyEntry recomputes e's hash and reports whether it matches CurrentHash.
func VerifyEntry(e domain.LedgerEntry) bool {
	return ComputeHash(CanonicalString(e), e.PreviousHash) == e.CurrentHash
}

// ─── Read Path ──────────────────────────────────────────────────────────────

// All returns entries ascending by chain index; limit <= 0 means all.
func (l *Ledger) All(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	return l.store.ListEntries(ctx, limit)
}

// Last returns the chain tip, or nil when the ledger is empty.
func (l *Ledger) Last(ctx context.Context) (*domain.LedgerEntry, error) {
	return l.store.LastEntry(ctx)
}

// Query returns entries matching f, ascending by chain index.
func (l *Ledger) Query(ctx context.Context, f domain.EntryFilter) ([]domain.LedgerEntry, error) {
	if f.From.After(f.To) && !f.To.IsZero() {
		return nil, fmt.Errorf("%w: from %s is after to %s", domain.ErrValidation,
			f.From.Format(time.RFC3339), f.To.Format(time.RFC3339))
	}
	return l.store.QueryEntries(ctx, f)
}
