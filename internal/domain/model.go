// Package domain contains pure audit-ledger types with ZERO infrastructure imports.
// It is the innermost ring and imports nothing from the rest of the module.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"
)

// ─── Event Classification ───────────────────────────────────────────────────

// LogType classifies a ledger entry.
type LogType string

const (
	LogFinancial LogType = "financial"
	LogSystem    LogType = "system"
	LogUser      LogType = "user"
	LogError     LogType = "error"
	LogWarning   LogType = "warning"
	LogInfo      LogType = "info"
)

// LogTypes lists every known LogType in declaration order.
var LogTypes = []LogType{LogFinancial, LogSystem, LogUser, LogError, LogWarning, LogInfo}

// ParseLogType decodes a persisted or user-supplied tag.
// Unknown tags fail with ErrDecode instead of falling back to a default.
func ParseLogType(s string) (LogType, error) {
	for _, t := range LogTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown log_type %q", ErrDecode, s)
}

// UnmarshalText makes JSON and flag decoding strict.
func (t *LogType) UnmarshalText(b []byte) error {
	v, err := ParseLogType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Category is the business area an entry belongs to.
type Category string

const (
	CategorySale        Category = "sale"
	CategoryRefund      Category = "refund"
	CategoryTableStatus Category = "table_status"
	CategoryProduct     Category = "product"
	CategoryCategory    Category = "category"
	CategoryUser        Category = "user"
	CategorySystem      Category = "system"
	CategoryError       Category = "error"
	CategoryOther       Category = "other"
)

// Categories lists every known Category in declaration order.
var Categories = []Category{
	CategorySale, CategoryRefund, CategoryTableStatus, CategoryProduct,
	CategoryCategory, CategoryUser, CategorySystem, CategoryError, CategoryOther,
}

// ParseCategory decodes a category tag, failing with ErrDecode when unknown.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrDecode, s)
}

// UnmarshalText makes JSON and flag decoding strict.
func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ─── Ledger Entry ───────────────────────────────────────────────────────────

// EntryFields are the caller-supplied fields of a new ledger entry.
// Optional string references are empty when absent.
type EntryFields struct {
	LogType       LogType  `json:"log_type"`
	Category      Category `json:"category"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Amount        *float64 `json:"amount,omitempty"`
	SessionID     string   `json:"session_id"`
	UserSignature string   `json:"user_signature"`
	TableID       string   `json:"table_id,omitempty"`
	TableName     string   `json:"table_name,omitempty"`
	ProductID     string   `json:"product_id,omitempty"`
	ProductName   string   `json:"product_name,omitempty"`
	UserID        string   `json:"user_id,omitempty"`
	UserName      string   `json:"user_name,omitempty"`
	Metadata      string   `json:"metadata,omitempty"`
}

// Validate rejects fields that cannot be appended.
func (f EntryFields) Validate() error {
	if _, err := ParseLogType(string(f.LogType)); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := ParseCategory(string(f.Category)); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if strings.TrimSpace(f.SessionID) == "" {
		return fmt.Errorf("%w: session_id is required", ErrValidation)
	}
	if f.Amount != nil && (math.IsNaN(*f.Amount) || math.IsInf(*f.Amount, 0)) {
		return fmt.Errorf("%w: amount must be finite", ErrValidation)
	}
	return nil
}

// LedgerEntry is an immutable, hash-chained audit record.
// PreviousHash is empty only for the first entry (ChainIndex 1).
type LedgerEntry struct {
	ID              string    `json:"id"`
	LogType         LogType   `json:"log_type"`
	Category        Category  `json:"category"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Amount          *float64  `json:"amount,omitempty"`
	PreviousHash    string    `json:"previous_hash,omitempty"`
	CurrentHash     string    `json:"current_hash"`
	ChainIndex      int64     `json:"chain_index"`
	AppClock        int64     `json:"app_clock"`
	SystemClock     int64     `json:"system_clock"`
	SessionID       string    `json:"session_id"`
	UserSignature   string    `json:"user_signature"`
	TableID         string    `json:"table_id,omitempty"`
	TableName       string    `json:"table_name,omitempty"`
	ProductID       string    `json:"product_id,omitempty"`
	ProductName     string    `json:"product_name,omitempty"`
	UserID          string    `json:"user_id,omitempty"`
	UserName        string    `json:"user_name,omitempty"`
	Metadata        string    `json:"metadata,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	SecureTimestamp string    `json:"secure_timestamp"`
}

// AmountOrZero returns the amount, or 0 when absent.
func (e LedgerEntry) AmountOrZero() float64 {
	if e.Amount == nil {
		return 0
	}
	return *e.Amount
}

// EntryFilter narrows a ledger query. Zero values mean "no constraint".
type EntryFilter struct {
	LogType   LogType
	Category  Category
	TableID   string
	ProductID string
	UserID    string
	From      time.Time
	To        time.Time
	MinAmount *float64
	MaxAmount *float64
	Limit     int
}

// ─── Utilities ──────────────────────────────────────────────────────────────

// Checksum is the hex SHA-256 of the concatenated parts.
//
// It is an unkeyed content checksum: it detects accidental or naive edits but
// anyone can recompute it, so it carries no authenticity guarantee.
func Checksum(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TimestampChecksum is the secure_timestamp of an entry created at t.
func TimestampChecksum(t time.Time) string {
	return Checksum(t.UTC().Format(time.RFC3339Nano))
}
