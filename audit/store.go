package audit

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record actions.
const (
	ActionAdmitted = "admitted"
	ActionConsumed = "consumed"
)

// Entry is the audit trail row recorded for every admission and consumption.
// Identities and identifiers are stored hex-encoded; amounts are decimal
// strings. The insertion sequence preserves the original ordering that the
// registry's swap-and-pop removal does not.
type Entry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence  uint64    `gorm:"autoIncrement;uniqueIndex"`
	Action    string    `gorm:"size:16;index"`
	Issuer    string    `gorm:"size:40;index"`
	Sender    string    `gorm:"size:40;index"`
	Recipient string    `gorm:"size:40;index"`
	ProofID   string    `gorm:"size:64;index"`
	MinAmount string    `gorm:"size:32"`
	MaxAmount string    `gorm:"size:32"`
	Amount    string    `gorm:"size:32"`
	Expiry    int64
	CreatedAt time.Time
}

// AutoMigrate performs the schema migrations for the audit trail.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

// Store persists audit entries through gorm.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewStore wraps an open gorm handle and runs migrations.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &Store{db: db, clock: time.Now}, nil
}

// SetClock overrides the time source (primarily for deterministic testing).
func (s *Store) SetClock(clock func() time.Time) {
	if s == nil || clock == nil {
		return
	}
	s.clock = clock
}

// RecordAdmission appends an admission entry.
func (s *Store) RecordAdmission(issuer, sender, recipient, proofID, minAmount, maxAmount string, expiry int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("audit: store not initialised")
	}
	entry := &Entry{
		ID:        uuid.New(),
		Action:    ActionAdmitted,
		Issuer:    issuer,
		Sender:    sender,
		Recipient: recipient,
		ProofID:   proofID,
		MinAmount: minAmount,
		MaxAmount: maxAmount,
		Expiry:    expiry,
		CreatedAt: s.clock().UTC(),
	}
	return s.db.Create(entry).Error
}

// RecordConsumption appends a consumption entry.
func (s *Store) RecordConsumption(issuer, sender, recipient, proofID, amount string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("audit: store not initialised")
	}
	entry := &Entry{
		ID:        uuid.New(),
		Action:    ActionConsumed,
		Issuer:    issuer,
		Sender:    sender,
		Recipient: recipient,
		ProofID:   proofID,
		Amount:    amount,
		CreatedAt: s.clock().UTC(),
	}
	return s.db.Create(entry).Error
}

// List returns entries in insertion order, optionally filtered to a closed
// timestamp window. Zero bounds disable the respective filter.
func (s *Store) List(startTs, endTs int64) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit: store not initialised")
	}
	query := s.db.Order("sequence asc")
	if startTs != 0 {
		query = query.Where("created_at >= ?", time.Unix(startTs, 0).UTC())
	}
	if endTs != 0 {
		query = query.Where("created_at <= ?", time.Unix(endTs, 0).UTC())
	}
	var entries []Entry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ByProofID returns every entry touching the given hex-encoded identifier in
// insertion order. A fully consumed approval yields two rows.
func (s *Store) ByProofID(proofID string) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit: store not initialised")
	}
	var entries []Entry
	if err := s.db.Where("proof_id = ?", proofID).Order("sequence asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ExportCSV generates a deterministic CSV export covering the provided
// timestamp window, returned base64-encoded alongside the entry count.
func (s *Store) ExportCSV(startTs, endTs int64) (string, int, error) {
	entries, err := s.List(startTs, endTs)
	if err != nil {
		return "", 0, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	header := []string{"sequence", "action", "issuer", "sender", "recipient", "proofId", "minAmount", "maxAmount", "amount", "expiry", "createdAt"}
	if err := writer.Write(header); err != nil {
		return "", 0, err
	}
	for _, entry := range entries {
		row := []string{
			fmt.Sprintf("%d", entry.Sequence),
			entry.Action,
			entry.Issuer,
			entry.Sender,
			entry.Recipient,
			entry.ProofID,
			entry.MinAmount,
			entry.MaxAmount,
			entry.Amount,
			fmt.Sprintf("%d", entry.Expiry),
			entry.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return "", 0, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", 0, err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), len(entries), nil
}
