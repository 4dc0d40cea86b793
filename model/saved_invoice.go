package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrNotAnObject is returned when a payload to be saved is not a JSON object.
var ErrNotAnObject = errors.New("invoice payload must be a JSON object")

// SavedInvoice is one invoice record stored by the user. The payload is kept
// exactly as it was submitted (compacted), so fields the page does not know
// about survive a round trip.
type SavedInvoice struct {
	ID            uint `gorm:"primarykey"`
	CreatedAt     time.Time
	InvoiceNumber *string `gorm:"index"`
	Payload       string  `gorm:"type:text;not null"`
}

// Raw returns the stored payload as a json.RawMessage.
func (si SavedInvoice) Raw() json.RawMessage {
	return json.RawMessage(si.Payload)
}

// NewSavedInvoice validates raw and prepares a record for it. The invoice
// number is taken from the "invoice_number" member if that is a string.
func NewSavedInvoice(raw []byte) (*SavedInvoice, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, ErrNotAnObject
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("cannot compact payload: %w", err)
	}
	si := &SavedInvoice{Payload: buf.String()}
	if num, ok := fields["invoice_number"]; ok {
		var s string
		if json.Unmarshal(num, &s) == nil {
			si.InvoiceNumber = &s
		}
	}
	return si, nil
}

// SaveInvoice appends a new record for the given JSON object.
func (s *Store) SaveInvoice(raw []byte) (*SavedInvoice, error) {
	si, err := NewSavedInvoice(raw)
	if err != nil {
		return nil, err
	}
	if err = s.db.Create(si).Error; err != nil {
		return nil, err
	}
	return si, nil
}

// ListSavedInvoices returns all saved invoices in insertion order.
func (s *Store) ListSavedInvoices() ([]SavedInvoice, error) {
	var invs []SavedInvoice
	if err := s.db.Order("id asc").Find(&invs).Error; err != nil {
		return nil, err
	}
	return invs, nil
}

// DeleteInvoicesByNumber removes every saved invoice with the given number and
// returns how many were removed. Invoice numbers are not unique, all matches
// go.
func (s *Store) DeleteInvoicesByNumber(number string) (int64, error) {
	res := s.db.Where("invoice_number = ?", number).Delete(&SavedInvoice{})
	return res.RowsAffected, res.Error
}

// Transaction runs fn inside a database transaction bound to a copy of the
// store.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(db *gorm.DB) error {
		return fn(&Store{db: db, Config: s.Config})
	})
}
