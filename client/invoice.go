package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// NotAvailable is shown for fields that are missing or were not extracted.
const NotAvailable = "N/A"

// Unknown is the value the extraction endpoint uses for fields it could not
// find.
const Unknown = "Unknown"

var (
	errNotObject = errors.New("response is not a JSON object")
	errNotList   = errors.New("response is not a JSON array of objects")
)

// jsonKind returns the first significant byte of a JSON value, 0 if empty.
func jsonKind(raw []byte) byte {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// Field is a single JSON value from a response, kept as received.
type Field json.RawMessage

// UnmarshalJSON keeps a copy of the raw value.
func (f *Field) UnmarshalJSON(b []byte) error {
	*f = append((*f)[:0], b...)
	return nil
}

// MarshalJSON writes the value back unchanged.
func (f Field) MarshalJSON() ([]byte, error) {
	if len(f) == 0 {
		return []byte("null"), nil
	}
	return []byte(f), nil
}

// text returns the value as display text and whether it counts as present.
// Absent, null, false, empty strings and zero are not present.
func (f Field) text() (string, bool) {
	b := bytes.TrimSpace(f)
	if len(b) == 0 {
		return "", false
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false
		}
		return s, s != ""
	case 'n', 'f':
		return "", false
	case 't':
		return "true", true
	case '{', '[':
		return string(b), true
	default:
		n, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return string(b), true
		}
		return strconv.FormatFloat(n, 'f', -1, 64), n != 0
	}
}

// Display returns the value for the extraction table: the sentinel Unknown and
// missing values become N/A.
func (f Field) Display() string {
	s, ok := f.text()
	if !ok || s == Unknown {
		return NotAvailable
	}
	return s
}

// OrNA returns the value for the saved-invoice list, N/A when missing.
func (f Field) OrNA() string {
	s, ok := f.text()
	if !ok {
		return NotAvailable
	}
	return s
}

// String returns the raw text of the value, empty when missing.
func (f Field) String() string {
	s, _ := f.text()
	return s
}

// ExtractedInvoice is the response of the extraction endpoint. Raw holds the
// complete response body; saving submits Raw, never the display values.
type ExtractedInvoice struct {
	InvoiceNumber Field `json:"invoice_number"`
	Date          Field `json:"date"`
	Amount        Field `json:"amount"`
	Vendor        Field `json:"vendor"`

	Raw json.RawMessage `json:"-"`
}

// DisplayFields are the normalized values shown after an extraction.
type DisplayFields struct {
	InvoiceNumber string
	Date          string
	Amount        string
	Vendor        string
}

// Display normalizes all four fields.
func (x ExtractedInvoice) Display() DisplayFields {
	return DisplayFields{
		InvoiceNumber: x.InvoiceNumber.Display(),
		Date:          x.Date.Display(),
		Amount:        x.Amount.Display(),
		Vendor:        x.Vendor.Display(),
	}
}

// InvoiceListItem is one entry of the saved-invoice list.
type InvoiceListItem struct {
	InvoiceNumber Field `json:"invoice_number"`
	Date          Field `json:"date"`
	Amount        Field `json:"amount"`
}

// Key is the invoice number used to delete the item.
func (it InvoiceListItem) Key() string {
	return it.InvoiceNumber.String()
}

// decodeExtraction parses the extraction response, which must be an object.
func decodeExtraction(raw json.RawMessage) (ExtractedInvoice, error) {
	var inv ExtractedInvoice
	if jsonKind(raw) != '{' {
		return inv, errNotObject
	}
	if err := json.Unmarshal(raw, &inv); err != nil {
		return inv, err
	}
	inv.Raw = raw
	return inv, nil
}

// decodeInvoiceList parses the saved-invoice list, an array of objects.
func decodeInvoiceList(raw json.RawMessage) ([]InvoiceListItem, error) {
	if jsonKind(raw) != '[' {
		return nil, errNotList
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	items := make([]InvoiceListItem, len(elems))
	for i, e := range elems {
		if jsonKind(e) != '{' {
			return nil, fmt.Errorf("item %d: %w", i, errNotList)
		}
		if err := json.Unmarshal(e, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}
