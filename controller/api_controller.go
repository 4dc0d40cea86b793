package controller

import (
	"encoding/json"

	"github.com/billingcat/smartbill/model"
)

// savedResponse is returned by /save and /delete. Data holds every invoice
// still saved after the change.
type savedResponse struct {
	Message string            `json:"message"`
	Data    []json.RawMessage `json:"data"`
}

type deleteRequest struct {
	InvoiceNumber *string `json:"invoice_number"`
}

// rawInvoices returns the stored payloads, never nil so an empty list is
// encoded as [].
func rawInvoices(invs []model.SavedInvoice) []json.RawMessage {
	out := make([]json.RawMessage, len(invs))
	for i, inv := range invs {
		out[i] = inv.Raw()
	}
	return out
}
