package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoSaveAction is returned by Page.Save when nothing was extracted yet.
var ErrNoSaveAction = errors.New("no extracted invoice to save")

// Page is an in-memory View. It keeps what a browser page would show: the
// selected file, the output region, the invoice table body, the alerts and
// the current location.
type Page struct {
	mu         sync.Mutex
	file       *File
	extraction *Extraction
	table      *InvoiceTable
	alerts     []string
	location   string
}

var _ View = (*Page)(nil)

// SelectFile sets the file picked for upload, nil clears it.
func (p *Page) SelectFile(f *File) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.file = f
}

func (p *Page) SelectedFile() *File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file
}

func (p *Page) Alert(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, msg)
}

func (p *Page) ShowExtraction(x *Extraction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extraction = x
}

func (p *Page) ShowInvoices(t *InvoiceTable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table = t
}

func (p *Page) Navigate(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = u
}

// Alerts returns all alerts shown so far.
func (p *Page) Alerts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.alerts...)
}

// Location is the last URL navigated to.
func (p *Page) Location() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location
}

// Output returns the HTML of the extraction region.
func (p *Page) Output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.extraction == nil {
		return ""
	}
	return p.extraction.HTML
}

// Extraction returns the currently shown extraction or nil.
func (p *Page) Extraction() *Extraction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.extraction
}

// Rows returns the rendered invoice rows.
func (p *Page) Rows() []InvoiceRow {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.table == nil {
		return nil
	}
	return append([]InvoiceRow(nil), p.table.Rows...)
}

// TableBody returns the HTML of the invoice table body.
func (p *Page) TableBody() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.table == nil {
		return ""
	}
	return p.table.HTML
}

// Save triggers the save button of the extraction region.
func (p *Page) Save(ctx context.Context) error {
	x := p.Extraction()
	if x == nil || x.Save == nil {
		return ErrNoSaveAction
	}
	return x.Save(ctx)
}

// Delete triggers the delete button of row i.
func (p *Page) Delete(ctx context.Context, i int) error {
	rows := p.Rows()
	if i < 0 || i >= len(rows) {
		return fmt.Errorf("no invoice row %d", i)
	}
	return rows[i].Delete(ctx)
}
