// Package client drives the invoice page: it reacts to user actions, calls the
// backend endpoints and hands the results to a View.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Messages shown to the user when an operation fails.
const (
	MsgNoFile         = "Please upload a file!"
	MsgExtractFailed  = "Failed to extract data. Please try again."
	MsgSaveFailed     = "Failed to save invoice."
	MsgLoadFailed     = "Failed to load saved invoices."
	MsgDeleteFailed   = "Failed to delete invoice."
	pathExtract       = "/extract"
	pathSave          = "/save"
	pathGetSaved      = "/get_saved"
	pathDelete        = "/delete"
	pathDownload      = "/download"
	uploadFormField   = "file"
	contentTypeJSON   = "application/json"
	defaultUploadName = "upload"
)

// ErrNoFile is returned by UploadFile when no file is selected.
var ErrNoFile = errors.New("no file selected")

// File is a document selected for upload. A File without Content counts as
// no selection.
type File struct {
	Name    string
	Content io.Reader
}

// Extraction is what the view shows after a successful upload. Save stores
// the invoice exactly as the backend returned it.
type Extraction struct {
	Invoice ExtractedInvoice
	Fields  DisplayFields
	HTML    string
	Save    func(ctx context.Context) error
}

// InvoiceRow is one rendered row of the saved-invoice list.
type InvoiceRow struct {
	InvoiceNumber string
	Date          string
	Amount        string
	Delete        func(ctx context.Context) error
}

// InvoiceTable replaces the whole saved-invoice list.
type InvoiceTable struct {
	Rows []InvoiceRow
	HTML string
}

// View is the page the controller renders into.
type View interface {
	// SelectedFile returns the file chosen by the user or nil.
	SelectedFile() *File
	Alert(msg string)
	ShowExtraction(x *Extraction)
	ShowInvoices(t *InvoiceTable)
	// Navigate leaves the page for the given URL.
	Navigate(u string)
}

// Controller performs the page operations against one backend.
type Controller struct {
	base   *url.URL
	http   *http.Client
	view   View
	logger *slog.Logger

	mu       sync.Mutex
	invoices []InvoiceListItem
}

// Option configures a Controller.
type Option func(*Controller)

// WithHTTPClient sets the HTTP client. The default has no timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Controller) { c.http = hc }
}

// WithLogger sets the logger failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New returns a controller for the backend at baseURL.
func New(baseURL string, view View, opts ...Option) (*Controller, error) {
	if view == nil {
		return nil, errors.New("client: view is nil")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: base url %q needs scheme and host", baseURL)
	}
	c := &Controller{
		base:   u,
		http:   &http.Client{},
		view:   view,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) endpoint(p string) string {
	u := *c.base
	u.Path = u.Path + p
	return u.String()
}

// exchange sends req and decodes the JSON body into out. The status code is
// not inspected: a body that decodes is a success.
func (c *Controller) exchange(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s (status %d): %w", req.URL.Path, resp.StatusCode, err)
	}
	return nil
}

func (c *Controller) fail(op, msg string, err error) error {
	c.logger.Error(op+" failed", "error", err)
	c.view.Alert(msg)
	return fmt.Errorf("%s: %w", op, err)
}

// Load populates the page when it is opened.
func (c *Controller) Load(ctx context.Context) error {
	return c.LoadInvoices(ctx)
}

// UploadFile sends the selected file to the extraction endpoint and shows the
// extracted fields.
func (c *Controller) UploadFile(ctx context.Context) error {
	f := c.view.SelectedFile()
	if f == nil || f.Content == nil {
		c.view.Alert(MsgNoFile)
		return ErrNoFile
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	name := f.Name
	if name == "" {
		name = defaultUploadName
	}
	part, err := mw.CreateFormFile(uploadFormField, name)
	if err != nil {
		return c.fail("extract", MsgExtractFailed, err)
	}
	if _, err := io.Copy(part, f.Content); err != nil {
		return c.fail("extract", MsgExtractFailed, err)
	}
	if err := mw.Close(); err != nil {
		return c.fail("extract", MsgExtractFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(pathExtract), &buf)
	if err != nil {
		return c.fail("extract", MsgExtractFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var raw json.RawMessage
	if err := c.exchange(req, &raw); err != nil {
		return c.fail("extract", MsgExtractFailed, err)
	}
	inv, err := decodeExtraction(raw)
	if err != nil {
		return c.fail("extract", MsgExtractFailed, err)
	}
	c.logger.Debug("extracted data", "invoice_number", inv.InvoiceNumber.String())

	fields := inv.Display()
	html, err := renderExtraction(fields)
	if err != nil {
		return c.fail("extract", MsgExtractFailed, err)
	}
	c.view.ShowExtraction(&Extraction{
		Invoice: inv,
		Fields:  fields,
		HTML:    html,
		Save: func(ctx context.Context) error {
			return c.SaveInvoice(ctx, inv)
		},
	})
	return nil
}

// SaveInvoice stores the invoice as it was returned by the extraction
// endpoint and refreshes the list.
func (c *Controller) SaveInvoice(ctx context.Context, inv ExtractedInvoice) error {
	body := inv.Raw
	if len(body) == 0 {
		var err error
		if body, err = json.Marshal(inv); err != nil {
			return c.fail("save", MsgSaveFailed, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(pathSave), bytes.NewReader(body))
	if err != nil {
		return c.fail("save", MsgSaveFailed, err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	var resp json.RawMessage
	if err := c.exchange(req, &resp); err != nil {
		return c.fail("save", MsgSaveFailed, err)
	}
	return c.LoadInvoices(ctx)
}

// LoadInvoices fetches all saved invoices and replaces the rendered list. On
// failure the list stays as it was.
func (c *Controller) LoadInvoices(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(pathGetSaved), nil)
	if err != nil {
		return c.fail("load", MsgLoadFailed, err)
	}
	var raw json.RawMessage
	if err := c.exchange(req, &raw); err != nil {
		return c.fail("load", MsgLoadFailed, err)
	}
	items, err := decodeInvoiceList(raw)
	if err != nil {
		return c.fail("load", MsgLoadFailed, err)
	}

	rows := make([]InvoiceRow, len(items))
	for i, it := range items {
		key := it.Key()
		rows[i] = InvoiceRow{
			InvoiceNumber: it.InvoiceNumber.OrNA(),
			Date:          it.Date.OrNA(),
			Amount:        it.Amount.OrNA(),
			Delete: func(ctx context.Context) error {
				return c.DeleteInvoice(ctx, key)
			},
		}
	}
	html, err := renderRows(rows)
	if err != nil {
		return c.fail("load", MsgLoadFailed, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.invoices = items
	c.view.ShowInvoices(&InvoiceTable{Rows: rows, HTML: html})
	return nil
}

type deleteRequest struct {
	InvoiceNumber string `json:"invoice_number"`
}

// DeleteInvoice removes all saved invoices with the given number and
// refreshes the list.
func (c *Controller) DeleteInvoice(ctx context.Context, number string) error {
	body, err := json.Marshal(deleteRequest{InvoiceNumber: number})
	if err != nil {
		return c.fail("delete", MsgDeleteFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(pathDelete), bytes.NewReader(body))
	if err != nil {
		return c.fail("delete", MsgDeleteFailed, err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	var resp json.RawMessage
	if err := c.exchange(req, &resp); err != nil {
		return c.fail("delete", MsgDeleteFailed, err)
	}
	return c.LoadInvoices(ctx)
}

// DownloadExcel navigates to the spreadsheet export.
func (c *Controller) DownloadExcel() {
	c.view.Navigate(c.endpoint(pathDownload))
}

// Invoices returns the list from the last successful refresh.
func (c *Controller) Invoices() []InvoiceListItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]InvoiceListItem, len(c.invoices))
	copy(out, c.invoices)
	return out
}
