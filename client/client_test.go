package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method      string
	path        string
	contentType string
	body        string
	filename    string
}

// backend is a fake server keeping saved invoices in memory.
type backend struct {
	mu           sync.Mutex
	saved        []json.RawMessage
	requests     []recorded
	extract      string
	brokenList   bool
	listBody     string
	brokenDelete bool
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := recorded{method: r.Method, path: r.URL.Path, contentType: r.Header.Get("Content-Type")}
	if r.URL.Path == pathExtract {
		f, fh, err := r.FormFile("file")
		if err != nil {
			http.Error(w, `{"error":"No file uploaded"}`, http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		f.Close()
		rec.filename = fh.Filename
		rec.body = string(data)
	} else if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		rec.body = string(data)
	}
	b.requests = append(b.requests, rec)

	switch r.URL.Path {
	case pathExtract:
		io.WriteString(w, b.extract)
	case pathSave:
		b.saved = append(b.saved, json.RawMessage(rec.body))
		json.NewEncoder(w).Encode(map[string]any{"message": "Invoice saved!", "data": b.saved})
	case pathGetSaved:
		if b.listBody != "" {
			io.WriteString(w, b.listBody)
			return
		}
		if b.brokenList {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, "<html>Internal Server Error</html>")
			return
		}
		json.NewEncoder(w).Encode(b.saved)
	case pathDelete:
		if b.brokenDelete {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req struct {
			InvoiceNumber string `json:"invoice_number"`
		}
		json.Unmarshal([]byte(rec.body), &req)
		kept := b.saved[:0]
		for _, raw := range b.saved {
			var obj struct {
				InvoiceNumber string `json:"invoice_number"`
			}
			json.Unmarshal(raw, &obj)
			if obj.InvoiceNumber != req.InvoiceNumber {
				kept = append(kept, raw)
			}
		}
		b.saved = kept
		json.NewEncoder(w).Encode(map[string]any{"message": "Invoice deleted!", "data": b.saved})
	default:
		http.NotFound(w, r)
	}
}

func (b *backend) calls() []recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recorded(nil), b.requests...)
}

func (b *backend) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = nil
}

func setup(t *testing.T, b *backend) (*Controller, *Page, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	page := &Page{}
	c, err := New(srv.URL, page)
	require.NoError(t, err)
	return c, page, srv
}

func selectText(page *Page, name, content string) {
	page.SelectFile(&File{Name: name, Content: strings.NewReader(content)})
}

func TestNew(t *testing.T) {
	_, err := New("localhost:5000", &Page{})
	assert.Error(t, err)
	_, err = New("http://localhost:5000", nil)
	assert.Error(t, err)
	c, err := New("http://localhost:5000/", &Page{})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/get_saved", c.endpoint(pathGetSaved))
}

func TestUploadFile_NoFileSelected(t *testing.T) {
	b := &backend{}
	c, page, _ := setup(t, b)

	err := c.UploadFile(context.Background())
	assert.ErrorIs(t, err, ErrNoFile)
	assert.Equal(t, []string{MsgNoFile}, page.Alerts())
	assert.Empty(t, b.calls())
	assert.Nil(t, page.Extraction())
}

func TestUploadFile_FileWithoutContent(t *testing.T) {
	b := &backend{}
	c, page, _ := setup(t, b)
	page.SelectFile(&File{Name: "scan.png"})

	err := c.UploadFile(context.Background())
	assert.ErrorIs(t, err, ErrNoFile)
	assert.Equal(t, []string{MsgNoFile}, page.Alerts())
	assert.Empty(t, b.calls())
}

func TestUploadFile_RendersNormalizedFields(t *testing.T) {
	b := &backend{extract: `{"invoice_number":"Unknown","date":"01/02/2024","vendor":"Acme & Sons","text":"..."}`}
	c, page, _ := setup(t, b)
	selectText(page, "scan.png", "image bytes")

	require.NoError(t, c.UploadFile(context.Background()))

	calls := b.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Equal(t, pathExtract, calls[0].path)
	assert.True(t, strings.HasPrefix(calls[0].contentType, "multipart/form-data"))
	assert.Equal(t, "scan.png", calls[0].filename)
	assert.Equal(t, "image bytes", calls[0].body)

	x := page.Extraction()
	require.NotNil(t, x)
	assert.Equal(t, DisplayFields{
		InvoiceNumber: NotAvailable,
		Date:          "01/02/2024",
		Amount:        NotAvailable,
		Vendor:        "Acme & Sons",
	}, x.Fields)
	out := page.Output()
	assert.Contains(t, out, "<td>N/A</td>")
	assert.Contains(t, out, "<td>01/02/2024</td>")
	assert.Contains(t, out, "Acme &amp; Sons")
	assert.Contains(t, out, "Save Invoice")
	assert.Empty(t, page.Alerts())
}

func TestUploadFile_EscapesMarkup(t *testing.T) {
	b := &backend{extract: `{"vendor":"<script>alert(1)</script>"}`}
	c, page, _ := setup(t, b)
	selectText(page, "x.png", "x")

	require.NoError(t, c.UploadFile(context.Background()))
	assert.NotContains(t, page.Output(), "<script>")
	assert.Equal(t, "<script>alert(1)</script>", page.Extraction().Fields.Vendor)
}

func TestUploadFile_Failure(t *testing.T) {
	b := &backend{extract: "Internal Server Error"}
	c, page, _ := setup(t, b)
	selectText(page, "x.png", "x")

	err := c.UploadFile(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{MsgExtractFailed}, page.Alerts())
	assert.Nil(t, page.Extraction())
}

func TestUploadFile_RejectsNonObjectBody(t *testing.T) {
	for _, body := range []string{`null`, `[]`, `"Unknown"`, `42`} {
		t.Run(body, func(t *testing.T) {
			b := &backend{extract: body}
			c, page, _ := setup(t, b)
			selectText(page, "x.png", "x")

			err := c.UploadFile(context.Background())
			assert.Error(t, err)
			assert.Equal(t, []string{MsgExtractFailed}, page.Alerts())
			assert.Nil(t, page.Extraction())
			assert.ErrorIs(t, page.Save(context.Background()), ErrNoSaveAction)
			assert.Len(t, b.calls(), 1)
		})
	}
}

func TestSave_SubmitsOriginalPayload(t *testing.T) {
	payload := `{"invoice_number":"Unknown","amount":"100"}`
	b := &backend{extract: payload}
	c, page, _ := setup(t, b)
	selectText(page, "x.png", "x")

	require.NoError(t, c.UploadFile(context.Background()))
	assert.Equal(t, NotAvailable, page.Extraction().Fields.InvoiceNumber)
	b.reset()

	require.NoError(t, page.Save(context.Background()))

	calls := b.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, pathSave, calls[0].path)
	assert.Equal(t, contentTypeJSON, calls[0].contentType)
	assert.JSONEq(t, payload, calls[0].body)
	assert.Equal(t, pathGetSaved, calls[1].path)

	rows := page.Rows()
	require.Len(t, rows, 1)
	// the list shows stored values, only missing ones become N/A
	assert.Equal(t, "Unknown", rows[0].InvoiceNumber)
	assert.Equal(t, "100", rows[0].Amount)
	assert.Equal(t, NotAvailable, rows[0].Date)
}

func TestSave_Failure(t *testing.T) {
	b := &backend{}
	c, page, srv := setup(t, b)
	srv.Close()

	err := c.SaveInvoice(context.Background(), ExtractedInvoice{Raw: json.RawMessage(`{"a":"b"}`)})
	assert.Error(t, err)
	assert.Equal(t, []string{MsgSaveFailed}, page.Alerts())
}

func TestDeleteInvoice_RequestBody(t *testing.T) {
	b := &backend{}
	c, _, _ := setup(t, b)

	require.NoError(t, c.DeleteInvoice(context.Background(), "INV-42"))
	calls := b.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Equal(t, pathDelete, calls[0].path)
	assert.Equal(t, `{"invoice_number":"INV-42"}`, calls[0].body)
	assert.Equal(t, pathGetSaved, calls[1].path)
}

func TestDeleteInvoice_ReplacesList(t *testing.T) {
	b := &backend{saved: []json.RawMessage{
		json.RawMessage(`{"invoice_number":"INV-1","date":"01/01/2024","amount":"10.00"}`),
		json.RawMessage(`{"invoice_number":"INV-2","amount":"20.00"}`),
		json.RawMessage(`{"invoice_number":"INV-1","date":"02/01/2024","amount":"11.00"}`),
	}}
	c, page, _ := setup(t, b)

	require.NoError(t, c.Load(context.Background()))
	require.Len(t, page.Rows(), 3)

	require.NoError(t, page.Delete(context.Background(), 0))

	rows := page.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "INV-2", rows[0].InvoiceNumber)
	assert.Equal(t, NotAvailable, rows[0].Date)
	assert.Equal(t, "20.00", rows[0].Amount)
	assert.NotContains(t, page.TableBody(), "INV-1")
	require.Len(t, c.Invoices(), 1)
	assert.Equal(t, "INV-2", c.Invoices()[0].Key())
}

func TestDeleteInvoice_Failure(t *testing.T) {
	b := &backend{
		saved:        []json.RawMessage{json.RawMessage(`{"invoice_number":"INV-1"}`)},
		brokenDelete: true,
	}
	c, page, _ := setup(t, b)
	require.NoError(t, c.Load(context.Background()))

	err := c.DeleteInvoice(context.Background(), "INV-1")
	assert.Error(t, err)
	assert.Equal(t, []string{MsgDeleteFailed}, page.Alerts())
	assert.Len(t, page.Rows(), 1)
}

func TestLoadInvoices_FailureKeepsRows(t *testing.T) {
	b := &backend{saved: []json.RawMessage{
		json.RawMessage(`{"invoice_number":"A-1","date":"01/01/2024","amount":"1.00"}`),
		json.RawMessage(`{"invoice_number":"A-2","date":"01/02/2024","amount":"2.00"}`),
	}}
	c, page, _ := setup(t, b)
	require.NoError(t, c.LoadInvoices(context.Background()))
	before := page.TableBody()
	require.Contains(t, before, "A-2")

	b.mu.Lock()
	b.brokenList = true
	b.mu.Unlock()

	err := c.LoadInvoices(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{MsgLoadFailed}, page.Alerts())
	assert.Equal(t, before, page.TableBody())
	assert.Len(t, page.Rows(), 2)
	assert.Len(t, c.Invoices(), 2)
}

func TestLoadInvoices_NullBodyKeepsRows(t *testing.T) {
	for _, body := range []string{`null`, `{}`, `[null]`, `[{"invoice_number":"A-3"},1]`, `"x"`} {
		t.Run(body, func(t *testing.T) {
			b := &backend{saved: []json.RawMessage{
				json.RawMessage(`{"invoice_number":"A-1"}`),
				json.RawMessage(`{"invoice_number":"A-2"}`),
			}}
			c, page, _ := setup(t, b)
			require.NoError(t, c.LoadInvoices(context.Background()))
			before := page.TableBody()

			b.mu.Lock()
			b.listBody = body
			b.mu.Unlock()

			err := c.LoadInvoices(context.Background())
			assert.Error(t, err)
			assert.Equal(t, []string{MsgLoadFailed}, page.Alerts())
			assert.Equal(t, before, page.TableBody())
			assert.Len(t, page.Rows(), 2)
			assert.Len(t, c.Invoices(), 2)
		})
	}
}

func TestLoadInvoices_StatusNotInspected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `[{"invoice_number":"X-9"}]`)
	}))
	defer srv.Close()
	page := &Page{}
	c, err := New(srv.URL, page)
	require.NoError(t, err)

	require.NoError(t, c.LoadInvoices(context.Background()))
	require.Len(t, page.Rows(), 1)
	assert.Equal(t, "X-9", page.Rows()[0].InvoiceNumber)
	assert.Empty(t, page.Alerts())
}

func TestDownloadExcel_Navigates(t *testing.T) {
	b := &backend{}
	c, page, srv := setup(t, b)

	c.DownloadExcel()
	assert.Equal(t, srv.URL+"/download", page.Location())
	assert.Empty(t, b.calls())
}

func TestPageSaveWithoutExtraction(t *testing.T) {
	page := &Page{}
	assert.ErrorIs(t, page.Save(context.Background()), ErrNoSaveAction)
	assert.Error(t, page.Delete(context.Background(), 0))
}

func TestFieldDisplay(t *testing.T) {
	testdata := []struct {
		raw     string
		display string
		orNA    string
	}{
		{``, NotAvailable, NotAvailable},
		{`null`, NotAvailable, NotAvailable},
		{`""`, NotAvailable, NotAvailable},
		{`"Unknown"`, NotAvailable, "Unknown"},
		{`"INV-1"`, "INV-1", "INV-1"},
		{`"unknown"`, "unknown", "unknown"},
		{`100`, "100", "100"},
		{`12.50`, "12.5", "12.5"},
		{`0`, NotAvailable, NotAvailable},
		{`false`, NotAvailable, NotAvailable},
		{`true`, "true", "true"},
	}
	for _, td := range testdata {
		f := Field(td.raw)
		if got := f.Display(); got != td.display {
			t.Errorf("Field(%q).Display() = %q, want %q", td.raw, got, td.display)
		}
		if got := f.OrNA(); got != td.orNA {
			t.Errorf("Field(%q).OrNA() = %q, want %q", td.raw, got, td.orNA)
		}
	}
}
