package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/billingcat/smartbill/model"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	exportFilename = "invoices.xlsx"
	exportSheet    = "Sheet1"
	mimeXLSX       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (ctrl *controller) downloadExcel(c echo.Context) error {
	invs, err := ctrl.model.ListSavedInvoices()
	if err != nil {
		return ErrInternal(fmt.Errorf("cannot load invoices for export: %w", err))
	}
	f, err := invoicesWorkbook(invs)
	if err != nil {
		return ErrInternal(err)
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return ErrInternal(fmt.Errorf("cannot write workbook: %w", err))
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", exportFilename))
	return c.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
}

// invoicesWorkbook writes one row per saved invoice. The header is the union
// of all keys in the order they first appear.
func invoicesWorkbook(invs []model.SavedInvoice) (*excelize.File, error) {
	var columns []string
	colIndex := map[string]int{}
	records := make([]map[string]json.RawMessage, 0, len(invs))

	for _, inv := range invs {
		keys, values, err := orderedObject(inv.Raw())
		if err != nil {
			return nil, fmt.Errorf("invoice %d: %w", inv.ID, err)
		}
		for _, k := range keys {
			if _, ok := colIndex[k]; !ok {
				colIndex[k] = len(columns)
				columns = append(columns, k)
			}
		}
		records = append(records, values)
	}

	f := excelize.NewFile()
	if len(columns) == 0 {
		return f, nil
	}
	header := make([]any, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		f.Close()
		return nil, err
	}
	for r, rec := range records {
		row := make([]any, len(columns))
		for k, raw := range rec {
			row[colIndex[k]] = cellValue(raw)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// orderedObject decodes a JSON object and returns its keys in document order.
func orderedObject(raw json.RawMessage) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, model.ErrNotAnObject
	}
	var keys []string
	values := map[string]json.RawMessage{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = v
	}
	return keys, values, nil
}

// cellValue converts a JSON value into something excelize writes natively:
// strings stay text, numbers become numeric cells, nested values are written
// as JSON text.
func cellValue(raw json.RawMessage) any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case 'n':
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b
		}
	case '{', '[':
		return string(raw)
	default:
		if d, err := decimal.NewFromString(string(raw)); err == nil {
			if d.IsInteger() && d.Abs().LessThan(decimal.New(1, 15)) {
				return d.IntPart()
			}
			return d.InexactFloat64()
		}
	}
	return string(raw)
}
