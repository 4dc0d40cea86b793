package client

import (
	"html/template"
	"strings"
)

var extractionTmpl = template.Must(template.New("extraction").Parse(`<h3>Extracted Data:</h3>
<table>
<tr><td><strong>Invoice No:</strong></td><td>{{.InvoiceNumber}}</td></tr>
<tr><td><strong>Date:</strong></td><td>{{.Date}}</td></tr>
<tr><td><strong>Amount:</strong></td><td>{{.Amount}}</td></tr>
<tr><td><strong>Vendor:</strong></td><td>{{.Vendor}}</td></tr>
</table>
<button type="button" data-action="save">Save Invoice</button>
`))

var rowsTmpl = template.Must(template.New("rows").Parse(`{{range .}}<tr>
<td>{{.InvoiceNumber}}</td>
<td>{{.Date}}</td>
<td>{{.Amount}}</td>
<td><button type="button" data-action="delete">Delete</button></td>
</tr>
{{end}}`))

func renderExtraction(f DisplayFields) (string, error) {
	var sb strings.Builder
	if err := extractionTmpl.Execute(&sb, f); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func renderRows(rows []InvoiceRow) (string, error) {
	var sb strings.Builder
	if err := rowsTmpl.Execute(&sb, rows); err != nil {
		return "", err
	}
	return sb.String(), nil
}
