package model

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Unknown marks a field that could not be extracted.
const Unknown = "Unknown"

// ExtractedFields is the result of parsing the OCR text of one invoice. The
// JSON layout is what POST /extract returns.
type ExtractedFields struct {
	Vendor        string `json:"vendor"`
	VendorAddress string `json:"vendor_address"`
	InvoiceNumber string `json:"invoice_number"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	Text          string `json:"text"`
}

// NewExtractedFields returns fields with every value set to Unknown.
func NewExtractedFields() ExtractedFields {
	return ExtractedFields{
		Vendor:        Unknown,
		VendorAddress: Unknown,
		InvoiceNumber: Unknown,
		Date:          Unknown,
		Amount:        Unknown,
	}
}

var (
	reFirm      = regexp.MustCompile(`(?i)([A-Z][A-Za-z,&\s]+(?:LLP|LLC|P\.?C\.?|Inc\.?|Group))`)
	reRemitTo   = regexp.MustCompile(`(?i)Remit To:\s*(.*?)\n`)
	reDigit     = regexp.MustCompile(`\d`)
	reMatterRow = regexp.MustCompile(`(?is)Matter\s*#.*?Invoice\s*#.*?Amount.*?\n\S+\s*[| ]\s*(\d{1,2}/\d{1,2}/\d{4})\s+(\d+)\s+\$?([\d,]+\.\d{2})`)
	reDates     = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Invoice Date|Date Issued|Date)[\s:]*([0-9]{1,2}/[0-9]{1,2}/[0-9]{4})`),
		regexp.MustCompile(`(?i)(?:Invoice Date|Date Issued|Date)[\s:]*([A-Za-z]+ \d{1,2}, \d{4})`),
	}
	reInvoiceNumber = regexp.MustCompile(`(?i)(?:Invoice\s*(#|No\.?|Number)?[\s:]*)\s*(\d{4,})`)
	reAmounts       = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Balance Due[\s:]*\$?([\d,]+\.\d{2})`),
		regexp.MustCompile(`(?i)Total Due[\s:]*\$?([\d,]+\.\d{2})`),
		regexp.MustCompile(`(?i)Amount Due[\s:]*\$?([\d,]+\.\d{2})`),
		regexp.MustCompile(`(?i)Total[\s:]*\$?([\d,]+\.\d{2})`),
		regexp.MustCompile(`(?i)Grand Total[\s:]*\$?([\d,]+\.\d{2})`),
	}
)

// ParseInvoiceDetails runs the extraction rules over text. Each rule only
// fills fields that are still Unknown, so earlier rules win.
func ParseInvoiceDetails(text string) ExtractedFields {
	f := NewExtractedFields()
	lines := strings.Split(strings.TrimSpace(text), "\n")

	// vendor: legal suffix, then the remit-to block
	if m := reFirm.FindStringSubmatch(text); m != nil {
		f.Vendor = strings.TrimSpace(m[1])
	} else if m := reRemitTo.FindStringSubmatch(text); m != nil {
		block := strings.TrimSpace(m[1])
		if block != "" {
			f.Vendor = strings.TrimSpace(strings.Split(block, "\n")[0])
			f.VendorAddress = strings.ReplaceAll(block, "\n", " ")
		}
	}

	// vendor: first short all-caps line near the top
	if f.Vendor == Unknown {
		for i, line := range lines {
			if i >= 10 {
				break
			}
			l := strings.TrimSpace(line)
			if isUpper(l) &&
				len(strings.Fields(l)) <= 6 &&
				!strings.Contains(strings.ToUpper(line), "ATTORNEY") &&
				!reDigit.MatchString(line) {
				f.Vendor = cases.Title(language.English).String(l)
				break
			}
		}
	}

	if m := reMatterRow.FindStringSubmatch(text); m != nil {
		f.Date = strings.TrimSpace(m[1])
		f.InvoiceNumber = strings.TrimSpace(m[2])
		f.Amount = strings.TrimSpace(m[3])
	}

	if f.Date == Unknown {
		for _, re := range reDates {
			if m := re.FindStringSubmatch(text); m != nil {
				f.Date = normalizeDate(strings.TrimSpace(m[1]))
				break
			}
		}
	}

	if f.InvoiceNumber == Unknown {
		if m := reInvoiceNumber.FindStringSubmatch(text); m != nil {
			f.InvoiceNumber = strings.TrimSpace(m[2])
		}
	}

	if f.Amount == Unknown {
		for _, re := range reAmounts {
			if m := re.FindStringSubmatch(text); m != nil {
				f.Amount = strings.TrimSpace(m[1])
				break
			}
		}
	}
	return f
}

// normalizeDate turns "March 5, 2024" into "03/05/2024". Anything else is
// returned unchanged.
func normalizeDate(s string) string {
	t, err := time.Parse("January 2, 2006", s)
	if err != nil {
		return s
	}
	return t.Format("01/02/2006")
}

// isUpper reports whether s has at least one cased letter and no lower case
// letters.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}
