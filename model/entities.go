package model

import "strings"

// MergeEntities collapses BIO-tagged tokens into entity values. "B-X" starts
// an entity X, "I-X" continues the open one and "O" closes it. Repeated
// entities of the same kind are concatenated. Word pieces ("##oice") are glued
// to the preceding token and padding tokens are dropped.
func MergeEntities(tokens, labels []string) map[string]string {
	entities := map[string]string{}
	current := ""
	var parts []string

	flush := func() {
		if current != "" && len(parts) > 0 {
			if prev, ok := entities[current]; ok && prev != "" {
				entities[current] = prev + " " + joinPieces(parts)
			} else {
				entities[current] = joinPieces(parts)
			}
		}
		current = ""
		parts = nil
	}

	n := min(len(tokens), len(labels))
	for i := 0; i < n; i++ {
		tok, label := tokens[i], labels[i]
		switch {
		case label == "O":
			flush()
		case strings.HasPrefix(label, "B-"):
			flush()
			current = label[2:]
			parts = []string{tok}
		case strings.HasPrefix(label, "I-") && current != "":
			parts = append(parts, tok)
		}
	}
	flush()

	for k, v := range entities {
		entities[k] = strings.TrimSpace(v)
	}
	return entities
}

func joinPieces(parts []string) string {
	var sb strings.Builder
	for _, p := range parts {
		p = strings.ReplaceAll(p, "[PAD]", "")
		if p == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(p, "##"); ok {
			sb.WriteString(rest)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(p)
	}
	return sb.String()
}

// ApplyEntities fills fields that are still Unknown from tagged entities.
// Entity names are matched case-insensitively against the JSON field names.
func (f *ExtractedFields) ApplyEntities(entities map[string]string) {
	for name, value := range entities {
		if value == "" {
			continue
		}
		var dst *string
		switch strings.ToLower(name) {
		case "vendor":
			dst = &f.Vendor
		case "vendor_address":
			dst = &f.VendorAddress
		case "invoice_number":
			dst = &f.InvoiceNumber
		case "date":
			dst = &f.Date
		case "amount":
			dst = &f.Amount
		default:
			continue
		}
		if *dst == Unknown {
			*dst = value
		}
	}
}
