package merge

import (
	"fmt"
	"strings"
)

// NoEmailSentinel marks a merged email whose recipient has no usable
// address. Such rows preview fine but must never be handed to a transport.
const NoEmailSentinel = "[No Email Found]"

// QuickPreviewLimit is the number of rows shown on the assistant's quick
// preview path.
const QuickPreviewLimit = 3

// MergedEmail is the result of applying one template to one recipient.
type MergedEmail struct {
	Index   int
	To      string
	Subject string
	Body    string
}

// Sendable reports whether the merged email has a real destination address.
func (m MergedEmail) Sendable() bool {
	return m.To != NoEmailSentinel
}

// Preview renders the template against each recipient in table order. A
// limit <= 0 means all recipients. Recipients without a usable address get
// the NoEmailSentinel as their To.
func Preview(recipients []Recipient, tmpl Template, limit int) []MergedEmail {
	if limit <= 0 || limit > len(recipients) {
		limit = len(recipients)
	}
	out := make([]MergedEmail, 0, limit)
	for i, r := range recipients[:limit] {
		to := EmailOf(r)
		if to == "" {
			to = NoEmailSentinel
		}
		out = append(out, MergedEmail{
			Index:   i,
			To:      to,
			Subject: Render(tmpl.Subject, r),
			Body:    Render(tmpl.Body, r),
		})
	}
	return out
}

// Format selects an export rendering.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// Export renders the whole batch into a single exportable string. Empty
// input yields an empty string. Recipient data is untrusted, so the CSV and
// HTML renderings escape every interpolated value.
func Export(tbl Table, tmpl Template, format Format) (string, error) {
	if len(tbl.Recipients) == 0 {
		return "", nil
	}
	merged := Preview(tbl.Recipients, tmpl, 0)

	switch format {
	case FormatText:
		blocks := make([]string, len(merged))
		for i, m := range merged {
			blocks[i] = fmt.Sprintf("To: %s\nSubject: %s\n---\n%s\n\n====================\n", m.To, m.Subject, m.Body)
		}
		return strings.Join(blocks, "\n"), nil

	case FormatCSV:
		return exportCSV(tbl, merged), nil

	case FormatHTML:
		blocks := make([]string, len(merged))
		for i, m := range merged {
			blocks[i] = fmt.Sprintf("<!-- Email to: %s -->\n<p><strong>Subject:</strong> %s</p>\n<div>%s</div>\n\n<hr />\n",
				escapeHTML(m.To),
				escapeHTML(m.Subject),
				strings.ReplaceAll(escapeHTML(m.Body), "\n", "<br />"))
		}
		return strings.Join(blocks, "\n"), nil

	default:
		return "", fmt.Errorf("unknown export format: %q", format)
	}
}

func exportCSV(tbl Table, merged []MergedEmail) string {
	headers := make([]string, 0, len(tbl.Headers)+2)
	headers = append(headers, tbl.Headers...)
	headers = append(headers, "GeneratedSubject", "GeneratedBody")

	rows := make([]string, 0, len(merged)+1)
	rows = append(rows, joinCSVRow(headers))
	for i, r := range tbl.Recipients {
		fields := make([]string, 0, len(headers))
		for _, h := range tbl.Headers {
			fields = append(fields, r[h])
		}
		fields = append(fields, merged[i].Subject, merged[i].Body)
		rows = append(rows, joinCSVRow(fields))
	}
	return strings.Join(rows, "\n")
}

func joinCSVRow(fields []string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = escapeCSVField(f)
	}
	return strings.Join(escaped, ",")
}

// escapeCSVField neutralizes spreadsheet formula injection before applying
// RFC4180 quoting. The order matters: the leading quote is part of the raw
// value and must itself survive quoting.
func escapeCSVField(field string) string {
	if len(field) > 0 {
		switch field[0] {
		case '=', '+', '-', '@':
			field = "'" + field
		}
	}
	if strings.ContainsAny(field, ",\"\n") {
		return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
	}
	return field
}

// htmlEscaper covers the characters a recipient value could use to break
// out of markup, including the forward slash used to close tags.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
	"/", "&#x2F;",
)

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
