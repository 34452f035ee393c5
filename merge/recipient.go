package merge

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strings"
)

// Recipient is one row of merge data, keyed by field name. Field names are
// case-sensitive and shared by every recipient in a Table.
type Recipient map[string]string

// Table holds parsed recipients together with the header order they were
// loaded with. The header order is what exports use for column ordering.
type Table struct {
	Headers    []string
	Recipients []Recipient
}

// ParseWarning reports a non-fatal problem found while parsing input rows.
// Row is 1-based and counts the header row, matching what a user sees in
// their spreadsheet or CSV file.
type ParseWarning struct {
	Row     int
	Message string
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("row %d: %s", w.Row, w.Message)
}

// emailPattern is deliberately loose: anything@anything.anything. Email
// validity is advisory at parse time, rows with bad addresses are kept.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ParseCSV parses CSV text into a Table. Rows whose column count does not
// match the header are skipped with a warning; rows with invalid email
// syntax are kept with a warning. An empty input yields an empty Table.
func ParseCSV(text string) (Table, []ParseWarning, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Table{}, nil, nil
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1 // row length checked below so we can warn per row
	rows, err := r.ReadAll()
	if err != nil {
		return Table{}, nil, fmt.Errorf("unable to parse CSV: %w", err)
	}
	if len(rows) == 0 {
		return Table{}, nil, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	var warnings []ParseWarning
	recipients := make([]Recipient, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rowNum := i + 2
		if len(row) != len(headers) {
			warnings = append(warnings, ParseWarning{Row: rowNum, Message: "column count mismatch, row skipped"})
			continue
		}
		rec := Recipient{}
		for j, h := range headers {
			rec[h] = strings.TrimSpace(row[j])
		}
		if addr, ok := emailField(rec); ok && addr != "" && !ValidEmail(addr) {
			warnings = append(warnings, ParseWarning{Row: rowNum, Message: fmt.Sprintf("invalid email format: %s", addr)})
		}
		recipients = append(recipients, rec)
	}

	return Table{Headers: headers, Recipients: recipients}, warnings, nil
}

// FromRows builds a Table from manually entered headers and cell rows.
// Rows that are entirely blank are dropped. An empty header name is an
// error because the resulting field would be unaddressable in templates.
func FromRows(headers []string, rows [][]string) (Table, []ParseWarning, error) {
	cleaned := make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			return Table{}, nil, fmt.Errorf("header %d is empty", i+1)
		}
		cleaned[i] = h
	}

	var warnings []ParseWarning
	recipients := make([]Recipient, 0, len(rows))
	for i, row := range rows {
		rowNum := i + 2
		if len(row) != len(cleaned) {
			warnings = append(warnings, ParseWarning{Row: rowNum, Message: "column count mismatch, row skipped"})
			continue
		}
		blank := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				blank = false
				break
			}
		}
		if blank {
			continue
		}
		rec := Recipient{}
		for j, h := range cleaned {
			rec[h] = strings.TrimSpace(row[j])
		}
		if addr, ok := emailField(rec); ok && addr != "" && !ValidEmail(addr) {
			warnings = append(warnings, ParseWarning{Row: rowNum, Message: fmt.Sprintf("invalid email format: %s", addr)})
		}
		recipients = append(recipients, rec)
	}

	return Table{Headers: cleaned, Recipients: recipients}, warnings, nil
}

// emailField returns the value of the recipient's email field, matching the
// field name case-insensitively. ok reports whether such a field exists at
// all, independent of whether it holds a usable value.
func emailField(r Recipient) (string, bool) {
	for k, v := range r {
		if strings.EqualFold(k, "email") {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// EmailOf returns the recipient's address, or "" if the recipient has no
// usable one.
func EmailOf(r Recipient) string {
	addr, _ := emailField(r)
	return addr
}

// SplitSendable partitions recipients into those with a usable address and
// those without, preserving input order within each slice. Callers report
// the unaddressed count rather than silently dropping those rows.
func SplitSendable(recipients []Recipient) (sendable, unaddressed []Recipient) {
	for _, r := range recipients {
		if EmailOf(r) == "" {
			unaddressed = append(unaddressed, r)
		} else {
			sendable = append(sendable, r)
		}
	}
	return sendable, unaddressed
}

// Clone deep-copies recipients so an in-flight send cannot observe later
// edits to the table.
func Clone(recipients []Recipient) []Recipient {
	out := make([]Recipient, len(recipients))
	for i, r := range recipients {
		cp := make(Recipient, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
