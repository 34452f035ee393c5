// Package sheets implements the send.AuditLog collaborator on top of a
// Google Sheets spreadsheet: one row per event, pruned by retention age.
package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/bassamadnan/mergemail/send"
)

// DefaultTab is the sheet tab events are appended to.
const DefaultTab = "Logs"

// headerRow is the fixed column layout of the log tab.
var headerRow = []interface{}{
	"timestamp", "userEmail", "sentTo", "type", "status", "message", "retention_days", "meta",
}

// Log appends, aggregates and prunes audit events in one spreadsheet tab.
type Log struct {
	srv           *sheets.Service
	drive         *drive.Service
	spreadsheetID string
	tab           string
}

// NewLog builds a Log over an already-authorized HTTP client.
func NewLog(ctx context.Context, httpClient *http.Client, spreadsheetID, tab string) (*Log, error) {
	if tab == "" {
		tab = DefaultTab
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	driveSrv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}
	return &Log{srv: srv, drive: driveSrv, spreadsheetID: spreadsheetID, tab: tab}, nil
}

// Append writes one event as a row. The event is never mutated afterwards.
func (l *Log) Append(ctx context.Context, ev send.AuditEvent) error {
	if l.spreadsheetID == "" {
		return fmt.Errorf("no log spreadsheet configured")
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	meta := "null"
	if ev.Meta != nil {
		if b, err := json.Marshal(ev.Meta); err == nil {
			meta = string(b)
		}
	}
	row := []interface{}{
		ts.Format(time.RFC3339),
		ev.ActorEmail,
		ev.TargetEmail,
		ev.EventType,
		string(ev.Status),
		ev.Message,
		ev.RetentionDays,
		meta,
	}
	_, err := l.srv.Spreadsheets.Values.
		Append(l.spreadsheetID, l.tab+"!A:H", &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to append log row: %w", err)
	}
	return nil
}

// Stats reads the whole log tab and aggregates send outcomes, returning
// the five most recent events newest first.
func (l *Log) Stats(ctx context.Context) (send.Stats, error) {
	if l.spreadsheetID == "" {
		return send.Stats{}, fmt.Errorf("no log spreadsheet configured")
	}
	resp, err := l.srv.Spreadsheets.Values.
		Get(l.spreadsheetID, l.tab+"!A2:H").
		Context(ctx).
		Do()
	if err != nil {
		return send.Stats{}, fmt.Errorf("unable to read log rows: %w", err)
	}

	return aggregateStats(resp.Values), nil
}

// aggregateStats folds raw log rows into totals plus the five most recent
// events, newest first. Only "send" rows count toward Sent/Failed.
func aggregateStats(values [][]interface{}) send.Stats {
	stats := send.Stats{Total: len(values)}
	for _, row := range values {
		if cell(row, 3) == "send" {
			switch cell(row, 4) {
			case string(send.StatusSuccess):
				stats.Sent++
			case string(send.StatusError):
				stats.Failed++
			}
		}
	}

	start := len(values) - 5
	if start < 0 {
		start = 0
	}
	for i := len(values) - 1; i >= start; i-- {
		stats.Recent = append(stats.Recent, rowToEvent(values[i]))
	}
	return stats
}

func cell(row []interface{}, i int) string {
	if i >= len(row) {
		return ""
	}
	s, _ := row[i].(string)
	return s
}

func rowToEvent(row []interface{}) send.AuditEvent {
	ev := send.AuditEvent{
		ActorEmail:  cell(row, 1),
		TargetEmail: cell(row, 2),
		EventType:   cell(row, 3),
		Status:      send.Status(cell(row, 4)),
		Message:     cell(row, 5),
	}
	if t, err := time.Parse(time.RFC3339, cell(row, 0)); err == nil {
		ev.Timestamp = t
	}
	return ev
}

// Prune deletes rows older than the retention window. Contiguous runs are
// batched into single delete requests, applied bottom-up so earlier
// deletions do not shift later indices. Callers treat failures as
// best-effort; this method still reports them.
func (l *Log) Prune(ctx context.Context, retentionDays int) error {
	if l.spreadsheetID == "" {
		return fmt.Errorf("no log spreadsheet configured")
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	resp, err := l.srv.Spreadsheets.Values.
		Get(l.spreadsheetID, l.tab+"!A2:A").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to read log timestamps: %w", err)
	}
	if len(resp.Values) == 0 {
		return nil
	}

	stale := staleRows(resp.Values, cutoff)
	if len(stale) == 0 {
		return nil
	}

	sheetID, err := l.sheetID(ctx)
	if err != nil {
		return err
	}

	ranges := coalesceRows(stale)
	requests := make([]*sheets.Request, 0, len(ranges))
	for _, r := range ranges {
		requests = append(requests, &sheets.Request{
			DeleteRange: &sheets.DeleteRangeRequest{
				Range: &sheets.GridRange{
					SheetId:       sheetID,
					StartRowIndex: int64(r.start),
					EndRowIndex:   int64(r.end + 1),
				},
				ShiftDimension: "ROWS",
			},
		})
	}
	_, err = l.srv.Spreadsheets.
		BatchUpdate(l.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to prune %d stale rows: %w", len(stale), err)
	}
	log.Info("pruned audit log", "rows", len(stale), "retention_days", retentionDays)
	return nil
}

type rowRange struct{ start, end int } // zero-based sheet rows, inclusive

// staleRows selects the zero-based sheet rows whose timestamp is older than
// cutoff. Row 1 is the header, so data row i maps to sheet row i+1. Rows
// with unparseable timestamps are kept.
func staleRows(values [][]interface{}, cutoff time.Time) []int {
	var stale []int
	for i, row := range values {
		t, err := time.Parse(time.RFC3339, cell(row, 0))
		if err != nil {
			continue
		}
		if t.Before(cutoff) {
			stale = append(stale, i+1)
		}
	}
	return stale
}

// coalesceRows batches row indices into contiguous ranges, returned in
// descending start order so applying earlier deletions does not shift the
// rows still pending.
func coalesceRows(stale []int) []rowRange {
	if len(stale) == 0 {
		return nil
	}
	sort.Ints(stale)
	var ranges []rowRange
	cur := rowRange{start: stale[0], end: stale[0]}
	for _, r := range stale[1:] {
		if r == cur.end+1 {
			cur.end = r
			continue
		}
		ranges = append(ranges, cur)
		cur = rowRange{start: r, end: r}
	}
	ranges = append(ranges, cur)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start > ranges[j].start })
	return ranges
}

func (l *Log) sheetID(ctx context.Context) (int64, error) {
	ss, err := l.srv.Spreadsheets.Get(l.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to look up sheet ID: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == l.tab {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("log tab %q not found in spreadsheet", l.tab)
}

// Create makes a fresh log spreadsheet with the standard header row and
// optionally shares it. Sharing failure is not fatal: the sheet exists and
// appends will work for the creating account.
func Create(ctx context.Context, httpClient *http.Client, title, tab, shareWith string) (id, url string, err error) {
	if title == "" {
		title = "Mail Merge Logs"
	}
	if tab == "" {
		tab = DefaultTab
	}
	l, err := NewLog(ctx, httpClient, "", tab)
	if err != nil {
		return "", "", err
	}

	ss, err := l.srv.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title},
		Sheets: []*sheets.Sheet{
			{Properties: &sheets.SheetProperties{Title: tab}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("unable to create log spreadsheet: %w", err)
	}

	_, err = l.srv.Spreadsheets.Values.
		Update(ss.SpreadsheetId, tab+"!A1:H1", &sheets.ValueRange{Values: [][]interface{}{headerRow}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return "", "", fmt.Errorf("unable to write log header row: %w", err)
	}

	if shareWith != "" {
		_, err = l.drive.Permissions.Create(ss.SpreadsheetId, &drive.Permission{
			Role:         "writer",
			Type:         "user",
			EmailAddress: shareWith,
		}).SendNotificationEmail(false).Context(ctx).Do()
		if err != nil {
			log.Warn("unable to share log spreadsheet", "with", shareWith, "err", err)
		}
	}

	url = fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit", ss.SpreadsheetId)
	return ss.SpreadsheetId, url, nil
}
