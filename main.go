package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/bassamadnan/mergemail/assistant"
	"github.com/bassamadnan/mergemail/config"
	"github.com/bassamadnan/mergemail/gmail"
	"github.com/bassamadnan/mergemail/merge"
	"github.com/bassamadnan/mergemail/send"
	"github.com/bassamadnan/mergemail/sheets"
	"github.com/bassamadnan/mergemail/smtp"
	"github.com/bassamadnan/mergemail/tui"
)

const (
	configPath  = "mergemail.yaml"
	sessionPath = "session.json"
	logPath     = "mergemail.log"
)

func main() {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log.SetOutput(logFile)
	log.SetLevel(log.DebugLevel)
	log.Info("application starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received, cancelling context")
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mergemail",
		Short: "Merge recipient data into templated emails, preview, and send",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), "")
		},
		SilenceUsage: true,
	}

	var csvPath string
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), csvPath)
		},
	}
	tuiCmd.Flags().StringVar(&csvPath, "csv", "", "CSV file to load recipients from")

	var previewLimit int
	var previewCSV string
	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Print merged previews for the loaded recipients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(previewCSV, previewLimit)
		},
	}
	previewCmd.Flags().StringVar(&previewCSV, "csv", "", "CSV file to load recipients from")
	previewCmd.Flags().IntVar(&previewLimit, "limit", 0, "number of previews (0 = all)")

	var exportCSV, exportFormat, exportOut string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Render the merged batch as text, csv, or html",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(exportCSV, exportFormat, exportOut)
		},
	}
	exportCmd.Flags().StringVar(&exportCSV, "csv", "", "CSV file to load recipients from")
	exportCmd.Flags().StringVar(&exportFormat, "format", "text", "output format: text, csv, or html")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write to file instead of stdout")

	var sendCSV string
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send the merged batch (with confirmation and a cancellable countdown)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), sendCSV)
		},
	}
	sendCmd.Flags().StringVar(&sendCSV, "csv", "", "CSV file to load recipients from")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate send statistics from the log spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context())
		},
	}

	chatCmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one natural-language command to the assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), strings.Join(args, " "))
		},
	}

	var contactsMax int
	contactsCmd := &cobra.Command{
		Use:   "contacts",
		Short: "Import Google Contacts into a recipient CSV on stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContacts(cmd.Context(), contactsMax)
		},
	}
	contactsCmd.Flags().IntVar(&contactsMax, "max", 1000, "maximum contacts to import")

	var logTitle, logShare string
	initLogCmd := &cobra.Command{
		Use:   "init-log",
		Short: "Create the log spreadsheet and store its ID in the config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitLog(cmd.Context(), logTitle, logShare)
		},
	}
	initLogCmd.Flags().StringVar(&logTitle, "title", "Mail Merge Logs", "spreadsheet title")
	initLogCmd.Flags().StringVar(&logShare, "share", "", "email address to share the sheet with")

	root.AddCommand(tuiCmd, previewCmd, exportCmd, sendCmd, statsCmd, chatCmd, contactsCmd, initLogCmd)
	return root
}

// loadTable prefers an explicit CSV file, falling back to the saved
// session. Parse warnings go to stderr, they never abort.
func loadTable(cfg *config.Manager, csvPath string) (merge.Table, merge.Template, error) {
	settings := cfg.Get()
	tmpl := merge.Template{Subject: settings.Defaults.Subject, Body: settings.Defaults.Body}

	if csvPath != "" {
		data, err := os.ReadFile(csvPath)
		if err != nil {
			return merge.Table{}, tmpl, fmt.Errorf("unable to read %s: %w", csvPath, err)
		}
		tbl, warnings, err := merge.ParseCSV(string(data))
		if err != nil {
			return merge.Table{}, tmpl, err
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		return tbl, tmpl, nil
	}

	sess, ok, err := config.LoadSession(sessionPath)
	if err != nil {
		return merge.Table{}, tmpl, err
	}
	if !ok {
		return merge.Table{}, tmpl, fmt.Errorf("no recipients: pass --csv or save a session first")
	}
	if sess.Subject != "" {
		tmpl.Subject = sess.Subject
	}
	if sess.Body != "" {
		tmpl.Body = sess.Body
	}
	return merge.Table{Headers: sess.Headers, Recipients: sess.Recipients}, tmpl, nil
}

// buildCore wires transport, audit log, orchestrator, and actor identity
// from the given config. Callers construct the Manager once so every phase
// of a command sees the same settings. The audit log is optional; sending
// works without it.
func buildCore(ctx context.Context, cfg *config.Manager) (*send.Orchestrator, send.AuditLog, string, error) {
	settings := cfg.Get()

	var transport send.Transport
	var auditLog send.AuditLog
	var actor string

	switch settings.Transport {
	case "smtp":
		transport = smtp.NewSender(settings.SMTP.Host, settings.SMTP.Port,
			settings.SMTP.Username, settings.SMTP.Password, settings.SMTP.From)
		actor = settings.SMTP.From
	default:
		httpClient, err := gmail.OAuthHTTPClient(ctx)
		if err != nil {
			return nil, nil, "", err
		}
		client, err := gmail.NewClientWithHTTP(ctx, httpClient)
		if err != nil {
			return nil, nil, "", err
		}
		transport = client
		if actor, err = client.Profile(ctx); err != nil {
			log.Warn("unable to resolve actor email", "err", err)
		}
		if settings.SpreadsheetID != "" {
			auditLog, err = sheets.NewLog(ctx, httpClient, settings.SpreadsheetID, settings.SheetTab)
			if err != nil {
				return nil, nil, "", err
			}
		}
	}

	orch := &send.Orchestrator{
		Transport:     transport,
		Log:           auditLog,
		RetentionDays: settings.RetentionDays,
	}
	return orch, auditLog, actor, nil
}

func runTUI(ctx context.Context, csvPath string) error {
	cfg, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	orch, auditLog, actor, err := buildCore(ctx, cfg)
	if err != nil {
		return err
	}
	settings := cfg.Get()
	gate := send.NewGate(orch.SendBatch, settings.CountdownSeconds)
	asst := &assistant.Assistant{
		Parser:        assistant.NewClient(settings.Gemini.APIKey, settings.Gemini.Model),
		Log:           auditLog,
		Gate:          gate,
		RetentionDays: settings.RetentionDays,
	}

	model := tui.NewModel(cfg, sessionPath, gate, asst, actor)
	if csvPath != "" {
		tbl, _, err := loadTable(cfg, csvPath)
		if err != nil {
			return err
		}
		model.SetTable(tbl)
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func runPreview(csvPath string, limit int) error {
	cfg, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	tbl, tmpl, err := loadTable(cfg, csvPath)
	if err != nil {
		return err
	}
	for _, p := range merge.Preview(tbl.Recipients, tmpl, limit) {
		fmt.Printf("To: %s\nSubject: %s\n---\n%s\n\n", p.To, p.Subject, p.Body)
	}
	return nil
}

func runExport(csvPath, format, outPath string) error {
	cfg, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	tbl, tmpl, err := loadTable(cfg, csvPath)
	if err != nil {
		return err
	}
	out, err := merge.Export(tbl, tmpl, merge.Format(format))
	if err != nil {
		return err
	}
	if outPath == "" {
		fmt.Println(out)
		return nil
	}
	if err := os.WriteFile(outPath, []byte(out), 0644); err != nil {
		return fmt.Errorf("unable to write %s: %w", outPath, err)
	}
	fmt.Printf("wrote %s\n", outPath)
	return nil
}

func runSend(ctx context.Context, csvPath string) error {
	cfg, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	tbl, tmpl, err := loadTable(cfg, csvPath)
	if err != nil {
		return err
	}
	orch, _, actor, err := buildCore(ctx, cfg)
	if err != nil {
		return err
	}
	settings := cfg.Get()

	sendable, unaddressed := merge.SplitSendable(tbl.Recipients)
	if len(unaddressed) > 0 {
		fmt.Printf("%d recipients have no usable email address and will be skipped.\n", len(unaddressed))
	}
	fmt.Printf("About to send %d emails as %s. Proceed? [y/N] ", len(sendable), actor)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
		fmt.Println("Declined, nothing sent.")
		return nil
	}

	gate := send.NewGate(orch.SendBatch, settings.CountdownSeconds)
	if err := gate.Request(tbl.Recipients, tmpl, actor); err != nil {
		return err
	}
	if err := gate.Confirm(ctx); err != nil {
		return err
	}

	// Ctrl+C during the countdown cancels the send instead of the process.
	go func() {
		<-ctx.Done()
		if err := gate.Cancel(); err == nil {
			fmt.Println("\nCancelled.")
		}
	}()

	for ev := range gate.Events() {
		switch ev.Kind {
		case send.EventTick:
			fmt.Printf("Sending in %d... (Ctrl+C to undo)\n", ev.Remaining)
		case send.EventCancelled:
			return nil
		case send.EventExecuting:
			fmt.Println("Sending...")
		case send.EventDone:
			for _, r := range ev.Results {
				if r.Status == send.StatusSuccess {
					fmt.Printf("  ok    %s\n", r.Email)
				} else {
					fmt.Printf("  FAIL  %s: %s\n", r.Email, r.Error)
				}
			}
			fmt.Printf("Done: %d succeeded, %d failed, %d skipped.\n",
				ev.Summary.Sent, ev.Summary.Failed, len(unaddressed))
			return nil
		}
	}
	return nil
}

func runStats(ctx context.Context) error {
	cfg, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	_, auditLog, _, err := buildCore(ctx, cfg)
	if err != nil {
		return err
	}
	if auditLog == nil {
		return fmt.Errorf("no log spreadsheet configured: run 'mergemail init-log' first")
	}
	stats, err := auditLog.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Total events: %d\nSent: %d\nFailed: %d\n", stats.Total, stats.Sent, stats.Failed)
	if len(stats.Recent) > 0 {
		fmt.Println("\nRecent:")
		for _, ev := range stats.Recent {
			fmt.Printf("  %s  %-8s %-8s %s\n",
				ev.Timestamp.Format("2006-01-02 15:04"), ev.EventType, ev.Status, ev.Message)
		}
	}
	return nil
}

func runChat(ctx context.Context, message string) error {
	cfg, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	settings := cfg.Get()

	tbl, tmpl, err := loadTable(cfg, "")
	if err != nil {
		// Chat still works without data; stats and drafting need none.
		tbl = merge.Table{}
	}

	var auditLog send.AuditLog
	if settings.SpreadsheetID != "" && settings.Transport != "smtp" {
		httpClient, err := gmail.OAuthHTTPClient(ctx)
		if err == nil {
			auditLog, _ = sheets.NewLog(ctx, httpClient, settings.SpreadsheetID, settings.SheetTab)
		}
	}

	asst := &assistant.Assistant{
		Parser:        assistant.NewClient(settings.Gemini.APIKey, settings.Gemini.Model),
		Log:           auditLog,
		RetentionDays: settings.RetentionDays,
	}
	resp, err := asst.Handle(ctx, message, tbl, tmpl, "")
	if err != nil {
		return err
	}
	fmt.Println(resp.Text)
	for _, p := range resp.Previews {
		fmt.Printf("\nTo: %s\nSubject: %s\n%s\n", p.To, p.Subject, p.Body)
	}
	if resp.Draft != "" {
		fmt.Printf("\n--- draft ---\n%s\n", resp.Draft)
	}
	if resp.SendRequested {
		fmt.Println("\nRun 'mergemail send' to actually send; chat never sends directly.")
	}
	return nil
}

func runContacts(ctx context.Context, max int) error {
	client, err := gmail.NewClient(ctx)
	if err != nil {
		return err
	}
	contacts, err := client.ImportContacts(ctx, max)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		return fmt.Errorf("no contacts with emails were found")
	}
	fmt.Println("Email,Name")
	for _, c := range contacts {
		fmt.Printf("%s,%s\n", c.Email, strings.ReplaceAll(c.Name, ",", " "))
	}
	return nil
}

func runInitLog(ctx context.Context, title, share string) error {
	cfg, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	httpClient, err := gmail.OAuthHTTPClient(ctx)
	if err != nil {
		return err
	}
	id, url, err := sheets.Create(ctx, httpClient, title, cfg.Get().SheetTab, share)
	if err != nil {
		return err
	}
	if err := cfg.SetSpreadsheetID(id); err != nil {
		return err
	}
	fmt.Printf("Created log spreadsheet %s\n%s\n", id, url)
	return nil
}
