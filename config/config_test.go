package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	s := m.Get()
	if s.SheetTab != "Logs" || s.RetentionDays != 30 || s.CountdownSeconds != 5 {
		t.Errorf("defaults not applied: %+v", s)
	}
	if s.Transport != "gmail" {
		t.Errorf("default transport = %q", s.Transport)
	}
	if !strings.Contains(s.Defaults.Subject, "{{Name}}") {
		t.Errorf("default subject = %q", s.Defaults.Subject)
	}
}

func TestLoadMergesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := "spreadsheet_id: sheet-123\nretention_days: 7\nsmtp:\n  host: mail.example.com\n"
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	s := m.Get()
	if s.SpreadsheetID != "sheet-123" || s.RetentionDays != 7 {
		t.Errorf("explicit values lost: %+v", s)
	}
	if s.SheetTab != "Logs" || s.CountdownSeconds != 5 {
		t.Errorf("unset fields should fall back to defaults: %+v", s)
	}
	if s.SMTP.Host != "mail.example.com" || s.SMTP.Port != 587 {
		t.Errorf("smtp merge wrong: %+v", s.SMTP)
	}
}

func TestLoadExplicitZeroMeansDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	explicit := "retention_days: 0\ncountdown_seconds: 0\n"
	if err := os.WriteFile(path, []byte(explicit), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	s := m.Get()
	if s.RetentionDays != 30 || s.CountdownSeconds != 5 {
		t.Fatalf("explicit zeros should read as defaults, got %d/%d",
			s.RetentionDays, s.CountdownSeconds)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{not yaml: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(path); err == nil {
		t.Fatal("malformed config should error")
	}
}

func TestSetSpreadsheetIDPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if err := m.SetSpreadsheetID("sheet-abc"); err != nil {
		t.Fatalf("SetSpreadsheetID() error = %v", err)
	}

	m2, err := NewManager(path)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if got := m2.Get().SpreadsheetID; got != "sheet-abc" {
		t.Fatalf("reloaded spreadsheet id = %q", got)
	}
}
