package config

import (
	"fmt"
	"os"
	"sync"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Settings is everything configurable about the app. Zero-valued fields
// are filled from Defaults when loading, so an explicit zero in the file
// reads the same as an absent key.
type Settings struct {
	SpreadsheetID string `yaml:"spreadsheet_id"`
	SheetTab      string `yaml:"sheet_tab"`

	// RetentionDays and CountdownSeconds cannot be configured to zero:
	// zero (explicit or absent) selects the built-in default.
	RetentionDays    int `yaml:"retention_days"`
	CountdownSeconds int `yaml:"countdown_seconds"`

	// Transport selects how mail leaves the machine: "gmail" or "smtp".
	Transport string `yaml:"transport"`

	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`

	Defaults struct {
		Subject string `yaml:"subject"`
		Body    string `yaml:"body"`
	} `yaml:"defaults"`
}

// Defaults are the built-in settings a missing or partial config file is
// merged over.
func Defaults() Settings {
	s := Settings{
		SheetTab:         "Logs",
		RetentionDays:    30,
		CountdownSeconds: 5,
		Transport:        "gmail",
	}
	s.Gemini.Model = "gemini-2.5-flash"
	s.SMTP.Port = 587
	s.Defaults.Subject = "Special Offer for {{Name}}"
	s.Defaults.Body = "Hi {{Name}},\n\nWe have an exciting new product, the {{Product}}, that we think you'll love.\n\nBest regards,\nTeam Awesome"
	return s
}

// Manager handles loading, saving, and accessing settings.
type Manager struct {
	filePath string
	settings Settings
	mu       sync.RWMutex
}

// NewManager loads settings from filePath, creating the file with defaults
// if it does not exist yet.
func NewManager(filePath string) (*Manager, error) {
	m := &Manager{filePath: filePath, settings: Defaults()}
	if err := m.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := m.save(); err != nil {
			return nil, fmt.Errorf("unable to write default config: %w", err)
		}
	}
	return m, nil
}

// Load reads the YAML file and fills unset fields from Defaults.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return err
	}
	var loaded Settings
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("unable to parse config file: %w", err)
	}
	defaults := Defaults()
	if err := mergo.Merge(&loaded, defaults); err != nil {
		return fmt.Errorf("unable to apply config defaults: %w", err)
	}
	m.settings = loaded
	return nil
}

func (m *Manager) save() error {
	data, err := yaml.Marshal(m.settings)
	if err != nil {
		return err
	}
	return os.WriteFile(m.filePath, data, 0644)
}

// Get returns a copy of the current settings.
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// SetSpreadsheetID records the log spreadsheet and saves, used after
// bootstrapping a fresh log sheet.
func (m *Manager) SetSpreadsheetID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings.SpreadsheetID = id
	return m.save()
}
