package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bassamadnan/mergemail/merge"
)

// Session is a snapshot of the working state saved between runs. The core
// does not depend on this format; it only has to tolerate being seeded
// from one, so loading applies shape checks and nothing more.
type Session struct {
	Headers       []string          `json:"headers"`
	Recipients    []merge.Recipient `json:"recipients"`
	Subject       string            `json:"subject"`
	Body          string            `json:"body"`
	ActiveSegment string            `json:"activeSegment"`
	Timestamp     time.Time         `json:"timestamp"`
}

// SaveSession writes the snapshot as indented JSON.
func SaveSession(path string, s Session) error {
	s.Timestamp = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadSession restores a snapshot. A missing file is not an error; ok
// reports whether anything usable was found.
func LoadSession(path string) (Session, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, fmt.Errorf("unable to parse session file: %w", err)
	}
	if len(s.Headers) == 0 && len(s.Recipients) == 0 && s.Subject == "" && s.Body == "" {
		return Session{}, false, nil
	}
	return s, true, nil
}
