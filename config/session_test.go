package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bassamadnan/mergemail/merge"
)

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	in := Session{
		Headers: []string{"Email", "Name"},
		Recipients: []merge.Recipient{
			{"Email": "a@b.com", "Name": "Ada"},
		},
		Subject:       "Hi {{Name}}",
		Body:          "Dear {{Name}},\nBye",
		ActiveSegment: "template",
	}
	if err := SaveSession(path, in); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	out, ok, err := LoadSession(path)
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if !ok {
		t.Fatal("LoadSession() ok = false")
	}
	if out.Subject != in.Subject || out.Body != in.Body || out.ActiveSegment != in.ActiveSegment {
		t.Errorf("loaded session = %+v", out)
	}
	if len(out.Recipients) != 1 || out.Recipients[0]["Name"] != "Ada" {
		t.Errorf("recipients = %v", out.Recipients)
	}
	if out.Timestamp.IsZero() {
		t.Error("timestamp should be stamped on save")
	}
}

func TestLoadSessionMissingFile(t *testing.T) {
	_, ok, err := LoadSession(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
	if ok {
		t.Fatal("missing file should report ok = false")
	}
}

func TestLoadSessionEmptySnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	_, ok, err := LoadSession(path)
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if ok {
		t.Fatal("empty snapshot should report ok = false")
	}
}

func TestLoadSessionMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadSession(path); err == nil {
		t.Fatal("malformed session should error")
	}
}
