package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeGemini serves canned generateContent responses and records requests.
func fakeGemini(t *testing.T, responses ...string) (*httptest.Server, *[]genRequest) {
	t.Helper()
	var seen []genRequest
	i := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "" {
			t.Error("request missing api key")
		}
		var req genRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		seen = append(seen, req)
		if i >= len(responses) {
			t.Error("more requests than canned responses")
			http.Error(w, "exhausted", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(responses[i]))
		i++
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func testClient(baseURL string) *Client {
	c := NewClient("test-key", "")
	c.BaseURL = baseURL
	return c
}

func TestParseCommandFunctionCall(t *testing.T) {
	srv, seen := fakeGemini(t, `{
		"candidates": [{"content": {"parts": [
			{"functionCall": {"name": "preview_emails", "args": {"filter": "unsent", "count": 5}}}
		]}}]
	}`)
	c := testClient(srv.URL)

	cmd, err := c.ParseCommand(context.Background(), "preview 5 unsent", "body")
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	preview, ok := cmd.(PreviewEmails)
	if !ok {
		t.Fatalf("cmd = %T, want PreviewEmails", cmd)
	}
	if preview.Filter != "unsent" || preview.Count != 5 {
		t.Errorf("cmd = %+v", preview)
	}
	if len(*seen) != 1 || len((*seen)[0].Tools) != 1 {
		t.Errorf("expected one request with tool declarations, got %+v", *seen)
	}
}

func TestParseCommandTextReply(t *testing.T) {
	srv, _ := fakeGemini(t, `{
		"candidates": [{"content": {"parts": [{"text": "Sure, happy to help."}]}}]
	}`)
	c := testClient(srv.URL)

	cmd, err := c.ParseCommand(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	text, ok := cmd.(FreeText)
	if !ok || text.Text != "Sure, happy to help." {
		t.Fatalf("cmd = %#v", cmd)
	}
}

func TestParseCommandEmptyResponseFallsBack(t *testing.T) {
	srv, seen := fakeGemini(t,
		`{"candidates": []}`,
		`{"candidates": [{"content": {"parts": [{"text": "fallback reply"}]}}]}`,
	)
	c := testClient(srv.URL)

	cmd, err := c.ParseCommand(context.Background(), "mumble", "")
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if text, ok := cmd.(FreeText); !ok || text.Text != "fallback reply" {
		t.Fatalf("cmd = %#v", cmd)
	}
	if len(*seen) != 2 {
		t.Fatalf("requests = %d, want tool call then plain chat", len(*seen))
	}
	if len((*seen)[1].Tools) != 0 {
		t.Error("fallback request should carry no tools")
	}
}

func TestParseCommandUnknownFunction(t *testing.T) {
	srv, _ := fakeGemini(t, `{
		"candidates": [{"content": {"parts": [{"functionCall": {"name": "teleport", "args": {}}}]}}]
	}`)
	c := testClient(srv.URL)

	cmd, err := c.ParseCommand(context.Background(), "teleport me", "")
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	u, ok := cmd.(Unrecognized)
	if !ok || u.Name != "teleport" {
		t.Fatalf("cmd = %#v", cmd)
	}
}

func TestParseCommandHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	c := testClient(srv.URL)

	if _, err := c.ParseCommand(context.Background(), "hi", ""); err == nil {
		t.Fatal("HTTP 429 should surface as an error")
	}
}

func TestParseCommandNoAPIKey(t *testing.T) {
	c := NewClient("", "")
	if _, err := c.ParseCommand(context.Background(), "hi", ""); err == nil {
		t.Fatal("missing api key should error before any request")
	}
}

func TestRewriteBodyStripsFences(t *testing.T) {
	srv, _ := fakeGemini(t, `{
		"candidates": [{"content": {"parts": [{"text": "`+"```"+`text\nDear {{Name}},\nregards\n`+"```"+`"}]}}]
	}`)
	c := testClient(srv.URL)

	got, err := c.RewriteBody(context.Background(), "Dear {{Name}}", "more formal")
	if err != nil {
		t.Fatalf("RewriteBody() error = %v", err)
	}
	if got != "Dear {{Name}},\nregards" {
		t.Fatalf("RewriteBody() = %q", got)
	}
}

func TestRewriteBodyEmptyResponse(t *testing.T) {
	srv, _ := fakeGemini(t, `{"candidates": []}`)
	c := testClient(srv.URL)
	if _, err := c.RewriteBody(context.Background(), "body", "prompt"); err == nil {
		t.Fatal("empty model output should error")
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain", "plain"},
		{"```\nhello\n```", "hello"},
		{"```html\n<p>x</p>\n```", "<p>x</p>"},
		{"  ```\nspaced\n```  ", "spaced"},
	}
	for _, c := range cases {
		if got := stripFences(c.in); got != c.want {
			t.Errorf("stripFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestArgInt(t *testing.T) {
	args := map[string]any{"f": float64(7), "n": json.Number("3"), "s": "nope"}
	if got := argInt(args, "f"); got != 7 {
		t.Errorf("float64 arg = %d", got)
	}
	if got := argInt(args, "n"); got != 3 {
		t.Errorf("json.Number arg = %d", got)
	}
	if got := argInt(args, "s"); got != 0 {
		t.Errorf("string arg = %d, want 0", got)
	}
	if got := argInt(args, "missing"); got != 0 {
		t.Errorf("missing arg = %d, want 0", got)
	}
}

func TestDecodeCallDraft(t *testing.T) {
	cmd := decodeCall(&genFunctionCall{Name: "draft_email", Args: map[string]any{
		"prompt":       "shorter",
		"current_body": "long body",
	}})
	d, ok := cmd.(DraftEmail)
	if !ok || d.Prompt != "shorter" || d.CurrentBody != "long body" {
		t.Fatalf("cmd = %#v", cmd)
	}
}

func TestToolDeclarationsCoverKnownCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, d := range toolDeclarations {
		names[d.Name] = true
	}
	for _, want := range []string{"get_stats", "preview_emails", "send_emails", "draft_email"} {
		if !names[want] {
			t.Errorf("missing tool declaration %q", want)
		}
	}
	if !strings.Contains(toolDeclarations[3].Description, "not sending") {
		t.Errorf("draft_email description should disclaim sending")
	}
}
