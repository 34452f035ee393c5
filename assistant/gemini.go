// Package assistant turns natural-language commands into mail-merge
// actions via the Gemini API, and dispatches the known actions against
// the merge and send components.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultModel   = "gemini-2.5-flash"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
)

// Command is what the interpreter made of the user's input. Exactly one
// concrete type is returned per call; unknown function names surface as
// Unrecognized rather than an error so the caller can degrade gracefully.
type Command interface{ isCommand() }

// GetStats asks for aggregate send statistics.
type GetStats struct{}

// PreviewEmails asks for a quick preview of the first Count merged emails.
type PreviewEmails struct {
	Filter string
	Count  int
}

// SendEmails asks to start a batch send.
type SendEmails struct {
	Filter string
}

// DraftEmail asks to rewrite or draft the template body.
type DraftEmail struct {
	Prompt      string
	CurrentBody string
}

// Unrecognized is a structured call with a name this program does not know.
type Unrecognized struct {
	Name string
}

// FreeText is a plain conversational reply with no structured action.
type FreeText struct {
	Text string
}

func (GetStats) isCommand()      {}
func (PreviewEmails) isCommand() {}
func (SendEmails) isCommand()    {}
func (DraftEmail) isCommand()    {}
func (Unrecognized) isCommand()  {}
func (FreeText) isCommand()      {}

// Client calls the Gemini generateContent endpoint directly over HTTP.
type Client struct {
	// BaseURL may be overridden in tests; empty means the public API.
	BaseURL string

	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient builds a Client. An empty model selects the default.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type genRequest struct {
	Contents []genContent `json:"contents"`
	Tools    []genTools   `json:"tools,omitempty"`
}

type genContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []genPart `json:"parts"`
}

type genPart struct {
	Text         string           `json:"text,omitempty"`
	FunctionCall *genFunctionCall `json:"functionCall,omitempty"`
}

type genFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type genTools struct {
	FunctionDeclarations []genFunctionDecl `json:"functionDeclarations"`
}

type genFunctionDecl struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Parameters  genSchema `json:"parameters"`
}

type genSchema struct {
	Type       string               `json:"type"`
	Properties map[string]genSchema `json:"properties,omitempty"`
	Required   []string             `json:"required"`

	Description string `json:"description,omitempty"`
}

type genResponse struct {
	Candidates []struct {
		Content genContent `json:"content"`
	} `json:"candidates"`
}

// toolDeclarations mirrors the four actions the assistant can take.
var toolDeclarations = []genFunctionDecl{
	{
		Name:        "get_stats",
		Description: "Get statistics about the mail merge, like how many emails have been sent and how many are pending.",
		Parameters:  genSchema{Type: "OBJECT", Required: []string{}},
	},
	{
		Name:        "preview_emails",
		Description: "Preview the first few emails. Can be filtered by a specific criteria.",
		Parameters: genSchema{
			Type: "OBJECT",
			Properties: map[string]genSchema{
				"filter": {Type: "STRING", Description: `A criteria to filter recipients by, e.g., "unsent rows".`},
				"count":  {Type: "INTEGER", Description: "The number of emails to preview. Defaults to 3."},
			},
			Required: []string{},
		},
	},
	{
		Name:        "send_emails",
		Description: "Send all unsent emails. Can be filtered by a specific criteria.",
		Parameters: genSchema{
			Type: "OBJECT",
			Properties: map[string]genSchema{
				"filter": {Type: "STRING", Description: "A criteria to filter which recipients to send emails to."},
			},
			Required: []string{},
		},
	},
	{
		Name:        "draft_email",
		Description: "Drafts or rewrites an email body based on a prompt. This is for generating content, not sending.",
		Parameters: genSchema{
			Type: "OBJECT",
			Properties: map[string]genSchema{
				"prompt":       {Type: "STRING", Description: "The instructions for how to draft the email."},
				"current_body": {Type: "STRING", Description: "The current email body, if any, that needs to be rewritten."},
			},
			Required: []string{"prompt"},
		},
	},
}

// ParseCommand interprets the user's free text. The current template body
// is supplied as context so rewrite requests can work on it.
func (c *Client) ParseCommand(ctx context.Context, command, currentBody string) (Command, error) {
	prompt := fmt.Sprintf(
		`Given the user's command, call the appropriate function. Command: %q. For context, the current email body is: %q`,
		command, currentBody)

	resp, err := c.generate(ctx, genRequest{
		Contents: []genContent{{Role: "user", Parts: []genPart{{Text: prompt}}}},
		Tools:    []genTools{{FunctionDeclarations: toolDeclarations}},
	})
	if err != nil {
		return nil, err
	}

	if call := firstFunctionCall(resp); call != nil {
		return decodeCall(call), nil
	}
	if text := firstText(resp); text != "" {
		return FreeText{Text: text}, nil
	}

	// No function call and no text. Ask again as a plain chat turn.
	fallback := fmt.Sprintf(
		`The user said: %q. Provide a helpful response as a mail merge assistant. If they are asking to draft an email, provide just the email text.`,
		command)
	resp, err = c.generate(ctx, genRequest{
		Contents: []genContent{{Role: "user", Parts: []genPart{{Text: fallback}}}},
	})
	if err != nil {
		return nil, err
	}
	if text := firstText(resp); text != "" {
		return FreeText{Text: text}, nil
	}
	return FreeText{Text: "I'm not sure how to respond to that. Please try rephrasing your request."}, nil
}

// RewriteBody asks the model to rewrite the email body per the given
// instruction, preserving {{...}} placeholders verbatim.
func (c *Client) RewriteBody(ctx context.Context, body, prompt string) (string, error) {
	full := fmt.Sprintf(`You are an expert marketing copywriter. Rewrite the following email body to be %s.
It is crucial that you keep all placeholders (e.g., {{Name}}, {{Company}}) exactly as they are. Do not add any new placeholders.

Original email body:
---
%s
---

Rewritten email body:`, prompt, body)

	resp, err := c.generate(ctx, genRequest{
		Contents: []genContent{{Role: "user", Parts: []genPart{{Text: full}}}},
	})
	if err != nil {
		return "", err
	}
	text := firstText(resp)
	if text == "" {
		return "", fmt.Errorf("model returned no rewritten body")
	}
	return stripFences(text), nil
}

func (c *Client) generate(ctx context.Context, reqBody genRequest) (*genResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("unable to encode Gemini request: %w", err)
	}

	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", base, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Gemini API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("Gemini API returned status %d: %s", resp.StatusCode, string(body))
	}

	var out genResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("unable to decode Gemini response: %w", err)
	}
	return &out, nil
}

func firstFunctionCall(resp *genResponse) *genFunctionCall {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.FunctionCall != nil {
				return part.FunctionCall
			}
		}
	}
	return nil
}

func firstText(resp *genResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// decodeCall maps the model's loosely-typed function call onto the typed
// command variants. Unknown names become Unrecognized, never an error.
func decodeCall(call *genFunctionCall) Command {
	switch call.Name {
	case "get_stats":
		return GetStats{}
	case "preview_emails":
		return PreviewEmails{
			Filter: argString(call.Args, "filter"),
			Count:  argInt(call.Args, "count"),
		}
	case "send_emails":
		return SendEmails{Filter: argString(call.Args, "filter")}
	case "draft_email":
		return DraftEmail{
			Prompt:      argString(call.Args, "prompt"),
			CurrentBody: argString(call.Args, "current_body"),
		}
	default:
		return Unrecognized{Name: call.Name}
	}
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argInt(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}

// stripFences removes a wrapping markdown code fence if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
