package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"

	"github.com/bassamadnan/mergemail/send"
)

const (
	tokenFile       = "token.json"
	credentialsFile = "credentials.json"
	user            = "me"
)

// scopes is everything the app needs in one consent: sending mail, reading
// contacts for import, the actor's own address, and the log spreadsheet.
var scopes = []string{
	gmail.GmailSendScope,
	people.ContactsReadonlyScope,
	oauth2api.UserinfoEmailScope,
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive.file",
}

// Client sends merged emails through the Gmail API and imports contacts
// through the People API. It implements send.Transport.
type Client struct {
	srv      *gmail.Service
	people   *people.Service
	userinfo *oauth2api.Service
}

// NewClient builds a Client from credentials.json, running the OAuth flow
// if no cached token exists.
func NewClient(ctx context.Context) (*Client, error) {
	httpClient, err := OAuthHTTPClient(ctx)
	if err != nil {
		return nil, err
	}
	return NewClientWithHTTP(ctx, httpClient)
}

// NewClientWithHTTP builds a Client on an already-authorized HTTP client,
// so the OAuth dance runs once per process even when the sheets log shares
// the credential.
func NewClientWithHTTP(ctx context.Context, httpClient *http.Client) (*Client, error) {
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	peopleSrv, err := people.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create People service: %w", err)
	}
	userinfoSrv, err := oauth2api.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create userinfo service: %w", err)
	}
	return &Client{srv: srv, people: peopleSrv, userinfo: userinfoSrv}, nil
}

// OAuthHTTPClient reads the client secret file and returns an HTTP client
// carrying a bearer token for all required scopes.
func OAuthHTTPClient(ctx context.Context) (*http.Client, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		tok, err = getTokenFromWeb(ctx, oauthConfig)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokenFile, tok); err != nil {
			log.Warn("unable to cache oauth token", "err", err)
		}
	}
	return oauthConfig.Client(ctx, tok), nil
}

func getTokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", authURL)
	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}
	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// Send delivers one message through the Gmail API. The payload is the
// conventional text-email wire form: To and Subject headers, a blank line,
// then the body, base64url-encoded as the API requires.
func (c *Client) Send(ctx context.Context, msg send.Message) error {
	raw := strings.Join([]string{
		"To: " + msg.To,
		"Subject: " + msg.Subject,
		"",
		msg.Body,
	}, "\n")
	gmsg := &gmail.Message{Raw: base64.RawURLEncoding.EncodeToString([]byte(raw))}

	if _, err := c.srv.Users.Messages.Send(user, gmsg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail send to %s failed: %w", msg.To, err)
	}
	return nil
}

// Profile returns the signed-in user's email address, used as the audit
// actor.
func (c *Client) Profile(ctx context.Context) (string, error) {
	info, err := c.userinfo.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to fetch user profile: %w", err)
	}
	return info.Email, nil
}

// Contact is one imported address-book entry.
type Contact struct {
	Email string
	Name  string
}

// ImportContacts pages through the user's Google Contacts and returns up
// to max entries that have an email address, de-duplicated by lowercased
// address. Entries keep the order the API returned them in.
func (c *Client) ImportContacts(ctx context.Context, max int) ([]Contact, error) {
	if max <= 0 {
		max = 1000
	}
	var contacts []Contact
	seen := make(map[string]bool)
	pageToken := ""

	for {
		call := c.people.People.Connections.List("people/me").
			PersonFields("names,emailAddresses").
			PageSize(200).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to fetch contacts: %w", err)
		}

		for _, p := range resp.Connections {
			if len(p.EmailAddresses) == 0 || p.EmailAddresses[0].Value == "" {
				continue
			}
			email := p.EmailAddresses[0].Value
			key := strings.ToLower(email)
			if seen[key] {
				continue
			}
			seen[key] = true
			name := ""
			if len(p.Names) > 0 {
				name = p.Names[0].DisplayName
			}
			contacts = append(contacts, Contact{Email: email, Name: name})
			if len(contacts) >= max {
				return contacts, nil
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	log.Info("imported contacts", "count", len(contacts))
	return contacts, nil
}
