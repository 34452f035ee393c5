// Package smtp provides an SMTP implementation of send.Transport for
// accounts that cannot use the Gmail API.
package smtp

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/bassamadnan/mergemail/send"
)

// Sender delivers messages over authenticated SMTP.
type Sender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSender configures a Sender. from is the envelope/From address shown
// to recipients.
func NewSender(host string, port int, username, password, from string) *Sender {
	return &Sender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// Send delivers one plain-text message. gomail has no context support, so
// the dial-and-send runs in a goroutine and the context cancels the wait;
// an abandoned attempt may still complete on the wire.
func (s *Sender) Send(ctx context.Context, msg send.Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s aborted: %w", msg.To, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s failed: %w", msg.To, err)
		}
		return nil
	}
}
