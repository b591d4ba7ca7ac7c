// Package mailer defines the outbound mail capabilities consumed by the bulk
// email pipeline: per-actor connected providers (Gmail, Outlook) that may
// decline recoverably, and a default transactional sender that must succeed
// or error.
package mailer

import (
	"context"
	"io"
	"log"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/k3a/html2text"
	"github.com/leadboard/leadboard-go/internal/errors"
	"github.com/leadboard/leadboard-go/internal/logging"
)

// Message is one outbound email.
type Message struct {
	ActorID       uint // member on whose behalf the mail is sent
	To            string
	RecipientName string
	Subject       string
	Body          string // HTML body
	SenderName    string
}

// Provider attempts delivery through an actor's connected account.
// The bool result is the delivery outcome: false without an error means the
// provider declined recoverably (no connection, expired or invalid token) and
// the caller should fall back. An error is a hard per-recipient failure.
type Provider interface {
	Name() string
	TrySend(ctx context.Context, msg Message) (bool, error)
}

// Sender is the default transactional sender used when no provider delivers.
// It must succeed or return an error; there is no further fallback.
type Sender interface {
	Name() string
	Send(ctx context.Context, to, subject, htmlBody, from string) error
}

// ShoutrrrSender delivers transactional mail through a shoutrrr SMTP service
// URL.
type ShoutrrrSender struct {
	router     *router.ServiceRouter
	senderName string
}

// NewShoutrrrSender builds the default sender from an smtp:// service URL.
func NewShoutrrrSender(smtpURL, senderName string, timeout time.Duration) (*ShoutrrrSender, error) {
	if smtpURL == "" {
		return nil, errors.Newf("smtp URL is required for the default mail sender").
			Component("mailer").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sender, err := shoutrrr.CreateSender(smtpURL)
	if err != nil {
		return nil, errors.New(err).
			Component("mailer").
			Category(errors.CategoryConfiguration).
			Context("operation", "create_sender").
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	logging.ForService("mailer").Info("default mail sender initialized", "sender_name", senderName)

	return &ShoutrrrSender{router: sender, senderName: senderName}, nil
}

// Name identifies the sender in activity entries.
func (s *ShoutrrrSender) Name() string { return "default" }

// Send delivers one message or returns an error. The HTML body is reduced to
// plain text at this boundary; SMTP transports that support HTML can be
// configured through the service URL instead.
func (s *ShoutrrrSender) Send(ctx context.Context, to, subject, htmlBody, from string) error {
	_ = ctx // router handles its own timeouts

	params := stypes.Params{}
	params.SetTitle(subject)
	params["fromname"] = s.senderName
	if from != "" {
		params["fromaddress"] = from
	}
	if to != "" {
		params["toaddresses"] = to
	}

	body := html2text.HTML2Text(htmlBody)

	for _, err := range s.router.Send(body, &params) {
		if err != nil {
			return errors.New(err).
				Component("mailer").
				Category(errors.CategoryMailDelivery).
				Context("operation", "smtp_send").
				Build()
		}
	}
	return nil
}
