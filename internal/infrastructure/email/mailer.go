// Package email delivers outbound notification mail.  Components build a
// Message (usually through the bundled templates) and hand it to a Mailer;
// which transport actually delivers it is a configuration concern.  The API
// server never sends directly; it publishes a notification event and the
// worker delivers through the Mailer built here.
package email

import (
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// Address is one mail endpoint: the bare address plus an optional display
// name for the header.
type Address struct {
	Email string
	Name  string
}

// header renders the address for a From/To header, quoting the display name
// when present.
func (a Address) header() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", a.Name), a.Email)
}

// Message is one outbound mail.  Body is plain text; the original system
// sends text mail for its notifications and so does this one.
type Message struct {
	From    Address
	To      Address
	Subject string
	Body    string
}

// Validate checks the parts every transport needs.
func (m *Message) Validate() error {
	if m.To.Email == "" || !strings.Contains(m.To.Email, "@") {
		return errors.New(errors.ErrCodeMailRecipientInvalid, "recipient address is missing or malformed").WithDetail(m.To.Email)
	}
	if m.From.Email == "" {
		return errors.New(errors.ErrCodeValidation, "sender address is required")
	}
	if m.Subject == "" {
		return errors.New(errors.ErrCodeValidation, "subject is required")
	}
	return nil
}

// Bytes renders the message as an RFC 5322 wire document with CRLF line
// endings, encoding the subject for non-ASCII text.
func (m *Message) Bytes(now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.From.header() + "\r\n")
	b.WriteString("To: " + m.To.header() + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", m.Subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")

	body := strings.ReplaceAll(m.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

// Mailer is the delivery contract. Implementations must be safe for
// concurrent use; the worker sends from multiple consumer goroutines.
type Mailer interface {
	Send(msg *Message) error
	Transport() string
}

// NewMailer builds the transport selected by configuration: "smtp" delivers
// over the wire, "log" writes the message to the application log, which is
// the safe default for development installs.
func NewMailer(cfg config.MailConfig, log logging.Logger) (Mailer, error) {
	switch strings.ToLower(cfg.Transport) {
	case "smtp":
		return NewSMTPMailer(cfg, log), nil
	case "log", "":
		return NewLogMailer(cfg, log), nil
	default:
		return nil, errors.New(errors.ErrCodeValidation, "unsupported mail transport").WithDetail(cfg.Transport)
	}
}
