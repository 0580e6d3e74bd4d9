package email

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// SMTPMailer delivers mail over SMTP. It dials per message: notification
// volume is low (password resets, report completions) and a held-open
// connection would only rot between sends.
type SMTPMailer struct {
	host    string
	port    int
	auth    smtp.Auth
	from    Address
	timeout time.Duration
	log     logging.Logger

	// dial is replaced in tests so no socket is opened.
	dial func(addr string) (smtpConn, error)
}

// smtpConn is the slice of *smtp.Client the mailer uses.
type smtpConn interface {
	Extension(ext string) (bool, string)
	StartTLS(cfg *tls.Config) error
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (interface {
		Write(p []byte) (int, error)
		Close() error
	}, error)
	Quit() error
	Close() error
}

// smtpClient adapts *smtp.Client to smtpConn; Data needs a wrapper because
// the interface literal cannot name io.WriteCloser directly.
type smtpClient struct{ *smtp.Client }

func (c smtpClient) Data() (interface {
	Write(p []byte) (int, error)
	Close() error
}, error) {
	return c.Client.Data()
}

// NewSMTPMailer builds the wire transport from configuration. Credentials
// are optional: a relay on localhost typically runs unauthenticated.
func NewSMTPMailer(cfg config.MailConfig, log logging.Logger) *SMTPMailer {
	m := &SMTPMailer{
		host:    cfg.Host,
		port:    cfg.Port,
		from:    Address{Email: cfg.FromAddress, Name: cfg.FromName},
		timeout: cfg.SendTimeout,
		log:     log.Named("smtp"),
	}
	if m.timeout <= 0 {
		m.timeout = 10 * time.Second
	}
	if cfg.Username != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	m.dial = func(addr string) (smtpConn, error) {
		conn, err := net.DialTimeout("tcp", addr, m.timeout)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(time.Now().Add(m.timeout)); err != nil {
			conn.Close()
			return nil, err
		}
		client, err := smtp.NewClient(conn, m.host)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return smtpClient{client}, nil
	}
	return m
}

// Transport names the delivery mechanism for logs and health output.
func (m *SMTPMailer) Transport() string { return "smtp" }

// Send delivers one message, upgrading to TLS when the server offers it and
// authenticating when credentials are configured.
func (m *SMTPMailer) Send(msg *Message) error {
	if msg.From.Email == "" {
		msg.From = m.from
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	client, err := m.dial(addr)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeMailSendFailed, "failed to connect to mail server").WithDetail(addr)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return errors.Wrap(err, errors.ErrCodeMailSendFailed, "STARTTLS negotiation failed")
		}
	}
	if m.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(m.auth); err != nil {
				return errors.Wrap(err, errors.ErrCodeMailSendFailed, "mail server rejected credentials")
			}
		}
	}

	if err := client.Mail(msg.From.Email); err != nil {
		return errors.Wrap(err, errors.ErrCodeMailSendFailed, "mail server rejected sender").WithDetail(msg.From.Email)
	}
	if err := client.Rcpt(msg.To.Email); err != nil {
		return errors.Wrap(err, errors.ErrCodeMailRecipientInvalid, "mail server rejected recipient").WithDetail(msg.To.Email)
	}
	w, err := client.Data()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeMailSendFailed, "failed to open message body")
	}
	if _, err := w.Write(msg.Bytes(time.Now())); err != nil {
		w.Close()
		return errors.Wrap(err, errors.ErrCodeMailSendFailed, "failed to write message body")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeMailSendFailed, "mail server rejected message body")
	}
	if err := client.Quit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeMailSendFailed, "failed to close mail session")
	}

	m.log.Info("mail sent",
		logging.String("to", msg.To.Email),
		logging.String("subject", msg.Subject),
	)
	return nil
}
