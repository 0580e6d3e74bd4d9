package email

import (
	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
)

// LogMailer writes messages to the application log instead of the network.
// It is the default transport so a fresh install never mails real addresses
// before an operator configures SMTP.
type LogMailer struct {
	from Address
	log  logging.Logger
}

func NewLogMailer(cfg config.MailConfig, log logging.Logger) *LogMailer {
	return &LogMailer{
		from: Address{Email: cfg.FromAddress, Name: cfg.FromName},
		log:  log.Named("mail"),
	}
}

func (m *LogMailer) Transport() string { return "log" }

func (m *LogMailer) Send(msg *Message) error {
	if msg.From.Email == "" {
		msg.From = m.from
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	m.log.Info("mail delivered to log",
		logging.String("from", msg.From.Email),
		logging.String("to", msg.To.Email),
		logging.String("subject", msg.Subject),
		logging.String("body", msg.Body),
	)
	return nil
}
