package email

import (
	"strings"
	"text/template"

	"github.com/mirono/webtrees/pkg/errors"
)

// Template names understood by BuildMessage.  The API publishes these in
// notification events; the worker resolves them here before sending.
const (
	TemplatePasswordReset   = "password_reset"
	TemplatePasswordChanged = "password_changed"
	TemplateReportReady     = "report_ready"
	TemplateWelcome         = "welcome"
)

type messageSpec struct {
	subject string
	body    *template.Template
}

var messageSpecs = map[string]messageSpec{
	TemplatePasswordReset: {
		subject: "Password reset requested",
		body: template.Must(template.New(TemplatePasswordReset).Parse(
			`Hello {{or .real_name "there"}},

A password reset was requested for your account. Open the link below to
choose a new password:

{{.reset_url}}

The link expires in {{.expires_in}}. If you did not request it, ignore this
message; your current password still works.
`)),
	},
	TemplatePasswordChanged: {
		subject: "Your password was changed",
		body: template.Must(template.New(TemplatePasswordChanged).Parse(
			`Hello {{or .real_name "there"}},

The password for your account was just changed. If this was you, no action
is needed. If it was not, contact the site administrator immediately.
`)),
	},
	TemplateReportReady: {
		subject: "Your report is ready",
		body: template.Must(template.New(TemplateReportReady).Parse(
			`Hello {{or .real_name "there"}},

The {{.report_kind}} report you requested for {{.tree_name}} has finished.
Download it from:

{{.download_url}}
`)),
	},
	TemplateWelcome: {
		subject: "Welcome",
		body: template.Must(template.New(TemplateWelcome).Parse(
			`Hello {{or .real_name "there"}},

An account was created for you ({{.username}}). Sign in at:

{{.site_url}}
`)),
	},
}

// KnownTemplate reports whether BuildMessage can resolve the named template.
func KnownTemplate(name string) bool {
	_, ok := messageSpecs[name]
	return ok
}

// BuildMessage renders a bundled template into a sendable message. An empty
// subject falls back to the template default; From is filled by the mailer.
func BuildMessage(templateName, recipient, subject string, vars map[string]string) (*Message, error) {
	spec, ok := messageSpecs[templateName]
	if !ok {
		return nil, errors.New(errors.ErrCodeValidation, "unknown mail template").WithDetail(templateName)
	}
	if subject == "" {
		subject = spec.subject
	}

	data := make(map[string]string, len(vars))
	for k, v := range vars {
		data[k] = v
	}

	var body strings.Builder
	if err := spec.body.Execute(&body, data); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to render mail template").WithDetail(templateName)
	}
	return &Message{
		To:      Address{Email: recipient, Name: vars["real_name"]},
		Subject: subject,
		Body:    body.String(),
	}, nil
}
