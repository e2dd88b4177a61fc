package services

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"strings"

	"github.com/go-mail/mail/v2"

	"uptask/internal/models"
)

// Mailer sends account notifications. Callers never wait on delivery.
type Mailer interface {
	SendConfirmation(user *models.User) error
	SendPasswordReset(user *models.User) error
}

const (
	templateConfirm = "confirm"
	templateReset   = "reset"
)

var mailTemplates = map[string]*template.Template{
	templateConfirm: template.Must(template.New(templateConfirm).Parse(`
{{define "subject"}}UpTask - Confirm your account{{end}}
{{define "plainBody"}}Hi {{.Name}},

Your UpTask account is almost ready. Confirm it by visiting:
{{.Link}}

If you did not create this account you can ignore this message.{{end}}
{{define "htmlBody"}}<p>Hi {{.Name}},</p>
<p>Your UpTask account is almost ready. Confirm it by following the link below:</p>
<p><a href="{{.Link}}">Confirm account</a></p>
<p>If you did not create this account you can ignore this message.</p>{{end}}
`)),
	templateReset: template.Must(template.New(templateReset).Parse(`
{{define "subject"}}UpTask - Reset your password{{end}}
{{define "plainBody"}}Hi {{.Name}},

You asked to reset your UpTask password. Choose a new one here:
{{.Link}}

If you did not ask for this you can ignore this message.{{end}}
{{define "htmlBody"}}<p>Hi {{.Name}},</p>
<p>You asked to reset your UpTask password. Choose a new one here:</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>If you did not ask for this you can ignore this message.</p>{{end}}
`)),
}

type mailData struct {
	Name string
	Link string
}

// ConfirmationLink is the frontend page that confirms an account
func ConfirmationLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/confirm/" + token
}

// ResetLink is the frontend page that sets a new password
func ResetLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/forgot-password/" + token
}

// SMTPMailer delivers notifications through an SMTP relay
type SMTPMailer struct {
	dialer      *mail.Dialer
	sender      string
	frontendURL string
	attempts    int
	metrics     *Metrics
}

// NewSMTPMailer creates a mailer for the given relay
func NewSMTPMailer(host string, port int, username, password, sender, frontendURL string, metrics *Metrics) *SMTPMailer {
	return &SMTPMailer{
		dialer:      mail.NewDialer(host, port, username, password),
		sender:      sender,
		frontendURL: frontendURL,
		attempts:    3,
		metrics:     metrics,
	}
}

func (m *SMTPMailer) SendConfirmation(user *models.User) error {
	return m.send(templateConfirm, user, ConfirmationLink(m.frontendURL, user.Token))
}

func (m *SMTPMailer) SendPasswordReset(user *models.User) error {
	return m.send(templateReset, user, ResetLink(m.frontendURL, user.Token))
}

func (m *SMTPMailer) send(name string, user *models.User, link string) error {
	msg, err := buildMessage(m.sender, user.Email, name, mailData{Name: user.Name, Link: link})
	if err != nil {
		m.metrics.RecordMail(name, "error")
		return err
	}

	for i := 0; i < m.attempts; i++ {
		if err = m.dialer.DialAndSend(msg); err == nil {
			m.metrics.RecordMail(name, "sent")
			return nil
		}
	}
	m.metrics.RecordMail(name, "error")
	return fmt.Errorf("failed to send %s mail to %s: %w", name, user.Email, err)
}

func buildMessage(from, to, name string, data mailData) (*mail.Message, error) {
	tmpl, ok := mailTemplates[name]
	if !ok {
		return nil, fmt.Errorf("unknown mail template %q", name)
	}

	var subject, plainBody, htmlBody bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subject, "subject", data); err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := tmpl.ExecuteTemplate(&plainBody, "plainBody", data); err != nil {
		return nil, fmt.Errorf("failed to render plain body: %w", err)
	}
	if err := tmpl.ExecuteTemplate(&htmlBody, "htmlBody", data); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject.String())
	msg.SetBody("text/plain", plainBody.String())
	msg.AddAlternative("text/html", htmlBody.String())
	return msg, nil
}

// LogMailer writes the links to the log instead of sending mail. Used when SMTP is not configured.
type LogMailer struct {
	frontendURL string
}

// NewLogMailer creates a log-only mailer
func NewLogMailer(frontendURL string) *LogMailer {
	return &LogMailer{frontendURL: frontendURL}
}

func (m *LogMailer) SendConfirmation(user *models.User) error {
	log.Printf("[MAIL] confirmation for %s: %s", user.Email, ConfirmationLink(m.frontendURL, user.Token))
	return nil
}

func (m *LogMailer) SendPasswordReset(user *models.User) error {
	log.Printf("[MAIL] password reset for %s: %s", user.Email, ResetLink(m.frontendURL, user.Token))
	return nil
}
