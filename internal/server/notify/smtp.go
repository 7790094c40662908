package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"net/url"
	"strings"
	"text/template"
	"time"
)

type SMTPConfig struct {
	Addr     string // host:port
	Username string
	Password string
	From     string // "Name <addr>" or a bare address
	BaseURL  string // links are built as BaseURL + path + ?token=
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier renders plain-text messages and hands them to an SMTP relay.
type SMTPNotifier struct {
	cfg      SMTPConfig
	from     *mail.Address
	auth     smtp.Auth
	sendMail sendMailFunc
	now      func() time.Time
}

var (
	verificationTmpl = template.Must(template.New("verification").Parse(
		`Hi {{.Name}},

Please confirm your email address for TubePulse by opening the link below:

{{.Link}}

The link expires in 24 hours. If you did not create an account you can ignore this message.
`))

	resetTmpl = template.Must(template.New("reset").Parse(
		`Hi {{.Name}},

We received a request to reset your TubePulse password. Open the link below to choose a new one:

{{.Link}}

The link expires in 1 hour. If you did not ask for a reset you can ignore this message.
`))
)

func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parse sender address: %w", err)
	}
	n := &SMTPNotifier{cfg: cfg, from: from, sendMail: smtp.SendMail, now: time.Now}
	if cfg.Username != "" {
		host, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("parse smtp address: %w", err)
		}
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return n, nil
}

func (n *SMTPNotifier) SendVerificationEmail(ctx context.Context, to, token, name string) error {
	return n.send(ctx, to, "Confirm your email address", verificationTmpl, n.link("/verify-email", token), name)
}

func (n *SMTPNotifier) SendPasswordResetEmail(ctx context.Context, to, token, name string) error {
	return n.send(ctx, to, "Reset your password", resetTmpl, n.link("/reset-password", token), name)
}

func (n *SMTPNotifier) link(path, token string) string {
	return strings.TrimRight(n.cfg.BaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject string, tmpl *template.Template, link, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("parse recipient: %w", err)
	}
	if name == "" {
		name = "there"
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, struct{ Name, Link string }{name, link}); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.from.String())
	fmt.Fprintf(&msg, "To: %s\r\n", rcpt.String())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", n.now().UTC().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))

	if err := n.sendMail(n.cfg.Addr, n.auth, n.from.Address, []string{rcpt.Address}, msg.Bytes()); err != nil {
		return fmt.Errorf("send %s email: %w", tmpl.Name(), err)
	}
	return nil
}
