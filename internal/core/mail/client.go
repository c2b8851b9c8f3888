// Package mail delivers the account emails (address verification,
// password reset) over SMTP.
package mail

import (
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/url"

	"github.com/dajohi/goemail"
)

// Mailer sends templated account emails. Implementations must treat a
// disabled mail server as a silent no-op, not an error.
type Mailer interface {
	IsEnabled() bool
	SendEmailVerify(email, username, token string) error
	SendPasswordReset(email, username, token string) error
}

type Opts struct {
	Host          string // host:port, empty disables email
	User          string
	Password      string
	SenderAddress string // RFC 5322 address, e.g. `Accounts <noreply@example.com>`
	SkipVerify    bool
	WebAddress    string // base URL the email links point at
}

type client struct {
	smtp        *goemail.SMTP
	mailName    string
	mailAddress string
	webAddress  string
	disabled    bool
}

// NewClient returns an SMTP-backed Mailer. Email is considered
// disabled if any of the required credentials are missing.
func NewClient(o Opts) (Mailer, error) {
	if o.Host == "" || o.User == "" || o.Password == "" {
		return &client{disabled: true}, nil
	}

	u, err := url.Parse(fmt.Sprintf("smtps://%v:%v@%v", o.User, o.Password, o.Host))
	if err != nil {
		return nil, err
	}

	a, err := mail.ParseAddress(o.SenderAddress)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: o.SkipVerify,
	}
	smtp, err := goemail.NewSMTP(u.String(), tlsConfig)
	if err != nil {
		return nil, err
	}

	return &client{
		smtp:        smtp,
		mailName:    a.Name,
		mailAddress: a.Address,
		webAddress:  o.WebAddress,
	}, nil
}

func (c *client) IsEnabled() bool { return !c.disabled }

func (c *client) sendTo(subject, body string, recipients []string) error {
	if c.disabled || len(recipients) == 0 {
		return nil
	}
	msg := goemail.NewMessage(c.mailAddress, subject, body)
	msg.SetName(c.mailName)
	for _, v := range recipients {
		msg.AddBCC(v)
	}
	return c.smtp.Send(msg)
}

// link builds a GUI URL carrying the token as a query parameter.
func (c *client) link(path, token string) (string, error) {
	l, err := url.Parse(c.webAddress + path)
	if err != nil {
		return "", err
	}
	q := l.Query()
	q.Set("token", token)
	l.RawQuery = q.Encode()
	return l.String(), nil
}

func (c *client) SendEmailVerify(email, username, token string) error {
	link, err := c.link(routeVerifyEmail, token)
	if err != nil {
		return err
	}
	body, err := createBody(emailVerifyTmpl, emailVerifyData{
		Username: username,
		Link:     link,
	})
	if err != nil {
		return err
	}
	return c.sendTo("Verify Your Email", body, []string{email})
}

func (c *client) SendPasswordReset(email, username, token string) error {
	link, err := c.link(routeResetPassword, token)
	if err != nil {
		return err
	}
	body, err := createBody(passwordResetTmpl, passwordResetData{
		Username: username,
		Link:     link,
	})
	if err != nil {
		return err
	}
	return c.sendTo("Reset Your Password", body, []string{email})
}
