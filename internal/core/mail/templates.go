package mail

import (
	"bytes"
	"text/template"
)

// GUI routes used in email links.
const (
	routeVerifyEmail   = "/verify-email"
	routeResetPassword = "/reset-password"
)

func createBody(tpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type emailVerifyData struct {
	Username string
	Link     string
}

var emailVerifyTmpl = template.Must(template.New("emailVerify").Parse(
	`Hi {{.Username}},

Thanks for signing up. Click the link below to verify your email
address:

{{.Link}}

If you did not create this account you can ignore this email.
`))

type passwordResetData struct {
	Username string
	Link     string
}

var passwordResetTmpl = template.Must(template.New("passwordReset").Parse(
	`Hi {{.Username}},

A password reset was requested for your account. Click the link below
to choose a new password:

{{.Link}}

The link expires after a short period. If you did not request a reset,
no action is needed; your password has not changed.
`))
