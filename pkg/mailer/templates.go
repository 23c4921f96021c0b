package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// ResetPasswordData fills the reset password email.
type ResetPasswordData struct {
	AppName  string
	UserName string
	ResetURL string
	ValidFor string
}

var resetPasswordTemplate = template.Must(template.New("reset").Parse(`<h2>Hello {{.UserName}}</h2>
<p>Please use the url below to reset your password.</p>
<p>This reset link is valid for only {{.ValidFor}}.</p>
<a href="{{.ResetURL}}" clicktracking=off>{{.ResetURL}}</a>
<p>Regards...</p>
<p>{{.AppName}} Team</p>
`))

// ResetPasswordMessage renders the reset password email. To and From are left
// for the caller.
func ResetPasswordMessage(data ResetPasswordData) (Message, error) {
	var buf bytes.Buffer
	if err := resetPasswordTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("failed to render reset email: %w", err)
	}
	return Message{
		Subject:  "Password Reset Request",
		HTMLBody: buf.String(),
	}, nil
}
