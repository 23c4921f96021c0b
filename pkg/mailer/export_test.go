package mailer

import "net/smtp"

// SetSendMail replaces the function SMTPSender uses to talk to the server.
func SetSendMail(s *SMTPSender, fn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error) {
	s.sendMail = fn
}
