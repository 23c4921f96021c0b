// Package mailer delivers transactional email over SMTP, directly or through
// a message queue.
package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// Message is a single HTML email.
type Message struct {
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	To       string `json:"to"`
	From     string `json:"from"`
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds SMTP server details.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPSender sends mail through an SMTP server using PLAIN auth.
type SMTPSender struct {
	addr     string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates a new SMTPSender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// Send delivers msg. smtp.SendMail cannot be cancelled, so a cancelled ctx
// only stops the caller from waiting.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(s.addr, s.auth, msg.From, []string{msg.To}, buildMIME(msg))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email via %s: %w", s.addr, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMIME(msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + msg.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTMLBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Publisher puts a message body on a queue.
type Publisher interface {
	Publish(body []byte) error
}

// QueueSender hands messages to a queue for a QueueWorker to deliver.
type QueueSender struct {
	publisher Publisher
}

// NewQueueSender creates a new QueueSender.
func NewQueueSender(publisher Publisher) *QueueSender {
	return &QueueSender{publisher: publisher}
}

// Send publishes msg as JSON.
func (s *QueueSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}
	if err := s.publisher.Publish(body); err != nil {
		return fmt.Errorf("failed to queue email: %w", err)
	}
	return nil
}

// QueueWorker delivers queued messages with another Sender.
type QueueWorker struct {
	next Sender
}

// NewQueueWorker creates a QueueWorker delivering through next.
func NewQueueWorker(next Sender) *QueueWorker {
	return &QueueWorker{next: next}
}

// Deliver decodes a queued message body and sends it.
func (w *QueueWorker) Deliver(ctx context.Context, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to decode queued email: %w", err)
	}
	if msg.To == "" {
		return fmt.Errorf("queued email has no recipient")
	}
	return w.next.Send(ctx, msg)
}

// LogSender records that an email would have been sent. The body is not
// logged because it may contain a reset link.
type LogSender struct{}

// NewLogSender creates a new LogSender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send logs the subject and recipient of msg.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	log.Printf("Email %q to %s not delivered (log transport)", msg.Subject, msg.To)
	return nil
}
