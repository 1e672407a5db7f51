// Package mailer delivers the small set of account emails (password reset
// links, access-request notifications) behind an injectable Sender so the
// auth service never talks SMTP directly.
package mailer

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"os"
)

// Sender is the send(to, subject, body) collaborator the auth service
// depends on.
type Sender interface {
	Send(to, subject, body string) error
}

// SMTP sends mail through a plain-auth SMTP relay configured from the
// environment.
type SMTP struct {
	addr string
	user string
	pass string
}

func NewSMTPFromEnv() *SMTP {
	host := os.Getenv("SMTP_HOST")
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	return &SMTP{
		addr: net.JoinHostPort(host, port),
		user: os.Getenv("SMTP_USER"),
		pass: os.Getenv("SMTP_PASS"),
	}
}

// Configured reports whether the relay credentials are present.
func (m *SMTP) Configured() bool {
	return m.user != "" && m.addr != ":587" && m.addr != ":"
}

func (m *SMTP) Send(to, subject, body string) error {
	if !m.Configured() {
		return errors.New("SMTP no configurado")
	}
	host, _, err := net.SplitHostPort(m.addr)
	if err != nil {
		return err
	}
	auth := smtp.PlainAuth("", m.user, m.pass, host)
	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s\r\n",
		m.user, to, subject, body))
	return smtp.SendMail(m.addr, auth, m.user, []string{to}, msg)
}

// Disabled is the Sender used when no relay is configured; it logs and
// drops the message so flows like forgot-password still succeed.
type Disabled struct{}

func (Disabled) Send(to, subject, body string) error {
	log.Printf("mailer deshabilitado, se descarta email para %s (%s)", to, subject)
	return nil
}
