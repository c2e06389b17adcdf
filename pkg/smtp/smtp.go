package smtp

import (
	"fmt"
	smtpPkg "net/smtp"
	"os"
	"strings"
)

type ItfSmtp interface {
	SendMail(to, subject, body string) error
}

type smtp struct {
	auth smtpPkg.Auth
	mail string
	addr string
	send func(addr string, a smtpPkg.Auth, from string, to []string, msg []byte) error
}

func New() ItfSmtp {
	mail := os.Getenv("SMTP_MAIL")
	password := os.Getenv("SMTP_PASSWORD")
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		host = "smtp.gmail.com"
	}
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	auth := smtpPkg.PlainAuth("", mail, password, host)

	return &smtp{auth: auth, mail: mail, addr: host + ":" + port, send: smtpPkg.SendMail}
}

func (s *smtp) SendMail(to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("smtp: header injection in recipient or subject")
	}

	message := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.mail, to, subject, body))

	if err := s.send(s.addr, s.auth, s.mail, []string{to}, message); err != nil {
		return fmt.Errorf("smtp: send to %s: %w", to, err)
	}

	return nil
}
