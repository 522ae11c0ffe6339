package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
)

// SMTPSender delivers notifications as HTML email over implicit TLS
// (port 465 style). Credentials come from config; never log them.
type SMTPSender struct {
	addr     string // host:port
	host     string
	username string
	password string
	from     string
}

func NewSMTPSender(addr, host, username, password, from string) *SMTPSender {
	return &SMTPSender{
		addr:     addr,
		host:     host,
		username: username,
		password: password,
		from:     from,
	}
}

func (s *SMTPSender) Send(ctx context.Context, recipient, subject string, data Data) error {
	if recipient == "" {
		return errors.New("notify: recipient is required")
	}

	body, err := RenderHTML(data)
	if err != nil {
		return fmt.Errorf("notify: render failed: %w", err)
	}

	msg := []byte(
		fmt.Sprintf("From: %s\r\n", s.from) +
			fmt.Sprintf("To: %s\r\n", recipient) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			body,
	)

	tlsConfig := &tls.Config{ServerName: s.host}

	d := tls.Dialer{Config: tlsConfig}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("notify: smtp dial failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return err
	}
	defer client.Quit()

	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(s.from); err != nil {
		return err
	}
	if err := client.Rcpt(recipient); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}
