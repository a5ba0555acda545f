package dispatch

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"path/filepath"
	"strings"
)

// EmailAttachment is one (filename, binary) pair attached to a message.
type EmailAttachment struct {
	Filename string
	Data     []byte
}

// Email is the full message contract the relay accepts.
type Email struct {
	To          []string
	CC          []string
	Subject     string
	HTMLBody    string
	Attachments []EmailAttachment
}

// Mailer delivers invoice documents to clients.
type Mailer interface {
	Send(email Email) error
}

// SMTPMailer implements Mailer over a plain SMTP relay with multipart MIME
// for the attachment list.
type SMTPMailer struct {
	addr string // host:port
	from string
	auth smtp.Auth
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
		auth: auth,
	}
}

func (m *SMTPMailer) Send(email Email) error {
	if len(email.To) == 0 {
		return fmt.Errorf("email has no recipients")
	}
	msg := buildMIME(m.from, email)
	recipients := append(append([]string{}, email.To...), email.CC...)
	if err := smtp.SendMail(m.addr, m.auth, m.from, recipients, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", strings.Join(email.To, ", "), err)
	}
	return nil
}

const mimeBoundary = "billing-console-mime-boundary"

func buildMIME(from string, email Email) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(email.To, ", "))
	if len(email.CC) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(email.CC, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", email.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mimeBoundary)

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(email.HTMLBody)
	b.WriteString("\r\n")

	for _, att := range email.Attachments {
		contentType := mime.TypeByExtension(filepath.Ext(att.Filename))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
		fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", att.Filename)
		b.WriteString(wrapBase64(base64.StdEncoding.EncodeToString(att.Data)))
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", mimeBoundary)
	return []byte(b.String())
}

// wrapBase64 folds encoded content at the 76-column limit RFC 2045 requires.
func wrapBase64(s string) string {
	const width = 76
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteString("\r\n")
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}
