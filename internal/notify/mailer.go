// Package notify delivers new-comment notification email to thread
// participants. The References header of every notification carries the
// synthetic thread marker, which is what lets replies find their way
// back to the right task.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hqnguyen/todotrack/internal/model"
	"github.com/hqnguyen/todotrack/internal/store"
	"github.com/hqnguyen/todotrack/internal/tracker"
)

// Mailer sends thread notifications over SMTP. The SMTP settings are
// resolved once per task list at construction time, not per send.
type Mailer struct {
	cfg    model.SMTPConfig
	store  store.Store
	domain string
	log    *zap.SugaredLogger
}

// NewMailer creates a Mailer for one task list's outbound settings.
func NewMailer(cfg model.SMTPConfig, st store.Store, domain string, log *zap.SugaredLogger) *Mailer {
	return &Mailer{cfg: cfg, store: st, domain: domain, log: log}
}

// CommentAdded notifies everyone on the task's thread (registered
// comment authors plus the task creator) about a new comment. The
// sender of the comment is not excluded; mail agents dedup by
// Message-ID and the original behaved the same way.
func (m *Mailer) CommentAdded(ctx context.Context, task model.Task, c model.Comment) error {
	recipients, err := m.store.ThreadParticipants(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("collecting thread participants: %w", err)
	}
	if len(recipients) == 0 {
		m.log.Debugw("no thread participants to notify", "task_id", task.ID)
		return nil
	}

	subject := task.Title
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	marker := tracker.FormatThreadMarker(task.ID, m.domain)

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", m.cfg.FromAddress))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(recipients, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z)))
	msg.WriteString(fmt.Sprintf("Message-ID: <%s@%s>\r\n", uuid.New().String(), m.domain))
	msg.WriteString(fmt.Sprintf("In-Reply-To: %s\r\n", marker))
	msg.WriteString(fmt.Sprintf("References: %s\r\n", marker))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(fmt.Sprintf("%s commented on task %q:\r\n\r\n", m.authorText(ctx, c), task.Title))
	msg.WriteString(c.Body)
	msg.WriteString("\r\n")

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	if m.cfg.TLS {
		err = m.sendWithTLS(addr, recipients, msg.String())
	} else {
		err = m.sendWithStartTLS(addr, recipients, msg.String())
	}
	if err != nil {
		return err
	}

	m.log.Infow("sent thread notification",
		"task_id", task.ID,
		"recipients", len(recipients),
	)
	return nil
}

// authorText resolves the display name for a comment author: the
// username of the registered author when one exists, else the raw
// sender address.
func (m *Mailer) authorText(ctx context.Context, c model.Comment) string {
	if c.AuthorID != nil {
		if u, err := m.store.GetUserByID(ctx, *c.AuthorID); err == nil {
			return c.AuthorText(u.Username)
		}
	}
	return c.AuthorText("")
}

// sendWithTLS sends over an implicit TLS connection.
func (m *Mailer) sendWithTLS(addr string, to []string, body string) error {
	tlsConfig := &tls.Config{ServerName: m.cfg.Host}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("TLS dial to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}

	return m.deliver(client, to, body)
}

// sendWithStartTLS sends using STARTTLS.
func (m *Mailer) sendWithStartTLS(addr string, to []string, body string) error {
	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return fmt.Errorf("dial to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: m.cfg.Host}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("SMTP STARTTLS: %w", err)
	}

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}

	return m.deliver(client, to, body)
}

// deliver sends a message using an already-authenticated SMTP client.
func (m *Mailer) deliver(client *smtp.Client, to []string, body string) error {
	if err := client.Mail(m.cfg.FromAddress); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}

	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}

	if _, err := writer.Write([]byte(body)); err != nil {
		return fmt.Errorf("writing notification body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing notification body: %w", err)
	}

	return client.Quit()
}
