// Package notifications delivers escalation alerts to the support team over
// SMTP. Delivery is best-effort; the caller decides whether to block on it.
package notifications

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// SMTPConfig carries the mail settings for escalation notifications. When
// Enabled is false the mailer becomes a no-op.
type SMTPConfig struct {
	Enabled    bool
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	To         []string
	StartTLS   bool
	SkipVerify bool
}

// EscalationMailer sends one email per escalated complaint. It satisfies the
// conversation controller's Notifier interface.
type EscalationMailer struct {
	cfg SMTPConfig
}

// NewEscalationMailer builds a mailer from cfg. The zero-value config yields a
// disabled mailer whose Send always succeeds.
func NewEscalationMailer(cfg SMTPConfig) *EscalationMailer {
	return &EscalationMailer{cfg: cfg}
}

// Send emails the escalation details to the configured recipients. Disabled
// mailers return nil without connecting.
func (m *EscalationMailer) Send(ctx context.Context, name, mobile, address, complaintText, complaintID string) error {
	if !m.cfg.Enabled {
		log.Debug().Str("complaint_id", complaintID).Msg("escalation mail disabled, skipping")
		return nil
	}
	if len(m.cfg.To) == 0 {
		return fmt.Errorf("no escalation recipients configured")
	}

	subject := fmt.Sprintf("Complaint escalated: %s", complaintID)
	body := escalationBody(name, mobile, address, complaintText, complaintID)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.cfg.From, strings.Join(m.cfg.To, ", "), subject, body)

	var auth smtp.Auth
	if m.cfg.User != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	// The SMTP protocol has no per-command deadline hook, so bound the whole
	// exchange (greeting included) by the context deadline when one is set.
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return fmt.Errorf("set SMTP deadline: %w", err)
		}
	}
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake: %w", err)
	}
	defer client.Close()

	if m.cfg.StartTLS {
		tlsConfig := &tls.Config{
			ServerName:         m.cfg.Host,
			InsecureSkipVerify: m.cfg.SkipVerify,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, to := range m.cfg.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("set recipient %s: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("initiate data transfer: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data transfer: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("quit SMTP session: %w", err)
	}

	log.Info().Str("complaint_id", complaintID).Int("recipients", len(m.cfg.To)).Msg("escalation mail sent")
	return nil
}

func escalationBody(name, mobile, address, complaintText, complaintID string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A complaint has been escalated and needs attention.\r\n\r\n")
	fmt.Fprintf(&sb, "Complaint ID: %s\r\n", complaintID)
	fmt.Fprintf(&sb, "Name: %s\r\n", name)
	fmt.Fprintf(&sb, "Mobile: %s\r\n", mobile)
	fmt.Fprintf(&sb, "Address: %s\r\n\r\n", address)
	fmt.Fprintf(&sb, "Complaint:\r\n%s\r\n\r\n", complaintText)
	fmt.Fprintf(&sb, "Escalated at %s\r\n", time.Now().UTC().Format(time.RFC1123))
	return sb.String()
}
