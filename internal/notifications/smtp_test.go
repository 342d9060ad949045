package notifications

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

func startFakeSMTPServer(t *testing.T) (string, int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start fake SMTP server: %v", err)
	}

	data := make(chan string, 1)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handleFakeSMTPConnection(conn, data)
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		t.Fatalf("failed to parse fake SMTP address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		_ = ln.Close()
		t.Fatalf("failed to parse fake SMTP port: %v", err)
	}

	t.Cleanup(func() { _ = ln.Close() })
	return host, port, data
}

func handleFakeSMTPConnection(conn net.Conn, data chan<- string) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	write := func(msg string) {
		_, _ = writer.WriteString(msg)
		_ = writer.Flush()
	}

	write("220 localhost ESMTP\r\n")

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))

		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			write("250-localhost\r\n250 OK\r\n")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			write("250 OK\r\n")
		case strings.HasPrefix(cmd, "RCPT TO"):
			write("250 OK\r\n")
		case strings.HasPrefix(cmd, "DATA"):
			write("354 End data with <CR><LF>.<CR><LF>\r\n")
			var sb strings.Builder
			for {
				dataLine, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				if dataLine == ".\r\n" {
					break
				}
				sb.WriteString(dataLine)
			}
			select {
			case data <- sb.String():
			default:
			}
			write("250 OK\r\n")
		case strings.HasPrefix(cmd, "QUIT"):
			write("221 Bye\r\n")
			return
		default:
			write("250 OK\r\n")
		}
	}
}

func TestEscalationMailer_Send(t *testing.T) {
	host, port, data := startFakeSMTPServer(t)

	m := NewEscalationMailer(SMTPConfig{
		Enabled: true,
		Host:    host,
		Port:    port,
		From:    "bot@example.com",
		To:      []string{"support@example.com"},
	})

	err := m.Send(context.Background(),
		"John Smith", "9876543210", "12 Park Street",
		"transformer sparks on my street", "COMP-20240101-ab12")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msg := <-data
	for _, want := range []string{
		"Subject: Complaint escalated: COMP-20240101-ab12",
		"Name: John Smith",
		"Mobile: 9876543210",
		"Address: 12 Park Street",
		"transformer sparks on my street",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("mail body missing %q", want)
		}
	}
}

func TestEscalationMailer_DisabledIsNoop(t *testing.T) {
	m := NewEscalationMailer(SMTPConfig{Enabled: false})
	if err := m.Send(context.Background(), "a", "b", "c", "d", "COMP-20240101-0000"); err != nil {
		t.Fatalf("disabled mailer should not error, got %v", err)
	}
}

func TestEscalationMailer_CanceledContext(t *testing.T) {
	host, port, _ := startFakeSMTPServer(t)

	m := NewEscalationMailer(SMTPConfig{
		Enabled: true,
		Host:    host,
		Port:    port,
		From:    "bot@example.com",
		To:      []string{"support@example.com"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, "a", "b", "c", "d", "COMP-20240101-0000"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestEscalationMailer_DeadlineBoundsSilentServer(t *testing.T) {
	// A server that accepts but never sends the greeting must not hang Send
	// past the context deadline.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	m := NewEscalationMailer(SMTPConfig{
		Enabled: true,
		Host:    host,
		Port:    port,
		From:    "bot@example.com",
		To:      []string{"support@example.com"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := m.Send(ctx, "a", "b", "c", "d", "COMP-20240101-0000"); err == nil {
		t.Fatal("expected error from silent server")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Send ignored the deadline, took %v", elapsed)
	}
}

func TestEscalationMailer_NoRecipients(t *testing.T) {
	m := NewEscalationMailer(SMTPConfig{Enabled: true, Host: "localhost", Port: 25})
	err := m.Send(context.Background(), "a", "b", "c", "d", "COMP-20240101-0000")
	if err == nil {
		t.Fatal("expected error when no recipients are configured")
	}
}
