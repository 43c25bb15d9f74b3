package services

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"
)

const probeTimeout = 10 * time.Second

// ConnectionTestResult reports the outcome of a connection probe
type ConnectionTestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TestIMAPConnection probes an IMAP server with a greeting check and a LOGIN
// round-trip, without touching any mailbox. Used by the account create/test
// endpoints before credentials are persisted.
func TestIMAPConnection(host string, port int, username, password string) ConnectionTestResult {
	addr := fmt.Sprintf("%s:%d", host, port)
	dialer := &net.Dialer{Timeout: probeTimeout}

	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to connect to IMAP server: %v", err),
		}
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(probeTimeout))

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to read IMAP greeting: %v", err),
		}
	}

	greeting := string(buf[:n])
	if !strings.HasPrefix(greeting, "* OK") {
		return ConnectionTestResult{
			Success: false,
			Message: "Invalid IMAP server response",
		}
	}

	loginCmd := fmt.Sprintf("A001 LOGIN %s %s\r\n", username, password)
	if _, err := conn.Write([]byte(loginCmd)); err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to send login command: %v", err),
		}
	}

	conn.SetReadDeadline(time.Now().Add(probeTimeout))
	n, err = conn.Read(buf)
	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to read login response: %v", err),
		}
	}

	response := string(buf[:n])
	if strings.HasPrefix(response, "A001 OK") {
		conn.Write([]byte("A002 LOGOUT\r\n"))
		return ConnectionTestResult{
			Success: true,
			Message: "IMAP connection and authentication successful",
		}
	}

	return ConnectionTestResult{
		Success: false,
		Message: "IMAP authentication failed: " + response,
	}
}
