package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewAuditor(t *testing.T) {
	tests := []struct {
		name    string
		logger  *slog.Logger
		enabled bool
	}{
		{
			name:    "enabled with logger",
			logger:  slog.Default(),
			enabled: true,
		},
		{
			name:    "disabled with logger",
			logger:  slog.Default(),
			enabled: false,
		},
		{
			name:    "enabled with nil logger",
			logger:  nil,
			enabled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := NewAuditor(tt.logger, tt.enabled)
			if auditor == nil {
				t.Fatal("NewAuditor() returned nil")
			}
			if auditor.enabled != tt.enabled {
				t.Errorf("enabled = %v, want %v", auditor.enabled, tt.enabled)
			}
			if auditor.logger == nil {
				t.Error("logger should not be nil")
			}
		})
	}
}

func TestAuditor_LogEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	tests := []struct {
		name    string
		enabled bool
		event   Event
		wantLog bool
	}{
		{
			name:    "enabled",
			enabled: true,
			event: Event{
				Type:         "test_event",
				CredentialID: "cred-123",
				ClientID:     "client-456",
				Details:      map[string]any{"key": "value"},
			},
			wantLog: true,
		},
		{
			name:    "disabled",
			enabled: false,
			event: Event{
				Type:         "test_event",
				CredentialID: "cred-123",
				ClientID:     "client-456",
			},
			wantLog: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			auditor := NewAuditor(logger, tt.enabled)

			auditor.LogEvent(tt.event)

			hasLog := buf.Len() > 0
			if hasLog != tt.wantLog {
				t.Errorf("LogEvent() logged = %v, want %v", hasLog, tt.wantLog)
			}
		})
	}
}

func TestAuditor_NilIsNoop(t *testing.T) {
	var auditor *Auditor
	auditor.LogCredentialDestroyed("cred-1", "client-1")
}

func TestAuditor_HashesClientID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	auditor := NewAuditor(logger, true)

	auditor.LogTokenIssued("cred-1", "very-identifying-client", "authorization_code", "openid", true)

	out := buf.String()
	if strings.Contains(out, "very-identifying-client") {
		t.Error("client ID should be hashed in audit output")
	}
	if !strings.Contains(out, EventTokenIssued) {
		t.Errorf("audit output should contain event type %q", EventTokenIssued)
	}
}

func TestAuditor_Helpers(t *testing.T) {
	tests := []struct {
		name  string
		log   func(a *Auditor)
		event string
	}{
		{
			name:  "token refreshed",
			log:   func(a *Auditor) { a.LogTokenRefreshed("cred-1", "client-1", true) },
			event: EventTokenRefreshed,
		},
		{
			name:  "token revoked",
			log:   func(a *Auditor) { a.LogTokenRevoked("cred-1", "client-1", "refresh_token") },
			event: EventTokenRevoked,
		},
		{
			name:  "refresh token invalidated",
			log:   func(a *Auditor) { a.LogRefreshTokenInvalidated("cred-1", "client-1", "expired") },
			event: EventRefreshTokenInvalidated,
		},
		{
			name:  "exchange failure",
			log:   func(a *Auditor) { a.LogExchangeFailure("cred-1", "client-1", "password", "invalid_client") },
			event: EventExchangeFailed,
		},
		{
			name:  "credential destroyed",
			log:   func(a *Auditor) { a.LogCredentialDestroyed("cred-1", "client-1") },
			event: EventCredentialDestroyed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			auditor := NewAuditor(slog.New(slog.NewTextHandler(&buf, nil)), true)

			tt.log(auditor)

			if !strings.Contains(buf.String(), tt.event) {
				t.Errorf("log output %q does not contain %q", buf.String(), tt.event)
			}
		})
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want <empty>", got)
	}
	if got := hashForLogging("abc"); len(got) != 16 {
		t.Errorf("hashForLogging() length = %d, want 16", len(got))
	}
	if hashForLogging("abc") != hashForLogging("abc") {
		t.Error("hashForLogging() should be deterministic")
	}
}
