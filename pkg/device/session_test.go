package device

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nxshell/nxshell/pkg/util"
)

func openFake(t *testing.T, f *fakeSwitch, opts SessionOptions) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := OpenSession(ctx, f.pipe(), opts)
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSession_Login(t *testing.T) {
	f := newFakeSwitch()
	f.login = true
	f.user, f.password, f.enablePassword = "admin", "secret", "enable-me"

	s := openFake(t, f, SessionOptions{User: "admin", Password: "secret"})

	if s.Hostname() != "nx1" {
		t.Errorf("Hostname() = %q, want nx1", s.Hostname())
	}
	if s.Mode() != ModeDefault {
		t.Errorf("Mode() = %v, want default", s.Mode())
	}
	for _, cmd := range []string{"terminal length 0", "terminal width 511"} {
		if !f.has(cmd) {
			t.Errorf("session open did not send %q", cmd)
		}
	}

	if err := s.EnterEnable(context.Background(), "enable-me"); err != nil {
		t.Fatalf("EnterEnable() error = %v", err)
	}
	if s.Mode() != ModeEnable {
		t.Errorf("Mode() after enable = %v, want enable", s.Mode())
	}
}

func TestOpenSession_BadCredentials(t *testing.T) {
	f := newFakeSwitch()
	f.login = true
	f.user, f.password = "admin", "secret"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := OpenSession(ctx, f.pipe(), SessionOptions{User: "admin", Password: "wrong"}); err == nil {
		t.Fatal("OpenSession() with bad credentials should fail")
	}
}

func TestEnterEnable_WrongPassword(t *testing.T) {
	f := newFakeSwitch()
	f.enablePassword = "enable-me"
	s := openFake(t, f, SessionOptions{})

	if err := s.EnterEnable(context.Background(), "nope"); err == nil {
		t.Fatal("EnterEnable() with wrong password should fail")
	}
	if s.Mode() != ModeDefault {
		t.Errorf("Mode() = %v, want default", s.Mode())
	}
}

func TestSession_Send(t *testing.T) {
	f := newFakeSwitch()
	f.replies["show clock"] = "10:15:02.123 UTC Wed Feb 18 2026\nTime source is NTP"
	s := openFake(t, f, SessionOptions{})

	out, err := s.Send(context.Background(), "show clock")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	want := "10:15:02.123 UTC Wed Feb 18 2026\nTime source is NTP"
	if out != want {
		t.Errorf("Send() = %q, want %q", out, want)
	}
	if s.Mode() != ModeEnable {
		t.Errorf("Mode() = %v, want enable", s.Mode())
	}
}

func TestSession_SendCommandError(t *testing.T) {
	f := newFakeSwitch()
	s := openFake(t, f, SessionOptions{})

	_, err := s.Send(context.Background(), "fail this")
	if !errors.Is(err, util.ErrCommandFailed) {
		t.Fatalf("Send() error = %v, want ErrCommandFailed", err)
	}
	var cmdErr *util.CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Command != "fail this" {
		t.Errorf("error should carry the command, got %v", err)
	}
	if !s.Alive() {
		t.Error("a rejected command should not break the session")
	}
}

func TestSession_ConfigMode(t *testing.T) {
	f := newFakeSwitch()
	s := openFake(t, f, SessionOptions{})
	ctx := context.Background()

	if err := s.EnterConfig(ctx, ""); err != nil {
		t.Fatalf("EnterConfig() error = %v", err)
	}
	if s.Mode() != ModeConfig {
		t.Fatalf("Mode() = %v, want config", s.Mode())
	}
	if _, err := s.Send(ctx, "interface Ethernet1/1"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if s.Mode() != ModeConfig {
		t.Errorf("sub-mode should count as config, got %v", s.Mode())
	}
	if err := s.EnterEnable(ctx, ""); err != nil {
		t.Fatalf("EnterEnable() error = %v", err)
	}
	if s.Mode() != ModeEnable {
		t.Errorf("Mode() after end = %v, want enable", s.Mode())
	}
}

func TestSession_Answer(t *testing.T) {
	f := newFakeSwitch()
	f.replies["copy running-config startup-config"] = "[########################################] 100%\nCopy complete."
	s := openFake(t, f, SessionOptions{})

	out, err := s.Send(context.Background(), "copy running-config startup-config", Answer(`\[confirm\]`, "y"))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !strings.Contains(out, "Copy complete") {
		t.Errorf("Send() = %q", out)
	}
}

func TestSession_TimeoutBreaksSession(t *testing.T) {
	f := newFakeSwitch()
	s := openFake(t, f, SessionOptions{CommandTimeout: 100 * time.Millisecond})

	if _, err := s.Send(context.Background(), "hang"); err == nil {
		t.Fatal("Send() should time out")
	}
	if s.Alive() {
		t.Error("session should not be reusable after a timeout")
	}
	if _, err := s.Send(context.Background(), "show clock"); !errors.Is(err, util.ErrSessionClosed) {
		t.Errorf("Send() on broken session error = %v, want ErrSessionClosed", err)
	}
}

func TestSession_ContextCancel(t *testing.T) {
	f := newFakeSwitch()
	s := openFake(t, f, SessionOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Send(ctx, "hang"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send() error = %v, want deadline exceeded", err)
	}
	if s.Alive() {
		t.Error("cancelled command should break the session")
	}
}

func TestModeFromPrompt(t *testing.T) {
	tests := []struct {
		prompt string
		want   Mode
	}{
		{"nx1> ", ModeDefault},
		{"nx1# ", ModeEnable},
		{"nx1(config)# ", ModeConfig},
		{"nx1(config-if)# ", ModeConfig},
		{"nx1(config-vlan)#", ModeConfig},
		{"Password:", ModeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			if got := modeFromPrompt(tt.prompt); got != tt.want {
				t.Errorf("modeFromPrompt(%q) = %v, want %v", tt.prompt, got, tt.want)
			}
		})
	}
}

func TestCleanOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		command string
		want    string
	}{
		{"echo and prompt", "show clock\r\n10:00 UTC\r\nnx1# ", "show clock", "10:00 UTC"},
		{"no output", "terminal length 0\r\nnx1# ", "terminal length 0", ""},
		{"no echo", "line1\r\nline2\r\nnx1# ", "show x", "line1\nline2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanOutput(tt.out, tt.command); got != tt.want {
				t.Errorf("cleanOutput() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorPattern(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{"invalid input", "              ^\n% Invalid command at '^' marker.", "% Invalid command at '^' marker."},
		{"incomplete", "% Incomplete command at '^' marker.", "% Incomplete command at '^' marker."},
		{"error prefix", "ERROR: VLAN 5000 out of range", "ERROR: VLAN 5000 out of range"},
		{"syntax error at line start", "syntax error, unexpected token", "syntax error, unexpected token"},
		{"syntax error with percent", "% syntax error near 'foo'", "% syntax error near 'foo'"},
		{"permission denied", "% Permission denied for the role", "% Permission denied for the role"},
		{"log line quoting syntax error", "2026 Feb 18 10:00:01 nx1 %VSHD-5: syntax error reported by script foo.py", ""},
		{"show output mid-line", "description uplink syntax error tracker\nmgmt0 up", ""},
		{"clean output", "10:15:00.000 UTC Wed Feb 18 2026", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.TrimSpace(errorPattern.FindString(tt.out)); got != tt.want {
				t.Errorf("errorPattern.FindString(%q) = %q, want %q", tt.out, got, tt.want)
			}
		})
	}
}
