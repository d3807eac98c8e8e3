package device

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nxshell/nxshell/pkg/util"
)

// Mode is the CLI mode a session is in.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeDefault      // "switch>"
	ModeEnable       // "switch#"
	ModeConfig       // "switch(config)#", "switch(config-if)#", ...
)

func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeEnable:
		return "enable"
	case ModeConfig:
		return "config"
	}
	return "unknown"
}

// Prompt patterns. They are matched against the end of the received text.
var (
	DefaultPrompt = regexp.MustCompile(`[>#]\s*$`)
	EnablePrompt  = regexp.MustCompile(`#\s*$`)
	ConfigPrompt  = regexp.MustCompile(`\(config[^)]*\)#\s*$`)
)

// errorPattern matches NX-OS command rejections. Every branch is anchored
// to the start of a line so show output quoting these words does not match.
var errorPattern = regexp.MustCompile(`(?mi)^\s*% ?(invalid|incomplete|ambiguous)[^\n]*|^\s*ERROR:[^\n]*|^\s*(% ?)?syntax error[^\n]*|^\s*% ?permission denied[^\n]*`)

// ansiEscape matches terminal control sequences some images emit.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// Action answers an interactive prompt that appears while a command runs,
// e.g. "[confirm]" or "Password:".
type Action struct {
	Pattern  *regexp.Regexp
	Response string
	// Once stops the action from firing more than one time per command.
	Once bool
}

// Answer builds an action from a pattern string.
func Answer(pattern, response string) Action {
	return Action{Pattern: regexp.MustCompile(pattern), Response: response}
}

// Sender sends commands on a CLI session in its current mode.
type Sender interface {
	Send(ctx context.Context, command string, actions ...Action) (string, error)
}

type chunk struct {
	data []byte
	err  error
}

// Session is one CLI session on a switch.
type Session struct {
	conn    Conn
	timeout time.Duration
	log     *logrus.Entry

	mu      sync.Mutex
	mode    Mode
	host    string
	prompt  *regexp.Regexp
	buf     []byte
	chunks  chan chunk
	done    chan struct{}
	closed  bool
	readErr error
	key     string
}

// SessionOptions configure a session.
type SessionOptions struct {
	User           string
	Password       string
	EnablePassword string
	CommandTimeout time.Duration
	Logger         *logrus.Entry
}

// OpenSession logs in if the device asks for credentials, waits for the
// first prompt and disables paging.
func OpenSession(ctx context.Context, conn Conn, opts SessionOptions) (*Session, error) {
	s := newSession(conn, opts)

	login := []Action{
		{Pattern: regexp.MustCompile(`(?i)(login|username)\s*:\s*$`), Response: opts.User, Once: true},
		{Pattern: regexp.MustCompile(`(?i)password\s*:\s*$`), Response: opts.Password, Once: true},
	}
	// nudge devices that wait for input before printing a prompt
	s.write("\n")
	out, err := s.expect(ctx, DefaultPrompt, login)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("waiting for CLI prompt: %w", err)
	}
	s.learnPrompt(out)

	for _, cmd := range []string{"terminal length 0", "terminal width 511"} {
		if _, err := s.Send(ctx, cmd); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func newSession(conn Conn, opts SessionOptions) *Session {
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(util.Logger)
	}
	s := &Session{
		conn:    conn,
		timeout: timeout,
		log:     log,
		prompt:  DefaultPrompt,
		chunks:  make(chan chunk, 64),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Session) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			select {
			case s.chunks <- chunk{data: data}:
			case <-s.done:
				return
			}
		}
		if err != nil {
			select {
			case s.chunks <- chunk{err: err}:
			case <-s.done:
			}
			return
		}
	}
}

// learnPrompt narrows the prompt pattern to the device hostname so command
// output ending in '#' or '>' is not mistaken for a prompt.
func (s *Session) learnPrompt(out string) {
	out = strings.TrimRight(out, " \r\n")
	if i := strings.LastIndexAny(out, "\r\n"); i >= 0 {
		out = out[i+1:]
	}
	host := out
	if i := strings.IndexAny(host, "(>#"); i >= 0 {
		host = host[:i]
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return
	}
	s.host = host
	s.prompt = regexp.MustCompile(regexp.QuoteMeta(host) + `(\([^)]*\))?[>#]\s*$`)
	s.mode = modeFromPrompt(out)
}

func modeFromPrompt(p string) Mode {
	switch {
	case ConfigPrompt.MatchString(p):
		return ModeConfig
	case EnablePrompt.MatchString(p):
		return ModeEnable
	case DefaultPrompt.MatchString(p):
		return ModeDefault
	}
	return ModeUnknown
}

// Hostname returns the hostname learned from the prompt.
func (s *Session) Hostname() string {
	return s.host
}

// Mode returns the current CLI mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Alive reports whether the transport is still usable.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.readErr == nil
}

// Close closes the transport.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *Session) write(data string) error {
	if _, err := s.conn.Write([]byte(data)); err != nil {
		s.markBroken(err)
		return fmt.Errorf("%w: %v", util.ErrSessionClosed, err)
	}
	return nil
}

// Send writes a command, answers interactive prompts from actions and
// returns the output between the echoed command and the next prompt.
func (s *Session) Send(ctx context.Context, command string, actions ...Action) (string, error) {
	if !s.Alive() {
		return "", util.ErrSessionClosed
	}
	s.drain()
	s.log.Debugf("cli> %s", command)
	if err := s.write(command + "\n"); err != nil {
		return "", err
	}

	out, err := s.expect(ctx, s.prompt, actions)
	if err != nil {
		return out, fmt.Errorf("command %q: %w", command, err)
	}
	s.mu.Lock()
	s.mode = modeFromPrompt(lastLine(out))
	s.mu.Unlock()

	out = cleanOutput(out, command)
	if m := errorPattern.FindString(out); m != "" {
		return out, util.NewCommandError(command, strings.TrimSpace(m))
	}
	return out, nil
}

// drain discards output that arrived between commands.
func (s *Session) drain() {
	for {
		select {
		case c := <-s.chunks:
			if c.err != nil {
				s.markBroken(c.err)
				return
			}
		default:
			s.buf = s.buf[:0]
			return
		}
	}
}

// expect reads until prompt matches the end of the received text.
func (s *Session) expect(ctx context.Context, prompt *regexp.Regexp, actions []Action) (string, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	var out bytes.Buffer
	fired := make(map[int]bool)
	for {
		text := ansiEscape.ReplaceAllString(string(s.buf), "")
		matched := false
		for i, a := range actions {
			if a.Once && fired[i] {
				continue
			}
			if loc := a.Pattern.FindStringIndex(text); loc != nil {
				out.WriteString(text[:loc[1]])
				s.buf = append(s.buf[:0], text[loc[1]:]...)
				fired[i] = true
				if err := s.write(a.Response + "\n"); err != nil {
					return out.String(), err
				}
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if prompt.MatchString(text) {
			out.WriteString(text)
			s.buf = s.buf[:0]
			return out.String(), nil
		}

		select {
		case c := <-s.chunks:
			if c.err != nil {
				s.markBroken(c.err)
				out.WriteString(text)
				return out.String(), fmt.Errorf("%w: %v", util.ErrSessionClosed, c.err)
			}
			s.buf = append(s.buf, c.data...)
		case <-timer.C:
			out.WriteString(text)
			err := fmt.Errorf("timed out after %s waiting for prompt", s.timeout)
			s.markBroken(err)
			return out.String(), err
		case <-ctx.Done():
			s.markBroken(ctx.Err())
			return out.String(), ctx.Err()
		}
	}
}

// markBroken stops the pool from reusing a session whose output stream is
// out of step with its commands.
func (s *Session) markBroken(err error) {
	s.mu.Lock()
	if s.readErr == nil {
		s.readErr = err
	}
	s.mu.Unlock()
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if i := strings.LastIndexAny(s, "\r\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// cleanOutput drops the command echo and the trailing prompt line.
func cleanOutput(out, command string) string {
	out = strings.ReplaceAll(out, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "")
	lines := strings.Split(out, "\n")
	if len(lines) > 0 && strings.Contains(lines[0], strings.TrimSpace(command)) {
		lines = lines[1:]
	}
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// EnterEnable moves the session to enable mode, answering the enable
// password prompt when the device lands in default mode.
func (s *Session) EnterEnable(ctx context.Context, enablePassword string) error {
	switch s.Mode() {
	case ModeEnable:
		return nil
	case ModeConfig:
		_, err := s.Send(ctx, "end")
		return err
	}
	if _, err := s.Send(ctx, "enable", Action{
		Pattern:  regexp.MustCompile(`(?i)password\s*:\s*$`),
		Response: enablePassword,
		Once:     true,
	}); err != nil {
		return err
	}
	if s.Mode() != ModeEnable {
		return fmt.Errorf("failed to enter enable mode")
	}
	return nil
}

// EnterConfig moves the session to global configuration mode.
func (s *Session) EnterConfig(ctx context.Context, enablePassword string) error {
	if s.Mode() == ModeConfig {
		return nil
	}
	if err := s.EnterEnable(ctx, enablePassword); err != nil {
		return err
	}
	if _, err := s.Send(ctx, "configure terminal"); err != nil {
		return err
	}
	if s.Mode() != ModeConfig {
		return fmt.Errorf("failed to enter configuration mode")
	}
	return nil
}
