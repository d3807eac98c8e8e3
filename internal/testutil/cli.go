package testutil

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/nxshell/nxshell/pkg/device"
)

// HandlerFunc answers one command on a fake session.
type HandlerFunc func(s *Session, cmd string) (string, error)

type rule struct {
	re *regexp.Regexp
	fn HandlerFunc
}

// FakeCLI is a scripted device.Handler. Commands are answered by the
// first matching rule; unmatched commands return empty output.
type FakeCLI struct {
	mu          sync.Mutex
	rules       []rule
	commands    []string
	unavailable error
	sessions    int
}

// NewFakeCLI creates an empty fake.
func NewFakeCLI() *FakeCLI {
	return &FakeCLI{}
}

// Handle registers fn for commands matching pattern (anchored).
func (f *FakeCLI) Handle(pattern string, fn HandlerFunc) *FakeCLI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{re: regexp.MustCompile("^(?:" + pattern + ")$"), fn: fn})
	return f
}

// Reply answers the exact command cmd with out.
func (f *FakeCLI) Reply(cmd, out string) *FakeCLI {
	return f.Handle(regexp.QuoteMeta(cmd), func(*Session, string) (string, error) { return out, nil })
}

// Fail makes commands matching pattern return err.
func (f *FakeCLI) Fail(pattern string, err error) *FakeCLI {
	return f.Handle(pattern, func(*Session, string) (string, error) { return "", err })
}

// SetUnavailable makes Enable and Config fail with err before running
// their function, as when the switch cannot be reached. Nil restores it.
func (f *FakeCLI) SetUnavailable(err error) {
	f.mu.Lock()
	f.unavailable = err
	f.mu.Unlock()
}

// Commands returns every command sent, in order.
func (f *FakeCLI) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// Sent reports whether cmd was sent.
func (f *FakeCLI) Sent(cmd string) bool {
	return f.Index(cmd) >= 0
}

// Index returns the position of the first cmd sent, or -1.
func (f *FakeCLI) Index(cmd string) int {
	for i, c := range f.Commands() {
		if c == cmd {
			return i
		}
	}
	return -1
}

// Sessions returns how many Enable and Config calls ran.
func (f *FakeCLI) Sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func (f *FakeCLI) open(mode device.Mode) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable != nil {
		return nil, f.unavailable
	}
	f.sessions++
	return &Session{cli: f, Mode: mode}, nil
}

// Enable runs fn on a fake session in enable mode.
func (f *FakeCLI) Enable(ctx context.Context, fn func(device.Sender) error) error {
	s, err := f.open(device.ModeEnable)
	if err != nil {
		return err
	}
	return fn(s)
}

// Config runs fn on a fake session in configuration mode.
func (f *FakeCLI) Config(ctx context.Context, fn func(device.Sender) error) error {
	s, err := f.open(device.ModeConfig)
	if err != nil {
		return err
	}
	return fn(s)
}

// Session is one fake CLI session. Interface tracks the interface
// sub-mode entered with "interface <name>".
type Session struct {
	cli       *FakeCLI
	Mode      device.Mode
	Interface string
}

// Send records cmd and answers it from the fake's rules.
func (s *Session) Send(ctx context.Context, cmd string, actions ...device.Action) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f := s.cli
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	rules := append([]rule(nil), f.rules...)
	f.mu.Unlock()

	switch {
	case strings.HasPrefix(cmd, "interface "):
		s.Interface = strings.TrimPrefix(cmd, "interface ")
	case cmd == "exit" || cmd == "end":
		s.Interface = ""
	}
	for _, r := range rules {
		if r.re.MatchString(cmd) {
			return r.fn(s, cmd)
		}
	}
	return "", nil
}
