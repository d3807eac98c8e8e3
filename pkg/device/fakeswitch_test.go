package device

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nxshell/nxshell/pkg/resource"
)

// fakeSwitch answers CLI input the way an NX-OS box does: it echoes each
// line, prints the command output and the prompt for the current mode.
type fakeSwitch struct {
	hostname       string
	login          bool
	user           string
	password       string
	enablePassword string
	replies        map[string]string

	mu       sync.Mutex
	commands []string
}

func newFakeSwitch() *fakeSwitch {
	return &fakeSwitch{hostname: "nx1", replies: map[string]string{}}
}

func (f *fakeSwitch) record(line string) {
	f.mu.Lock()
	f.commands = append(f.commands, line)
	f.mu.Unlock()
}

func (f *fakeSwitch) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeSwitch) has(cmd string) bool {
	for _, c := range f.received() {
		if c == cmd {
			return true
		}
	}
	return false
}

// pipe returns the client end of a connection served by f.
func (f *fakeSwitch) pipe() net.Conn {
	client, server := net.Pipe()
	go f.serve(server)
	return client
}

func (f *fakeSwitch) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	readLine := func() (string, bool) {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", false
		}
		return strings.TrimRight(line, "\r\n"), true
	}

	mode := "#"
	if f.enablePassword != "" {
		mode = ">"
	}
	prompt := func() string { return f.hostname + mode + " " }

	if f.login {
		if _, ok := readLine(); !ok {
			return
		}
		io.WriteString(conn, "\r\nUser Access Verification\r\nlogin: ")
		user, ok := readLine()
		if !ok {
			return
		}
		io.WriteString(conn, user+"\r\nPassword: ")
		pass, ok := readLine()
		if !ok {
			return
		}
		if user != f.user || pass != f.password {
			io.WriteString(conn, "\r\nLogin incorrect\r\nlogin: ")
			return
		}
		io.WriteString(conn, "\r\nCisco Nexus Operating System (NX-OS) Software\r\n"+prompt())
	}

	for {
		line, ok := readLine()
		if !ok {
			return
		}
		if line != "" {
			f.record(line)
		}
		out := ""
		switch {
		case line == "":
		case line == "hang":
			continue
		case line == "enable":
			io.WriteString(conn, line+"\r\nPassword: ")
			pw, ok := readLine()
			if !ok {
				return
			}
			if pw == f.enablePassword {
				mode = "#"
			} else {
				out = "% Access denied\r\n"
			}
			io.WriteString(conn, "\r\n"+out+prompt())
			continue
		case line == "configure terminal":
			mode = "(config)#"
		case line == "end":
			mode = "#"
		case line == "exit" && mode != "(config)#":
			mode = "(config)#"
		case strings.HasPrefix(line, "interface "):
			mode = "(config-if)#"
		case strings.HasPrefix(line, "fail"):
			out = "                  ^\r\n% Invalid command at '^' marker.\r\n"
		default:
			if reply, ok := f.replies[line]; ok {
				out = strings.ReplaceAll(reply, "\n", "\r\n") + "\r\n"
			}
		}
		io.WriteString(conn, line+"\r\n"+out+prompt())
	}
}

// dialer returns a Dialer connected to f that counts its dials.
func (f *fakeSwitch) dialer(dials *int32) Dialer {
	return func(ctx context.Context, cfg *resource.Config, opts DialOptions) (Conn, error) {
		atomic.AddInt32(dials, 1)
		return f.pipe(), nil
	}
}
