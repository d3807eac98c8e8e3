// Package device implements the CLI and SNMP handlers used to talk to
// NX-OS switches: SSH and Telnet transports, a prompt-driven CLI session
// that tracks exec/enable/config modes, a bounded session pool and an SNMP
// client.
package device

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/nxshell/nxshell/pkg/resource"
)

// Conn is an interactive byte stream to a switch CLI.
type Conn interface {
	io.ReadWriteCloser
}

// DialOptions tune transport establishment.
type DialOptions struct {
	Timeout        time.Duration
	KnownHostsFile string // empty disables host key verification
}

// Dialer opens a CLI connection to the resource.
type Dialer func(ctx context.Context, cfg *resource.Config, opts DialOptions) (Conn, error)

// Dial opens a connection using the resource's CLI Connection Type. Auto
// uses SSH.
func Dial(ctx context.Context, cfg *resource.Config, opts DialOptions) (Conn, error) {
	switch cfg.CLIConnectionType {
	case resource.ConnTelnet:
		return DialTelnet(ctx, cfg, opts)
	default:
		return DialSSH(ctx, cfg, opts)
	}
}

func dialTCP(ctx context.Context, cfg *resource.Config, opts DialOptions) (net.Conn, string, error) {
	addr := net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.CLIPort()))
	d := net.Dialer{Timeout: opts.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, addr, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return conn, addr, nil
}

// sshConn is an interactive shell channel on an SSH connection.
type sshConn struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

// DialSSH opens an SSH shell with a PTY. Password and keyboard-interactive
// authentication are both offered with the resource password.
func DialSSH(ctx context.Context, cfg *resource.Config, opts DialOptions) (Conn, error) {
	hostKey := ssh.InsecureIgnoreHostKey()
	if opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		hostKey = cb
	}

	password := cfg.Password
	config := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKey,
		Timeout:         opts.Timeout,
	}

	raw, addr, err := dialTCP(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		raw.SetDeadline(deadline)
	} else if opts.Timeout > 0 {
		raw.SetDeadline(time.Now().Add(opts.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(raw, addr, config)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("SSH handshake with %s: %w", addr, err)
	}
	raw.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("SSH session: %w", err)
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 38400,
		ssh.TTY_OP_OSPEED: 38400,
	}
	if err := session.RequestPty("vt100", 0, 511, modes); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("SSH pty: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, err
	}
	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("SSH shell: %w", err)
	}

	return &sshConn{client: client, session: session, stdin: stdin, stdout: stdout}, nil
}

func (c *sshConn) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *sshConn) Write(p []byte) (int, error) { return c.stdin.Write(p) }

func (c *sshConn) Close() error {
	c.stdin.Close()
	c.session.Close()
	return c.client.Close()
}
