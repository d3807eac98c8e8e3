package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/nxshell/nxshell/pkg/metrics"
	"github.com/nxshell/nxshell/pkg/resource"
	"github.com/nxshell/nxshell/pkg/util"
)

// Handler runs work on a CLI session in a given mode.
type Handler interface {
	// Enable runs fn on a session in enable mode.
	Enable(ctx context.Context, fn func(Sender) error) error
	// Config runs fn on a session in configuration mode and returns the
	// session to enable mode afterwards.
	Config(ctx context.Context, fn func(Sender) error) error
}

// CLIOptions configure a CLI.
type CLIOptions struct {
	Dial           Dialer
	DialOptions    DialOptions
	CommandTimeout time.Duration
	Metrics        *metrics.Metrics
}

// CLI owns the session pool of one driver instance. At most
// SessionsConcurrencyLimit sessions are in use at a time; idle sessions
// are reused while the resource's connection parameters are unchanged.
type CLI struct {
	opts CLIOptions
	sem  *semaphore.Weighted

	mu     sync.Mutex
	idle   []*Session
	closed bool
}

// NewCLI creates the session pool sized by the resource configuration.
func NewCLI(cfg *resource.Config, opts CLIOptions) *CLI {
	limit := cfg.SessionsConcurrencyLimit
	if limit < 1 {
		limit = 1
	}
	if opts.Dial == nil {
		opts.Dial = Dial
	}
	if opts.DialOptions.Timeout <= 0 {
		opts.DialOptions.Timeout = 30 * time.Second
	}
	return &CLI{opts: opts, sem: semaphore.NewWeighted(int64(limit))}
}

// Handler returns a handler bound to cfg that logs through log.
func (c *CLI) Handler(cfg *resource.Config, log *logrus.Entry) Handler {
	if log == nil {
		log = util.WithResource(cfg.Name)
	}
	return &cliHandler{cli: c, cfg: cfg, log: log}
}

// Close closes every idle session. Sessions in use are closed when they
// are returned.
func (c *CLI) Close() error {
	c.mu.Lock()
	idle := c.idle
	c.idle = nil
	c.closed = true
	c.mu.Unlock()

	for _, s := range idle {
		s.Close()
		c.opts.Metrics.SessionClosed()
	}
	return nil
}

// Idle returns the number of pooled idle sessions.
func (c *CLI) Idle() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.idle)
}

func (c *CLI) acquire(ctx context.Context, cfg *resource.Config, log *logrus.Entry) (*Session, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a CLI session: %w", err)
	}

	key := cfg.SessionKey()
	c.mu.Lock()
	var stale []*Session
	var found *Session
	for len(c.idle) > 0 {
		s := c.idle[len(c.idle)-1]
		c.idle = c.idle[:len(c.idle)-1]
		if s.key == key && s.Alive() {
			found = s
			break
		}
		stale = append(stale, s)
	}
	c.mu.Unlock()

	for _, s := range stale {
		s.Close()
		c.opts.Metrics.SessionClosed()
	}
	if found != nil {
		found.log = log
		return found, nil
	}

	s, err := c.open(ctx, cfg, log)
	if err != nil {
		c.sem.Release(1)
		return nil, err
	}
	s.key = key
	return s, nil
}

func (c *CLI) open(ctx context.Context, cfg *resource.Config, log *logrus.Entry) (*Session, error) {
	log.Debugf("opening %s session to %s:%d", cfg.CLIConnectionType, cfg.Address, cfg.CLIPort())
	conn, err := c.opts.Dial(ctx, cfg, c.opts.DialOptions)
	if err != nil {
		return nil, err
	}
	s, err := OpenSession(ctx, conn, SessionOptions{
		User:           cfg.User,
		Password:       cfg.Password,
		EnablePassword: cfg.EnablePassword,
		CommandTimeout: c.opts.CommandTimeout,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}
	c.opts.Metrics.SessionOpened()
	return s, nil
}

func (c *CLI) release(s *Session) {
	defer c.sem.Release(1)

	c.mu.Lock()
	if !c.closed && s.Alive() {
		c.idle = append(c.idle, s)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	s.Close()
	c.opts.Metrics.SessionClosed()
}

type cliHandler struct {
	cli *CLI
	cfg *resource.Config
	log *logrus.Entry
}

func (h *cliHandler) Enable(ctx context.Context, fn func(Sender) error) error {
	s, err := h.cli.acquire(ctx, h.cfg, h.log)
	if err != nil {
		return err
	}
	defer h.cli.release(s)

	if err := s.EnterEnable(ctx, h.cfg.EnablePassword); err != nil {
		return err
	}
	return fn(s)
}

func (h *cliHandler) Config(ctx context.Context, fn func(Sender) error) error {
	s, err := h.cli.acquire(ctx, h.cfg, h.log)
	if err != nil {
		return err
	}
	defer h.cli.release(s)

	if err := s.EnterConfig(ctx, h.cfg.EnablePassword); err != nil {
		return err
	}
	fnErr := fn(s)
	if s.Alive() {
		if _, err := s.Send(ctx, "end"); err != nil && fnErr == nil {
			return err
		}
	}
	return fnErr
}
