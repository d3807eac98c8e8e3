// Package driver dispatches the orchestration platform's commands for a
// Cisco NX-OS switch.
//
// Every command follows the same sequence: build the resource
// configuration from the command context, obtain a CLI (and where needed
// SNMP) handler, hand the work to a flow from pkg/flow, log and return.
// Autoload, restore and firmware load run under the resource lock.
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/nxshell/nxshell/pkg/api"
	"github.com/nxshell/nxshell/pkg/audit"
	"github.com/nxshell/nxshell/pkg/device"
	"github.com/nxshell/nxshell/pkg/flow"
	"github.com/nxshell/nxshell/pkg/lock"
	"github.com/nxshell/nxshell/pkg/metrics"
	"github.com/nxshell/nxshell/pkg/resource"
	"github.com/nxshell/nxshell/pkg/settings"
	"github.com/nxshell/nxshell/pkg/shellctx"
	"github.com/nxshell/nxshell/pkg/util"
)

const (
	// SupportedOS matches the sysDescr of switches the driver accepts.
	SupportedOS = resource.SupportedOS
	// ShellName is the attribute namespace of the driver's resources.
	ShellName = resource.ShellName
)

// HandlerFactory returns the CLI handler for one command.
type HandlerFactory func(cfg *resource.Config, log *logrus.Entry) device.Handler

// SNMPFactory opens an SNMP handler for the resource.
type SNMPFactory func(cfg *resource.Config) (device.SNMP, error)

// APIFactory opens the platform API session for a command context.
type APIFactory func(cc shellctx.Context) (api.Client, error)

// Options configure a Driver. Zero fields take production defaults.
type Options struct {
	Settings *settings.Settings

	// Dial opens CLI transports for the session pool.
	Dial device.Dialer
	// Handler replaces the session pool entirely.
	Handler HandlerFactory
	SNMP    SNMPFactory
	API     APIFactory

	// Locker serialises locked commands. Default: in-process, chained with
	// Redis when the settings name a Redis address.
	Locker lock.Locker
	// Audit receives one event per command. Default: the audit package's
	// default logger.
	Audit audit.Logger

	Metrics  *metrics.Metrics
	Firmware flow.FirmwareOptions
}

// Driver is one shell driver instance. Its methods are safe for
// concurrent use.
type Driver struct {
	settings *settings.Settings
	dial     device.Dialer
	custom   HandlerFactory
	snmp     SNMPFactory
	api      APIFactory
	locker   lock.Locker
	local    *lock.Local
	audit    audit.Logger
	metrics  *metrics.Metrics
	firmware flow.FirmwareOptions
	logs     *reservationLogs

	mu          sync.Mutex
	cli         *device.CLI
	redis       *lock.Redis
	initialized bool
}

// New creates a driver. It connects to Redis when the settings enable the
// distributed lock and no Locker is given.
func New(ctx context.Context, opts Options) (*Driver, error) {
	s := opts.Settings
	if s == nil {
		s = &settings.Settings{DecryptPasswords: true}
	}
	d := &Driver{
		settings: s,
		dial:     opts.Dial,
		custom:   opts.Handler,
		snmp:     opts.SNMP,
		api:      opts.API,
		locker:   opts.Locker,
		local:    lock.NewLocal(),
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		firmware: opts.Firmware,
		logs:     newReservationLogs(s.LogDir),
	}
	if d.snmp == nil {
		d.snmp = func(cfg *resource.Config) (device.SNMP, error) {
			return device.NewSNMP(cfg, device.SNMPOptions{})
		}
	}
	if d.api == nil {
		d.api = func(cc shellctx.Context) (api.Client, error) {
			return api.ForContext(cc, 30*time.Second)
		}
	}
	if d.firmware.ReloadTimeout <= 0 {
		d.firmware.ReloadTimeout = s.ReloadTimeout()
	}
	if err := d.dialLock(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// dialLock connects the Redis locker when the default lock chain needs one
// and it is not connected. Callers hold d.mu or own d exclusively.
func (d *Driver) dialLock(ctx context.Context) error {
	s := d.settings
	if d.locker != nil || s.RedisAddr == "" || d.redis != nil {
		return nil
	}
	r, err := lock.DialRedis(ctx, s.RedisAddr, s.RedisPassword, s.RedisDB, lock.WithTTL(s.LockTTL()))
	if err != nil {
		return err
	}
	d.redis = r
	return nil
}

// lockChain returns the locker for locked commands: Options.Locker when
// given, otherwise the in-process lock chained with Redis when configured.
func (d *Driver) lockChain() (lock.Locker, error) {
	if d.locker != nil {
		return d.locker, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settings.RedisAddr == "" {
		return d.local, nil
	}
	if d.redis == nil {
		return nil, util.ErrNotInitialized
	}
	return lock.Chain{d.local, d.redis}, nil
}

// Initialize creates the driver's CLI session pool sized by the resource's
// sessions concurrency limit.
func (d *Driver) Initialize(ctx context.Context, cc *shellctx.InitCommandContext) (string, error) {
	err := d.run(ctx, cc, opInitialize, false, func(ctx context.Context, c *command) error {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.dialLock(ctx); err != nil {
			return err
		}
		if d.custom == nil && d.cli == nil {
			d.cli = device.NewCLI(c.cfg, device.CLIOptions{
				Dial: d.dial,
				DialOptions: device.DialOptions{
					Timeout:        d.settings.SSHTimeout(),
					KnownHostsFile: d.settings.KnownHostsFile,
				},
				CommandTimeout: d.settings.CommandTimeout(),
				Metrics:        d.metrics,
			})
		}
		d.initialized = true
		return nil
	})
	if err != nil {
		return "", err
	}
	return "Finished initializing", nil
}

// Cleanup closes pooled CLI sessions, the distributed lock client and the
// reservation log files. The driver must be initialized again before
// further use.
func (d *Driver) Cleanup() error {
	d.mu.Lock()
	var errs error
	if d.cli != nil {
		errs = multierr.Append(errs, d.cli.Close())
		d.cli = nil
	}
	if d.redis != nil {
		errs = multierr.Append(errs, d.redis.Close())
		d.redis = nil
	}
	d.initialized = false
	d.mu.Unlock()

	return multierr.Append(errs, d.logs.Close())
}

// handler returns the CLI handler for a command.
func (d *Driver) handler(c *command) (device.Handler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return nil, util.ErrNotInitialized
	}
	if d.custom != nil {
		return d.custom(c.cfg, c.log), nil
	}
	return d.cli.Handler(c.cfg, c.log), nil
}

// vrfOr returns vrf, or the resource's VRF Management Name when empty.
func vrfOr(vrf string, cfg *resource.Config) string {
	if vrf != "" {
		return vrf
	}
	return cfg.VRFManagementName
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func snmpConfigured(cfg *resource.Config) bool {
	if cfg.SNMPVersion == resource.SNMPv3 {
		return cfg.SNMPV3User != ""
	}
	return cfg.SNMPReadCommunity != ""
}
