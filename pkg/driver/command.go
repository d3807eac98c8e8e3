package driver

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nxshell/nxshell/pkg/api"
	"github.com/nxshell/nxshell/pkg/audit"
	"github.com/nxshell/nxshell/pkg/resource"
	"github.com/nxshell/nxshell/pkg/shellctx"
)

// op names a driver command: name labels metrics and audit events, title
// appears in the command log.
type op struct {
	name  string
	title string
}

var (
	opInitialize             = op{"initialize", "Initialize"}
	opAutoload               = op{"get_inventory", "Autoload"}
	opRunCustomCommand       = op{"run_custom_command", "Run Custom Command"}
	opRunCustomConfigCommand = op{"run_custom_config_command", "Run Custom Config Command"}
	opConnectivity           = op{"apply_connectivity_changes", "Apply Connectivity Changes"}
	opSave                   = op{"save", "Save"}
	opRestore                = op{"restore", "Restore"}
	opOrchestrationSave      = op{"orchestration_save", "Orchestration Save"}
	opOrchestrationRestore   = op{"orchestration_restore", "Orchestration Restore"}
	opLoadFirmware           = op{"load_firmware", "Load Firmware"}
	opHealthCheck            = op{"health_check", "Health Check"}
	opShutdown               = op{"shutdown", "Shutdown"}
)

// command is the per-invocation state handed to an operation.
type command struct {
	cfg   *resource.Config
	api   api.Client
	log   *logrus.Entry
	event *audit.Event
}

// run builds the resource configuration for cc, takes the resource lock
// when locked is set and calls fn. It logs start and completion, records
// the command's metrics and writes its audit event.
func (d *Driver) run(ctx context.Context, cc shellctx.Context, o op, locked bool, fn func(ctx context.Context, c *command) error) (err error) {
	start := time.Now()
	name, reservation, owner := "", shellctx.ReservationID(cc), ""
	if r := cc.GetResource(); r != nil {
		name = r.Name
	}
	if r := cc.GetReservation(); r != nil {
		owner = r.Owner
	}

	log := d.logs.entry(reservation, name, o.name)
	log.Infof("Starting '%s' command ...", o.title)
	event := audit.NewEvent(owner, name, o.name).WithReservation(reservation)

	defer func() {
		elapsed := time.Since(start)
		if err != nil {
			log.Errorf("'%s' command failed: %v", o.title, err)
		} else {
			log.Infof("'%s' command completed", o.title)
		}
		d.metrics.RecordCommand(o.name, elapsed, err)
		if werr := d.metrics.WriteTextfile(d.settings.MetricsTextfile); werr != nil {
			log.Warnf("writing metrics: %v", werr)
		}
		if aerr := d.logAudit(event.WithResult(err).WithDuration(elapsed)); aerr != nil {
			log.Warnf("writing audit event: %v", aerr)
		}
	}()

	client, err := d.api(cc)
	if err != nil {
		return err
	}
	opts := resource.Options{}
	if d.settings.DecryptPasswords {
		opts.API = client
	}
	cfg, err := resource.FromContext(ctx, cc, opts)
	if err != nil {
		return err
	}
	event.WithAddress(cfg.Address)

	if locked {
		locker, err := d.lockChain()
		if err != nil {
			return err
		}
		waitStart := time.Now()
		unlock, err := locker.Lock(ctx, cfg.Name)
		d.metrics.RecordLockWait(time.Since(waitStart))
		if err != nil {
			return err
		}
		defer func() {
			if uerr := unlock(); uerr != nil {
				log.Warnf("releasing lock on %s: %v", cfg.Name, uerr)
			}
		}()
		event.WithLocked(true)
	}

	return fn(ctx, &command{cfg: cfg, api: client, log: log, event: event})
}

func (d *Driver) logAudit(e *audit.Event) error {
	if d.audit != nil {
		return d.audit.Log(e)
	}
	return audit.Log(e)
}
