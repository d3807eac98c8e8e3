package flow

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/nxshell/nxshell/pkg/device"
	"github.com/nxshell/nxshell/pkg/resource"
	"github.com/nxshell/nxshell/pkg/util"
)

// FirmwareOptions tune the wait for a reloaded switch.
type FirmwareOptions struct {
	// ReloadTimeout bounds the wait for the switch to answer again.
	ReloadTimeout time.Duration
	// Settle is waited after the reload before the first reconnect.
	Settle time.Duration
	// PollInterval is the first reconnect interval; later ones back off.
	PollInterval time.Duration
}

// FirmwareFlow installs an NX-OS image and reloads the switch.
type FirmwareFlow struct {
	cli    device.Handler
	cfg    *resource.Config
	log    *logrus.Entry
	opts   FirmwareOptions
	config *ConfigurationFlow
}

// NewFirmwareFlow creates the flow.
func NewFirmwareFlow(cli device.Handler, cfg *resource.Config, log *logrus.Entry, opts FirmwareOptions) *FirmwareFlow {
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = 20 * time.Minute
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	return &FirmwareFlow{
		cli:    cli,
		cfg:    cfg,
		log:    entry(log),
		opts:   opts,
		config: NewConfigurationFlow(cli, cfg, log),
	}
}

// LoadFirmware copies the image at imagePath to bootflash, sets it as the
// boot image, saves the configuration, reloads and waits until the switch
// reports the new image.
func (f *FirmwareFlow) LoadFirmware(ctx context.Context, imagePath, vrf string) error {
	imagePath = strings.TrimSpace(imagePath)
	if imagePath == "" {
		return util.NewValidationError("firmware path is empty")
	}
	image := imageName(imagePath)
	local := "bootflash:" + image

	err := f.cli.Enable(ctx, func(s device.Sender) error {
		if isBootflash(imagePath) {
			return nil
		}
		f.log.Infof("Copying %s to %s", imagePath, local)
		return f.config.copy(ctx, s, imagePath, local, vrf)
	})
	if err != nil {
		return err
	}

	f.log.Infof("Setting boot image %s", local)
	if err := f.cli.Config(ctx, func(s device.Sender) error {
		_, err := s.Send(ctx, "boot nxos "+local)
		return err
	}); err != nil {
		return err
	}

	err = f.cli.Enable(ctx, func(s device.Sender) error {
		if err := f.config.copy(ctx, s, "running-config", "startup-config", ""); err != nil {
			return err
		}
		f.log.Info("Reloading")
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		_, err := s.Send(rctx, "reload", device.Answer(`(?i)\(y/n\)\??\s*(\[[yn]\])?\s*$`, "y"))
		if err != nil && !reloadDisconnect(err) {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	version, err := f.waitForSwitch(ctx)
	if err != nil {
		return err
	}
	if !imageMatches(version, image) {
		return fmt.Errorf("%w: switch booted %s, expected %s", util.ErrVerificationFailed, bootImage(version), image)
	}
	f.log.Infof("Switch is running %s", image)
	return nil
}

// waitForSwitch reconnects with exponential backoff until "show version"
// answers or the reload timeout passes, and returns its JSON output.
func (f *FirmwareFlow) waitForSwitch(ctx context.Context) (string, error) {
	if f.opts.Settle > 0 {
		select {
		case <-time.After(f.opts.Settle):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.PollInterval
	b.MaxInterval = 4 * f.opts.PollInterval

	op := func() (string, error) {
		var out string
		err := f.cli.Enable(ctx, func(s device.Sender) error {
			var err error
			out, err = s.Send(ctx, "show version | json")
			return err
		})
		if errors.Is(err, context.Canceled) {
			return "", backoff.Permanent(err)
		}
		return out, err
	}
	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(f.opts.ReloadTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			f.log.Debugf("switch not back yet (%v), retrying in %s", err, next)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("switch did not come back within %s: %w", f.opts.ReloadTimeout, err)
	}
	return out, nil
}

func imageName(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, ":"); i >= 0 && !strings.Contains(p[i:], "/") {
		return p[i+1:]
	}
	return path.Base(p)
}

// bootImage returns the image file name from "show version | json".
func bootImage(version string) string {
	for _, key := range []string{"nxos_file_name", "kick_file_name", "isan_file_name"} {
		if v := gjson.Get(version, key).String(); v != "" {
			return v
		}
	}
	return ""
}

func imageMatches(version, image string) bool {
	booted := bootImage(version)
	return booted != "" && path.Base(strings.TrimPrefix(booted, "bootflash:")) == image
}

// reloadDisconnect reports errors expected when the switch drops the
// session while reloading.
func reloadDisconnect(err error) bool {
	return errors.Is(err, util.ErrSessionClosed) || errors.Is(err, context.DeadlineExceeded)
}
