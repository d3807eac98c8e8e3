package driver

import (
	"context"

	"github.com/nxshell/nxshell/pkg/device"
	"github.com/nxshell/nxshell/pkg/flow"
	"github.com/nxshell/nxshell/pkg/health"
	"github.com/nxshell/nxshell/pkg/model"
	"github.com/nxshell/nxshell/pkg/shellctx"
)

// GetInventory discovers the switch's resources over SNMP. SNMP is
// enabled on the switch first when the resource asks for it, and disabled
// again afterwards when "Disable SNMP" is set.
func (d *Driver) GetInventory(ctx context.Context, cc *shellctx.AutoLoadCommandContext) (*model.AutoLoadDetails, error) {
	var details *model.AutoLoadDetails
	err := d.run(ctx, cc, opAutoload, true, func(ctx context.Context, c *command) error {
		cli, err := d.handler(c)
		if err != nil {
			return err
		}
		snmpFlow := flow.NewSNMPFlow(cli, c.cfg, c.log)
		if err := snmpFlow.Enable(ctx); err != nil {
			return err
		}
		defer func() {
			if err := snmpFlow.Disable(ctx); err != nil {
				c.log.Warnf("disabling SNMP: %v", err)
			}
		}()

		snmp, err := d.snmp(c.cfg)
		if err != nil {
			return err
		}
		defer snmp.Close()

		details, err = flow.NewAutoloadFlow(snmp, c.cfg, c.log).Discover(ctx, SupportedOS, c.cfg.Model)
		return err
	})
	return details, err
}

// RunCustomCommand runs ';' separated commands in enable mode.
func (d *Driver) RunCustomCommand(ctx context.Context, cc *shellctx.ResourceCommandContext, customCommand string) (string, error) {
	var out string
	err := d.run(ctx, cc, opRunCustomCommand, false, func(ctx context.Context, c *command) error {
		cli, err := d.handler(c)
		if err != nil {
			return err
		}
		c.event.WithParam("command", customCommand)
		out, err = flow.NewRunCommandFlow(cli, c.log).RunCustomCommand(ctx, customCommand)
		return err
	})
	return out, err
}

// RunCustomConfigCommand runs ';' separated commands in configuration
// mode.
func (d *Driver) RunCustomConfigCommand(ctx context.Context, cc *shellctx.ResourceCommandContext, customCommand string) (string, error) {
	var out string
	err := d.run(ctx, cc, opRunCustomConfigCommand, false, func(ctx context.Context, c *command) error {
		cli, err := d.handler(c)
		if err != nil {
			return err
		}
		c.event.WithParam("command", customCommand)
		out, err = flow.NewRunCommandFlow(cli, c.log).RunCustomConfigCommand(ctx, customCommand)
		return err
	})
	return out, err
}

// ApplyConnectivityChanges applies a VLAN connectivity request and
// returns the per-action results as JSON.
func (d *Driver) ApplyConnectivityChanges(ctx context.Context, cc *shellctx.ResourceCommandContext, request string) (string, error) {
	var out string
	err := d.run(ctx, cc, opConnectivity, false, func(ctx context.Context, c *command) error {
		cli, err := d.handler(c)
		if err != nil {
			return err
		}
		out, err = flow.NewConnectivityFlow(cli, c.cfg, c.log, d.metrics).ApplyConnectivity(ctx, request)
		return err
	})
	return out, err
}

// Save copies the running or startup configuration to folderPath and
// returns the saved file name. configurationType defaults to running and
// vrf to the resource's VRF Management Name.
func (d *Driver) Save(ctx context.Context, cc *shellctx.ResourceCommandContext, folderPath, configurationType, vrf string) (string, error) {
	var name string
	err := d.run(ctx, cc, opSave, false, func(ctx context.Context, c *command) error {
		cli, err := d.handler(c)
		if err != nil {
			return err
		}
		configurationType = orDefault(configurationType, flow.ConfigRunning)
		c.event.WithParam("folder_path", folderPath).WithParam("configuration_type", configurationType)
		name, err = flow.NewConfigurationFlow(cli, c.cfg, c.log).Save(ctx, folderPath, configurationType, vrfOr(vrf, c.cfg))
		return err
	})
	return name, err
}

// Restore loads a saved configuration file under the resource lock.
// configurationType defaults to running, restoreMethod to override and
// vrf to the resource's VRF Management Name.
func (d *Driver) Restore(ctx context.Context, cc *shellctx.ResourceCommandContext, path, configurationType, restoreMethod, vrf string) error {
	return d.run(ctx, cc, opRestore, true, func(ctx context.Context, c *command) error {
		cli, err := d.handler(c)
		if err != nil {
			return err
		}
		configurationType = orDefault(configurationType, flow.ConfigRunning)
		restoreMethod = orDefault(restoreMethod, flow.RestoreOverride)
		c.event.WithParam("path", path).
			WithParam("configuration_type", configurationType).
			WithParam("restore_method", restoreMethod)
		return flow.NewConfigurationFlow(cli, c.cfg, c.log).Restore(ctx, path, configurationType, restoreMethod, vrfOr(vrf, c.cfg))
	})
}

// OrchestrationSave saves the configuration for a sandbox snapshot and
// returns the saved-artifact-info JSON. mode defaults to shallow.
func (d *Driver) OrchestrationSave(ctx context.Context, cc *shellctx.ResourceCommandContext, mode, customParams string) (string, error) {
	var out string
	err := d.run(ctx, cc, opOrchestrationSave, false, func(ctx context.Context, c *command) error {
		cli, err := d.handler(c)
		if err != nil {
			return err
		}
		mode = orDefault(mode, flow.OrchestrationShallow)
		c.event.WithParam("mode", mode)
		info, err := flow.NewConfigurationFlow(cli, c.cfg, c.log).OrchestrationSave(ctx, mode, customParams)
		if err != nil {
			return err
		}
		out, err = info.JSON()
		return err
	})
	return out, err
}

// OrchestrationRestore restores the artifact described by
// savedArtifactInfo. An artifact that requires the same resource is
// rejected on any other resource.
func (d *Driver) OrchestrationRestore(ctx context.Context, cc *shellctx.ResourceCommandContext, savedArtifactInfo, customParams string) error {
	return d.run(ctx, cc, opOrchestrationRestore, false, func(ctx context.Context, c *command) error {
		info, err := model.ParseSavedArtifactInfo(savedArtifactInfo, c.cfg.Name)
		if err != nil {
			return err
		}
		params, err := model.ParseCustomParams(customParams)
		if err != nil {
			return err
		}
		cli, err := d.handler(c)
		if err != nil {
			return err
		}
		path := info.Artifact.URL()
		ctype := orDefault(params.ConfigurationType, flow.ConfigRunning)
		method := orDefault(params.RestoreMethod, flow.RestoreOverride)
		c.event.WithParam("path", path).WithParam("configuration_type", ctype).WithParam("restore_method", method)
		return flow.NewConfigurationFlow(cli, c.cfg, c.log).Restore(ctx, path, ctype, method, vrfOr(params.VRFManagementName, c.cfg))
	})
}

// LoadFirmware installs the image at path and reloads the switch under
// the resource lock. vrf defaults to the resource's VRF Management Name.
func (d *Driver) LoadFirmware(ctx context.Context, cc *shellctx.ResourceCommandContext, path, vrf string) error {
	return d.run(ctx, cc, opLoadFirmware, true, func(ctx context.Context, c *command) error {
		cli, err := d.handler(c)
		if err != nil {
			return err
		}
		c.event.WithParam("path", path)
		c.log.Info("Start Load Firmware")
		if err := flow.NewFirmwareFlow(cli, c.cfg, c.log, d.firmware).LoadFirmware(ctx, path, vrfOr(vrf, c.cfg)); err != nil {
			return err
		}
		c.log.Info("Finish Load Firmware.")
		return nil
	})
}

// HealthCheck runs the health checks, updates the resource's live status
// and returns the platform message.
func (d *Driver) HealthCheck(ctx context.Context, cc *shellctx.ResourceCommandContext) (string, error) {
	msg, _, err := d.HealthReport(ctx, cc)
	return msg, err
}

// HealthReport is HealthCheck with the per-check results.
func (d *Driver) HealthReport(ctx context.Context, cc *shellctx.ResourceCommandContext) (string, *health.Report, error) {
	var (
		msg    string
		report *health.Report
	)
	err := d.run(ctx, cc, opHealthCheck, false, func(ctx context.Context, c *command) error {
		cli, err := d.handler(c)
		if err != nil {
			return err
		}
		var (
			snmp    device.SNMP
			snmpErr error
		)
		if snmpConfigured(c.cfg) {
			if s, err := d.snmp(c.cfg); err != nil {
				c.log.Warnf("SNMP unavailable for health check: %v", err)
				snmpErr = err
			} else {
				defer s.Close()
				snmp = s
			}
		}
		sf := flow.NewStateFlow(cli, snmp, c.api, c.cfg, c.log).WithSNMPError(snmpErr)
		msg, report, err = sf.HealthCheck(ctx)
		return err
	})
	return msg, report, err
}

// Shutdown is not supported on NX-OS and always fails with
// util.ErrNotSupported.
func (d *Driver) Shutdown(ctx context.Context, cc *shellctx.ResourceCommandContext) (string, error) {
	var msg string
	err := d.run(ctx, cc, opShutdown, false, func(ctx context.Context, c *command) error {
		cli, err := d.handler(c)
		if err != nil {
			return err
		}
		msg, err = flow.NewStateFlow(cli, nil, c.api, c.cfg, c.log).Shutdown(ctx)
		return err
	})
	return msg, err
}
