package flow

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nxshell/nxshell/pkg/api"
	"github.com/nxshell/nxshell/pkg/device"
	"github.com/nxshell/nxshell/pkg/health"
	"github.com/nxshell/nxshell/pkg/resource"
	"github.com/nxshell/nxshell/pkg/util"
)

// StateFlow checks and changes the operational state of the switch.
type StateFlow struct {
	cli     device.Handler
	snmp    device.SNMP
	snmpErr error
	api     api.Client
	cfg     *resource.Config
	log     *logrus.Entry
	checker *health.Checker
}

// NewStateFlow creates the flow. snmp may be nil when SNMP is not
// configured; client defaults to api.Offline.
func NewStateFlow(cli device.Handler, snmp device.SNMP, client api.Client, cfg *resource.Config, log *logrus.Entry) *StateFlow {
	if client == nil {
		client = api.Offline{}
	}
	return &StateFlow{
		cli:     cli,
		snmp:    snmp,
		api:     client,
		cfg:     cfg,
		log:     entry(log),
		checker: health.NewChecker(),
	}
}

// WithSNMPError records why a configured SNMP session could not be
// opened. HealthCheck reports it as a critical SNMP result.
func (f *StateFlow) WithSNMPError(err error) *StateFlow {
	f.snmpErr = err
	return f
}

// HealthCheck runs the health checks, publishes the result as the
// resource's live status and returns the platform message.
func (f *StateFlow) HealthCheck(ctx context.Context) (string, *health.Report, error) {
	report, err := f.checker.Run(ctx, &health.Target{Name: f.cfg.Name, CLI: f.cli, SNMP: f.snmp, SNMPErr: f.snmpErr})
	if err != nil {
		return "", nil, err
	}
	for _, r := range report.Results {
		f.log.Debugf("health %s: %s %s", r.Check, r.Status, r.Message)
	}

	status, verdict := api.StatusOnline, "passed"
	if !report.Passed() {
		status, verdict = api.StatusError, "failed"
	}
	msg := fmt.Sprintf("Health check on resource %s %s.", f.cfg.Name, verdict)
	if err := f.api.SetResourceLiveStatus(ctx, f.cfg.Name, status, msg); err != nil {
		f.log.Warnf("updating live status: %v", err)
	}
	return msg, report, nil
}

// Shutdown is not available from the NX-OS CLI.
func (f *StateFlow) Shutdown(ctx context.Context) (string, error) {
	return "", fmt.Errorf("%w: shutdown of %s is not available from the NX-OS CLI", util.ErrNotSupported, f.cfg.Name)
}
