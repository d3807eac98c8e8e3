// Package health runs health checks against an NX-OS switch over its CLI
// and SNMP handlers.
package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nxshell/nxshell/pkg/device"
)

// Status represents the health status of a component
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusUnknown  Status = "unknown"
)

// Result represents the result of a health check
type Result struct {
	Check     string        `json:"check"`
	Status    Status        `json:"status"`
	Message   string        `json:"message"`
	Details   interface{}   `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Report contains all health check results for a switch
type Report struct {
	Device    string        `json:"device"`
	Timestamp time.Time     `json:"timestamp"`
	Overall   Status        `json:"overall"`
	Results   []Result      `json:"results"`
	Duration  time.Duration `json:"duration"`
}

// Passed reports whether no check was critical.
func (r *Report) Passed() bool {
	return r.Overall != StatusCritical
}

// Target is the switch under check. SNMP is nil when SNMP is not
// configured for the resource.
type Target struct {
	Name string
	CLI  device.Handler
	SNMP device.SNMP
	// SNMPErr is set when SNMP is configured but the session could not
	// be opened.
	SNMPErr error
}

// Check defines the interface for health checks
type Check interface {
	Name() string
	Run(ctx context.Context, t *Target) Result
}

// Checker runs health checks on a switch
type Checker struct {
	checks []Check
}

// NewChecker creates a new health checker with default checks
func NewChecker() *Checker {
	return &Checker{
		checks: []Check{
			&CLICheck{},
			&SNMPCheck{},
			&InterfaceCheck{},
			&LAGCheck{},
		},
	}
}

// AddCheck appends a check.
func (c *Checker) AddCheck(check Check) {
	c.checks = append(c.checks, check)
}

// ListChecks returns the check names in run order.
func (c *Checker) ListChecks() []string {
	names := make([]string, 0, len(c.checks))
	for _, check := range c.checks {
		names = append(names, check.Name())
	}
	return names
}

// Run executes all health checks and returns a report
func (c *Checker) Run(ctx context.Context, t *Target) (*Report, error) {
	if t == nil || t.CLI == nil {
		return nil, fmt.Errorf("no CLI handler for health check")
	}

	start := time.Now()
	report := &Report{
		Device:    t.Name,
		Timestamp: start,
		Results:   make([]Result, 0, len(c.checks)),
		Overall:   StatusOK,
	}

	for _, check := range c.checks {
		result := check.Run(ctx, t)
		report.Results = append(report.Results, result)

		// Update overall status (worst wins)
		if result.Status == StatusCritical {
			report.Overall = StatusCritical
		} else if result.Status == StatusWarning && report.Overall != StatusCritical {
			report.Overall = StatusWarning
		} else if result.Status == StatusUnknown && report.Overall == StatusOK {
			report.Overall = StatusUnknown
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}

// RunCheck runs a specific health check by name
func (c *Checker) RunCheck(ctx context.Context, t *Target, name string) (*Result, error) {
	for _, check := range c.checks {
		if check.Name() == name {
			result := check.Run(ctx, t)
			return &result, nil
		}
	}
	return nil, fmt.Errorf("health check '%s' not found", name)
}

// show runs a command in enable mode and returns its output.
func show(ctx context.Context, t *Target, cmd string) (string, error) {
	var out string
	err := t.CLI.Enable(ctx, func(s device.Sender) error {
		var err error
		out, err = s.Send(ctx, cmd)
		return err
	})
	return out, err
}

// rows returns the ROW_* entries of an NX-OS JSON table, which is an
// object when the table has a single row.
func rows(r gjson.Result) []gjson.Result {
	switch {
	case r.IsArray():
		return r.Array()
	case r.IsObject():
		return []gjson.Result{r}
	}
	return nil
}

// CLICheck verifies the CLI answers and reports the running version
type CLICheck struct{}

// Name returns the check name
func (c *CLICheck) Name() string {
	return "cli"
}

// Run executes the CLI health check
func (c *CLICheck) Run(ctx context.Context, t *Target) Result {
	start := time.Now()
	result := Result{
		Check:     c.Name(),
		Timestamp: start,
	}

	out, err := show(ctx, t, "show version | json")
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("CLI unreachable: %v", err)
		return result
	}

	result.Status = StatusOK
	if !gjson.Valid(out) {
		result.Message = "CLI reachable"
		return result
	}
	version := gjson.Get(out, "nxos_ver_str").String()
	if version == "" {
		version = gjson.Get(out, "kickstart_ver_str").String()
	}
	result.Details = map[string]string{
		"version":  version,
		"chassis":  gjson.Get(out, "chassis_id").String(),
		"hostname": gjson.Get(out, "host_name").String(),
	}
	result.Message = "NX-OS " + version
	return result
}

// SNMPCheck verifies the SNMP agent answers
type SNMPCheck struct{}

// Name returns the check name
func (c *SNMPCheck) Name() string {
	return "snmp"
}

// Run executes the SNMP health check
func (c *SNMPCheck) Run(ctx context.Context, t *Target) Result {
	start := time.Now()
	result := Result{
		Check:     c.Name(),
		Timestamp: start,
	}

	if t.SNMPErr != nil {
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("SNMP unavailable: %v", t.SNMPErr)
		result.Duration = time.Since(start)
		return result
	}

	if t.SNMP == nil {
		result.Status = StatusOK
		result.Message = "SNMP not configured"
		result.Duration = time.Since(start)
		return result
	}

	vars, err := t.SNMP.Get(ctx, "1.3.6.1.2.1.1.5.0", "1.3.6.1.2.1.1.3.0")
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("SNMP unreachable: %v", err)
		return result
	}
	result.Status = StatusOK
	result.Message = "SNMP agent responding"
	if len(vars) > 0 && vars[0].Exists() {
		result.Message += " (" + vars[0].String() + ")"
	}
	return result
}

// InterfaceCheck counts ports that are enabled but not up
type InterfaceCheck struct{}

// Name returns the check name
func (c *InterfaceCheck) Name() string {
	return "interfaces"
}

// Run executes the interface health check
func (c *InterfaceCheck) Run(ctx context.Context, t *Target) Result {
	start := time.Now()
	result := Result{
		Check:     c.Name(),
		Timestamp: start,
	}

	out, err := show(ctx, t, "show interface brief | json")
	result.Duration = time.Since(start)
	if err != nil || !gjson.Valid(out) {
		result.Status = StatusUnknown
		result.Message = "interface state unavailable"
		return result
	}

	var total, downCount int
	for _, row := range rows(gjson.Get(out, "TABLE_interface.ROW_interface")) {
		name := row.Get("interface").String()
		if !strings.HasPrefix(strings.ToLower(name), "eth") {
			continue
		}
		total++
		if row.Get("state").String() == "down" &&
			!strings.Contains(strings.ToLower(row.Get("state_rsn_desc").String()), "administratively") {
			downCount++
		}
	}

	result.Details = map[string]int{
		"total": total,
		"down":  downCount,
	}
	if downCount == 0 {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("All %d enabled interfaces operational", total)
	} else {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("%d of %d interfaces down", downCount, total)
	}
	return result
}

// LAGCheck verifies port-channel member health
type LAGCheck struct{}

// Name returns the check name
func (c *LAGCheck) Name() string {
	return "lag"
}

// Run executes the LAG health check
func (c *LAGCheck) Run(ctx context.Context, t *Target) Result {
	start := time.Now()
	result := Result{
		Check:     c.Name(),
		Timestamp: start,
	}

	out, err := show(ctx, t, "show port-channel summary | json")
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnknown
		result.Message = "port-channel state unavailable"
		return result
	}

	channels := rows(gjson.Get(out, "TABLE_channel.ROW_channel"))
	if len(channels) == 0 {
		result.Status = StatusOK
		result.Message = "No LAGs configured"
		return result
	}

	var degradedCount int
	for _, ch := range channels {
		for _, m := range rows(ch.Get("TABLE_member.ROW_member")) {
			if m.Get("port-status").String() != "P" {
				degradedCount++
				break
			}
		}
	}

	result.Details = map[string]int{
		"total":    len(channels),
		"degraded": degradedCount,
	}
	if degradedCount == 0 {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("All %d LAGs healthy", len(channels))
	} else {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("%d of %d LAGs degraded", degradedCount, len(channels))
	}
	return result
}
