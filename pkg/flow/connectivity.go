package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/nxshell/nxshell/pkg/device"
	"github.com/nxshell/nxshell/pkg/metrics"
	"github.com/nxshell/nxshell/pkg/model"
	"github.com/nxshell/nxshell/pkg/resource"
	"github.com/nxshell/nxshell/pkg/util"
)

// ConnectivityFlow applies the platform's VLAN connectivity requests.
type ConnectivityFlow struct {
	cli     device.Handler
	cfg     *resource.Config
	log     *logrus.Entry
	metrics *metrics.Metrics
}

// NewConnectivityFlow creates the flow. m may be nil.
func NewConnectivityFlow(cli device.Handler, cfg *resource.Config, log *logrus.Entry, m *metrics.Metrics) *ConnectivityFlow {
	return &ConnectivityFlow{cli: cli, cfg: cfg, log: entry(log), metrics: m}
}

// ApplyConnectivity runs every action of the request and returns the
// response JSON. removeVlan actions complete before any setVlan action
// starts. Actions on different interfaces run in parallel, bounded by the
// sessions concurrency limit; actions on one interface run in request
// order. A failed action is reported in its result and does not stop the
// others.
func (f *ConnectivityFlow) ApplyConnectivity(ctx context.Context, request string) (string, error) {
	req, err := model.ParseConnectivityRequest(request)
	if err != nil {
		return "", err
	}
	actions := req.DriverRequest.Actions
	results := make([]model.ActionResult, len(actions))
	errs := make([]error, len(actions))

	for _, phase := range []string{model.ActionRemoveVLAN, model.ActionSetVLAN} {
		groups := groupByInterface(actions, phase)
		if len(groups) == 0 {
			continue
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.limit())
		for _, idxs := range groups {
			idxs := idxs
			g.Go(func() error {
				cleaned := false
				for _, i := range idxs {
					a := &actions[i]
					var info string
					var err error
					if a.Type == model.ActionRemoveVLAN {
						info, err = f.removeVLAN(gctx, a)
					} else {
						info, err = f.setVLAN(gctx, a, !cleaned)
						cleaned = true
					}
					if err != nil {
						f.log.Errorf("Action %s on %s failed: %v", a.ActionID, a.ActionTarget.FullName, err)
					}
					errs[i] = err
					results[i] = model.NewActionResult(a, err, info)
					f.metrics.RecordConnectivityAction(a.Type, err)
				}
				return nil
			})
		}
		g.Wait()
	}

	if err := multierr.Combine(errs...); err != nil {
		f.log.Warnf("%d of %d connectivity actions failed: %v", len(multierr.Errors(err)), len(actions), err)
	}
	resp := &model.ConnectivityResponse{}
	resp.DriverResponse.ActionResults = results
	return resp.JSON()
}

func (f *ConnectivityFlow) limit() int {
	if f.cfg.SessionsConcurrencyLimit < 1 {
		return 1
	}
	return f.cfg.SessionsConcurrencyLimit
}

// groupByInterface returns the indexes of actions of the given type,
// grouped per target interface in request order.
func groupByInterface(actions []model.ConnectivityAction, actionType string) [][]int {
	var order []string
	groups := map[string][]int{}
	for i := range actions {
		if actions[i].Type != actionType {
			continue
		}
		iface := actions[i].Interface()
		if _, ok := groups[iface]; !ok {
			order = append(order, iface)
		}
		groups[iface] = append(groups[iface], i)
	}
	out := make([][]int, 0, len(order))
	for _, iface := range order {
		out = append(out, groups[iface])
	}
	return out
}

// portMode returns the NX-OS switchport mode for an action.
func portMode(a *model.ConnectivityAction) (string, error) {
	if a.IsQnQ() {
		return "dot1q-tunnel", nil
	}
	switch a.Mode() {
	case model.ModeAccess:
		return "access", nil
	case model.ModeTrunk:
		return "trunk", nil
	}
	return "", fmt.Errorf("unsupported port mode %q", a.ConnectionParams.Mode)
}

func (f *ConnectivityFlow) setVLAN(ctx context.Context, a *model.ConnectivityAction, clean bool) (string, error) {
	iface := a.Interface()
	if iface == "" {
		return "", fmt.Errorf("action %s has no target interface", a.ActionID)
	}
	mode, err := portMode(a)
	if err != nil {
		return "", err
	}
	vlans, err := util.NormalizeVLANRange(a.ConnectionParams.VLANID)
	if err != nil {
		return "", err
	}
	if mode != "trunk" && strings.ContainsAny(vlans, ",-") {
		return "", fmt.Errorf("%s mode accepts a single VLAN, got %s", mode, vlans)
	}

	f.log.Infof("Adding VLAN %s to %s in %s mode", vlans, iface, mode)
	err = f.cli.Config(ctx, func(s device.Sender) error {
		if _, err := s.Send(ctx, "vlan "+vlans); err != nil {
			return err
		}
		if _, err := s.Send(ctx, "exit"); err != nil {
			return err
		}
		if clean {
			current, err := s.Send(ctx, "show running-config interface "+iface)
			if err != nil {
				return err
			}
			if err := cleanPort(ctx, s, iface, current); err != nil {
				return err
			}
		}

		cmds := []string{"interface " + iface, "switchport", "switchport mode " + mode}
		switch {
		case mode == "trunk" && clean:
			cmds = append(cmds, "switchport trunk allowed vlan "+vlans)
		case mode == "trunk":
			cmds = append(cmds, "switchport trunk allowed vlan add "+vlans)
		default:
			cmds = append(cmds, "switchport access vlan "+vlans)
		}
		cmds = append(cmds, "no shutdown", "exit")
		_, err := sendAll(ctx, s, cmds)
		return err
	})
	if err != nil {
		return "", err
	}

	if err := f.verify(ctx, iface, func(cfg string) bool {
		return vlanConfigured(cfg, mode, vlans)
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("VLAN %s configured successfully on %s", vlans, iface), nil
}

func (f *ConnectivityFlow) removeVLAN(ctx context.Context, a *model.ConnectivityAction) (string, error) {
	iface := a.Interface()
	if iface == "" {
		return "", fmt.Errorf("action %s has no target interface", a.ActionID)
	}
	vlans := ""
	if strings.TrimSpace(a.ConnectionParams.VLANID) != "" {
		var err error
		if vlans, err = util.NormalizeVLANRange(a.ConnectionParams.VLANID); err != nil {
			return "", err
		}
	}
	trunk := a.Mode() == model.ModeTrunk && !a.IsQnQ() && vlans != ""

	f.log.Infof("Removing VLAN %s from %s", vlans, iface)
	err := f.cli.Config(ctx, func(s device.Sender) error {
		if trunk {
			_, err := sendAll(ctx, s, []string{
				"interface " + iface,
				"switchport trunk allowed vlan remove " + vlans,
				"exit",
			})
			return err
		}
		current, err := s.Send(ctx, "show running-config interface "+iface)
		if err != nil {
			return err
		}
		return cleanPort(ctx, s, iface, current)
	})
	if err != nil {
		return "", err
	}

	if err := f.verify(ctx, iface, func(cfg string) bool {
		if !trunk {
			return !strings.Contains(cfg, "switchport access vlan") && !strings.Contains(cfg, "switchport trunk allowed vlan")
		}
		removed, _ := util.ExpandRange(vlans)
		allowed := allowedVLANs(cfg)
		for _, v := range removed {
			if allowed[v] {
				return false
			}
		}
		return true
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("VLAN %s removed successfully from %s", vlans, iface), nil
}

// cleanPortPrefixes are removed from an interface before new VLANs are
// applied.
var cleanPortPrefixes = []string{
	"switchport access vlan",
	"switchport trunk allowed vlan",
	"switchport trunk native vlan",
}

// cleanPort removes access and trunk VLAN settings found in the
// interface's running configuration.
func cleanPort(ctx context.Context, s device.Sender, iface, current string) error {
	var cmds []string
	for _, prefix := range cleanPortPrefixes {
		if strings.Contains(current, prefix) {
			cmds = append(cmds, "no "+prefix)
		}
	}
	if len(cmds) == 0 {
		return nil
	}
	cmds = append([]string{"interface " + iface}, cmds...)
	_, err := sendAll(ctx, s, append(cmds, "exit"))
	return err
}

func (f *ConnectivityFlow) verify(ctx context.Context, iface string, ok func(string) bool) error {
	var current string
	err := f.cli.Enable(ctx, func(s device.Sender) error {
		var err error
		current, err = s.Send(ctx, "show running-config interface "+iface)
		return err
	})
	if err != nil {
		return err
	}
	if !ok(current) {
		return fmt.Errorf("%w: interface %s", util.ErrVerificationFailed, iface)
	}
	return nil
}

// allowedVLANs parses the trunk allowed list of an interface's running
// configuration, including continuation "add" lines.
func allowedVLANs(cfg string) map[int]bool {
	const prefix = "switchport trunk allowed vlan "
	out := map[int]bool{}
	for _, line := range strings.Split(cfg, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		spec := strings.TrimPrefix(strings.TrimPrefix(line, prefix), "add ")
		if spec == "none" {
			continue
		}
		vlans, err := util.ExpandRange(spec)
		if err != nil {
			continue
		}
		for _, v := range vlans {
			out[v] = true
		}
	}
	return out
}

func vlanConfigured(cfg, mode, vlans string) bool {
	if !strings.Contains(cfg, "switchport mode "+mode) && mode != "access" {
		return false
	}
	if mode != "trunk" {
		id, err := strconv.Atoi(vlans)
		if err != nil {
			return false
		}
		for _, line := range strings.Split(cfg, "\n") {
			if strings.TrimSpace(line) == "switchport access vlan "+strconv.Itoa(id) {
				return true
			}
		}
		return false
	}
	want, err := util.ExpandRange(vlans)
	if err != nil {
		return false
	}
	allowed := allowedVLANs(cfg)
	for _, v := range want {
		if !allowed[v] {
			return false
		}
	}
	return true
}
