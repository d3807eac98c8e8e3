// Package flow implements the multi-step switch operations invoked by the
// driver: SNMP enable/disable, inventory discovery, custom commands, VLAN
// connectivity, configuration save and restore, firmware load and state
// checks. Flows talk to the switch only through device.Handler and
// device.SNMP.
package flow

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nxshell/nxshell/pkg/device"
	"github.com/nxshell/nxshell/pkg/util"
)

// sendAll sends commands in order and joins their non-empty outputs. It
// stops at the first failure.
func sendAll(ctx context.Context, s device.Sender, commands []string, actions ...device.Action) (string, error) {
	var outs []string
	for _, cmd := range commands {
		out, err := s.Send(ctx, cmd, actions...)
		if out != "" {
			outs = append(outs, out)
		}
		if err != nil {
			return strings.Join(outs, "\n"), err
		}
	}
	return strings.Join(outs, "\n"), nil
}

func entry(log *logrus.Entry) *logrus.Entry {
	if log == nil {
		return logrus.NewEntry(util.Logger)
	}
	return log
}
