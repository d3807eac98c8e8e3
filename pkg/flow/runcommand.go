package flow

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nxshell/nxshell/pkg/device"
	"github.com/nxshell/nxshell/pkg/util"
)

// RunCommandFlow sends user supplied commands.
type RunCommandFlow struct {
	cli device.Handler
	log *logrus.Entry
}

// NewRunCommandFlow creates the flow.
func NewRunCommandFlow(cli device.Handler, log *logrus.Entry) *RunCommandFlow {
	return &RunCommandFlow{cli: cli, log: entry(log)}
}

// RunCustomCommand runs ';' separated commands in enable mode and returns
// their combined output.
func (f *RunCommandFlow) RunCustomCommand(ctx context.Context, command string) (string, error) {
	cmds, err := splitCustom(command)
	if err != nil {
		return "", err
	}
	var out string
	err = f.cli.Enable(ctx, func(s device.Sender) error {
		var err error
		out, err = sendAll(ctx, s, cmds)
		return err
	})
	return out, err
}

// RunCustomConfigCommand runs ';' separated commands in configuration
// mode.
func (f *RunCommandFlow) RunCustomConfigCommand(ctx context.Context, command string) (string, error) {
	cmds, err := splitCustom(command)
	if err != nil {
		return "", err
	}
	var out string
	err = f.cli.Config(ctx, func(s device.Sender) error {
		var err error
		out, err = sendAll(ctx, s, cmds)
		return err
	})
	return out, err
}

func splitCustom(command string) ([]string, error) {
	cmds := util.SplitCommands(command)
	if len(cmds) == 0 {
		return nil, util.NewValidationError("custom command is empty")
	}
	return cmds, nil
}
