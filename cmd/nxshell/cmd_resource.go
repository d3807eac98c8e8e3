package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nxshell/nxshell/pkg/cli"
	"github.com/nxshell/nxshell/pkg/driver"
	"github.com/nxshell/nxshell/pkg/health"
	"github.com/nxshell/nxshell/pkg/model"
	"github.com/nxshell/nxshell/pkg/shellctx"
)

var autoloadCmd = &cobra.Command{
	Use:     "autoload",
	Aliases: []string{"inventory"},
	Short:   "Discover the switch's chassis, modules, ports and port-channels",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDriver(func(ctx context.Context, d *driver.Driver, cc *shellctx.ResourceCommandContext) error {
			details, err := d.GetInventory(ctx, cc.AutoLoad())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printResult(details)
			}
			printInventory(details)
			return nil
		})
	},
}

func printInventory(details *model.AutoLoadDetails) {
	t := cli.NewTable("ADDRESS", "MODEL", "NAME", "SERIAL").WithBorder()
	serial := map[string]string{}
	for _, a := range details.Attributes {
		if strings.HasSuffix(a.AttributeName, "Serial Number") {
			serial[a.RelativeAddress] = a.AttributeValue
		}
	}
	for _, r := range details.Resources {
		t.Row(r.RelativeAddress, r.Model, r.Name, serial[r.RelativeAddress])
	}
	t.Flush()
	fmt.Printf("\n%d resources, %d attributes\n", len(details.Resources), len(details.Attributes))
}

var runCommandCmd = &cobra.Command{
	Use:     "command <commands>",
	Short:   "Run ';' separated commands in enable mode",
	Example: `  nxshell -c ctx.yaml command "show version; show clock"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDriver(func(ctx context.Context, d *driver.Driver, cc *shellctx.ResourceCommandContext) error {
			out, err := d.RunCustomCommand(ctx, cc, args[0])
			if err != nil {
				return err
			}
			return printResult(out)
		})
	},
}

var runConfigCommandCmd = &cobra.Command{
	Use:     "config-command <commands>",
	Short:   "Run ';' separated commands in configuration mode",
	Example: `  nxshell -c ctx.yaml config-command "interface Ethernet1/1; description uplink"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDriver(func(ctx context.Context, d *driver.Driver, cc *shellctx.ResourceCommandContext) error {
			out, err := d.RunCustomConfigCommand(ctx, cc, args[0])
			if err != nil {
				return err
			}
			return printResult(out)
		})
	},
}

var connectivityCmd = &cobra.Command{
	Use:   "connectivity <request.json|->",
	Short: "Apply a VLAN connectivity request",
	Long: `Apply a connectivity request ({"driverRequest": {"actions": [...]}}).

The response JSON lists the result of every action.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		request, err := readArg(args[0])
		if err != nil {
			return err
		}
		return withDriver(func(ctx context.Context, d *driver.Driver, cc *shellctx.ResourceCommandContext) error {
			out, err := d.ApplyConnectivityChanges(ctx, cc, request)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		})
	},
}

var (
	firmwareVRF string
	firmwareYes bool
)

var firmwareCmd = &cobra.Command{
	Use:   "firmware <image-path>",
	Short: "Install an NX-OS image and reload the switch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !firmwareYes && !cli.Confirm(os.Stdin, os.Stderr, fmt.Sprintf("Load %s and reload the switch?", args[0])) {
			return fmt.Errorf("aborted")
		}
		return withDriver(func(ctx context.Context, d *driver.Driver, cc *shellctx.ResourceCommandContext) error {
			if err := d.LoadFirmware(ctx, cc, args[0], firmwareVRF); err != nil {
				return err
			}
			fmt.Println(cli.Green("Firmware loaded"))
			return nil
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run health checks and update the resource's live status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDriver(func(ctx context.Context, d *driver.Driver, cc *shellctx.ResourceCommandContext) error {
			msg, report, err := d.HealthReport(ctx, cc)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printResult(report)
			}
			printHealthReport(report)
			fmt.Printf("\n%s\n", msg)
			return nil
		})
	},
}

func printHealthReport(report *health.Report) {
	fmt.Printf("\nHealth Report for %s\n", cli.Bold(report.Device))
	fmt.Printf("Timestamp: %s\n", report.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("Duration: %s\n\n", report.Duration)

	t := cli.NewTable("CHECK", "STATUS", "MESSAGE", "DURATION")
	for _, r := range report.Results {
		t.Row(r.Check, cli.Status(string(r.Status)), r.Message, r.Duration.String())
	}
	t.Flush()

	fmt.Printf("\nOverall Status: %s\n", cli.Status(string(report.Overall)))
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Shut the switch down (not supported on NX-OS)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDriver(func(ctx context.Context, d *driver.Driver, cc *shellctx.ResourceCommandContext) error {
			out, err := d.Shutdown(ctx, cc)
			if err != nil {
				return err
			}
			return printResult(out)
		})
	},
}

// readArg returns the contents of a file argument, stdin for "-", or the
// argument itself when it is inline JSON.
func readArg(arg string) (string, error) {
	switch {
	case arg == "-":
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	case strings.HasPrefix(strings.TrimSpace(arg), "{"):
		return arg, nil
	}
	b, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", arg, err)
	}
	return string(b), nil
}

func init() {
	firmwareCmd.Flags().StringVar(&firmwareVRF, "vrf", "", "VRF for the image transfer (default: resource VRF Management Name)")
	firmwareCmd.Flags().BoolVarP(&firmwareYes, "yes", "y", false, "Do not ask for confirmation")
}
