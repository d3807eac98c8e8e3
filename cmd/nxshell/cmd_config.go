package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nxshell/nxshell/pkg/driver"
	"github.com/nxshell/nxshell/pkg/shellctx"
)

var (
	saveFolder    string
	saveType      string
	saveVRF       string
	restoreType   string
	restoreMethod string
	restoreVRF    string
	orchMode      string
	orchParams    string
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the running or startup configuration",
	Long: `Copy the running or startup configuration to a folder.

Without --folder the resource's Backup Location and Backup Type are used.
The saved file is named <resource>-<type>-<ddmmyy-HHMMSS>.

Examples:
  nxshell -c ctx.yaml save
  nxshell -c ctx.yaml save --folder tftp://10.0.0.9/cfg --type startup`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDriver(func(ctx context.Context, d *driver.Driver, cc *shellctx.ResourceCommandContext) error {
			name, err := d.Save(ctx, cc, saveFolder, saveType, saveVRF)
			if err != nil {
				return err
			}
			return printResult(name)
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <path>",
	Short: "Restore a saved configuration",
	Long: `Restore a saved configuration file.

override (default) replaces the running configuration with configure
replace; append merges the file into it. Startup restores always
override.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDriver(func(ctx context.Context, d *driver.Driver, cc *shellctx.ResourceCommandContext) error {
			if err := d.Restore(ctx, cc, args[0], restoreType, restoreMethod, restoreVRF); err != nil {
				return err
			}
			fmt.Printf("Restored %s\n", args[0])
			return nil
		})
	},
}

var orchestrationSaveCmd = &cobra.Command{
	Use:   "orchestration-save",
	Short: "Save the configuration for a sandbox snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := optionalArg(orchParams)
		if err != nil {
			return err
		}
		return withDriver(func(ctx context.Context, d *driver.Driver, cc *shellctx.ResourceCommandContext) error {
			info, err := d.OrchestrationSave(ctx, cc, orchMode, params)
			if err != nil {
				return err
			}
			fmt.Println(info)
			return nil
		})
	},
}

var orchestrationRestoreCmd = &cobra.Command{
	Use:   "orchestration-restore <saved-artifact-info.json|->",
	Short: "Restore a sandbox snapshot saved by orchestration-save",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := readArg(args[0])
		if err != nil {
			return err
		}
		params, err := optionalArg(orchParams)
		if err != nil {
			return err
		}
		return withDriver(func(ctx context.Context, d *driver.Driver, cc *shellctx.ResourceCommandContext) error {
			if err := d.OrchestrationRestore(ctx, cc, info, params); err != nil {
				return err
			}
			fmt.Println("Restore completed")
			return nil
		})
	},
}

func optionalArg(arg string) (string, error) {
	if arg == "" {
		return "", nil
	}
	return readArg(arg)
}

func init() {
	saveCmd.Flags().StringVar(&saveFolder, "folder", "", "Destination folder URL (default: resource Backup Location)")
	saveCmd.Flags().StringVar(&saveType, "type", "", "Configuration type: running or startup (default running)")
	saveCmd.Flags().StringVar(&saveVRF, "vrf", "", "VRF for remote transfers (default: resource VRF Management Name)")

	restoreCmd.Flags().StringVar(&restoreType, "type", "", "Configuration type: running or startup (default running)")
	restoreCmd.Flags().StringVar(&restoreMethod, "method", "", "Restore method: override or append (default override)")
	restoreCmd.Flags().StringVar(&restoreVRF, "vrf", "", "VRF for remote transfers (default: resource VRF Management Name)")

	orchestrationSaveCmd.Flags().StringVar(&orchMode, "mode", "", "Save mode: shallow or deep (default shallow)")
	for _, cmd := range []*cobra.Command{orchestrationSaveCmd, orchestrationRestoreCmd} {
		cmd.Flags().StringVar(&orchParams, "custom-params", "", "Custom params JSON or file")
	}
}
