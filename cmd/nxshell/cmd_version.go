package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nxshell/nxshell/pkg/cli"
	"github.com/nxshell/nxshell/pkg/driver"
	"github.com/nxshell/nxshell/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the driver version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cli.Bold(version.DriverVersion()))
		fmt.Println(cli.DotPad("Build", 16), version.Info())
		fmt.Println(cli.DotPad("Shell", 16), driver.ShellName)
		fmt.Println(cli.DotPad("Supported OS", 16), driver.SupportedOS)
	},
}
