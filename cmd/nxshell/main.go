// nxshell - Cisco NX-OS shell driver
//
// Runs the orchestration platform's driver commands against one NX-OS
// switch. The command context (connectivity, resource and reservation) is
// read from a YAML or JSON file named by --context, or from stdin with
// "--context -".
//
// One-shot commands initialize a driver, run one command and clean up:
//
//	nxshell -c ctx.yaml autoload
//	nxshell -c ctx.yaml command "show version; show clock"
//	nxshell -c ctx.yaml connectivity request.json
//	nxshell -c ctx.yaml save --folder tftp://10.0.0.9/cfg
//	nxshell -c ctx.yaml restore bootflash:nx1-running-180226-101500
//	nxshell -c ctx.yaml firmware tftp://10.0.0.9/nxos.9.3.8.bin
//	nxshell -c ctx.yaml health
//
// serve keeps one driver alive and answers JSON-lines requests on stdin:
//
//	nxshell serve < requests.jsonl
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nxshell/nxshell/pkg/audit"
	"github.com/nxshell/nxshell/pkg/cli"
	"github.com/nxshell/nxshell/pkg/driver"
	"github.com/nxshell/nxshell/pkg/metrics"
	"github.com/nxshell/nxshell/pkg/resource"
	"github.com/nxshell/nxshell/pkg/settings"
	"github.com/nxshell/nxshell/pkg/shellctx"
	"github.com/nxshell/nxshell/pkg/util"
)

var (
	contextPath  string // -c, --context
	settingsPath string
	verbose      bool
	jsonOutput   bool

	userSettings *settings.Settings
	driverStats  *metrics.Metrics
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "nxshell",
	Short:             "Cisco NX-OS shell driver",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `nxshell runs orchestration platform commands against a Cisco NX-OS switch.

The command context names the switch and its attributes:

  nxshell -c <context.yaml> <command> [args]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if isSettingsOrHelp(cmd) {
			return nil
		}

		var err error
		if settingsPath != "" {
			userSettings, err = settings.LoadFrom(settingsPath)
		} else {
			userSettings, err = settings.Load()
		}
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{DecryptPasswords: true}
		}

		level := userSettings.LogLevel
		if verbose {
			level = "debug"
		}
		if level != "" {
			if err := util.SetLogLevel(level); err != nil {
				return err
			}
		}
		util.SetLogFormat(userSettings.LogFormat)

		auditLogger, err := audit.NewFileLogger(userSettings.GetAuditLog(), audit.RotationConfig{
			MaxSizeMB:  10,
			MaxBackups: 10,
			MaxAgeDays: 90,
		})
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(auditLogger)
		}

		driverStats = metrics.New()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&contextPath, "context", "c", "", "Command context file (YAML or JSON, - for stdin)")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (default ~/.nxshell/settings.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "resource", Title: "Resource Commands:"},
		&cobra.Group{ID: "config", Title: "Configuration Management:"},
		&cobra.Group{ID: "meta", Title: "Driver & Meta:"},
	)

	for _, cmd := range []*cobra.Command{
		autoloadCmd, runCommandCmd, runConfigCommandCmd, connectivityCmd,
		firmwareCmd, healthCmd, shutdownCmd,
	} {
		cmd.GroupID = "resource"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{
		saveCmd, restoreCmd, orchestrationSaveCmd, orchestrationRestoreCmd,
	} {
		cmd.GroupID = "config"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{serveCmd, auditCmd, settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "settings", "help", "version":
			return true
		}
	}
	return false
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newDriver creates a driver from the loaded settings.
func newDriver(ctx context.Context) (*driver.Driver, error) {
	return driver.New(ctx, driver.Options{Settings: userSettings, Metrics: driverStats})
}

// loadContext reads --context and prompts for a missing password when
// stdin is free.
func loadContext() (*shellctx.ResourceCommandContext, error) {
	if contextPath == "" {
		return nil, fmt.Errorf("command context required: use -c <file>")
	}
	var (
		cc  *shellctx.ResourceCommandContext
		err error
	)
	if contextPath == "-" {
		cc, err = shellctx.Decode(os.Stdin)
	} else {
		cc, err = shellctx.Load(contextPath)
	}
	if err != nil {
		return nil, err
	}

	if contextPath != "-" {
		if _, ok := cc.Resource.Attribute(resource.ShellName, resource.AttrPassword); !ok {
			pw, err := cli.PromptPassword(os.Stdin, os.Stderr, fmt.Sprintf("Password for %s@%s", userOf(cc), cc.Resource.Address))
			if err != nil {
				return nil, fmt.Errorf("reading password: %w", err)
			}
			if cc.Resource.Attributes == nil {
				cc.Resource.Attributes = map[string]string{}
			}
			cc.Resource.Attributes[resource.AttrPassword] = pw
		}
	}
	return cc, nil
}

func userOf(cc *shellctx.ResourceCommandContext) string {
	if u, ok := cc.Resource.Attribute(resource.ShellName, resource.AttrUser); ok && u != "" {
		return u
	}
	return "admin"
}

// withDriver runs fn on an initialized one-shot driver and cleans up.
func withDriver(fn func(ctx context.Context, d *driver.Driver, cc *shellctx.ResourceCommandContext) error) error {
	cc, err := loadContext()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	d, err := newDriver(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Cleanup(); err != nil {
			util.Warnf("cleanup: %v", err)
		}
	}()

	if _, err := d.Initialize(ctx, cc.Init()); err != nil {
		return err
	}
	return fn(ctx, d, cc)
}

// printResult prints a string result, or encodes v under --json.
func printResult(v interface{}) error {
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(v)
	}
	if s, ok := v.(string); ok {
		if s != "" {
			fmt.Println(s)
		}
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
