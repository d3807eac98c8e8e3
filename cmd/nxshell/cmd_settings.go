package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nxshell/nxshell/pkg/cli"
	"github.com/nxshell/nxshell/pkg/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persistent settings",
	Long: `Manage persistent settings stored in ~/.nxshell/settings.yaml.

Every setting can be overridden with an NXSHELL_<KEY> environment
variable, e.g. NXSHELL_REDIS_ADDR=10.0.0.5:6379.

Examples:
  nxshell settings show
  nxshell settings set redis_addr 10.0.0.5:6379
  nxshell settings set redis_password        # prompts
  nxshell settings clear`,
}

func settingsFile() string {
	if settingsPath != "" {
		return settingsPath
	}
	return settings.DefaultSettingsPath()
}

func loadSettingsFile() (*settings.Settings, error) {
	s, err := settings.LoadFrom(settingsFile())
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return s, nil
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettingsFile()
		if err != nil {
			return err
		}

		fmt.Printf("Settings file: %s\n\n", settingsFile())

		t := cli.NewTable("SETTING", "VALUE")
		for _, key := range settings.Keys() {
			value, err := s.Get(key)
			if err != nil {
				return err
			}
			if value == "" {
				value = cli.Dim("(not set)")
			}
			t.Row(key, value)
		}
		t.Flush()
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <setting>",
	Short: "Get a setting value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettingsFile()
		if err != nil {
			return err
		}
		value, err := s.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <setting> [value]",
	Short: "Set a setting value",
	Long: `Set a persistent setting value. Secrets such as redis_password are
prompted for when the value is omitted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettingsFile()
		if err != nil {
			return err
		}

		key := args[0]
		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			if value, err = cli.PromptPassword(os.Stdin, os.Stderr, key); err != nil {
				return err
			}
		}

		if err := s.Set(key, value); err != nil {
			return err
		}
		if err := s.SaveTo(settingsFile()); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		shown, _ := s.Get(key)
		fmt.Printf("%s set to: %s\n", key, shown)
		return nil
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset all settings to defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := &settings.Settings{}
		s.Clear()
		if err := s.SaveTo(settingsFile()); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Println("Settings cleared")
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(settingsFile())
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsGetCmd, settingsSetCmd, settingsClearCmd, settingsPathCmd)
}
