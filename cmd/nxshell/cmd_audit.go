package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nxshell/nxshell/pkg/audit"
	"github.com/nxshell/nxshell/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the driver command audit log",
	Long: `View the audit log of driver commands.

Every command is logged with its user, resource, reservation, parameters,
result and duration. Events are listed newest first and include rotated
audit files.

Examples:
  nxshell audit list --resource nx1
  nxshell audit list --last 24h --failures
  nxshell audit list --reservation res-1 --locked`,
}

var (
	auditResource    string
	auditReservation string
	auditUser        string
	auditLast        string
	auditLimit       int
	auditFailures    bool
	auditLocked      bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			Resource:    auditResource,
			Reservation: auditReservation,
			User:        auditUser,
			Limit:       auditLimit,
			Failed:      auditFailures,
			Locked:      auditLocked,
		}
		if auditLast != "" {
			d, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.Since = time.Now().Add(-d)
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}
		if jsonOutput {
			return printResult(events)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "USER", "RESOURCE", "COMMAND", "STATUS", "DURATION")
		for _, e := range events {
			status := cli.Green("ok")
			if !e.Success {
				status = cli.Red("failed")
			}
			t.Row(e.Timestamp.Format("2006-01-02 15:04:05"), e.User, e.Resource, e.Command, status,
				e.Duration.Round(time.Millisecond).String())
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditResource, "resource", "", "Filter by resource")
	auditListCmd.Flags().StringVar(&auditReservation, "reservation", "", "Filter by reservation")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed commands")
	auditListCmd.Flags().BoolVar(&auditLocked, "locked", false, "Show only commands that ran under the resource lock")

	auditCmd.AddCommand(auditListCmd)
}
