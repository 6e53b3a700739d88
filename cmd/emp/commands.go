package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"emp/internal/config"
)

var titleCaser = cases.Title(language.English)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := ctx.runCommand("", "status", nil, true)
			if err != nil {
				return err
			}
			cmd.Println(out)
			return nil
		},
	}
}

func newSendCommand(ctx *commandContext) *cobra.Command {
	var noWait bool
	cmd := &cobra.Command{
		Use:   "send <dest> <command> [args...]",
		Short: "Send a command to an attachment or the daemon",
		Long: "Send a command to the attachment named <dest>. " +
			"Use \"daemon\" or \"-\" as the destination to address the daemon itself.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := args[0]
			if dest == "daemon" || dest == "-" {
				dest = ""
			}
			out, err := ctx.runCommand(dest, args[1], args[2:], !noWait)
			if err != nil {
				return err
			}
			if !noWait {
				cmd.Println(out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "do not wait for a reply")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded attachments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			daemonCmd := "attachments"
			switch kind {
			case "", "all":
			case "plugs":
				daemonCmd = "plugs"
			case "alarms":
				daemonCmd = "alarms"
			default:
				return fmt.Errorf("unknown kind %q (want all, plugs, or alarms)", kind)
			}
			out, err := ctx.runCommand("", daemonCmd, nil, true)
			if err != nil {
				return err
			}
			if out == "none" {
				cmd.Println("no attachments loaded")
				return nil
			}
			rows := parseColumns(out, 4)
			for _, row := range rows {
				if len(row) > 1 {
					row[1] = titleCaser.String(row[1])
				}
			}
			cmd.Println(renderTable(
				[]string{"Name", "Kind", "ID", "State"},
				rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "all", "filter by kind: all, plugs, alarms")
	return cmd
}

func newEventsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List registered events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printOwnedEntities(cmd, ctx, "events", "Event")
		},
	}
}

func newAlertsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "List registered alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printOwnedEntities(cmd, ctx, "alerts", "Alert")
		},
	}
}

// printOwnedEntities renders the daemon's "<name> <id> from <owner>" lines
// as a table.
func printOwnedEntities(cmd *cobra.Command, ctx *commandContext, daemonCmd, label string) error {
	out, err := ctx.runCommand("", daemonCmd, nil, true)
	if err != nil {
		return err
	}
	if strings.HasPrefix(out, "no ") {
		cmd.Println(out)
		return nil
	}
	var rows [][]string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 4 {
			continue
		}
		rows = append(rows, []string{fields[0], fields[1], fields[3]})
	}
	cmd.Println(renderTable([]string{label, "ID", "Owner"}, rows))
	return nil
}

func newSubscriptionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "subscriptions",
		Short: "List active subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := ctx.runCommand("", "subscriptions", nil, true)
			if err != nil {
				return err
			}
			if out == "no subscriptions" {
				cmd.Println(out)
				return nil
			}
			var rows [][]string
			for _, line := range strings.Split(out, "\n") {
				fields := strings.Fields(line)
				if len(fields) != 4 {
					continue
				}
				rows = append(rows, []string{fields[0], fields[1], fields[3]})
			}
			cmd.Println(renderTable([]string{"Type", "Source", "Target"}, rows))
			return nil
		},
	}
}

func newSubscribeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <event|plug> <alert|alarm>",
		Short: "Link an event to an alert",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := ctx.runCommand("", "subscribe", args, true)
			if err != nil {
				return err
			}
			cmd.Println(out)
			return nil
		},
	}
}

func newUnsubscribeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <event|plug> <alert|alarm>",
		Short: "Remove an event-to-alert link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := ctx.runCommand("", "unsubscribe", args, true)
			if err != nil {
				return err
			}
			cmd.Println(out)
			return nil
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history [n]",
		Short: "Show recent event triggers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := ctx.runCommand("", "history", args, true)
			if err != nil {
				return err
			}
			cmd.Println(out)
			return nil
		},
	}
}

func newHelpAllCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "help-all",
		Short: "List every command of the daemon and all attachments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := ctx.runCommand("", "cmds", nil, true)
			if err != nil {
				return err
			}
			cmd.Println(out)
			return nil
		},
	}
}

func newShutdownCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := ctx.runCommand("", "shutdown", nil, true)
			if err != nil {
				return err
			}
			cmd.Println(out)
			return nil
		},
	}
}

func newSampleConfigCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "sample-config",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := path
			if target == "" {
				target = config.DefaultPath()
			}
			if err := config.WriteSample(target); err != nil {
				return err
			}
			cmd.Printf("wrote %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "target file (default: the standard config location)")
	return cmd
}

// parseColumns splits fixed-width listing lines into at most n columns.
func parseColumns(out string, n int) [][]string {
	var rows [][]string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) > n {
			fields = append(fields[:n-1], strings.Join(fields[n-1:], " "))
		}
		rows = append(rows, fields)
	}
	return rows
}
