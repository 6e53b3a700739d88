package daemon

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"emp/internal/attach"
	"emp/internal/logging"
	"emp/internal/registry"
)

// commandTable is the daemon's own command surface, dispatched by the
// router exactly like an attachment's.
func (d *Daemon) commandTable() []attach.Command {
	return []attach.Command{
		{Name: "status", Help: "daemon status and uptime", Run: d.cmdStatus},
		{Name: "uptime", Help: "time since the daemon started", Run: d.cmdUptime},
		{Name: "id", Help: "routing id of the daemon or an attachment: id [name]", Run: d.cmdID},
		{Name: "help", Help: "list commands: help [attachment]", Run: d.cmdHelp},
		{Name: "cmds", Help: "list every command of every attachment", Run: d.cmdCmds},
		{Name: "attachments", Help: "list loaded attachments", Run: d.cmdAttachments},
		{Name: "plugs", Help: "list loaded plugs", Run: d.cmdPlugs},
		{Name: "alarms", Help: "list loaded alarms", Run: d.cmdAlarms},
		{Name: "events", Help: "list registered events", Run: d.cmdEvents},
		{Name: "alerts", Help: "list registered alerts", Run: d.cmdAlerts},
		{Name: "activate", Help: "activate an attachment: activate <name>", Run: d.cmdActivate},
		{Name: "deactivate", Help: "deactivate an attachment: deactivate <name>", Run: d.cmdDeactivate},
		{Name: "subscribe", Help: "link an event to an alert: subscribe <a> <b>", Run: d.cmdSubscribe},
		{Name: "unsubscribe", Help: "remove a link: unsubscribe <a> <b>", Run: d.cmdUnsubscribe},
		{Name: "subscriptions", Help: "list active subscriptions", Run: d.cmdSubscriptions},
		{Name: "history", Help: "recent event triggers: history [n]", Run: d.cmdHistory},
		{Name: "poll", Help: "run the loop-plug update cycle now", Run: d.cmdPoll},
		{Name: "shutdown", Help: "stop the daemon", Run: d.cmdShutdown},
	}
}

func (d *Daemon) uptime() time.Duration {
	return time.Since(d.started).Round(time.Second)
}

func (d *Daemon) cmdStatus([]string) (any, error) {
	var uts unix.Utsname
	host := "unknown host"
	if err := unix.Uname(&uts); err == nil {
		host = fmt.Sprintf("%s %s", bytesToString(uts.Sysname[:]), bytesToString(uts.Release[:]))
	}
	return fmt.Sprintf("emp daemon up %s on %s, %d attachment(s) loaded",
		d.uptime(), host, len(d.atch.Attachments())), nil
}

func (d *Daemon) cmdUptime([]string) (any, error) {
	return d.uptime().String(), nil
}

func (d *Daemon) cmdID(args []string) (any, error) {
	if len(args) == 0 {
		return d.reg.DaemonID(), nil
	}
	id, ok := d.reg.AttachID(args[0])
	if !ok {
		return nil, fmt.Errorf("no attachment %q", args[0])
	}
	return id, nil
}

func (d *Daemon) cmdHelp(args []string) (any, error) {
	table := d.commandTable()
	if len(args) == 1 {
		var ok bool
		table, ok = d.atch.GetCommands(args[0])
		if !ok {
			return nil, fmt.Errorf("no attachment %q", args[0])
		}
		if len(table) == 0 {
			return "no commands", nil
		}
	}
	lines := make([]string, 0, len(table))
	for _, cmd := range table {
		lines = append(lines, fmt.Sprintf("%-13s %s", cmd.Name, cmd.Help))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Daemon) cmdCmds([]string) (any, error) {
	var lines []string
	lines = append(lines, "daemon: "+commandNames(d.commandTable()))
	for _, a := range d.atch.Attachments() {
		lines = append(lines, a.Name()+": "+commandNames(a.Commands()))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Daemon) cmdAttachments([]string) (any, error) {
	return d.listAttachments(""), nil
}

func (d *Daemon) cmdPlugs([]string) (any, error) {
	return d.listAttachments(registry.KindPlug), nil
}

func (d *Daemon) cmdAlarms([]string) (any, error) {
	return d.listAttachments(registry.KindAlarm), nil
}

func (d *Daemon) listAttachments(kind registry.Kind) string {
	var lines []string
	for _, a := range d.atch.Attachments() {
		if kind != "" && a.Kind() != kind {
			continue
		}
		state := "inactive"
		if a.Activated() {
			state = "active"
		}
		lines = append(lines, fmt.Sprintf("%-12s %-6s %s %s", a.Name(), a.Kind(), a.ID(), state))
	}
	if len(lines) == 0 {
		return "none"
	}
	return strings.Join(lines, "\n")
}

func (d *Daemon) cmdEvents([]string) (any, error) {
	evs := d.reg.Events()
	sort.Slice(evs, func(i, j int) bool { return evs[i].Name < evs[j].Name })
	var lines []string
	for _, ev := range evs {
		owner := ev.Producer
		if cmd, ok := d.reg.Cmd(ev.Producer); ok && cmd != "" {
			owner = cmd
		}
		lines = append(lines, fmt.Sprintf("%-16s %s from %s", ev.Name, ev.ID, owner))
	}
	if len(lines) == 0 {
		return "no events registered", nil
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Daemon) cmdAlerts([]string) (any, error) {
	als := d.reg.Alerts()
	sort.Slice(als, func(i, j int) bool { return als[i].Name < als[j].Name })
	var lines []string
	for _, al := range als {
		owner := al.Owner
		if cmd, ok := d.reg.Cmd(al.Owner); ok && cmd != "" {
			owner = cmd
		}
		lines = append(lines, fmt.Sprintf("%-16s %s from %s", al.Name, al.ID, owner))
	}
	if len(lines) == 0 {
		return "no alerts registered", nil
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Daemon) cmdActivate(args []string) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: activate <name>")
	}
	if err := d.atch.Activate(args[0]); err != nil {
		return nil, err
	}
	return fmt.Sprintf("%s activated", args[0]), nil
}

func (d *Daemon) cmdDeactivate(args []string) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: deactivate <name>")
	}
	if err := d.atch.Deactivate(args[0]); err != nil {
		return nil, err
	}
	return fmt.Sprintf("%s deactivated", args[0]), nil
}

func (d *Daemon) cmdSubscribe(args []string) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("usage: subscribe <event|plug> <alert|alarm>")
	}
	if !d.reg.Subscribe(args[0], args[1]) {
		return nil, fmt.Errorf("cannot resolve %q and %q to an event/alert pair", args[0], args[1])
	}
	if err := d.reg.Save(); err != nil {
		d.logger.Warn("registry save failed", logging.Error(err))
	}
	return fmt.Sprintf("subscribed %s to %s", args[1], args[0]), nil
}

func (d *Daemon) cmdUnsubscribe(args []string) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("usage: unsubscribe <event|plug> <alert|alarm>")
	}
	if !d.reg.Unsubscribe(args[0], args[1]) {
		return nil, fmt.Errorf("no subscription between %q and %q", args[0], args[1])
	}
	if err := d.reg.Save(); err != nil {
		d.logger.Warn("registry save failed", logging.Error(err))
	}
	return fmt.Sprintf("unsubscribed %s from %s", args[1], args[0]), nil
}

func (d *Daemon) cmdSubscriptions([]string) (any, error) {
	subs := d.reg.Subs()
	if len(subs) == 0 {
		return "no subscriptions", nil
	}
	lines := make([]string, 0, len(subs))
	for _, s := range subs {
		lines = append(lines, fmt.Sprintf("%-12s %s -> %s", s.Kind, s.Source, s.Target))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Daemon) cmdHistory(args []string) (any, error) {
	limit := 20
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("history limit must be a positive integer, got %q", args[0])
		}
		limit = n
	}
	entries, err := d.hist.Recent(context.Background(), limit)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return "no triggers recorded", nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s %-16s %d alert(s)",
			e.FiredAt.Local().Format(time.RFC3339), e.EventName, e.Alerts))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Daemon) cmdPoll([]string) (any, error) {
	d.updateCycle()
	return "update cycle complete", nil
}

func (d *Daemon) cmdShutdown([]string) (any, error) {
	d.mu.Lock()
	select {
	case <-d.shutdown:
	default:
		close(d.shutdown)
	}
	d.mu.Unlock()
	return "shutting down", nil
}

func commandNames(cmds []attach.Command) string {
	if len(cmds) == 0 {
		return "(none)"
	}
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}

func bytesToString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
