package main

import (
	"fmt"
	"time"

	"emp/internal/config"
	"emp/internal/message"
	"emp/internal/transport"
)

// commandContext resolves the daemon address lazily so flags are read after
// cobra parses them.
type commandContext struct {
	addrFlag    *string
	configFlag  *string
	timeoutFlag *time.Duration
}

func newCommandContext(addr, configPath *string, timeout *time.Duration) *commandContext {
	return &commandContext{addrFlag: addr, configFlag: configPath, timeoutFlag: timeout}
}

func (c *commandContext) address() (string, error) {
	if *c.addrFlag != "" {
		return *c.addrFlag, nil
	}
	cfg, err := config.Load(*c.configFlag)
	if err != nil {
		return "", err
	}
	return cfg.Daemon.Bind, nil
}

func (c *commandContext) dial() (*transport.Client, error) {
	addr, err := c.address()
	if err != nil {
		return nil, err
	}
	client, err := transport.Dial(addr, *c.timeoutFlag)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w (is empd running?)", addr, err)
	}
	return client, nil
}

// runCommand sends one command and, unless wait is false, returns the reply
// value. An Error reply becomes a Go error so the process exits non-zero.
func (c *commandContext) runCommand(dest, name string, args []string, wait bool) (string, error) {
	client, err := c.dial()
	if err != nil {
		return "", err
	}
	defer client.Close()

	if err := client.Send(message.NewCommand(name, client.ID(), dest, args...)); err != nil {
		return "", err
	}
	if !wait {
		return "", nil
	}

	reply, err := client.Recv(*c.timeoutFlag)
	if err != nil {
		return "", fmt.Errorf("await reply: %w", err)
	}
	switch m := reply.(type) {
	case message.Base:
		return fmt.Sprint(m.Value), nil
	case message.Error:
		return "", fmt.Errorf("%v", m.Value)
	default:
		return "", fmt.Errorf("unexpected reply type %q", m.Kind())
	}
}
