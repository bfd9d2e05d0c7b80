package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/lwm2m-node/lwm2m-go/pkg/client"
	"github.com/lwm2m-node/lwm2m-go/pkg/model"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// Console is the interactive command line of a running node.
type Console struct {
	rl  *readline.Instance
	out io.Writer
}

// NewConsole creates the console. Log output should go through Stdout.
func NewConsole() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lwm2m> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until ctx is done or the user quits, then calls
// cancel.
func (c *Console) Run(ctx context.Context, node *client.Node, cancel context.CancelFunc) {
	defer c.rl.Close()
	go func() {
		<-ctx.Done()
		_ = c.rl.Close()
	}()

	c.printHelp()
	for {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) && ctx.Err() == nil {
				continue
			}
			cancel()
			return
		}
		if quit := c.exec(ctx, node, line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// exec runs one command line and reports whether the console should exit.
func (c *Console) exec(ctx context.Context, node *client.Node, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "status", "s":
		c.cmdStatus(node)
	case "objects", "ls":
		c.cmdObjects(node)
	case "read", "r":
		c.cmdRead(ctx, node, args)
	case "write", "w":
		c.cmdWrite(ctx, node, args)
	case "exec", "x":
		c.cmdExec(ctx, node, args)
	case "observed":
		c.cmdObserved(node)
	case "update", "u":
		c.cmdUpdate(ctx, node, args)
	case "deregister":
		c.report(node.Deregister(ctx))
	case "ping":
		if err := node.Ping(ctx); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		} else {
			fmt.Fprintln(c.out, "pong")
		}
	case "sleep":
		node.Sleep()
		fmt.Fprintln(c.out, "Queue mode: sleeping")
	case "wake":
		c.report(node.Wake(ctx))
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
LWM2M Client Commands:
  Resources:
    objects            - List object instances
    read <path>        - Read a resource, instance or object
    write <path> <val> - Write a resource value
    exec <path> [args] - Execute a resource
    observed           - List observed paths

  Registration:
    status             - Show the session
    update [lt=N] [b=B] [objects]
                       - Send a registration update
    deregister         - Deregister from the server
    ping               - Ping the server
    sleep / wake       - Enter or leave queue mode

  General:
    help               - Show this help
    quit               - Exit

  Path Format:
    object/instance/resource - e.g., 3/0/0 or device/0/manuf`)
}

func (c *Console) cmdStatus(node *client.Node) {
	s := node.Session()
	fmt.Fprintf(c.out, "Name:      %s\n", s.Name)
	fmt.Fprintf(c.out, "State:     %s\n", s.State)
	if s.ServerHost != "" {
		fmt.Fprintf(c.out, "Server:    %s:%d\n", s.ServerHost, s.ServerPort)
	}
	if s.Location != "" {
		fmt.Fprintf(c.out, "Location:  %s\n", s.Location)
	}
	fmt.Fprintf(c.out, "Lifetime:  %ds (%ds elapsed)\n", s.Lifetime, s.Elapsed)
	fmt.Fprintf(c.out, "Binding:   %s\n", s.Binding)
	fmt.Fprintf(c.out, "Sleeping:  %v\n", s.Sleeping)
	fmt.Fprintf(c.out, "Heartbeat: %v\n", s.Heartbeat)
}

func (c *Console) cmdObjects(node *client.Node) {
	r := node.Tree().Resolver()
	for _, p := range node.Tree().Objects() {
		fmt.Fprintf(c.out, "  %-10s %s\n", p.Numeric(r), r.ObjectKey(p.Object))
	}
}

func (c *Console) cmdObserved(node *client.Node) {
	paths := node.Engine().Observed()
	if len(paths) == 0 {
		fmt.Fprintln(c.out, "No observations")
		return
	}
	r := node.Tree().Resolver()
	for _, p := range paths {
		fmt.Fprintf(c.out, "  %s\n", p.Numeric(r))
	}
}

func (c *Console) parsePath(node *client.Node, s string) (model.Path, bool) {
	p, err := model.ParsePath(node.Tree().Resolver(), s)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid path: %v\n", err)
		return model.Path{}, false
	}
	return p, true
}

func (c *Console) cmdRead(ctx context.Context, node *client.Node, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: read <path>")
		return
	}
	p, ok := c.parsePath(node, args[0])
	if !ok {
		return
	}
	v, err := node.Tree().Dump(ctx, p)
	if err != nil && v == nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.printValue("", v)
	if err != nil {
		fmt.Fprintf(c.out, "Warning: %v\n", err)
	}
}

func (c *Console) printValue(indent string, v any) {
	m, ok := v.(map[string]any)
	if !ok {
		fmt.Fprintf(c.out, "%s%v\n", indent, v)
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if sub, ok := m[k].(map[string]any); ok {
			fmt.Fprintf(c.out, "%s%s:\n", indent, k)
			c.printValue(indent+"  ", sub)
			continue
		}
		fmt.Fprintf(c.out, "%s%s = %v\n", indent, k, m[k])
	}
}

func (c *Console) cmdWrite(ctx context.Context, node *client.Node, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: write <path> <value>")
		return
	}
	p, ok := c.parsePath(node, args[0])
	if !ok {
		return
	}
	kind, _ := node.Tree().KindAt(p)
	v, err := model.ParseScalar(strings.Join(args[1:], " "), kind)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid value: %v\n", err)
		return
	}
	if err := node.Tree().Write(ctx, p, v); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "OK")
}

func (c *Console) cmdExec(ctx context.Context, node *client.Node, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: exec <path> [args...]")
		return
	}
	p, ok := c.parsePath(node, args[0])
	if !ok {
		return
	}
	res, err := node.Tree().Execute(ctx, p, args[1:])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if res != nil {
		fmt.Fprintf(c.out, "%v\n", res)
	}
	fmt.Fprintln(c.out, "OK")
}

func (c *Console) cmdUpdate(ctx context.Context, node *client.Node, args []string) {
	opts, err := parseUpdateArgs(args)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.report(node.Update(ctx, opts))
}

func parseUpdateArgs(args []string) (client.UpdateOptions, error) {
	var opts client.UpdateOptions
	for _, arg := range args {
		if arg == "objects" {
			opts.ObjectList = true
			continue
		}
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return opts, fmt.Errorf("expected key=value, got %q", arg)
		}
		switch key {
		case "lt":
			lt, err := strconv.Atoi(value)
			if err != nil {
				return opts, fmt.Errorf("invalid lifetime %q", value)
			}
			opts.Lifetime = &lt
		case "lwm2m":
			v := value
			opts.Version = &v
		case "b":
			b := value
			opts.Binding = &b
		default:
			return opts, fmt.Errorf("unknown parameter %q", key)
		}
	}
	return opts, nil
}

func (c *Console) report(code wire.Code, err error) {
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s %s\n", code.Dotted(), code)
}
