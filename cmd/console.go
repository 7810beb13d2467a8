package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xkilldash9x/dualview/internal/host"
	"github.com/xkilldash9x/dualview/internal/location"
	"github.com/xkilldash9x/dualview/internal/status"
)

// viewer is the part of host.Host the console drives.
type viewer interface {
	Load(raw string) string
	SetMirror(enabled bool) bool
	Snapshot(ctx context.Context) (host.State, error)
}

var _ viewer = (*host.Host)(nil)

// addressSource is the part of host.Host that announces address changes.
type addressSource interface {
	OnAddressChange(l location.Listener) (unsubscribe func())
}

var _ addressSource = (*host.Host)(nil)

// watchAddress prints an "address <url>" line to out for every change of
// the shared address.
func watchAddress(src addressSource, out io.Writer) (unsubscribe func()) {
	return src.OnAddressChange(func(url string) {
		fmt.Fprintf(out, "address %s\n", url)
	})
}

type commandKind int

const (
	cmdNone commandKind = iota
	cmdLoad
	cmdMirror
	cmdStatus
	cmdHelp
	cmdQuit
)

type command struct {
	kind commandKind
	arg  string
	on   bool
}

const consoleHelp = `commands:
  go <url>          load url in every shown frame
  mirror on|off     toggle scroll and navigation mirroring
  status            show the address, frame status and sync counters
  help              show this help
  quit              close the viewer`

// parseCommand reads one console line. A bare URL is shorthand for go.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{kind: cmdNone}, nil
	}
	verb, rest := strings.ToLower(fields[0]), fields[1:]

	switch verb {
	case "go", "open", "load":
		if len(rest) != 1 {
			return command{}, fmt.Errorf("usage: go <url>")
		}
		return command{kind: cmdLoad, arg: rest[0]}, nil
	case "mirror", "sync":
		if len(rest) != 1 {
			return command{}, fmt.Errorf("usage: mirror on|off")
		}
		switch strings.ToLower(rest[0]) {
		case "on", "true", "1":
			return command{kind: cmdMirror, on: true}, nil
		case "off", "false", "0":
			return command{kind: cmdMirror, on: false}, nil
		}
		return command{}, fmt.Errorf("usage: mirror on|off")
	case "status", "st":
		return command{kind: cmdStatus}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	case "quit", "exit", "q":
		return command{kind: cmdQuit}, nil
	}
	if len(fields) == 1 && (strings.Contains(verb, ".") || strings.Contains(verb, "://")) {
		return command{kind: cmdLoad, arg: fields[0]}, nil
	}
	return command{}, fmt.Errorf("unknown command %q (try 'help')", fields[0])
}

// syncWriter serializes writes from the console and the status presenter.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// console reads commands from in until quit, EOF or ctx is done. It
// reports whether the user asked to quit.
type console struct {
	v      viewer
	out    io.Writer
	render *status.Terminal
}

func (c *console) run(ctx context.Context, in io.Reader) (quit bool, err error) {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	// A Read on stdin cannot be interrupted, so after ctx is done this
	// goroutine lives until the next line or EOF arrives. It never sends
	// once ctx is done, and the process exits right after anyway.
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return false, err
				default:
					return false, nil
				}
			}
			if c.handle(ctx, line) {
				return true, nil
			}
		}
	}
}

// handle executes one line and reports whether it was quit.
func (c *console) handle(ctx context.Context, line string) bool {
	cmd, err := parseCommand(line)
	if err != nil {
		fmt.Fprintln(c.out, err)
		return false
	}
	switch cmd.kind {
	case cmdLoad:
		if url := c.v.Load(cmd.arg); url != "" {
			fmt.Fprintf(c.out, "loading %s\n", url)
		}
	case cmdMirror:
		on := c.v.SetMirror(cmd.on)
		if cmd.on && !on {
			fmt.Fprintln(c.out, "mirroring needs both frames (start with --view both)")
			return false
		}
		fmt.Fprintf(c.out, "mirroring %s\n", onOff(on))
	case cmdStatus:
		c.printStatus(ctx)
	case cmdHelp:
		fmt.Fprintln(c.out, consoleHelp)
	case cmdQuit:
		return true
	}
	return false
}

func (c *console) printStatus(ctx context.Context) {
	st, err := c.v.Snapshot(ctx)
	if err != nil {
		fmt.Fprintln(c.out, "status unavailable:", err)
		return
	}
	address := st.Address
	if address == "" {
		address = "(none)"
	}
	fmt.Fprintf(c.out, "address %s\n", address)
	for _, f := range st.Frames {
		fmt.Fprintln(c.out, c.render.Render(f.Name, f.URL, f.Status))
	}
	stats := st.Stats
	fmt.Fprintf(c.out, "mirroring %s: %d scrolls routed, %d echoes suppressed, %d navigations mirrored, %d dropped\n",
		onOff(st.Mirroring), stats.RoutedScrolls, stats.SuppressedEchoes, stats.MirroredNavigations, stats.Dropped)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
