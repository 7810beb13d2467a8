package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/dualview/internal/config"
	"github.com/xkilldash9x/dualview/internal/devices"
	"github.com/xkilldash9x/dualview/internal/host"
	"github.com/xkilldash9x/dualview/internal/location"
	"github.com/xkilldash9x/dualview/internal/observability"
	"github.com/xkilldash9x/dualview/internal/status"
)

// runViewerFunc is swapped out in tests so no browser is launched.
var runViewerFunc = runViewer

// newOpenCmd creates and configures the `open` command.
func newOpenCmd(a *app) *cobra.Command {
	var (
		device        string
		view          string
		landscape     bool
		width         int
		mirror        bool
		headless      bool
		probeTimeout  time.Duration
		noInteractive bool
	)

	openCmd := &cobra.Command{
		Use:   "open [url]",
		Short: "Open a URL in a desktop frame and a mobile frame side by side",
		Long: `Opens a local viewer page in Chrome with the URL loaded twice: once at desktop
width and once inside a mobile device frame. Scrolling or navigating in either
frame is mirrored in the other. Sites that refuse to be framed are reported as
blocked instead of showing a blank frame.

--view desktop or --view mobile shows a single frame; mirroring is off then.
--landscape turns the device on its side and --width overrides its viewport
width in CSS pixels.

While the viewer runs, commands are read from stdin. Type 'help' for the list.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			flags := cmd.Flags()

			// Flags only override what config and env set when given explicitly.
			if flags.Changed("device") {
				if _, ok := devices.Lookup(device); !ok {
					return fmt.Errorf("unknown device %q (one of: %s)", device, strings.Join(devices.IDs(), ", "))
				}
				cfg.SetHostDevice(device)
			}
			if flags.Changed("view") {
				cfg.SetHostView(strings.ToLower(view))
			}
			if flags.Changed("landscape") {
				cfg.SetHostLandscape(landscape)
			}
			if flags.Changed("width") {
				cfg.SetHostWidth(width)
			}
			if flags.Changed("mirror") {
				cfg.SetSyncMirror(mirror)
			}
			if flags.Changed("headless") {
				cfg.SetBrowserHeadless(headless)
			}
			if flags.Changed("probe-timeout") {
				cfg.SetProberTimeout(probeTimeout)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			var target string
			if len(args) == 1 {
				if target = location.Normalize(args[0]); target == "" {
					return fmt.Errorf("cannot open %q: empty address", args[0])
				}
			}
			return runViewerFunc(cmd.Context(), cfg, target, !noInteractive, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	openCmd.Flags().StringVarP(&device, "device", "d", devices.DefaultID, "mobile device preset (see 'dualview devices')")
	openCmd.Flags().StringVar(&view, "view", config.ViewBoth, "frames to show: both, desktop or mobile")
	openCmd.Flags().BoolVar(&landscape, "landscape", false, "show the mobile frame in landscape orientation")
	openCmd.Flags().IntVar(&width, "width", 0, "mobile viewport width in CSS pixels (0 keeps the device's)")
	openCmd.Flags().BoolVar(&mirror, "mirror", true, "mirror scroll and navigation between the frames")
	openCmd.Flags().BoolVar(&headless, "headless", false, "run Chrome without a window")
	openCmd.Flags().DurationVar(&probeTimeout, "probe-timeout", 5*time.Second, "how long a frame may stay silent after loading before it is reported as blocked")
	openCmd.Flags().BoolVar(&noInteractive, "no-interactive", false, "do not read commands from stdin")
	return openCmd
}

// runViewer runs the host until ctx is cancelled, the browser window is
// closed or the user quits from the console.
func runViewer(ctx context.Context, cfg config.Interface, target string, interactive bool, in io.Reader, out io.Writer) error {
	logger := observability.GetLogger()
	w := &syncWriter{w: out}
	terminal := status.NewTerminal(w, status.NewStyles())

	h := host.New(cfg, logger, status.Multi(terminal, status.Log(logger)))
	dev := h.Device()
	fmt.Fprintf(w, "device %s (%s), view %s\n", dev.Label, dev.ID, h.Layout().View)
	if !h.Layout().Mirrorable() && cfg.Sync().Mirror {
		fmt.Fprintln(w, "mirroring off: only one frame is shown")
	}
	defer watchAddress(h, w)()
	if target != "" {
		fmt.Fprintf(w, "loading %s\n", h.Load(target))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.Run(gctx) })
	if interactive {
		c := &console{v: h, out: w, render: terminal}
		g.Go(func() error {
			quit, err := c.run(gctx, in)
			if err != nil {
				logger.Warn("Console input failed; the viewer keeps running.", zap.Error(err))
			}
			if quit {
				cancel()
			}
			return nil
		})
	}

	err := g.Wait()
	switch {
	case errors.Is(err, host.ErrBrowserClosed):
		logger.Info("Browser window closed.")
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	}
	return err
}
