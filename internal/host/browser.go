package host

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dualview/internal/config"
)

// execAllocatorOptions builds the Chrome flags for cfg. Site isolation is
// turned off so both frames live in the page's own renderer, where the
// shim and the binding reach them.
func execAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-site-isolation-trials", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process,Translate,BlinkGenPropertyTrees"),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)

	// The defaults are headless; a visible window is the normal mode here.
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false), chromedp.Flag("hide-scrollbars", false))
	}
	if cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	for _, arg := range cfg.Args {
		key, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if key == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// browserSession owns the Chrome process and the tab showing the host page.
type browserSession struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	// detached is closed when the tab goes away, for example because the
	// user closed the window.
	detached   chan struct{}
	detachOnce sync.Once
}

// startBrowser launches Chrome. onEvent receives every target event on
// chromedp's event goroutine and must not block.
func startBrowser(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig, onEvent func(ev interface{})) (*browserSession, error) {
	logger = logger.Named("browser")
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execAllocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	b := &browserSession{
		logger:      logger,
		cfg:         cfg,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		detached:    make(chan struct{}),
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic in target event listener.",
					zap.Any("panic_reason", r), zap.String("stack", string(debug.Stack())))
			}
		}()
		switch ev.(type) {
		case *inspector.EventDetached, *inspector.EventTargetCrashed:
			b.markDetached()
			return
		}
		onEvent(ev)
	})
	// chromedp cancels the tab context when the browser process exits.
	go func() {
		<-tabCtx.Done()
		b.markDetached()
	}()

	startCtx := tabCtx
	if cfg.StartTimeout > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(tabCtx, cfg.StartTimeout)
		defer cancel()
	}
	// A timeout on the first Run would tear the tab down with it, so the
	// browser is started on tabCtx and only waited for under startCtx.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
	case <-startCtx.Done():
		b.Close()
		return nil, fmt.Errorf("browser did not start: %w", startCtx.Err())
	}
	logger.Info("Browser started.")
	return b, nil
}

// Open installs the shim and binding, then loads pageURL.
func (b *browserSession) Open(shim, pageURL string) error {
	err := chromedp.Run(b.tabCtx,
		inspector.Enable(),
		page.Enable(),
		runtime.Enable(),
		runtime.AddBinding(BindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(shim).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject frame shim persistently: %w", err)
			}
			return nil
		}),
		chromedp.Navigate(pageURL),
	)
	if err != nil {
		return fmt.Errorf("failed to open host page: %w", err)
	}
	b.logger.Debug("Host page opened.", zap.String("url", pageURL))
	return nil
}

// Evaluate runs expr in the given execution context. It is an EvalFunc.
func (b *browserSession) Evaluate(ctx context.Context, contextID runtime.ExecutionContextID, expr string) error {
	c := chromedp.FromContext(b.tabCtx)
	if c == nil || c.Target == nil {
		return fmt.Errorf("browser tab is not attached")
	}
	_, exception, err := runtime.Evaluate(expr).
		WithContextID(contextID).
		WithSilent(true).
		Do(cdp.WithExecutor(ctx, c.Target))
	if err != nil {
		return err
	}
	if exception != nil {
		return fmt.Errorf("script threw: %s", exception.Text)
	}
	return nil
}

// Detached is closed once the tab is gone.
func (b *browserSession) Detached() <-chan struct{} { return b.detached }

func (b *browserSession) markDetached() {
	b.detachOnce.Do(func() { close(b.detached) })
}

// Close shuts the tab and the browser process down.
func (b *browserSession) Close() {
	b.tabCancel()
	b.allocCancel()
}
