package chromedp_browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/repository"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultSelectorTimeout   = 10 * time.Second
)

// Options configure the browsers started by a Launcher.
type Options struct {
	Headless          bool
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	Proxies           []string
	UserAgents        []string
}

// Launcher starts one Chrome process per session.
type Launcher struct {
	opts    Options
	rotator *Rotator
	logger  *zap.Logger
}

// NewLauncher creates a Launcher. Zero timeouts fall back to 30s for navigation and 10s for selectors.
func NewLauncher(opts Options, logger *zap.Logger) *Launcher {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = defaultNavigationTimeout
	}
	if opts.SelectorTimeout <= 0 {
		opts.SelectorTimeout = defaultSelectorTimeout
	}
	return &Launcher{
		opts:    opts,
		rotator: NewRotator(opts.Proxies, opts.UserAgents),
		logger:  logger.Named("browser"),
	}
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(l.rotator.UserAgent()),
	)
	if proxy := l.rotator.Proxy(); proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}
	return opts
}

// Launch starts a browser and waits until it accepts commands.
func (l *Launcher) Launch(ctx context.Context) (repository.BrowserSession, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(l.logger.Sugar().Debugf))

	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return &session{
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		opts:   l.opts,
		logger: l.logger,
	}, nil
}

type session struct {
	ctx    context.Context
	cancel func()
	once   sync.Once
	opts   Options
	logger *zap.Logger
}

// NewPage opens a tab in the session's browser and starts recording its console.
func (s *session) NewPage(ctx context.Context) (repository.BrowserPage, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, fmt.Errorf("browser session closed: %w", err)
	}
	tabCtx, tabCancel := chromedp.NewContext(s.ctx)
	p := newPage(tabCtx, tabCancel, s.opts.NavigationTimeout, s.opts.SelectorTimeout)
	chromedp.ListenTarget(tabCtx, p.onEvent)

	// The first Run attaches the tab and starts its event loop on tabCtx, so
	// it must not run on a derived context. It is bounded by cancelling the tab.
	timer := time.AfterFunc(s.opts.NavigationTimeout, tabCancel)
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx, network.Enable(), cdppage.SetLifecycleEventsEnabled(true))
	timedOut, cancelled := !timer.Stop(), !stop()
	switch {
	case err != nil:
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	case timedOut || cancelled:
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", context.Cause(tabCtx))
	}
	return p, nil
}

func (s *session) Close() error {
	s.once.Do(s.cancel)
	return nil
}
