package chromedp_browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
)

type page struct {
	ctx               context.Context
	cancel            context.CancelFunc
	once              sync.Once
	navigationTimeout time.Duration
	selectorTimeout   time.Duration

	mu       sync.Mutex
	logs     []entity.ConsoleLog
	requests map[network.RequestID]string

	// idle holds the loaders that reported networkIdle since the last
	// navigation. idleSignal is closed and replaced on every such report.
	idle       map[cdp.LoaderID]struct{}
	idleSignal chan struct{}
}

func newPage(ctx context.Context, cancel context.CancelFunc, navigationTimeout, selectorTimeout time.Duration) *page {
	return &page{
		ctx:               ctx,
		cancel:            cancel,
		navigationTimeout: navigationTimeout,
		selectorTimeout:   selectorTimeout,
		requests:          map[network.RequestID]string{},
		idle:              map[cdp.LoaderID]struct{}{},
		idleSignal:        make(chan struct{}),
	}
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (p *page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tctx, actions...)
}

// Navigate loads url and waits until the network has been idle, the same
// condition as a networkidle page load.
func (p *page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	clear(p.idle)
	p.mu.Unlock()

	err := p.run(ctx, p.navigationTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, loaderID, errorText, _, err := cdppage.Navigate(url).Do(ctx)
			switch {
			case err != nil:
				return err
			case errorText != "":
				return fmt.Errorf("page load error %s", errorText)
			case loaderID == "":
				// same-document navigation, nothing is loaded
				return nil
			}
			return p.waitNetworkIdle(ctx, loaderID)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", repository.ErrNavigationFailed, url, err)
	}
	return nil
}

func (p *page) waitNetworkIdle(ctx context.Context, loaderID cdp.LoaderID) error {
	for {
		p.mu.Lock()
		_, ok := p.idle[loaderID]
		signal := p.idleSignal
		p.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-signal:
		case <-ctx.Done():
			return fmt.Errorf("waiting for network idle: %w", ctx.Err())
		}
	}
}

func (p *page) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, p.selectorTimeout, chromedp.Title(&title))
	return title, err
}

func (p *page) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, p.selectorTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *page) WaitVisible(ctx context.Context, selector string) error {
	return selectorErr(selector, p.run(ctx, p.selectorTimeout, chromedp.WaitVisible(selector, chromedp.ByQuery)))
}

func (p *page) Click(ctx context.Context, selector string) error {
	return selectorErr(selector, p.run(ctx, p.selectorTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	))
}

func (p *page) Fill(ctx context.Context, selector, text string) error {
	return selectorErr(selector, p.run(ctx, p.selectorTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	))
}

func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, p.selectorTimeout, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (p *page) ConsoleLogs() []entity.ConsoleLog {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.ConsoleLog, len(p.logs))
	copy(out, p.logs)
	return out
}

func (p *page) Close() error {
	p.once.Do(p.cancel)
	return nil
}

// onEvent runs on the chromedp event loop and must not block.
func (p *page) onEvent(ev any) {
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		p.record(entity.ConsoleLog{Type: string(ev.Type), Text: consoleText(ev.Args), Timestamp: eventTime(ev.Timestamp)})
	case *runtime.EventExceptionThrown:
		if ev.ExceptionDetails == nil {
			return
		}
		text := ev.ExceptionDetails.Text
		if ex := ev.ExceptionDetails.Exception; ex != nil && ex.Description != "" {
			text = ex.Description
		}
		p.record(entity.ConsoleLog{Type: "exception", Text: text, URL: ev.ExceptionDetails.URL, Timestamp: eventTime(ev.Timestamp)})
	case *network.EventRequestWillBeSent:
		if ev.Request != nil {
			p.mu.Lock()
			p.requests[ev.RequestID] = ev.Request.URL
			p.mu.Unlock()
		}
	case *cdppage.EventLifecycleEvent:
		if ev.Name != "networkIdle" {
			return
		}
		p.mu.Lock()
		p.idle[ev.LoaderID] = struct{}{}
		close(p.idleSignal)
		p.idleSignal = make(chan struct{})
		p.mu.Unlock()
	case *network.EventLoadingFailed:
		p.mu.Lock()
		url := p.requests[ev.RequestID]
		p.mu.Unlock()
		p.record(entity.ConsoleLog{Type: "network", Text: networkFailureText(url, ev.ErrorText), URL: url, Timestamp: time.Now().UTC()})
	}
}

func (p *page) record(l entity.ConsoleLog) {
	p.mu.Lock()
	p.logs = append(p.logs, l)
	p.mu.Unlock()
}

// consoleText joins console arguments the way devtools prints them.
func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		switch {
		case len(arg.Value) > 0:
			v := string(arg.Value)
			if s, err := strconv.Unquote(v); err == nil {
				v = s
			}
			parts = append(parts, v)
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}

func networkFailureText(url, reason string) string {
	if url == "" {
		return "Request failed: " + reason
	}
	return fmt.Sprintf("Failed to load %s: %s", url, reason)
}

func eventTime(ts *runtime.Timestamp) time.Time {
	if ts == nil {
		return time.Now().UTC()
	}
	return ts.Time().UTC()
}

func selectorErr(selector string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", repository.ErrSelectorTimeout, selector)
	}
	return err
}
