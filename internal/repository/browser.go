package repository

import (
	"context"

	"github.com/user/crawltest-service/internal/entity"
)

// BrowserLauncher starts an isolated browser session.
type BrowserLauncher interface {
	Launch(ctx context.Context) (BrowserSession, error)
}

// BrowserSession owns one browser instance. Close releases it and is safe to call more than once.
type BrowserSession interface {
	NewPage(ctx context.Context) (BrowserPage, error)
	Close() error
}

// BrowserPage is a tab inside a session. Every operation is bounded by an
// internal timeout so a hung page cannot block the caller indefinitely.
type BrowserPage interface {
	// Navigate loads url and waits for the document body.
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	// HTML returns the serialised document of the current page.
	HTML(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	// Fill clears the matched input and types text into it.
	Fill(ctx context.Context, selector, text string) error
	Screenshot(ctx context.Context) ([]byte, error)
	// ConsoleLogs returns the console messages and failed requests seen so far.
	ConsoleLogs() []entity.ConsoleLog
	Close() error
}
