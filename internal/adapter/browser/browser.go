// Package browser drives a live Chrome page through go-rod. It implements
// the locator's page capability and discovers candidate elements for the
// page context.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const navigateTimeout = 30 * time.Second

// Connect attaches to a running browser at controlURL, or launches a
// headless local Chrome when controlURL is empty.
func Connect(ctx context.Context, controlURL string) (*rod.Browser, error) {
	wsURL := controlURL
	if wsURL == "" {
		u, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		slog.InfoContext(ctx, "launched local chrome", "url", wsURL)
	} else {
		slog.InfoContext(ctx, "connecting to remote browser", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

// Open creates a tab, navigates it to pageURL and waits for load.
func Open(ctx context.Context, b *rod.Browser, pageURL string) (*Page, error) {
	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		slog.WarnContext(ctx, "wait load timeout", "url", pageURL, "error", err)
	}
	return &Page{page: page, url: pageURL}, nil
}
