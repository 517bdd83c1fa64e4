package interfaces

import (
	"context"

	"github.com/ternarybob/paritas/internal/models"
)

// BrowserDriver - manages headless browser contexts. The capture stage
// opens one context per side and parks both on the run context so the
// diff stages can reuse them; the orchestrator closes them when the run
// reaches a terminal state.
type BrowserDriver interface {
	// NewContext allocates an isolated browser context.
	NewContext(ctx context.Context) (BrowserContext, error)

	// HealthCheck verifies a browser can be driven at all.
	HealthCheck(ctx context.Context) error

	Close() error
}

// BrowserContext - an isolated browser session (cookies, cache, pages)
type BrowserContext interface {
	// NewPage opens a tab. Callers must Close it.
	NewPage(ctx context.Context) (PageSession, error)

	Close() error
}

// PageSession - one tab. Console messages, network events, and JS errors
// accumulate from navigation onward and are drained by the getters.
type PageSession interface {
	// SetViewport resizes the emulated screen.
	SetViewport(ctx context.Context, width, height int) error

	// Navigate loads the URL, waits for the network to settle, and
	// reports how the navigation resolved. Navigation failures are
	// reported inside the result, not as an error, so callers can
	// record partial evidence.
	Navigate(ctx context.Context, url string) (*models.NavigationResult, error)

	// Screenshot captures a full-page PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// HTML returns the full serialized DOM.
	HTML(ctx context.Context) (string, error)

	// VisibleText returns the rendered text content of the page body.
	VisibleText(ctx context.Context) (string, error)

	// Evaluate runs a JavaScript expression and unmarshals the result
	// into out. Pass nil to discard the result.
	Evaluate(ctx context.Context, expression string, out interface{}) error

	// ConsoleMessages drains the console entries observed so far.
	ConsoleMessages() []models.ConsoleMessage

	// NetworkEvents drains the request/response pairs observed so far.
	NetworkEvents() []models.NetworkEvent

	// JSErrors drains uncaught exceptions and console errors.
	JSErrors() []models.JSError

	Close() error
}
