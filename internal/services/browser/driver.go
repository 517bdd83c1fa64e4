package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
)

// Driver owns a single Chrome exec allocator and hands out isolated
// browser contexts. Concurrent contexts are bounded by the configured
// pool size so a burst of runs cannot spawn unbounded Chrome processes.
type Driver struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	slots       chan struct{}
	navTimeout  time.Duration
	settleDelay time.Duration
	logger      arbor.ILogger

	mu     sync.Mutex
	closed bool
}

var _ interfaces.BrowserDriver = (*Driver)(nil)

// NewDriver creates a browser driver from the browser configuration
func NewDriver(cfg common.BrowserConfig, logger arbor.ILogger) *Driver {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "Paritas/" + common.Version
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", false),
		chromedp.Flag("disable-backgrounding-occluded-windows", false),
		chromedp.Flag("disable-renderer-backgrounding", false),
		chromedp.UserAgent(userAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	logger.Info().
		Int("pool_size", poolSize).
		Bool("headless", cfg.Headless).
		Str("user_agent", userAgent).
		Msg("Browser driver initialized")

	return &Driver{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		slots:       make(chan struct{}, poolSize),
		navTimeout:  common.ParseDuration(cfg.NavigationTimeout, 30*time.Second),
		settleDelay: common.ParseDuration(cfg.SettleDelay, 2*time.Second),
		logger:      logger,
	}
}

// NewContext allocates an isolated browser context, blocking until a
// pool slot is free or ctx is cancelled
func (d *Driver) NewContext(ctx context.Context) (interfaces.BrowserContext, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("browser driver is closed")
	}
	d.mu.Unlock()

	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	browserCtx, browserCancel := chromedp.NewContext(d.allocCtx)

	// Start the browser process now so failures surface here rather
	// than on the first navigation.
	startCtx, cancel := context.WithTimeout(browserCtx, d.navTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		<-d.slots
		return nil, fmt.Errorf("failed to start browser context: %w", err)
	}

	release := func() {
		select {
		case <-d.slots:
		default:
		}
	}

	return &browserContext{
		ctx:         browserCtx,
		cancel:      browserCancel,
		release:     release,
		navTimeout:  d.navTimeout,
		settleDelay: d.settleDelay,
		logger:      d.logger,
	}, nil
}

// HealthCheck drives a throwaway context to about:blank
func (d *Driver) HealthCheck(ctx context.Context) error {
	browserCtx, cancel := chromedp.NewContext(d.allocCtx)
	defer cancel()

	checkCtx, checkCancel := context.WithTimeout(browserCtx, d.navTimeout)
	defer checkCancel()

	var title string
	if err := chromedp.Run(checkCtx,
		chromedp.Navigate("about:blank"),
		chromedp.Title(&title),
	); err != nil {
		return fmt.Errorf("browser health check failed: %w", err)
	}
	return nil
}

// Close shuts down the allocator and every context spawned from it
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.allocCancel()
	d.logger.Info().Msg("Browser driver shut down")
	return nil
}
