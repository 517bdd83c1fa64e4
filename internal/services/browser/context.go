package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/interfaces"
)

// browserContext is one isolated browser session. Pages opened from it
// share cookies and cache with each other but not with other contexts.
type browserContext struct {
	ctx         context.Context
	cancel      context.CancelFunc
	release     func()
	navTimeout  time.Duration
	settleDelay time.Duration
	logger      arbor.ILogger

	mu     sync.Mutex
	closed bool
}

var _ interfaces.BrowserContext = (*browserContext)(nil)

// NewPage opens a tab with network and console instrumentation attached
func (b *browserContext) NewPage(ctx context.Context) (interfaces.PageSession, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("browser context is closed")
	}
	b.mu.Unlock()

	pageCtx, pageCancel := chromedp.NewContext(b.ctx)

	session := &pageSession{
		ctx:         pageCtx,
		cancel:      pageCancel,
		navTimeout:  b.navTimeout,
		settleDelay: b.settleDelay,
		logger:      b.logger,
		pending:     make(map[network.RequestID]int),
	}
	session.listen()

	setupCtx, cancel := context.WithTimeout(pageCtx, b.navTimeout)
	defer cancel()
	if err := chromedp.Run(setupCtx, network.Enable(), log.Enable()); err != nil {
		pageCancel()
		return nil, fmt.Errorf("failed to instrument page: %w", err)
	}

	return session, nil
}

func (b *browserContext) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.cancel()
	if b.release != nil {
		b.release()
	}
	return nil
}
